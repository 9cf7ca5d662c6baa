// Package flowgraph defines the tenant-authored authentication graph model
// and the compiler that turns a graph into an executable plan.
//
// A GraphDefinition is a set of typed nodes and edges authored by a tenant
// admin. Compile validates the graph (unique node IDs, edge reference
// integrity, exactly one start node, at least one end node, well-formed
// branching configs) and produces an immutable CompiledPlan: indexed,
// priority-sorted transition tables keyed by node ID. The plan is safe for
// unlimited concurrent reads; editing the source graph invalidates the plan
// and forces recompilation.
//
// Node types form a closed set. Adding a node type means adding a constant
// here and handling its category in the runtime, a forced and localized
// change.
package flowgraph
