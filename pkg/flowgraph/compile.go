package flowgraph

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tenauth/flow-idm/pkg/condition"
)

// Compile transforms a graph definition into an executable plan. It is
// deterministic over well-formed input and returns a *CompileError for any
// invariant violation; a graph is never partially compiled.
func Compile(graph *GraphDefinition) (*CompiledPlan, error) {
	if graph == nil || len(graph.Nodes) == 0 {
		return nil, graphErr(ErrCodeEmptyGraph, "graph has no nodes")
	}

	// Index nodes by ID and verify structural invariants.
	nodes := make(map[string]*GraphNode, len(graph.Nodes))
	for i := range graph.Nodes {
		node := &graph.Nodes[i]
		if _, exists := nodes[node.ID]; exists {
			return nil, nodeErr(ErrCodeDuplicateNodeID, node.ID, "node ID declared more than once")
		}
		if node.Type.Category() == CategoryUnknown {
			return nil, nodeErr(ErrCodeUnknownNodeType, node.ID, "unknown node type %q", node.Type)
		}
		nodes[node.ID] = node
	}

	for i := range graph.Edges {
		edge := &graph.Edges[i]
		if _, ok := nodes[edge.Source]; !ok {
			return nil, edgeErr(ErrCodeDanglingEdge, edge.ID, "source %q references no node", edge.Source)
		}
		if _, ok := nodes[edge.Target]; !ok {
			return nil, edgeErr(ErrCodeDanglingEdge, edge.ID, "target %q references no node", edge.Target)
		}
	}

	entryNodeID, err := findEntryNode(graph, nodes)
	if err != nil {
		return nil, err
	}
	if err := requireEndNode(graph); err != nil {
		return nil, err
	}

	// Compile each node, extracting branching configs verbatim.
	compiled := make(map[string]*CompiledNode, len(graph.Nodes))
	decisionConfigs := make(map[string]*DecisionNodeConfig)
	for id, node := range nodes {
		cn, err := compileNode(node, nodes)
		if err != nil {
			return nil, err
		}
		compiled[id] = cn
		if cn.DecisionConfig != nil {
			decisionConfigs[id] = cn.DecisionConfig
		}
	}

	// Build the transition table. An edge whose sourceHandle matches a
	// decision branch inherits that branch's priority.
	transitions := make(map[string][]CompiledTransition)
	for i := range graph.Edges {
		edge := &graph.Edges[i]
		tr := CompiledTransition{
			SourceHandle: edge.SourceHandle,
			TargetNodeID: edge.Target,
		}
		if dc, ok := decisionConfigs[edge.Source]; ok && edge.SourceHandle != "" {
			for bi := range dc.Branches {
				if dc.Branches[bi].ID == edge.SourceHandle {
					p := dc.Branches[bi].Priority
					tr.Priority = &p
					break
				}
			}
		}
		transitions[edge.Source] = append(transitions[edge.Source], tr)
	}

	// Ascending by priority; transitions without one keep original edge
	// order after the prioritized set.
	for id := range transitions {
		trs := transitions[id]
		sort.SliceStable(trs, func(i, j int) bool {
			pi, pj := trs[i].Priority, trs[j].Priority
			switch {
			case pi != nil && pj != nil:
				return *pi < *pj
			case pi != nil:
				return true
			default:
				return false
			}
		})
	}

	// Populate success/error shortcuts and verify branch/case edge binding.
	for id, cn := range compiled {
		if err := bindEdges(id, cn, graph); err != nil {
			return nil, err
		}
	}

	plan := &CompiledPlan{
		ID:            uuid.New().String(),
		Version:       uuid.New().String(),
		SourceVersion: graph.FlowVersion,
		ProfileID:     graph.ProfileID,
		EntryNodeID:   entryNodeID,
		Nodes:         compiled,
		Transitions:   transitions,
		CompiledAt:    time.Now().UTC(),
	}

	slog.Info("Compiled flow graph",
		"flowID", graph.ID,
		"planVersion", plan.Version,
		"sourceVersion", plan.SourceVersion,
		"nodes", len(plan.Nodes))

	return plan, nil
}

// findEntryNode verifies there is exactly one start node and that it is not
// the target of any edge.
func findEntryNode(graph *GraphDefinition, nodes map[string]*GraphNode) (string, error) {
	entryNodeID := ""
	for id, node := range nodes {
		if node.Type.Canonical() != NodeStart {
			continue
		}
		if entryNodeID != "" {
			return "", nodeErr(ErrCodeMultipleStart, id, "graph already has start node %q", entryNodeID)
		}
		entryNodeID = id
	}
	if entryNodeID == "" {
		return "", graphErr(ErrCodeNoStartNode, "graph has no start node")
	}
	for i := range graph.Edges {
		if graph.Edges[i].Target == entryNodeID {
			return "", edgeErr(ErrCodeStartHasInbound, graph.Edges[i].ID, "start node cannot be an edge target")
		}
	}
	return entryNodeID, nil
}

func requireEndNode(graph *GraphDefinition) error {
	for i := range graph.Nodes {
		if graph.Nodes[i].Type.Canonical() == NodeEnd {
			return nil
		}
	}
	return graphErr(ErrCodeNoEndNode, "graph has no end node")
}

// compileNode validates a node's config and produces its compiled form.
func compileNode(node *GraphNode, nodes map[string]*GraphNode) (*CompiledNode, error) {
	if err := validateNodeConfig(node.Type, node.Data.Config); err != nil {
		return nil, nodeErr(ErrCodeInvalidConfig, node.ID, "%v", err)
	}

	cn := &CompiledNode{
		Type:   node.Type.Canonical(),
		Config: node.Data.Config,
	}

	switch cn.Type {
	case NodeDecision:
		dc := &DecisionNodeConfig{}
		if err := decodeConfig(node.Data.Config, dc); err != nil {
			return nil, nodeErr(ErrCodeInvalidConfig, node.ID, "cannot decode decision config: %v", err)
		}
		for bi := range dc.Branches {
			if depth := dc.Branches[bi].Condition.Depth(); depth > condition.MaxDepth {
				return nil, nodeErr(ErrCodeConditionTooDeep, node.ID,
					"branch %q condition depth %d exceeds limit %d", dc.Branches[bi].ID, depth, condition.MaxDepth)
			}
		}
		// Branches evaluate in ascending priority order at runtime; keep the
		// declared order stable among equal priorities.
		sort.SliceStable(dc.Branches, func(i, j int) bool {
			return dc.Branches[i].Priority < dc.Branches[j].Priority
		})
		cn.DecisionConfig = dc
	case NodeSwitch:
		sc := &SwitchNodeConfig{}
		if err := decodeConfig(node.Data.Config, sc); err != nil {
			return nil, nodeErr(ErrCodeInvalidConfig, node.ID, "cannot decode switch config: %v", err)
		}
		cn.SwitchConfig = sc
	case NodeGoto:
		gc := &GotoNodeConfig{}
		if err := decodeConfig(node.Data.Config, gc); err != nil {
			return nil, nodeErr(ErrCodeInvalidConfig, node.ID, "cannot decode goto config: %v", err)
		}
		if _, ok := nodes[gc.TargetNodeID]; !ok {
			return nil, nodeErr(ErrCodeGotoTargetMissing, node.ID, "goto target %q references no node", gc.TargetNodeID)
		}
		cn.GotoTarget = gc.TargetNodeID
	}

	return cn, nil
}

// bindEdges fills nextOnSuccess/nextOnError shortcuts for non-branching
// nodes and verifies every branch/case of a branching node resolves to an
// outgoing edge with a matching sourceHandle.
func bindEdges(nodeID string, cn *CompiledNode, graph *GraphDefinition) error {
	handles := make(map[string]bool)
	for i := range graph.Edges {
		edge := &graph.Edges[i]
		if edge.Source != nodeID {
			continue
		}
		if edge.SourceHandle != "" {
			handles[edge.SourceHandle] = true
		}
		switch edge.Type {
		case EdgeSuccess:
			if cn.NextOnSuccess != "" {
				return edgeErr(ErrCodeDuplicateEdge, edge.ID, "node %q already has a success edge", nodeID)
			}
			cn.NextOnSuccess = edge.Target
		case EdgeError:
			if cn.NextOnError != "" {
				return edgeErr(ErrCodeDuplicateEdge, edge.ID, "node %q already has an error edge", nodeID)
			}
			cn.NextOnError = edge.Target
		}
	}

	switch {
	case cn.DecisionConfig != nil:
		for bi := range cn.DecisionConfig.Branches {
			if id := cn.DecisionConfig.Branches[bi].ID; !handles[id] {
				return nodeErr(ErrCodeUnboundBranch, nodeID, "branch %q has no edge with matching sourceHandle", id)
			}
		}
		if db := cn.DecisionConfig.DefaultBranch; !handles[db] {
			return nodeErr(ErrCodeUnboundBranch, nodeID, "defaultBranch %q has no edge with matching sourceHandle", db)
		}
	case cn.SwitchConfig != nil:
		for ci := range cn.SwitchConfig.Cases {
			if id := cn.SwitchConfig.Cases[ci].ID; !handles[id] {
				return nodeErr(ErrCodeUnboundCase, nodeID, "case %q has no edge with matching sourceHandle", id)
			}
		}
		if dc := cn.SwitchConfig.DefaultCase; !handles[dc] {
			return nodeErr(ErrCodeUnboundCase, nodeID, "defaultCase %q has no edge with matching sourceHandle", dc)
		}
	}

	return nil
}
