package flowgraph

import "time"

// CompiledTransition is one outgoing edge of a compiled node. Priority is
// set when the edge's sourceHandle matches a decision branch; transitions
// without a priority sort after prioritized ones.
type CompiledTransition struct {
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetNodeID string `json:"targetNodeId"`
	Priority     *int   `json:"priority,omitempty"`
}

// CompiledNode is the executable form of a graph node.
type CompiledNode struct {
	Type NodeType `json:"type"`

	// Exactly one of these is set for branching/goto nodes.
	DecisionConfig *DecisionNodeConfig `json:"decisionConfig,omitempty"`
	SwitchConfig   *SwitchNodeConfig   `json:"switchConfig,omitempty"`
	GotoTarget     string              `json:"gotoTarget,omitempty"`

	// Config is the raw node configuration, passed through to the runtime
	// collaborators for non-branching nodes.
	Config map[string]any `json:"config,omitempty"`

	// Shortcuts for non-branching nodes, populated from success/error edges.
	NextOnSuccess string `json:"nextOnSuccess,omitempty"`
	NextOnError   string `json:"nextOnError,omitempty"`
}

// CompiledPlan is the validated, indexed, executable form of a graph. Plans
// are immutable once produced and safe for concurrent reads. Maps are keyed
// by node ID and marshal to plain JSON objects for wire transport.
type CompiledPlan struct {
	ID            string                          `json:"id"`
	Version       string                          `json:"version"`
	SourceVersion int                             `json:"sourceVersion"`
	ProfileID     ProfileID                       `json:"profileId"`
	EntryNodeID   string                          `json:"entryNodeId"`
	Nodes         map[string]*CompiledNode        `json:"nodes"`
	Transitions   map[string][]CompiledTransition `json:"transitions"`
	CompiledAt    time.Time                       `json:"compiledAt"`
}

// Node returns the compiled node for an ID, or nil if absent.
func (p *CompiledPlan) Node(id string) *CompiledNode {
	return p.Nodes[id]
}

// TransitionsFrom returns the ordered outgoing transitions of a node.
func (p *CompiledPlan) TransitionsFrom(id string) []CompiledTransition {
	return p.Transitions[id]
}

// FindTransition returns the first transition from nodeID whose sourceHandle
// equals handle, honoring the compiled priority order.
func (p *CompiledPlan) FindTransition(nodeID, handle string) (CompiledTransition, bool) {
	for _, tr := range p.Transitions[nodeID] {
		if tr.SourceHandle == handle {
			return tr, true
		}
	}
	return CompiledTransition{}, false
}
