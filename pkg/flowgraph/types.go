package flowgraph

// NodeType identifies the behavior of a graph node. The set is closed;
// unknown types are rejected at compile time.
type NodeType string

const (
	// Control nodes
	NodeStart NodeType = "start"
	NodeEnd   NodeType = "end"
	NodeGoto  NodeType = "goto"
	NodeError NodeType = "error"

	// Check nodes evaluate a configured condition against the runtime context
	NodeCheckSession       NodeType = "check_session"
	NodeCheckAuthLevel     NodeType = "check_auth_level"
	NodeCheckFirstLogin    NodeType = "check_first_login"
	NodeCheckUserAttribute NodeType = "check_user_attribute"
	NodeCheckContext       NodeType = "check_context"
	NodeCheckRisk          NodeType = "check_risk"
	NodePolicyCheck        NodeType = "policy_check"

	// Interactive UI nodes pause the flow and wait for user input
	NodeAuthMethodSelect NodeType = "auth_method_select"
	NodeIdentifier       NodeType = "identifier"
	NodeProfileInput     NodeType = "profile_input"
	NodeCustomForm       NodeType = "custom_form"
	NodeChallenge        NodeType = "challenge"
	NodeConsent          NodeType = "consent"

	// Authentication nodes verify submitted credentials
	NodeLogin    NodeType = "login"
	NodeMFA      NodeType = "mfa"
	NodeRegister NodeType = "register"

	// Resolve nodes bind tenant/org/policy context
	NodeResolveTenant NodeType = "resolve_tenant"
	NodeResolveOrg    NodeType = "resolve_org"
	NodeResolvePolicy NodeType = "resolve_policy"

	// Session and token nodes
	NodeIssueTokens    NodeType = "issue_tokens"
	NodeRefreshSession NodeType = "refresh_session"
	NodeRevokeSession  NodeType = "revoke_session"
	NodeBindDevice     NodeType = "bind_device"
	NodeLinkAccount    NodeType = "link_account"

	// Side-effect nodes
	NodeRedirect   NodeType = "redirect"
	NodeWebhook    NodeType = "webhook"
	NodeEventEmit  NodeType = "event_emit"
	NodeEmailSend  NodeType = "email_send"
	NodeSMSSend    NodeType = "sms_send"
	NodePushNotify NodeType = "push_notify"
	NodeLog        NodeType = "log"

	// Branching nodes
	NodeDecision NodeType = "decision"
	NodeSwitch   NodeType = "switch"

	// Deprecated aliases kept for graphs authored before the rename.
	NodeLegacyCondition NodeType = "condition" // use NodeDecision
	NodeLegacyJump      NodeType = "jump"      // use NodeGoto
	NodeLegacyComplete  NodeType = "complete"  // use NodeEnd
)

// Canonical maps deprecated aliases to their replacement type.
func (t NodeType) Canonical() NodeType {
	switch t {
	case NodeLegacyCondition:
		return NodeDecision
	case NodeLegacyJump:
		return NodeGoto
	case NodeLegacyComplete:
		return NodeEnd
	}
	return t
}

// NodeCategory groups node types by runtime behavior.
type NodeCategory string

const (
	CategoryControl     NodeCategory = "control"
	CategoryCheck       NodeCategory = "check"
	CategoryInteractive NodeCategory = "interactive"
	CategoryAuth        NodeCategory = "auth"
	CategoryResolve     NodeCategory = "resolve"
	CategorySession     NodeCategory = "session"
	CategorySideEffect  NodeCategory = "side_effect"
	CategoryBranch      NodeCategory = "branch"
	CategoryUnknown     NodeCategory = "unknown"
)

// Category returns the runtime category for a node type. Deprecated aliases
// categorize as their canonical type.
func (t NodeType) Category() NodeCategory {
	switch t.Canonical() {
	case NodeStart, NodeEnd, NodeGoto, NodeError:
		return CategoryControl
	case NodeCheckSession, NodeCheckAuthLevel, NodeCheckFirstLogin,
		NodeCheckUserAttribute, NodeCheckContext, NodeCheckRisk, NodePolicyCheck:
		return CategoryCheck
	case NodeAuthMethodSelect, NodeIdentifier, NodeProfileInput,
		NodeCustomForm, NodeChallenge, NodeConsent:
		return CategoryInteractive
	case NodeLogin, NodeMFA, NodeRegister:
		return CategoryAuth
	case NodeResolveTenant, NodeResolveOrg, NodeResolvePolicy:
		return CategoryResolve
	case NodeIssueTokens, NodeRefreshSession, NodeRevokeSession,
		NodeBindDevice, NodeLinkAccount:
		return CategorySession
	case NodeRedirect, NodeWebhook, NodeEventEmit, NodeEmailSend,
		NodeSMSSend, NodePushNotify, NodeLog:
		return CategorySideEffect
	case NodeDecision, NodeSwitch:
		return CategoryBranch
	}
	return CategoryUnknown
}

// EdgeType classifies how an edge is taken.
type EdgeType string

const (
	EdgeSuccess     EdgeType = "success"
	EdgeError       EdgeType = "error"
	EdgeConditional EdgeType = "conditional"
)

// ProfileID names the persona a flow targets.
type ProfileID string

const (
	ProfileHumanBasic ProfileID = "human-basic"
	ProfileHumanOrg   ProfileID = "human-org"
	ProfileAIAgent    ProfileID = "ai-agent"
	ProfileIoTDevice  ProfileID = "iot-device"
)

// Position is UI-only layout metadata, ignored by the compiler and runtime.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData carries the node-type-specific configuration blob.
type NodeData struct {
	Config map[string]any `json:"config,omitempty"`
}

// GraphNode is one node of a tenant-authored flow graph.
type GraphNode struct {
	ID       string    `json:"id" validate:"required"`
	Type     NodeType  `json:"type" validate:"required"`
	Data     NodeData  `json:"data"`
	Position *Position `json:"position,omitempty"`
}

// GraphEdge connects two nodes. SourceHandle names which branch or case of
// a decision/switch source node the edge satisfies.
type GraphEdge struct {
	ID           string   `json:"id" validate:"required"`
	Source       string   `json:"source" validate:"required"`
	Target       string   `json:"target" validate:"required"`
	Type         EdgeType `json:"type" validate:"required,oneof=success error conditional"`
	SourceHandle string   `json:"sourceHandle,omitempty"`
}

// GraphDefinition is the uncompiled, admin-authored source of a flow.
type GraphDefinition struct {
	ID          string      `json:"id" validate:"required"`
	FlowVersion int         `json:"flowVersion"`
	Name        string      `json:"name" validate:"required"`
	ProfileID   ProfileID   `json:"profileId" validate:"required"`
	Nodes       []GraphNode `json:"nodes" validate:"required,min=1,dive"`
	Edges       []GraphEdge `json:"edges" validate:"dive"`
}
