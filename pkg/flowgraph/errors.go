package flowgraph

import "fmt"

// CompileErrorCode identifies a class of graph validation failure.
type CompileErrorCode string

const (
	ErrCodeEmptyGraph        CompileErrorCode = "EMPTY_GRAPH"
	ErrCodeDuplicateNodeID   CompileErrorCode = "DUPLICATE_NODE_ID"
	ErrCodeUnknownNodeType   CompileErrorCode = "UNKNOWN_NODE_TYPE"
	ErrCodeNoStartNode       CompileErrorCode = "NO_START_NODE"
	ErrCodeMultipleStart     CompileErrorCode = "MULTIPLE_START_NODES"
	ErrCodeStartHasInbound   CompileErrorCode = "START_HAS_INBOUND_EDGE"
	ErrCodeNoEndNode         CompileErrorCode = "NO_END_NODE"
	ErrCodeDanglingEdge      CompileErrorCode = "DANGLING_EDGE"
	ErrCodeDuplicateEdge     CompileErrorCode = "DUPLICATE_EDGE_TYPE"
	ErrCodeInvalidConfig     CompileErrorCode = "INVALID_NODE_CONFIG"
	ErrCodeUnboundBranch     CompileErrorCode = "UNBOUND_BRANCH"
	ErrCodeUnboundCase       CompileErrorCode = "UNBOUND_CASE"
	ErrCodeConditionTooDeep  CompileErrorCode = "CONDITION_TOO_DEEP"
	ErrCodeGotoTargetMissing CompileErrorCode = "GOTO_TARGET_MISSING"
)

// CompileError reports a graph invariant violation. Compilation fails on
// the first violation found; nothing is partially applied.
type CompileError struct {
	Code    CompileErrorCode
	Message string
	NodeID  string
	EdgeID  string
}

func (e *CompileError) Error() string {
	switch {
	case e.NodeID != "":
		return fmt.Sprintf("compile error [%s] node %q: %s", e.Code, e.NodeID, e.Message)
	case e.EdgeID != "":
		return fmt.Sprintf("compile error [%s] edge %q: %s", e.Code, e.EdgeID, e.Message)
	}
	return fmt.Sprintf("compile error [%s]: %s", e.Code, e.Message)
}

func nodeErr(code CompileErrorCode, nodeID, format string, args ...any) *CompileError {
	return &CompileError{Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)}
}

func edgeErr(code CompileErrorCode, edgeID, format string, args ...any) *CompileError {
	return &CompileError{Code: code, EdgeID: edgeID, Message: fmt.Sprintf(format, args...)}
}

func graphErr(code CompileErrorCode, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Message: fmt.Sprintf(format, args...)}
}
