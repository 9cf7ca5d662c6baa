package flowruntime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tenauth/flow-idm/pkg/condition"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
)

// MaxStepsPerRun bounds a single resume so a mis-authored cyclic graph
// cannot spin the executor forever between client interactions.
const MaxStepsPerRun = 100

var (
	ErrPlanInvalidated     = errors.New("flow session is bound to an invalidated plan version")
	ErrSessionExpired      = errors.New("flow session has expired")
	ErrSessionNotResumable = errors.New("flow session is not awaiting input")
	ErrUnknownNode         = errors.New("current node not present in compiled plan")
	ErrNoTransition        = errors.New("no transition matches the resolved handle")
	ErrTooManySteps        = errors.New("flow exceeded maximum steps per run")
)

// OutcomeStatus classifies what a run produced.
type OutcomeStatus string

const (
	OutcomeCompleted     OutcomeStatus = "completed"
	OutcomeFailed        OutcomeStatus = "failed"
	OutcomeAwaitingInput OutcomeStatus = "awaiting_input"
)

// FlowError is the machine-readable failure surfaced to the HTTP layer.
type FlowError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StepOutcome is the result of driving a session as far as it can go:
// either a terminal result or a request for further user input.
type StepOutcome struct {
	Status        OutcomeStatus      `json:"status"`
	NodeID        string             `json:"node_id"`
	NodeType      flowgraph.NodeType `json:"node_type"`
	Prompt        map[string]any     `json:"prompt,omitempty"`
	Tokens        map[string]string  `json:"tokens,omitempty"`
	ErrorResponse *FlowError         `json:"error,omitempty"`
}

// Executor interprets compiled plans against live sessions.
type Executor struct {
	sessions   SessionRepository
	services   *ServiceDependencies
	sessionTTL time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.sessionTTL = ttl
	}
}

// NewExecutor creates a new flow executor.
func NewExecutor(sessions SessionRepository, services *ServiceDependencies, options ...ExecutorOption) *Executor {
	e := &Executor{
		sessions:   sessions,
		services:   services,
		sessionTTL: DefaultSessionTTL,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Start creates a session at the plan's entry node and runs it until it
// terminates or pauses for input.
func (e *Executor) Start(ctx context.Context, plan *flowgraph.CompiledPlan, flowID string, rc *condition.RuntimeContext) (*Session, *StepOutcome, error) {
	if rc == nil {
		rc = condition.NewRuntimeContext()
	}

	now := time.Now().UTC()
	session := &Session{
		ID:            uuid.New(),
		FlowID:        flowID,
		PlanID:        plan.ID,
		PlanVersion:   plan.Version,
		CurrentNodeID: plan.EntryNodeID,
		Status:        SessionActive,
		Context:       rc,
		CreatedAt:     now,
		ExpiresAt:     now.Add(e.sessionTTL),
	}
	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to create flow session: %w", err)
	}

	outcome, err := e.run(ctx, session, plan, nil)
	return session, outcome, err
}

// Resume continues a paused session with the user-submitted input.
func (e *Executor) Resume(ctx context.Context, sessionID uuid.UUID, plan *flowgraph.CompiledPlan, input map[string]any) (*StepOutcome, error) {
	session, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		_ = e.sessions.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}
	if session.Status != SessionAwaitingInput {
		return nil, ErrSessionNotResumable
	}
	// Sessions are pinned to the plan version they started on. A recompile
	// invalidates every in-flight session of the flow.
	if session.PlanVersion != plan.Version {
		session.Status = SessionFailed
		_ = e.sessions.Update(ctx, session)
		return nil, ErrPlanInvalidated
	}

	session.Status = SessionActive
	return e.run(ctx, session, plan, input)
}

// run drives the session forward until a terminal node, an interactive
// pause, or a fault. The submitted input is consumed by the first node
// that needs it.
func (e *Executor) run(ctx context.Context, session *Session, plan *flowgraph.CompiledPlan, input map[string]any) (*StepOutcome, error) {
	rc := session.Context

	for step := 0; step < MaxStepsPerRun; step++ {
		nodeID := session.CurrentNodeID
		node := plan.Node(nodeID)
		if node == nil {
			return e.fault(ctx, session, nodeID, "", fmt.Errorf("%w: %q", ErrUnknownNode, nodeID))
		}

		switch node.Type.Category() {
		case flowgraph.CategoryControl:
			switch node.Type {
			case flowgraph.NodeStart:
				recordPrevNode(rc, nodeID, node.Type, true, nil)
				next, err := e.successTarget(nodeID, node)
				if err != nil {
					return e.fault(ctx, session, nodeID, "", err)
				}
				session.CurrentNodeID = next

			case flowgraph.NodeEnd:
				session.Status = SessionCompleted
				if err := e.sessions.Update(ctx, session); err != nil {
					return nil, err
				}
				return &StepOutcome{
					Status:   OutcomeCompleted,
					NodeID:   nodeID,
					NodeType: node.Type,
					Tokens:   session.Tokens,
				}, nil

			case flowgraph.NodeError:
				session.Status = SessionFailed
				if err := e.sessions.Update(ctx, session); err != nil {
					return nil, err
				}
				return &StepOutcome{
					Status:        OutcomeFailed,
					NodeID:        nodeID,
					NodeType:      node.Type,
					ErrorResponse: errorFromConfig(node.Config),
				}, nil

			case flowgraph.NodeGoto:
				// Jump directly to the named node, bypassing edge resolution.
				recordPrevNode(rc, nodeID, node.Type, true, map[string]any{"target": node.GotoTarget})
				session.CurrentNodeID = node.GotoTarget
			}

		case flowgraph.CategoryBranch:
			handle := resolveBranchHandle(node, rc)
			tr, ok := plan.FindTransition(nodeID, handle)
			if !ok {
				return e.fault(ctx, session, nodeID, handle, fmt.Errorf("%w: node %q handle %q", ErrNoTransition, nodeID, handle))
			}
			recordPrevNode(rc, nodeID, node.Type, true, map[string]any{"handle": handle})
			session.CurrentNodeID = tr.TargetNodeID

		case flowgraph.CategoryCheck:
			passed := evaluateCheck(node, rc)
			recordPrevNode(rc, nodeID, node.Type, passed, map[string]any{"passed": passed})
			next, err := e.branchTarget(nodeID, node, passed)
			if err != nil {
				return e.fault(ctx, session, nodeID, "", err)
			}
			session.CurrentNodeID = next

		case flowgraph.CategoryInteractive:
			if input == nil {
				return e.pause(ctx, session, nodeID, node)
			}
			approved := applyInteractiveInput(node, rc, input)
			recordPrevNode(rc, nodeID, node.Type, approved, map[string]any{"input": input})
			input = nil
			next, err := e.branchTarget(nodeID, node, approved)
			if err != nil {
				return e.fault(ctx, session, nodeID, "", err)
			}
			session.CurrentNodeID = next

		case flowgraph.CategoryAuth:
			if input == nil {
				return e.pause(ctx, session, nodeID, node)
			}
			verifyErr := e.services.CredentialVerifier.Verify(ctx, node.Type, node.Config, rc, input)
			success := verifyErr == nil
			var result map[string]any
			if verifyErr != nil {
				slog.Warn("Credential verification failed", "node", nodeID, "type", node.Type, "err", verifyErr)
				result = map[string]any{"error": verifyErr.Error()}
			}
			recordPrevNode(rc, nodeID, node.Type, success, result)
			input = nil
			next, err := e.branchTarget(nodeID, node, success)
			if err != nil {
				return e.fault(ctx, session, nodeID, "", err)
			}
			session.CurrentNodeID = next

		case flowgraph.CategorySession:
			if node.Type == flowgraph.NodeIssueTokens {
				tokens, err := e.services.TokenIssuer.IssueTokens(ctx, subjectFromContext(rc), claimsFromConfig(node.Config))
				if err != nil {
					slog.Error("Token issuance failed", "node", nodeID, "err", err)
					recordPrevNode(rc, nodeID, node.Type, false, map[string]any{"error": err.Error()})
					next, ferr := e.branchTarget(nodeID, node, false)
					if ferr != nil {
						return e.fault(ctx, session, nodeID, "", ferr)
					}
					session.CurrentNodeID = next
					continue
				}
				session.Tokens = tokens
				recordPrevNode(rc, nodeID, node.Type, true, nil)
				next, err := e.successTarget(nodeID, node)
				if err != nil {
					return e.fault(ctx, session, nodeID, "", err)
				}
				session.CurrentNodeID = next
				continue
			}
			if err := e.dispatch(ctx, session, nodeID, node); err != nil {
				return nil, err
			}

		case flowgraph.CategoryResolve, flowgraph.CategorySideEffect:
			if node.Type == flowgraph.NodeLog {
				slog.Info("Flow log node", "flowID", session.FlowID, "sessionID", session.ID, "config", node.Config)
				recordPrevNode(rc, nodeID, node.Type, true, nil)
				next, err := e.successTarget(nodeID, node)
				if err != nil {
					return e.fault(ctx, session, nodeID, "", err)
				}
				session.CurrentNodeID = next
				continue
			}
			if err := e.dispatch(ctx, session, nodeID, node); err != nil {
				return nil, err
			}

		default:
			return e.fault(ctx, session, nodeID, "", fmt.Errorf("%w: %q", ErrUnknownNode, node.Type))
		}
	}

	return e.fault(ctx, session, session.CurrentNodeID, "", ErrTooManySteps)
}

// dispatch runs an action node through the ActionDispatcher and advances on
// the success or error edge.
func (e *Executor) dispatch(ctx context.Context, session *Session, nodeID string, node *flowgraph.CompiledNode) error {
	rc := session.Context

	result, dispatchErr := e.services.ActionDispatcher.Dispatch(ctx, node.Type, node.Config, rc)
	success := dispatchErr == nil
	if dispatchErr != nil {
		slog.Warn("Action dispatch failed", "node", nodeID, "type", node.Type, "err", dispatchErr)
		result = map[string]any{"error": dispatchErr.Error()}
	}
	recordPrevNode(rc, nodeID, node.Type, success, result)

	next, err := e.branchTarget(nodeID, node, success)
	if err != nil {
		// Surfaced by run's caller through the failed session.
		_, faultErr := e.fault(ctx, session, nodeID, "", err)
		return faultErr
	}
	session.CurrentNodeID = next
	return nil
}

// pause persists the session as awaiting input and returns the interactive
// node's prompt.
func (e *Executor) pause(ctx context.Context, session *Session, nodeID string, node *flowgraph.CompiledNode) (*StepOutcome, error) {
	session.Status = SessionAwaitingInput
	if err := e.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return &StepOutcome{
		Status:   OutcomeAwaitingInput,
		NodeID:   nodeID,
		NodeType: node.Type,
		Prompt:   node.Config,
	}, nil
}

// fault marks the session failed and surfaces the execution error.
func (e *Executor) fault(ctx context.Context, session *Session, nodeID, handle string, err error) (*StepOutcome, error) {
	slog.Error("Flow execution fault", "sessionID", session.ID, "node", nodeID, "handle", handle, "err", err)
	session.Status = SessionFailed
	_ = e.sessions.Update(ctx, session)
	return &StepOutcome{
		Status:   OutcomeFailed,
		NodeID:   nodeID,
		NodeType: flowgraph.NodeError,
		ErrorResponse: &FlowError{
			Type:    "flow_execution_error",
			Message: err.Error(),
		},
	}, err
}

func (e *Executor) successTarget(nodeID string, node *flowgraph.CompiledNode) (string, error) {
	if node.NextOnSuccess != "" {
		return node.NextOnSuccess, nil
	}
	return "", fmt.Errorf("%w: node %q has no success edge", ErrNoTransition, nodeID)
}

// branchTarget picks the success or error continuation of a non-branching
// node.
func (e *Executor) branchTarget(nodeID string, node *flowgraph.CompiledNode, success bool) (string, error) {
	if success {
		return e.successTarget(nodeID, node)
	}
	if node.NextOnError != "" {
		return node.NextOnError, nil
	}
	return "", fmt.Errorf("%w: node %q has no error edge", ErrNoTransition, nodeID)
}

// resolveBranchHandle evaluates a decision or switch node to the
// sourceHandle of the transition to take.
func resolveBranchHandle(node *flowgraph.CompiledNode, rc *condition.RuntimeContext) string {
	switch {
	case node.DecisionConfig != nil:
		// Branches are priority-sorted at compile time; first match wins.
		for i := range node.DecisionConfig.Branches {
			branch := &node.DecisionConfig.Branches[i]
			if condition.Evaluate(&branch.Condition, rc) {
				return branch.ID
			}
		}
		return node.DecisionConfig.DefaultBranch

	case node.SwitchConfig != nil:
		resolved := condition.GetValueByKey(node.SwitchConfig.SwitchKey, rc)
		if !condition.IsUndefined(resolved) {
			for i := range node.SwitchConfig.Cases {
				c := &node.SwitchConfig.Cases[i]
				for _, v := range c.Values {
					if fmt.Sprint(v) == fmt.Sprint(resolved) {
						return c.ID
					}
				}
			}
		}
		return node.SwitchConfig.DefaultCase
	}
	return ""
}

// evaluateCheck runs a check node's configured condition. A check without a
// condition passes.
func evaluateCheck(node *flowgraph.CompiledNode, rc *condition.RuntimeContext) bool {
	raw, ok := node.Config["condition"]
	if !ok {
		return true
	}
	expr, err := condition.FromAny(raw)
	if err != nil {
		slog.Warn("Malformed check condition", "type", node.Type, "err", err)
		return false
	}
	return condition.Evaluate(expr, rc)
}

// applyInteractiveInput merges submitted form values into the context and
// reports whether the node completed positively. Consent nodes complete
// negatively when the user rejects.
func applyInteractiveInput(node *flowgraph.CompiledNode, rc *condition.RuntimeContext, input map[string]any) bool {
	if rc.Form == nil {
		rc.Form = make(map[string]any)
	}
	for k, v := range input {
		rc.Form[k] = v
	}
	if node.Type == flowgraph.NodeConsent {
		approved, ok := input["approved"].(bool)
		return ok && approved
	}
	return true
}

// recordPrevNode stores the just-completed node's outcome so downstream
// decision and switch conditions can reference it.
func recordPrevNode(rc *condition.RuntimeContext, nodeID string, nodeType flowgraph.NodeType, success bool, result map[string]any) {
	prev := map[string]any{
		"id":      nodeID,
		"type":    string(nodeType),
		"success": success,
	}
	if result != nil {
		prev["result"] = result
	}
	rc.PrevNode = prev
}

func subjectFromContext(rc *condition.RuntimeContext) string {
	for _, key := range []string{"id", "sub", "email"} {
		if v, ok := rc.User[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func claimsFromConfig(config map[string]any) map[string]any {
	if claims, ok := config["extraClaims"].(map[string]any); ok {
		return claims
	}
	return nil
}

func errorFromConfig(config map[string]any) *FlowError {
	fe := &FlowError{Type: "flow_failed", Message: "Authentication flow failed"}
	if config == nil {
		return fe
	}
	if t, ok := config["error"].(string); ok && t != "" {
		fe.Type = t
	}
	if m, ok := config["message"].(string); ok && m != "" {
		fe.Message = m
	}
	return fe
}
