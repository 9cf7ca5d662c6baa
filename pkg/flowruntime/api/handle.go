package api

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tenauth/flow-idm/pkg/condition"
	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
	"github.com/tenauth/flow-idm/pkg/flowruntime"
)

// PlanSource resolves the current compiled plan of a flow. Satisfied by
// flowadmin.FlowService.
type PlanSource interface {
	Plan(ctx context.Context, flowID string) (*flowgraph.CompiledPlan, error)
}

// Handle serves the flow execution API: starting a flow and resuming a
// paused session with user input.
type Handle struct {
	plans    PlanSource
	executor *flowruntime.Executor
}

// NewHandle creates the flow runtime handler.
func NewHandle(plans PlanSource, executor *flowruntime.Executor) *Handle {
	return &Handle{
		plans:    plans,
		executor: executor,
	}
}

// Routes mounts the flow execution endpoints.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/flows/{flowID}/start", h.StartFlow)
	r.Post("/flow-sessions/{sessionID}", h.ResumeFlow)
}

// StartRequest carries optional client-supplied context for a new session.
type StartRequest struct {
	Device    map[string]any `json:"device,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// StartResponse pairs the created session ID with the first step outcome.
type StartResponse struct {
	SessionID uuid.UUID                `json:"session_id"`
	Outcome   *flowruntime.StepOutcome `json:"outcome"`
}

// StartFlow creates a session on the flow's current plan and runs it until
// it completes or pauses for input.
func (h *Handle) StartFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := chi.URLParam(r, "flowID")

	plan, err := h.plans.Plan(ctx, flowID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var body StartRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &body); err != nil {
			renderError(w, r, errors.InvalidInput("body", "malformed start request"))
			return
		}
	}

	rc := condition.NewRuntimeContext()
	for k, v := range body.Device {
		rc.Device[k] = v
	}
	for k, v := range body.Variables {
		rc.Variables[k] = v
	}
	rc.Request["ip"] = clientIP(r)
	rc.Request["userAgent"] = r.UserAgent()

	session, outcome, err := h.executor.Start(ctx, plan, flowID, rc)
	if err != nil && outcome == nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, &StartResponse{
		SessionID: session.ID,
		Outcome:   outcome,
	})
}

// ResumeRequest carries the user's input for the node the session paused on.
type ResumeRequest struct {
	FlowID string         `json:"flow_id"`
	Input  map[string]any `json:"input"`
}

// ResumeFlow continues a paused session. The session stays pinned to the
// plan version it started on; if the flow was republished meanwhile the
// session is gone for good and the client must start over.
func (h *Handle) ResumeFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		renderError(w, r, errors.InvalidInput("sessionID", "not a valid session ID"))
		return
	}

	var body ResumeRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		renderError(w, r, errors.InvalidInput("body", "malformed resume request"))
		return
	}
	if body.FlowID == "" {
		renderError(w, r, errors.New(errors.ErrCodeMissingRequired, "flow_id is required"))
		return
	}

	plan, err := h.plans.Plan(ctx, body.FlowID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	input := body.Input
	if input == nil {
		input = map[string]any{}
	}
	outcome, err := h.executor.Resume(ctx, sessionID, plan, input)
	if err != nil && outcome == nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, outcome)
}

// renderError translates runtime sentinel errors and structured errors to
// their HTTP shape.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.ErrCodeInternal
	switch {
	case stderrors.Is(err, flowruntime.ErrPlanInvalidated):
		code = errors.ErrCodeFlowInvalidated
	case stderrors.Is(err, flowruntime.ErrSessionExpired):
		code = errors.ErrCodeSessionExpired
	case stderrors.Is(err, flowruntime.ErrSessionNotResumable):
		code = errors.ErrCodeConflict
	case stderrors.Is(err, flowruntime.ErrSessionNotFound):
		code = errors.ErrCodeNotFound
	default:
		var structured *errors.Error
		if stderrors.As(err, &structured) {
			render.Status(r, structured.HTTPStatusCode())
			render.JSON(w, r, map[string]any{
				"error":   string(structured.Code),
				"message": structured.Message,
			})
			return
		}
		slog.Error("Unhandled flow runtime error", "err", err)
	}
	render.Status(r, errors.MapErrorCodeToHTTPStatus(code))
	render.JSON(w, r, map[string]any{
		"error":   string(code),
		"message": err.Error(),
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
