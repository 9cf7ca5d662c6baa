package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/flowadmin"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
)

// Handle serves the flow administration API.
type Handle struct {
	flowService *flowadmin.FlowService
}

// NewHandle creates the flow admin handler.
func NewHandle(flowService *flowadmin.FlowService) *Handle {
	return &Handle{flowService: flowService}
}

// Routes mounts the flow CRUD endpoints.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/flows", h.CreateFlow)
	r.Get("/flows", h.ListFlows)
	r.Get("/flows/{flowID}", h.GetFlow)
	r.Put("/flows/{flowID}", h.UpdateFlow)
	r.Delete("/flows/{flowID}", h.DeleteFlow)
	r.Get("/flows/{flowID}/plan", h.GetPlan)
}

// CreateFlow stores a new flow graph. The graph is compiled as part of the
// save; a graph that does not compile is rejected with the compiler's
// diagnostics.
func (h *Handle) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var definition flowgraph.GraphDefinition
	if err := render.DecodeJSON(r.Body, &definition); err != nil {
		renderError(w, r, errors.InvalidInput("body", "malformed flow definition"))
		return
	}

	flow, err := h.flowService.CreateFlow(r.Context(), &definition)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, flow)
}

// UpdateFlow replaces a stored flow graph and recompiles it.
func (h *Handle) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	var definition flowgraph.GraphDefinition
	if err := render.DecodeJSON(r.Body, &definition); err != nil {
		renderError(w, r, errors.InvalidInput("body", "malformed flow definition"))
		return
	}
	definition.ID = chi.URLParam(r, "flowID")

	flow, err := h.flowService.UpdateFlow(r.Context(), &definition)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, flow)
}

// GetFlow returns a stored flow with its compiled plan.
func (h *Handle) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.flowService.GetFlow(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, flow)
}

// GetPlan returns only the compiled plan of a flow.
func (h *Handle) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.flowService.Plan(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, plan)
}

// ListFlows returns stored flows, optionally filtered with ?profile_id=.
func (h *Handle) ListFlows(w http.ResponseWriter, r *http.Request) {
	profileID := flowgraph.ProfileID(r.URL.Query().Get("profile_id"))
	flows, err := h.flowService.ListFlows(r.Context(), profileID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, flows)
}

// DeleteFlow removes a stored flow.
func (h *Handle) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.flowService.DeleteFlow(r.Context(), chi.URLParam(r, "flowID")); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		body := map[string]any{
			"error":   string(structured.Code),
			"message": structured.Message,
		}
		// Compile failures carry the compiler's diagnostics for the editor.
		var compileErr *flowgraph.CompileError
		if stderrors.As(structured.Err, &compileErr) {
			body["details"] = compileErr
		}
		render.Status(r, structured.HTTPStatusCode())
		render.JSON(w, r, body)
		return
	}
	slog.Error("Unhandled flow admin error", "err", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"error": "internal_error"})
}
