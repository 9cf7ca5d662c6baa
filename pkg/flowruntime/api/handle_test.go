package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenauth/flow-idm/pkg/condition"
	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
	"github.com/tenauth/flow-idm/pkg/flowruntime"
)

type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, nodeType flowgraph.NodeType, config map[string]any, rc *condition.RuntimeContext, input map[string]any) error {
	return nil
}

type stubIssuer struct{}

func (stubIssuer) IssueTokens(ctx context.Context, subject string, extraClaims map[string]any) (map[string]string, error) {
	return map[string]string{"access_token": "at-" + subject}, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, nodeType flowgraph.NodeType, config map[string]any, rc *condition.RuntimeContext) (map[string]any, error) {
	return nil, nil
}

type stubPlanSource struct {
	plans map[string]*flowgraph.CompiledPlan
}

func (s *stubPlanSource) Plan(ctx context.Context, flowID string) (*flowgraph.CompiledPlan, error) {
	plan, ok := s.plans[flowID]
	if !ok {
		return nil, errors.New(errors.ErrCodeFlowNotFound, "flow not found: "+flowID)
	}
	return plan, nil
}

func loginPlan(t *testing.T) *flowgraph.CompiledPlan {
	t.Helper()
	plan, err := flowgraph.Compile(&flowgraph.GraphDefinition{
		ID:        "login-basic",
		Name:      "Basic login",
		ProfileID: flowgraph.ProfileHumanBasic,
		Nodes: []flowgraph.GraphNode{
			{ID: "start", Type: flowgraph.NodeStart},
			{ID: "login", Type: flowgraph.NodeLogin},
			{ID: "done", Type: flowgraph.NodeEnd},
		},
		Edges: []flowgraph.GraphEdge{
			{ID: "e1", Source: "start", Target: "login", Type: flowgraph.EdgeSuccess},
			{ID: "e2", Source: "login", Target: "done", Type: flowgraph.EdgeSuccess},
		},
	})
	require.NoError(t, err)
	return plan
}

func newTestRouter(t *testing.T, plans map[string]*flowgraph.CompiledPlan) chi.Router {
	t.Helper()
	executor := flowruntime.NewExecutor(flowruntime.NewInMemSessionRepository(), &flowruntime.ServiceDependencies{
		CredentialVerifier: stubVerifier{},
		TokenIssuer:        stubIssuer{},
		ActionDispatcher:   stubDispatcher{},
	})
	handle := NewHandle(&stubPlanSource{plans: plans}, executor)
	router := chi.NewRouter()
	handle.Routes(router)
	return router
}

func postJSON(t *testing.T, router chi.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestStartFlowPausesAtLogin(t *testing.T) {
	router := newTestRouter(t, map[string]*flowgraph.CompiledPlan{"login-basic": loginPlan(t)})

	recorder := postJSON(t, router, "/flows/login-basic/start", StartRequest{
		Device: map[string]any{"platform": "web"},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var response StartResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.NotEqual(t, "", response.SessionID.String())
	require.NotNil(t, response.Outcome)
	assert.Equal(t, flowruntime.OutcomeAwaitingInput, response.Outcome.Status)
	assert.Equal(t, "login", response.Outcome.NodeID)
}

func TestResumeFlowCompletesLogin(t *testing.T) {
	plans := map[string]*flowgraph.CompiledPlan{"login-basic": loginPlan(t)}
	router := newTestRouter(t, plans)

	recorder := postJSON(t, router, "/flows/login-basic/start", StartRequest{})
	require.Equal(t, http.StatusOK, recorder.Code)
	var started StartResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &started))

	recorder = postJSON(t, router, "/flow-sessions/"+started.SessionID.String(), ResumeRequest{
		FlowID: "login-basic",
		Input:  map[string]any{"username": "alice", "password": "pw"},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var outcome flowruntime.StepOutcome
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &outcome))
	assert.Equal(t, flowruntime.OutcomeCompleted, outcome.Status)
}

func TestResumeFlowRejectsRepublishedPlan(t *testing.T) {
	plans := map[string]*flowgraph.CompiledPlan{"login-basic": loginPlan(t)}
	router := newTestRouter(t, plans)

	recorder := postJSON(t, router, "/flows/login-basic/start", StartRequest{})
	require.Equal(t, http.StatusOK, recorder.Code)
	var started StartResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &started))

	// Republishing mints a fresh plan version.
	plans["login-basic"] = loginPlan(t)

	recorder = postJSON(t, router, "/flow-sessions/"+started.SessionID.String(), ResumeRequest{
		FlowID: "login-basic",
		Input:  map[string]any{"username": "alice"},
	})
	assert.Equal(t, http.StatusGone, recorder.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "FLOW_PLAN_INVALIDATED", body["error"])
}

func TestResumeFlowRejectsMalformedSessionID(t *testing.T) {
	router := newTestRouter(t, map[string]*flowgraph.CompiledPlan{"login-basic": loginPlan(t)})

	recorder := postJSON(t, router, "/flow-sessions/not-a-uuid", ResumeRequest{FlowID: "login-basic"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
