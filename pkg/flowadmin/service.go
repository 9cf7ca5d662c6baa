package flowadmin

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/flowgraph"
)

// FlowService validates, compiles, and stores flow graphs.
type FlowService struct {
	repository FlowRepository
	validate   *validator.Validate
}

// NewFlowService creates a new flow administration service.
func NewFlowService(repository FlowRepository) *FlowService {
	return &FlowService{
		repository: repository,
		validate:   validator.New(),
	}
}

// CreateFlow validates and compiles the definition, then stores it as
// version 1. Nothing is stored when compilation fails.
func (s *FlowService) CreateFlow(ctx context.Context, definition *flowgraph.GraphDefinition) (*Flow, error) {
	if err := s.validate.Struct(definition); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFailed, "flow definition failed validation")
	}

	definition.FlowVersion = 1
	plan, err := flowgraph.Compile(definition)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFlowCompile, "flow graph failed to compile")
	}

	now := time.Now().UTC()
	flow := &Flow{
		Definition: *definition,
		Plan:       plan,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repository.Create(ctx, flow); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAlreadyExists, "flow already exists")
	}

	slog.Info("Flow created", "flowID", definition.ID, "planVersion", plan.Version, "nodes", len(definition.Nodes))
	return flow, nil
}

// UpdateFlow recompiles the definition and replaces the stored flow. The
// flow version is bumped and a fresh plan version is minted, which
// invalidates every session pinned to the previous plan. A definition that
// fails to compile leaves the stored flow untouched.
func (s *FlowService) UpdateFlow(ctx context.Context, definition *flowgraph.GraphDefinition) (*Flow, error) {
	if err := s.validate.Struct(definition); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidationFailed, "flow definition failed validation")
	}

	existing, err := s.repository.Get(ctx, definition.ID)
	if err != nil {
		return nil, errors.NotFound("flow", definition.ID)
	}

	definition.FlowVersion = existing.Definition.FlowVersion + 1
	plan, err := flowgraph.Compile(definition)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFlowCompile, "flow graph failed to compile")
	}

	flow := &Flow{
		Definition: *definition,
		Plan:       plan,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.repository.Update(ctx, flow); err != nil {
		return nil, errors.InternalWrap(err, "failed to store updated flow")
	}

	slog.Info("Flow updated", "flowID", definition.ID, "flowVersion", definition.FlowVersion, "planVersion", plan.Version)
	return flow, nil
}

// GetFlow returns a stored flow.
func (s *FlowService) GetFlow(ctx context.Context, flowID string) (*Flow, error) {
	flow, err := s.repository.Get(ctx, flowID)
	if err != nil {
		if stderrors.Is(err, ErrFlowNotFound) {
			return nil, errors.New(errors.ErrCodeFlowNotFound, "flow not found: "+flowID)
		}
		return nil, errors.InternalWrap(err, "failed to load flow")
	}
	return flow, nil
}

// Plan returns the current compiled plan of a flow. Implements the plan
// source used by the runtime HTTP layer.
func (s *FlowService) Plan(ctx context.Context, flowID string) (*flowgraph.CompiledPlan, error) {
	flow, err := s.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return flow.Plan, nil
}

// ListFlows returns all stored flows, optionally filtered by profile.
func (s *FlowService) ListFlows(ctx context.Context, profileID flowgraph.ProfileID) ([]*Flow, error) {
	flows, err := s.repository.List(ctx)
	if err != nil {
		return nil, errors.InternalWrap(err, "failed to list flows")
	}
	if profileID == "" {
		return flows, nil
	}
	filtered := make([]*Flow, 0, len(flows))
	for _, flow := range flows {
		if flow.Definition.ProfileID == profileID {
			filtered = append(filtered, flow)
		}
	}
	return filtered, nil
}

// DeleteFlow removes a stored flow.
func (s *FlowService) DeleteFlow(ctx context.Context, flowID string) error {
	if err := s.repository.Delete(ctx, flowID); err != nil {
		if stderrors.Is(err, ErrFlowNotFound) {
			return errors.New(errors.ErrCodeFlowNotFound, "flow not found: "+flowID)
		}
		return errors.InternalWrap(err, "failed to delete flow")
	}
	slog.Info("Flow deleted", "flowID", flowID)
	return nil
}
