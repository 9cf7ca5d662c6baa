package flowadmin

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrFlowNotFound = errors.New("flow not found")

// FlowRepository persists flows keyed by definition ID.
type FlowRepository interface {
	Create(ctx context.Context, flow *Flow) error
	Get(ctx context.Context, flowID string) (*Flow, error)
	Update(ctx context.Context, flow *Flow) error
	Delete(ctx context.Context, flowID string) error
	List(ctx context.Context) ([]*Flow, error)
}

// InMemFlowRepository implements FlowRepository using an in-memory map.
type InMemFlowRepository struct {
	flows map[string]*Flow
	mu    sync.Mutex
}

// NewInMemFlowRepository creates a new in-memory flow repository.
func NewInMemFlowRepository() *InMemFlowRepository {
	return &InMemFlowRepository{
		flows: make(map[string]*Flow),
	}
}

func (r *InMemFlowRepository) Create(ctx context.Context, flow *Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flows[flow.Definition.ID]; exists {
		return errors.New("flow already exists")
	}
	r.flows[flow.Definition.ID] = flow
	return nil
}

func (r *InMemFlowRepository) Get(ctx context.Context, flowID string) (*Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flow, exists := r.flows[flowID]
	if !exists {
		return nil, ErrFlowNotFound
	}
	return flow, nil
}

func (r *InMemFlowRepository) Update(ctx context.Context, flow *Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flows[flow.Definition.ID]; !exists {
		return ErrFlowNotFound
	}
	r.flows[flow.Definition.ID] = flow
	return nil
}

func (r *InMemFlowRepository) Delete(ctx context.Context, flowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flows[flowID]; !exists {
		return ErrFlowNotFound
	}
	delete(r.flows, flowID)
	return nil
}

func (r *InMemFlowRepository) List(ctx context.Context) ([]*Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flows := make([]*Flow, 0, len(r.flows))
	for _, flow := range r.flows {
		flows = append(flows, flow)
	}
	sort.Slice(flows, func(i, j int) bool {
		return flows[i].Definition.ID < flows[j].Definition.ID
	})
	return flows, nil
}
