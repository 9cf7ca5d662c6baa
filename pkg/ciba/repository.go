package ciba

import (
	"context"
	"errors"
	"sync"
)

var ErrRequestNotFound = errors.New("backchannel authentication request not found")

// AuthRequestRepository persists backchannel authentication requests.
type AuthRequestRepository interface {
	Create(ctx context.Context, request *AuthRequest) error
	Get(ctx context.Context, authReqID string) (*AuthRequest, error)
	Update(ctx context.Context, request *AuthRequest) error
	Delete(ctx context.Context, authReqID string) error

	// MarkTokenIssued atomically flips the token_issued flag. It returns
	// true only for the caller that performed the flip, so concurrent
	// pollers cannot both issue tokens.
	MarkTokenIssued(ctx context.Context, authReqID string) (bool, error)
}

// InMemAuthRequestRepository implements the repository using an in-memory map.
type InMemAuthRequestRepository struct {
	requests map[string]*AuthRequest
	mu       sync.Mutex
}

// NewInMemAuthRequestRepository creates a new in-memory repository.
func NewInMemAuthRequestRepository() *InMemAuthRequestRepository {
	return &InMemAuthRequestRepository{
		requests: make(map[string]*AuthRequest),
	}
}

func (r *InMemAuthRequestRepository) Create(ctx context.Context, request *AuthRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[request.AuthReqID]; exists {
		return errors.New("auth_req_id already exists")
	}
	r.requests[request.AuthReqID] = request
	return nil
}

func (r *InMemAuthRequestRepository) Get(ctx context.Context, authReqID string) (*AuthRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, exists := r.requests[authReqID]
	if !exists {
		return nil, ErrRequestNotFound
	}
	clone := *request
	return &clone, nil
}

func (r *InMemAuthRequestRepository) Update(ctx context.Context, request *AuthRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.requests[request.AuthReqID]
	if !exists {
		return ErrRequestNotFound
	}
	// The issuance flag only moves through MarkTokenIssued.
	issued := stored.TokenIssued
	clone := *request
	clone.TokenIssued = issued
	r.requests[request.AuthReqID] = &clone
	return nil
}

func (r *InMemAuthRequestRepository) Delete(ctx context.Context, authReqID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, authReqID)
	return nil
}

func (r *InMemAuthRequestRepository) MarkTokenIssued(ctx context.Context, authReqID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, exists := r.requests[authReqID]
	if !exists {
		return false, ErrRequestNotFound
	}
	if request.TokenIssued {
		return false, nil
	}
	request.TokenIssued = true
	return true, nil
}
