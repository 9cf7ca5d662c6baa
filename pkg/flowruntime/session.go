package flowruntime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tenauth/flow-idm/pkg/condition"
)

// SessionStatus tracks where a flow session is in its lifecycle.
type SessionStatus string

const (
	SessionActive        SessionStatus = "active"
	SessionAwaitingInput SessionStatus = "awaiting_input"
	SessionCompleted     SessionStatus = "completed"
	SessionFailed        SessionStatus = "failed"
)

// DefaultSessionTTL bounds how long a stalled session awaits the next
// client interaction.
const DefaultSessionTTL = 15 * time.Minute

// Session is the persisted state of one authentication attempt walking a
// compiled plan.
type Session struct {
	ID            uuid.UUID                 `json:"id"`
	FlowID        string                    `json:"flow_id"`
	PlanID        string                    `json:"plan_id"`
	PlanVersion   string                    `json:"plan_version"`
	CurrentNodeID string                    `json:"current_node_id"`
	Status        SessionStatus             `json:"status"`
	Context       *condition.RuntimeContext `json:"context"`
	Tokens        map[string]string         `json:"tokens,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	ExpiresAt     time.Time                 `json:"expires_at"`
}

// IsExpired reports whether the session's TTL has elapsed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

var ErrSessionNotFound = errors.New("flow session not found")

// SessionRepository persists flow sessions between round-trips.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Update(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// InMemSessionRepository implements SessionRepository using an in-memory map.
type InMemSessionRepository struct {
	sessions map[uuid.UUID]*Session
	mu       sync.Mutex
}

// NewInMemSessionRepository creates a new in-memory session repository.
func NewInMemSessionRepository() *InMemSessionRepository {
	return &InMemSessionRepository{
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (r *InMemSessionRepository) Create(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *InMemSessionRepository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, exists := r.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (r *InMemSessionRepository) Update(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.ID]; !exists {
		return ErrSessionNotFound
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *InMemSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}
