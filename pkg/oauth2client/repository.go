package oauth2client

import (
	"context"
	"sync"
	"time"

	"github.com/tenauth/flow-idm/pkg/errors"
)

// ClientRepository defines the interface for OAuth2 client data access operations
type ClientRepository interface {
	// GetClient retrieves an OAuth2 client by client ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// CreateClient creates a new OAuth2 client and returns the created client
	CreateClient(ctx context.Context, client *Client) (*Client, error)

	// UpdateClient updates an existing OAuth2 client and returns the updated client
	UpdateClient(ctx context.Context, client *Client) (*Client, error)

	// DeleteClient removes an OAuth2 client by client ID
	DeleteClient(ctx context.Context, clientID string) error

	// ListClients returns all registered OAuth2 clients
	ListClients(ctx context.Context) ([]*Client, error)

	// ClientExists checks if a client with the given ID exists
	ClientExists(ctx context.Context, clientID string) (bool, error)
}

// clientEntity wraps a client with storage metadata.
type clientEntity struct {
	*Client
	CreatedAt time.Time
	UpdatedAt time.Time
	IsActive  bool
}

// InMemClientRepository implements ClientRepository using in-memory storage
type InMemClientRepository struct {
	clients map[string]*clientEntity
	mutex   sync.RWMutex
}

// NewInMemClientRepository creates a new in-memory OAuth2 client repository.
// Starts empty; clients are added through the service layer.
func NewInMemClientRepository() *InMemClientRepository {
	return &InMemClientRepository{
		clients: make(map[string]*clientEntity),
	}
}

// GetClient retrieves an OAuth2 client by client ID
func (r *InMemClientRepository) GetClient(ctx context.Context, clientID string) (*Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entity, exists := r.clients[clientID]
	if !exists || !entity.IsActive {
		return nil, errors.New(errors.ErrCodeClientNotFound, "client not found: "+clientID)
	}
	return entity.Client, nil
}

// CreateClient creates a new OAuth2 client and returns the created client
func (r *InMemClientRepository) CreateClient(ctx context.Context, client *Client) (*Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[client.ClientID]; exists {
		return nil, errors.AlreadyExists("client", client.ClientID)
	}

	now := time.Now()
	entity := &clientEntity{
		Client:    cloneClient(client),
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	r.clients[client.ClientID] = entity
	return entity.Client, nil
}

// UpdateClient updates an existing OAuth2 client and returns the updated client
func (r *InMemClientRepository) UpdateClient(ctx context.Context, client *Client) (*Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entity, exists := r.clients[client.ClientID]
	if !exists {
		return nil, errors.New(errors.ErrCodeClientNotFound, "client not found: "+client.ClientID)
	}

	entity.Client = cloneClient(client)
	entity.UpdatedAt = time.Now()
	return entity.Client, nil
}

// DeleteClient removes an OAuth2 client by client ID
func (r *InMemClientRepository) DeleteClient(ctx context.Context, clientID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[clientID]; !exists {
		return errors.New(errors.ErrCodeClientNotFound, "client not found: "+clientID)
	}
	delete(r.clients, clientID)
	return nil
}

// ListClients returns all registered OAuth2 clients
func (r *InMemClientRepository) ListClients(ctx context.Context) ([]*Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, entity := range r.clients {
		if entity.IsActive {
			clients = append(clients, entity.Client)
		}
	}
	return clients, nil
}

// ClientExists checks if a client with the given ID exists
func (r *InMemClientRepository) ClientExists(ctx context.Context, clientID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entity, exists := r.clients[clientID]
	return exists && entity.IsActive, nil
}

// cloneClient deep-copies a client so repository state cannot be mutated
// through a caller-held pointer.
func cloneClient(client *Client) *Client {
	clone := *client
	clone.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	clone.ResponseTypes = append([]string(nil), client.ResponseTypes...)
	clone.GrantTypes = append([]string(nil), client.GrantTypes...)
	clone.Scopes = append([]string(nil), client.Scopes...)
	return &clone
}
