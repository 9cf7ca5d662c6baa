package oauth2client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/tenauth/flow-idm/pkg/errors"
)

// ClientService provides methods for managing OAuth2 clients
type ClientService struct {
	repository ClientRepository
}

// NewClientService creates a new client service with the provided repository
func NewClientService(repository ClientRepository) *ClientService {
	return &ClientService{
		repository: repository,
	}
}

// GetClient retrieves a client by client ID
func (s *ClientService) GetClient(ctx context.Context, clientID string) (*Client, error) {
	return s.repository.GetClient(ctx, clientID)
}

// RegisterClient hashes the provided secret and stores the client.
func (s *ClientService) RegisterClient(ctx context.Context, client *Client, secret string) (*Client, error) {
	if client.ClientID == "" {
		return nil, errors.InvalidInput("client_id", "required")
	}
	if !client.IsPublic() {
		if secret == "" {
			return nil, errors.InvalidInput("client_secret", "required for confidential clients")
		}
		if err := client.SetSecret(secret); err != nil {
			return nil, errors.InternalWrap(err, "failed to hash client secret")
		}
	}
	return s.repository.CreateClient(ctx, client)
}

// Authenticate validates client credentials. Public clients authenticate by
// ID alone; confidential clients must present their secret.
func (s *ClientService) Authenticate(ctx context.Context, clientID, clientSecret string) (*Client, error) {
	client, err := s.repository.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.IsPublic() {
		return client, nil
	}
	if !client.VerifySecret(clientSecret) {
		return nil, errors.New(errors.ErrCodeClientUnauthorized, "invalid client credentials")
	}
	return client, nil
}

// RequireGrant verifies the client is registered for the grant type.
func (s *ClientService) RequireGrant(client *Client, grantType string) error {
	if !client.SupportsGrantType(grantType) {
		return errors.Newf(errors.ErrCodeGrantNotAllowed, "client %s is not registered for grant %s", client.ClientID, grantType)
	}
	return nil
}

// ValidateAuthorizationRequest validates an OAuth2 authorization request
func (s *ClientService) ValidateAuthorizationRequest(ctx context.Context, clientID, redirectURI, responseType, scope string) (*Client, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if !client.ValidateRedirectURI(redirectURI) {
		return nil, errors.InvalidInput("redirect_uri", "not registered for client")
	}
	if !client.ValidateResponseType(responseType) {
		return nil, errors.InvalidInput("response_type", "unsupported: "+responseType)
	}
	if scope != "" {
		requestedScopes := strings.Split(scope, " ")
		if !client.ValidateScope(requestedScopes) {
			return nil, errors.InvalidInput("scope", "exceeds client registration")
		}
	}
	return client, nil
}

// DeleteClient removes a client registration.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	return s.repository.DeleteClient(ctx, clientID)
}

// GenerateClientSecret produces a random secret for a new confidential
// client. The plaintext is returned once; only the hash is stored.
func (s *ClientService) GenerateClientSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.InternalWrap(err, "failed to generate client secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ListClients returns all registered clients (for admin purposes)
func (s *ClientService) ListClients(ctx context.Context) ([]*Client, error) {
	return s.repository.ListClients(ctx)
}
