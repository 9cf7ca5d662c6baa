package oauth2client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenauth/flow-idm/pkg/errors"
)

func newTestService(t *testing.T) *ClientService {
	t.Helper()
	return NewClientService(NewInMemClientRepository())
}

func TestRegisterAndAuthenticateConfidentialClient(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	client := &Client{
		ClientID:   "web-app",
		Name:       "Web App",
		GrantTypes: []string{GrantAuthorizationCode, GrantRefreshToken},
		Scopes:     []string{"openid", "profile"},
		ClientType: "confidential",
	}
	created, err := service.RegisterClient(ctx, client, "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, created.SecretHash)
	assert.NotEqual(t, "s3cret", created.SecretHash)

	authed, err := service.Authenticate(ctx, "web-app", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "web-app", authed.ClientID)

	_, err = service.Authenticate(ctx, "web-app", "wrong")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeClientUnauthorized))
}

func TestAuthenticatePublicClientWithoutSecret(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.RegisterClient(ctx, &Client{
		ClientID:   "tv-app",
		GrantTypes: []string{GrantDeviceCode},
		ClientType: "public",
	}, "")
	require.NoError(t, err)

	authed, err := service.Authenticate(ctx, "tv-app", "")
	require.NoError(t, err)
	assert.True(t, authed.IsPublic())
}

func TestRequireGrant(t *testing.T) {
	service := newTestService(t)

	client := &Client{
		ClientID:   "ciba-app",
		GrantTypes: []string{GrantCIBA},
	}
	assert.NoError(t, service.RequireGrant(client, GrantCIBA))

	err := service.RequireGrant(client, GrantDeviceCode)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGrantNotAllowed))
}

func TestSupportsDeliveryMode(t *testing.T) {
	pollOnly := &Client{ClientID: "a"}
	assert.True(t, pollOnly.SupportsDeliveryMode(DeliveryPoll))
	assert.False(t, pollOnly.SupportsDeliveryMode(DeliveryPing))

	ping := &Client{ClientID: "b", BackchannelDeliveryMode: DeliveryPing}
	assert.True(t, ping.SupportsDeliveryMode(DeliveryPing))
	assert.False(t, ping.SupportsDeliveryMode(DeliveryPoll))
}

func TestRepositoryLifecycle(t *testing.T) {
	repo := NewInMemClientRepository()
	ctx := context.Background()

	_, err := repo.CreateClient(ctx, &Client{ClientID: "c1", GrantTypes: []string{GrantAuthorizationCode}})
	require.NoError(t, err)

	_, err = repo.CreateClient(ctx, &Client{ClientID: "c1"})
	require.Error(t, err)

	exists, err := repo.ClientExists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, exists)

	clients, err := repo.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)

	require.NoError(t, repo.DeleteClient(ctx, "c1"))
	_, err = repo.GetClient(ctx, "c1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeClientNotFound))
}

func TestRepositoryClonesStoredClient(t *testing.T) {
	repo := NewInMemClientRepository()
	ctx := context.Background()

	source := &Client{ClientID: "c1", Scopes: []string{"openid"}}
	_, err := repo.CreateClient(ctx, source)
	require.NoError(t, err)

	// Mutating the caller's copy must not leak into the repository.
	source.Scopes[0] = "mutated"
	stored, err := repo.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"openid"}, stored.Scopes)
}
