package ciba

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
	"github.com/tenauth/flow-idm/pkg/tokengenerator"
)

type MockNotifier struct {
	SendPingFunc   func(ctx context.Context, endpoint, notificationToken, authReqID string) error
	SendTokensFunc func(ctx context.Context, endpoint, notificationToken, authReqID string, tokens *tokengenerator.TokenSet) error

	PingCalls   int
	TokensCalls int
}

func (m *MockNotifier) SendPing(ctx context.Context, endpoint, notificationToken, authReqID string) error {
	m.PingCalls++
	if m.SendPingFunc != nil {
		return m.SendPingFunc(ctx, endpoint, notificationToken, authReqID)
	}
	return nil
}

func (m *MockNotifier) SendTokens(ctx context.Context, endpoint, notificationToken, authReqID string, tokens *tokengenerator.TokenSet) error {
	m.TokensCalls++
	if m.SendTokensFunc != nil {
		return m.SendTokensFunc(ctx, endpoint, notificationToken, authReqID, tokens)
	}
	return nil
}

type MockClientDirectory struct {
	GetClientFunc func(ctx context.Context, clientID string) (*oauth2client.Client, error)
}

func (m *MockClientDirectory) GetClient(ctx context.Context, clientID string) (*oauth2client.Client, error) {
	if m.GetClientFunc != nil {
		return m.GetClientFunc(ctx, clientID)
	}
	return nil, errors.NotFound("client", clientID)
}

func newTestService(t *testing.T, notifier *MockNotifier, clients []*oauth2client.Client, options ...CibaServiceOption) *CibaService {
	t.Helper()
	generator := tokengenerator.NewJwtTokenGenerator("test-secret", "https://idp.test", "test-audience")
	issuer := tokengenerator.NewTokenSetIssuer(tokengenerator.NewJwtService(tokengenerator.WithDefaultTokenGenerator(generator)))
	resolver := UserResolverFunc(func(ctx context.Context, hint UserHint) (string, error) {
		if !strings.HasPrefix(hint.Value, "user:") {
			return "", errors.NotFound("user", hint.Value)
		}
		return strings.TrimPrefix(hint.Value, "user:"), nil
	})
	directory := &MockClientDirectory{
		GetClientFunc: func(ctx context.Context, clientID string) (*oauth2client.Client, error) {
			for _, client := range clients {
				if client.ClientID == clientID {
					return client, nil
				}
			}
			return nil, errors.NotFound("client", clientID)
		},
	}
	return NewCibaService(NewInMemAuthRequestRepository(), issuer, resolver, notifier, directory, options...)
}

func pollClient() *oauth2client.Client {
	return &oauth2client.Client{
		ClientID:   "consumption-app",
		GrantTypes: []string{oauth2client.GrantCIBA},
	}
}

func pingClient() *oauth2client.Client {
	return &oauth2client.Client{
		ClientID:                        "ping-app",
		GrantTypes:                      []string{oauth2client.GrantCIBA},
		BackchannelDeliveryMode:         oauth2client.DeliveryPing,
		BackchannelNotificationEndpoint: "https://client.test/cb",
	}
}

func pushClient() *oauth2client.Client {
	return &oauth2client.Client{
		ClientID:                        "push-app",
		GrantTypes:                      []string{oauth2client.GrantCIBA},
		BackchannelDeliveryMode:         oauth2client.DeliveryPush,
		BackchannelNotificationEndpoint: "https://client.test/cb",
	}
}

func assertProtocolCode(t *testing.T, err error, code string) *errors.ProtocolError {
	t.Helper()
	require.Error(t, err)
	protoErr, ok := err.(*errors.ProtocolError)
	require.True(t, ok, "expected protocol error, got %T: %v", err, err)
	assert.Equal(t, code, protoErr.Code)
	return protoErr
}

func TestDetermineDeliveryMode(t *testing.T) {
	assert.Equal(t, oauth2client.DeliveryPoll, DetermineDeliveryMode(pollClient(), ""))
	assert.Equal(t, oauth2client.DeliveryPing, DetermineDeliveryMode(pingClient(), "nt-1"))
	assert.Equal(t, oauth2client.DeliveryPush, DetermineDeliveryMode(pushClient(), "nt-1"))

	// Notified modes need both a registered endpoint and a per-request
	// token; anything less falls back to poll.
	assert.Equal(t, oauth2client.DeliveryPoll, DetermineDeliveryMode(pingClient(), ""))
	noEndpoint := pushClient()
	noEndpoint.BackchannelNotificationEndpoint = ""
	assert.Equal(t, oauth2client.DeliveryPoll, DetermineDeliveryMode(noEndpoint, "nt-1"))
}

func TestAuthorize(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	response, err := service.Authorize(context.Background(), pollClient(), &BackchannelAuthRequest{
		Scope:     "openid",
		LoginHint: "user:alice",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, response.AuthReqID)
	assert.Equal(t, int64(300), response.ExpiresIn)
	assert.Equal(t, int64(5), response.Interval)
}

func TestAuthorizeRejectsUnregisteredGrant(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)
	client := &oauth2client.Client{ClientID: "web", GrantTypes: []string{oauth2client.GrantAuthorizationCode}}

	_, err := service.Authorize(context.Background(), client, &BackchannelAuthRequest{LoginHint: "user:alice"})
	assertProtocolCode(t, err, errors.ProtoUnauthorizedClient)
}

func TestAuthorizeRequiresExactlyOneHint(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	_, err := service.Authorize(context.Background(), pollClient(), &BackchannelAuthRequest{})
	assertProtocolCode(t, err, errors.ProtoInvalidRequest)

	_, err = service.Authorize(context.Background(), pollClient(), &BackchannelAuthRequest{
		LoginHint:   "user:alice",
		IDTokenHint: "user:alice",
	})
	assertProtocolCode(t, err, errors.ProtoInvalidRequest)
}

func TestAuthorizeResolvesEachHintKind(t *testing.T) {
	var gotKinds []HintKind
	resolver := UserResolverFunc(func(ctx context.Context, hint UserHint) (string, error) {
		gotKinds = append(gotKinds, hint.Kind)
		return "subject-1", nil
	})
	generator := tokengenerator.NewJwtTokenGenerator("test-secret", "https://idp.test", "test-audience")
	issuer := tokengenerator.NewTokenSetIssuer(tokengenerator.NewJwtService(tokengenerator.WithDefaultTokenGenerator(generator)))
	service := NewCibaService(NewInMemAuthRequestRepository(), issuer, resolver, &MockNotifier{}, &MockClientDirectory{})

	for _, request := range []*BackchannelAuthRequest{
		{LoginHint: "alice@example.com"},
		{LoginHintToken: "opaque-hint-token"},
		{IDTokenHint: "previously-issued-id-token"},
	} {
		_, err := service.Authorize(context.Background(), pollClient(), request)
		require.NoError(t, err)
	}
	assert.Equal(t, []HintKind{HintLogin, HintLoginToken, HintIDToken}, gotKinds)
}

func TestAuthorizeRequiresOpenIDScope(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	_, err := service.Authorize(context.Background(), pollClient(), &BackchannelAuthRequest{
		Scope:     "profile email",
		LoginHint: "user:alice",
	})
	assertProtocolCode(t, err, errors.ProtoInvalidScope)
}

func TestAuthorizeRejectsUnknownUser(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	_, err := service.Authorize(context.Background(), pollClient(), &BackchannelAuthRequest{LoginHint: "nobody"})
	assertProtocolCode(t, err, errors.ProtoUnknownUserID)
}

func TestAuthorizeRejectsOversizedBindingMessage(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	_, err := service.Authorize(context.Background(), pollClient(), &BackchannelAuthRequest{
		LoginHint:      "user:alice",
		BindingMessage: strings.Repeat("x", MaxBindingMessageLength+1),
	})
	assertProtocolCode(t, err, errors.ProtoInvalidBindingMessage)
}

func TestAuthorizePingWithoutTokenFallsBackToPoll(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)
	ctx := context.Background()

	response, err := service.Authorize(ctx, pingClient(), &BackchannelAuthRequest{LoginHint: "user:alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), response.Interval)

	request, err := service.Get(ctx, response.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, oauth2client.DeliveryPoll, request.DeliveryMode)
}

func TestAuthorizePersistsUserCodeAndACRValues(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)
	ctx := context.Background()

	response, err := service.Authorize(ctx, pollClient(), &BackchannelAuthRequest{
		LoginHint: "user:alice",
		UserCode:  "4721",
		ACRValues: "urn:mace:incommon:iap:silver",
	})
	require.NoError(t, err)

	request, err := service.Get(ctx, response.AuthReqID)
	require.NoError(t, err)
	assert.Equal(t, "4721", request.UserCode)
	assert.Equal(t, "urn:mace:incommon:iap:silver", request.ACRValues)
}

func TestAuthorizeHonorsRequestedExpiry(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	response, err := service.Authorize(context.Background(), pollClient(), &BackchannelAuthRequest{
		LoginHint:       "user:alice",
		RequestedExpiry: time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60), response.ExpiresIn)
}

func TestAuthorizePushOmitsInterval(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	response, err := service.Authorize(context.Background(), pushClient(), &BackchannelAuthRequest{
		LoginHint:               "user:alice",
		ClientNotificationToken: "nt-1",
	})
	require.NoError(t, err)
	assert.Zero(t, response.Interval)
}

func TestAuthorizePingOmitsInterval(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)

	response, err := service.Authorize(context.Background(), pingClient(), &BackchannelAuthRequest{
		LoginHint:               "user:alice",
		ClientNotificationToken: "nt-1",
	})
	require.NoError(t, err)
	assert.Zero(t, response.Interval)
}

func TestPollTokenLifecycle(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil, WithPollInterval(0))
	ctx := context.Background()
	client := pollClient()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{Scope: "openid", LoginHint: "user:alice"})
	require.NoError(t, err)

	_, err = service.PollToken(ctx, client, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoAuthorizationPending)

	require.NoError(t, service.Approve(ctx, response.AuthReqID))

	tokens, err := service.PollToken(ctx, client, response.AuthReqID)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.IDToken)
	assert.Equal(t, "openid", tokens.Scope)

	// At most once: the issuance flag is already claimed.
	_, err = service.PollToken(ctx, client, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoInvalidGrant)
}

func TestPollTokenDenied(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil, WithPollInterval(0))
	ctx := context.Background()
	client := pollClient()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{LoginHint: "user:alice"})
	require.NoError(t, err)
	require.NoError(t, service.Deny(ctx, response.AuthReqID))

	_, err = service.PollToken(ctx, client, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoAccessDenied)
}

func TestPollTokenSlowDownBumpsInterval(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)
	ctx := context.Background()
	client := pollClient()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{LoginHint: "user:alice"})
	require.NoError(t, err)

	_, err = service.PollToken(ctx, client, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoAuthorizationPending)

	_, err = service.PollToken(ctx, client, response.AuthReqID)
	protoErr := assertProtocolCode(t, err, errors.ProtoSlowDown)
	assert.Equal(t, 10, protoErr.RetryAfter)

	_, err = service.PollToken(ctx, client, response.AuthReqID)
	protoErr = assertProtocolCode(t, err, errors.ProtoSlowDown)
	assert.Equal(t, 15, protoErr.RetryAfter)
}

func TestPollTokenRejectsWrongClient(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil, WithPollInterval(0))
	ctx := context.Background()

	response, err := service.Authorize(ctx, pollClient(), &BackchannelAuthRequest{LoginHint: "user:alice"})
	require.NoError(t, err)

	other := &oauth2client.Client{ClientID: "other", GrantTypes: []string{oauth2client.GrantCIBA}}
	_, err = service.PollToken(ctx, other, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoInvalidGrant)
}

func TestPollTokenExpiredRequest(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil, WithPollInterval(0), WithRequestTTL(-time.Second))
	ctx := context.Background()
	client := pollClient()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{LoginHint: "user:alice"})
	require.NoError(t, err)

	_, err = service.PollToken(ctx, client, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoExpiredToken)
}

func TestPollTokenRejectsPushClient(t *testing.T) {
	client := pushClient()
	service := newTestService(t, &MockNotifier{}, []*oauth2client.Client{client}, WithPollInterval(0))
	ctx := context.Background()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{
		LoginHint:               "user:alice",
		ClientNotificationToken: "nt-1",
	})
	require.NoError(t, err)

	_, err = service.PollToken(ctx, client, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoUnauthorizedClient)
}

func TestApprovePingNotifiesClient(t *testing.T) {
	client := pingClient()
	notifier := &MockNotifier{}
	var gotEndpoint, gotToken string
	notifier.SendPingFunc = func(ctx context.Context, endpoint, notificationToken, authReqID string) error {
		gotEndpoint = endpoint
		gotToken = notificationToken
		return nil
	}
	service := newTestService(t, notifier, []*oauth2client.Client{client})
	ctx := context.Background()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{
		LoginHint:               "user:alice",
		ClientNotificationToken: "nt-ping",
	})
	require.NoError(t, err)
	require.NoError(t, service.Approve(ctx, response.AuthReqID))

	assert.Equal(t, 1, notifier.PingCalls)
	assert.Equal(t, "https://client.test/cb", gotEndpoint)
	assert.Equal(t, "nt-ping", gotToken)
	assert.Zero(t, notifier.TokensCalls)
}

func TestApprovePushDeliversTokens(t *testing.T) {
	client := pushClient()
	notifier := &MockNotifier{}
	var delivered *tokengenerator.TokenSet
	notifier.SendTokensFunc = func(ctx context.Context, endpoint, notificationToken, authReqID string, tokens *tokengenerator.TokenSet) error {
		delivered = tokens
		return nil
	}
	service := newTestService(t, notifier, []*oauth2client.Client{client}, WithPollInterval(0))
	ctx := context.Background()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{
		Scope:                   "openid",
		LoginHint:               "user:alice",
		ClientNotificationToken: "nt-push",
	})
	require.NoError(t, err)
	require.NoError(t, service.Approve(ctx, response.AuthReqID))

	assert.Equal(t, 1, notifier.TokensCalls)
	require.NotNil(t, delivered)
	assert.NotEmpty(t, delivered.AccessToken)

	// Push clients never collect tokens from the token endpoint.
	_, err = service.PollToken(ctx, client, response.AuthReqID)
	assertProtocolCode(t, err, errors.ProtoUnauthorizedClient)
}

func TestApproveRejectsCompletedRequest(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil)
	ctx := context.Background()

	response, err := service.Authorize(ctx, pollClient(), &BackchannelAuthRequest{LoginHint: "user:alice"})
	require.NoError(t, err)
	require.NoError(t, service.Deny(ctx, response.AuthReqID))

	err = service.Approve(ctx, response.AuthReqID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestConcurrentPollersIssueOnce(t *testing.T) {
	service := newTestService(t, &MockNotifier{}, nil, WithPollInterval(0))
	ctx := context.Background()
	client := pollClient()

	response, err := service.Authorize(ctx, client, &BackchannelAuthRequest{LoginHint: "user:alice"})
	require.NoError(t, err)
	require.NoError(t, service.Approve(ctx, response.AuthReqID))

	const pollers = 16
	var wg sync.WaitGroup
	results := make(chan error, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.PollToken(ctx, client, response.AuthReqID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assertProtocolCode(t, err, errors.ProtoInvalidGrant)
		}
	}
	assert.Equal(t, 1, succeeded)
}
