package devicecode

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
	"github.com/tenauth/flow-idm/pkg/tokengenerator"
)

func newTestService(t *testing.T, options ...DeviceServiceOption) *DeviceService {
	t.Helper()
	generator := tokengenerator.NewJwtTokenGenerator("test-secret", "https://idp.test", "test-audience")
	issuer := tokengenerator.NewTokenSetIssuer(tokengenerator.NewJwtService(tokengenerator.WithDefaultTokenGenerator(generator)))
	return NewDeviceService(NewInMemDeviceAuthorizationRepository(), issuer, "https://idp.test/device", options...)
}

func deviceClient() *oauth2client.Client {
	return &oauth2client.Client{
		ClientID:   "tv-app",
		GrantTypes: []string{oauth2client.GrantDeviceCode},
		ClientType: "public",
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

func TestGenerateUserCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateUserCode()
		require.NoError(t, err)
		require.Len(t, code, 9)
		assert.Equal(t, byte('-'), code[4])
		for _, r := range strings.ReplaceAll(code, "-", "") {
			assert.Contains(t, userCodeAlphabet, string(r))
			assert.NotContains(t, "01OIL", string(r))
		}
	}
}

func TestNormalizeUserCode(t *testing.T) {
	assert.Equal(t, "WDJB-MJHT", NormalizeUserCode("wdjb-mjht"))
	assert.Equal(t, "WDJB-MJHT", NormalizeUserCode(" WDJB MJHT "))
	assert.Equal(t, "WDJB-MJHT", NormalizeUserCode("WDJB-MJHT"))
	assert.Equal(t, "WDJB-MJHT", NormalizeUserCode("wdjbmjht"))
	// Inputs that cannot be a user code are left ungrouped.
	assert.Equal(t, "WDJB", NormalizeUserCode("wdjb"))
}

func TestStartAuthorization(t *testing.T) {
	service := newTestService(t)

	response, err := service.StartAuthorization(context.Background(), deviceClient(), "openid")
	require.NoError(t, err)

	assert.NotEmpty(t, response.DeviceCode)
	assert.Len(t, response.UserCode, 9)
	assert.Equal(t, "https://idp.test/device", response.VerificationURI)
	assert.Contains(t, response.VerificationURIComplete, response.UserCode)
	assert.Equal(t, int64(600), response.ExpiresIn)
	assert.Equal(t, int64(5), response.Interval)
}

func TestStartAuthorizationRejectsUnregisteredGrant(t *testing.T) {
	service := newTestService(t)
	client := &oauth2client.Client{ClientID: "web", GrantTypes: []string{oauth2client.GrantAuthorizationCode}}

	_, err := service.StartAuthorization(context.Background(), client, "")
	assertProtocolCode(t, err, errors.ProtoUnauthorizedClient)
}

func TestPollLifecycle(t *testing.T) {
	service := newTestService(t, WithPollInterval(0))
	ctx := context.Background()
	client := deviceClient()

	response, err := service.StartAuthorization(ctx, client, "openid")
	require.NoError(t, err)

	// Pending until the user acts.
	_, err = service.Poll(ctx, client, response.DeviceCode)
	assertProtocolCode(t, err, errors.ProtoAuthorizationPending)

	// User approves with a normalized variant of the displayed code.
	require.NoError(t, service.Approve(ctx, strings.ToLower(response.UserCode), "user-7"))

	tokens, err := service.Poll(ctx, client, response.DeviceCode)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "openid", tokens.Scope)

	// Single use: the code is consumed with the token response.
	_, err = service.Poll(ctx, client, response.DeviceCode)
	assertProtocolCode(t, err, errors.ProtoInvalidGrant)
}

func TestPollDenied(t *testing.T) {
	service := newTestService(t, WithPollInterval(0))
	ctx := context.Background()
	client := deviceClient()

	response, err := service.StartAuthorization(ctx, client, "")
	require.NoError(t, err)
	require.NoError(t, service.Deny(ctx, response.UserCode))

	_, err = service.Poll(ctx, client, response.DeviceCode)
	assertProtocolCode(t, err, errors.ProtoAccessDenied)
}

func TestPollSlowDownBumpsInterval(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	client := deviceClient()

	response, err := service.StartAuthorization(ctx, client, "")
	require.NoError(t, err)

	// First poll is allowed, the immediate second one is too fast.
	_, err = service.Poll(ctx, client, response.DeviceCode)
	assertProtocolCode(t, err, errors.ProtoAuthorizationPending)

	_, err = service.Poll(ctx, client, response.DeviceCode)
	protoErr := assertProtocolCode(t, err, errors.ProtoSlowDown)
	assert.Equal(t, 10, protoErr.RetryAfter)

	// The penalty stacks while the client keeps hammering.
	_, err = service.Poll(ctx, client, response.DeviceCode)
	protoErr = assertProtocolCode(t, err, errors.ProtoSlowDown)
	assert.Equal(t, 15, protoErr.RetryAfter)
}

func TestPollRejectsWrongClient(t *testing.T) {
	service := newTestService(t, WithPollInterval(0))
	ctx := context.Background()

	response, err := service.StartAuthorization(ctx, deviceClient(), "")
	require.NoError(t, err)

	other := &oauth2client.Client{ClientID: "other", GrantTypes: []string{oauth2client.GrantDeviceCode}}
	_, err = service.Poll(ctx, other, response.DeviceCode)
	assertProtocolCode(t, err, errors.ProtoInvalidGrant)
}

func TestPollExpiredCode(t *testing.T) {
	service := newTestService(t, WithPollInterval(0), WithCodeTTL(-time.Second))
	ctx := context.Background()
	client := deviceClient()

	response, err := service.StartAuthorization(ctx, client, "")
	require.NoError(t, err)

	_, err = service.Poll(ctx, client, response.DeviceCode)
	assertProtocolCode(t, err, errors.ProtoExpiredToken)
}

func TestApproveExpiredCodeFails(t *testing.T) {
	service := newTestService(t, WithCodeTTL(-time.Second))
	ctx := context.Background()

	response, err := service.StartAuthorization(ctx, deviceClient(), "")
	require.NoError(t, err)

	err = service.Approve(ctx, response.UserCode, "user-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSessionExpired))
}
