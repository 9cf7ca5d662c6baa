package tokengenerator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJwtService() *JwtService {
	generator := NewJwtTokenGenerator("test-secret", "https://idp.test", "test-audience")
	return NewJwtService(WithDefaultTokenGenerator(generator))
}

func TestIssueTokenSet(t *testing.T) {
	issuer := NewTokenSetIssuer(newTestJwtService())

	set, err := issuer.IssueTokenSet("user-1", "openid profile", nil, true, true)
	require.NoError(t, err)

	assert.NotEmpty(t, set.AccessToken)
	assert.NotEmpty(t, set.RefreshToken)
	assert.NotEmpty(t, set.IDToken)
	assert.Equal(t, "Bearer", set.TokenType)
	assert.Equal(t, "openid profile", set.Scope)
	assert.Greater(t, set.ExpiresIn, int64(0))
}

func TestTokenSetOmitsRefreshTokenWhenNotIssued(t *testing.T) {
	issuer := NewTokenSetIssuer(newTestJwtService())

	set, err := issuer.IssueTokenSet("user-1", "", nil, false, false)
	require.NoError(t, err)

	raw, err := json.Marshal(set)
	require.NoError(t, err)

	// The key must be absent, not null.
	assert.False(t, strings.Contains(string(raw), "refresh_token"))
	assert.False(t, strings.Contains(string(raw), "id_token"))
}

func TestIssueTokensMapForFlowSessions(t *testing.T) {
	issuer := NewTokenSetIssuer(newTestJwtService())

	tokens, err := issuer.IssueTokens(context.Background(), "user-1", map[string]any{"tenant": "acme"})
	require.NoError(t, err)

	assert.NotEmpty(t, tokens[ACCESS_TOKEN_NAME])
	assert.NotEmpty(t, tokens[REFRESH_TOKEN_NAME])
	assert.Equal(t, "Bearer", tokens["token_type"])
}

func TestGeneratedTokenRoundTrip(t *testing.T) {
	js := newTestJwtService()

	tokenStr, _, err := js.GenerateToken(ACCESS_TOKEN_NAME, "user-9", nil, map[string]interface{}{"k": "v"})
	require.NoError(t, err)

	parsed, err := js.ParseToken(ACCESS_TOKEN_NAME, tokenStr)
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	subject, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "user-9", subject)
}
