package wellknown

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenauth/flow-idm/pkg/jwks"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
)

func newTestHandler(t *testing.T) chi.Router {
	t.Helper()
	jwksService, err := jwks.NewJWKSService(jwks.NewInMemoryJWKSRepository())
	require.NoError(t, err)
	handler := NewHandler(Config{
		Issuer:  "https://idp.test",
		BaseURL: "https://idp.test",
	}, jwksService)
	router := chi.NewRouter()
	handler.Routes(router)
	return router
}

func get(t *testing.T, router chi.Router, path string) map[string]any {
	t.Helper()
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestProviderMetadataAdvertisesGrants(t *testing.T) {
	body := get(t, newTestHandler(t), "/.well-known/openid-configuration")

	assert.Equal(t, "https://idp.test", body["issuer"])
	assert.Equal(t, "https://idp.test/oauth2/device_authorization", body["device_authorization_endpoint"])
	assert.Equal(t, "https://idp.test/oauth2/bc-authorize", body["backchannel_authentication_endpoint"])

	grants, ok := body["grant_types_supported"].([]any)
	require.True(t, ok)
	assert.Contains(t, grants, oauth2client.GrantDeviceCode)
	assert.Contains(t, grants, oauth2client.GrantCIBA)

	modes, ok := body["backchannel_token_delivery_modes_supported"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"poll", "ping", "push"}, modes)
}

func TestJWKSEndpointServesActiveKey(t *testing.T) {
	body := get(t, newTestHandler(t), "/.well-known/jwks.json")

	keys, ok := body["keys"].([]any)
	require.True(t, ok)
	require.Len(t, keys, 1)

	key, ok := keys[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "RSA", key["kty"])
	assert.Equal(t, "sig", key["use"])
	assert.NotEmpty(t, key["kid"])
}
