package backchannel

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenauth/flow-idm/pkg/tokengenerator"
)

type MockRoundTripper struct {
	RoundTripFunc func(r *http.Request) (*http.Response, error)
	Calls         int
}

func (m *MockRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	m.Calls++
	if m.RoundTripFunc != nil {
		return m.RoundTripFunc(r)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}, nil
}

func staticResolver(ips ...string) Resolver {
	return func(ctx context.Context, host string) ([]net.IP, error) {
		resolved := make([]net.IP, 0, len(ips))
		for _, ip := range ips {
			resolved = append(resolved, net.ParseIP(ip))
		}
		return resolved, nil
	}
}

func newTestDispatcher(transport *MockRoundTripper, resolver Resolver) *Dispatcher {
	return NewDispatcher(
		WithHTTPClient(&http.Client{Transport: transport}),
		WithResolver(resolver),
	)
}

func TestSendPingDelivers(t *testing.T) {
	transport := &MockRoundTripper{}
	var got *http.Request
	var gotBody map[string]any
	transport.RoundTripFunc = func(r *http.Request) (*http.Response, error) {
		got = r
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	dispatcher := newTestDispatcher(transport, staticResolver("93.184.216.34"))

	err := dispatcher.SendPing(context.Background(), "https://client.example/cb", "nt-1", "req-1")
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "Bearer nt-1", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "req-1", gotBody["auth_req_id"])
}

func TestSendTokensIncludesTokenResponse(t *testing.T) {
	transport := &MockRoundTripper{}
	var gotBody map[string]any
	transport.RoundTripFunc = func(r *http.Request) (*http.Response, error) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}, nil
	}
	dispatcher := newTestDispatcher(transport, staticResolver("93.184.216.34"))

	tokens := &tokengenerator.TokenSet{
		AccessToken: "at",
		TokenType:   "Bearer",
		ExpiresIn:   900,
		IDToken:     "idt",
	}
	err := dispatcher.SendTokens(context.Background(), "https://client.example/cb", "nt-2", "req-2", tokens)
	require.NoError(t, err)

	assert.Equal(t, "req-2", gotBody["auth_req_id"])
	assert.Equal(t, "at", gotBody["access_token"])
	assert.Equal(t, "idt", gotBody["id_token"])
	_, hasRefresh := gotBody["refresh_token"]
	assert.False(t, hasRefresh)
}

func TestRejectsNonRoutableEndpoints(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		resolver Resolver
	}{
		{"loopback literal", "https://127.0.0.1/cb", staticResolver()},
		{"private literal", "https://10.0.0.5/cb", staticResolver()},
		{"link local literal", "https://169.254.169.254/latest/meta-data", staticResolver()},
		{"ipv6 loopback", "https://[::1]/cb", staticResolver()},
		{"host resolving private", "https://internal.example/cb", staticResolver("192.168.1.10")},
		{"host resolving mixed", "https://mixed.example/cb", staticResolver("93.184.216.34", "10.1.2.3")},
		{"unspecified", "https://zero.example/cb", staticResolver("0.0.0.0")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			transport := &MockRoundTripper{}
			dispatcher := newTestDispatcher(transport, tc.resolver)

			err := dispatcher.SendPing(context.Background(), tc.endpoint, "nt", "req")
			require.Error(t, err)
			// The guard runs before any connection is opened.
			assert.Zero(t, transport.Calls)
		})
	}
}

func TestRejectsUnsupportedScheme(t *testing.T) {
	transport := &MockRoundTripper{}
	dispatcher := newTestDispatcher(transport, staticResolver("93.184.216.34"))

	err := dispatcher.SendPing(context.Background(), "ftp://client.example/cb", "nt", "req")
	require.Error(t, err)
	assert.Zero(t, transport.Calls)
}

func TestErrorStatusIsReported(t *testing.T) {
	transport := &MockRoundTripper{
		RoundTripFunc: func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusInternalServerError, Body: io.NopCloser(strings.NewReader("boom"))}, nil
		},
	}
	dispatcher := newTestDispatcher(transport, staticResolver("93.184.216.34"))

	err := dispatcher.SendPing(context.Background(), "https://client.example/cb", "nt", "req")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}

func TestErrorBodyIsTruncated(t *testing.T) {
	transport := &MockRoundTripper{
		RoundTripFunc: func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader(strings.Repeat("x", 4096)))}, nil
		},
	}
	dispatcher := newTestDispatcher(transport, staticResolver("93.184.216.34"))

	err := dispatcher.SendPing(context.Background(), "https://client.example/cb", "nt", "req")
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 512)
}
