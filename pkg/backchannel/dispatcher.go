package backchannel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tenauth/flow-idm/pkg/tokengenerator"
)

const (
	// DefaultTimeout bounds one delivery attempt end to end.
	DefaultTimeout = 5 * time.Second

	// maxResponseBytes caps how much of the client's response is read.
	maxResponseBytes = 64 * 1024

	// maxErrorSnippetBytes bounds how much of an error response is echoed
	// back in the returned error.
	maxErrorSnippetBytes = 256
)

// Dispatcher posts backchannel notifications to client endpoints. It
// implements the ciba.Notifier interface.
type Dispatcher struct {
	httpClient *http.Client
	resolver   Resolver
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(httpClient *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.httpClient = httpClient
	}
}

// WithResolver overrides the DNS resolver used by the endpoint guard.
func WithResolver(resolver Resolver) DispatcherOption {
	return func(d *Dispatcher) {
		d.resolver = resolver
	}
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		resolver:   systemResolver,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// SendPing notifies a ping-mode client that its tokens are ready to be
// collected from the token endpoint.
func (d *Dispatcher) SendPing(ctx context.Context, endpoint, notificationToken, authReqID string) error {
	return d.deliver(ctx, endpoint, notificationToken, map[string]any{
		"auth_req_id": authReqID,
	})
}

// SendTokens delivers the token response itself to a push-mode client.
func (d *Dispatcher) SendTokens(ctx context.Context, endpoint, notificationToken, authReqID string, tokens *tokengenerator.TokenSet) error {
	payload := map[string]any{
		"auth_req_id":  authReqID,
		"access_token": tokens.AccessToken,
		"token_type":   tokens.TokenType,
		"expires_in":   tokens.ExpiresIn,
	}
	if tokens.RefreshToken != "" {
		payload["refresh_token"] = tokens.RefreshToken
	}
	if tokens.IDToken != "" {
		payload["id_token"] = tokens.IDToken
	}
	return d.deliver(ctx, endpoint, notificationToken, payload)
}

// deliver validates the endpoint before opening any connection, then posts
// the payload authenticated with the client's notification token.
func (d *Dispatcher) deliver(ctx context.Context, endpoint, notificationToken string, payload map[string]any) error {
	target, err := validateEndpoint(ctx, d.resolver, endpoint)
	if err != nil {
		slog.Warn("Rejected backchannel notification endpoint", "endpoint", endpoint, "err", err)
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+notificationToken)

	response, err := d.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer response.Body.Close()

	responseBody, _ := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		snippet := responseBody
		if len(snippet) > maxErrorSnippetBytes {
			snippet = snippet[:maxErrorSnippetBytes]
		}
		return fmt.Errorf("notification endpoint returned status %d: %s", response.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
