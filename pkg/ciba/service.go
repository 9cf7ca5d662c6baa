package ciba

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
	"github.com/tenauth/flow-idm/pkg/tokengenerator"
)

// UserResolver maps an identity hint to a subject identifier. Hint token
// parsing and validation live behind this boundary.
type UserResolver interface {
	ResolveHint(ctx context.Context, hint UserHint) (string, error)
}

// UserResolverFunc adapts a function to the UserResolver interface.
type UserResolverFunc func(ctx context.Context, hint UserHint) (string, error)

func (f UserResolverFunc) ResolveHint(ctx context.Context, hint UserHint) (string, error) {
	return f(ctx, hint)
}

// Notifier delivers ping and push notifications to client notification
// endpoints. Implemented by the backchannel dispatcher.
type Notifier interface {
	SendPing(ctx context.Context, endpoint, notificationToken, authReqID string) error
	SendTokens(ctx context.Context, endpoint, notificationToken, authReqID string, tokens *tokengenerator.TokenSet) error
}

// ClientDirectory resolves registered clients. Satisfied by
// oauth2client.ClientService.
type ClientDirectory interface {
	GetClient(ctx context.Context, clientID string) (*oauth2client.Client, error)
}

// CibaService drives the backchannel authentication lifecycle.
type CibaService struct {
	repository   AuthRequestRepository
	tokenIssuer  *tokengenerator.TokenSetIssuer
	userResolver UserResolver
	notifier     Notifier
	clientLookup ClientDirectory
	requestTTL   time.Duration
	pollInterval time.Duration
}

// CibaServiceOption configures a CibaService.
type CibaServiceOption func(*CibaService)

// WithRequestTTL overrides the default auth request lifetime.
func WithRequestTTL(ttl time.Duration) CibaServiceOption {
	return func(s *CibaService) {
		s.requestTTL = ttl
	}
}

// WithPollInterval overrides the initial minimum polling interval.
func WithPollInterval(interval time.Duration) CibaServiceOption {
	return func(s *CibaService) {
		s.pollInterval = interval
	}
}

// NewCibaService creates a new backchannel authentication service.
func NewCibaService(repository AuthRequestRepository, tokenIssuer *tokengenerator.TokenSetIssuer, userResolver UserResolver, notifier Notifier, clientLookup ClientDirectory, options ...CibaServiceOption) *CibaService {
	s := &CibaService{
		repository:   repository,
		tokenIssuer:  tokenIssuer,
		userResolver: userResolver,
		notifier:     notifier,
		clientLookup: clientLookup,
		requestTTL:   DefaultRequestTTL,
		pollInterval: DefaultPollInterval,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// DetermineDeliveryMode resolves how the client will learn its tokens are
// ready. Ping and push need both a registered notification endpoint and a
// per-request notification token; anything less falls back to poll.
func DetermineDeliveryMode(client *oauth2client.Client, notificationToken string) oauth2client.DeliveryMode {
	mode := client.BackchannelDeliveryMode
	if mode == "" || mode == oauth2client.DeliveryPoll {
		return oauth2client.DeliveryPoll
	}
	if client.BackchannelNotificationEndpoint == "" || notificationToken == "" {
		return oauth2client.DeliveryPoll
	}
	return mode
}

// Authorize handles a bc-authorize request and creates a pending
// authentication.
func (s *CibaService) Authorize(ctx context.Context, client *oauth2client.Client, request *BackchannelAuthRequest) (*BackchannelAuthResponse, error) {
	if !client.SupportsGrantType(oauth2client.GrantCIBA) {
		return nil, errors.Protocol(errors.ProtoUnauthorizedClient, "client is not registered for the CIBA grant")
	}
	// A backchannel authentication request is an OIDC authentication
	// request; an absent scope defaults to openid.
	scope := request.Scope
	if scope == "" {
		scope = "openid"
	}
	if !slices.Contains(strings.Fields(scope), "openid") {
		return nil, errors.Protocol(errors.ProtoInvalidScope, "scope must include openid")
	}
	hint, ok := request.UserHint()
	if !ok {
		return nil, errors.Protocol(errors.ProtoInvalidRequest, "exactly one of login_hint, login_hint_token and id_token_hint is required")
	}
	if request.BindingMessage != "" {
		if !utf8.ValidString(request.BindingMessage) || utf8.RuneCountInString(request.BindingMessage) > MaxBindingMessageLength {
			return nil, errors.Protocol(errors.ProtoInvalidBindingMessage, "binding_message is too long or malformed")
		}
	}

	mode := DetermineDeliveryMode(client, request.ClientNotificationToken)

	subject, err := s.userResolver.ResolveHint(ctx, hint)
	if err != nil || subject == "" {
		return nil, errors.Protocol(errors.ProtoUnknownUserID, string(hint.Kind)+" does not identify a user")
	}

	ttl := s.requestTTL
	if request.RequestedExpiry > 0 && request.RequestedExpiry < MaxRequestTTL {
		ttl = request.RequestedExpiry
	}

	authReqID, err := generateAuthReqID()
	if err != nil {
		return nil, errors.Protocol(errors.ProtoServerError, "failed to create auth_req_id")
	}

	now := time.Now().UTC()
	authRequest := &AuthRequest{
		AuthReqID:               authReqID,
		ClientID:                client.ClientID,
		Scope:                   scope,
		Subject:                 subject,
		BindingMessage:          request.BindingMessage,
		ClientNotificationToken: request.ClientNotificationToken,
		UserCode:                request.UserCode,
		ACRValues:               request.ACRValues,
		DeliveryMode:            mode,
		Status:                  StatusPending,
		Interval:                s.pollInterval,
		LastPolledAt:            now.Add(-s.pollInterval),
		CreatedAt:               now,
		ExpiresAt:               now.Add(ttl),
	}
	if err := s.repository.Create(ctx, authRequest); err != nil {
		return nil, errors.Protocol(errors.ProtoServerError, "failed to store authentication request")
	}

	slog.Info("Backchannel authentication started",
		"clientID", client.ClientID,
		"subject", subject,
		"deliveryMode", mode,
		"expiresAt", authRequest.ExpiresAt)

	response := &BackchannelAuthResponse{
		AuthReqID: authReqID,
		ExpiresIn: int64(ttl.Seconds()),
	}
	// Only poll clients collect tokens on a schedule; ping and push
	// clients wait for the notification.
	if mode == oauth2client.DeliveryPoll {
		response.Interval = int64(s.pollInterval.Seconds())
	}
	return response, nil
}

// Get returns the authentication request, for authentication-device UIs.
func (s *CibaService) Get(ctx context.Context, authReqID string) (*AuthRequest, error) {
	request, err := s.repository.Get(ctx, authReqID)
	if err != nil {
		return nil, errors.NotFound("authentication request", authReqID)
	}
	return request, nil
}

// Approve records the user's consent and, for ping and push clients,
// notifies the client. Push delivery issues the tokens here, guarded by the
// same at-most-once flag the token endpoint uses.
func (s *CibaService) Approve(ctx context.Context, authReqID string) error {
	request, err := s.repository.Get(ctx, authReqID)
	if err != nil {
		return errors.NotFound("authentication request", authReqID)
	}
	if request.IsExpired() {
		return errors.New(errors.ErrCodeSessionExpired, "authentication request has expired")
	}
	if request.Status != StatusPending {
		return errors.New(errors.ErrCodeConflict, "authentication request was already completed")
	}

	request.Status = StatusApproved
	if err := s.repository.Update(ctx, request); err != nil {
		return errors.InternalWrap(err, "failed to approve authentication request")
	}

	switch request.DeliveryMode {
	case oauth2client.DeliveryPing:
		if err := s.notifier.SendPing(ctx, s.notificationEndpoint(ctx, request), request.ClientNotificationToken, authReqID); err != nil {
			slog.Warn("Ping notification failed", "authReqID", authReqID, "err", err)
		}
	case oauth2client.DeliveryPush:
		issued, err := s.repository.MarkTokenIssued(ctx, authReqID)
		if err != nil || !issued {
			return errors.Internal("failed to claim token issuance for push delivery")
		}
		tokens, err := s.tokenIssuer.IssueTokenSet(request.Subject, request.Scope, nil, true, true)
		if err != nil {
			return errors.InternalWrap(err, "failed to issue tokens for push delivery")
		}
		if err := s.notifier.SendTokens(ctx, s.notificationEndpoint(ctx, request), request.ClientNotificationToken, authReqID, tokens); err != nil {
			slog.Warn("Push delivery failed", "authReqID", authReqID, "err", err)
		}
	}

	slog.Info("Backchannel authentication approved", "authReqID", authReqID, "subject", request.Subject)
	return nil
}

// Deny records the user's rejection.
func (s *CibaService) Deny(ctx context.Context, authReqID string) error {
	request, err := s.repository.Get(ctx, authReqID)
	if err != nil {
		return errors.NotFound("authentication request", authReqID)
	}
	if request.Status != StatusPending {
		return errors.New(errors.ErrCodeConflict, "authentication request was already completed")
	}
	request.Status = StatusDenied
	if err := s.repository.Update(ctx, request); err != nil {
		return errors.InternalWrap(err, "failed to deny authentication request")
	}
	return nil
}

// PollToken handles a token endpoint request carrying an auth_req_id.
// Polls are recorded before the outcome is computed, and issuance is
// claimed through a compare-and-swap so a given request produces tokens at
// most once.
func (s *CibaService) PollToken(ctx context.Context, client *oauth2client.Client, authReqID string) (*tokengenerator.TokenSet, error) {
	request, err := s.repository.Get(ctx, authReqID)
	if err != nil {
		return nil, errors.Protocol(errors.ProtoInvalidGrant, "unknown auth_req_id")
	}
	if request.ClientID != client.ClientID {
		return nil, errors.Protocol(errors.ProtoInvalidGrant, "auth_req_id was issued to another client")
	}
	if request.DeliveryMode == oauth2client.DeliveryPush {
		return nil, errors.Protocol(errors.ProtoUnauthorizedClient, "push clients receive tokens on their notification endpoint")
	}

	now := time.Now().UTC()
	tooFast := now.Sub(request.LastPolledAt) < request.Interval

	request.LastPolledAt = now
	if tooFast {
		request.Interval += SlowDownPenalty
	}
	if err := s.repository.Update(ctx, request); err != nil {
		return nil, errors.Protocol(errors.ProtoServerError, "failed to record poll")
	}

	if tooFast {
		return nil, errors.SlowDown(int(request.Interval.Seconds()))
	}
	if request.IsExpired() {
		_ = s.repository.Delete(ctx, authReqID)
		return nil, errors.Protocol(errors.ProtoExpiredToken, "auth_req_id has expired")
	}

	switch request.Status {
	case StatusPending:
		return nil, errors.Protocol(errors.ProtoAuthorizationPending, "user has not completed authentication")
	case StatusDenied:
		_ = s.repository.Delete(ctx, authReqID)
		return nil, errors.Protocol(errors.ProtoAccessDenied, "user denied the request")
	case StatusApproved:
		issued, err := s.repository.MarkTokenIssued(ctx, authReqID)
		if err != nil {
			return nil, errors.Protocol(errors.ProtoServerError, "failed to claim token issuance")
		}
		if !issued {
			return nil, errors.Protocol(errors.ProtoInvalidGrant, "tokens were already issued for this auth_req_id")
		}
		tokens, err := s.tokenIssuer.IssueTokenSet(request.Subject, request.Scope, nil, true, true)
		if err != nil {
			return nil, errors.Protocol(errors.ProtoServerError, "failed to issue tokens")
		}
		slog.Info("CIBA grant completed", "clientID", client.ClientID, "subject", request.Subject)
		return tokens, nil
	}
	return nil, errors.Protocol(errors.ProtoInvalidGrant, "auth_req_id is not redeemable")
}

// notificationEndpoint looks up the client's registered endpoint at
// delivery time so registration updates take effect for in-flight requests.
func (s *CibaService) notificationEndpoint(ctx context.Context, request *AuthRequest) string {
	if s.clientLookup == nil {
		return ""
	}
	client, err := s.clientLookup.GetClient(ctx, request.ClientID)
	if err != nil {
		return ""
	}
	return client.BackchannelNotificationEndpoint
}

func generateAuthReqID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate auth_req_id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
