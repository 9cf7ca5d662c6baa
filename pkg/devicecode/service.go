package devicecode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
	"github.com/tenauth/flow-idm/pkg/tokengenerator"
)

// DeviceService drives the device authorization grant lifecycle.
type DeviceService struct {
	repository      DeviceAuthorizationRepository
	tokenIssuer     *tokengenerator.TokenSetIssuer
	verificationURI string
	codeTTL         time.Duration
	pollInterval    time.Duration
}

// DeviceServiceOption configures a DeviceService.
type DeviceServiceOption func(*DeviceService)

// WithCodeTTL overrides how long a device/user code pair stays valid.
func WithCodeTTL(ttl time.Duration) DeviceServiceOption {
	return func(s *DeviceService) {
		s.codeTTL = ttl
	}
}

// WithPollInterval overrides the initial minimum polling interval.
func WithPollInterval(interval time.Duration) DeviceServiceOption {
	return func(s *DeviceService) {
		s.pollInterval = interval
	}
}

// NewDeviceService creates a new device grant service.
func NewDeviceService(repository DeviceAuthorizationRepository, tokenIssuer *tokengenerator.TokenSetIssuer, verificationURI string, options ...DeviceServiceOption) *DeviceService {
	s := &DeviceService{
		repository:      repository,
		tokenIssuer:     tokenIssuer,
		verificationURI: verificationURI,
		codeTTL:         DefaultCodeTTL,
		pollInterval:    DefaultPollInterval,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// StartAuthorization creates a device/user code pair for the client.
func (s *DeviceService) StartAuthorization(ctx context.Context, client *oauth2client.Client, scope string) (*AuthorizationResponse, error) {
	if !client.SupportsGrantType(oauth2client.GrantDeviceCode) {
		return nil, errors.Protocol(errors.ProtoUnauthorizedClient, "client is not registered for the device grant")
	}

	deviceCode, err := GenerateDeviceCode()
	if err != nil {
		return nil, errors.Protocol(errors.ProtoServerError, "failed to create device code")
	}

	now := time.Now().UTC()
	auth := &DeviceAuthorization{
		DeviceCode:   deviceCode,
		ClientID:     client.ClientID,
		Scope:        scope,
		Status:       StatusPending,
		Interval:     s.pollInterval,
		LastPolledAt: now.Add(-s.pollInterval),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.codeTTL),
	}

	// User codes come from a small alphabet; retry on the rare collision.
	for attempt := 0; attempt < 5; attempt++ {
		userCode, err := GenerateUserCode()
		if err != nil {
			return nil, errors.Protocol(errors.ProtoServerError, "failed to create user code")
		}
		auth.UserCode = userCode
		if err := s.repository.Create(ctx, auth); err == nil {
			break
		}
		auth.UserCode = ""
	}
	if auth.UserCode == "" {
		return nil, errors.Protocol(errors.ProtoServerError, "failed to allocate user code")
	}

	slog.Info("Device authorization started",
		"clientID", client.ClientID,
		"userCode", auth.UserCode,
		"expiresAt", auth.ExpiresAt)

	return &AuthorizationResponse{
		DeviceCode:              auth.DeviceCode,
		UserCode:                auth.UserCode,
		VerificationURI:         s.verificationURI,
		VerificationURIComplete: fmt.Sprintf("%s?user_code=%s", s.verificationURI, auth.UserCode),
		ExpiresIn:               int64(s.codeTTL.Seconds()),
		Interval:                int64(s.pollInterval.Seconds()),
	}, nil
}

// LookupUserCode finds a pending authorization for user-facing verification.
func (s *DeviceService) LookupUserCode(ctx context.Context, userCode string) (*DeviceAuthorization, error) {
	auth, err := s.repository.GetByUserCode(ctx, userCode)
	if err != nil {
		return nil, errors.NotFound("user code", NormalizeUserCode(userCode))
	}
	if auth.IsExpired() {
		return nil, errors.New(errors.ErrCodeSessionExpired, "code has expired")
	}
	if auth.Status != StatusPending {
		return nil, errors.New(errors.ErrCodeConflict, "code was already used")
	}
	return auth, nil
}

// Approve marks the authorization approved for the authenticated subject.
func (s *DeviceService) Approve(ctx context.Context, userCode, subject string) error {
	auth, err := s.LookupUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	auth.Status = StatusApproved
	auth.Subject = subject
	if err := s.repository.Update(ctx, auth); err != nil {
		return errors.InternalWrap(err, "failed to approve device authorization")
	}
	slog.Info("Device authorization approved", "clientID", auth.ClientID, "subject", subject)
	return nil
}

// Deny marks the authorization denied by the user.
func (s *DeviceService) Deny(ctx context.Context, userCode string) error {
	auth, err := s.LookupUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	auth.Status = StatusDenied
	if err := s.repository.Update(ctx, auth); err != nil {
		return errors.InternalWrap(err, "failed to deny device authorization")
	}
	slog.Info("Device authorization denied", "clientID", auth.ClientID)
	return nil
}

// Poll handles a token endpoint poll for the device code. Every poll is
// recorded before the outcome is computed so rapid polls are always seen by
// the rate limit, then the grant state decides the response.
func (s *DeviceService) Poll(ctx context.Context, client *oauth2client.Client, deviceCode string) (*tokengenerator.TokenSet, error) {
	auth, err := s.repository.GetByDeviceCode(ctx, deviceCode)
	if err != nil {
		return nil, errors.Protocol(errors.ProtoInvalidGrant, "unknown device_code")
	}
	if auth.ClientID != client.ClientID {
		return nil, errors.Protocol(errors.ProtoInvalidGrant, "device_code was issued to another client")
	}

	now := time.Now().UTC()
	elapsed := now.Sub(auth.LastPolledAt)
	tooFast := elapsed < auth.Interval

	// Record first. A slow_down also bumps the minimum interval.
	auth.LastPolledAt = now
	if tooFast {
		auth.Interval += SlowDownPenalty
	}
	if err := s.repository.Update(ctx, auth); err != nil {
		return nil, errors.Protocol(errors.ProtoServerError, "failed to record poll")
	}

	if tooFast {
		return nil, errors.SlowDown(int(auth.Interval.Seconds()))
	}
	if auth.IsExpired() {
		_ = s.repository.Delete(ctx, auth.DeviceCode)
		return nil, errors.Protocol(errors.ProtoExpiredToken, "device_code has expired")
	}

	switch auth.Status {
	case StatusPending:
		return nil, errors.Protocol(errors.ProtoAuthorizationPending, "user has not completed authorization")
	case StatusDenied:
		_ = s.repository.Delete(ctx, auth.DeviceCode)
		return nil, errors.Protocol(errors.ProtoAccessDenied, "user denied the request")
	case StatusApproved:
		// Single use: the record is gone once tokens are issued.
		if err := s.repository.Delete(ctx, auth.DeviceCode); err != nil {
			return nil, errors.Protocol(errors.ProtoServerError, "failed to consume device_code")
		}
		tokens, err := s.tokenIssuer.IssueTokenSet(auth.Subject, auth.Scope, nil, true, true)
		if err != nil {
			return nil, errors.Protocol(errors.ProtoServerError, "failed to issue tokens")
		}
		slog.Info("Device grant completed", "clientID", client.ClientID, "subject", auth.Subject)
		return tokens, nil
	}
	return nil, errors.Protocol(errors.ProtoInvalidGrant, "device_code is not redeemable")
}
