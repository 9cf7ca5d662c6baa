package ciba

import (
	"time"

	"github.com/tenauth/flow-idm/pkg/oauth2client"
)

// Status tracks where a backchannel authentication request is in its
// lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Defaults per CIBA Core.
const (
	DefaultRequestTTL   = 5 * time.Minute
	MaxRequestTTL       = 30 * time.Minute
	DefaultPollInterval = 5 * time.Second

	// SlowDownPenalty is added to the interval on each slow_down response.
	SlowDownPenalty = 5 * time.Second

	// MaxBindingMessageLength bounds the message shown on both devices.
	MaxBindingMessageLength = 100
)

// AuthRequest is the persisted state of one backchannel authentication.
type AuthRequest struct {
	AuthReqID               string                   `json:"auth_req_id"`
	ClientID                string                   `json:"client_id"`
	Scope                   string                   `json:"scope"`
	Subject                 string                   `json:"subject"`
	BindingMessage          string                   `json:"binding_message,omitempty"`
	ClientNotificationToken string                   `json:"client_notification_token,omitempty"`
	UserCode                string                   `json:"user_code,omitempty"`
	ACRValues               string                   `json:"acr_values,omitempty"`
	DeliveryMode            oauth2client.DeliveryMode `json:"delivery_mode"`
	Status                  Status                   `json:"status"`
	TokenIssued             bool                     `json:"token_issued"`
	Interval                time.Duration            `json:"interval"`
	LastPolledAt            time.Time                `json:"last_polled_at"`
	CreatedAt               time.Time                `json:"created_at"`
	ExpiresAt               time.Time                `json:"expires_at"`
}

// IsExpired reports whether the request's TTL has elapsed.
func (a *AuthRequest) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// HintKind identifies which bc-authorize parameter carried the user
// identity hint.
type HintKind string

const (
	HintLogin      HintKind = "login_hint"
	HintLoginToken HintKind = "login_hint_token"
	HintIDToken    HintKind = "id_token_hint"
)

// UserHint is the single identity hint carried by a bc-authorize request.
type UserHint struct {
	Kind  HintKind
	Value string
}

// BackchannelAuthRequest is the parsed bc-authorize request.
type BackchannelAuthRequest struct {
	Scope                   string
	LoginHint               string
	LoginHintToken          string
	IDTokenHint             string
	BindingMessage          string
	ClientNotificationToken string
	UserCode                string
	ACRValues               string
	RequestedExpiry         time.Duration
}

// UserHint returns the request's identity hint. Exactly one of the three
// hint parameters must be present.
func (r *BackchannelAuthRequest) UserHint() (UserHint, bool) {
	hints := make([]UserHint, 0, 1)
	if r.LoginHint != "" {
		hints = append(hints, UserHint{Kind: HintLogin, Value: r.LoginHint})
	}
	if r.LoginHintToken != "" {
		hints = append(hints, UserHint{Kind: HintLoginToken, Value: r.LoginHintToken})
	}
	if r.IDTokenHint != "" {
		hints = append(hints, UserHint{Kind: HintIDToken, Value: r.IDTokenHint})
	}
	if len(hints) != 1 {
		return UserHint{}, false
	}
	return hints[0], true
}

// BackchannelAuthResponse is the bc-authorize response body.
type BackchannelAuthResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int64  `json:"expires_in"`
	Interval  int64  `json:"interval,omitempty"`
}
