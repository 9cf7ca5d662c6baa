package devicecode

import "time"

// Status tracks where a device authorization is in its lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Defaults per RFC 8628.
const (
	DefaultCodeTTL      = 10 * time.Minute
	DefaultPollInterval = 5 * time.Second

	// SlowDownPenalty is added to the interval on each slow_down response.
	SlowDownPenalty = 5 * time.Second
)

// DeviceAuthorization is the persisted state of one device grant attempt.
type DeviceAuthorization struct {
	DeviceCode   string        `json:"device_code"`
	UserCode     string        `json:"user_code"`
	ClientID     string        `json:"client_id"`
	Scope        string        `json:"scope,omitempty"`
	Status       Status        `json:"status"`
	Subject      string        `json:"subject,omitempty"`
	Interval     time.Duration `json:"interval"`
	LastPolledAt time.Time     `json:"last_polled_at"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// IsExpired reports whether the authorization's TTL has elapsed.
func (a *DeviceAuthorization) IsExpired() bool {
	return time.Now().After(a.ExpiresAt)
}

// AuthorizationResponse is the device authorization endpoint response body.
type AuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}
