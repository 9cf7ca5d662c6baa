package errors

import "net/http"

// OAuth 2.0 protocol error codes returned on token and grant endpoints.
// RFC 6749 section 5.2, RFC 8628 section 3.5, CIBA Core section 11.
const (
	ProtoInvalidRequest         = "invalid_request"
	ProtoInvalidClient          = "invalid_client"
	ProtoInvalidGrant           = "invalid_grant"
	ProtoUnauthorizedClient     = "unauthorized_client"
	ProtoUnsupportedGrantType   = "unsupported_grant_type"
	ProtoInvalidScope           = "invalid_scope"
	ProtoAuthorizationPending   = "authorization_pending"
	ProtoSlowDown               = "slow_down"
	ProtoAccessDenied           = "access_denied"
	ProtoExpiredToken           = "expired_token"
	ProtoUnknownUserID          = "unknown_user_id"
	ProtoMissingUserCode        = "missing_user_code"
	ProtoInvalidBindingMessage  = "invalid_binding_message"
	ProtoTransactionFailed      = "transaction_failed"
	ProtoServerError            = "server_error"
	ProtoTemporarilyUnavailable = "temporarily_unavailable"
)

// ProtocolError is an OAuth 2.0 wire-format error. It renders as the
// standard {"error": ..., "error_description": ...} JSON body.
type ProtocolError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
	RetryAfter  int    `json:"retry_after,omitempty"` // seconds, set for slow_down responses
}

func (e *ProtocolError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Protocol creates a ProtocolError with the conventional HTTP status for
// its code.
func Protocol(code, description string) *ProtocolError {
	return &ProtocolError{
		Code:        code,
		Description: description,
		Status:      protocolStatus(code),
	}
}

// SlowDown creates the RFC 8628 slow_down error carrying the interval the
// client must back off to.
func SlowDown(retryAfter int) *ProtocolError {
	e := Protocol(ProtoSlowDown, "polling too frequently")
	e.RetryAfter = retryAfter
	return e
}

func protocolStatus(code string) int {
	switch code {
	case ProtoInvalidClient:
		return http.StatusUnauthorized
	case ProtoAccessDenied:
		return http.StatusForbidden
	case ProtoSlowDown:
		return http.StatusBadRequest
	case ProtoServerError:
		return http.StatusInternalServerError
	case ProtoTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
