// Package errors provides structured error handling with error codes for flow-idm.
//
// This package standardizes error handling across all services with typed error codes,
// structured error details, and automatic HTTP status code mapping.
//
// # Basic Usage
//
// Creating errors with codes:
//
//	import "github.com/tenauth/flow-idm/pkg/errors"
//
//	// Create a simple error
//	err := errors.New(errors.ErrCodeFlowNotFound, "flow not found")
//
//	// Wrap an existing error
//	err := errors.Wrap(repoErr, errors.ErrCodeInternal, "failed to load flow")
//
//	// Use convenience constructors
//	err := errors.NotFound("flow", flowID)
//	err := errors.InvalidInput("user_code", "invalid format")
//
// # Error Inspection
//
// Check error codes and extract information:
//
//	if errors.IsCode(err, errors.ErrCodeFlowInvalidated) {
//		// restart the authentication attempt
//	}
//
//	code := errors.GetCode(err)
//	details := errors.GetDetails(err)
//
// # HTTP Status Code Mapping
//
// Structured errors map to HTTP status codes automatically:
//
//	var structuredErr *errors.Error
//	if errors.As(err, &structuredErr) {
//		statusCode := structuredErr.HTTPStatusCode()
//		http.Error(w, structuredErr.Message, statusCode)
//	}
//
// # Protocol Errors
//
// ProtocolError carries the OAuth 2.0 wire format used by the token,
// device authorization and backchannel authentication endpoints:
//
//	return errors.Protocol(errors.ProtoAuthorizationPending,
//		"user has not completed authorization")
//
// slow_down responses carry the new minimum polling interval:
//
//	return errors.SlowDown(interval + 5)
package errors
