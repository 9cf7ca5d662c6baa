// Package devicecode implements the OAuth 2.0 Device Authorization Grant
// (RFC 8628) for input-constrained clients such as TVs and IoT devices.
//
// The client obtains a device_code/user_code pair from the authorization
// endpoint, shows the user code and verification URI to the user, and polls
// the token endpoint with the device code. The user approves or denies the
// request on a secondary device. Polling is rate limited per device code:
// every poll is recorded before the response is computed, so concurrent
// fast polls cannot slip under the interval.
//
// User codes use a reduced alphabet that excludes 0, 1, O, I and L to avoid
// transcription mistakes, and are compared case-insensitively with
// separators stripped.
package devicecode
