// Package ciba implements OpenID Connect Client-Initiated Backchannel
// Authentication (CIBA). A client starts an authentication for a known user
// without any user interaction on its own device; the user approves on an
// authentication device (typically a phone), and the client obtains tokens
// by polling, by a ping notification followed by a token request, or by a
// push delivery of the tokens themselves.
//
// The token_issued flag on each request is flipped with a compare-and-swap
// so tokens for one auth_req_id are issued at most once, no matter how many
// pollers race.
package ciba
