// Package oauth2 serves the shared token endpoint and token revocation.
//
// The token endpoint dispatches on grant_type: the device authorization
// grant and the CIBA grant both redeem their codes here, after the client
// authenticates with its registered credentials. Revocation follows RFC
// 7009 and responds identically whether or not the presented token was
// known, so the endpoint cannot be used as a validity oracle.
package oauth2
