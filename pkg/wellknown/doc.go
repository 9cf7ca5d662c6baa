// Package wellknown serves the provider's discovery documents: OpenID
// Connect Discovery, OAuth 2.0 Authorization Server Metadata (RFC 8414),
// and the JWKS document the metadata points at.
package wellknown
