// Package jwks manages the provider's RSA signing keys and publishes the
// public half as a JSON Web Key Set (RFC 7517). Exactly one key is active
// for signing at a time; rotated-out keys stay in the set until cleanup so
// tokens signed with them keep validating.
package jwks
