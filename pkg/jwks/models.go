package jwks

import (
	"crypto/rsa"
	"encoding/json"
	"time"
)

// JWKS is a JSON Web Key Set as defined in RFC 7517.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is the public half of a signing key in RFC 7517 form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg,omitempty"`

	// RSA modulus and exponent, base64url encoded
	N string `json:"n"`
	E string `json:"e"`
}

// KeyPair is a signing key with its metadata. At most one key in a store
// is active at a time; rotated-out keys stay published until cleaned up.
type KeyPair struct {
	Kid        string          `json:"kid"`
	Alg        string          `json:"alg"`
	PrivateKey *rsa.PrivateKey `json:"-"`
	PublicKey  *rsa.PublicKey  `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
	Active     bool            `json:"active"`
}

// ToJWK converts the key pair to its public JWK representation.
func (kp *KeyPair) ToJWK() *JWK {
	return &JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.Kid,
		Alg: kp.Alg,
		N:   encodeModulus(kp.PublicKey),
		E:   encodeExponent(kp.PublicKey),
	}
}

// KeyStore is the persisted set of signing keys.
type KeyStore struct {
	Keys []KeyPair `json:"keys"`
}

// MarshalJSON persists the private key as PEM alongside the metadata.
func (kp *KeyPair) MarshalJSON() ([]byte, error) {
	type alias KeyPair
	return json.Marshal(&struct {
		*alias
		PrivateKeyPEM string `json:"private_key_pem"`
	}{
		alias:         (*alias)(kp),
		PrivateKeyPEM: encodePrivateKeyPEM(kp.PrivateKey),
	})
}

// UnmarshalJSON restores the key pair; the public key is derived from the
// private key rather than stored.
func (kp *KeyPair) UnmarshalJSON(data []byte) error {
	type alias KeyPair
	aux := &struct {
		*alias
		PrivateKeyPEM string `json:"private_key_pem"`
	}{
		alias: (*alias)(kp),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	privateKey, err := decodePrivateKeyPEM(aux.PrivateKeyPEM)
	if err != nil {
		return err
	}
	kp.PrivateKey = privateKey
	kp.PublicKey = &privateKey.PublicKey
	return nil
}
