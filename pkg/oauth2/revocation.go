package oauth2

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// RevocationStore tracks revoked tokens by digest. Tokens are hashed so
// the store never holds usable credentials.
type RevocationStore struct {
	revoked map[string]struct{}
	mu      sync.RWMutex
}

// NewRevocationStore creates an empty revocation store.
func NewRevocationStore() *RevocationStore {
	return &RevocationStore{
		revoked: make(map[string]struct{}),
	}
}

// Revoke records the token as revoked. Revoking an unknown or already
// revoked token is not an error.
func (s *RevocationStore) Revoke(token string) {
	digest := tokenDigest(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[digest] = struct{}{}
}

// IsRevoked reports whether the token was revoked.
func (s *RevocationStore) IsRevoked(token string) bool {
	digest := tokenDigest(token)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, revoked := s.revoked[digest]
	return revoked
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
