package jwks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// JWKSRepository persists the signing key store.
type JWKSRepository interface {
	GetKeyStore(ctx context.Context) (*KeyStore, error)
	SaveKeyStore(ctx context.Context, keyStore *KeyStore) error

	GetKeyByID(ctx context.Context, kid string) (*KeyPair, error)
	GetActiveKey(ctx context.Context) (*KeyPair, error)
	AddKey(ctx context.Context, keyPair *KeyPair) error
	DeleteKey(ctx context.Context, kid string) error

	// SetActiveKey activates one key and deactivates all others.
	SetActiveKey(ctx context.Context, kid string) error

	ListKeys(ctx context.Context) ([]*KeyPair, error)

	// CleanupOldKeys removes keys created before now-maxAge, always keeping
	// the active key.
	CleanupOldKeys(ctx context.Context, maxAge time.Duration) error
}

// InMemoryJWKSRepository implements JWKSRepository using in-memory storage.
type InMemoryJWKSRepository struct {
	keyStore *KeyStore
	mutex    sync.RWMutex
}

// NewInMemoryJWKSRepository creates a new in-memory JWKS repository.
func NewInMemoryJWKSRepository() *InMemoryJWKSRepository {
	return &InMemoryJWKSRepository{
		keyStore: &KeyStore{Keys: []KeyPair{}},
	}
}

func (r *InMemoryJWKSRepository) GetKeyStore(ctx context.Context) (*KeyStore, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return copyKeyStore(r.keyStore), nil
}

func (r *InMemoryJWKSRepository) SaveKeyStore(ctx context.Context, keyStore *KeyStore) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.keyStore = copyKeyStore(keyStore)
	return nil
}

func (r *InMemoryJWKSRepository) GetKeyByID(ctx context.Context, kid string) (*KeyPair, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, keyPair := range r.keyStore.Keys {
		if keyPair.Kid == kid {
			keyCopy := keyPair
			return &keyCopy, nil
		}
	}
	return nil, fmt.Errorf("key not found: %s", kid)
}

func (r *InMemoryJWKSRepository) GetActiveKey(ctx context.Context) (*KeyPair, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, keyPair := range r.keyStore.Keys {
		if keyPair.Active {
			keyCopy := keyPair
			return &keyCopy, nil
		}
	}
	return nil, fmt.Errorf("no active key found")
}

func (r *InMemoryJWKSRepository) AddKey(ctx context.Context, keyPair *KeyPair) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existingKey := range r.keyStore.Keys {
		if existingKey.Kid == keyPair.Kid {
			return fmt.Errorf("key already exists: %s", keyPair.Kid)
		}
	}
	r.keyStore.Keys = append(r.keyStore.Keys, *keyPair)
	return nil
}

func (r *InMemoryJWKSRepository) DeleteKey(ctx context.Context, kid string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, keyPair := range r.keyStore.Keys {
		if keyPair.Kid == kid {
			r.keyStore.Keys = append(r.keyStore.Keys[:i], r.keyStore.Keys[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("key not found: %s", kid)
}

func (r *InMemoryJWKSRepository) SetActiveKey(ctx context.Context, kid string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	keyFound := false
	for i := range r.keyStore.Keys {
		if r.keyStore.Keys[i].Kid == kid {
			r.keyStore.Keys[i].Active = true
			keyFound = true
		} else {
			r.keyStore.Keys[i].Active = false
		}
	}
	if !keyFound {
		return fmt.Errorf("key not found: %s", kid)
	}
	return nil
}

func (r *InMemoryJWKSRepository) ListKeys(ctx context.Context) ([]*KeyPair, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	keys := make([]*KeyPair, len(r.keyStore.Keys))
	for i, keyPair := range r.keyStore.Keys {
		keyCopy := keyPair
		keys[i] = &keyCopy
	}
	return keys, nil
}

func (r *InMemoryJWKSRepository) CleanupOldKeys(ctx context.Context, maxAge time.Duration) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoffTime := time.Now().Add(-maxAge).UTC()
	var keysToKeep []KeyPair
	for _, keyPair := range r.keyStore.Keys {
		if keyPair.Active || keyPair.CreatedAt.After(cutoffTime) {
			keysToKeep = append(keysToKeep, keyPair)
		}
	}
	r.keyStore.Keys = keysToKeep
	return nil
}

func copyKeyStore(keyStore *KeyStore) *KeyStore {
	keys := make([]KeyPair, len(keyStore.Keys))
	copy(keys, keyStore.Keys)
	return &KeyStore{Keys: keys}
}
