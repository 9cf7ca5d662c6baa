package jwks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const keyStoreFileName = "jwks_keys.json"

// FileJWKSRepository implements JWKSRepository backed by a JSON file, so
// signing keys survive restarts. Reads go through the in-memory copy and
// every mutation persists the whole store.
type FileJWKSRepository struct {
	dataDir  string
	keyStore *KeyStore
	mutex    sync.RWMutex
}

// NewFileJWKSRepository creates a file-backed JWKS repository, loading any
// previously saved keys from dataDir.
func NewFileJWKSRepository(dataDir string) (*FileJWKSRepository, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	repo := &FileJWKSRepository{
		dataDir:  dataDir,
		keyStore: &KeyStore{Keys: []KeyPair{}},
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load key store: %w", err)
	}
	return repo, nil
}

func (r *FileJWKSRepository) GetKeyStore(ctx context.Context) (*KeyStore, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return copyKeyStore(r.keyStore), nil
}

func (r *FileJWKSRepository) SaveKeyStore(ctx context.Context, keyStore *KeyStore) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.keyStore = copyKeyStore(keyStore)
	return r.persist()
}

func (r *FileJWKSRepository) GetKeyByID(ctx context.Context, kid string) (*KeyPair, error) {
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

func (r *FileJWKSRepository) GetActiveKey(ctx context.Context) (*KeyPair, error) {
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

func (r *FileJWKSRepository) AddKey(ctx context.Context, keyPair *KeyPair) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existingKey := range r.keyStore.Keys {
		if existingKey.Kid == keyPair.Kid {
			return fmt.Errorf("key already exists: %s", keyPair.Kid)
		}
	}
	r.keyStore.Keys = append(r.keyStore.Keys, *keyPair)
	return r.persist()
}

func (r *FileJWKSRepository) DeleteKey(ctx context.Context, kid string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, keyPair := range r.keyStore.Keys {
		if keyPair.Kid == kid {
			r.keyStore.Keys = append(r.keyStore.Keys[:i], r.keyStore.Keys[i+1:]...)
			return r.persist()
		}
	}
	return fmt.Errorf("key not found: %s", kid)
}

func (r *FileJWKSRepository) SetActiveKey(ctx context.Context, kid string) error {
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
	return r.persist()
}

func (r *FileJWKSRepository) ListKeys(ctx context.Context) ([]*KeyPair, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	keys := make([]*KeyPair, len(r.keyStore.Keys))
	for i, keyPair := range r.keyStore.Keys {
		keyCopy := keyPair
		keys[i] = &keyCopy
	}
	return keys, nil
}

func (r *FileJWKSRepository) CleanupOldKeys(ctx context.Context, maxAge time.Duration) error {
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
	return r.persist()
}

func (r *FileJWKSRepository) storePath() string {
	return filepath.Join(r.dataDir, keyStoreFileName)
}

func (r *FileJWKSRepository) load() error {
	data, err := os.ReadFile(r.storePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, r.keyStore)
}

// persist writes the store through a temp file and rename so a crash never
// leaves a torn file. Callers must hold the write lock.
func (r *FileJWKSRepository) persist() error {
	data, err := json.MarshalIndent(r.keyStore, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key store: %w", err)
	}

	tmpPath := r.storePath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write key store: %w", err)
	}
	return os.Rename(tmpPath, r.storePath())
}
