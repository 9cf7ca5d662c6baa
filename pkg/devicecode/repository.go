package devicecode

import (
	"context"
	"errors"
	"sync"
)

var ErrAuthorizationNotFound = errors.New("device authorization not found")

// DeviceAuthorizationRepository persists device grant attempts.
type DeviceAuthorizationRepository interface {
	Create(ctx context.Context, auth *DeviceAuthorization) error
	GetByDeviceCode(ctx context.Context, deviceCode string) (*DeviceAuthorization, error)
	// GetByUserCode looks up by the normalized user code.
	GetByUserCode(ctx context.Context, userCode string) (*DeviceAuthorization, error)
	Update(ctx context.Context, auth *DeviceAuthorization) error
	Delete(ctx context.Context, deviceCode string) error
}

// InMemDeviceAuthorizationRepository implements the repository using
// in-memory maps.
type InMemDeviceAuthorizationRepository struct {
	byDeviceCode map[string]*DeviceAuthorization
	byUserCode   map[string]string
	mu           sync.Mutex
}

// NewInMemDeviceAuthorizationRepository creates a new in-memory repository.
func NewInMemDeviceAuthorizationRepository() *InMemDeviceAuthorizationRepository {
	return &InMemDeviceAuthorizationRepository{
		byDeviceCode: make(map[string]*DeviceAuthorization),
		byUserCode:   make(map[string]string),
	}
}

func (r *InMemDeviceAuthorizationRepository) Create(ctx context.Context, auth *DeviceAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byDeviceCode[auth.DeviceCode]; exists {
		return errors.New("device code already exists")
	}
	normalized := NormalizeUserCode(auth.UserCode)
	if _, exists := r.byUserCode[normalized]; exists {
		return errors.New("user code already exists")
	}
	r.byDeviceCode[auth.DeviceCode] = auth
	r.byUserCode[normalized] = auth.DeviceCode
	return nil
}

func (r *InMemDeviceAuthorizationRepository) GetByDeviceCode(ctx context.Context, deviceCode string) (*DeviceAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auth, exists := r.byDeviceCode[deviceCode]
	if !exists {
		return nil, ErrAuthorizationNotFound
	}
	return auth, nil
}

func (r *InMemDeviceAuthorizationRepository) GetByUserCode(ctx context.Context, userCode string) (*DeviceAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deviceCode, exists := r.byUserCode[NormalizeUserCode(userCode)]
	if !exists {
		return nil, ErrAuthorizationNotFound
	}
	auth, exists := r.byDeviceCode[deviceCode]
	if !exists {
		return nil, ErrAuthorizationNotFound
	}
	return auth, nil
}

func (r *InMemDeviceAuthorizationRepository) Update(ctx context.Context, auth *DeviceAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byDeviceCode[auth.DeviceCode]; !exists {
		return ErrAuthorizationNotFound
	}
	r.byDeviceCode[auth.DeviceCode] = auth
	return nil
}

func (r *InMemDeviceAuthorizationRepository) Delete(ctx context.Context, deviceCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auth, exists := r.byDeviceCode[deviceCode]
	if !exists {
		return nil
	}
	delete(r.byUserCode, NormalizeUserCode(auth.UserCode))
	delete(r.byDeviceCode, deviceCode)
	return nil
}
