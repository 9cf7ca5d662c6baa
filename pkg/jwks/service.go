package jwks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tenauth/flow-idm/pkg/tokengenerator"
)

const defaultKeySize = 2048

// JWKSService owns the signing key lifecycle: it guarantees an active key
// exists, serves the public key set, and builds the RSA token generator the
// token services sign with.
type JWKSService struct {
	repository JWKSRepository
}

// NewJWKSService creates a JWKS service, generating an initial active key
// when the repository holds none.
func NewJWKSService(repository JWKSRepository) (*JWKSService, error) {
	service := &JWKSService{repository: repository}

	ctx := context.Background()
	if _, err := repository.GetActiveKey(ctx); err != nil {
		if _, genErr := service.generateKey(ctx, true); genErr != nil {
			return nil, fmt.Errorf("failed to generate initial signing key: %w", genErr)
		}
	}
	return service, nil
}

// GetJWKS returns all public keys in JWKS format.
func (s *JWKSService) GetJWKS(ctx context.Context) (*JWKS, error) {
	keys, err := s.repository.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	jwks := &JWKS{Keys: make([]JWK, 0, len(keys))}
	for _, keyPair := range keys {
		jwks.Keys = append(jwks.Keys, *keyPair.ToJWK())
	}
	return jwks, nil
}

// GetActiveSigningKey returns the currently active key pair.
func (s *JWKSService) GetActiveSigningKey(ctx context.Context) (*KeyPair, error) {
	return s.repository.GetActiveKey(ctx)
}

// GetKeyByID returns a key pair by its ID.
func (s *JWKSService) GetKeyByID(ctx context.Context, kid string) (*KeyPair, error) {
	return s.repository.GetKeyByID(ctx, kid)
}

// SigningGenerator builds an RSA token generator bound to the active key.
// Tokens it signs carry the key's kid, so JWKS consumers can validate them.
func (s *JWKSService) SigningGenerator(ctx context.Context, issuer, audience string) (*tokengenerator.RSATokenGenerator, error) {
	activeKey, err := s.repository.GetActiveKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("no active signing key: %w", err)
	}
	return tokengenerator.NewRSATokenGenerator(activeKey.PrivateKey, activeKey.Kid, issuer, audience), nil
}

// RotateKeys generates a fresh key and makes it the active one. Previous
// keys remain published for validation until cleaned up.
func (s *JWKSService) RotateKeys(ctx context.Context) (*KeyPair, error) {
	newKey, err := s.generateKey(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key for rotation: %w", err)
	}
	if err := s.repository.SetActiveKey(ctx, newKey.Kid); err != nil {
		return nil, fmt.Errorf("failed to activate rotated key: %w", err)
	}
	newKey.Active = true

	slog.Info("Rotated signing keys", "kid", newKey.Kid)
	return newKey, nil
}

// CleanupOldKeys removes inactive keys older than maxAge.
func (s *JWKSService) CleanupOldKeys(ctx context.Context, maxAge time.Duration) error {
	return s.repository.CleanupOldKeys(ctx, maxAge)
}

func (s *JWKSService) generateKey(ctx context.Context, active bool) (*KeyPair, error) {
	privateKey, err := generateRSAKeyPair(defaultKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	keyPair := &KeyPair{
		Kid:        uuid.New().String(),
		Alg:        "RS256",
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		CreatedAt:  time.Now().UTC(),
		Active:     active,
	}
	if err := s.repository.AddKey(ctx, keyPair); err != nil {
		return nil, fmt.Errorf("failed to store key: %w", err)
	}

	slog.Info("Generated RSA signing key", "kid", keyPair.Kid, "active", active)
	return keyPair, nil
}
