package tokengenerator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenGenerator interface defines methods for token operations
type TokenGenerator interface {
	// GenerateToken generates a token with the given subject, expiry, root modifications and extra claims
	GenerateToken(subject string, expiry time.Duration, rootModifications map[string]interface{}, extraClaims map[string]interface{}) (string, time.Time, error)

	// ParseToken parses and validates a token
	ParseToken(tokenStr string) (*jwt.Token, error)
}

// Claims struct for JWT claims
type Claims struct {
	ExtraClaims         interface{} `json:"extra_claims,omitempty"`
	CustomClaims        interface{} `json:"custom_claims,omitempty"`
	Username            string      `json:"username,omitempty"`
	Email               string      `json:"email,omitempty"`
	EmailVerified       bool        `json:"email_verified,omitempty"`
	PhoneNumber         string      `json:"phone_number,omitempty"`
	PhoneNumberVerified bool        `json:"phone_number_verified,omitempty"`
	Groups              []string    `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// JwtTokenGenerator implements the TokenGenerator interface
type JwtTokenGenerator struct {
	Secret   string
	Issuer   string
	Audience string
}

// NewJwtTokenGenerator creates a new JwtTokenGenerator
func NewJwtTokenGenerator(secret, issuer, audience string) *JwtTokenGenerator {
	return &JwtTokenGenerator{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
	}
}

// GenerateToken creates a new token with the given subject and claims
func (g *JwtTokenGenerator) GenerateToken(subject string, expiry time.Duration, rootModifications map[string]interface{}, extraClaims map[string]interface{}) (string, time.Time, error) {
	claims := Claims{
		ExtraClaims: extraClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			NotBefore: jwt.NewNumericDate(time.Now().UTC().Add(-5 * time.Minute)),
			Issuer:    g.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{g.Audience},
		},
	}
	applyRootModifications(&claims, rootModifications)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signingKey := []byte(g.Secret)
	ss, err := token.SignedString(signingKey)
	if err != nil {
		slog.Error("Failed sign JWT Claim string!", "err", err)
		return "", time.Time{}, err
	}
	return ss, claims.ExpiresAt.Time, nil
}

// ParseToken parses and validates a token string
func (g *JwtTokenGenerator) ParseToken(tokenStr string) (*jwt.Token, error) {
	signingKey := []byte(g.Secret)
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})
	if err != nil {
		slog.Error("Failed parse JWT string!", "err", err)
		return token, err
	}

	if token.Valid {
		return token, nil
	}

	slog.Error("Failed parse token claims!", "err", "token invalid")
	return token, fmt.Errorf("failed_parse_token_claims")
}

// applyRootModifications overrides registered and profile claims from the
// caller-supplied map.
func applyRootModifications(claims *Claims, rootModifications map[string]interface{}) {
	if rootModifications == nil {
		return
	}
	if iss, ok := rootModifications["iss"].(string); ok {
		claims.RegisteredClaims.Issuer = iss
	}
	if sub, ok := rootModifications["sub"].(string); ok {
		claims.RegisteredClaims.Subject = sub
	}
	if aud, ok := rootModifications["aud"].([]string); ok {
		claims.RegisteredClaims.Audience = jwt.ClaimStrings(aud)
	}
	if jti, ok := rootModifications["jti"].(string); ok {
		claims.RegisteredClaims.ID = jti
	}
	if email, ok := rootModifications["email"].(string); ok {
		claims.Email = email
	}
	if username, ok := rootModifications["username"].(string); ok {
		claims.Username = username
	}
	if emailVerified, ok := rootModifications["email_verified"].(bool); ok {
		claims.EmailVerified = emailVerified
	}
	if phone, ok := rootModifications["phone"].(string); ok {
		claims.PhoneNumber = phone
	}
	if phoneVerified, ok := rootModifications["phone_number_verified"].(bool); ok {
		claims.PhoneNumberVerified = phoneVerified
	}
	if groups, ok := rootModifications["groups"].([]string); ok {
		claims.Groups = groups
	}
}
