package tokengenerator

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token name constants
const (
	ACCESS_TOKEN_NAME  = "access_token"
	REFRESH_TOKEN_NAME = "refresh_token"
	ID_TOKEN_NAME      = "id_token"
)

// Default token expiry durations
const (
	DefaultAccessTokenExpiry  = 15 * time.Minute
	DefaultRefreshTokenExpiry = 24 * time.Hour
	DefaultIDTokenExpiry      = time.Hour
)

// JwtService issues and parses the named token kinds, delegating signing
// to a TokenGenerator per token name.
type JwtService struct {
	TokenGenerators       map[string]TokenGenerator
	DefaultTokenGenerator TokenGenerator

	// Configurable token expiry durations
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	IDTokenExpiry      time.Duration
}

// JwtServiceOption is a function that configures a JwtService
type JwtServiceOption func(*JwtService)

// WithTokenGenerator sets the token generator for a specific token name
func WithTokenGenerator(tokenName string, tokenGenerator TokenGenerator) JwtServiceOption {
	return func(js *JwtService) {
		if js.TokenGenerators == nil {
			js.TokenGenerators = make(map[string]TokenGenerator)
		}
		js.TokenGenerators[tokenName] = tokenGenerator
	}
}

// WithDefaultTokenGenerator sets the default token generator
func WithDefaultTokenGenerator(tokenGenerator TokenGenerator) JwtServiceOption {
	return func(js *JwtService) {
		js.DefaultTokenGenerator = tokenGenerator
	}
}

// WithAccessTokenExpiry sets the access token expiry duration
func WithAccessTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.AccessTokenExpiry = expiry
	}
}

// WithRefreshTokenExpiry sets the refresh token expiry duration
func WithRefreshTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.RefreshTokenExpiry = expiry
	}
}

// WithIDTokenExpiry sets the ID token expiry duration
func WithIDTokenExpiry(expiry time.Duration) JwtServiceOption {
	return func(js *JwtService) {
		js.IDTokenExpiry = expiry
	}
}

// NewJwtService creates a new JwtService
func NewJwtService(options ...JwtServiceOption) *JwtService {
	js := &JwtService{
		TokenGenerators:    make(map[string]TokenGenerator),
		AccessTokenExpiry:  DefaultAccessTokenExpiry,
		RefreshTokenExpiry: DefaultRefreshTokenExpiry,
		IDTokenExpiry:      DefaultIDTokenExpiry,
	}

	for _, option := range options {
		option(js)
	}

	return js
}

// GenerateToken generates the named token for the subject. The expiry is
// chosen by token name; unknown names get the access token expiry.
func (js *JwtService) GenerateToken(tokenName, subject string, rootModifications map[string]interface{}, extraClaims map[string]interface{}) (string, time.Time, error) {
	tokenGenerator, ok := js.TokenGenerators[tokenName]
	if !ok {
		tokenGenerator = js.DefaultTokenGenerator
	}

	var expiry time.Duration
	switch tokenName {
	case ACCESS_TOKEN_NAME:
		expiry = js.AccessTokenExpiry
	case REFRESH_TOKEN_NAME:
		expiry = js.RefreshTokenExpiry
	case ID_TOKEN_NAME:
		expiry = js.IDTokenExpiry
	default:
		expiry = js.AccessTokenExpiry
	}

	return tokenGenerator.GenerateToken(subject, expiry, rootModifications, extraClaims)
}

// ParseToken parses and validates a token
func (js *JwtService) ParseToken(tokenName, tokenStr string) (*jwt.Token, error) {
	tokenGenerator, ok := js.TokenGenerators[tokenName]
	if !ok {
		tokenGenerator = js.DefaultTokenGenerator
	}
	return tokenGenerator.ParseToken(tokenStr)
}
