package tokengenerator

import (
	"context"
	"strconv"
	"time"
)

// TokenSet is the OAuth 2.0 token response body. RefreshToken is omitted
// from the JSON entirely when not issued, never serialized as null.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenSetIssuer mints complete token responses for completed grants.
type TokenSetIssuer struct {
	jwtService *JwtService
}

// NewTokenSetIssuer creates a token set issuer backed by the JwtService.
func NewTokenSetIssuer(jwtService *JwtService) *TokenSetIssuer {
	return &TokenSetIssuer{jwtService: jwtService}
}

// IssueTokenSet mints an access token and, when requested, a refresh token
// and an OIDC ID token for the subject.
func (i *TokenSetIssuer) IssueTokenSet(subject, scope string, extraClaims map[string]interface{}, withRefresh, withID bool) (*TokenSet, error) {
	accessToken, expiry, err := i.jwtService.GenerateToken(ACCESS_TOKEN_NAME, subject, nil, extraClaims)
	if err != nil {
		return nil, err
	}

	set := &TokenSet{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiry).Seconds()),
		Scope:       scope,
	}

	if withRefresh {
		refreshToken, _, err := i.jwtService.GenerateToken(REFRESH_TOKEN_NAME, subject, nil, extraClaims)
		if err != nil {
			return nil, err
		}
		set.RefreshToken = refreshToken
	}

	if withID {
		idToken, _, err := i.jwtService.GenerateToken(ID_TOKEN_NAME, subject, nil, extraClaims)
		if err != nil {
			return nil, err
		}
		set.IDToken = idToken
	}

	return set, nil
}

// IssueTokens mints a token set as a flat map, the form the flow executor
// stores on completed sessions.
func (i *TokenSetIssuer) IssueTokens(ctx context.Context, subject string, extraClaims map[string]any) (map[string]string, error) {
	set, err := i.IssueTokenSet(subject, "", extraClaims, true, true)
	if err != nil {
		return nil, err
	}
	tokens := map[string]string{
		ACCESS_TOKEN_NAME:  set.AccessToken,
		REFRESH_TOKEN_NAME: set.RefreshToken,
		ID_TOKEN_NAME:      set.IDToken,
		"token_type":       set.TokenType,
		"expires_in":       strconv.FormatInt(set.ExpiresIn, 10),
	}
	return tokens, nil
}
