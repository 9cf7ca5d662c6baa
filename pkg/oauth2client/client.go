package oauth2client

import (
	"golang.org/x/crypto/bcrypt"
)

// Grant type identifiers accepted on the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
	GrantDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
	GrantCIBA              = "urn:openid:params:grant-type:ciba"
)

// DeliveryMode is how a CIBA client learns its authentication completed.
type DeliveryMode string

const (
	DeliveryPoll DeliveryMode = "poll"
	DeliveryPing DeliveryMode = "ping"
	DeliveryPush DeliveryMode = "push"
)

// Client represents a registered OAuth2 client.
type Client struct {
	ClientID      string   `json:"client_id"`
	SecretHash    string   `json:"-"`
	Name          string   `json:"client_name"`
	RedirectURIs  []string `json:"redirect_uris,omitempty"`
	ResponseTypes []string `json:"response_types,omitempty"`
	GrantTypes    []string `json:"grant_types"`
	Scopes        []string `json:"scopes"`
	ClientType    string   `json:"client_type"` // "public" or "confidential"

	// CIBA registration metadata
	BackchannelDeliveryMode         DeliveryMode `json:"backchannel_token_delivery_mode,omitempty"`
	BackchannelNotificationEndpoint string       `json:"backchannel_client_notification_endpoint,omitempty"`
}

// IsPublic reports whether the client authenticates without a secret.
func (c *Client) IsPublic() bool {
	return c.ClientType == "public"
}

// SetSecret hashes and stores the client secret.
func (c *Client) SetSecret(secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.SecretHash = string(hash)
	return nil
}

// VerifySecret checks a presented secret against the stored hash.
func (c *Client) VerifySecret(secret string) bool {
	if c.SecretHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// ValidateRedirectURI checks if the provided redirect URI is allowed for this client
func (c *Client) ValidateRedirectURI(redirectURI string) bool {
	for _, allowedURI := range c.RedirectURIs {
		if allowedURI == redirectURI {
			return true
		}
	}
	return false
}

// ValidateResponseType checks if the provided response type is allowed for this client
func (c *Client) ValidateResponseType(responseType string) bool {
	for _, allowedType := range c.ResponseTypes {
		if allowedType == responseType {
			return true
		}
	}
	return false
}

// ValidateScope checks if the provided scopes are allowed for this client
func (c *Client) ValidateScope(requestedScopes []string) bool {
	for _, requestedScope := range requestedScopes {
		found := false
		for _, allowedScope := range c.Scopes {
			if allowedScope == requestedScope {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SupportsGrantType checks if the client is registered for the grant type
func (c *Client) SupportsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// SupportsDeliveryMode checks the client's registered CIBA delivery mode.
// Clients without a registered mode default to poll.
func (c *Client) SupportsDeliveryMode(mode DeliveryMode) bool {
	if c.BackchannelDeliveryMode == "" {
		return mode == DeliveryPoll
	}
	return c.BackchannelDeliveryMode == mode
}
