package wellknown

import "github.com/tenauth/flow-idm/pkg/oauth2client"

// Config holds the values the discovery documents are built from.
type Config struct {
	// Issuer is the provider's issuer identifier.
	Issuer string

	// BaseURL prefixes every advertised endpoint URL.
	BaseURL string

	// Scopes the provider supports. Defaults to openid/profile/email.
	Scopes []string
}

// ProviderMetadata is the OpenID Provider Metadata document, covering the
// RFC 8414 authorization server metadata fields plus the device and
// backchannel grant extensions.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`

	// RFC 8628
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint,omitempty"`

	// CIBA Core
	BackchannelAuthenticationEndpoint      string   `json:"backchannel_authentication_endpoint,omitempty"`
	BackchannelTokenDeliveryModesSupported []string `json:"backchannel_token_delivery_modes_supported,omitempty"`
	BackchannelUserCodeParameterSupported  bool     `json:"backchannel_user_code_parameter_supported"`

	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	SubjectTypesSupported             []string `json:"subject_types_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// NewProviderMetadata builds the discovery document for the provider.
func NewProviderMetadata(config Config) *ProviderMetadata {
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}

	return &ProviderMetadata{
		Issuer:                config.Issuer,
		AuthorizationEndpoint: config.BaseURL + "/oauth2/authorize",
		TokenEndpoint:         config.BaseURL + "/oauth2/token",
		JwksURI:               config.BaseURL + "/.well-known/jwks.json",
		RegistrationEndpoint:  config.BaseURL + "/oauth2/clients",
		RevocationEndpoint:    config.BaseURL + "/oauth2/revoke",

		DeviceAuthorizationEndpoint: config.BaseURL + "/oauth2/device_authorization",

		BackchannelAuthenticationEndpoint: config.BaseURL + "/oauth2/bc-authorize",
		BackchannelTokenDeliveryModesSupported: []string{
			string(oauth2client.DeliveryPoll),
			string(oauth2client.DeliveryPing),
			string(oauth2client.DeliveryPush),
		},

		ScopesSupported:        scopes,
		ResponseTypesSupported: []string{"code"},
		GrantTypesSupported: []string{
			oauth2client.GrantAuthorizationCode,
			oauth2client.GrantRefreshToken,
			oauth2client.GrantDeviceCode,
			oauth2client.GrantCIBA,
		},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256", "HS256"},
	}
}
