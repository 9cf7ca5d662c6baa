// Package oauth2client provides OAuth2 client management for flow-idm.
//
// This package manages OAuth2 client registration, validation, and credential
// management. Clients register the grant types they may use on the token
// endpoint, including the device authorization grant (RFC 8628) and the CIBA
// backchannel grant, plus the CIBA token delivery mode (poll, ping or push)
// and notification endpoint for ping/push delivery.
//
// # Basic Usage
//
//	import "github.com/tenauth/flow-idm/pkg/oauth2client"
//
//	repo := oauth2client.NewInMemClientRepository()
//	service := oauth2client.NewClientService(repo)
//
//	// Register a confidential client
//	client, err := service.RegisterClient(ctx, &oauth2client.Client{
//		ClientID:   "my-app",
//		GrantTypes: []string{oauth2client.GrantDeviceCode},
//		ClientType: "confidential",
//	}, secret)
//
//	// Authenticate on the token endpoint
//	client, err := service.Authenticate(ctx, clientID, clientSecret)
//	if err := service.RequireGrant(client, oauth2client.GrantDeviceCode); err != nil {
//		// unauthorized_client
//	}
//
// Client secrets are stored as bcrypt hashes; the plaintext is only returned
// once at registration time.
package oauth2client
