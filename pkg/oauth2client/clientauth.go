package oauth2client

import (
	"context"
	"net/http"

	"github.com/tenauth/flow-idm/pkg/errors"
)

// AuthenticateRequest resolves the client credentials of an OAuth endpoint
// request. HTTP Basic auth wins over form body parameters, per RFC 6749
// section 2.3.1.
func AuthenticateRequest(ctx context.Context, service *ClientService, r *http.Request) (*Client, error) {
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostFormValue("client_id")
		clientSecret = r.PostFormValue("client_secret")
	}
	if clientID == "" {
		return nil, errors.Protocol(errors.ProtoInvalidClient, "client authentication required")
	}
	client, err := service.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, errors.Protocol(errors.ProtoInvalidClient, "client authentication failed")
	}
	return client, nil
}
