package oauth2

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tenauth/flow-idm/pkg/ciba"
	"github.com/tenauth/flow-idm/pkg/devicecode"
	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
)

// Handle serves the token and revocation endpoints.
type Handle struct {
	clientService *oauth2client.ClientService
	deviceService *devicecode.DeviceService
	cibaService   *ciba.CibaService
	revocations   *RevocationStore
}

// NewHandle creates the token endpoint handler.
func NewHandle(clientService *oauth2client.ClientService, deviceService *devicecode.DeviceService, cibaService *ciba.CibaService, revocations *RevocationStore) *Handle {
	return &Handle{
		clientService: clientService,
		deviceService: deviceService,
		cibaService:   cibaService,
		revocations:   revocations,
	}
}

// Routes mounts the token and revocation endpoints.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/token", h.TokenEndpoint)
	r.Post("/revoke", h.RevokeEndpoint)
}

// TokenEndpoint dispatches on grant_type after authenticating the client.
func (h *Handle) TokenEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		renderError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "malformed request body"))
		return
	}

	client, err := oauth2client.AuthenticateRequest(ctx, h.clientService, r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	grantType := r.PostFormValue("grant_type")
	switch grantType {
	case oauth2client.GrantDeviceCode:
		deviceCode := r.PostFormValue("device_code")
		if deviceCode == "" {
			renderError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "device_code is required"))
			return
		}
		tokens, err := h.deviceService.Poll(ctx, client, deviceCode)
		if err != nil {
			renderError(w, r, err)
			return
		}
		renderTokens(w, r, tokens)

	case oauth2client.GrantCIBA:
		authReqID := r.PostFormValue("auth_req_id")
		if authReqID == "" {
			renderError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "auth_req_id is required"))
			return
		}
		tokens, err := h.cibaService.PollToken(ctx, client, authReqID)
		if err != nil {
			renderError(w, r, err)
			return
		}
		renderTokens(w, r, tokens)

	case "":
		renderError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "grant_type is required"))

	default:
		renderError(w, r, errors.Protocol(errors.ProtoUnsupportedGrantType, "grant_type "+grantType+" is not supported"))
	}
}

// RevokeEndpoint implements RFC 7009. The response is 200 regardless of
// whether the token was known, valid, or already revoked.
func (h *Handle) RevokeEndpoint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		renderError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "malformed request body"))
		return
	}

	client, err := oauth2client.AuthenticateRequest(ctx, h.clientService, r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	token := r.PostFormValue("token")
	if token == "" {
		renderError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "token is required"))
		return
	}

	h.revocations.Revoke(token)
	slog.Info("Token revoked", "clientID", client.ClientID)
	w.WriteHeader(http.StatusOK)
}

func renderTokens(w http.ResponseWriter, r *http.Request, tokens any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	render.JSON(w, r, tokens)
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var protoErr *errors.ProtocolError
	if stderrors.As(err, &protoErr) {
		if protoErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(protoErr.RetryAfter))
		}
		render.Status(r, protoErr.Status)
		render.JSON(w, r, protoErr)
		return
	}
	slog.Error("Unhandled token endpoint error", "err", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, errors.Protocol(errors.ProtoServerError, "internal error"))
}
