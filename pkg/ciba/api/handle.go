package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tenauth/flow-idm/pkg/ciba"
	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
)

// Handle serves the backchannel authentication endpoint and the
// authentication-device approval endpoints.
type Handle struct {
	cibaService   *ciba.CibaService
	clientService *oauth2client.ClientService
}

// NewHandle creates the CIBA API handler.
func NewHandle(cibaService *ciba.CibaService, clientService *oauth2client.ClientService) *Handle {
	return &Handle{
		cibaService:   cibaService,
		clientService: clientService,
	}
}

// Routes mounts the backchannel authentication endpoints.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/bc-authorize", h.BackchannelAuthorize)
	r.Get("/bc-authorize/{authReqID}", h.GetAuthRequest)
	r.Post("/bc-authorize/{authReqID}/approve", h.Approve)
	r.Post("/bc-authorize/{authReqID}/deny", h.Deny)
}

// BackchannelAuthorize implements the CIBA authentication endpoint.
func (h *Handle) BackchannelAuthorize(w http.ResponseWriter, r *http.Request) {
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

	request := &ciba.BackchannelAuthRequest{
		Scope:                   r.PostFormValue("scope"),
		LoginHint:               r.PostFormValue("login_hint"),
		LoginHintToken:          r.PostFormValue("login_hint_token"),
		IDTokenHint:             r.PostFormValue("id_token_hint"),
		BindingMessage:          r.PostFormValue("binding_message"),
		ClientNotificationToken: r.PostFormValue("client_notification_token"),
		UserCode:                r.PostFormValue("user_code"),
		ACRValues:               r.PostFormValue("acr_values"),
	}
	if requestedExpiry := r.PostFormValue("requested_expiry"); requestedExpiry != "" {
		seconds, err := strconv.Atoi(requestedExpiry)
		if err != nil || seconds <= 0 {
			renderError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "requested_expiry must be a positive integer"))
			return
		}
		request.RequestedExpiry = time.Duration(seconds) * time.Second
	}

	response, err := h.cibaService.Authorize(ctx, client, request)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, response)
}

// GetAuthRequest returns the pending request for authentication-device UIs.
func (h *Handle) GetAuthRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.cibaService.Get(r.Context(), chi.URLParam(r, "authReqID"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"client_id":       request.ClientID,
		"scope":           request.Scope,
		"binding_message": request.BindingMessage,
		"expires_at":      request.ExpiresAt,
	})
}

// Approve records the user's consent on the authentication device.
func (h *Handle) Approve(w http.ResponseWriter, r *http.Request) {
	if err := h.cibaService.Approve(r.Context(), chi.URLParam(r, "authReqID")); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"status": "approved"})
}

// Deny records the user's rejection on the authentication device.
func (h *Handle) Deny(w http.ResponseWriter, r *http.Request) {
	if err := h.cibaService.Deny(r.Context(), chi.URLParam(r, "authReqID")); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"status": "denied"})
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
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		render.Status(r, structured.HTTPStatusCode())
		render.JSON(w, r, map[string]any{
			"error":   string(structured.Code),
			"message": structured.Message,
		})
		return
	}
	slog.Error("Unhandled backchannel endpoint error", "err", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"error": "server_error"})
}
