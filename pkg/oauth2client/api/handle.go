package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tenauth/flow-idm/pkg/oauth2client"
)

// Handle serves the OAuth2 client registration admin API
type Handle struct {
	clientService *oauth2client.ClientService
}

// NewHandle creates a new OAuth2 client registration API handler
func NewHandle(clientService *oauth2client.ClientService) *Handle {
	return &Handle{
		clientService: clientService,
	}
}

// Routes mounts the client registration endpoints.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/clients", h.RegisterClient)
	r.Get("/clients", h.ListClients)
	r.Get("/clients/{clientID}", h.GetClient)
	r.Delete("/clients/{clientID}", h.DeleteClient)
}

// ClientRegistrationRequest is the RFC 7591 style registration body.
type ClientRegistrationRequest struct {
	ClientID                        string   `json:"client_id"`
	ClientName                      string   `json:"client_name"`
	RedirectURIs                    []string `json:"redirect_uris,omitempty"`
	ResponseTypes                   []string `json:"response_types,omitempty"`
	GrantTypes                      []string `json:"grant_types,omitempty"`
	Scopes                          []string `json:"scopes,omitempty"`
	ClientType                      string   `json:"client_type,omitempty"`
	BackchannelTokenDeliveryMode    string   `json:"backchannel_token_delivery_mode,omitempty"`
	BackchannelNotificationEndpoint string   `json:"backchannel_client_notification_endpoint,omitempty"`
}

// ClientRegistrationResponse returns the registered client with its
// one-time plaintext secret.
type ClientRegistrationResponse struct {
	*oauth2client.Client
	ClientSecret string `json:"client_secret,omitempty"`
}

// ErrorResponse is the OAuth-style error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RegisterClient registers a new OAuth2 client.
func (h *Handle) RegisterClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ClientRegistrationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Error("Failed to parse registration request", "error", err)
		badRequest(w, r, "invalid_request", "Invalid request body")
		return
	}
	if req.ClientID == "" {
		badRequest(w, r, "invalid_client_metadata", "client_id is required")
		return
	}
	if req.BackchannelTokenDeliveryMode != "" {
		switch oauth2client.DeliveryMode(req.BackchannelTokenDeliveryMode) {
		case oauth2client.DeliveryPoll, oauth2client.DeliveryPing, oauth2client.DeliveryPush:
		default:
			badRequest(w, r, "invalid_client_metadata", "unsupported backchannel_token_delivery_mode")
			return
		}
	}

	clientType := req.ClientType
	if clientType == "" {
		clientType = "confidential"
	}
	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{oauth2client.GrantAuthorizationCode}
	}

	client := &oauth2client.Client{
		ClientID:                        req.ClientID,
		Name:                            req.ClientName,
		RedirectURIs:                    req.RedirectURIs,
		ResponseTypes:                   req.ResponseTypes,
		GrantTypes:                      grantTypes,
		Scopes:                          req.Scopes,
		ClientType:                      clientType,
		BackchannelDeliveryMode:         oauth2client.DeliveryMode(req.BackchannelTokenDeliveryMode),
		BackchannelNotificationEndpoint: req.BackchannelNotificationEndpoint,
	}

	secret := ""
	if clientType == "confidential" {
		generated, err := h.clientService.GenerateClientSecret()
		if err != nil {
			slog.Error("Failed to generate client secret", "error", err)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Error: "server_error"})
			return
		}
		secret = generated
	}

	created, err := h.clientService.RegisterClient(ctx, client, secret)
	if err != nil {
		slog.Error("Client registration failed", "clientID", req.ClientID, "error", err)
		badRequest(w, r, "invalid_client_metadata", err.Error())
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ClientRegistrationResponse{Client: created, ClientSecret: secret})
}

// ListClients returns all registered clients.
func (h *Handle) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clientService.ListClients(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "server_error"})
		return
	}
	render.JSON(w, r, map[string]any{
		"clients": clients,
		"total":   len(clients),
	})
}

// GetClient returns one client by ID.
func (h *Handle) GetClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	client, err := h.clientService.GetClient(r.Context(), clientID)
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: "not_found"})
		return
	}
	render.JSON(w, r, client)
}

// DeleteClient removes a client registration.
func (h *Handle) DeleteClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if err := h.clientService.DeleteClient(r.Context(), clientID); err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: "not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func badRequest(w http.ResponseWriter, r *http.Request, code, description string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: code, ErrorDescription: description})
}
