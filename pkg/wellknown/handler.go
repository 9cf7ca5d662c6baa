package wellknown

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tenauth/flow-idm/pkg/jwks"
)

// Handler serves the discovery and JWKS endpoints.
type Handler struct {
	config      Config
	jwksService *jwks.JWKSService
}

// NewHandler creates a discovery handler.
func NewHandler(config Config, jwksService *jwks.JWKSService) *Handler {
	return &Handler{
		config:      config,
		jwksService: jwksService,
	}
}

// Routes mounts the well-known endpoints. Mount at the server root.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/.well-known/openid-configuration", h.ProviderMetadata)
	r.Get("/.well-known/oauth-authorization-server", h.ProviderMetadata)
	r.Get("/.well-known/jwks.json", h.JWKS)
}

// ProviderMetadata serves the discovery document. The same document covers
// both the OIDC and the RFC 8414 well-known paths.
func (h *Handler) ProviderMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	render.JSON(w, r, NewProviderMetadata(h.config))
}

// JWKS serves the public signing keys.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	keySet, err := h.jwksService.GetJWKS(r.Context())
	if err != nil {
		slog.Error("Failed to build JWKS document", "err", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "internal_error"})
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	render.JSON(w, r, keySet)
}
