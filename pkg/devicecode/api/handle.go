package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tenauth/flow-idm/pkg/devicecode"
	"github.com/tenauth/flow-idm/pkg/errors"
	"github.com/tenauth/flow-idm/pkg/oauth2client"
	"github.com/tenauth/flow-idm/pkg/ratelimit"
)

// Handle serves the device authorization endpoint and the user-facing
// verification endpoints.
type Handle struct {
	deviceService *devicecode.DeviceService
	clientService *oauth2client.ClientService
	verifyLimiter *ratelimit.FailureLimiter
}

// NewHandle creates the device grant API handler.
func NewHandle(deviceService *devicecode.DeviceService, clientService *oauth2client.ClientService, verifyLimiter *ratelimit.FailureLimiter) *Handle {
	return &Handle{
		deviceService: deviceService,
		clientService: clientService,
		verifyLimiter: verifyLimiter,
	}
}

// Routes mounts the device grant endpoints.
func (h *Handle) Routes(r chi.Router) {
	r.Post("/device_authorization", h.DeviceAuthorization)
	r.Get("/device", h.LookupUserCode)
	r.Post("/device/verify", h.VerifyUserCode)
	r.Post("/device/approve", h.ApproveUserCode)
	r.Post("/device/deny", h.DenyUserCode)
}

// DeviceAuthorization implements the RFC 8628 authorization endpoint.
func (h *Handle) DeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		renderProtocolError(w, r, errors.Protocol(errors.ProtoInvalidRequest, "malformed request body"))
		return
	}

	client, err := oauth2client.AuthenticateRequest(ctx, h.clientService, r)
	if err != nil {
		renderAnyError(w, r, err)
		return
	}

	response, err := h.deviceService.StartAuthorization(ctx, client, r.PostFormValue("scope"))
	if err != nil {
		renderAnyError(w, r, err)
		return
	}
	render.JSON(w, r, response)
}

// verifyRequest is the user verification body.
type verifyRequest struct {
	UserCode string `json:"user_code"`
	Subject  string `json:"subject"`
}

// LookupUserCode resolves a user code so the verification page can show
// which client is asking.
func (h *Handle) LookupUserCode(w http.ResponseWriter, r *http.Request) {
	if h.blocked(w, r) {
		return
	}

	userCode := r.URL.Query().Get("user_code")
	auth, err := h.deviceService.LookupUserCode(r.Context(), userCode)
	if err != nil {
		h.recordFailure(r)
		renderUserCodeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"user_code": devicecode.NormalizeUserCode(userCode),
		"client_id": auth.ClientID,
		"scope":     auth.Scope,
	})
}

// VerifyUserCode resolves a user code submitted as JSON from the
// verification page.
func (h *Handle) VerifyUserCode(w http.ResponseWriter, r *http.Request) {
	if h.blocked(w, r) {
		return
	}

	var req verifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderAnyError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	auth, err := h.deviceService.LookupUserCode(r.Context(), req.UserCode)
	if err != nil {
		h.recordFailure(r)
		renderUserCodeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"user_code": devicecode.NormalizeUserCode(req.UserCode),
		"client_id": auth.ClientID,
		"scope":     auth.Scope,
	})
}

// ApproveUserCode approves the device authorization for the signed-in user.
func (h *Handle) ApproveUserCode(w http.ResponseWriter, r *http.Request) {
	if h.blocked(w, r) {
		return
	}

	var req verifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderAnyError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Subject == "" {
		renderAnyError(w, r, errors.Unauthorized("authentication required to approve a device"))
		return
	}

	if err := h.deviceService.Approve(r.Context(), req.UserCode, req.Subject); err != nil {
		h.recordFailure(r)
		renderUserCodeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"status": "approved"})
}

// DenyUserCode denies the device authorization.
func (h *Handle) DenyUserCode(w http.ResponseWriter, r *http.Request) {
	if h.blocked(w, r) {
		return
	}

	var req verifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderAnyError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.deviceService.Deny(r.Context(), req.UserCode); err != nil {
		h.recordFailure(r)
		renderUserCodeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"status": "denied"})
}

// blocked rejects requests from callers that guessed too many bad codes.
// The check runs before any code lookup, so blocked callers learn nothing
// about which codes exist.
func (h *Handle) blocked(w http.ResponseWriter, r *http.Request) bool {
	if h.verifyLimiter == nil {
		return false
	}
	isBlocked, retryAfter := h.verifyLimiter.Blocked(clientKey(r))
	if !isBlocked {
		return false
	}
	protoErr := errors.SlowDown(int(retryAfter.Seconds()) + 1)
	protoErr.Description = "too many invalid codes, try again later"
	protoErr.Status = http.StatusTooManyRequests
	renderProtocolError(w, r, protoErr)
	return true
}

// renderUserCodeError maps a failed user code lookup to the wire
// vocabulary of the verification endpoints.
func renderUserCodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{
			"error":             "invalid_code",
			"error_description": "user code is not recognized",
		})
		return
	}
	renderAnyError(w, r, err)
}

func (h *Handle) recordFailure(r *http.Request) {
	if h.verifyLimiter == nil {
		return
	}
	h.verifyLimiter.RecordFailure(clientKey(r))
}

func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}

// renderProtocolError writes an OAuth wire-format error.
func renderProtocolError(w http.ResponseWriter, r *http.Request, protoErr *errors.ProtocolError) {
	if protoErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(protoErr.RetryAfter))
	}
	render.Status(r, protoErr.Status)
	render.JSON(w, r, protoErr)
}

// renderAnyError maps protocol and structured errors to HTTP responses.
func renderAnyError(w http.ResponseWriter, r *http.Request, err error) {
	var protoErr *errors.ProtocolError
	if stderrors.As(err, &protoErr) {
		renderProtocolError(w, r, protoErr)
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
	slog.Error("Unhandled device endpoint error", "err", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"error": "server_error"})
}
