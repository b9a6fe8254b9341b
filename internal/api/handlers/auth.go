// Package handlers contains the HTTP handler implementations for the
// notekeeper API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notekeeper/internal/core"
	"notekeeper/internal/types"
)

// AuthService defines the account operations used by the auth handler.
// Implemented by auth.Service.
type AuthService interface {
	Register(ctx context.Context, email, name, password string) (*types.User, string, error)
	Login(ctx context.Context, email, password string) (*types.User, string, error)
	ProvisionExternal(ctx context.Context, provider string, rawProfile map[string]any) (*types.User, string, error)
	Logout(ctx context.Context, token string) error
}

// RegisterRequest is the request body for POST /v1/auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest is the request body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ExternalLoginRequest is the request body for POST /v1/auth/external.
// Profile carries the provider's user-info payload verbatim; its shape is
// normalized server-side.
type ExternalLoginRequest struct {
	Provider string         `json:"provider" validate:"required"`
	Profile  map[string]any `json:"profile" validate:"required"`
}

// SessionResponse returns the user plus the raw bearer token. The token is
// shown exactly once; only its hash is stored.
type SessionResponse struct {
	User  *types.User `json:"user"`
	Token string      `json:"token"`
}

// AuthHandler serves registration, login, and logout.
type AuthHandler struct {
	svc       AuthService
	validator *core.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates a new AuthHandler with the provided dependencies.
func NewAuthHandler(svc AuthService, v *core.Validator, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{svc: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the auth endpoints on the given router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/external", h.External)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me)
}

// Register handles POST /v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, token, err := h.svc.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{
		Data: SessionResponse{User: user, Token: token},
	})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: SessionResponse{User: user, Token: token},
	})
}

// External handles POST /v1/auth/external: sign-in with an identity asserted
// by an external provider, creating the account on first sight.
func (h *AuthHandler) External(w http.ResponseWriter, r *http.Request) {
	var req ExternalLoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, token, err := h.svc.ProvisionExternal(r.Context(), req.Provider, req.Profile)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: SessionResponse{User: user, Token: token},
	})
}

// Logout handles POST /v1/auth/logout. The auth middleware has already
// validated the token; deleting it again here is idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := h.svc.Logout(r.Context(), token); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"logged_out": true}})
}

// Me handles GET /v1/auth/me, returning the authenticated actor.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: actor})
}

// bearerToken extracts the raw token from the Authorization header, or ""
// when absent. Validation already happened in the auth middleware.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) {
		return h[len(prefix):]
	}
	return ""
}
