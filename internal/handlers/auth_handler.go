package handlers

import (
	"net/http"

	"cardvault-backend/internal/service/token"
	"cardvault-backend/pkg/api"
	"cardvault-backend/pkg/auth"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AuthHandler serves the /api/auth family.
type AuthHandler struct {
	tokens *token.Service
	logger *zap.Logger
}

func NewAuthHandler(tokens *token.Service, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{tokens: tokens, logger: logger}
}

func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
	r.Get("/user", h.CurrentUser)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.tokens.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Login successful", result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	result, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Token refreshed", result)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := h.tokens.Logout(r.Context(), req.RefreshToken); err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Logged out", nil)
}

// CurrentUser echoes the authenticated principal, or a guest payload for
// anonymous requests.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		api.Success(w, http.StatusOK, "Anonymous", map[string]interface{}{
			"authenticated": false,
			"username":      "guest",
			"roles":         []string{},
		})
		return
	}
	api.Success(w, http.StatusOK, "Authenticated", map[string]interface{}{
		"authenticated": true,
		"username":      p.Username,
		"roles":         p.ExternalRoles(),
	})
}
