package handlers

import (
	"net/http"

	"cardvault-backend/internal/repository"
	"cardvault-backend/pkg/api"
	"cardvault-backend/pkg/auth"
	appErrors "cardvault-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// UserHandler serves the admin-only principal listing.
type UserHandler struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(users repository.UserRepository, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) Routes(r chi.Router) {
	r.Use(requireAdmin)
	r.Get("/", h.List)
}

type userView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Enabled  bool   `json:"enabled"`
}

// List returns principals without password hashes, roles in external form.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.FindAll(r.Context())
	if err != nil {
		respondError(w, h.logger, appErrors.NewInternal("failed to list users", err))
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{
			ID:       u.ID,
			Username: u.Username,
			Role:     auth.StripRolePrefixes([]string{u.Role})[0],
			Enabled:  u.Enabled,
		})
	}
	api.Success(w, http.StatusOK, "Users retrieved", views)
}
