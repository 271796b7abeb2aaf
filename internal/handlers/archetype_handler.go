package handlers

import (
	"net/http"
	"strconv"

	"cardvault-backend/internal/repository"
	"cardvault-backend/internal/service/card"
	"cardvault-backend/pkg/api"
	appErrors "cardvault-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ArchetypeHandler serves read-only archetype endpoints. Archetypes have no
// write API: they are created and garbage-collected through card writes.
type ArchetypeHandler struct {
	archetypes repository.ArchetypeRepository
	logger     *zap.Logger
}

func NewArchetypeHandler(archetypes repository.ArchetypeRepository, logger *zap.Logger) *ArchetypeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchetypeHandler{archetypes: archetypes, logger: logger}
}

func (h *ArchetypeHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

func (h *ArchetypeHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 0)
	size := card.ClampPageSize(queryInt(r, "size", card.DefaultPageSize))
	if page < 0 {
		page = 0
	}

	all, err := h.archetypes.FindAll(r.Context())
	if err != nil {
		respondError(w, h.logger, appErrors.NewInternal("failed to list archetypes", err))
		return
	}

	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}

	api.Success(w, http.StatusOK, "Archetypes retrieved",
		api.NewPaginatedResponse(all[start:end], page, size, int64(len(all))))
}

func (h *ArchetypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, h.logger, appErrors.NewValidation("Invalid archetype id"))
		return
	}

	archetype, found, err := h.archetypes.FindByID(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, appErrors.NewInternal("failed to load archetype", err))
		return
	}
	if !found {
		respondError(w, h.logger, appErrors.NewNotFound("Archetype not found"))
		return
	}
	api.Success(w, http.StatusOK, "Archetype retrieved", archetype)
}
