package handlers

import (
	"net/http"
	"strings"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/service/card"
	"cardvault-backend/pkg/api"
	appErrors "cardvault-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CardHandler serves catalog reads and admin-only catalog mutations.
type CardHandler struct {
	catalog *card.Service
	logger  *zap.Logger
}

func NewCardHandler(catalog *card.Service, logger *zap.Logger) *CardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardHandler{catalog: catalog, logger: logger}
}

func (h *CardHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/by-name", h.GetByName)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/", h.Create)
		r.Put("/{name}", h.Update)
		r.Patch("/{name}", h.Patch)
		r.Delete("/{name}", h.Delete)
	})

	// Legacy path-parameter lookup. Registered last so the static routes
	// above win; names containing "/" cannot be addressed this way.
	r.Get("/{name}", h.GetByPath)
}

// List serves GET /api/cards, switching to search when query is present.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", card.DefaultPageSize)
	query := strings.TrimSpace(r.URL.Query().Get("query"))

	var (
		result card.Page
		err    error
	)
	if query != "" {
		result, err = h.catalog.SearchPage(r.Context(), query, page, size)
	} else {
		result, err = h.catalog.ListPage(r.Context(), page, size)
	}
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Cards retrieved", result)
}

func (h *CardHandler) GetByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		respondError(w, h.logger, appErrors.NewValidation("name query parameter is required"))
		return
	}
	h.getCard(w, r, name)
}

func (h *CardHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	h.getCard(w, r, chi.URLParam(r, "name"))
}

func (h *CardHandler) getCard(w http.ResponseWriter, r *http.Request, name string) {
	found, err := h.catalog.GetByName(r.Context(), name)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Card retrieved", found)
}

func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body domain.Card
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, h.logger, err)
		return
	}

	saved, err := h.catalog.Save(r.Context(), &body)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, "Card created", saved)
}

// Update replaces a card wholesale; the URL name is authoritative.
func (h *CardHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body domain.Card
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, h.logger, err)
		return
	}
	body.Name = name

	if _, err := h.catalog.GetByName(r.Context(), name); err != nil {
		respondError(w, h.logger, err)
		return
	}

	saved, err := h.catalog.Save(r.Context(), &body)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Card updated", saved)
}

type cardPatch struct {
	Type        *string `json:"humanReadableCardType" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
	Race        *string `json:"race" validate:"omitempty,max=50"`
	Attribute   *string `json:"attribute" validate:"omitempty,max=50"`
	Archetype   *string `json:"archetype" validate:"omitempty,max=100"`
}

// Patch merges the provided fields into the stored card.
func (h *CardHandler) Patch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var patch cardPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, h.logger, err)
		return
	}

	existing, err := h.catalog.GetByName(r.Context(), name)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if patch.Type != nil {
		existing.Type = *patch.Type
	}
	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.Race != nil {
		existing.Race = *patch.Race
	}
	if patch.Attribute != nil {
		existing.Attribute = *patch.Attribute
	}
	if patch.Archetype != nil {
		if *patch.Archetype == "" {
			existing.Archetype = nil
		} else {
			existing.Archetype = &domain.Archetype{Name: *patch.Archetype}
		}
	}

	saved, err := h.catalog.Save(r.Context(), existing)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Card updated", saved)
}

func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.catalog.Delete(r.Context(), name); err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Card deleted", nil)
}
