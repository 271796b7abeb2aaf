package handlers

import (
	"net/http"
	"strconv"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/service/deck"
	"cardvault-backend/pkg/api"
	"cardvault-backend/pkg/auth"
	appErrors "cardvault-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// DeckHandler serves deck reads and owner-guarded deck mutations.
type DeckHandler struct {
	decks  *deck.Service
	logger *zap.Logger
}

func NewDeckHandler(decks *deck.Service, logger *zap.Logger) *DeckHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeckHandler{decks: decks, logger: logger}
}

func (h *DeckHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(requirePrincipal)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/cards/{cardName}", h.AddCard)
		r.Delete("/{id}/cards/{cardName}", h.RemoveCard)
	})
}

func deckID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, appErrors.NewValidation("Invalid deck id")
	}
	return id, nil
}

func (h *DeckHandler) List(w http.ResponseWriter, r *http.Request) {
	decks, err := h.decks.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Decks retrieved", decks)
}

func (h *DeckHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := deckID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	found, err := h.decks.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Deck retrieved", found)
}

type deckRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (h *DeckHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req deckRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	created, err := h.decks.Create(r.Context(), &domain.Deck{Name: req.Name}, principal)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, "Deck created", created)
}

func (h *DeckHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := deckID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	var req deckRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	updated, err := h.decks.Update(r.Context(), id, req.Name, principal)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Deck updated", updated)
}

func (h *DeckHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := deckID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.decks.Delete(r.Context(), id, principal); err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Deck deleted", nil)
}

func (h *DeckHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	id, err := deckID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	result, err := h.decks.AddCard(r.Context(), id, chi.URLParam(r, "cardName"), principal)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Card added to deck", result)
}

func (h *DeckHandler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	id, err := deckID(r)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	result, err := h.decks.RemoveCard(r.Context(), id, chi.URLParam(r, "cardName"), principal)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, "Card removed from deck", result)
}
