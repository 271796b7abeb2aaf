// Package deck implements transactional deck mutations guarded by the
// distributed lock and the two domain invariants: at most 60 cards per deck
// and at most 3 copies of any card.
//
// The lock is a coarse optimization against rapid double-submits; both
// invariants are revalidated inside the repository transaction, which is the
// cross-replica authority.
package deck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/lock"
	"cardvault-backend/internal/repository"
	"cardvault-backend/internal/sanitize"
	"cardvault-backend/pkg/auth"
	appErrors "cardvault-backend/pkg/errors"

	"go.uber.org/zap"
)

const (
	createDeckLease = 10 * time.Second
	modifyDeckLease = 5 * time.Second

	lockDeniedMessage = "Deck is being modified by another request. Please try again."
)

// OperationResult reports the deck plus the size and copy count after an
// add/remove card operation.
type OperationResult struct {
	Deck     *domain.Deck `json:"deck"`
	DeckSize int          `json:"deckSize"`
	Copies   int          `json:"copies"`
}

// Service is the deck service.
type Service struct {
	decks  repository.DeckRepository
	cards  repository.CardRepository
	locks  *lock.DistributedLock
	logger *zap.Logger
}

func NewService(decks repository.DeckRepository, cards repository.CardRepository,
	locks *lock.DistributedLock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{decks: decks, cards: cards, locks: locks, logger: logger}
}

// CanModify is the ownership policy: admins may modify anything, everyone
// else only their own decks.
func CanModify(resourceOwner string, principal *auth.Principal) bool {
	if principal == nil {
		return false
	}
	return principal.IsAdmin() || principal.Username == resourceOwner
}

func deckLockKey(id int64) string { return fmt.Sprintf("deck:%d", id) }

// Get returns a deck by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Deck, error) {
	deck, found, err := s.decks.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.NewInternal("failed to load deck", err)
	}
	if !found {
		return nil, appErrors.NewNotFound("Deck not found")
	}
	return deck, nil
}

// List returns all decks.
func (s *Service) List(ctx context.Context) ([]domain.Deck, error) {
	decks, err := s.decks.FindAll(ctx)
	if err != nil {
		return nil, appErrors.NewInternal("failed to list decks", err)
	}
	return decks, nil
}

// Create persists a new deck owned by the principal. The per-user create
// lock serializes rapid double-submits.
func (s *Service) Create(ctx context.Context, deck *domain.Deck, principal *auth.Principal) (*domain.Deck, error) {
	if principal == nil {
		return nil, appErrors.NewUnauthorized("Authentication required")
	}
	if strings.TrimSpace(deck.Name) == "" {
		return nil, appErrors.NewValidation("Deck name is required")
	}

	lockKey := "user:" + principal.Username + ":create_deck"
	if !s.locks.Acquire(ctx, lockKey, createDeckLease) {
		return nil, appErrors.NewConflict("Deck creation already in progress. Please try again.")
	}
	defer s.locks.Release(ctx, lockKey)

	deck.Name = sanitize.Text(deck.Name)
	deck.Owner = principal.Username
	if deck.Cards == nil {
		deck.Cards = []domain.Card{}
	}
	if err := s.decks.Create(ctx, deck); err != nil {
		return nil, appErrors.NewInternal("failed to create deck", err)
	}
	s.logger.Info("deck created",
		zap.Int64("deckId", deck.ID), zap.String("owner", deck.Owner))
	return deck, nil
}

// Update overwrites a deck's mutable fields, preserving the owner.
func (s *Service) Update(ctx context.Context, id int64, name string, principal *auth.Principal) (*domain.Deck, error) {
	existing, err := s.authorize(ctx, id, principal)
	if err != nil {
		return nil, err
	}

	lockKey := deckLockKey(id)
	if !s.locks.Acquire(ctx, lockKey, modifyDeckLease) {
		return nil, appErrors.NewConflict(lockDeniedMessage)
	}
	defer s.locks.Release(ctx, lockKey)

	if strings.TrimSpace(name) != "" {
		existing.Name = sanitize.Text(name)
	}
	if err := s.decks.Update(ctx, existing); err != nil {
		return nil, appErrors.NewInternal("failed to update deck", err)
	}
	return existing, nil
}

// Delete removes a deck.
func (s *Service) Delete(ctx context.Context, id int64, principal *auth.Principal) error {
	if _, err := s.authorize(ctx, id, principal); err != nil {
		return err
	}

	lockKey := deckLockKey(id)
	if !s.locks.Acquire(ctx, lockKey, modifyDeckLease) {
		return appErrors.NewConflict(lockDeniedMessage)
	}
	defer s.locks.Release(ctx, lockKey)

	if err := s.decks.Delete(ctx, id); err != nil {
		return appErrors.NewInternal("failed to delete deck", err)
	}
	s.logger.Info("deck deleted", zap.Int64("deckId", id))
	return nil
}

// AddCard appends one copy of a card to the deck, enforcing both invariants
// inside the repository transaction.
func (s *Service) AddCard(ctx context.Context, deckID int64, cardName string, principal *auth.Principal) (*OperationResult, error) {
	if _, err := s.authorize(ctx, deckID, principal); err != nil {
		return nil, err
	}

	lockKey := deckLockKey(deckID)
	if !s.locks.Acquire(ctx, lockKey, modifyDeckLease) {
		return nil, appErrors.NewConflict(lockDeniedMessage)
	}
	defer s.locks.Release(ctx, lockKey)

	card, found, err := s.cards.FindByName(ctx, cardName)
	if err != nil {
		return nil, appErrors.NewInternal("failed to load card", err)
	}
	if !found {
		return nil, appErrors.NewNotFound("Card not found: " + cardName)
	}

	var copies int
	deck, found, err := s.decks.Mutate(ctx, deckID, func(deck *domain.Deck) error {
		if len(deck.Cards) >= domain.MaxDeckSize {
			return appErrors.NewValidation(fmt.Sprintf(
				"Deck already has maximum allowed %d cards", domain.MaxDeckSize))
		}
		if deck.CopiesOf(cardName) >= domain.MaxCopiesPerCard {
			return appErrors.NewValidation(fmt.Sprintf(
				"Deck already contains %d copies of this card", domain.MaxCopiesPerCard))
		}
		deck.Cards = append(deck.Cards, *card)
		copies = deck.CopiesOf(cardName)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, appErrors.NewNotFound("Deck not found")
	}

	return &OperationResult{Deck: deck, DeckSize: len(deck.Cards), Copies: copies}, nil
}

// RemoveCard removes the first occurrence of a card if present; removing an
// absent card is a no-op.
func (s *Service) RemoveCard(ctx context.Context, deckID int64, cardName string, principal *auth.Principal) (*OperationResult, error) {
	if _, err := s.authorize(ctx, deckID, principal); err != nil {
		return nil, err
	}

	lockKey := deckLockKey(deckID)
	if !s.locks.Acquire(ctx, lockKey, modifyDeckLease) {
		return nil, appErrors.NewConflict(lockDeniedMessage)
	}
	defer s.locks.Release(ctx, lockKey)

	var copies int
	deck, found, err := s.decks.Mutate(ctx, deckID, func(deck *domain.Deck) error {
		for i, c := range deck.Cards {
			if c.Name == cardName {
				deck.Cards = append(deck.Cards[:i], deck.Cards[i+1:]...)
				break
			}
		}
		copies = deck.CopiesOf(cardName)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, appErrors.NewNotFound("Deck not found")
	}

	return &OperationResult{Deck: deck, DeckSize: len(deck.Cards), Copies: copies}, nil
}

// authorize loads the deck and applies the ownership policy.
func (s *Service) authorize(ctx context.Context, id int64, principal *auth.Principal) (*domain.Deck, error) {
	if principal == nil {
		return nil, appErrors.NewUnauthorized("Authentication required")
	}
	deck, found, err := s.decks.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.NewInternal("failed to load deck", err)
	}
	if !found {
		return nil, appErrors.NewNotFound("Deck not found")
	}
	if !CanModify(deck.Owner, principal) {
		return nil, appErrors.NewForbidden("You do not have permission to modify this deck")
	}
	return deck, nil
}
