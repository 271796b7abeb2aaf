// Package repository defines the persistence contracts. The Postgres
// implementations live in the postgres subpackage; in-memory fakes for tests
// live in memory.
package repository

import (
	"context"
	"errors"

	"cardvault-backend/internal/domain"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
// Callers that expect concurrent writers (archetype upsert) treat it as a
// retryable signal, not a failure.
var ErrDuplicate = errors.New("duplicate key")

// IsDuplicate reports whether err is a uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// CardRepository persists catalog entries, keyed by name.
type CardRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Card, bool, error)
	// FindPage returns one page sorted case-insensitively ascending by name
	// with a deterministic tie-break, so pagination is stable.
	FindPage(ctx context.Context, page, size int) ([]domain.Card, error)
	// Search matches name or archetype name, case-insensitive substring.
	Search(ctx context.Context, query string, page, size int) ([]domain.Card, int64, error)
	Count(ctx context.Context) (int64, error)
	Save(ctx context.Context, card *domain.Card) error
	Delete(ctx context.Context, name string) error
	CountByArchetypeName(ctx context.Context, archetypeName string) (int64, error)
	SaveAll(ctx context.Context, cards []domain.Card) error
}

// ArchetypeRepository persists archetypes. Inserts surface ErrDuplicate on
// concurrent creation of the same name.
type ArchetypeRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Archetype, bool, error)
	FindByName(ctx context.Context, name string) (*domain.Archetype, bool, error)
	FindByNameIn(ctx context.Context, names []string) ([]domain.Archetype, error)
	FindAll(ctx context.Context) ([]domain.Archetype, error)
	Insert(ctx context.Context, archetype *domain.Archetype) error
	InsertAll(ctx context.Context, archetypes []*domain.Archetype) error
	Delete(ctx context.Context, id int64) error
}

// DeckRepository persists decks and their card lists.
type DeckRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Deck, bool, error)
	FindAll(ctx context.Context) ([]domain.Deck, error)
	Create(ctx context.Context, deck *domain.Deck) error
	Update(ctx context.Context, deck *domain.Deck) error
	Delete(ctx context.Context, id int64) error
	// Mutate loads the deck inside a transaction with the row locked, applies
	// fn to it, and persists the card list before committing. Returning an
	// error from fn rolls back. found is false when the deck does not exist.
	Mutate(ctx context.Context, id int64, fn func(deck *domain.Deck) error) (deck *domain.Deck, found bool, err error)
	// AnyDeckReferencesCard reports whether any deck contains the card.
	AnyDeckReferencesCard(ctx context.Context, cardName string) (bool, error)
}

// UserRepository persists principals. Principals are created at seed time and
// immutable thereafter.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, bool, error)
	FindAll(ctx context.Context) ([]domain.User, error)
	Save(ctx context.Context, user *domain.User) error
}

// RefreshTokenRepository persists the stateful refresh-token table.
type RefreshTokenRepository interface {
	Save(ctx context.Context, token *domain.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*domain.RefreshToken, bool, error)
	Update(ctx context.Context, token *domain.RefreshToken) error
	// DeleteExpiredAndRevoked bulk-deletes terminal-state rows and returns
	// the number removed.
	DeleteExpiredAndRevoked(ctx context.Context) (int64, error)
}
