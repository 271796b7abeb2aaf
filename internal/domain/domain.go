// Package domain holds the logical entities of the catalog and deck store.
package domain

import "time"

// Deck building rules.
const (
	MaxDeckSize      = 60
	MaxCopiesPerCard = 3
)

// Card is a catalog entry. Name is the natural key and is immutable after
// creation.
type Card struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Type        string     `json:"humanReadableCardType" validate:"max=100"`
	Description string     `json:"description" validate:"max=10000"`
	Race        string     `json:"race" validate:"max=50"`
	Attribute   string     `json:"attribute" validate:"max=50"`
	Archetype   *Archetype `json:"archetype,omitempty"`
}

// Archetype is a named card grouping, created lazily and garbage-collected
// when its last card is deleted.
type Archetype struct {
	ID   int64  `json:"id"`
	Name string `json:"name" validate:"required,max=100"`
}

// Deck is an ordered multiset of card references owned by a principal.
type Deck struct {
	ID    int64  `json:"id"`
	Name  string `json:"name" validate:"required,max=100"`
	Owner string `json:"username"`
	Cards []Card `json:"cards"`
}

// CopiesOf counts occurrences of cardName in the deck.
func (d *Deck) CopiesOf(cardName string) int {
	copies := 0
	for _, c := range d.Cards {
		if c.Name == cardName {
			copies++
		}
	}
	return copies
}

// User is a principal. Role is stored with the ROLE_ prefix.
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username" validate:"required,min=3,max=50"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	Enabled      bool   `json:"enabled"`
}

// RefreshToken is the stateful half of a session. A token is valid iff it is
// not revoked and not past its expiry.
type RefreshToken struct {
	Token      string     `json:"token"`
	Username   string     `json:"username"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	Revoked    bool       `json:"revoked"`
}

// Expired reports whether the token is past its expiry.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Valid reports whether the token may still be used to refresh.
func (t *RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}
