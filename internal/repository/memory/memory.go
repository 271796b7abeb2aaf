// Package memory provides in-memory implementations of the repository
// contracts. They back the unit tests and keep the same observable semantics
// as the Postgres implementations, including duplicate detection and the
// deterministic catalog sort.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cardvault-backend/internal/domain"
	"cardvault-backend/internal/repository"
)

// CardRepository is the in-memory catalog repository.
type CardRepository struct {
	mu    sync.RWMutex
	cards map[string]domain.Card
}

func NewCardRepository() *CardRepository {
	return &CardRepository{cards: make(map[string]domain.Card)}
}

func (r *CardRepository) FindByName(ctx context.Context, name string) (*domain.Card, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.cards[name]
	if !ok {
		return nil, false, nil
	}
	c := card
	return &c, true, nil
}

func (r *CardRepository) sortedCards() []domain.Card {
	cards := make([]domain.Card, 0, len(r.cards))
	for _, c := range r.cards {
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool {
		li, lj := strings.ToLower(cards[i].Name), strings.ToLower(cards[j].Name)
		if li != lj {
			return li < lj
		}
		return cards[i].Name < cards[j].Name
	})
	return cards
}

func pageOf(cards []domain.Card, page, size int) []domain.Card {
	start := page * size
	if start >= len(cards) {
		return nil
	}
	end := start + size
	if end > len(cards) {
		end = len(cards)
	}
	return cards[start:end]
}

func (r *CardRepository) FindPage(ctx context.Context, page, size int) ([]domain.Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pageOf(r.sortedCards(), page, size), nil
}

func (r *CardRepository) Search(ctx context.Context, query string, page, size int) ([]domain.Card, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := strings.ToLower(query)
	var matched []domain.Card
	for _, c := range r.sortedCards() {
		if strings.Contains(strings.ToLower(c.Name), q) ||
			(c.Archetype != nil && strings.Contains(strings.ToLower(c.Archetype.Name), q)) {
			matched = append(matched, c)
		}
	}
	return pageOf(matched, page, size), int64(len(matched)), nil
}

func (r *CardRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.cards)), nil
}

func (r *CardRepository) Save(ctx context.Context, card *domain.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards[card.Name] = *card
	return nil
}

func (r *CardRepository) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cards, name)
	return nil
}

func (r *CardRepository) CountByArchetypeName(ctx context.Context, archetypeName string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, c := range r.cards {
		if c.Archetype != nil && c.Archetype.Name == archetypeName {
			count++
		}
	}
	return count, nil
}

func (r *CardRepository) SaveAll(ctx context.Context, cards []domain.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cards {
		r.cards[c.Name] = c
	}
	return nil
}

// ArchetypeRepository is the in-memory archetype repository.
type ArchetypeRepository struct {
	mu         sync.Mutex
	nextID     int64
	byName     map[string]domain.Archetype
	FailInsert bool // when set, Insert/InsertAll fail with ErrDuplicate once
}

func NewArchetypeRepository() *ArchetypeRepository {
	return &ArchetypeRepository{nextID: 1, byName: make(map[string]domain.Archetype)}
}

func (r *ArchetypeRepository) FindByID(ctx context.Context, id int64) (*domain.Archetype, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byName {
		if a.ID == id {
			found := a
			return &found, true, nil
		}
	}
	return nil, false, nil
}

func (r *ArchetypeRepository) FindByName(ctx context.Context, name string) (*domain.Archetype, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byName[name]
	if !ok {
		return nil, false, nil
	}
	found := a
	return &found, true, nil
}

func (r *ArchetypeRepository) FindByNameIn(ctx context.Context, names []string) ([]domain.Archetype, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Archetype
	for _, n := range names {
		if a, ok := r.byName[n]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *ArchetypeRepository) FindAll(ctx context.Context) ([]domain.Archetype, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Archetype, 0, len(r.byName))
	for _, a := range r.byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (r *ArchetypeRepository) Insert(ctx context.Context, archetype *domain.Archetype) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(archetype)
}

func (r *ArchetypeRepository) insertLocked(archetype *domain.Archetype) error {
	if r.FailInsert {
		r.FailInsert = false
		return repository.ErrDuplicate
	}
	if _, exists := r.byName[archetype.Name]; exists {
		return repository.ErrDuplicate
	}
	archetype.ID = r.nextID
	r.nextID++
	r.byName[archetype.Name] = *archetype
	return nil
}

func (r *ArchetypeRepository) InsertAll(ctx context.Context, archetypes []*domain.Archetype) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// All-or-nothing, matching the transactional batch insert.
	if r.FailInsert {
		r.FailInsert = false
		return repository.ErrDuplicate
	}
	for _, a := range archetypes {
		if _, exists := r.byName[a.Name]; exists {
			return repository.ErrDuplicate
		}
	}
	for _, a := range archetypes {
		if err := r.insertLocked(a); err != nil {
			return err
		}
	}
	return nil
}

func (r *ArchetypeRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, a := range r.byName {
		if a.ID == id {
			delete(r.byName, name)
			return nil
		}
	}
	return nil
}

// DeckRepository is the in-memory deck repository. Mutate serializes through
// the repository mutex the way the row lock does in Postgres.
type DeckRepository struct {
	mu     sync.Mutex
	nextID int64
	decks  map[int64]domain.Deck
}

func NewDeckRepository() *DeckRepository {
	return &DeckRepository{nextID: 1, decks: make(map[int64]domain.Deck)}
}

func cloneDeck(d domain.Deck) domain.Deck {
	d.Cards = append([]domain.Card(nil), d.Cards...)
	return d
}

func (r *DeckRepository) FindByID(ctx context.Context, id int64) (*domain.Deck, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decks[id]
	if !ok {
		return nil, false, nil
	}
	found := cloneDeck(d)
	return &found, true, nil
}

func (r *DeckRepository) FindAll(ctx context.Context) ([]domain.Deck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Deck, 0, len(r.decks))
	for _, d := range r.decks {
		out = append(out, cloneDeck(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *DeckRepository) Create(ctx context.Context, deck *domain.Deck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	deck.ID = r.nextID
	r.nextID++
	r.decks[deck.ID] = cloneDeck(*deck)
	return nil
}

func (r *DeckRepository) Update(ctx context.Context, deck *domain.Deck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decks[deck.ID] = cloneDeck(*deck)
	return nil
}

func (r *DeckRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.decks, id)
	return nil
}

func (r *DeckRepository) Mutate(ctx context.Context, id int64, fn func(deck *domain.Deck) error) (*domain.Deck, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decks[id]
	if !ok {
		return nil, false, nil
	}
	working := cloneDeck(d)
	if err := fn(&working); err != nil {
		return nil, true, err
	}
	r.decks[id] = cloneDeck(working)
	return &working, true, nil
}

func (r *DeckRepository) AnyDeckReferencesCard(ctx context.Context, cardName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.decks {
		for _, c := range d.Cards {
			if c.Name == cardName {
				return true, nil
			}
		}
	}
	return false, nil
}

// UserRepository is the in-memory principal repository.
type UserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{nextID: 1, users: make(map[string]domain.User)}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, false, nil
	}
	found := u
	return &found, true, nil
}

func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[user.Username]; ok {
		user.ID = existing.ID
	} else {
		user.ID = r.nextID
		r.nextID++
	}
	r.users[user.Username] = *user
	return nil
}

// RefreshTokenRepository is the in-memory refresh-token table.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domain.RefreshToken
}

func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: make(map[string]domain.RefreshToken)}
}

func (r *RefreshTokenRepository) Save(ctx context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tokens[token.Token]; exists {
		return repository.ErrDuplicate
	}
	r.tokens[token.Token] = *token
	return nil
}

func (r *RefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, false, nil
	}
	found := t
	return &found, true, nil
}

func (r *RefreshTokenRepository) Update(ctx context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.Token] = *token
	return nil
}

func (r *RefreshTokenRepository) DeleteExpiredAndRevoked(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var deleted int64
	for k, t := range r.tokens {
		if t.Revoked || t.Expired(now) {
			delete(r.tokens, k)
			deleted++
		}
	}
	return deleted, nil
}
