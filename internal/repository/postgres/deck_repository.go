package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cardvault-backend/internal/domain"
)

// DeckRepository is the Postgres-backed deck repository. Deck cards live in
// an ordered join table (deck_cards with a position column) so the multiset
// keeps insertion order.
type DeckRepository struct {
	db *sql.DB
}

func NewDeckRepository(db *sql.DB) *DeckRepository {
	return &DeckRepository{db: db}
}

func (r *DeckRepository) FindByID(ctx context.Context, id int64) (*domain.Deck, bool, error) {
	deck, found, err := r.findDeckRow(ctx, r.db, id, false)
	if err != nil || !found {
		return nil, found, err
	}
	deck.Cards, err = r.findDeckCards(ctx, r.db, id)
	if err != nil {
		return nil, false, err
	}
	return deck, true, nil
}

func (r *DeckRepository) FindAll(ctx context.Context) ([]domain.Deck, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, username FROM decks ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.Name, &d.Owner); err != nil {
			return nil, err
		}
		decks = append(decks, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range decks {
		decks[i].Cards, err = r.findDeckCards(ctx, r.db, decks[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return decks, nil
}

func (r *DeckRepository) Create(ctx context.Context, deck *domain.Deck) error {
	return r.db.QueryRowContext(ctx,
		`INSERT INTO decks (name, username) VALUES ($1, $2) RETURNING id`,
		deck.Name, deck.Owner).Scan(&deck.ID)
}

func (r *DeckRepository) Update(ctx context.Context, deck *domain.Deck) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE decks SET name = $1, username = $2 WHERE id = $3`,
		deck.Name, deck.Owner, deck.ID)
	return err
}

func (r *DeckRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM deck_cards WHERE deck_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM decks WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Mutate runs fn against the deck inside a transaction. The deck row is
// locked (SELECT ... FOR UPDATE) so the commit order defines the effective
// total order of mutations per deck across replicas.
func (r *DeckRepository) Mutate(ctx context.Context, id int64, fn func(deck *domain.Deck) error) (*domain.Deck, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	deck, found, err := r.findDeckRow(ctx, tx, id, true)
	if err != nil || !found {
		return nil, found, err
	}
	deck.Cards, err = r.findDeckCards(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	if err := fn(deck); err != nil {
		return nil, true, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM deck_cards WHERE deck_id = $1`, id); err != nil {
		return nil, true, fmt.Errorf("rewrite deck cards: %w", err)
	}
	for pos, card := range deck.Cards {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deck_cards (deck_id, card_name, position) VALUES ($1, $2, $3)`,
			id, card.Name, pos); err != nil {
			return nil, true, fmt.Errorf("rewrite deck cards: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, true, err
	}
	return deck, true, nil
}

func (r *DeckRepository) AnyDeckReferencesCard(ctx context.Context, cardName string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM deck_cards WHERE card_name = $1)`, cardName).Scan(&exists)
	return exists, err
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *DeckRepository) findDeckRow(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Deck, bool, error) {
	query := `SELECT id, name, username FROM decks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var d domain.Deck
	err := q.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &d.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &d, true, nil
}

func (r *DeckRepository) findDeckCards(ctx context.Context, q querier, deckID int64) ([]domain.Card, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM deck_cards dc
		JOIN cards c ON c.name = dc.card_name
		LEFT JOIN archetypes a ON a.id = c.archetype_id
		WHERE dc.deck_id = $1
		ORDER BY dc.position ASC`, deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCards(rows)
}
