package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cardvault-backend/internal/domain"
)

const cardColumns = `c.name, c.card_type, c.description, c.race, c.attribute, a.id, a.name`

const cardBaseQuery = `
	SELECT ` + cardColumns + `
	FROM cards c
	LEFT JOIN archetypes a ON a.id = c.archetype_id`

// CardRepository is the Postgres-backed catalog repository.
type CardRepository struct {
	db *sql.DB
}

func NewCardRepository(db *sql.DB) *CardRepository {
	return &CardRepository{db: db}
}

func scanCard(s rowScanner) (*domain.Card, error) {
	var (
		card          domain.Card
		archetypeID   sql.NullInt64
		archetypeName sql.NullString
	)
	if err := s.Scan(&card.Name, &card.Type, &card.Description, &card.Race,
		&card.Attribute, &archetypeID, &archetypeName); err != nil {
		return nil, err
	}
	if archetypeID.Valid {
		card.Archetype = &domain.Archetype{ID: archetypeID.Int64, Name: archetypeName.String}
	}
	return &card, nil
}

func (r *CardRepository) FindByName(ctx context.Context, name string) (*domain.Card, bool, error) {
	row := r.db.QueryRowContext(ctx, cardBaseQuery+` WHERE c.name = $1`, name)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find card by name: %w", err)
	}
	return card, true, nil
}

func (r *CardRepository) FindPage(ctx context.Context, page, size int) ([]domain.Card, error) {
	// LOWER(name) plus the raw name keeps the collation deterministic so
	// pages never overlap.
	rows, err := r.db.QueryContext(ctx,
		cardBaseQuery+` ORDER BY LOWER(c.name) ASC, c.name ASC LIMIT $1 OFFSET $2`,
		size, page*size)
	if err != nil {
		return nil, fmt.Errorf("find card page: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

func (r *CardRepository) Search(ctx context.Context, query string, page, size int) ([]domain.Card, int64, error) {
	pattern := "%" + query + "%"
	where := ` WHERE LOWER(c.name) LIKE LOWER($1) OR LOWER(a.name) LIKE LOWER($1)`

	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards c LEFT JOIN archetypes a ON a.id = c.archetype_id`+where,
		pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		cardBaseQuery+where+` ORDER BY LOWER(c.name) ASC, c.name ASC LIMIT $2 OFFSET $3`,
		pattern, size, page*size)
	if err != nil {
		return nil, 0, fmt.Errorf("search cards: %w", err)
	}
	defer rows.Close()

	cards, err := collectCards(rows)
	return cards, total, err
}

func (r *CardRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&count)
	return count, err
}

func (r *CardRepository) Save(ctx context.Context, card *domain.Card) error {
	var archetypeID sql.NullInt64
	if card.Archetype != nil {
		archetypeID = sql.NullInt64{Int64: card.Archetype.ID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cards (name, card_type, description, race, attribute, archetype_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			card_type = EXCLUDED.card_type,
			description = EXCLUDED.description,
			race = EXCLUDED.race,
			attribute = EXCLUDED.attribute,
			archetype_id = EXCLUDED.archetype_id`,
		card.Name, card.Type, card.Description, card.Race, card.Attribute, archetypeID)
	return mapError(err)
}

func (r *CardRepository) Delete(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE name = $1`, name)
	return err
}

func (r *CardRepository) CountByArchetypeName(ctx context.Context, archetypeName string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cards c
		JOIN archetypes a ON a.id = c.archetype_id
		WHERE a.name = $1`, archetypeName).Scan(&count)
	return count, err
}

// SaveAll bulk-upserts cards inside one transaction; used by seeding.
func (r *CardRepository) SaveAll(ctx context.Context, cards []domain.Card) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (name, card_type, description, race, attribute, archetype_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			card_type = EXCLUDED.card_type,
			description = EXCLUDED.description,
			race = EXCLUDED.race,
			attribute = EXCLUDED.attribute,
			archetype_id = EXCLUDED.archetype_id`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range cards {
		card := &cards[i]
		var archetypeID sql.NullInt64
		if card.Archetype != nil {
			archetypeID = sql.NullInt64{Int64: card.Archetype.ID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, card.Name, card.Type, card.Description,
			card.Race, card.Attribute, archetypeID); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit()
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}
