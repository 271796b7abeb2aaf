package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cardvault-backend/internal/domain"

	"github.com/lib/pq"
)

// ArchetypeRepository is the Postgres-backed archetype repository.
type ArchetypeRepository struct {
	db *sql.DB
}

func NewArchetypeRepository(db *sql.DB) *ArchetypeRepository {
	return &ArchetypeRepository{db: db}
}

func (r *ArchetypeRepository) FindByID(ctx context.Context, id int64) (*domain.Archetype, bool, error) {
	var a domain.Archetype
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM archetypes WHERE id = $1`, id).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

func (r *ArchetypeRepository) FindByName(ctx context.Context, name string) (*domain.Archetype, bool, error) {
	var a domain.Archetype
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM archetypes WHERE name = $1`, name).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

func (r *ArchetypeRepository) FindByNameIn(ctx context.Context, names []string) ([]domain.Archetype, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM archetypes WHERE name = ANY($1)`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("find archetypes by name: %w", err)
	}
	defer rows.Close()
	return collectArchetypes(rows)
}

func (r *ArchetypeRepository) FindAll(ctx context.Context) ([]domain.Archetype, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM archetypes ORDER BY LOWER(name) ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArchetypes(rows)
}

func (r *ArchetypeRepository) Insert(ctx context.Context, archetype *domain.Archetype) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO archetypes (name) VALUES ($1) RETURNING id`,
		archetype.Name).Scan(&archetype.ID)
	return mapError(err)
}

// InsertAll inserts archetypes in one transaction. Any uniqueness conflict
// rolls back the whole batch and surfaces ErrDuplicate; the upsert retry in
// the service layer takes it from there.
func (r *ArchetypeRepository) InsertAll(ctx context.Context, archetypes []*domain.Archetype) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range archetypes {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO archetypes (name) VALUES ($1) RETURNING id`,
			a.Name).Scan(&a.ID); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit()
}

func (r *ArchetypeRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM archetypes WHERE id = $1`, id)
	return mapError(err)
}

func collectArchetypes(rows *sql.Rows) ([]domain.Archetype, error) {
	var archetypes []domain.Archetype
	for rows.Next() {
		var a domain.Archetype
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		archetypes = append(archetypes, a)
	}
	return archetypes, rows.Err()
}
