package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cardvault-backend/internal/domain"
)

// UserRepository is the Postgres-backed principal repository.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, bool, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, enabled FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, password_hash, role, enabled FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Enabled); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, role, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			enabled = EXCLUDED.enabled
		RETURNING id`,
		user.Username, user.PasswordHash, user.Role, user.Enabled).Scan(&user.ID)
	return mapError(err)
}

// RefreshTokenRepository is the Postgres-backed refresh-token table.
type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Save(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, username, created_at, expires_at, last_used_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		token.Token, token.Username, token.CreatedAt, token.ExpiresAt,
		nullableTime(token.LastUsedAt), token.Revoked)
	return mapError(err)
}

func (r *RefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, bool, error) {
	var (
		t          domain.RefreshToken
		lastUsedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT token, username, created_at, expires_at, last_used_at, revoked
		FROM refresh_tokens WHERE token = $1`, token).
		Scan(&t.Token, &t.Username, &t.CreatedAt, &t.ExpiresAt, &lastUsedAt, &t.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if lastUsedAt.Valid {
		t.LastUsedAt = &lastUsedAt.Time
	}
	return &t, true, nil
}

func (r *RefreshTokenRepository) Update(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET last_used_at = $1, revoked = $2 WHERE token = $3`,
		nullableTime(token.LastUsedAt), token.Revoked, token.Token)
	return err
}

func (r *RefreshTokenRepository) DeleteExpiredAndRevoked(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE revoked = TRUE OR expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
