package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saimambayao/tms-access/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateToken stores a new service token.
func (r *Repository) CreateToken(ctx context.Context, t ServiceToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_tokens (id, user_id, name, secret_hash)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.UserID, t.Name, t.SecretHash)
	return err
}

// GetToken fetches a token by ID.
func (r *Repository) GetToken(ctx context.Context, id uuid.UUID) (ServiceToken, error) {
	var t ServiceToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, secret_hash, created_at, last_used_at, revoked_at
		FROM service_tokens WHERE id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.Name, &t.SecretHash, &t.CreatedAt, &t.LastUsedAt, &t.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceToken{}, shared.ErrNotFound
	}
	return t, err
}

// TouchToken stamps last use.
func (r *Repository) TouchToken(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE service_tokens SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

// RevokeToken withdraws a token.
func (r *Repository) RevokeToken(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_tokens SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
