package overrides

import (
	"context"
	"time"

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

// Upsert writes the single override row for (user, permission).
func (r *Repository) Upsert(ctx context.Context, o Override) (Override, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO user_permission_overrides (user_id, permission_id, is_granted, reason, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, permission_id)
		DO UPDATE SET is_granted = EXCLUDED.is_granted,
			reason = EXCLUDED.reason,
			expires_at = EXCLUDED.expires_at,
			created_by = EXCLUDED.created_by,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		o.UserID, o.PermissionID, o.IsGranted, o.Reason, o.ExpiresAt, o.CreatedBy)
	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Override{}, err
	}
	return o, nil
}

// Delete removes the override row entirely. Overrides are exceptional and
// temporary, so unlike role grants they are hard-deleted.
func (r *Repository) Delete(ctx context.Context, userID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_id = $2`,
		userID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListForUser returns every override row for a user, expired or not. Expiry
// is evaluated by the service at read time.
func (r *Repository) ListForUser(ctx context.Context, userID int64) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.user_id, o.permission_id, p.codename, p.is_active, o.is_granted, o.reason, o.expires_at, o.created_by, o.created_at, o.updated_at
		FROM user_permission_overrides o
		JOIN permissions p ON p.id = o.permission_id
		WHERE o.user_id = $1
		ORDER BY p.codename`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var o Override
		var expiresAt *time.Time
		if err := rows.Scan(&o.ID, &o.UserID, &o.PermissionID, &o.Codename, &o.PermissionActive, &o.IsGranted, &o.Reason, &expiresAt, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.ExpiresAt = expiresAt
		out = append(out, o)
	}
	return out, rows.Err()
}
