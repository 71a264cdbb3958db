package transitions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence. The table is
// append-only: no update or delete statements exist in this package.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one transition row.
func (r *Repository) Insert(ctx context.Context, e Entry) (Entry, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO role_transition_log (user_id, from_role, to_role, reason, changed_by, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, changed_at`,
		e.UserID, e.FromRole, e.ToRole, e.Reason, e.ChangedBy, e.IPAddress)
	if err := row.Scan(&e.ID, &e.ChangedAt); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ListForUser returns transition rows for a user, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, from_role, to_role, reason, changed_by, changed_at, ip_address
		FROM role_transition_log
		WHERE user_id = $1
		ORDER BY changed_at DESC, id DESC
		OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListRecent returns the most recent transition rows across all users.
func (r *Repository) ListRecent(ctx context.Context, offset, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, from_role, to_role, reason, changed_by, changed_at, ip_address
		FROM role_transition_log
		ORDER BY changed_at DESC, id DESC
		OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.FromRole, &e.ToRole, &e.Reason, &e.ChangedBy, &e.ChangedAt, &e.IPAddress); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
