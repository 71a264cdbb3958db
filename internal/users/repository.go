package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/shared"
)

const userColumns = `id, email, name, role, chapter, is_active, role_assigned_at, role_assigned_by, last_permission_check, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a user with the default role.
func (r *Repository) Create(ctx context.Context, email, name, chapter string) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, role, chapter, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING `+userColumns,
		email, name, hierarchy.RoleRegisteredUser, chapter)
	return scanUser(row)
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateRole mutates the user's role and assignment metadata in one
// statement. The transition log write is the service's responsibility.
func (r *Repository) UpdateRole(ctx context.Context, userID int64, role string, assignedBy *int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET role = $2, role_assigned_at = NOW(), role_assigned_by = $3, updated_at = NOW()
		WHERE id = $1`, userID, role, assignedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RoleOf returns the user's current role.
func (r *Repository) RoleOf(ctx context.Context, userID int64) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return role, err
}

// TouchPermissionCheck stamps the user's last permission check.
func (r *Repository) TouchPermissionCheck(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_permission_check = NOW() WHERE id = $1`, userID)
	return err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Chapter, &u.IsActive,
		&u.RoleAssignedAt, &u.RoleAssignedBy, &u.LastPermissionCheck, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
