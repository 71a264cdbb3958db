package registry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// CreatePermission inserts a new permission definition.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (codename, name, module, description, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id, codename, name, module, description, is_active, created_at, updated_at`,
		p.Codename, p.Name, p.Module, p.Description)
	created, err := scanPermission(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Permission{}, shared.ErrDuplicateCodename
		}
		return Permission{}, err
	}
	return created, nil
}

// GetPermission fetches a permission by codename.
func (r *Repository) GetPermission(ctx context.Context, codename string) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, codename, name, module, description, is_active, created_at, updated_at
		FROM permissions WHERE codename = $1`, codename)
	p, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// ListPermissions returns all permissions ordered by module then codename.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, codename, name, module, description, is_active, created_at, updated_at
		FROM permissions ORDER BY module, codename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SetPermissionActive toggles the soft-disable flag on a permission.
func (r *Repository) SetPermissionActive(ctx context.Context, codename string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE permissions SET is_active = $2, updated_at = NOW() WHERE codename = $1`,
		codename, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpsertRolePermission grants a permission to a role, reactivating a
// previously revoked row. One upsert, one transaction.
func (r *Repository) UpsertRolePermission(ctx context.Context, role string, permissionID int64, canDelegate bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role, permission_id, is_active, can_delegate)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (role, permission_id)
		DO UPDATE SET is_active = TRUE, can_delegate = EXCLUDED.can_delegate`,
		role, permissionID, canDelegate)
	return err
}

// DeactivateRolePermission soft-revokes a role grant.
func (r *Repository) DeactivateRolePermission(ctx context.Context, role string, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE role_permissions SET is_active = FALSE
		WHERE role = $1 AND permission_id = $2`, role, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ActiveCodenamesForRole returns codenames granted to a role where both the
// grant and the underlying permission are active.
func (r *Repository) ActiveCodenamesForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.codename
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = $1 AND rp.is_active AND p.is_active
		ORDER BY p.codename`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codenames []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		codenames = append(codenames, c)
	}
	return codenames, rows.Err()
}

// ListRolePermissions returns every association row for a role, active or not.
func (r *Repository) ListRolePermissions(ctx context.Context, role string) ([]RolePermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.id, rp.role, rp.permission_id, p.codename, rp.is_active, rp.can_delegate, rp.created_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = $1
		ORDER BY p.codename`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []RolePermission
	for rows.Next() {
		var g RolePermission
		if err := rows.Scan(&g.ID, &g.Role, &g.PermissionID, &g.Codename, &g.IsActive, &g.CanDelegate, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Codename, &p.Name, &p.Module, &p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
