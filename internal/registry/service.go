package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/shared"
)

// RepositoryPort defines data access methods for the permission registry and
// the role-permission map.
type RepositoryPort interface {
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	GetPermission(ctx context.Context, codename string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetPermissionActive(ctx context.Context, codename string, active bool) error
	UpsertRolePermission(ctx context.Context, role string, permissionID int64, canDelegate bool) error
	DeactivateRolePermission(ctx context.Context, role string, permissionID int64) error
	ActiveCodenamesForRole(ctx context.Context, role string) ([]string, error)
	ListRolePermissions(ctx context.Context, role string) ([]RolePermission, error)
}

// CacheInvalidator lets the registry nudge the resolver cache after a write.
// Invalidation is opportunistic; staleness is bounded by the cache TTL.
type CacheInvalidator interface {
	Clear(ctx context.Context) error
}

var titleCaser = cases.Title(language.English)

// Service orchestrates permission registry operations.
type Service struct {
	repo   RepositoryPort
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewService builds Service instance. cache may be nil.
func NewService(repo RepositoryPort, cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Define creates a permission. When the display name is omitted it is derived
// from the codename ("manage_chapter_activity" -> "Manage Chapter Activity").
func (s *Service) Define(ctx context.Context, codename, name, module, description string) (Permission, error) {
	codename = normalizeCodename(codename)
	if codename == "" {
		return Permission{}, fmt.Errorf("registry: codename required")
	}
	module = strings.TrimSpace(strings.ToLower(module))
	name = strings.TrimSpace(name)
	if name == "" {
		name = titleCaser.String(strings.ReplaceAll(codename, "_", " "))
	}
	created, err := s.repo.CreatePermission(ctx, Permission{
		Codename:    codename,
		Name:        name,
		Module:      module,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return Permission{}, err
	}
	return created, nil
}

// Lookup fetches a permission by codename.
func (s *Service) Lookup(ctx context.Context, codename string) (Permission, error) {
	return s.repo.GetPermission(ctx, normalizeCodename(codename))
}

// LookupID resolves a codename to its permission id.
func (s *Service) LookupID(ctx context.Context, codename string) (int64, error) {
	p, err := s.Lookup(ctx, codename)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

// List returns all permission definitions.
func (s *Service) List(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// Activate re-enables a soft-disabled permission.
func (s *Service) Activate(ctx context.Context, codename string) error {
	if err := s.repo.SetPermissionActive(ctx, normalizeCodename(codename), true); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Deactivate soft-disables a permission without deleting history. While
// inactive it is never granted, regardless of role grants or overrides.
func (s *Service) Deactivate(ctx context.Context, codename string) error {
	if err := s.repo.SetPermissionActive(ctx, normalizeCodename(codename), false); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Grant attaches a permission to a role. Idempotent: a repeat grant or a
// grant over a revoked row leaves one active association.
func (s *Service) Grant(ctx context.Context, role, codename string, canDelegate bool) error {
	role = hierarchy.Canonical(strings.TrimSpace(role))
	if !hierarchy.Known(role) {
		return fmt.Errorf("registry: unknown role %q: %w", role, shared.ErrNotFound)
	}
	perm, err := s.repo.GetPermission(ctx, normalizeCodename(codename))
	if err != nil {
		return err
	}
	if err := s.repo.UpsertRolePermission(ctx, role, perm.ID, canDelegate); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Revoke soft-deactivates a role grant, preserving the association row.
func (s *Service) Revoke(ctx context.Context, role, codename string) error {
	role = hierarchy.Canonical(strings.TrimSpace(role))
	perm, err := s.repo.GetPermission(ctx, normalizeCodename(codename))
	if err != nil {
		return err
	}
	if err := s.repo.DeactivateRolePermission(ctx, role, perm.ID); err != nil {
		// Revoking a grant that never existed is a no-op for callers.
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

// PermissionsForRole returns the set of active codenames granted to a role.
// Inactive grants and inactive permissions are already excluded here.
func (s *Service) PermissionsForRole(ctx context.Context, role string) (map[string]struct{}, error) {
	codenames, err := s.repo.ActiveCodenamesForRole(ctx, hierarchy.Canonical(role))
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(codenames))
	for _, c := range codenames {
		set[c] = struct{}{}
	}
	return set, nil
}

// RolePermissions lists every association row for a role for admin display.
func (s *Service) RolePermissions(ctx context.Context, role string) ([]RolePermission, error) {
	return s.repo.ListRolePermissions(ctx, hierarchy.Canonical(role))
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil && s.logger != nil {
		s.logger.Warn("registry cache clear", slog.Any("error", err))
	}
}

func normalizeCodename(codename string) string {
	return strings.ToLower(strings.TrimSpace(codename))
}
