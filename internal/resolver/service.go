// Package resolver computes effective permission sets for users by merging
// role-derived grants with per-user overrides and an optional supplementary
// source. Every ambiguous or failing check resolves to a denial, never a
// grant.
package resolver

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/overrides"
	"github.com/saimambayao/tms-access/internal/shared"
)

// RoleGrants supplies the active permission set derived from a role.
// Satisfied by the registry service; inactive grants and inactive
// permissions are already excluded there.
type RoleGrants interface {
	PermissionsForRole(ctx context.Context, role string) (map[string]struct{}, error)
}

// OverrideSource supplies the overrides currently in force for a user.
type OverrideSource interface {
	ActiveFor(ctx context.Context, userID int64) ([]overrides.Override, error)
}

// SupplementaryProvider is an optional secondary permission source, e.g. a
// group-permission subsystem in the embedding application. Its result is
// unioned in after overrides are applied.
type SupplementaryProvider interface {
	Supplementary(ctx context.Context, id shared.Identity) (map[string]struct{}, error)
}

// Service resolves permission decisions.
type Service struct {
	grants        RoleGrants
	overrides     OverrideSource
	supplementary SupplementaryProvider
	cache         *Cache
	group         singleflight.Group
	logger        *slog.Logger
}

// NewService builds Service instance. supplementary and cache may be nil.
func NewService(grants RoleGrants, ovr OverrideSource, supplementary SupplementaryProvider, cache *Cache, logger *slog.Logger) *Service {
	return &Service{
		grants:        grants,
		overrides:     ovr,
		supplementary: supplementary,
		cache:         cache,
		logger:        logger,
	}
}

// HasRoleOrHigher reports whether the user's role meets the requirement.
// Pure rank comparison; permissions are never consulted. Unknown roles on
// either side deny.
func (s *Service) HasRoleOrHigher(id shared.Identity, requiredRole string) bool {
	return hierarchy.Satisfies(id.Role, requiredRole)
}

// HasPermission reports whether the user holds the named permission. Unknown
// codenames and store failures both resolve to false: a failed check must
// never read as a grant.
func (s *Service) HasPermission(ctx context.Context, id shared.Identity, codename string) bool {
	set, err := s.PermissionSet(ctx, id)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("permission resolution failed", slog.Int64("user_id", id.UserID), slog.String("codename", codename), slog.Any("error", err))
		}
		return false
	}
	_, ok := set[codename]
	return ok
}

// PermissionSet resolves the user's effective codename set, from cache when
// possible. Concurrent resolutions of the same user collapse into one
// computation.
func (s *Service) PermissionSet(ctx context.Context, id shared.Identity) (map[string]struct{}, error) {
	role := hierarchy.Canonical(id.Role)
	key, err := s.cacheKey(ctx, id.UserID, role)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("permission cache key", slog.Any("error", err))
		}
		// Cache trouble never blocks resolution.
		return s.compute(ctx, id)
	}
	if key == "" {
		return s.compute(ctx, id)
	}
	result, err, _ := s.group.Do(key, func() (any, error) {
		return s.cache.FetchSet(ctx, key, func(ctx context.Context) ([]string, error) {
			set, err := s.compute(ctx, id)
			if err != nil {
				return nil, err
			}
			return sortedSlice(set), nil
		})
	})
	if err != nil {
		return nil, err
	}
	codenames, _ := result.([]string)
	set := make(map[string]struct{}, len(codenames))
	for _, c := range codenames {
		set[c] = struct{}{}
	}
	return set, nil
}

// InvalidateUser drops a user's cached set, e.g. after an override write.
func (s *Service) InvalidateUser(ctx context.Context, userID int64) error {
	return s.cache.InvalidateUser(ctx, userID)
}

// Clear drops every cached set, e.g. after a registry or role-map write.
func (s *Service) Clear(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// compute derives the permission set from the stores, ignoring the cache.
// Correctness holds when this is the only path, i.e. with caching disabled.
func (s *Service) compute(ctx context.Context, id shared.Identity) (map[string]struct{}, error) {
	base, err := s.grants.PermissionsForRole(ctx, id.Role)
	if err != nil {
		return nil, err
	}
	working := make(map[string]struct{}, len(base))
	for c := range base {
		working[c] = struct{}{}
	}

	active, err := s.overrides.ActiveFor(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	for _, o := range active {
		if o.IsGranted {
			// A grant override cannot resurrect a globally
			// deactivated permission.
			if o.PermissionActive {
				working[o.Codename] = struct{}{}
			}
			continue
		}
		// Revoke override wins over any role-derived grant.
		delete(working, o.Codename)
	}

	if s.supplementary != nil {
		extra, err := s.supplementary.Supplementary(ctx, id)
		if err != nil {
			return nil, err
		}
		for c := range extra {
			working[c] = struct{}{}
		}
	}
	return working, nil
}

func (s *Service) cacheKey(ctx context.Context, userID int64, role string) (string, error) {
	if s.cache == nil || !s.cache.enabled() {
		return "", nil
	}
	return s.cache.BuildKey(ctx, userID, role)
}

func sortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
