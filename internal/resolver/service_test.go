package resolver

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/overrides"
	"github.com/saimambayao/tms-access/internal/shared"
)

type fakeGrants struct {
	sets  map[string]map[string]struct{}
	calls int
}

func (f *fakeGrants) PermissionsForRole(ctx context.Context, role string) (map[string]struct{}, error) {
	f.calls++
	set, ok := f.sets[hierarchy.Canonical(role)]
	if !ok {
		return map[string]struct{}{}, nil
	}
	out := make(map[string]struct{}, len(set))
	for c := range set {
		out[c] = struct{}{}
	}
	return out, nil
}

type fakeOverrideSource struct {
	rows []overrides.Override
}

func (f *fakeOverrideSource) ActiveFor(ctx context.Context, userID int64) ([]overrides.Override, error) {
	out := make([]overrides.Override, 0)
	for _, o := range f.rows {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func grantSet(codenames ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(codenames))
	for _, c := range codenames {
		set[c] = struct{}{}
	}
	return set
}

func newTestResolver(t *testing.T, grants *fakeGrants, ovr *fakeOverrideSource, ttl time.Duration) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, ttl)
	return NewService(grants, ovr, nil, cache, nil), mr
}

func TestPermissionSetCachesByUserAndRole(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{
		hierarchy.RoleStaff: grantSet("manage_referrals"),
	}}
	svc, _ := newTestResolver(t, grants, &fakeOverrideSource{}, time.Minute)
	ctx := context.Background()
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleStaff}

	set, err := svc.PermissionSet(ctx, id)
	if err != nil {
		t.Fatalf("permission set: %v", err)
	}
	if _, ok := set["manage_referrals"]; !ok {
		t.Fatal("expected manage_referrals in set")
	}
	if grants.calls != 1 {
		t.Fatalf("expected 1 store call, got %d", grants.calls)
	}

	// Second resolution hits the cache.
	if _, err := svc.PermissionSet(ctx, id); err != nil {
		t.Fatalf("cached permission set: %v", err)
	}
	if grants.calls != 1 {
		t.Fatalf("expected cache hit, got %d store calls", grants.calls)
	}

	// The role is part of the key, so a role change recomputes.
	id.Role = hierarchy.RoleCoordinator
	if _, err := svc.PermissionSet(ctx, id); err != nil {
		t.Fatalf("permission set after role change: %v", err)
	}
	if grants.calls != 2 {
		t.Fatalf("expected recompute after role change, got %d store calls", grants.calls)
	}
}

func TestOverridePrecedence(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{
		hierarchy.RoleCoordinator: grantSet("manage_chapter_activity", "view_reports"),
	}}
	ovr := &fakeOverrideSource{rows: []overrides.Override{
		{UserID: 7, Codename: "manage_chapter_activity", IsGranted: false, PermissionActive: true},
		{UserID: 7, Codename: "manage_referrals", IsGranted: true, PermissionActive: true},
	}}
	svc, _ := newTestResolver(t, grants, ovr, 0)
	ctx := context.Background()
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleCoordinator}

	if svc.HasPermission(ctx, id, "manage_chapter_activity") {
		t.Fatal("revoke override must beat the role grant")
	}
	if !svc.HasPermission(ctx, id, "manage_referrals") {
		t.Fatal("grant override must add a permission the role lacks")
	}
	if !svc.HasPermission(ctx, id, "view_reports") {
		t.Fatal("untouched role grant must survive")
	}
}

func TestGrantOverrideCannotResurrectInactivePermission(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{}}
	ovr := &fakeOverrideSource{rows: []overrides.Override{
		{UserID: 7, Codename: "manage_referrals", IsGranted: true, PermissionActive: false},
	}}
	svc, _ := newTestResolver(t, grants, ovr, 0)

	if svc.HasPermission(context.Background(), shared.Identity{UserID: 7, Role: hierarchy.RoleStaff}, "manage_referrals") {
		t.Fatal("grant override resurrected a deactivated permission")
	}
}

func TestDenyByDefaultOnUnknownInput(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{
		hierarchy.RoleStaff: grantSet("manage_referrals"),
	}}
	svc, _ := newTestResolver(t, grants, &fakeOverrideSource{}, 0)
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleStaff}

	if svc.HasPermission(context.Background(), id, "nonexistent_codename") {
		t.Fatal("unknown codename must deny")
	}
	if svc.HasRoleOrHigher(id, "nonexistent_role") {
		t.Fatal("unknown required role must deny")
	}
	if svc.HasRoleOrHigher(shared.Identity{UserID: 8, Role: "warlord"}, hierarchy.RoleRegisteredUser) {
		t.Fatal("unknown held role must deny")
	}
}

func TestInvalidateUserForcesRecompute(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{
		hierarchy.RoleStaff: grantSet("manage_referrals"),
	}}
	svc, _ := newTestResolver(t, grants, &fakeOverrideSource{}, time.Minute)
	ctx := context.Background()
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleStaff}

	if _, err := svc.PermissionSet(ctx, id); err != nil {
		t.Fatalf("permission set: %v", err)
	}
	if err := svc.InvalidateUser(ctx, 7); err != nil {
		t.Fatalf("invalidate user: %v", err)
	}
	if _, err := svc.PermissionSet(ctx, id); err != nil {
		t.Fatalf("permission set after invalidate: %v", err)
	}
	if grants.calls != 2 {
		t.Fatalf("expected recompute after invalidation, got %d store calls", grants.calls)
	}
}

func TestClearInvalidatesEveryUser(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{
		hierarchy.RoleStaff: grantSet("manage_referrals"),
	}}
	svc, _ := newTestResolver(t, grants, &fakeOverrideSource{}, time.Minute)
	ctx := context.Background()

	for _, userID := range []int64{1, 2, 3} {
		if _, err := svc.PermissionSet(ctx, shared.Identity{UserID: userID, Role: hierarchy.RoleStaff}); err != nil {
			t.Fatalf("permission set user %d: %v", userID, err)
		}
	}
	if grants.calls != 3 {
		t.Fatalf("expected 3 store calls, got %d", grants.calls)
	}

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	for _, userID := range []int64{1, 2, 3} {
		if _, err := svc.PermissionSet(ctx, shared.Identity{UserID: userID, Role: hierarchy.RoleStaff}); err != nil {
			t.Fatalf("permission set user %d: %v", userID, err)
		}
	}
	if grants.calls != 6 {
		t.Fatalf("expected every user recomputed after clear, got %d store calls", grants.calls)
	}
}

func TestCorrectnessWithCachingDisabled(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{
		hierarchy.RoleStaff: grantSet("manage_referrals"),
	}}
	svc := NewService(grants, &fakeOverrideSource{}, nil, nil, nil)
	ctx := context.Background()
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleStaff}

	for i := 0; i < 3; i++ {
		if !svc.HasPermission(ctx, id, "manage_referrals") {
			t.Fatal("expected grant with caching disabled")
		}
	}
	if grants.calls != 3 {
		t.Fatalf("expected every check to recompute, got %d store calls", grants.calls)
	}
}

func TestSupplementaryProviderUnionedLast(t *testing.T) {
	grants := &fakeGrants{sets: map[string]map[string]struct{}{}}
	supplementary := supplementaryFunc(func(ctx context.Context, id shared.Identity) (map[string]struct{}, error) {
		return grantSet("group_extra"), nil
	})
	svc := NewService(grants, &fakeOverrideSource{}, supplementary, nil, nil)

	if !svc.HasPermission(context.Background(), shared.Identity{UserID: 7, Role: hierarchy.RoleStaff}, "group_extra") {
		t.Fatal("supplementary permission missing from resolved set")
	}
}

type supplementaryFunc func(ctx context.Context, id shared.Identity) (map[string]struct{}, error)

func (f supplementaryFunc) Supplementary(ctx context.Context, id shared.Identity) (map[string]struct{}, error) {
	return f(ctx, id)
}

// mutableOverrideRepo backs a real overrides.Service for the end-to-end flow.
type mutableOverrideRepo struct {
	rows   map[[2]int64]overrides.Override
	nextID int64
}

func (m *mutableOverrideRepo) Upsert(ctx context.Context, o overrides.Override) (overrides.Override, error) {
	key := [2]int64{o.UserID, o.PermissionID}
	if existing, ok := m.rows[key]; ok {
		o.ID = existing.ID
	} else {
		m.nextID++
		o.ID = m.nextID
	}
	o.PermissionActive = true
	m.rows[key] = o
	return o, nil
}

func (m *mutableOverrideRepo) Delete(ctx context.Context, userID, permissionID int64) error {
	delete(m.rows, [2]int64{userID, permissionID})
	return nil
}

func (m *mutableOverrideRepo) ListForUser(ctx context.Context, userID int64) ([]overrides.Override, error) {
	out := make([]overrides.Override, 0)
	for _, o := range m.rows {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type staticPermLookup map[string]int64

func (s staticPermLookup) LookupID(ctx context.Context, codename string) (int64, error) {
	id, ok := s[codename]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

// TestLifecycleOfATemporaryRestriction walks one user from registration
// through promotion, a temporary revoke override, and its expiry.
func TestLifecycleOfATemporaryRestriction(t *testing.T) {
	const ttl = 5 * time.Minute
	grants := &fakeGrants{sets: map[string]map[string]struct{}{}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, ttl)

	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	ovrRepo := &mutableOverrideRepo{rows: make(map[[2]int64]overrides.Override)}
	ovrSvc := overrides.NewService(ovrRepo, staticPermLookup{"manage_chapter_activity": 1}, nil, cache, nil).
		WithClock(func() time.Time { return now })

	svc := NewService(grants, ovrSvc, nil, cache, nil)
	ctx := context.Background()
	id := shared.Identity{UserID: 42, Role: hierarchy.RoleRegisteredUser}

	if svc.HasPermission(ctx, id, "manage_chapter_activity") {
		t.Fatal("fresh registered_user must not manage chapter activity")
	}

	// Admin grants the permission to coordinators and promotes the user.
	grants.sets[hierarchy.RoleCoordinator] = grantSet("manage_chapter_activity")
	id.Role = hierarchy.RoleCoordinator
	if !svc.HasPermission(ctx, id, "manage_chapter_activity") {
		t.Fatal("coordinator must manage chapter activity after the role grant")
	}

	// A temporary restriction overrides the role grant for one hour.
	expiresAt := now.Add(time.Hour)
	if _, err := ovrSvc.Set(ctx, id.UserID, "manage_chapter_activity", false, "temporary restriction", &expiresAt, nil, nil); err != nil {
		t.Fatalf("set override: %v", err)
	}
	if svc.HasPermission(ctx, id, "manage_chapter_activity") {
		t.Fatal("revoke override must deny while in force")
	}

	// An hour passes. No further writes: the override goes inert at read
	// time and the cached denial ages out with the TTL.
	now = now.Add(time.Hour + time.Second)
	mr.FastForward(ttl)
	if !svc.HasPermission(ctx, id, "manage_chapter_activity") {
		t.Fatal("expired override must stop denying without any write")
	}
}
