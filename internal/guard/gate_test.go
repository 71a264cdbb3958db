package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/overrides"
	"github.com/saimambayao/tms-access/internal/resolver"
	"github.com/saimambayao/tms-access/internal/shared"
	"github.com/saimambayao/tms-access/internal/transitions"
)

type staticGrants map[string]map[string]struct{}

func (s staticGrants) PermissionsForRole(ctx context.Context, role string) (map[string]struct{}, error) {
	set, ok := s[hierarchy.Canonical(role)]
	if !ok {
		return map[string]struct{}{}, nil
	}
	return set, nil
}

type noOverrides struct{}

func (noOverrides) ActiveFor(ctx context.Context, userID int64) ([]overrides.Override, error) {
	return nil, nil
}

type capturingLogRepo struct {
	entries []transitions.Entry
}

func (c *capturingLogRepo) Insert(ctx context.Context, e transitions.Entry) (transitions.Entry, error) {
	c.entries = append(c.entries, e)
	return e, nil
}

func (c *capturingLogRepo) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]transitions.Entry, error) {
	return nil, nil
}

func (c *capturingLogRepo) ListRecent(ctx context.Context, offset, limit int) ([]transitions.Entry, error) {
	return nil, nil
}

type countingMetrics struct {
	allows int
	denies int
}

func (c *countingMetrics) RecordDecision(check, outcome string) {
	if outcome == "allow" {
		c.allows++
		return
	}
	c.denies++
}

type countingToucher struct {
	touched []int64
}

func (c *countingToucher) TouchPermissionCheck(ctx context.Context, userID int64) error {
	c.touched = append(c.touched, userID)
	return nil
}

func newTestGate() (Gate, *capturingLogRepo, *countingMetrics, *countingToucher) {
	grants := staticGrants{
		hierarchy.RoleCoordinator: {"manage_chapter_activity": {}},
	}
	res := resolver.NewService(grants, noOverrides{}, nil, nil, nil)
	logRepo := &capturingLogRepo{}
	metrics := &countingMetrics{}
	toucher := &countingToucher{}
	gate := Gate{
		Resolver: res,
		Audit:    transitions.NewService(logRepo, nil),
		Metrics:  metrics,
		Toucher:  toucher,
	}
	return gate, logRepo, metrics, toucher
}

func TestRequireRoleAllowsAndTouches(t *testing.T) {
	gate, logRepo, metrics, toucher := newTestGate()
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleAdmin}

	if err := gate.RequireRole(context.Background(), id, hierarchy.RoleCoordinator, "list users"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if metrics.allows != 1 || metrics.denies != 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if len(toucher.touched) != 1 || toucher.touched[0] != 7 {
		t.Fatalf("expected touch for user 7, got %v", toucher.touched)
	}
	if len(logRepo.entries) != 0 {
		t.Fatalf("allowed checks must not be audited, got %d entries", len(logRepo.entries))
	}
}

func TestRequireRoleDenialIsAudited(t *testing.T) {
	gate, logRepo, metrics, _ := newTestGate()
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleRegisteredUser}

	err := gate.RequireRole(context.Background(), id, hierarchy.RoleCoordinator, "list users")
	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDeniedError, got %v", err)
	}
	if denied.RequiredRole != hierarchy.RoleCoordinator {
		t.Fatalf("expected required role on error, got %q", denied.RequiredRole)
	}
	if strings.Contains(denied.Error(), hierarchy.RoleCoordinator) {
		t.Fatal("error message must not leak the requirement")
	}
	if metrics.denies != 1 {
		t.Fatalf("expected 1 deny recorded, got %d", metrics.denies)
	}
	if len(logRepo.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(logRepo.entries))
	}
	e := logRepo.entries[0]
	if e.FromRole == nil || *e.FromRole != id.Role || e.ToRole != id.Role {
		t.Fatalf("denial must log a same-role entry, got %+v", e)
	}
}

func TestRequirePermissionChecksResolvedSet(t *testing.T) {
	gate, _, _, _ := newTestGate()
	ctx := context.Background()

	holder := shared.Identity{UserID: 7, Role: hierarchy.RoleCoordinator}
	if err := gate.RequirePermission(ctx, holder, "manage_chapter_activity", "edit activity"); err != nil {
		t.Fatalf("expected coordinator to pass, got %v", err)
	}

	// A higher rank does not imply the permission; grants are explicit.
	outsider := shared.Identity{UserID: 8, Role: hierarchy.RoleMP}
	err := gate.RequirePermission(ctx, outsider, "manage_chapter_activity", "edit activity")
	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDeniedError, got %v", err)
	}
	if denied.RequiredPermission != "manage_chapter_activity" {
		t.Fatalf("expected required permission on error, got %q", denied.RequiredPermission)
	}
}

func TestMiddlewareDeniesAnonymousWithGenericBody(t *testing.T) {
	gate, _, _, _ := newTestGate()
	mw := Middleware{Gate: gate}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	rec := httptest.NewRecorder()
	mw.RequirePermission(shared.PermUsersView)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, shared.PermUsersView) {
		t.Fatal("denial body must not leak the requirement")
	}
	if !strings.Contains(body, "you do not have permission") {
		t.Fatalf("expected generic denial body, got %s", body)
	}
}

func TestMiddlewarePassesAuthorizedRequests(t *testing.T) {
	gate, _, _, _ := newTestGate()
	mw := Middleware{Gate: gate}

	ran := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ran = true
		w.WriteHeader(http.StatusNoContent)
	})
	id := shared.Identity{UserID: 7, Role: hierarchy.RoleCoordinator}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/activities", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), &id))
	rec := httptest.NewRecorder()
	mw.RequireAny("something_else", "manage_chapter_activity")(next).ServeHTTP(rec, req)

	if !ran {
		t.Fatal("handler did not run")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
