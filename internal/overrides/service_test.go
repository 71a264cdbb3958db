package overrides

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saimambayao/tms-access/internal/shared"
)

type fakeOverrideRepo struct {
	rows   map[[2]int64]Override
	nextID int64
}

func newFakeOverrideRepo() *fakeOverrideRepo {
	return &fakeOverrideRepo{rows: make(map[[2]int64]Override)}
}

func (f *fakeOverrideRepo) Upsert(ctx context.Context, o Override) (Override, error) {
	key := [2]int64{o.UserID, o.PermissionID}
	if existing, ok := f.rows[key]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	} else {
		f.nextID++
		o.ID = f.nextID
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = time.Now()
	o.PermissionActive = true
	f.rows[key] = o
	return o, nil
}

func (f *fakeOverrideRepo) Delete(ctx context.Context, userID, permissionID int64) error {
	key := [2]int64{userID, permissionID}
	if _, ok := f.rows[key]; !ok {
		return shared.ErrNotFound
	}
	delete(f.rows, key)
	return nil
}

func (f *fakeOverrideRepo) ListForUser(ctx context.Context, userID int64) ([]Override, error) {
	out := make([]Override, 0)
	for _, o := range f.rows {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakePermLookup struct {
	ids map[string]int64
}

func (f fakePermLookup) LookupID(ctx context.Context, codename string) (int64, error) {
	id, ok := f.ids[codename]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

type fakeAuditor struct {
	reasons []string
}

func (f *fakeAuditor) RecordEvent(ctx context.Context, userID int64, reason string, changedBy *int64, ipAddress *string) error {
	f.reasons = append(f.reasons, reason)
	return nil
}

type fakeInvalidator struct {
	userIDs []int64
}

func (f *fakeInvalidator) InvalidateUser(ctx context.Context, userID int64) error {
	f.userIDs = append(f.userIDs, userID)
	return nil
}

func newOverrideService(audit *fakeAuditor, cache *fakeInvalidator) (*Service, *fakeOverrideRepo) {
	repo := newFakeOverrideRepo()
	lookup := fakePermLookup{ids: map[string]int64{"manage_chapter_activity": 1, "view_reports": 2}}
	var a Auditor
	if audit != nil {
		a = audit
	}
	var c CacheInvalidator
	if cache != nil {
		c = cache
	}
	return NewService(repo, lookup, a, c, nil), repo
}

func TestSetRequiresReason(t *testing.T) {
	svc, _ := newOverrideService(nil, nil)

	_, err := svc.Set(context.Background(), 7, "view_reports", true, "   ", nil, nil, nil)
	assert.ErrorIs(t, err, shared.ErrMissingReason)
}

func TestSetUnknownCodename(t *testing.T) {
	svc, _ := newOverrideService(nil, nil)

	_, err := svc.Set(context.Background(), 7, "nonexistent", true, "why not", nil, nil, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetUpsertsSingleRowPerPair(t *testing.T) {
	svc, repo := newOverrideService(nil, nil)
	ctx := context.Background()

	first, err := svc.Set(ctx, 7, "view_reports", true, "pilot access", nil, nil, nil)
	require.NoError(t, err)

	second, err := svc.Set(ctx, 7, "view_reports", false, "pilot ended", nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.IsGranted)
	assert.Len(t, repo.rows, 1)
}

func TestExpiryIsReadTime(t *testing.T) {
	svc, repo := newOverrideService(nil, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	expiresAt := now.Add(time.Second)
	_, err := svc.Set(ctx, 7, "view_reports", false, "cool-down", &expiresAt, nil, nil)
	require.NoError(t, err)

	active, err := svc.ActiveFor(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// Two seconds later the row is inert but still physically present.
	svc.WithClock(func() time.Time { return now.Add(2 * time.Second) })
	active, err = svc.ActiveFor(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Len(t, repo.rows, 1)

	all, err := svc.ListFor(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClearHardDeletes(t *testing.T) {
	svc, repo := newOverrideService(nil, nil)
	ctx := context.Background()

	_, err := svc.Set(ctx, 7, "view_reports", true, "pilot access", nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, 7, "view_reports", nil, nil))
	assert.Empty(t, repo.rows)

	err = svc.Clear(ctx, 7, "view_reports", nil, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestWritesAuditAndInvalidate(t *testing.T) {
	audit := &fakeAuditor{}
	cache := &fakeInvalidator{}
	svc, _ := newOverrideService(audit, cache)
	ctx := context.Background()

	_, err := svc.Set(ctx, 7, "manage_chapter_activity", false, "temporary restriction", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, 7, "manage_chapter_activity", nil, nil))

	require.Len(t, audit.reasons, 2)
	assert.Contains(t, audit.reasons[0], "override revoked on manage_chapter_activity")
	assert.Contains(t, audit.reasons[0], "temporary restriction")
	assert.Contains(t, audit.reasons[1], "override cleared on manage_chapter_activity")
	assert.Equal(t, []int64{7, 7}, cache.userIDs)
}
