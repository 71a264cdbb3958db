package transitions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/shared"
)

type fakeLogRepo struct {
	entries []Entry
	nextID  int64
}

func (f *fakeLogRepo) Insert(ctx context.Context, e Entry) (Entry, error) {
	f.nextID++
	e.ID = f.nextID
	e.ChangedAt = time.Now()
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeLogRepo) ListForUser(ctx context.Context, userID int64, offset, limit int) ([]Entry, error) {
	matched := make([]Entry, 0)
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].UserID == userID {
			matched = append(matched, f.entries[i])
		}
	}
	return window(matched, offset, limit), nil
}

func (f *fakeLogRepo) ListRecent(ctx context.Context, offset, limit int) ([]Entry, error) {
	reversed := make([]Entry, 0, len(f.entries))
	for i := len(f.entries) - 1; i >= 0; i-- {
		reversed = append(reversed, f.entries[i])
	}
	return window(reversed, offset, limit), nil
}

func window(rows []Entry, offset, limit int) []Entry {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

type staticRoles map[int64]string

func (s staticRoles) RoleOf(ctx context.Context, userID int64) (string, error) {
	role, ok := s[userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return role, nil
}

func TestRecordRequiresReason(t *testing.T) {
	svc := NewService(&fakeLogRepo{}, nil)

	_, err := svc.Record(context.Background(), Entry{UserID: 7, ToRole: hierarchy.RoleStaff, Reason: "  "})
	if !errors.Is(err, shared.ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}
}

func TestRecordRequiresToRole(t *testing.T) {
	svc := NewService(&fakeLogRepo{}, nil)

	_, err := svc.Record(context.Background(), Entry{UserID: 7, Reason: "promotion"})
	if err == nil {
		t.Fatal("expected error for missing to_role")
	}
}

func TestEntriesAreImmutableOnceWritten(t *testing.T) {
	repo := &fakeLogRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	from := hierarchy.RoleRegisteredUser
	first, err := svc.Record(ctx, Entry{UserID: 7, FromRole: &from, ToRole: hierarchy.RoleCoordinator, Reason: "promotion"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	// Unrelated later activity must not disturb the first row.
	for i := 0; i < 3; i++ {
		other := hierarchy.RoleStaff
		if _, err := svc.Record(ctx, Entry{UserID: 8, FromRole: &other, ToRole: hierarchy.RoleAdmin, Reason: "rotation"}); err != nil {
			t.Fatalf("record unrelated: %v", err)
		}
	}

	result, err := svc.ForUser(ctx, 7, 1, 10)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row for user 7, got %d", len(result.Rows))
	}
	got := result.Rows[0]
	if got.ID != first.ID || got.ToRole != hierarchy.RoleCoordinator || got.FromRole == nil || *got.FromRole != hierarchy.RoleRegisteredUser || got.Reason != "promotion" {
		t.Fatalf("entry changed after unrelated writes: %+v", got)
	}
}

func TestRecordEventWritesSameRoleEntry(t *testing.T) {
	repo := &fakeLogRepo{}
	svc := NewService(repo, staticRoles{7: hierarchy.RoleStaff})

	if err := svc.RecordEvent(context.Background(), 7, "denied GET /reports: requires permission view_reports", nil, nil); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	e := repo.entries[0]
	if e.FromRole == nil || *e.FromRole != hierarchy.RoleStaff || e.ToRole != hierarchy.RoleStaff {
		t.Fatalf("expected same-role entry, got %+v", e)
	}
}

func TestPagingClampsAndReportsNext(t *testing.T) {
	repo := &fakeLogRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if _, err := svc.Record(ctx, Entry{UserID: 7, ToRole: hierarchy.RoleStaff, Reason: "rotation"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	result, err := svc.ForUser(ctx, 7, 0, 0)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if result.Paging.Page != 1 || result.Paging.PageSize != 20 {
		t.Fatalf("expected defaults page=1 size=20, got %+v", result.Paging)
	}
	if len(result.Rows) != 20 || !result.Paging.HasNext {
		t.Fatalf("expected full first page with next, got %d rows hasNext=%v", len(result.Rows), result.Paging.HasNext)
	}

	second, err := svc.ForUser(ctx, 7, 2, 20)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Rows) != 5 || second.Paging.HasNext {
		t.Fatalf("expected short final page, got %d rows hasNext=%v", len(second.Rows), second.Paging.HasNext)
	}
	if second.Paging.PrevPage != 1 {
		t.Fatalf("expected prev page 1, got %d", second.Paging.PrevPage)
	}

	oversized, err := svc.Recent(ctx, 1, 500)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if oversized.Paging.PageSize != 50 {
		t.Fatalf("expected page size clamped to 50, got %d", oversized.Paging.PageSize)
	}
}
