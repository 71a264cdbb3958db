package transitions

import (
	"context"
	"fmt"
	"strings"

	"github.com/saimambayao/tms-access/internal/shared"
)

// RepositoryPort defines data access methods for the transition log.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) (Entry, error)
	ListForUser(ctx context.Context, userID int64, offset, limit int) ([]Entry, error)
	ListRecent(ctx context.Context, offset, limit int) ([]Entry, error)
}

// RoleLookup resolves a user's current role. Satisfied by the users
// repository; kept as an interface so this package never imports it.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID int64) (string, error)
}

// Service coordinates the append-only role transition log.
type Service struct {
	repo  RepositoryPort
	roles RoleLookup
}

// NewService builds Service instance. roles may be nil when RecordEvent is
// not used.
func NewService(repo RepositoryPort, roles RoleLookup) *Service {
	return &Service{repo: repo, roles: roles}
}

// Record appends one transition row. The role mutation itself is the
// caller's responsibility; this only records.
func (s *Service) Record(ctx context.Context, e Entry) (Entry, error) {
	e.Reason = strings.TrimSpace(e.Reason)
	if e.Reason == "" {
		return Entry{}, shared.ErrMissingReason
	}
	if strings.TrimSpace(e.ToRole) == "" {
		return Entry{}, fmt.Errorf("transitions: to_role required")
	}
	return s.repo.Insert(ctx, e)
}

// RecordEvent appends a same-role row for a user, used for denial auditing
// and override changes. The user's current role is looked up so the entry
// reads from_role == to_role.
func (s *Service) RecordEvent(ctx context.Context, userID int64, reason string, changedBy *int64, ipAddress *string) error {
	if s.roles == nil {
		return fmt.Errorf("transitions: role lookup not configured")
	}
	role, err := s.roles.RoleOf(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.Record(ctx, Entry{
		UserID:    userID,
		FromRole:  &role,
		ToRole:    role,
		Reason:    reason,
		ChangedBy: changedBy,
		IPAddress: ipAddress,
	})
	return err
}

// ForUser returns a user's transition history with paging, newest first.
func (s *Service) ForUser(ctx context.Context, userID int64, page, pageSize int) (Result, error) {
	page, pageSize = clampPaging(page, pageSize)
	rows, err := s.repo.ListForUser(ctx, userID, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	return paged(rows, page, pageSize), nil
}

// Recent returns the newest transition rows across all users with paging.
func (s *Service) Recent(ctx context.Context, page, pageSize int) (Result, error) {
	page, pageSize = clampPaging(page, pageSize)
	rows, err := s.repo.ListRecent(ctx, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	return paged(rows, page, pageSize), nil
}

func clampPaging(page, pageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}
	return page, pageSize
}

func paged(rows []Entry, page, pageSize int) Result {
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}
}
