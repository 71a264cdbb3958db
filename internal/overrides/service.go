package overrides

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saimambayao/tms-access/internal/shared"
)

// RepositoryPort defines data access methods for overrides.
type RepositoryPort interface {
	Upsert(ctx context.Context, o Override) (Override, error)
	Delete(ctx context.Context, userID, permissionID int64) error
	ListForUser(ctx context.Context, userID int64) ([]Override, error)
}

// PermissionLookup resolves a codename to its permission id. Satisfied by the
// registry service.
type PermissionLookup interface {
	LookupID(ctx context.Context, codename string) (int64, error)
}

// Auditor records override changes in the transition log so exceptional
// grants stay explainable after the row is hard-deleted.
type Auditor interface {
	RecordEvent(ctx context.Context, userID int64, reason string, changedBy *int64, ipAddress *string) error
}

// CacheInvalidator drops a user's cached permission set after a write.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// Service handles override business logic.
type Service struct {
	repo   RepositoryPort
	perms  PermissionLookup
	audit  Auditor
	cache  CacheInvalidator
	logger *slog.Logger
	clock  func() time.Time
}

// NewService builds Service instance. audit and cache may be nil.
func NewService(repo RepositoryPort, perms PermissionLookup, audit Auditor, cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		perms:  perms,
		audit:  audit,
		cache:  cache,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by expiry tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Set upserts the override for (user, permission). The reason is mandatory;
// every exceptional grant or revoke must be explained.
func (s *Service) Set(ctx context.Context, userID int64, codename string, isGranted bool, reason string, expiresAt *time.Time, actorID *int64, ip *string) (Override, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Override{}, shared.ErrMissingReason
	}
	permID, err := s.perms.LookupID(ctx, strings.ToLower(strings.TrimSpace(codename)))
	if err != nil {
		return Override{}, err
	}
	saved, err := s.repo.Upsert(ctx, Override{
		UserID:       userID,
		PermissionID: permID,
		Codename:     strings.ToLower(strings.TrimSpace(codename)),
		IsGranted:    isGranted,
		Reason:       reason,
		ExpiresAt:    expiresAt,
		CreatedBy:    actorID,
	})
	if err != nil {
		return Override{}, err
	}
	s.recordAudit(ctx, userID, fmt.Sprintf("override %s on %s: %s", verb(isGranted), saved.Codename, reason), actorID, ip)
	s.invalidate(ctx, userID)
	return saved, nil
}

// Clear hard-deletes the override for (user, permission).
func (s *Service) Clear(ctx context.Context, userID int64, codename string, actorID *int64, ip *string) error {
	normalized := strings.ToLower(strings.TrimSpace(codename))
	permID, err := s.perms.LookupID(ctx, normalized)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, permID); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, fmt.Sprintf("override cleared on %s", normalized), actorID, ip)
	s.invalidate(ctx, userID)
	return nil
}

// ActiveFor returns the overrides currently in force for a user. Rows whose
// expiry has passed are excluded but remain in the store.
func (s *Service) ActiveFor(ctx context.Context, userID int64) ([]Override, error) {
	all, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	active := make([]Override, 0, len(all))
	for _, o := range all {
		if o.ExpiredAt(now) {
			continue
		}
		active = append(active, o)
	}
	return active, nil
}

// ListFor returns every override row for admin display, expired included.
func (s *Service) ListFor(ctx context.Context, userID int64) ([]Override, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) recordAudit(ctx context.Context, userID int64, reason string, actorID *int64, ip *string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordEvent(ctx, userID, reason, actorID, ip); err != nil && s.logger != nil {
		s.logger.Warn("override audit record", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("override cache invalidate", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func verb(isGranted bool) string {
	if isGranted {
		return "granted"
	}
	return "revoked"
}
