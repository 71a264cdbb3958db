package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	"github.com/saimambayao/tms-access/internal/shared"
	"github.com/saimambayao/tms-access/internal/transitions"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Create(ctx context.Context, email, name, chapter string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, userID int64, role string, assignedBy *int64) error
	RoleOf(ctx context.Context, userID int64) (string, error)
}

// Service handles user business logic for this subsystem. User deletion is
// owned by the wider user-management module and has no operation here.
type Service struct {
	repo   RepositoryPort
	log    *transitions.Service
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, log *transitions.Service, logger *slog.Logger) *Service {
	return &Service{repo: repo, log: log, logger: logger}
}

// Register creates a user with the default role and records the initial
// assignment (from_role is null).
func (s *Service) Register(ctx context.Context, email, name, chapter string) (User, error) {
	user, err := s.repo.Create(ctx, strings.TrimSpace(strings.ToLower(email)), strings.TrimSpace(name), strings.TrimSpace(chapter))
	if err != nil {
		return User{}, err
	}
	if _, err := s.log.Record(ctx, transitions.Entry{
		UserID: user.ID,
		ToRole: user.Role,
		Reason: "initial registration",
	}); err != nil && s.logger != nil {
		s.logger.Warn("record initial assignment", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return user, nil
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// ChangeRole is the only way a user's role mutates. Exactly one transition
// row is written per call. The reason is mandatory.
func (s *Service) ChangeRole(ctx context.Context, userID int64, toRole, reason string, actorID *int64, ipAddress *string) (User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return User{}, shared.ErrMissingReason
	}
	toRole = hierarchy.Canonical(strings.TrimSpace(toRole))
	if !hierarchy.Known(toRole) {
		return User{}, fmt.Errorf("users: unknown role %q: %w", toRole, shared.ErrNotFound)
	}
	current, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateRole(ctx, userID, toRole, actorID); err != nil {
		return User{}, err
	}
	fromRole := current.Role
	if _, err := s.log.Record(ctx, transitions.Entry{
		UserID:    userID,
		FromRole:  &fromRole,
		ToRole:    toRole,
		Reason:    reason,
		ChangedBy: actorID,
		IPAddress: ipAddress,
	}); err != nil && s.logger != nil {
		// The role mutation stands; the log is advisory, not a source
		// of truth for current state.
		s.logger.Error("record role transition", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return s.repo.GetUser(ctx, userID)
}
