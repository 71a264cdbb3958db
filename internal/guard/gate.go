package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saimambayao/tms-access/internal/resolver"
	"github.com/saimambayao/tms-access/internal/shared"
	"github.com/saimambayao/tms-access/internal/transitions"
)

// DecisionMetrics counts gate outcomes. Satisfied by observability.Metrics.
type DecisionMetrics interface {
	RecordDecision(check, outcome string)
}

// Toucher stamps a user's last permission check. Satisfied by the users
// repository.
type Toucher interface {
	TouchPermissionCheck(ctx context.Context, userID int64) error
}

// Gate wraps protected operations with role or permission checks for
// non-HTTP callers. Gates compose: run one after another and report the
// first failure.
type Gate struct {
	Resolver *resolver.Service
	Audit    *transitions.Service
	Metrics  DecisionMetrics
	Toucher  Toucher
	Logger   *slog.Logger
}

// RequireRole denies unless the identity's role meets the minimum.
func (g Gate) RequireRole(ctx context.Context, id shared.Identity, minRole string, action string) error {
	if g.Resolver.HasRoleOrHigher(id, minRole) {
		g.allowed(ctx, id, "role")
		return nil
	}
	g.denied(ctx, id, "role", fmt.Sprintf("denied %s: requires role %s or higher", action, minRole))
	return &AccessDeniedError{RequiredRole: minRole}
}

// RequirePermission denies unless the identity holds the named permission.
func (g Gate) RequirePermission(ctx context.Context, id shared.Identity, codename string, action string) error {
	if g.Resolver.HasPermission(ctx, id, codename) {
		g.allowed(ctx, id, "permission")
		return nil
	}
	g.denied(ctx, id, "permission", fmt.Sprintf("denied %s: requires permission %s", action, codename))
	return &AccessDeniedError{RequiredPermission: codename}
}

func (g Gate) allowed(ctx context.Context, id shared.Identity, check string) {
	if g.Metrics != nil {
		g.Metrics.RecordDecision(check, "allow")
	}
	if g.Toucher != nil {
		if err := g.Toucher.TouchPermissionCheck(ctx, id.UserID); err != nil && g.Logger != nil {
			g.Logger.Warn("touch permission check", slog.Int64("user_id", id.UserID), slog.Any("error", err))
		}
	}
}

func (g Gate) denied(ctx context.Context, id shared.Identity, check, reason string) {
	if g.Metrics != nil {
		g.Metrics.RecordDecision(check, "deny")
	}
	if g.Logger != nil {
		g.Logger.Info("access denied", slog.Int64("user_id", id.UserID), slog.String("role", id.Role), slog.String("reason", reason))
	}
	if g.Audit == nil {
		return
	}
	// Denials land in the transition log as same-role entries so attempted
	// and successful role-sensitive actions share one audit trail.
	role := id.Role
	if _, err := g.Audit.Record(ctx, transitions.Entry{
		UserID:   id.UserID,
		FromRole: &role,
		ToRole:   role,
		Reason:   reason,
	}); err != nil && g.Logger != nil {
		g.Logger.Warn("record denial", slog.Int64("user_id", id.UserID), slog.Any("error", err))
	}
}
