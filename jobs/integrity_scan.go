package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saimambayao/tms-access/internal/hierarchy"
	jobmetrics "github.com/saimambayao/tms-access/internal/jobs"
)

// IntegrityScanJob audits the permission stores for drift. It is read-only:
// findings are logged, never repaired in place.
type IntegrityScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityScanJob wires dependencies for the integrity handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes integrity scan tasks.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity scan: handler not configured")
	}
	if j.Pool == nil {
		return errors.New("integrity scan: pool not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting integrity scan")
	start := j.now()

	unknownRoles, err := j.scanUnknownRoles(ctx)
	if err != nil {
		resultErr = err
		logger.Error("scan unknown roles", slog.Any("error", err))
		return resultErr
	}
	for _, role := range unknownRoles {
		logger.Warn("users hold a role outside the hierarchy", slog.String("role", role))
	}

	staleGrants, err := j.countStaleGrants(ctx)
	if err != nil {
		resultErr = err
		logger.Error("scan stale grants", slog.Any("error", err))
		return resultErr
	}
	if staleGrants > 0 {
		logger.Warn("active role grants reference deactivated permissions", slog.Int64("count", staleGrants))
	}

	if payload.ExpiredOverrideNotice {
		expired, err := j.countExpiredOverrides(ctx, start)
		if err != nil {
			resultErr = err
			logger.Error("scan expired overrides", slog.Any("error", err))
			return resultErr
		}
		if expired > 0 {
			logger.Info("expired overrides remain in the store", slog.Int64("count", expired))
		}
	}

	logger.Info("completed integrity scan", slog.Duration("duration", time.Since(start)))
	return resultErr
}

// scanUnknownRoles returns roles present on active users that the hierarchy
// does not recognise. Those users deny every check, which is usually a
// migration mistake rather than intent.
func (j *IntegrityScanJob) scanUnknownRoles(ctx context.Context) ([]string, error) {
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT role FROM users WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	unknown := make([]string, 0)
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		if !hierarchy.Known(role) {
			unknown = append(unknown, role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return unknown, nil
}

// countStaleGrants counts active role-permission rows whose permission has
// been deactivated. They are inert at read time but hide intent.
func (j *IntegrityScanJob) countStaleGrants(ctx context.Context) (int64, error) {
	var count int64
	err := j.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.is_active = TRUE AND p.is_active = FALSE`).Scan(&count)
	return count, err
}

func (j *IntegrityScanJob) countExpiredOverrides(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := j.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM user_permission_overrides
		WHERE expires_at IS NOT NULL AND expires_at <= $1`, now).Scan(&count)
	return count, err
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskIntegrityScan))
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
