package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/saimambayao/tms-access/internal/jobs"
	"github.com/saimambayao/tms-access/internal/resolver"
	"github.com/saimambayao/tms-access/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	defaultWarmupLookback = 24 * time.Hour
	defaultWarmupLimit    = 200
	warmupConcurrency     = 4
)

// PermissionWarmupJob pre-resolves permission sets for recently active users
// so their next check is a cache hit.
type PermissionWarmupJob struct {
	Resolver *resolver.Service
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewPermissionWarmupJob wires dependencies for the warmup handler.
func NewPermissionWarmupJob(res *resolver.Service, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionWarmupJob {
	return &PermissionWarmupJob{
		Resolver: res,
		Pool:     pool,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes permission warmup tasks.
func (j *PermissionWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("permission warmup: handler not configured")
	}
	var payload PermissionWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	lookback := defaultWarmupLookback
	if payload.Lookback != "" {
		parsed, err := time.ParseDuration(payload.Lookback)
		if err != nil || parsed <= 0 {
			return asynq.SkipRetry
		}
		lookback = parsed
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultWarmupLimit
	}

	tracker := j.metrics().Track(TaskPermissionWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Duration("lookback", lookback))
	logger.Info("starting permission warmup")

	start := j.now()
	identities, err := j.fetchActiveUsers(ctx, start.Add(-lookback), limit)
	if err != nil {
		resultErr = err
		logger.Error("load warmup users", slog.Any("error", err))
		return resultErr
	}
	if len(identities) == 0 {
		logger.Info("no recently active users to warm")
		return resultErr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)
	for _, id := range identities {
		id := id
		g.Go(func() error {
			warmCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			_, err := j.Resolver.PermissionSet(warmCtx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		logger.Error("warm permission sets", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed permission warmup", slog.Int("users", len(identities)), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *PermissionWarmupJob) fetchActiveUsers(ctx context.Context, since time.Time, limit int) ([]shared.Identity, error) {
	if j.Pool == nil {
		return nil, errors.New("permission warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT id, role, chapter
		FROM users
		WHERE is_active = TRUE AND last_permission_check >= $1
		ORDER BY last_permission_check DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := make([]shared.Identity, 0)
	for rows.Next() {
		var id shared.Identity
		if err := rows.Scan(&id.UserID, &id.Role, &id.Chapter); err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return identities, nil
}

func (j *PermissionWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPermissionWarmup))
	}
	return slog.Default().With(slog.String("job", TaskPermissionWarmup))
}

func (j *PermissionWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PermissionWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
