// Package queue is the durable job queue: a Postgres-backed table polled by
// worker goroutines via SELECT ... FOR UPDATE SKIP LOCKED, giving multiple
// worker processes safe concurrent claims without a separate broker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AdamA817/printarr-sub001/internal/apperr"
	"github.com/AdamA817/printarr-sub001/internal/models"
	"github.com/AdamA817/printarr-sub001/internal/retry"
)

const defaultMaxAttempts = 4

// Queue is the job queue, backed by a Postgres connection pool.
type Queue struct {
	pool *pgxpool.Pool
}

// Config configures the Postgres connection pool backing the queue.
type Config struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ApplicationName     string
}

// Open parses cfg and establishes the connection pool. Callers should defer
// Close.
func Open(ctx context.Context, cfg Config) (*Queue, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse queue dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ApplicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open queue pool: %w", err)
	}
	return &Queue{pool: pool}, nil
}

// Close releases the connection pool.
func (q *Queue) Close() {
	q.pool.Close()
}

// Ping verifies connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.pool.Ping(ctx)
}

// EnqueueParams describes a new job submission.
type EnqueueParams struct {
	Kind        models.JobKind
	Priority    int
	DesignID    *string
	ChannelID   *string
	Payload     any
	DisplayName string
	MaxAttempts int

	// Delay defers the job's first claim: the row is inserted QUEUED with
	// next_retry_at = now + Delay, reusing the retry-backoff gate.
	Delay time.Duration
}

// Enqueue inserts a new job. For pipeline kinds, enqueue is idempotent on
// (design_id, kind): if a non-terminal job of the same kind
// already exists for the design, the existing job is returned instead of a
// duplicate insert.
func (q *Queue) Enqueue(ctx context.Context, params EnqueueParams) (models.Job, error) {
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = defaultMaxAttempts
	}
	payload, err := json.Marshal(params.Payload)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal job payload: %w", err)
	}

	if models.PipelineKinds[params.Kind] && params.DesignID != nil {
		existing, ok, err := q.findActiveByDesignAndKind(ctx, *params.DesignID, params.Kind)
		if err != nil {
			return models.Job{}, err
		}
		if ok {
			return existing, nil
		}
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	var notBefore *time.Time
	if params.Delay > 0 {
		t := now.Add(params.Delay)
		notBefore = &t
	}
	const stmt = `
		INSERT INTO jobs (id, kind, status, priority, design_id, channel_id, payload, attempts, max_attempts, next_retry_at, display_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11)`
	_, err = q.pool.Exec(ctx, stmt, id, string(params.Kind), string(models.JobQueued), params.Priority,
		params.DesignID, params.ChannelID, payload, params.MaxAttempts, notBefore, params.DisplayName, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:          id,
		Kind:        params.Kind,
		Status:      models.JobQueued,
		Priority:    params.Priority,
		DesignID:    params.DesignID,
		ChannelID:   params.ChannelID,
		Payload:     payload,
		MaxAttempts: params.MaxAttempts,
		NextRetryAt: notBefore,
		DisplayName: params.DisplayName,
		CreatedAt:   now,
	}, nil
}

func (q *Queue) findActiveByDesignAndKind(ctx context.Context, designID string, kind models.JobKind) (models.Job, bool, error) {
	const query = `
		SELECT id, kind, status, priority, design_id, channel_id, payload, result,
		       progress_cur, progress_tot, attempts, max_attempts, next_retry_at,
		       last_error, display_name, created_at, started_at, finished_at
		FROM jobs
		WHERE design_id = $1 AND kind = $2 AND status IN ('QUEUED', 'RUNNING')
		LIMIT 1`
	row := q.pool.QueryRow(ctx, query, designID, string(kind))
	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Job{}, false, nil
		}
		return models.Job{}, false, fmt.Errorf("find active job: %w", err)
	}
	return job, true, nil
}

// Claim atomically claims up to limit queued jobs of the given kinds,
// highest priority and oldest first, skipping rows other workers are
// already holding via FOR UPDATE SKIP LOCKED.
func (q *Queue) Claim(ctx context.Context, kinds []models.JobKind, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	kindStrs := make([]string, len(kinds))
	for i, k := range kinds {
		kindStrs[i] = string(k)
	}

	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer rollback(ctx, tx)

	const selectStmt = `
		SELECT id FROM jobs
		WHERE status = 'QUEUED' AND kind = ANY($1)
		  AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`
	rows, err := tx.Query(ctx, selectStmt, kindStrs, limit)
	if err != nil {
		return nil, fmt.Errorf("select claimable jobs: %w", err)
	}
	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimable job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	now := time.Now().UTC()
	const updateStmt = `
		UPDATE jobs SET status = 'RUNNING', started_at = $2, attempts = attempts + 1
		WHERE id = ANY($1)
		RETURNING id, kind, status, priority, design_id, channel_id, payload, result,
		          progress_cur, progress_tot, attempts, max_attempts, next_retry_at,
		          last_error, display_name, created_at, started_at, finished_at`
	claimedRows, err := tx.Query(ctx, updateStmt, ids, now)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	jobs := make([]models.Job, 0, len(ids))
	for claimedRows.Next() {
		job, err := scanJobRows(claimedRows)
		if err != nil {
			claimedRows.Close()
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, job)
	}
	claimedRows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}
	return jobs, nil
}

// Heartbeat updates progress for a running job without changing its status.
func (q *Queue) Heartbeat(ctx context.Context, id string, progressCur, progressTot int) error {
	const stmt = `UPDATE jobs SET progress_cur = $2, progress_tot = $3 WHERE id = $1 AND status = 'RUNNING'`
	tag, err := q.pool.Exec(ctx, stmt, id, progressCur, progressTot)
	if err != nil {
		return fmt.Errorf("heartbeat job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("running job %s not found", id)
	}
	return nil
}

// Complete marks a job SUCCESS and stores its JSON result.
func (q *Queue) Complete(ctx context.Context, id string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	const stmt = `UPDATE jobs SET status = 'SUCCESS', result = $2, finished_at = $3 WHERE id = $1`
	_, err = q.pool.Exec(ctx, stmt, id, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail records a job failure. The failure message is classified (transient,
// permanent, or unknown): permanent failures never retry, unknown failures
// retry at most once, and transient failures retry until max_attempts is
// reached. A retried job is rescheduled at now+retry.DelayForAttempt(attempts)
// and left QUEUED; otherwise it is marked FAILED terminally.
func (q *Queue) Fail(ctx context.Context, id string, failureErr error) error {
	const selectStmt = `SELECT attempts, max_attempts FROM jobs WHERE id = $1`
	var attempts, maxAttempts int
	if err := q.pool.QueryRow(ctx, selectStmt, id).Scan(&attempts, &maxAttempts); err != nil {
		return fmt.Errorf("load job %s for failure: %w", id, err)
	}

	errMsg := failureErr.Error()
	if retry.ShouldRetry(attempts, maxAttempts, errMsg) {
		nextRetry := time.Now().UTC().Add(retry.DelayForAttempt(attempts))
		const stmt = `UPDATE jobs SET status = 'QUEUED', last_error = $2, next_retry_at = $3, started_at = NULL, finished_at = NULL WHERE id = $1`
		_, err := q.pool.Exec(ctx, stmt, id, errMsg, nextRetry)
		if err != nil {
			return fmt.Errorf("reschedule job %s: %w", id, err)
		}
		return nil
	}

	const stmt = `UPDATE jobs SET status = 'FAILED', last_error = $2, finished_at = $3 WHERE id = $1`
	_, err := q.pool.Exec(ctx, stmt, id, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

// ManualRetry resets a FAILED or CANCELED job back to QUEUED immediately,
// clearing its attempt count and backoff so it runs on the next claim cycle.
func (q *Queue) ManualRetry(ctx context.Context, id string) error {
	const stmt = `
		UPDATE jobs SET status = 'QUEUED', attempts = 0, next_retry_at = NULL,
		       last_error = '', started_at = NULL, finished_at = NULL
		WHERE id = $1 AND status IN ('FAILED', 'CANCELED')`
	tag, err := q.pool.Exec(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("manual retry job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflictf("job %s is not failed or canceled", id)
	}
	return nil
}

// RetryStats summarizes retry activity across the queue, used by the
// dashboard's retry health panel.
type RetryStats struct {
	PendingRetry          int64
	TotalRetried          int64
	FailedAfterMaxRetries int64
}

// RetryStats reports pending-retry, total-retried, and exhausted-retry job
// counts.
func (q *Queue) RetryStats(ctx context.Context) (RetryStats, error) {
	const query = `
		SELECT
			count(*) FILTER (WHERE status = 'QUEUED' AND next_retry_at IS NOT NULL) AS pending_retry,
			count(*) FILTER (WHERE attempts > 1) AS total_retried,
			count(*) FILTER (WHERE status = 'FAILED' AND attempts >= max_attempts) AS failed_after_max_retries
		FROM jobs`
	var stats RetryStats
	err := q.pool.QueryRow(ctx, query).Scan(&stats.PendingRetry, &stats.TotalRetried, &stats.FailedAfterMaxRetries)
	if err != nil {
		return RetryStats{}, fmt.Errorf("query retry stats: %w", err)
	}
	return stats, nil
}

// Cancel marks a QUEUED or RUNNING job CANCELED. A running worker observes
// the new status at its next cancellation poll and returns promptly.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	const stmt = `UPDATE jobs SET status = 'CANCELED', finished_at = $2 WHERE id = $1 AND status IN ('QUEUED', 'RUNNING')`
	tag, err := q.pool.Exec(ctx, stmt, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflictf("job %s is not queued or running", id)
	}
	return nil
}

// RequeueStale resets any job left RUNNING for longer than staleAfter back
// to QUEUED, recovering from a crashed worker that never reported failure.
func (q *Queue) RequeueStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	const stmt = `
		UPDATE jobs SET status = 'QUEUED', started_at = NULL
		WHERE status = 'RUNNING' AND started_at < $1`
	tag, err := q.pool.Exec(ctx, stmt, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetJob returns a single job by ID.
func (q *Queue) GetJob(ctx context.Context, id string) (models.Job, error) {
	const query = `
		SELECT id, kind, status, priority, design_id, channel_id, payload, result,
		       progress_cur, progress_tot, attempts, max_attempts, next_retry_at,
		       last_error, display_name, created_at, started_at, finished_at
		FROM jobs WHERE id = $1`
	job, err := scanJob(q.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Job{}, apperr.NotFoundf("job %s not found", id)
		}
		return models.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// QueueDepth returns the number of QUEUED jobs per kind, used by metrics and
// the activity dashboard.
func (q *Queue) QueueDepth(ctx context.Context) (map[models.JobKind]int64, error) {
	const query = `SELECT kind, count(*) FROM jobs WHERE status = 'QUEUED' GROUP BY kind`
	rows, err := q.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query queue depth: %w", err)
	}
	defer rows.Close()

	depth := make(map[models.JobKind]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan queue depth row: %w", err)
		}
		depth[models.JobKind(kind)] = count
	}
	return depth, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row pgx.Row) (models.Job, error) {
	return scanJobRows(row)
}

func scanJobRows(row rowScanner) (models.Job, error) {
	var job models.Job
	var kind, status string
	err := row.Scan(
		&job.ID, &kind, &status, &job.Priority, &job.DesignID, &job.ChannelID,
		&job.Payload, &job.Result, &job.ProgressCur, &job.ProgressTot,
		&job.Attempts, &job.MaxAttempts, &job.NextRetryAt, &job.LastError,
		&job.DisplayName, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		return models.Job{}, err
	}
	job.Kind = models.JobKind(kind)
	job.Status = models.JobStatus(status)
	return job, nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx)
}
