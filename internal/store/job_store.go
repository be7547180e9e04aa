package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

var (
	// ErrJobNotFound is returned when a job is not found in the database
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotCancellable is returned when a job has already left the pending state
	ErrJobNotCancellable = errors.New("job cannot be cancelled (may be processing or already finished)")
	// ErrJobNotProcessing is returned when a settlement targets a job that is no longer claimed
	ErrJobNotProcessing = errors.New("job is not processing")
)

const jobColumns = `id, job_type, user_id, payload, status, priority, attempts, max_attempts,
		       created_at, updated_at, scheduled_for, last_error, retry_after,
		       processed_at, completed_at, worker_id, result`

// JobStore provides database operations for the generation queue
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new JobStore instance
func NewJobStore(db *sql.DB) (*JobStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &JobStore{db: db}, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID,
		&job.JobType,
		&job.UserID,
		&job.Payload,
		&job.Status,
		&job.Priority,
		&job.Attempts,
		&job.MaxAttempts,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ScheduledFor,
		&job.LastError,
		&job.RetryAfter,
		&job.ProcessedAt,
		&job.CompletedAt,
		&job.WorkerID,
		&job.Result,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Enqueue creates a new job in the queue
func (s *JobStore) Enqueue(ctx context.Context, job *models.Job) error {
	return enqueue(ctx, s.db, job)
}

// EnqueuePaid consumes cost credits from the job's owner and enqueues the job
// in the same transaction. ErrInsufficientCredits leaves nothing behind.
func (s *JobStore) EnqueuePaid(ctx context.Context, job *models.Job, cost int) error {
	if job.UserID == nil {
		return errors.New("enqueue paid job: user id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := consumeCredits(ctx, tx, *job.UserID, cost); err != nil {
		return err
	}
	if err := enqueue(ctx, tx, job); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue tx: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func enqueue(ctx context.Context, db queryRower, job *models.Job) error {
	if err := job.IsValid(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	query := `
		INSERT INTO jobs (job_type, user_id, payload, status, priority, max_attempts, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, status, created_at, updated_at
	`

	status := models.JobStatusPending
	if job.Status != "" {
		status = job.Status
	}

	err := db.QueryRowContext(
		ctx,
		query,
		job.JobType,
		job.UserID,
		job.Payload,
		status,
		job.Priority,
		job.MaxAttempts,
		job.ScheduledFor,
	).Scan(&job.ID, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its ID
func (s *JobStore) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return job, nil
}

// GetForUser retrieves a job owned by userID. Jobs of other users are
// reported as not found.
func (s *JobStore) GetForUser(ctx context.Context, id, userID int64) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job for user: %w", err)
	}
	return job, nil
}

// ClaimNextJob atomically claims the next available job for processing
func (s *JobStore) ClaimNextJob(ctx context.Context, workerID string) (*models.Job, error) {
	query := `
		UPDATE jobs
		SET status = 'processing',
		    worker_id = $1,
		    processed_at = NOW(),
		    updated_at = NOW(),
		    attempts = attempts + 1
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			  AND (scheduled_for IS NULL OR scheduled_for <= NOW())
			  AND (retry_after IS NULL OR retry_after <= NOW())
			ORDER BY
				CASE priority
					WHEN 'critical' THEN 4
					WHEN 'high' THEN 3
					WHEN 'normal' THEN 2
					WHEN 'low' THEN 1
				END DESC,
				created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, workerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No jobs available
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}

// MarkCompleted stores the webhook result and records the generation on the
// owner's usage counters in one transaction.
func (s *JobStore) MarkCompleted(ctx context.Context, job *models.Job, result models.JSONB) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    result = $2,
		    last_error = NULL,
		    completed_at = NOW(),
		    updated_at = NOW(),
		    worker_id = NULL
		WHERE id = $1 AND status = 'processing'
	`, job.ID, result)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrJobNotProcessing
	}

	if p, ok := photoshootPayload(job); ok {
		field, err := credits.ParseUsageField(p.Kind)
		if err != nil {
			field = credits.UsageImages
		}
		if err := recordGeneration(ctx, tx, p.UserID, field); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete tx: %w", err)
	}
	return nil
}

// MarkFailed marks a job as failed and refunds the credits it consumed.
func (s *JobStore) MarkFailed(ctx context.Context, job *models.Job, errorMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fail tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed',
		    last_error = $2,
		    updated_at = NOW(),
		    worker_id = NULL
		WHERE id = $1 AND status = 'processing'
	`, job.ID, errorMsg)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrJobNotProcessing
	}

	if p, ok := photoshootPayload(job); ok {
		if err := refundCredits(ctx, tx, p.UserID, p.Cost); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fail tx: %w", err)
	}
	return nil
}

// ScheduleRetry schedules a job for retry with exponential backoff
func (s *JobStore) ScheduleRetry(ctx context.Context, id int64, errorMsg string, retryAfter time.Time) error {
	query := `
		UPDATE jobs
		SET status = 'pending',
		    last_error = $2,
		    retry_after = $3,
		    updated_at = NOW(),
		    worker_id = NULL
		WHERE id = $1
	`

	_, err := s.db.ExecContext(ctx, query, id, errorMsg, retryAfter)
	if err != nil {
		return fmt.Errorf("schedule job retry: %w", err)
	}

	return nil
}

// CancelJob cancels a pending job and refunds its credits.
func (s *JobStore) CancelJob(ctx context.Context, id int64) (*models.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	job, err := scanJob(tx.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'cancelled',
		    updated_at = NOW(),
		    worker_id = NULL
		WHERE id = $1 AND status = 'pending'
		RETURNING `+jobColumns, id))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("cancel job: %w", err)
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("cancel job: %w", err)
		}
		if !exists {
			return nil, ErrJobNotFound
		}
		return nil, ErrJobNotCancellable
	}

	if p, ok := photoshootPayload(job); ok {
		if err := refundCredits(ctx, tx, p.UserID, p.Cost); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}
	return job, nil
}

// ReleaseJob releases a processing job back to pending (for graceful shutdown)
func (s *JobStore) ReleaseJob(ctx context.Context, id int64) error {
	query := `
		UPDATE jobs
		SET status = 'pending',
		    worker_id = NULL,
		    attempts = GREATEST(attempts - 1, 0),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}

	return nil
}

// GetStats returns statistics about the job queue
func (s *JobStore) GetStats(ctx context.Context) (*models.JobStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'processing') as processing,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'cancelled') as cancelled,
			COUNT(*) as total
		FROM jobs
	`

	stats := &models.JobStats{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Completed,
		&stats.Failed,
		&stats.Cancelled,
		&stats.Total,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}

	return stats, nil
}

// ListProcessingJobs returns all jobs currently being processed
func (s *JobStore) ListProcessingJobs(ctx context.Context) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'processing'
		ORDER BY processed_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list processing jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListPendingJobs returns pending jobs ordered by priority and creation time
func (s *JobStore) ListPendingJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'pending'
		  AND (scheduled_for IS NULL OR scheduled_for <= NOW())
		  AND (retry_after IS NULL OR retry_after <= NOW())
		ORDER BY
			CASE priority
				WHEN 'critical' THEN 4
				WHEN 'high' THEN 3
				WHEN 'normal' THEN 2
				WHEN 'low' THEN 1
			END DESC,
			created_at ASC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	jobs := []*models.Job{}

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, nil
}

// CleanupOldJobs removes completed/failed jobs older than the specified duration
func (s *JobStore) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < NOW() - INTERVAL '1 second' * $1
	`

	result, err := s.db.ExecContext(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}

func photoshootPayload(job *models.Job) (models.PhotoshootPayload, bool) {
	if job.JobType != models.JobTypePhotoshoot {
		return models.PhotoshootPayload{}, false
	}
	p, err := models.PhotoshootPayloadFromJSONB(job.Payload)
	if err != nil {
		log.Printf("[jobs] job %d: unreadable payload: %v", job.ID, err)
		return p, false
	}
	return p, true
}
