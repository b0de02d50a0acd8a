package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// backoffBase and backoffMax bound the exponential backoff FailJob
// applies between retries (spec.md §4.9 step 3), mirroring
// memstore.Jobs' schedule so both implementations agree behaviorally.
const (
	backoffBase = 30 * time.Second
	backoffMax  = time.Hour
)

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d <= 0 || d > backoffMax {
		return backoffMax
	}
	return d
}

// Jobs is a ports.TaskQueue over the `jobs` table.
type Jobs struct {
	db *DB
}

func NewJobs(db *DB) *Jobs {
	return &Jobs{db: db}
}

func (q *Jobs) Enqueue(ctx context.Context, job *domain.Job) error {
	return q.EnqueueAt(ctx, job, time.Now())
}

func (q *Jobs) EnqueueAt(ctx context.Context, job *domain.Job, runAt time.Time) error {
	job.RunAt = runAt
	job.State = domain.JobQueued
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, payload, run_at, retries_remaining, max_retries, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, job.ID, job.JobType, []byte(job.Payload), job.RunAt, job.RetriesRemaining, job.MaxRetries, job.State)
	return err
}

// FetchNextJob claims the oldest due, queued job with
// SELECT ... FOR UPDATE SKIP LOCKED inside a transaction so two workers
// polling concurrently never claim the same row (spec.md §4.9 "atomic
// fetch-and-claim") without blocking on each other's claim.
func (q *Jobs) FetchNextJob(ctx context.Context) (*domain.Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var job domain.Job
	var payload []byte
	err = tx.QueryRowContext(ctx, `
		SELECT id, job_type, payload, run_at, retries_remaining, max_retries, state, created_at, updated_at
		FROM jobs
		WHERE state = $1 AND run_at <= now()
		ORDER BY run_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, domain.JobQueued).Scan(&job.ID, &job.JobType, &payload, &job.RunAt, &job.RetriesRemaining,
		&job.MaxRetries, &job.State, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.Payload = payload

	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET state = $1, updated_at = now() WHERE id = $2`, domain.JobRunning, job.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	job.State = domain.JobRunning
	return &job, nil
}

func (q *Jobs) CompleteJob(ctx context.Context, jobID string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE jobs SET state = $1, updated_at = now() WHERE id = $2`, domain.JobDone, jobID)
	return checkUpdatedExists(res, err, "job", jobID)
}

func (q *Jobs) FailJob(ctx context.Context, jobID string, cause error) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var retriesRemaining, maxRetries int
	if err := tx.QueryRowContext(ctx, `SELECT retries_remaining, max_retries FROM jobs WHERE id = $1 FOR UPDATE`, jobID).
		Scan(&retriesRemaining, &maxRetries); errors.Is(err, sql.ErrNoRows) {
		return svcerrors.NewNotFound("job", jobID)
	} else if err != nil {
		return err
	}

	if retriesRemaining > 0 {
		attempt := maxRetries - retriesRemaining
		runAt := time.Now().Add(backoffDelay(attempt))
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET state = $1, retries_remaining = retries_remaining - 1, run_at = $2, updated_at = now()
			WHERE id = $3
		`, domain.JobQueued, runAt, jobID); err != nil {
			return err
		}
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET state = $1, updated_at = now() WHERE id = $2`, domain.JobFailed, jobID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var _ ports.TaskQueue = (*Jobs)(nil)
