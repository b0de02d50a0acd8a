package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Jobs is an in-memory ports.TaskQueue. FetchNextJob is the one method
// that must be atomic under concurrent workers; the mutex covers it.
type Jobs struct {
	mu   sync.Mutex
	byID map[string]*domain.Job
}

func NewJobs() *Jobs {
	return &Jobs{byID: map[string]*domain.Job{}}
}

func (q *Jobs) Enqueue(ctx context.Context, job *domain.Job) error {
	return q.EnqueueAt(ctx, job, time.Now())
}

func (q *Jobs) EnqueueAt(ctx context.Context, job *domain.Job, runAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.RunAt = runAt
	job.State = domain.JobQueued
	cp := *job
	q.byID[job.ID] = &cp
	return nil
}

// FetchNextJob claims the oldest due, queued job by flipping it to
// Running under the store's lock, so two workers polling concurrently
// never claim the same row (spec.md §4.9 "atomic fetch-and-claim").
func (q *Jobs) FetchNextJob(ctx context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var best *domain.Job
	for _, j := range q.byID {
		if j.State != domain.JobQueued || j.RunAt.After(now) {
			continue
		}
		if best == nil || j.RunAt.Before(best.RunAt) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = domain.JobRunning
	cp := *best
	return &cp, nil
}

func (q *Jobs) CompleteJob(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.byID[jobID]
	if !ok {
		return svcerrors.NewNotFound("job", jobID)
	}
	j.State = domain.JobDone
	j.UpdatedAt = time.Now()
	return nil
}

// backoffBase and backoffMax bound the exponential backoff fail_job
// applies between retries (spec.md §4.9 step 3); the schedule doubles
// per attempt starting at backoffBase, capped at backoffMax.
const (
	backoffBase = 30 * time.Second
	backoffMax  = time.Hour
)

func (q *Jobs) FailJob(ctx context.Context, jobID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.byID[jobID]
	if !ok {
		return svcerrors.NewNotFound("job", jobID)
	}
	now := time.Now()
	j.UpdatedAt = now
	if j.RetriesRemaining > 0 {
		attempt := j.MaxRetries - j.RetriesRemaining
		j.RetriesRemaining--
		j.State = domain.JobQueued
		j.RunAt = now.Add(backoffDelay(attempt))
		return nil
	}
	j.State = domain.JobFailed
	return nil
}

func backoffDelay(attempt int) time.Duration {
	d := backoffBase << attempt
	if d <= 0 || d > backoffMax {
		return backoffMax
	}
	return d
}

var _ ports.TaskQueue = (*Jobs)(nil)
