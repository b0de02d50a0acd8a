// Package jobqueue implements the durable background job worker (spec.md
// §4.9, component L10): an atomic fetch-and-claim poll loop dispatching
// to in-process handlers, grounded on the teacher's
// infrastructure/service.BaseService ticker-worker pattern (poll, dispatch,
// sleep, repeat) but built against ports.TaskQueue instead of a
// time.Ticker, since the poll interval itself varies with outcome (spec.md
// §4.9 step 4).
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	"github.com/oxidesk/deskcore/pkg/logger"
)

const (
	idlePollInterval  = time.Second
	errorPollInterval = 5 * time.Second
)

// Handler processes one claimed job. A returned error fails the job
// (spec.md §4.9 step 3); handlers must be idempotent since exactly-once
// execution is not guaranteed.
type Handler func(ctx context.Context, job *domain.Job) error

// Recorder observes dispatch outcomes. Satisfied by *metrics.Metrics;
// left nil by default so tests don't need a Prometheus registry.
type Recorder interface {
	RecordJob(jobType, status string, d time.Duration)
}

// Worker runs the fetch/dispatch/sleep loop against a TaskQueue.
type Worker struct {
	Queue    ports.TaskQueue
	Time     ports.TimeService
	Handlers map[string]Handler

	log      *logger.Logger
	recorder Recorder
}

func New(queue ports.TaskQueue, clock ports.TimeService, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault("jobqueue")
	}
	return &Worker{Queue: queue, Time: clock, Handlers: map[string]Handler{}, log: log}
}

// SetMetrics wires a Recorder in after construction, the same
// post-construction setter shape actionexecutor.SetSlaApplier and
// availability.SetUnassigner use to keep construction a DAG.
func (w *Worker) SetMetrics(r Recorder) { w.recorder = r }

// Register installs the handler for jobType, overwriting any prior one.
func (w *Worker) Register(jobType string, h Handler) {
	w.Handlers[jobType] = h
}

// RegisterRecurring wraps h so that a successful run self-reschedules a
// fresh job of the same type after interval (spec.md §4.9 "Recurring
// jobs self-reschedule at the end of their handler").
func (w *Worker) RegisterRecurring(jobType string, interval time.Duration, h Handler) {
	w.Handlers[jobType] = func(ctx context.Context, job *domain.Job) error {
		if err := h(ctx, job); err != nil {
			return err
		}
		next := &domain.Job{
			ID:               uuid.NewString(),
			JobType:          jobType,
			Payload:          job.Payload,
			MaxRetries:       job.MaxRetries,
			RetriesRemaining: job.MaxRetries,
		}
		return w.Queue.EnqueueAt(ctx, next, w.Time.Now().Add(interval))
	}
}

// Run executes the poll loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.Queue.FetchNextJob(ctx)
		if err != nil {
			w.log.WithField("error", err).Warn("fetch_next_job failed")
			if err := w.Time.Sleep(ctx, errorPollInterval); err != nil {
				return err
			}
			continue
		}
		if job == nil {
			if err := w.Time.Sleep(ctx, idlePollInterval); err != nil {
				return err
			}
			continue
		}

		if err := w.dispatch(ctx, job); err != nil {
			w.log.WithField("job_id", job.ID).WithField("job_type", job.JobType).WithField("error", err).Warn("job dispatch failed")
			if err := w.Time.Sleep(ctx, errorPollInterval); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job *domain.Job) error {
	h, ok := w.Handlers[job.JobType]
	if !ok {
		handlerErr := fmt.Errorf("no handler registered for job type %q", job.JobType)
		if err := w.Queue.FailJob(ctx, job.ID, handlerErr); err != nil {
			return err
		}
		w.record(job.JobType, "no_handler", 0)
		return handlerErr
	}

	start := w.Time.Now()
	if err := h(ctx, job); err != nil {
		w.record(job.JobType, "failed", w.Time.Now().Sub(start))
		if failErr := w.Queue.FailJob(ctx, job.ID, err); failErr != nil {
			return failErr
		}
		return err
	}
	w.record(job.JobType, "completed", w.Time.Now().Sub(start))
	return w.Queue.CompleteJob(ctx, job.ID)
}

func (w *Worker) record(jobType, status string, d time.Duration) {
	if w.recorder != nil {
		w.recorder.RecordJob(jobType, status, d)
	}
}
