// Package scheduler implements the recurring-job seeder (SPEC_FULL.md
// §4.13): a thin robfig/cron process that enqueues the first run of
// each recurring job type spec.md §4.9 names. It never does the job's
// own work — that lives in the worker's dispatch table
// (services/jobqueue) — so a scheduler restart only re-enqueues, it
// never double-runs a job body.
package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	"github.com/oxidesk/deskcore/pkg/logger"
)

// seedSpec pairs a recurring job type with the cron expression that
// primes it and the retry budget new rows start with.
type seedSpec struct {
	jobType    string
	expression string
	maxRetries int
}

// defaultSeeds mirrors the cadence jobqueue.RegisterCoreHandlers
// reschedules at after each run (spec.md §4.9's intervals, expressed as
// cron schedules for the initial enqueue).
var defaultSeeds = []seedSpec{
	{domain.JobTypeCheckSlaBreaches, "@every 60s", 3},
	{domain.JobTypeCheckAvailability, "@every 30s", 3},
	{domain.JobTypeCleanupSessions, "@every 1h", 3},
	{domain.JobTypeCleanupRateLimiter, "@every 15m", 3},
	{domain.JobTypeCleanupOidcStates, "@every 10m", 3},
}

// Scheduler wraps a *cron.Cron whose only side effect is enqueuing jobs.
type Scheduler struct {
	cron  *cron.Cron
	Queue ports.TaskQueue
	Time  ports.TimeService
	seeds []seedSpec

	log *logger.Logger
}

func New(queue ports.TaskQueue, clock ports.TimeService, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		cron:  cron.New(),
		Queue: queue,
		Time:  clock,
		seeds: defaultSeeds,
		log:   log,
	}
}

// Start registers every seed job and starts the cron runner in the
// background. Each seed enqueues once, on its schedule's first tick;
// later runs come from the worker's self-rescheduling handlers. Call
// Stop to wait for any in-flight enqueue to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, seed := range s.seeds {
		seed := seed
		once := &sync.Once{}
		if _, err := s.cron.AddFunc(seed.expression, func() {
			once.Do(func() { s.enqueue(ctx, seed) })
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner, blocking until any running job finishes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enqueue(ctx context.Context, seed seedSpec) {
	job := &domain.Job{
		ID:               uuid.NewString(),
		JobType:          seed.jobType,
		MaxRetries:       seed.maxRetries,
		RetriesRemaining: seed.maxRetries,
	}
	if err := s.Queue.EnqueueAt(ctx, job, s.Time.Now()); err != nil {
		s.log.WithField("job_type", seed.jobType).WithField("error", err).Warn("scheduler enqueue failed")
	}
}
