package jobqueue

import (
	"context"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/pkg/logger"
)

// SlaChecker is the subset of slaengine.Engine the check_sla_breaches
// handler depends on.
type SlaChecker interface {
	CheckBreaches(ctx context.Context) error
}

// AvailabilityChecker is the subset of availability.Engine the
// check_availability handler depends on.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context) error
}

// RegisterCoreHandlers wires the recurring job types spec.md §4.9 names
// against the engines that own their work, plus no-op cleanup handlers
// for the session/rate-limiter/OIDC state sweeps — those subsystems sit
// behind the HTTP/authn layer this module does not own (spec.md §1
// Non-goals), so the handlers here only keep the recurring schedule
// alive, matching the shape a future authn-layer integration would fill
// in without touching the worker loop itself.
func RegisterCoreHandlers(w *Worker, sla SlaChecker, avail AvailabilityChecker, log *logger.Logger) {
	if log == nil {
		log = logger.NewDefault("jobqueue")
	}

	w.RegisterRecurring(domain.JobTypeCheckSlaBreaches, 60*time.Second, func(ctx context.Context, job *domain.Job) error {
		return sla.CheckBreaches(ctx)
	})
	w.RegisterRecurring(domain.JobTypeCheckAvailability, 30*time.Second, func(ctx context.Context, job *domain.Job) error {
		return avail.CheckAvailability(ctx)
	})

	noop := func(name string, interval time.Duration) {
		w.RegisterRecurring(name, interval, func(ctx context.Context, job *domain.Job) error {
			log.WithField("job_type", name).Debug("cleanup sweep has no target in this module, rescheduling only")
			return nil
		})
	}
	noop(domain.JobTypeCleanupSessions, time.Hour)
	noop(domain.JobTypeCleanupRateLimiter, 15*time.Minute)
	noop(domain.JobTypeCleanupOidcStates, 10*time.Minute)
}
