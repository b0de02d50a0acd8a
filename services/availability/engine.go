// Package availability implements the agent presence state machine and
// its sweep job (spec.md §4.8, component L9).
package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
	"github.com/oxidesk/deskcore/pkg/logger"
)

func newID() string { return uuid.NewString() }

// Config is the subset of spec.md §6.3 the availability engine reads.
type Config struct {
	InactivityTimeout time.Duration // default 300s
	MaxIdleThreshold  time.Duration // default 1800s
}

func DefaultConfig() Config {
	return Config{InactivityTimeout: 300 * time.Second, MaxIdleThreshold: 1800 * time.Second}
}

// Unassigner is the §4.7 back-reference the AwayAndReassigning
// transition invokes (a self-referential engine import would make
// services/assignment and services/availability depend on each other;
// this interface breaks the cycle the same way actionexecutor.SlaApplier
// does for the SLA engine).
type Unassigner interface {
	AutoUnassignOnAway(ctx context.Context, userID string) error
}

// Engine drives the agent availability state machine.
type Engine struct {
	Agents ports.AgentRepository
	Bus    ports.EventBus
	Time   ports.TimeService
	Config Config

	unassigner Unassigner
	log        *logger.Logger
}

func New(agents ports.AgentRepository, bus ports.EventBus, clock ports.TimeService, cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("availability")
	}
	return &Engine{Agents: agents, Bus: bus, Time: clock, Config: cfg, log: log}
}

// SetUnassigner wires the assignment engine in after construction.
func (e *Engine) SetUnassigner(u Unassigner) { e.unassigner = u }

// HandleLogin sets Online, stamps last_login_at and last_activity_at,
// and emits both AgentLoggedIn and AgentAvailabilityChanged (spec.md
// §4.8 step 4).
func (e *Engine) HandleLogin(ctx context.Context, userID string) error {
	now := e.Time.Now()
	if err := e.Agents.UpdateLastLogin(ctx, userID, now); err != nil {
		return err
	}
	if err := e.Agents.UpdateActivity(ctx, userID, now); err != nil {
		return err
	}
	return e.transition(ctx, userID, domain.AvailabilityOnline, domain.ReasonLogin, now, events.AgentLoggedIn)
}

// HandleLogout sets Offline and emits both AgentLoggedOut and
// AgentAvailabilityChanged.
func (e *Engine) HandleLogout(ctx context.Context, userID string) error {
	return e.transition(ctx, userID, domain.AvailabilityOffline, domain.ReasonLogout, e.Time.Now(), events.AgentLoggedOut)
}

// SetManual applies a user-initiated availability change. Only
// {Online, Away, AwayManual} are valid manual targets;
// AwayAndReassigning is system-only (spec.md §4.8 step 3).
func (e *Engine) SetManual(ctx context.Context, userID string, status domain.AvailabilityStatus) error {
	switch status {
	case domain.AvailabilityOnline, domain.AvailabilityAway, domain.AvailabilityAwayManual:
	default:
		return svcerrors.NewBadRequest("manual availability change cannot target %s", status)
	}
	return e.transition(ctx, userID, status, domain.ReasonManual, e.Time.Now(), "")
}

func (e *Engine) transition(ctx context.Context, userID string, status domain.AvailabilityStatus, reason domain.AvailabilityChangeReason, at time.Time, specificEvent events.EventType) error {
	agent, err := e.Agents.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	old := agent.Status
	if err := e.Agents.UpdateAvailability(ctx, userID, status, reason, at); err != nil {
		return err
	}
	if err := e.Agents.AppendActivityLog(ctx, &domain.AgentActivityLog{
		ID:        newID(),
		UserID:    userID,
		EventType: "availability_changed",
		OldStatus: old,
		NewStatus: status,
		Metadata:  map[string]any{"reason": string(reason)},
		CreatedAt: at,
	}); err != nil {
		e.log.WithField("user_id", userID).WithField("error", err).Warn("failed to append activity log")
	}

	if specificEvent != "" {
		e.publish(events.New(specificEvent, "", userID, at))
	}
	e.publish(events.New(events.AgentAvailabilityChanged, "", userID, at).
		WithData("status", string(status)).WithData("reason", string(reason)))
	return nil
}

// CheckAvailability is the check_availability sweep (spec.md §4.8,
// every 30s): Online agents idle past InactivityTimeout move to Away;
// Away/AwayManual agents idle past MaxIdleThreshold move to
// AwayAndReassigning, trigger auto-unassign, and land on Offline.
func (e *Engine) CheckAvailability(ctx context.Context) error {
	now := e.Time.Now()

	inactive, err := e.Agents.GetInactiveOnline(ctx, now.Add(-e.Config.InactivityTimeout))
	if err != nil {
		return err
	}
	for _, a := range inactive {
		if err := e.transition(ctx, a.UserID, domain.AvailabilityAway, domain.ReasonInactivityTimeout, now, ""); err != nil {
			e.log.WithField("user_id", a.UserID).WithField("error", err).Warn("failed to transition agent to away")
		}
	}

	idle, err := e.Agents.GetIdleAway(ctx, now.Add(-e.Config.MaxIdleThreshold))
	if err != nil {
		return err
	}
	for _, a := range idle {
		if err := e.transition(ctx, a.UserID, domain.AvailabilityAwayAndReassigning, domain.ReasonMaxIdleThreshold, now, ""); err != nil {
			e.log.WithField("user_id", a.UserID).WithField("error", err).Warn("failed to transition agent to away-and-reassigning")
			continue
		}
		if e.unassigner != nil {
			if err := e.unassigner.AutoUnassignOnAway(ctx, a.UserID); err != nil {
				e.log.WithField("user_id", a.UserID).WithField("error", err).Warn("auto-unassign-on-away failed")
			}
		}
	}
	return nil
}

func (e *Engine) publish(evt events.SystemEvent) {
	if err := e.Bus.Publish(evt); err != nil && err != events.ErrNoSubscribers {
		e.log.WithField("event_type", evt.Type).WithField("error", err).Debug("event publish failed")
	}
}
