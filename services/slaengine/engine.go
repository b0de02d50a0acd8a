// Package slaengine computes SLA deadlines and tracks the first-response,
// next-response, and resolution clocks against them (spec.md §4.6,
// component L7).
package slaengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
	"github.com/oxidesk/deskcore/pkg/logger"
)

// businessSearchBound is how far forward the business-hours deadline
// walk is allowed to search before giving up (spec.md §4.6 step 3).
const businessSearchBound = 14 * 24 * time.Hour

// Engine applies SLA policies and keeps their events up to date.
type Engine struct {
	Sla           ports.SlaRepository
	Conversations ports.ConversationRepository
	Teams         ports.TeamRepository
	Bus           ports.EventBus
	Time          ports.TimeService

	log *logger.Logger
}

func New(sla ports.SlaRepository, conv ports.ConversationRepository, teams ports.TeamRepository, bus ports.EventBus, clock ports.TimeService, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("slaengine")
	}
	return &Engine{Sla: sla, Conversations: conv, Teams: teams, Bus: bus, Time: clock, log: log}
}

// Apply runs apply_sla (spec.md §4.6 steps 1-5): conversation and policy
// must exist, at most one applied SLA per conversation, deadlines
// computed in business time when the conversation's team has a
// schedule, wall-clock otherwise.
func (e *Engine) Apply(ctx context.Context, conversationID, policyID string, baseTS time.Time) (*domain.AppliedSla, error) {
	conv, err := e.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	policy, err := e.Sla.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if existing, err := e.Sla.GetApplied(ctx, conversationID); err == nil && existing != nil {
		return nil, svcerrors.NewBadRequest("conversation %s already has an applied SLA", conversationID)
	}

	frDeadline, err := e.deadline(ctx, conv, baseTS, policy.FirstResponseTime)
	if err != nil {
		return nil, err
	}
	resDeadline, err := e.deadline(ctx, conv, baseTS, policy.ResolutionTime)
	if err != nil {
		return nil, err
	}

	applied := &domain.AppliedSla{
		ID:                    uuid.NewString(),
		ConversationID:        conversationID,
		SlaPolicyID:           policyID,
		Status:                domain.SlaPending,
		FirstResponseDeadline: frDeadline,
		ResolutionDeadline:    resDeadline,
		AppliedAt:             e.Time.Now(),
	}
	if err := e.Sla.CreateApplied(ctx, applied); err != nil {
		return nil, err
	}

	for _, ev := range []domain.SlaEvent{
		{ID: uuid.NewString(), AppliedSlaID: applied.ID, EventType: domain.SlaEventFirstResponse, Status: domain.SlaPending, DeadlineAt: frDeadline},
		{ID: uuid.NewString(), AppliedSlaID: applied.ID, EventType: domain.SlaEventResolution, Status: domain.SlaPending, DeadlineAt: resDeadline},
	} {
		ev := ev
		if err := e.Sla.CreateEvent(ctx, &ev); err != nil {
			return nil, err
		}
	}

	return applied, nil
}

// ApplyForTeam satisfies actionexecutor.SlaApplier: AssignToTeam triggers
// auto-apply with the team's default policy, base_ts = now (spec.md §4.6
// "auto-apply triggers", the assignment-listener branch of the Open
// Question this repo resolves — see DESIGN.md).
func (e *Engine) ApplyForTeam(ctx context.Context, conversationID, teamID string, now time.Time) error {
	if _, err := e.Sla.GetApplied(ctx, conversationID); err == nil {
		return nil
	}
	team, err := e.Teams.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team.DefaultSlaPolicyID == nil {
		return nil
	}
	_, err = e.Apply(ctx, conversationID, *team.DefaultSlaPolicyID, now)
	return err
}

// ApplyForCreated is the creation-path counterpart of ApplyForTeam: same
// trigger, base_ts = conversation.created_at (spec.md §4.6, the other
// branch of the Open Question).
func (e *Engine) ApplyForCreated(ctx context.Context, conversationID, teamID string, createdAt time.Time) error {
	return e.ApplyForTeam(ctx, conversationID, teamID, createdAt)
}

// deadline computes base+duration, walking business time when the
// conversation's team has a schedule (step 3), or plain wall-clock
// otherwise (step 4).
func (e *Engine) deadline(ctx context.Context, conv *domain.Conversation, base time.Time, d time.Duration) (time.Time, error) {
	if conv.AssignedTeamID == nil {
		return base.Add(d), nil
	}
	team, err := e.Teams.GetByID(ctx, *conv.AssignedTeamID)
	if err != nil {
		return time.Time{}, err
	}
	if team.BusinessHours == nil {
		return base.Add(d), nil
	}
	return businessDeadline(team.BusinessHours, base, d)
}

// businessDeadline walks forward one minute at a time, counting only
// minutes that fall within the schedule, until d has been consumed or
// the search bound is exceeded (spec.md §4.6 step 3).
func businessDeadline(bh *domain.BusinessHours, base time.Time, d time.Duration) (time.Time, error) {
	loc, err := time.LoadLocation(bh.Timezone)
	if err != nil {
		return time.Time{}, svcerrors.NewInternal(fmt.Sprintf("invalid business hours timezone %q", bh.Timezone), err)
	}
	remaining := d.Round(time.Minute)
	if remaining <= 0 {
		remaining = time.Minute
	}
	cursor := base.In(loc)
	bound := base.Add(businessSearchBound)
	for remaining > 0 {
		cursor = cursor.Add(time.Minute)
		if cursor.After(bound) {
			return time.Time{}, svcerrors.NewInternal(fmt.Sprintf("business-hours deadline search exceeded %s bound", businessSearchBound), nil)
		}
		if bh.OpenAt(cursor) {
			remaining -= time.Minute
		}
	}
	return cursor, nil
}

// OnAgentMessage marks pending FirstResponse and NextResponse events Met
// (best-effort; missing events are skipped, spec.md §4.6 event coupling).
func (e *Engine) OnAgentMessage(ctx context.Context, conversationID string, at time.Time) error {
	applied, err := e.Sla.GetApplied(ctx, conversationID)
	if err != nil {
		return nil
	}
	pending, err := e.Sla.GetEvents(ctx, applied.ID)
	if err != nil {
		return err
	}
	for _, ev := range pending {
		if ev.Status != domain.SlaPending {
			continue
		}
		if ev.EventType != domain.SlaEventFirstResponse && ev.EventType != domain.SlaEventNextResponse {
			continue
		}
		if err := e.markMet(ctx, applied, &ev, at); err != nil {
			e.log.WithField("event_id", ev.ID).WithField("error", err).Warn("failed to mark sla event met")
		}
	}
	return nil
}

// OnContactMessage creates a new NextResponse event due at msg_ts +
// next_response_time (spec.md §4.6). Requires an applied SLA.
func (e *Engine) OnContactMessage(ctx context.Context, conversationID string, msgTS time.Time) error {
	applied, err := e.Sla.GetApplied(ctx, conversationID)
	if err != nil {
		return svcerrors.NewBadRequest("conversation %s has no applied SLA", conversationID)
	}
	policy, err := e.Sla.GetPolicy(ctx, applied.SlaPolicyID)
	if err != nil {
		return err
	}
	ev := domain.SlaEvent{
		ID:           uuid.NewString(),
		AppliedSlaID: applied.ID,
		EventType:    domain.SlaEventNextResponse,
		Status:       domain.SlaPending,
		DeadlineAt:   msgTS.Add(policy.NextResponseTime),
	}
	return e.Sla.CreateEvent(ctx, &ev)
}

// OnResolved marks the pending Resolution event Met (spec.md §4.6).
func (e *Engine) OnResolved(ctx context.Context, conversationID string, at time.Time) error {
	applied, err := e.Sla.GetApplied(ctx, conversationID)
	if err != nil {
		return nil
	}
	evs, err := e.Sla.GetEvents(ctx, applied.ID)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		if ev.Status == domain.SlaPending && ev.EventType == domain.SlaEventResolution {
			return e.markMet(ctx, applied, &ev, at)
		}
	}
	return nil
}

func (e *Engine) markMet(ctx context.Context, applied *domain.AppliedSla, ev *domain.SlaEvent, at time.Time) error {
	if err := e.Sla.MarkEventMet(ctx, ev.ID, at); err != nil {
		return err
	}
	return e.recomputeAggregate(ctx, applied.ID, applied.ConversationID)
}

// CheckBreaches is the check_sla_breaches sweep (spec.md §4.9, every
// 60s): every Pending event past its deadline becomes Breached, stamped
// with the promised deadline_at rather than now.
func (e *Engine) CheckBreaches(ctx context.Context) error {
	now := e.Time.Now()
	pending, err := e.Sla.GetPendingEventsPastDeadline(ctx, now)
	if err != nil {
		return err
	}
	for _, ev := range pending {
		if err := e.Sla.MarkEventBreached(ctx, ev.ID, ev.DeadlineAt); err != nil {
			e.log.WithField("event_id", ev.ID).WithField("error", err).Warn("failed to mark sla event breached")
			continue
		}
		applied, err := e.Sla.GetAppliedByID(ctx, ev.AppliedSlaID)
		if err != nil {
			e.log.WithField("applied_sla_id", ev.AppliedSlaID).WithField("error", err).Warn("failed to load applied sla for breached event")
			continue
		}
		if err := e.recomputeAggregate(ctx, applied.ID, applied.ConversationID); err != nil {
			e.log.WithField("applied_sla_id", applied.ID).WithField("error", err).Warn("failed to recompute sla aggregate")
		}
		e.publish(events.New(events.SlaBreachedEvent, applied.ConversationID, "", now).WithData("sla_event_id", ev.ID).WithData("event_type", string(ev.EventType)))
	}
	return nil
}

// recomputeAggregate implements worst-outcome aggregation (spec.md §4.6):
// Breached if any child is Breached, else Pending if any child is
// Pending, else Met.
func (e *Engine) recomputeAggregate(ctx context.Context, appliedSlaID, conversationID string) error {
	evs, err := e.Sla.GetEvents(ctx, appliedSlaID)
	if err != nil {
		return err
	}
	status := domain.SlaMet
	for _, ev := range evs {
		switch ev.Status {
		case domain.SlaBreached:
			status = domain.SlaBreached
		case domain.SlaPending:
			if status != domain.SlaBreached {
				status = domain.SlaPending
			}
		}
	}
	return e.Sla.UpdateAppliedStatus(ctx, appliedSlaID, status)
}

func (e *Engine) publish(evt events.SystemEvent) {
	if err := e.Bus.Publish(evt); err != nil && err != events.ErrNoSubscribers {
		e.log.WithField("event_type", evt.Type).WithField("error", err).Debug("event publish failed")
	}
}
