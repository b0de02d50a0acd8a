// Package assignment implements the public conversation-assignment
// operations (spec.md §4.7, component L8): self-assign, assign to
// agent, assign to team, unassign, and the availability-driven
// auto-unassign batch.
package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
	"github.com/oxidesk/deskcore/infrastructure/resilience"
	"github.com/oxidesk/deskcore/pkg/logger"
)

const (
	permUpdateUserAssignee = "conversations:update_user_assignee"
	permUpdateTeamAssignee = "conversations:update_team_assignee"
)

// retryDelays is the assignment engine's optimistic-concurrency retry
// schedule (spec.md §4.7: "up to 3 attempts with delays [50,100,200]ms").
var retryDelays = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}

// Notifier fires the best-effort real-time push alongside the durable
// UserNotification row (spec.md §4.7 "Notifications"). Failure is
// logged at debug and never fails the operation.
type Notifier interface {
	Notify(ctx context.Context, userID string, notification domain.UserNotification) error
}

// Engine applies assignment operations.
type Engine struct {
	Conversations ports.ConversationRepository
	Teams         ports.TeamRepository
	Agents        ports.AgentRepository
	Permissions   ports.PermissionChecker
	History       ports.AssignmentHistoryRepository
	Notifications ports.UserNotificationRepository
	Bus           ports.EventBus
	Time          ports.TimeService
	Notifier      Notifier

	log *logger.Logger
}

func New(conv ports.ConversationRepository, teams ports.TeamRepository, agents ports.AgentRepository, perms ports.PermissionChecker, history ports.AssignmentHistoryRepository, notifications ports.UserNotificationRepository, bus ports.EventBus, clock ports.TimeService, notifier Notifier, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("assignment")
	}
	return &Engine{
		Conversations: conv,
		Teams:         teams,
		Agents:        agents,
		Permissions:   perms,
		History:       history,
		Notifications: notifications,
		Bus:           bus,
		Time:          clock,
		Notifier:      notifier,
		log:           log,
	}
}

func (e *Engine) requirePermission(ctx context.Context, actorID, permission string) error {
	ok, err := e.Permissions.HasPermission(ctx, actorID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return svcerrors.NewForbidden("missing permission " + permission)
	}
	return nil
}

// AssignToAgent assigns conversationID to userID on behalf of actorID
// (self_assign is the actorID == userID case; both gate on the same
// permission per spec.md §4.7).
func (e *Engine) AssignToAgent(ctx context.Context, conversationID, userID, actorID string) error {
	if err := e.requirePermission(ctx, actorID, permUpdateUserAssignee); err != nil {
		return err
	}
	if _, err := e.Agents.GetByID(ctx, userID); err != nil {
		return err
	}

	var assigned bool
	err := resilience.RetryFixedDelays(ctx, retryDelays, func() error {
		conv, err := e.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.AssignedUserID != nil && *conv.AssignedUserID == userID {
			assigned = false
			return nil
		}
		if err := e.Conversations.AssignToUser(ctx, conversationID, userID, actorID, conv.Version); err != nil {
			return err
		}
		assigned = true
		return nil
	})
	if err != nil {
		return err
	}
	if !assigned {
		return nil
	}

	now := e.Time.Now()
	e.recordHistory(ctx, conversationID, &userID, nil, actorID, now)
	e.notify(ctx, userID, conversationID, "assigned")
	e.publish(events.New(events.ConversationAssigned, conversationID, actorID, now).WithData("user_id", userID))
	return nil
}

// AssignToTeam assigns conversationID to teamID on behalf of actorID.
func (e *Engine) AssignToTeam(ctx context.Context, conversationID, teamID, actorID string) error {
	if err := e.requirePermission(ctx, actorID, permUpdateTeamAssignee); err != nil {
		return err
	}
	if _, err := e.Teams.GetByID(ctx, teamID); err != nil {
		return err
	}

	var assigned bool
	err := resilience.RetryFixedDelays(ctx, retryDelays, func() error {
		conv, err := e.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.AssignedTeamID != nil && *conv.AssignedTeamID == teamID {
			assigned = false
			return nil
		}
		if err := e.Conversations.AssignToTeam(ctx, conversationID, teamID, conv.Version); err != nil {
			return err
		}
		assigned = true
		return nil
	})
	if err != nil {
		return err
	}
	if !assigned {
		return nil
	}

	now := e.Time.Now()
	e.recordHistory(ctx, conversationID, nil, &teamID, actorID, now)
	e.publish(events.New(events.ConversationAssigned, conversationID, actorID, now).WithData("team_id", teamID))
	return nil
}

// Unassign clears the assigned user from conversationID.
func (e *Engine) Unassign(ctx context.Context, conversationID, actorID string) error {
	if err := e.requirePermission(ctx, actorID, permUpdateUserAssignee); err != nil {
		return err
	}

	err := resilience.RetryFixedDelays(ctx, retryDelays, func() error {
		conv, err := e.Conversations.GetByID(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.AssignedUserID == nil {
			return nil
		}
		return e.Conversations.UnassignUser(ctx, conversationID, conv.Version)
	})
	if err != nil {
		return err
	}

	now := e.Time.Now()
	e.recordHistory(ctx, conversationID, nil, nil, actorID, now)
	e.publish(events.New(events.ConversationUnassigned, conversationID, actorID, now))
	return nil
}

// AutoUnassignOnAway unassigns every Open/Snoozed conversation from
// userID in one batch (spec.md §4.7 "Auto-unassign on availability
// loss"), publishing one ConversationUnassigned per affected
// conversation, then moves the agent Offline. Individual repository
// failures are collected rather than aborting the batch, matching
// spec.md §4.8's note that the sweep must not stop on one bad row.
func (e *Engine) AutoUnassignOnAway(ctx context.Context, userID string) error {
	now := e.Time.Now()

	var merr *multierror.Error
	ids, err := e.Conversations.UnassignOpenForAgent(ctx, userID)
	if err != nil {
		merr = multierror.Append(merr, err)
	} else {
		for _, conversationID := range ids {
			e.publish(events.New(events.ConversationUnassigned, conversationID, "", now).WithData("user_id", userID))
		}
	}

	if agent, err := e.Agents.GetByID(ctx, userID); err != nil {
		merr = multierror.Append(merr, err)
	} else if err := e.Agents.UpdateAvailability(ctx, userID, domain.AvailabilityOffline, domain.ReasonMaxIdleThreshold, now); err != nil {
		merr = multierror.Append(merr, err)
	} else {
		if err := e.Agents.AppendActivityLog(ctx, &domain.AgentActivityLog{
			ID:        uuid.NewString(),
			UserID:    userID,
			EventType: "availability_changed",
			OldStatus: agent.Status,
			NewStatus: domain.AvailabilityOffline,
			Metadata:  map[string]any{"reason": string(domain.ReasonMaxIdleThreshold)},
			CreatedAt: now,
		}); err != nil {
			e.log.WithField("user_id", userID).WithField("error", err).Warn("failed to append activity log")
		}
		e.publish(events.New(events.AgentAvailabilityChanged, "", userID, now).WithData("status", string(domain.AvailabilityOffline)).WithData("reason", string(domain.ReasonMaxIdleThreshold)))
	}

	return merr.ErrorOrNil()
}

// HasConversationAccess implements has_conversation_access (spec.md
// §4.7): true iff the caller is the assigned user or a member of the
// assigned team.
func (e *Engine) HasConversationAccess(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := e.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if conv.AssignedUserID != nil && *conv.AssignedUserID == userID {
		return true, nil
	}
	if conv.AssignedTeamID != nil {
		return e.Teams.IsMember(ctx, *conv.AssignedTeamID, userID)
	}
	return false, nil
}

func (e *Engine) recordHistory(ctx context.Context, conversationID string, userID, teamID *string, actorID string, at time.Time) {
	h := &domain.AssignmentHistory{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		TeamID:         teamID,
		ActorID:        actorID,
		CreatedAt:      at,
	}
	if err := e.History.Append(ctx, h); err != nil {
		e.log.WithField("conversation_id", conversationID).WithField("error", err).Warn("failed to append assignment history")
	}
}

// notify writes the durable UserNotification row and fires the
// best-effort real-time push; a push failure is logged at debug and
// never fails the operation (spec.md §4.7 "Notifications").
func (e *Engine) notify(ctx context.Context, userID, conversationID, kind string) {
	n := domain.UserNotification{
		ID:             uuid.NewString(),
		UserID:         userID,
		Kind:           kind,
		ConversationID: &conversationID,
		CreatedAt:      e.Time.Now(),
	}
	if err := e.Notifications.Create(ctx, &n); err != nil {
		e.log.WithField("user_id", userID).WithField("error", err).Warn("failed to persist user notification")
	}
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Notify(ctx, userID, n); err != nil {
		e.log.WithField("user_id", userID).WithField("error", err).Debug("notification push failed")
	}
}

func (e *Engine) publish(evt events.SystemEvent) {
	if err := e.Bus.Publish(evt); err != nil && err != events.ErrNoSubscribers {
		e.log.WithField("event_type", evt.Type).WithField("error", err).Debug("event publish failed")
	}
}
