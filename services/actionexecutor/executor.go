// Package actionexecutor applies the bounded mutations an automation
// rule's Action names (spec.md §4.5, component L5). Each Execute call
// issues exactly one conversation-repository mutation (AssignToTeam may
// also auto-apply an SLA through the wired SLA engine) and, unless the
// action turned out to be an idempotent no-op, publishes the
// corresponding event.
package actionexecutor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/conversationfsm"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
	"github.com/oxidesk/deskcore/pkg/logger"
)

// SlaApplier is the one back-reference the action executor needs
// (AssignToTeam triggers SLA auto-apply, §4.5/§4.6). Resolved by a
// post-construction setter, the same pattern spec.md §9 calls out for the
// assignment engine's dependency on the SLA engine, so construction stays
// a DAG: Executor can be built before the SLA engine exists.
type SlaApplier interface {
	ApplyForTeam(ctx context.Context, conversationID, teamID string, now time.Time) error
}

// Executor wires the repository ports Execute needs.
type Executor struct {
	Conversations ports.ConversationRepository
	Agents        ports.AgentRepository
	Teams         ports.TeamRepository
	Bus           ports.EventBus
	Time          ports.TimeService
	Validate      *validator.Validate

	sla SlaApplier
	log *logger.Logger
}

// New builds an Executor. log may be nil to use a default logger.
func New(conv ports.ConversationRepository, agents ports.AgentRepository, teams ports.TeamRepository, bus ports.EventBus, clock ports.TimeService, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewDefault("actionexecutor")
	}
	return &Executor{
		Conversations: conv,
		Agents:        agents,
		Teams:         teams,
		Bus:           bus,
		Time:          clock,
		Validate:      validator.New(),
		log:           log,
	}
}

// SetSlaApplier wires the SLA engine in after construction.
func (e *Executor) SetSlaApplier(s SlaApplier) { e.sla = s }

// Result is what the rule engine records to the evaluation log.
type Result struct {
	Outcome domain.ActionResult
	Err     error
}

// Execute runs action against conversationID on behalf of actorID.
// cascadeDepth is stamped onto any follow-on event this action
// publishes, so a listener re-entering the rule engine on that event
// knows how deep into the cascade it already is (spec.md §4.4). Missing/
// invalid parameters produce ActionError; unresolvable references (agent
// or team not found) produce ActionFailure — the distinction spec.md
// §4.5 draws between a malformed rule and a rule that is well-formed but
// points at something gone.
func (e *Executor) Execute(ctx context.Context, action domain.Action, conversationID, actorID string, cascadeDepth int) Result {
	switch action.Kind {
	case domain.ActionSetPriority:
		return e.setPriority(ctx, action, conversationID, cascadeDepth)
	case domain.ActionAssignToUser:
		return e.assignToUser(ctx, action, conversationID, actorID, cascadeDepth)
	case domain.ActionAssignToTeam:
		return e.assignToTeam(ctx, action, conversationID, cascadeDepth)
	case domain.ActionAddTag:
		return e.addTag(ctx, action, conversationID, cascadeDepth)
	case domain.ActionRemoveTag:
		return e.removeTag(ctx, action, conversationID, cascadeDepth)
	case domain.ActionChangeStatus:
		return e.changeStatus(ctx, action, conversationID, cascadeDepth)
	default:
		return Result{Outcome: domain.ActionError, Err: fmt.Errorf("actionexecutor: unknown action kind %q", action.Kind)}
	}
}

// setPriorityParams is validated with go-playground/validator before any
// repository mutation is attempted, so a malformed rule definition fails
// as ActionError without ever reaching storage.
type setPriorityParams struct {
	Priority string `validate:"required,oneof=Low Medium High"`
}

func (e *Executor) setPriority(ctx context.Context, action domain.Action, conversationID string, cascadeDepth int) Result {
	raw, _ := action.Params["priority"].(string)
	if err := e.Validate.Struct(setPriorityParams{Priority: raw}); err != nil {
		return Result{Outcome: domain.ActionError, Err: err}
	}
	p := domain.Priority(raw)

	conv, err := e.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}
	if conv.Priority != nil && *conv.Priority == p {
		return Result{Outcome: domain.ActionSkipped}
	}

	if err := e.Conversations.SetPriority(ctx, conversationID, &p, conv.Version); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	e.publish(events.New(events.ConversationPriorityChanged, conversationID, "", e.Time.Now()).WithData("priority", string(p)).Cascaded(cascadeDepth))
	return Result{Outcome: domain.ActionSuccess}
}

type userIDParams struct {
	UserID string `validate:"required"`
}

func (e *Executor) assignToUser(ctx context.Context, action domain.Action, conversationID, actorID string, cascadeDepth int) Result {
	userID, _ := action.Params["user_id"].(string)
	if err := e.Validate.Struct(userIDParams{UserID: userID}); err != nil {
		return Result{Outcome: domain.ActionError, Err: err}
	}
	if _, err := e.Agents.GetByID(ctx, userID); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	conv, err := e.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}
	if conv.AssignedUserID != nil && *conv.AssignedUserID == userID {
		return Result{Outcome: domain.ActionSkipped}
	}

	if err := e.Conversations.AssignToUser(ctx, conversationID, userID, actorID, conv.Version); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	e.publish(events.New(events.ConversationAssigned, conversationID, actorID, e.Time.Now()).WithData("user_id", userID).Cascaded(cascadeDepth))
	return Result{Outcome: domain.ActionSuccess}
}

type teamIDParams struct {
	TeamID string `validate:"required"`
}

func (e *Executor) assignToTeam(ctx context.Context, action domain.Action, conversationID string, cascadeDepth int) Result {
	teamID, _ := action.Params["team_id"].(string)
	if err := e.Validate.Struct(teamIDParams{TeamID: teamID}); err != nil {
		return Result{Outcome: domain.ActionError, Err: err}
	}
	if _, err := e.Teams.GetByID(ctx, teamID); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	conv, err := e.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}
	if conv.AssignedTeamID != nil && *conv.AssignedTeamID == teamID {
		return Result{Outcome: domain.ActionSkipped}
	}

	if err := e.Conversations.AssignToTeam(ctx, conversationID, teamID, conv.Version); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	now := e.Time.Now()
	if e.sla != nil {
		if err := e.sla.ApplyForTeam(ctx, conversationID, teamID, now); err != nil {
			e.log.WithField("conversation_id", conversationID).WithField("team_id", teamID).
				WithField("error", err).Warn("sla auto-apply failed after team assignment")
		}
	}

	e.publish(events.New(events.ConversationAssigned, conversationID, "", now).WithData("team_id", teamID).Cascaded(cascadeDepth))
	return Result{Outcome: domain.ActionSuccess}
}

type tagNameParams struct {
	TagName string `validate:"required"`
}

func (e *Executor) addTag(ctx context.Context, action domain.Action, conversationID string, cascadeDepth int) Result {
	tag, _ := action.Params["tag_name"].(string)
	if err := e.Validate.Struct(tagNameParams{TagName: tag}); err != nil {
		return Result{Outcome: domain.ActionError, Err: err}
	}
	existing, err := e.Conversations.GetTags(ctx, conversationID)
	if err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}
	for _, t := range existing {
		if t == tag {
			return Result{Outcome: domain.ActionSkipped}
		}
	}
	if err := e.Conversations.AddTag(ctx, conversationID, tag); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}
	e.publish(events.New(events.ConversationTagsChanged, conversationID, "", e.Time.Now()).WithData("added", tag).Cascaded(cascadeDepth))
	return Result{Outcome: domain.ActionSuccess}
}

func (e *Executor) removeTag(ctx context.Context, action domain.Action, conversationID string, cascadeDepth int) Result {
	tag, _ := action.Params["tag_name"].(string)
	if err := e.Validate.Struct(tagNameParams{TagName: tag}); err != nil {
		return Result{Outcome: domain.ActionError, Err: err}
	}
	existing, err := e.Conversations.GetTags(ctx, conversationID)
	if err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}
	found := false
	for _, t := range existing {
		if t == tag {
			found = true
			break
		}
	}
	if !found {
		return Result{Outcome: domain.ActionSkipped}
	}
	if err := e.Conversations.RemoveTag(ctx, conversationID, tag); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}
	e.publish(events.New(events.ConversationTagsChanged, conversationID, "", e.Time.Now()).WithData("removed", tag).Cascaded(cascadeDepth))
	return Result{Outcome: domain.ActionSuccess}
}

type changeStatusParams struct {
	Status string `validate:"required,oneof=open snoozed resolved closed"`
}

func (e *Executor) changeStatus(ctx context.Context, action domain.Action, conversationID string, cascadeDepth int) Result {
	statusRaw, _ := action.Params["status"].(string)
	if err := e.Validate.Struct(changeStatusParams{Status: statusRaw}); err != nil {
		return Result{Outcome: domain.ActionError, Err: err}
	}
	snoozeDuration, _ := action.Params["snooze_duration"].(string)

	conv, err := e.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	to := domain.ConversationStatus(statusRaw)
	now := e.Time.Now()
	eff, err := conversationfsm.Transition(conv.Status, to, snoozeDuration, now)
	if err != nil {
		if svcerrors.Is(err, svcerrors.BadRequest) {
			return Result{Outcome: domain.ActionError, Err: err}
		}
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	resolvedAt := eff.ResolvedAt
	if conversationfsm.ClearsResolvedAt(conv.Status, to) {
		resolvedAt = nil
	} else if resolvedAt == nil {
		resolvedAt = conv.ResolvedAt
	}
	closedAt := eff.ClosedAt
	if closedAt == nil {
		closedAt = conv.ClosedAt
	}

	if err := e.Conversations.UpdateFields(ctx, conversationID, conv.Version, eff.Status, resolvedAt, closedAt, eff.SnoozedUntil); err != nil {
		return Result{Outcome: domain.ActionFailure, Err: err}
	}

	evt := events.New(events.ConversationStatusChanged, conversationID, "", now).
		WithData("from", string(conv.Status)).WithData("to", string(to)).Cascaded(cascadeDepth)
	evt.Before = map[string]any{"status": string(conv.Status)}
	evt.After = map[string]any{"status": string(to)}
	e.publish(evt)
	return Result{Outcome: domain.ActionSuccess}
}

func (e *Executor) publish(evt events.SystemEvent) {
	if err := e.Bus.Publish(evt); err != nil && err != events.ErrNoSubscribers {
		e.log.WithField("event_type", evt.Type).WithField("error", err).Debug("event publish failed")
	}
}
