// Package ports declares the repository and infrastructure interfaces the
// automation core depends on (spec.md §6.1). Every port is small and
// single-responsibility so a caller only depends on the slice of
// persistence it actually uses; the core never imports a concrete store
// package directly, only these interfaces, so repository implementations
// (Postgres, in-memory, Redis) stay swappable and mockable.
package ports

import (
	"context"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
)

// ConversationFilter narrows a List/Count call. Zero-value fields are
// unconstrained.
type ConversationFilter struct {
	Status         *domain.ConversationStatus
	AssignedUserID *string
	AssignedTeamID *string
	Tag            *string
}

// ConversationRepository is the port every conversation mutation and the
// condition evaluator's snapshot reads go through.
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	GetByReferenceNumber(ctx context.Context, ref int64) (*domain.Conversation, error)
	Create(ctx context.Context, c *domain.Conversation) error

	// UpdateFields applies the conversation state machine's side effects
	// (status, resolved_at, closed_at, snoozed_until) under the
	// conversation's current version, returning Conflict on mismatch.
	UpdateFields(ctx context.Context, id string, expectedVersion int64, status domain.ConversationStatus, resolvedAt, closedAt, snoozedUntil *time.Time) error

	AssignToUser(ctx context.Context, id, userID, actorID string, expectedVersion int64) error
	AssignToTeam(ctx context.Context, id, teamID string, expectedVersion int64) error
	UnassignUser(ctx context.Context, id string, expectedVersion int64) error

	// UnassignOpenForAgent clears assigned_user_id on every Open or
	// Snoozed conversation assigned to userID, returning the IDs cleared
	// so the caller can publish one event per conversation (spec.md §4.8
	// auto-unassign-on-away).
	UnassignOpenForAgent(ctx context.Context, userID string) ([]string, error)

	List(ctx context.Context, limit, offset int, filter ConversationFilter) ([]domain.Conversation, error)
	Count(ctx context.Context, filter ConversationFilter) (int, error)

	SetPriority(ctx context.Context, id string, priority *domain.Priority, expectedVersion int64) error
	AddTag(ctx context.Context, id, tag string) error
	RemoveTag(ctx context.Context, id, tag string) error
	GetTags(ctx context.Context, id string) ([]string, error)
}

// SlaRepository is the port the SLA engine uses for policies, applied
// SLAs, and the events within them.
type SlaRepository interface {
	GetPolicy(ctx context.Context, id string) (*domain.SlaPolicy, error)
	ListPolicies(ctx context.Context) ([]domain.SlaPolicy, error)
	CreatePolicy(ctx context.Context, p *domain.SlaPolicy) error
	UpdatePolicy(ctx context.Context, p *domain.SlaPolicy) error

	GetApplied(ctx context.Context, conversationID string) (*domain.AppliedSla, error)
	GetAppliedByID(ctx context.Context, id string) (*domain.AppliedSla, error)
	CreateApplied(ctx context.Context, a *domain.AppliedSla) error
	UpdateAppliedStatus(ctx context.Context, id string, status domain.SlaStatus) error

	GetEvents(ctx context.Context, appliedSlaID string) ([]domain.SlaEvent, error)
	CreateEvent(ctx context.Context, e *domain.SlaEvent) error

	// MarkEventMet and MarkEventBreached enforce the mutual-exclusion
	// invariant (spec.md §8 invariant 1): a transition away from Pending
	// is one-way, and the repository rejects a second transition with
	// Conflict("SLA event status is exclusive").
	MarkEventMet(ctx context.Context, eventID string, metAt time.Time) error
	MarkEventBreached(ctx context.Context, eventID string, breachedAt time.Time) error

	// GetPendingEventsPastDeadline feeds the breach sweep.
	GetPendingEventsPastDeadline(ctx context.Context, asOf time.Time) ([]domain.SlaEvent, error)

	IsHoliday(ctx context.Context, teamID string, day time.Time) (bool, error)
}

// TeamRepository is the port for team membership and business-hours
// lookups.
type TeamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	List(ctx context.Context) ([]domain.Team, error)
	Members(ctx context.Context, teamID string) ([]string, error)
	IsMember(ctx context.Context, teamID, userID string) (bool, error)
	GetUserTeams(ctx context.Context, userID string) ([]domain.Team, error)
}

// AgentRepository is the port for agent records, merging the spec's
// AgentRepository and AvailabilityRepository into one interface: every
// method in both lists operates on the same row (an agent's current
// availability is a field of the agent, not a separate entity), so
// splitting them would only add an artificial seam.
type AgentRepository interface {
	GetByID(ctx context.Context, userID string) (*domain.AgentAvailability, error)
	UpdateAvailability(ctx context.Context, userID string, status domain.AvailabilityStatus, reason domain.AvailabilityChangeReason, at time.Time) error
	UpdateActivity(ctx context.Context, userID string, at time.Time) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// GetInactiveOnline returns agents Online with LastActivityAt older
	// than cutoff (candidates for Online -> Away).
	GetInactiveOnline(ctx context.Context, cutoff time.Time) ([]domain.AgentAvailability, error)

	// GetIdleAway returns agents Away or AwayManual with AwaySince older than cutoff
	// (candidates for Away -> AwayAndReassigning -> Offline).
	GetIdleAway(ctx context.Context, cutoff time.Time) ([]domain.AgentAvailability, error)

	AppendActivityLog(ctx context.Context, log *domain.AgentActivityLog) error
}

// AutomationRepository is the port for rule CRUD and the evaluation log.
type AutomationRepository interface {
	GetRule(ctx context.Context, id string) (*domain.AutomationRule, error)
	ListRules(ctx context.Context) ([]domain.AutomationRule, error)
	CreateRule(ctx context.Context, r *domain.AutomationRule) error
	UpdateRule(ctx context.Context, r *domain.AutomationRule) error
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// GetEnabledRulesForEvent returns enabled rules subscribed to
	// eventType, ordered priority ASC, id ASC (spec.md §4.4: lowest
	// priority number evaluates last and wins).
	GetEnabledRulesForEvent(ctx context.Context, eventType string) ([]domain.AutomationRule, error)

	AppendEvaluationLog(ctx context.Context, log *domain.RuleEvaluationLog) error
}

// WebhookRepository is the port for webhook subscriptions and delivery
// records.
type WebhookRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Webhook, error)
	ListActiveForEvent(ctx context.Context, eventType string) ([]domain.Webhook, error)
	Create(ctx context.Context, w *domain.Webhook) error
	Update(ctx context.Context, w *domain.Webhook) error

	RecordDelivery(ctx context.Context, d *domain.Delivery) error
	PendingDeliveries(ctx context.Context, limit int) ([]domain.Delivery, error)
}

// TaskQueue is the port the job queue/worker runs against (spec.md §4.9).
type TaskQueue interface {
	Enqueue(ctx context.Context, job *domain.Job) error
	EnqueueAt(ctx context.Context, job *domain.Job, runAt time.Time) error

	// FetchNextJob atomically claims the next runnable job (run_at <= now,
	// state queued), transitioning it to running, or returns nil if none
	// is due.
	FetchNextJob(ctx context.Context) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID string, cause error) error
}

// DistributedLock is the port backing the per-inbox poll lock (Redis in
// the provided implementation).
type DistributedLock interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// AssignmentHistoryRepository is the append-only log the assignment
// engine writes to on every successful assignment (spec.md §4.7
// "History"). Kept separate from ConversationRepository since it's a
// pure audit sink with no read path the core itself needs.
type AssignmentHistoryRepository interface {
	Append(ctx context.Context, h *domain.AssignmentHistory) error
}

// UserNotificationRepository is the durable row behind the assignment
// engine's best-effort real-time push (spec.md §4.7 "Notifications").
type UserNotificationRepository interface {
	Create(ctx context.Context, n *domain.UserNotification) error
}

// PermissionChecker is the port the assignment engine gates each public
// operation on (spec.md §4.7 "Permissions": named permission strings
// like "conversations:update_user_assignee", absent -> Forbidden).
// Spec.md names the permission strings but leaves the permission store
// itself unspecified; this port is the minimal seam a real RBAC/ACL
// store plugs into.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// EventBus is the narrow publish/subscribe surface the core depends on;
// *events.Bus satisfies it directly.
type EventBus interface {
	Publish(evt events.SystemEvent) error
	Subscribe() *events.Subscription
}

// TimeService isolates wall-clock reads and sleeps behind an interface so
// tests can inject a fixed or fake-advancing clock (spec.md §6.1).
type TimeService interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemTimeService is the real TimeService, backed by the runtime clock.
type SystemTimeService struct{}

func (SystemTimeService) Now() time.Time { return time.Now() }

func (SystemTimeService) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
