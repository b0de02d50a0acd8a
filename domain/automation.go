package domain

import "time"

// Operator is the comparison an automation condition applies to an attribute.
type Operator string

const (
	OpEquals    Operator = "Equals"
	OpNotEquals Operator = "NotEquals"
	OpContains  Operator = "Contains"
	OpIn        Operator = "In"
	OpNotIn     Operator = "NotIn"
)

// ConditionKind tags the variant of a Condition tree node.
type ConditionKind string

const (
	ConditionSimple ConditionKind = "Simple"
	ConditionAnd    ConditionKind = "And"
	ConditionOr     ConditionKind = "Or"
	ConditionNot    ConditionKind = "Not"
)

// Condition is a recursive tagged union. Exactly one of the fields that
// corresponds to Kind is populated; the rest are zero. This mirrors the
// teacher's tagged-union actions (automation_triggers.go's Action) rather
// than reaching for an interface + type switch per node, since conditions
// need to round-trip through JSON as rule storage.
type Condition struct {
	Kind ConditionKind

	// Simple
	Attribute string
	Op        Operator
	Value     any

	// And / Or
	Children []Condition

	// Not
	Child *Condition
}

// ActionKind tags the variant of an Action.
type ActionKind string

const (
	ActionSetPriority   ActionKind = "SetPriority"
	ActionAssignToUser  ActionKind = "AssignToUser"
	ActionAssignToTeam  ActionKind = "AssignToTeam"
	ActionAddTag        ActionKind = "AddTag"
	ActionRemoveTag     ActionKind = "RemoveTag"
	ActionChangeStatus  ActionKind = "ChangeStatus"
)

// Action is the mutation an automation rule applies when its condition
// matches. Params is keyed by the parameter names documented per-kind in
// spec.md §4.5 (e.g. "priority", "user_id", "team_id", "tag_name",
// "status", "snooze_duration").
type Action struct {
	Kind   ActionKind
	Params map[string]any
}

// AutomationRule is the condition/action DSL entry, fingerprinted by
// Priority (ascending = evaluated first) with id as the tie-break.
type AutomationRule struct {
	ID                string
	Name              string
	Enabled           bool
	EventSubscription map[string]struct{}
	Condition         Condition
	Action            Action
	Priority          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Subscribes reports whether this rule should be loaded for eventType.
func (r *AutomationRule) Subscribes(eventType string) bool {
	_, ok := r.EventSubscription[eventType]
	return ok
}

// ConditionResult is the three-valued outcome of evaluating a Condition.
type ConditionResult string

const (
	ConditionTrue  ConditionResult = "true"
	ConditionFalse ConditionResult = "false"
	ConditionError ConditionResult = "error"
)

// ActionResult is the outcome of executing a matched rule's action.
type ActionResult string

const (
	ActionSuccess ActionResult = "success"
	ActionFailure ActionResult = "failure"
	ActionError   ActionResult = "error"
	ActionSkipped ActionResult = "skipped"
)

// RuleEvaluationLog is the append-only audit row written for every rule
// loaded for an event, matched or not.
type RuleEvaluationLog struct {
	ID               string
	RuleID           string
	RuleName         string
	EventType        string
	ConversationID   *string
	Matched          bool
	ConditionResult  ConditionResult
	ActionExecuted   bool
	ActionResult     ActionResult
	ErrorMessage     *string
	EvaluationTimeMs int64
	EvaluatedAt      time.Time
	CascadeDepth     int
}
