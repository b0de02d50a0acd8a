// Package automation implements the rule engine (spec.md §4.4, component
// L6): load the rules subscribed to an event, evaluate each condition,
// execute the matched action, and always append an audit row — the
// engine itself never unwinds on a per-rule error (spec.md §7
// propagation policy).
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/condition"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/domain/ports"
	"github.com/oxidesk/deskcore/pkg/logger"
	"github.com/oxidesk/deskcore/services/actionexecutor"
)

func newID() string { return uuid.NewString() }

// Config is the subset of spec.md §6.3 the engine reads.
type Config struct {
	CascadeMaxDepth      int
	ConditionTimeout     time.Duration
	ActionTimeout        time.Duration
}

// DefaultConfig matches the §6.3 defaults.
func DefaultConfig() Config {
	return Config{
		CascadeMaxDepth:  5,
		ConditionTimeout: 5 * time.Second,
		ActionTimeout:    5 * time.Second,
	}
}

// Engine evaluates and executes automation rules for incoming events.
type Engine struct {
	Rules         ports.AutomationRepository
	Conversations ports.ConversationRepository
	Executor      *actionexecutor.Executor
	Time          ports.TimeService
	Config        Config

	log *logger.Logger
}

// New builds an Engine. log may be nil to use a default logger.
func New(rules ports.AutomationRepository, conv ports.ConversationRepository, executor *actionexecutor.Executor, clock ports.TimeService, cfg Config, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("automation")
	}
	return &Engine{
		Rules:         rules,
		Conversations: conv,
		Executor:      executor,
		Time:          clock,
		Config:        cfg,
		log:           log,
	}
}

// Handle runs one event through the rule engine (spec.md §4.4 procedure).
// It never returns an error: every failure mode is trapped at the rule
// boundary, logged to the evaluation log, and evaluation continues with
// the next rule.
func (e *Engine) Handle(ctx context.Context, evt events.SystemEvent) {
	if evt.CascadeDepth >= e.Config.CascadeMaxDepth {
		e.log.WithField("event_type", evt.Type).WithField("cascade_depth", evt.CascadeDepth).
			Debug("cascade depth exceeded, dropping event")
		return
	}

	rules, err := e.Rules.GetEnabledRulesForEvent(ctx, string(evt.Type))
	if err != nil {
		e.log.WithField("event_type", evt.Type).WithField("error", err).Error("failed to load automation rules")
		return
	}
	if len(rules) == 0 {
		return
	}

	conv, err := e.Conversations.GetByID(ctx, evt.ConversationID)
	if err != nil {
		e.log.WithField("conversation_id", evt.ConversationID).WithField("error", err).
			Error("failed to load conversation snapshot for rule evaluation")
		return
	}
	snap := conv.Snapshot()

	// Rules are loaded priority ASC, id ASC (spec.md §4.4 step 2). When
	// more than one matched rule mutates the same attribute, the
	// lowest-numbered rule's write must be the one left standing, so it
	// has to run last: actions execute in the reverse of load order.
	// Evaluation (and its audit row) follows the same order its action
	// would run in, so a rule's log entry and its effect are never
	// causally out of sequence with one another.
	execOrder := make([]domain.AutomationRule, len(rules))
	copy(execOrder, rules)
	reverse(execOrder)

	for i := range execOrder {
		e.evaluateAndExecute(ctx, &execOrder[i], evt, snap)
	}
}

func reverse(rules []domain.AutomationRule) {
	for i, j := 0, len(rules)-1; i < j; i, j = i+1, j-1 {
		rules[i], rules[j] = rules[j], rules[i]
	}
}

func (e *Engine) evaluateAndExecute(ctx context.Context, rule *domain.AutomationRule, evt events.SystemEvent, snap domain.Snapshot) {
	start := e.Time.Now()
	log := &domain.RuleEvaluationLog{
		ID:             newID(),
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		EventType:      string(evt.Type),
		ConversationID: &evt.ConversationID,
		EvaluatedAt:    start,
		CascadeDepth:   evt.CascadeDepth,
	}

	result, condErr := e.evaluateWithTimeout(ctx, rule.Condition, snap)
	log.ConditionResult = result
	log.Matched = result == domain.ConditionTrue
	if condErr != nil {
		msg := condErr.Error()
		log.ErrorMessage = &msg
	}

	if log.Matched {
		actionResult, actionErr := e.executeWithTimeout(ctx, rule, evt)
		log.ActionExecuted = true
		log.ActionResult = actionResult
		if actionErr != nil {
			msg := actionErr.Error()
			log.ErrorMessage = &msg
		}
	}

	log.EvaluationTimeMs = e.Time.Now().Sub(start).Milliseconds()

	if err := e.Rules.AppendEvaluationLog(ctx, log); err != nil {
		e.log.WithField("rule_id", rule.ID).WithField("error", err).Error("failed to append rule evaluation log")
	}
}

func (e *Engine) evaluateWithTimeout(ctx context.Context, cond domain.Condition, snap domain.Snapshot) (domain.ConditionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Config.ConditionTimeout)
	defer cancel()

	type out struct {
		result domain.ConditionResult
		err    error
	}
	ch := make(chan out, 1)
	go func() {
		r, err := condition.EvaluateErr(cond, snap)
		ch <- out{r, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return domain.ConditionError, fmt.Errorf("condition evaluation timed out")
	}
}

func (e *Engine) executeWithTimeout(ctx context.Context, rule *domain.AutomationRule, evt events.SystemEvent) (domain.ActionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Config.ActionTimeout)
	defer cancel()

	ch := make(chan actionexecutor.Result, 1)
	go func() {
		ch <- e.Executor.Execute(ctx, rule.Action, evt.ConversationID, evt.ActorID, evt.CascadeDepth+1)
	}()

	select {
	case res := <-ch:
		return res.Outcome, res.Err
	case <-ctx.Done():
		return domain.ActionError, fmt.Errorf("action execution timed out")
	}
}
