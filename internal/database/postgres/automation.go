package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Automation is a ports.AutomationRepository over `automation_rules` and
// `rule_evaluation_log`. Condition and Action are tagged unions with no
// natural column mapping, so both round-trip through the row as JSON,
// the same choice the teacher's store makes for its own nested types.
type Automation struct {
	db *DB
}

func NewAutomation(db *DB) *Automation {
	return &Automation{db: db}
}

const automationRuleColumns = `id, name, enabled, event_subscription, condition, action, priority, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*domain.AutomationRule, error) {
	var rule domain.AutomationRule
	var events pq.StringArray
	var conditionJSON, actionJSON []byte
	err := row.Scan(&rule.ID, &rule.Name, &rule.Enabled, &events, &conditionJSON, &actionJSON,
		&rule.Priority, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rule.EventSubscription = make(map[string]struct{}, len(events))
	for _, e := range events {
		rule.EventSubscription[e] = struct{}{}
	}
	if err := json.Unmarshal(conditionJSON, &rule.Condition); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actionJSON, &rule.Action); err != nil {
		return nil, err
	}
	return &rule, nil
}

func eventSubscriptionList(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for e := range m {
		out = append(out, e)
	}
	return out
}

func (r *Automation) GetRule(ctx context.Context, id string) (*domain.AutomationRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+automationRuleColumns+` FROM automation_rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("automation_rule", id)
	}
	return rule, err
}

func (r *Automation) ListRules(ctx context.Context) ([]domain.AutomationRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+automationRuleColumns+` FROM automation_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (r *Automation) CreateRule(ctx context.Context, rule *domain.AutomationRule) error {
	conditionJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return err
	}
	actionJSON, err := json.Marshal(rule.Action)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_rules (id, name, enabled, event_subscription, condition, action, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rule.ID, rule.Name, rule.Enabled, pq.Array(eventSubscriptionList(rule.EventSubscription)),
		conditionJSON, actionJSON, rule.Priority, rule.CreatedAt, rule.UpdatedAt)
	return err
}

func (r *Automation) UpdateRule(ctx context.Context, rule *domain.AutomationRule) error {
	conditionJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return err
	}
	actionJSON, err := json.Marshal(rule.Action)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE automation_rules SET name = $1, enabled = $2, event_subscription = $3,
			condition = $4, action = $5, priority = $6, updated_at = $7
		WHERE id = $8
	`, rule.Name, rule.Enabled, pq.Array(eventSubscriptionList(rule.EventSubscription)),
		conditionJSON, actionJSON, rule.Priority, rule.UpdatedAt, rule.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return svcerrors.NewNotFound("automation_rule", rule.ID)
	}
	return nil
}

func (r *Automation) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE automation_rules SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return svcerrors.NewNotFound("automation_rule", id)
	}
	return nil
}

// GetEnabledRulesForEvent orders priority ASC, id ASC directly in SQL
// (spec.md §4.4: lowest priority number evaluates last and wins, so
// the rule engine walks this slice in reverse).
func (r *Automation) GetEnabledRulesForEvent(ctx context.Context, eventType string) ([]domain.AutomationRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+automationRuleColumns+` FROM automation_rules
		WHERE enabled = true AND $1 = ANY(event_subscription)
		ORDER BY priority ASC, id ASC
	`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

func (r *Automation) AppendEvaluationLog(ctx context.Context, log *domain.RuleEvaluationLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rule_evaluation_log
		(id, rule_id, rule_name, event_type, conversation_id, matched, condition_result,
		 action_executed, action_result, error_message, evaluation_time_ms, evaluated_at, cascade_depth)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, log.ID, log.RuleID, log.RuleName, log.EventType, log.ConversationID, log.Matched, log.ConditionResult,
		log.ActionExecuted, log.ActionResult, log.ErrorMessage, log.EvaluationTimeMs, log.EvaluatedAt, log.CascadeDepth)
	return err
}

var _ ports.AutomationRepository = (*Automation)(nil)
