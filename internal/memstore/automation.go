package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Automation is an in-memory ports.AutomationRepository.
type Automation struct {
	mu    sync.Mutex
	rules map[string]*domain.AutomationRule
	log   []domain.RuleEvaluationLog
}

func NewAutomation() *Automation {
	return &Automation{rules: map[string]*domain.AutomationRule{}}
}

func (r *Automation) GetRule(ctx context.Context, id string) (*domain.AutomationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, svcerrors.NewNotFound("automation_rule", id)
	}
	cp := *rule
	return &cp, nil
}

func (r *Automation) ListRules(ctx context.Context) ([]domain.AutomationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AutomationRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, *rule)
	}
	return out, nil
}

func (r *Automation) CreateRule(ctx context.Context, rule *domain.AutomationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *Automation) UpdateRule(ctx context.Context, rule *domain.AutomationRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return svcerrors.NewNotFound("automation_rule", rule.ID)
	}
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *Automation) SetEnabled(ctx context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return svcerrors.NewNotFound("automation_rule", id)
	}
	rule.Enabled = enabled
	return nil
}

// GetEnabledRulesForEvent returns enabled subscribed rules ordered
// priority ASC, id ASC (spec.md §4.4).
func (r *Automation) GetEnabledRulesForEvent(ctx context.Context, eventType string) ([]domain.AutomationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AutomationRule
	for _, rule := range r.rules {
		if rule.Enabled && rule.Subscribes(eventType) {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Automation) AppendEvaluationLog(ctx context.Context, log *domain.RuleEvaluationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, *log)
	return nil
}

// EvaluationLog returns a copy of every appended row, for assertions.
func (r *Automation) EvaluationLog() []domain.RuleEvaluationLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RuleEvaluationLog, len(r.log))
	copy(out, r.log)
	return out
}

var _ ports.AutomationRepository = (*Automation)(nil)
