package automation

import (
	"context"
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/internal/memstore"
	"github.com/oxidesk/deskcore/services/actionexecutor"
)

func newTestEngine(t *testing.T) (*Engine, *memstore.Conversations, *memstore.Automation) {
	t.Helper()
	conv := memstore.NewConversations()
	agents := memstore.NewAgents()
	teams := memstore.NewTeams()
	rules := memstore.NewAutomation()
	bus := events.New(16)
	clock := memstore.NewFixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	exec := actionexecutor.New(conv, agents, teams, bus, clock, nil)
	return New(rules, conv, exec, clock, DefaultConfig(), nil), conv, rules
}

func createConversation(t *testing.T, conv *memstore.Conversations, id string) {
	t.Helper()
	c := &domain.Conversation{ID: id, Status: domain.StatusOpen, CreatedAt: time.Now()}
	if err := conv.Create(context.Background(), c); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func setPriorityRule(id, name string, priority int) domain.AutomationRule {
	p := domain.PriorityLow
	switch name {
	case "A":
		p = domain.PriorityHigh
	case "B":
		p = domain.PriorityMedium
	case "C":
		p = domain.PriorityLow
	}
	return domain.AutomationRule{
		ID:                id,
		Name:              name,
		Enabled:           true,
		EventSubscription: map[string]struct{}{string(events.ConversationCreated): {}},
		Condition:         domain.Condition{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "open"},
		Action:            domain.Action{Kind: domain.ActionSetPriority, Params: map[string]any{"priority": string(p)}},
		Priority:          priority,
	}
}

// TestHandle_LowestPriorityNumberWinsLast exercises the scenario where
// three rules at priorities 50/100/200 all match and all set priority:
// loaded ascending, the lowest-numbered rule (50) must execute last so
// its write is the one left standing.
func TestHandle_LowestPriorityNumberWinsLast(t *testing.T) {
	engine, conv, rules := newTestEngine(t)
	createConversation(t, conv, "c1")

	ruleA := setPriorityRule("r-a", "A", 50)
	ruleB := setPriorityRule("r-b", "B", 100)
	ruleC := setPriorityRule("r-c", "C", 200)
	for _, r := range []domain.AutomationRule{ruleA, ruleB, ruleC} {
		if err := rules.CreateRule(context.Background(), &r); err != nil {
			t.Fatalf("create rule: %v", err)
		}
	}

	evt := events.New(events.ConversationCreated, "c1", "", time.Now())
	engine.Handle(context.Background(), evt)

	got, _ := conv.GetByID(context.Background(), "c1")
	if got.Priority == nil || *got.Priority != domain.PriorityHigh {
		t.Fatalf("expected priority High (rule A, priority 50) to win, got %+v", got.Priority)
	}

	log := rules.EvaluationLog()
	if len(log) != 3 {
		t.Fatalf("expected 3 evaluation log rows, got %d", len(log))
	}
	for _, row := range log {
		if !row.Matched || !row.ActionExecuted {
			t.Fatalf("expected every rule to match and execute, got %+v", row)
		}
	}
}

// TestHandle_CascadeDepthExceeded verifies events past the configured
// cascade bound are dropped before any rule is loaded.
func TestHandle_CascadeDepthExceeded(t *testing.T) {
	engine, conv, rules := newTestEngine(t)
	createConversation(t, conv, "c1")
	rule := setPriorityRule("r-a", "A", 50)
	if err := rules.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	evt := events.New(events.ConversationCreated, "c1", "", time.Now()).Cascaded(engine.Config.CascadeMaxDepth + 1)
	engine.Handle(context.Background(), evt)

	if len(rules.EvaluationLog()) != 0 {
		t.Fatalf("expected no rules evaluated past the cascade bound")
	}
	got, _ := conv.GetByID(context.Background(), "c1")
	if got.Priority != nil {
		t.Fatalf("expected no mutation past the cascade bound, got %+v", got.Priority)
	}
}

// TestHandle_CascadeDepthAtBound verifies an event whose CascadeDepth
// already equals CascadeMaxDepth is dropped too, not just depths beyond
// it: a 3-rule chain (add tag B, then C, then D) must stop after B and C
// and never let D be added, matching the boundary the original
// implementation enforces (original_source/tests/test_automation_edge_cases.rs).
func TestHandle_CascadeDepthAtBound(t *testing.T) {
	engine, conv, rules := newTestEngine(t)
	createConversation(t, conv, "c1")

	ruleA := domain.AutomationRule{
		ID: "r-a", Name: "add-b", Enabled: true,
		EventSubscription: map[string]struct{}{string(events.ConversationCreated): {}},
		Condition:         domain.Condition{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "open"},
		Action:            domain.Action{Kind: domain.ActionAddTag, Params: map[string]any{"tag_name": "B"}},
		Priority:          10,
	}
	// ruleB and ruleC both subscribe to tags-changed, but each only
	// matches once its predecessor's tag is already on the conversation,
	// so they fire one event-hop apart even though they share an event
	// type.
	ruleB := domain.AutomationRule{
		ID: "r-b", Name: "add-c", Enabled: true,
		EventSubscription: map[string]struct{}{string(events.ConversationTagsChanged): {}},
		Condition:         domain.Condition{Kind: domain.ConditionSimple, Attribute: "tags", Op: domain.OpContains, Value: "B"},
		Action:            domain.Action{Kind: domain.ActionAddTag, Params: map[string]any{"tag_name": "C"}},
		Priority:          10,
	}
	ruleC := domain.AutomationRule{
		ID: "r-c", Name: "add-d", Enabled: true,
		EventSubscription: map[string]struct{}{string(events.ConversationTagsChanged): {}},
		Condition:         domain.Condition{Kind: domain.ConditionSimple, Attribute: "tags", Op: domain.OpContains, Value: "C"},
		Action:            domain.Action{Kind: domain.ActionAddTag, Params: map[string]any{"tag_name": "D"}},
		Priority:          10,
	}
	for _, r := range []domain.AutomationRule{ruleA, ruleB, ruleC} {
		r := r
		if err := rules.CreateRule(context.Background(), &r); err != nil {
			t.Fatalf("create rule: %v", err)
		}
	}

	engine.Config.CascadeMaxDepth = 2

	// Root event at depth 0: rule A fires, adding tag B (the action
	// executor would republish this at depth 1).
	root := events.New(events.ConversationCreated, "c1", "", time.Now())
	engine.Handle(context.Background(), root)

	// Depth 1: rule B matches (tag B is present) and adds tag C; rule C
	// does not match yet, since its condition is evaluated against the
	// snapshot taken before rule B's write lands.
	engine.Handle(context.Background(), events.New(events.ConversationTagsChanged, "c1", "", time.Now()).Cascaded(1))

	// Depth 2 == CascadeMaxDepth: must be dropped before rule C gets a
	// chance to see tag C and add D.
	engine.Handle(context.Background(), events.New(events.ConversationTagsChanged, "c1", "", time.Now()).Cascaded(2))

	got, _ := conv.GetByID(context.Background(), "c1")
	for _, tag := range got.Tags {
		if tag == "D" {
			t.Fatalf("expected tag D to never be added once the cascade hit CascadeMaxDepth, got tags %+v", got.Tags)
		}
	}
}

// TestHandle_NonMatchStillAppendsLog confirms a rule whose condition does
// not match still produces an audit row.
func TestHandle_NonMatchStillAppendsLog(t *testing.T) {
	engine, conv, rules := newTestEngine(t)
	createConversation(t, conv, "c1")

	rule := domain.AutomationRule{
		ID:                "r-a",
		Name:              "only-closed",
		Enabled:           true,
		EventSubscription: map[string]struct{}{string(events.ConversationCreated): {}},
		Condition:         domain.Condition{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "closed"},
		Action:            domain.Action{Kind: domain.ActionSetPriority, Params: map[string]any{"priority": "High"}},
		Priority:          10,
	}
	if err := rules.CreateRule(context.Background(), &rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	evt := events.New(events.ConversationCreated, "c1", "", time.Now())
	engine.Handle(context.Background(), evt)

	log := rules.EvaluationLog()
	if len(log) != 1 {
		t.Fatalf("expected 1 evaluation log row, got %d", len(log))
	}
	if log[0].Matched || log[0].ActionExecuted {
		t.Fatalf("expected non-match to skip action execution, got %+v", log[0])
	}

	got, _ := conv.GetByID(context.Background(), "c1")
	if got.Priority != nil {
		t.Fatalf("expected no priority mutation, got %+v", got.Priority)
	}
}

// TestHandle_NoRulesForEventIsANoop confirms the engine returns cleanly
// (no log rows) when no rule subscribes to the event.
func TestHandle_NoRulesForEventIsANoop(t *testing.T) {
	engine, conv, rules := newTestEngine(t)
	createConversation(t, conv, "c1")

	evt := events.New(events.ConversationCreated, "c1", "", time.Now())
	engine.Handle(context.Background(), evt)

	if len(rules.EvaluationLog()) != 0 {
		t.Fatalf("expected no evaluation rows when no rule subscribes")
	}
}
