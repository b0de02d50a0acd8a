package actionexecutor

import (
	"context"
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/internal/memstore"
)

func newTestExecutor(t *testing.T) (*Executor, *memstore.Conversations, *events.Bus) {
	t.Helper()
	conv := memstore.NewConversations()
	agents := memstore.NewAgents()
	teams := memstore.NewTeams()
	bus := events.New(16)
	clock := memstore.NewFixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(conv, agents, teams, bus, clock, nil), conv, bus
}

func createConversation(t *testing.T, conv *memstore.Conversations, id string) {
	t.Helper()
	c := &domain.Conversation{ID: id, Status: domain.StatusOpen, CreatedAt: time.Now()}
	if err := conv.Create(context.Background(), c); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestExecute_SetPriority(t *testing.T) {
	exec, conv, bus := newTestExecutor(t)
	createConversation(t, conv, "c1")
	sub := bus.Subscribe()
	defer sub.Close()

	action := domain.Action{Kind: domain.ActionSetPriority, Params: map[string]any{"priority": "High"}}
	res := exec.Execute(context.Background(), action, "c1", "actor1", 0)
	if res.Outcome != domain.ActionSuccess {
		t.Fatalf("outcome = %v, err = %v", res.Outcome, res.Err)
	}

	got, _ := conv.GetByID(context.Background(), "c1")
	if got.Priority == nil || *got.Priority != domain.PriorityHigh {
		t.Fatalf("priority not set: %+v", got.Priority)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	if err != nil || ev.Type != events.ConversationPriorityChanged {
		t.Fatalf("expected priority changed event, got %v err %v", ev, err)
	}

	// Same value again: idempotent no-op, no new event.
	res2 := exec.Execute(context.Background(), action, "c1", "actor1", 0)
	if res2.Outcome != domain.ActionSkipped {
		t.Fatalf("expected skipped on repeat, got %v", res2.Outcome)
	}
}

func TestExecute_SetPriority_InvalidValue(t *testing.T) {
	exec, conv, _ := newTestExecutor(t)
	createConversation(t, conv, "c1")
	action := domain.Action{Kind: domain.ActionSetPriority, Params: map[string]any{"priority": "Urgent"}}
	res := exec.Execute(context.Background(), action, "c1", "actor1", 0)
	if res.Outcome != domain.ActionError {
		t.Fatalf("expected ActionError, got %v", res.Outcome)
	}
}

func TestExecute_ChangeStatus_InvalidTransitionIsError(t *testing.T) {
	exec, conv, _ := newTestExecutor(t)
	createConversation(t, conv, "c1")
	action := domain.Action{Kind: domain.ActionChangeStatus, Params: map[string]any{"status": "closed"}}
	res := exec.Execute(context.Background(), action, "c1", "actor1", 0)
	if res.Outcome != domain.ActionFailure && res.Outcome != domain.ActionError {
		t.Fatalf("expected a rejected transition, got %v (%v)", res.Outcome, res.Err)
	}
}

func TestExecute_ChangeStatus_ResolvedSetsTimestamp(t *testing.T) {
	exec, conv, _ := newTestExecutor(t)
	createConversation(t, conv, "c1")
	action := domain.Action{Kind: domain.ActionChangeStatus, Params: map[string]any{"status": "resolved"}}
	res := exec.Execute(context.Background(), action, "c1", "actor1", 0)
	if res.Outcome != domain.ActionSuccess {
		t.Fatalf("outcome = %v, err = %v", res.Outcome, res.Err)
	}
	got, _ := conv.GetByID(context.Background(), "c1")
	if got.Status != domain.StatusResolved || got.ResolvedAt == nil {
		t.Fatalf("expected resolved with resolved_at set, got %+v", got)
	}
}

func TestExecute_AddTag_IdempotentOnRepeat(t *testing.T) {
	exec, conv, _ := newTestExecutor(t)
	createConversation(t, conv, "c1")
	action := domain.Action{Kind: domain.ActionAddTag, Params: map[string]any{"tag_name": "vip"}}

	res1 := exec.Execute(context.Background(), action, "c1", "actor1", 0)
	if res1.Outcome != domain.ActionSuccess {
		t.Fatalf("first add: outcome = %v, err = %v", res1.Outcome, res1.Err)
	}
	res2 := exec.Execute(context.Background(), action, "c1", "actor1", 0)
	if res2.Outcome != domain.ActionSkipped {
		t.Fatalf("second add: outcome = %v, want skipped", res2.Outcome)
	}

	tags, _ := conv.GetTags(context.Background(), "c1")
	if len(tags) != 1 || tags[0] != "vip" {
		t.Fatalf("unexpected tags: %v", tags)
	}
}

func TestExecute_UnknownActionKind(t *testing.T) {
	exec, conv, _ := newTestExecutor(t)
	createConversation(t, conv, "c1")
	res := exec.Execute(context.Background(), domain.Action{Kind: "Bogus"}, "c1", "actor1", 0)
	if res.Outcome != domain.ActionError {
		t.Fatalf("expected ActionError, got %v", res.Outcome)
	}
}
