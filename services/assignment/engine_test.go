package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
	"github.com/oxidesk/deskcore/internal/memstore"
)

type fixture struct {
	engine *Engine
	conv   *memstore.Conversations
	agents *memstore.Agents
	teams  *memstore.Teams
	perms  *memstore.Permissions
	hist   *memstore.AssignmentHistory
	notifs *memstore.Notifications
	bus    *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conv := memstore.NewConversations()
	agents := memstore.NewAgents()
	teams := memstore.NewTeams()
	perms := memstore.NewPermissions()
	hist := memstore.NewAssignmentHistory()
	notifs := memstore.NewNotifications()
	bus := events.New(16)
	clock := memstore.NewFixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	engine := New(conv, teams, agents, perms, hist, notifs, bus, clock, nil, nil)
	return &fixture{engine, conv, agents, teams, perms, hist, notifs, bus}
}

func mkConversation(t *testing.T, conv *memstore.Conversations, id string) {
	t.Helper()
	if err := conv.Create(context.Background(), &domain.Conversation{ID: id, Status: domain.StatusOpen, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestAssignToAgent_RequiresPermission(t *testing.T) {
	f := newFixture(t)
	mkConversation(t, f.conv, "c1")
	f.agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityOnline})

	err := f.engine.AssignToAgent(context.Background(), "c1", "u1", "actor1")
	if !svcerrors.Is(err, svcerrors.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestAssignToAgent_SuccessWritesHistoryAndEvent(t *testing.T) {
	f := newFixture(t)
	mkConversation(t, f.conv, "c1")
	f.agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityOnline})
	f.perms.Grant("actor1", permUpdateUserAssignee)
	sub := f.bus.Subscribe()
	defer sub.Close()

	if err := f.engine.AssignToAgent(context.Background(), "c1", "u1", "actor1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	got, _ := f.conv.GetByID(context.Background(), "c1")
	if got.AssignedUserID == nil || *got.AssignedUserID != "u1" {
		t.Fatalf("expected assigned to u1, got %+v", got.AssignedUserID)
	}
	if len(f.hist.Rows()) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(f.hist.Rows()))
	}
	if len(f.notifs.Rows()) != 1 {
		t.Fatalf("expected 1 notification row, got %d", len(f.notifs.Rows()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	if err != nil || ev.Type != events.ConversationAssigned {
		t.Fatalf("expected assigned event, got %v err %v", ev, err)
	}
}

func TestAssignToAgent_IdempotentOnRepeat(t *testing.T) {
	f := newFixture(t)
	mkConversation(t, f.conv, "c1")
	f.agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityOnline})
	f.perms.Grant("actor1", permUpdateUserAssignee)

	if err := f.engine.AssignToAgent(context.Background(), "c1", "u1", "actor1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if err := f.engine.AssignToAgent(context.Background(), "c1", "u1", "actor1"); err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if len(f.hist.Rows()) != 1 {
		t.Fatalf("expected repeat assignment to be a no-op, got %d history rows", len(f.hist.Rows()))
	}
}

func TestAutoUnassignOnAway_ClearsOpenConversationsAndGoesOffline(t *testing.T) {
	f := newFixture(t)
	mkConversation(t, f.conv, "c1")
	mkConversation(t, f.conv, "c2")
	f.agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityAwayAndReassigning})
	f.perms.Grant("actor1", permUpdateUserAssignee)
	if err := f.engine.AssignToAgent(context.Background(), "c1", "u1", "actor1"); err != nil {
		t.Fatalf("assign c1: %v", err)
	}
	if err := f.engine.AssignToAgent(context.Background(), "c2", "u1", "actor1"); err != nil {
		t.Fatalf("assign c2: %v", err)
	}

	sub := f.bus.Subscribe()
	defer sub.Close()

	if err := f.engine.AutoUnassignOnAway(context.Background(), "u1"); err != nil {
		t.Fatalf("auto unassign: %v", err)
	}

	c1, _ := f.conv.GetByID(context.Background(), "c1")
	c2, _ := f.conv.GetByID(context.Background(), "c2")
	if c1.AssignedUserID != nil || c2.AssignedUserID != nil {
		t.Fatalf("expected both conversations unassigned, got %+v %+v", c1.AssignedUserID, c2.AssignedUserID)
	}

	agent, _ := f.agents.GetByID(context.Background(), "u1")
	if agent.Status != domain.AvailabilityOffline {
		t.Fatalf("expected agent Offline after auto-unassign, got %v", agent.Status)
	}

	// Exactly one ConversationUnassigned per affected conversation, not
	// one aggregate event carrying a count.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		ev, err := sub.Recv(ctx)
		if err != nil {
			t.Fatalf("recv event %d: %v", i, err)
		}
		if ev.Type != events.ConversationUnassigned {
			t.Fatalf("expected ConversationUnassigned, got %v", ev.Type)
		}
		if ev.ConversationID == "" {
			t.Fatalf("expected a conversation-scoped event, got empty ConversationID")
		}
		seen[ev.ConversationID] = true
	}
	if !seen["c1"] || !seen["c2"] {
		t.Fatalf("expected one event each for c1 and c2, got %+v", seen)
	}
}

func TestHasConversationAccess(t *testing.T) {
	f := newFixture(t)
	mkConversation(t, f.conv, "c1")
	f.agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityOnline})
	f.perms.Grant("actor1", permUpdateUserAssignee)
	if err := f.engine.AssignToAgent(context.Background(), "c1", "u1", "actor1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	ok, err := f.engine.HasConversationAccess(context.Background(), "c1", "u1")
	if err != nil || !ok {
		t.Fatalf("expected access for assigned user, got %v err %v", ok, err)
	}
	ok, err = f.engine.HasConversationAccess(context.Background(), "c1", "someone-else")
	if err != nil || ok {
		t.Fatalf("expected no access for unrelated user, got %v err %v", ok, err)
	}
}
