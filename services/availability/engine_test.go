package availability

import (
	"context"
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
	"github.com/oxidesk/deskcore/internal/memstore"
)

type stubUnassigner struct {
	calledFor []string
}

func (s *stubUnassigner) AutoUnassignOnAway(ctx context.Context, userID string) error {
	s.calledFor = append(s.calledFor, userID)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *memstore.Agents, *memstore.FixedClock, *events.Bus) {
	t.Helper()
	agents := memstore.NewAgents()
	bus := events.New(16)
	clock := memstore.NewFixedClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	return New(agents, bus, clock, DefaultConfig(), nil), agents, clock, bus
}

func TestHandleLogin_SetsOnlineAndStampsTimestamps(t *testing.T) {
	engine, agents, clock, bus := newTestEngine(t)
	agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityOffline})
	sub := bus.Subscribe()
	defer sub.Close()

	if err := engine.HandleLogin(context.Background(), "u1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	got, _ := agents.GetByID(context.Background(), "u1")
	if got.Status != domain.AvailabilityOnline || got.LastLoginAt == nil || !got.LastLoginAt.Equal(clock.Now()) {
		t.Fatalf("unexpected agent state: %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	if err != nil || ev.Type != events.AgentLoggedIn {
		t.Fatalf("expected AgentLoggedIn first, got %v err %v", ev, err)
	}
	ev, err = sub.Recv(ctx)
	if err != nil || ev.Type != events.AgentAvailabilityChanged {
		t.Fatalf("expected AgentAvailabilityChanged second, got %v err %v", ev, err)
	}
}

func TestSetManual_RejectsAwayAndReassigning(t *testing.T) {
	engine, agents, _, _ := newTestEngine(t)
	agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityOnline})

	err := engine.SetManual(context.Background(), "u1", domain.AvailabilityAwayAndReassigning)
	if !svcerrors.Is(err, svcerrors.BadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestCheckAvailability_OnlineToAwayOnInactivity(t *testing.T) {
	engine, agents, clock, _ := newTestEngine(t)
	agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityOnline, LastActivityAt: clock.Now().Add(-10 * time.Minute)})

	if err := engine.CheckAvailability(context.Background()); err != nil {
		t.Fatalf("check availability: %v", err)
	}

	got, _ := agents.GetByID(context.Background(), "u1")
	if got.Status != domain.AvailabilityAway {
		t.Fatalf("expected Away, got %v", got.Status)
	}
}

func TestCheckAvailability_AwayToAwayAndReassigningTriggersUnassign(t *testing.T) {
	engine, agents, clock, _ := newTestEngine(t)
	awaySince := clock.Now().Add(-1 * time.Hour)
	agents.Put(domain.AgentAvailability{UserID: "u1", Status: domain.AvailabilityAway, AwaySince: &awaySince})
	unassigner := &stubUnassigner{}
	engine.SetUnassigner(unassigner)

	if err := engine.CheckAvailability(context.Background()); err != nil {
		t.Fatalf("check availability: %v", err)
	}

	if len(unassigner.calledFor) != 1 || unassigner.calledFor[0] != "u1" {
		t.Fatalf("expected auto-unassign invoked for u1, got %v", unassigner.calledFor)
	}
	logs := agents.Logs()
	if len(logs) != 1 || logs[0].NewStatus != domain.AvailabilityAwayAndReassigning {
		t.Fatalf("expected one activity log row for the reassigning transition, got %+v", logs)
	}
}
