package slaengine

import (
	"context"
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/events"
	"github.com/oxidesk/deskcore/internal/memstore"
)

func newTestEngine(t *testing.T) (*Engine, *memstore.Sla, *memstore.Conversations, *memstore.Teams, *memstore.FixedClock) {
	t.Helper()
	sla := memstore.NewSla()
	conv := memstore.NewConversations()
	teams := memstore.NewTeams()
	bus := events.New(16)
	clock := memstore.NewFixedClock(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)) // Monday 9am UTC
	return New(sla, conv, teams, bus, clock, nil), sla, conv, teams, clock
}

func createConversation(t *testing.T, conv *memstore.Conversations, id string, teamID *string, createdAt time.Time) {
	t.Helper()
	c := &domain.Conversation{ID: id, Status: domain.StatusOpen, AssignedTeamID: teamID, CreatedAt: createdAt}
	if err := conv.Create(context.Background(), c); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestApply_WallClockWithoutTeam(t *testing.T) {
	engine, sla, conv, _, clock := newTestEngine(t)
	createConversation(t, conv, "c1", nil, clock.Now())
	sla.PutPolicy(domain.SlaPolicy{ID: "p1", FirstResponseTime: time.Hour, ResolutionTime: 24 * time.Hour})

	applied, err := engine.Apply(context.Background(), "c1", "p1", clock.Now())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied.FirstResponseDeadline.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("expected wall-clock first response deadline, got %v", applied.FirstResponseDeadline)
	}
	if applied.Status != domain.SlaPending {
		t.Fatalf("expected Pending, got %v", applied.Status)
	}
}

func TestApply_RejectsDuplicate(t *testing.T) {
	engine, sla, conv, _, clock := newTestEngine(t)
	createConversation(t, conv, "c1", nil, clock.Now())
	sla.PutPolicy(domain.SlaPolicy{ID: "p1", FirstResponseTime: time.Hour, ResolutionTime: 24 * time.Hour})

	if _, err := engine.Apply(context.Background(), "c1", "p1", clock.Now()); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := engine.Apply(context.Background(), "c1", "p1", clock.Now()); err == nil {
		t.Fatalf("expected second apply to be rejected")
	}
}

func businessHours9to5() *domain.BusinessHours {
	open := 9 * time.Hour
	close := 17 * time.Hour
	bh := &domain.BusinessHours{Timezone: "UTC", Holidays: map[string]struct{}{}}
	for d := time.Monday; d <= time.Friday; d++ {
		bh.Weekly[d] = domain.DaySchedule{Open: open, Close: close}
	}
	return bh
}

func TestApply_BusinessHoursSkipsNonBusinessTime(t *testing.T) {
	engine, sla, conv, teams, clock := newTestEngine(t)
	teams.Put(domain.Team{ID: "team1", BusinessHours: businessHours9to5()})
	createConversation(t, conv, "c1", strPtr("team1"), clock.Now())
	sla.PutPolicy(domain.SlaPolicy{ID: "p1", FirstResponseTime: 2 * time.Hour, ResolutionTime: time.Hour})

	// clock is Monday 9am UTC, inside business hours: 2h should land at 11am same day.
	applied, err := engine.Apply(context.Background(), "c1", "p1", clock.Now())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	want := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)
	if !applied.FirstResponseDeadline.Equal(want) {
		t.Fatalf("expected %v, got %v", want, applied.FirstResponseDeadline)
	}
}

func TestApply_BusinessHoursCrossesWeekend(t *testing.T) {
	engine, sla, conv, teams, _ := newTestEngine(t)
	teams.Put(domain.Team{ID: "team1", BusinessHours: businessHours9to5()})
	friday4pm := time.Date(2025, 1, 10, 16, 0, 0, 0, time.UTC) // Friday 4pm UTC
	createConversation(t, conv, "c1", strPtr("team1"), friday4pm)
	sla.PutPolicy(domain.SlaPolicy{ID: "p1", FirstResponseTime: 2 * time.Hour, ResolutionTime: time.Hour})

	applied, err := engine.Apply(context.Background(), "c1", "p1", friday4pm)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// Only 1 business hour left Friday (4pm-5pm); remaining 1h must roll to Monday 9am.
	want := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)
	if !applied.FirstResponseDeadline.Equal(want) {
		t.Fatalf("expected %v, got %v", want, applied.FirstResponseDeadline)
	}
}

func TestCheckBreaches_MarksPastDeadlinePending(t *testing.T) {
	engine, sla, conv, _, clock := newTestEngine(t)
	createConversation(t, conv, "c1", nil, clock.Now())
	sla.PutPolicy(domain.SlaPolicy{ID: "p1", FirstResponseTime: time.Hour, ResolutionTime: 24 * time.Hour})
	applied, err := engine.Apply(context.Background(), "c1", "p1", clock.Now())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if err := engine.CheckBreaches(context.Background()); err != nil {
		t.Fatalf("check breaches: %v", err)
	}

	got, err := sla.GetAppliedByID(context.Background(), applied.ID)
	if err != nil {
		t.Fatalf("get applied: %v", err)
	}
	if got.Status != domain.SlaBreached {
		t.Fatalf("expected aggregate Breached after first-response breach, got %v", got.Status)
	}
}

func TestOnResolved_MarksResolutionMetAndRecomputesAggregate(t *testing.T) {
	engine, sla, conv, _, clock := newTestEngine(t)
	createConversation(t, conv, "c1", nil, clock.Now())
	sla.PutPolicy(domain.SlaPolicy{ID: "p1", FirstResponseTime: time.Hour, ResolutionTime: 2 * time.Hour})
	applied, err := engine.Apply(context.Background(), "c1", "p1", clock.Now())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := engine.OnAgentMessage(context.Background(), "c1", clock.Now()); err != nil {
		t.Fatalf("on agent message: %v", err)
	}
	if err := engine.OnResolved(context.Background(), "c1", clock.Now()); err != nil {
		t.Fatalf("on resolved: %v", err)
	}

	got, err := sla.GetAppliedByID(context.Background(), applied.ID)
	if err != nil {
		t.Fatalf("get applied: %v", err)
	}
	if got.Status != domain.SlaMet {
		t.Fatalf("expected aggregate Met once both clocks are satisfied, got %v", got.Status)
	}
}

func strPtr(s string) *string { return &s }
