package conversationfsm

import (
	"testing"
	"time"

	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"

	"github.com/oxidesk/deskcore/domain"
)

func TestTransition_OpenToSnoozedRequiresDuration(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	eff, err := Transition(domain.StatusOpen, domain.StatusSnoozed, "2h", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := now.Add(2 * time.Hour)
	if eff.SnoozedUntil == nil || !eff.SnoozedUntil.Equal(want) {
		t.Fatalf("snoozed_until = %v, want %v", eff.SnoozedUntil, want)
	}

	if _, err := Transition(domain.StatusOpen, domain.StatusSnoozed, "not-a-duration", now); err == nil {
		t.Fatalf("expected error for malformed snooze_duration")
	}
}

func TestTransition_ResolvedSetsTimestamp(t *testing.T) {
	now := time.Now()
	eff, err := Transition(domain.StatusOpen, domain.StatusResolved, "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eff.ResolvedAt == nil || !eff.ResolvedAt.Equal(now) {
		t.Fatalf("resolved_at not set to now")
	}
}

func TestTransition_ClosedSetsTimestamp(t *testing.T) {
	now := time.Now()
	eff, err := Transition(domain.StatusResolved, domain.StatusClosed, "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eff.ClosedAt == nil || !eff.ClosedAt.Equal(now) {
		t.Fatalf("closed_at not set to now")
	}
}

func TestTransition_ResolvedToOpenClearsResolvedAt(t *testing.T) {
	if !ClearsResolvedAt(domain.StatusResolved, domain.StatusOpen) {
		t.Fatalf("expected Resolved -> Open to clear resolved_at")
	}
	if ClearsResolvedAt(domain.StatusSnoozed, domain.StatusOpen) {
		t.Fatalf("Snoozed -> Open should not be flagged as clearing")
	}
}

func TestTransition_InvalidTransitionsRejected(t *testing.T) {
	cases := []struct{ from, to domain.ConversationStatus }{
		{domain.StatusOpen, domain.StatusClosed},
		{domain.StatusSnoozed, domain.StatusClosed},
		{domain.StatusClosed, domain.StatusOpen},
		{domain.StatusResolved, domain.StatusSnoozed},
		{domain.StatusOpen, domain.StatusOpen},
	}
	for _, c := range cases {
		_, err := Transition(c.from, c.to, "1h", time.Now())
		if err == nil {
			t.Fatalf("%s -> %s: expected error", c.from, c.to)
		}
		if svcerrors.KindOf(err) != svcerrors.BadRequest {
			t.Fatalf("%s -> %s: expected BadRequest, got %v", c.from, c.to, err)
		}
	}
}
