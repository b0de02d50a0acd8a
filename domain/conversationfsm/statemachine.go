// Package conversationfsm implements the conversation state machine from
// spec.md §4.2: the allowed Open/Snoozed/Resolved/Closed transitions and
// their side effects. It decides what to write, not how — the caller
// (the action executor) is responsible for calling the repository with
// the returned field values under optimistic concurrency.
package conversationfsm

import (
	"time"

	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"

	"github.com/oxidesk/deskcore/domain"
)

// Effects is the set of field writes a transition produces, to be applied
// by ConversationRepository.UpdateFields.
type Effects struct {
	Status       domain.ConversationStatus
	ResolvedAt   *time.Time
	ClosedAt     *time.Time
	SnoozedUntil *time.Time
}

// Transition validates from -> to and computes its side effects. now is
// the clock reading to stamp resolved_at/closed_at/snoozed_until with.
// snoozeDuration is only consulted (and required) when to == Snoozed.
func Transition(from, to domain.ConversationStatus, snoozeDuration string, now time.Time) (Effects, error) {
	if !allowed(from, to) {
		return Effects{}, svcerrors.NewBadRequest("Invalid transition: %s -> %s", from, to)
	}

	eff := Effects{Status: to}

	switch to {
	case domain.StatusResolved:
		eff.ResolvedAt = &now

	case domain.StatusClosed:
		eff.ClosedAt = &now

	case domain.StatusSnoozed:
		delta, err := domain.ParseDurationLiteral(snoozeDuration, true)
		if err != nil {
			return Effects{}, svcerrors.NewBadRequest("Invalid transition: %s -> %s: %v", from, to, err)
		}
		until := now.Add(delta)
		eff.SnoozedUntil = &until

	case domain.StatusOpen:
		// resolved_at is cleared by leaving eff.ResolvedAt nil and telling
		// the caller this is a clearing transition: the caller checks
		// ClearsResolvedAt and passes a nil resolved_at to UpdateFields,
		// which writes whatever value it is given.
	}

	return eff, nil
}

// ClearsResolvedAt reports whether applying this transition must null out
// resolved_at even though Effects.ResolvedAt itself is nil (Resolved ->
// Open, spec.md §4.2).
func ClearsResolvedAt(from, to domain.ConversationStatus) bool {
	return from == domain.StatusResolved && to == domain.StatusOpen
}

var adjacency = map[domain.ConversationStatus]map[domain.ConversationStatus]bool{
	domain.StatusOpen: {
		domain.StatusSnoozed:  true,
		domain.StatusResolved: true,
	},
	domain.StatusSnoozed: {
		domain.StatusOpen:     true,
		domain.StatusResolved: true,
	},
	domain.StatusResolved: {
		domain.StatusOpen:   true,
		domain.StatusClosed: true,
	},
	domain.StatusClosed: {},
}

func allowed(from, to domain.ConversationStatus) bool {
	if from == to {
		return false
	}
	edges, ok := adjacency[from]
	if !ok {
		return false
	}
	return edges[to]
}
