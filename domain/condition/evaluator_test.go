package condition

import (
	"testing"
	"time"

	"github.com/oxidesk/deskcore/domain"
)

func snap(status domain.ConversationStatus, priority *domain.Priority, tags []string) domain.Snapshot {
	return domain.Snapshot{
		ID:        "c-1",
		Status:    status,
		Priority:  priority,
		Tags:      tags,
		CreatedAt: time.Now(),
	}
}

func ptr(p domain.Priority) *domain.Priority { return &p }

func TestEvaluate_SimpleEquals(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	cond := domain.Condition{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "open"}
	if got := Evaluate(cond, s); got != domain.ConditionTrue {
		t.Fatalf("got %v, want true", got)
	}
	cond.Value = "closed"
	if got := Evaluate(cond, s); got != domain.ConditionFalse {
		t.Fatalf("got %v, want false", got)
	}
}

func TestEvaluate_UnknownAttributeIsError(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	cond := domain.Condition{Kind: domain.ConditionSimple, Attribute: "subject", Op: domain.OpEquals, Value: "x"}
	if got := Evaluate(cond, s); got != domain.ConditionError {
		t.Fatalf("got %v, want error", got)
	}
}

func TestEvaluate_TagsContains(t *testing.T) {
	s := snap(domain.StatusOpen, nil, []string{"vip", "billing"})
	cond := domain.Condition{Kind: domain.ConditionSimple, Attribute: "tags", Op: domain.OpContains, Value: "vip"}
	if got := Evaluate(cond, s); got != domain.ConditionTrue {
		t.Fatalf("got %v, want true", got)
	}
	cond.Value = "refund"
	if got := Evaluate(cond, s); got != domain.ConditionFalse {
		t.Fatalf("got %v, want false", got)
	}
}

func TestEvaluate_PriorityIn(t *testing.T) {
	s := snap(domain.StatusOpen, ptr(domain.PriorityHigh), nil)
	cond := domain.Condition{Kind: domain.ConditionSimple, Attribute: "priority", Op: domain.OpIn, Value: []any{"low", "high"}}
	if got := Evaluate(cond, s); got != domain.ConditionTrue {
		t.Fatalf("got %v, want true", got)
	}
}

func TestEvaluate_NullPriorityNotEquals(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	cond := domain.Condition{Kind: domain.ConditionSimple, Attribute: "priority", Op: domain.OpEquals, Value: "high"}
	if got := Evaluate(cond, s); got != domain.ConditionFalse {
		t.Fatalf("got %v, want false", got)
	}
}

func TestEvaluate_AndShortCircuits(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	cond := domain.Condition{
		Kind: domain.ConditionAnd,
		Children: []domain.Condition{
			{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "closed"},
			{Kind: domain.ConditionSimple, Attribute: "bogus", Op: domain.OpEquals, Value: "x"},
		},
	}
	// first child is false, so the second (erroring) child must never run.
	if got := Evaluate(cond, s); got != domain.ConditionFalse {
		t.Fatalf("got %v, want false", got)
	}
}

func TestEvaluate_OrShortCircuits(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	cond := domain.Condition{
		Kind: domain.ConditionOr,
		Children: []domain.Condition{
			{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "open"},
			{Kind: domain.ConditionSimple, Attribute: "bogus", Op: domain.OpEquals, Value: "x"},
		},
	}
	if got := Evaluate(cond, s); got != domain.ConditionTrue {
		t.Fatalf("got %v, want true", got)
	}
}

func TestEvaluate_OrPropagatesErrorWhenNoneMatch(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	cond := domain.Condition{
		Kind: domain.ConditionOr,
		Children: []domain.Condition{
			{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "closed"},
			{Kind: domain.ConditionSimple, Attribute: "bogus", Op: domain.OpEquals, Value: "x"},
		},
	}
	if got := Evaluate(cond, s); got != domain.ConditionError {
		t.Fatalf("got %v, want error", got)
	}
}

func TestEvaluate_NotInvertsAndPropagatesError(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	notTrue := domain.Condition{
		Kind:  domain.ConditionNot,
		Child: &domain.Condition{Kind: domain.ConditionSimple, Attribute: "status", Op: domain.OpEquals, Value: "open"},
	}
	if got := Evaluate(notTrue, s); got != domain.ConditionFalse {
		t.Fatalf("got %v, want false", got)
	}

	notError := domain.Condition{
		Kind:  domain.ConditionNot,
		Child: &domain.Condition{Kind: domain.ConditionSimple, Attribute: "bogus", Op: domain.OpEquals, Value: "open"},
	}
	if got := Evaluate(notError, s); got != domain.ConditionError {
		t.Fatalf("got %v, want error", got)
	}
}

func TestEvaluate_AssignedUserIDEquality(t *testing.T) {
	s := snap(domain.StatusOpen, nil, nil)
	userID := "u-42"
	s.AssignedUserID = &userID

	cond := domain.Condition{Kind: domain.ConditionSimple, Attribute: "assigned_user_id", Op: domain.OpEquals, Value: "u-42"}
	if got := Evaluate(cond, s); got != domain.ConditionTrue {
		t.Fatalf("got %v, want true", got)
	}
}
