package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Sla is an in-memory ports.SlaRepository. MarkEventMet/MarkEventBreached
// enforce the §8 invariant 1 mutual exclusion: a Pending event may
// transition once, to Met or Breached, never both and never a second
// time.
type Sla struct {
	mu        sync.Mutex
	policies  map[string]*domain.SlaPolicy
	applied   map[string]*domain.AppliedSla // by conversation id
	events    map[string][]*domain.SlaEvent // by applied sla id
	holidays  map[string]map[string]struct{}
}

func NewSla() *Sla {
	return &Sla{
		policies: map[string]*domain.SlaPolicy{},
		applied:  map[string]*domain.AppliedSla{},
		events:   map[string][]*domain.SlaEvent{},
		holidays: map[string]map[string]struct{}{},
	}
}

func (r *Sla) PutPolicy(p domain.SlaPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.policies[p.ID] = &cp
}

func (r *Sla) GetPolicy(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.policies[id]
	if !ok {
		return nil, svcerrors.NewNotFound("sla_policy", id)
	}
	cp := *p
	return &cp, nil
}

func (r *Sla) ListPolicies(ctx context.Context) ([]domain.SlaPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SlaPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, *p)
	}
	return out, nil
}

func (r *Sla) CreatePolicy(ctx context.Context, p *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.policies[p.ID] = &cp
	return nil
}

func (r *Sla) UpdatePolicy(ctx context.Context, p *domain.SlaPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[p.ID]; !ok {
		return svcerrors.NewNotFound("sla_policy", p.ID)
	}
	cp := *p
	r.policies[p.ID] = &cp
	return nil
}

func (r *Sla) GetApplied(ctx context.Context, conversationID string) (*domain.AppliedSla, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.applied[conversationID]
	if !ok {
		return nil, svcerrors.NewNotFound("applied_sla", conversationID)
	}
	cp := *a
	return &cp, nil
}

func (r *Sla) GetAppliedByID(ctx context.Context, id string) (*domain.AppliedSla, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.applied {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, svcerrors.NewNotFound("applied_sla", id)
}

func (r *Sla) CreateApplied(ctx context.Context, a *domain.AppliedSla) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.applied[a.ConversationID]; exists {
		return svcerrors.NewConflict("SLA already applied")
	}
	cp := *a
	r.applied[a.ConversationID] = &cp
	return nil
}

func (r *Sla) UpdateAppliedStatus(ctx context.Context, id string, status domain.SlaStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.applied {
		if a.ID == id {
			a.Status = status
			return nil
		}
	}
	return svcerrors.NewNotFound("applied_sla", id)
}

func (r *Sla) GetEvents(ctx context.Context, appliedSlaID string) ([]domain.SlaEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SlaEvent
	for _, e := range r.events[appliedSlaID] {
		out = append(out, *e)
	}
	return out, nil
}

func (r *Sla) CreateEvent(ctx context.Context, e *domain.SlaEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events[e.AppliedSlaID] = append(r.events[e.AppliedSlaID], &cp)
	return nil
}

func (r *Sla) findEvent(eventID string) *domain.SlaEvent {
	for _, list := range r.events {
		for _, e := range list {
			if e.ID == eventID {
				return e
			}
		}
	}
	return nil
}

func (r *Sla) MarkEventMet(ctx context.Context, eventID string, metAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.findEvent(eventID)
	if e == nil {
		return svcerrors.NewNotFound("sla_event", eventID)
	}
	if e.Status != domain.SlaPending {
		return svcerrors.NewConflict("SLA event status is exclusive")
	}
	e.Status = domain.SlaMet
	e.MetAt = &metAt
	return nil
}

func (r *Sla) MarkEventBreached(ctx context.Context, eventID string, breachedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.findEvent(eventID)
	if e == nil {
		return svcerrors.NewNotFound("sla_event", eventID)
	}
	if e.Status != domain.SlaPending {
		return svcerrors.NewConflict("SLA event status is exclusive")
	}
	e.Status = domain.SlaBreached
	e.BreachedAt = &breachedAt
	return nil
}

func (r *Sla) GetPendingEventsPastDeadline(ctx context.Context, asOf time.Time) ([]domain.SlaEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SlaEvent
	for _, list := range r.events {
		for _, e := range list {
			if e.Status == domain.SlaPending && !e.DeadlineAt.After(asOf) {
				out = append(out, *e)
			}
		}
	}
	return out, nil
}

// PutHoliday seeds a holiday date ("2006-01-02") for a team, for test
// setup.
func (r *Sla) PutHoliday(teamID, date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.holidays[teamID] == nil {
		r.holidays[teamID] = map[string]struct{}{}
	}
	r.holidays[teamID][date] = struct{}{}
}

func (r *Sla) IsHoliday(ctx context.Context, teamID string, day time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.holidays[teamID][day.Format("2006-01-02")]
	return ok, nil
}

var _ ports.SlaRepository = (*Sla)(nil)
