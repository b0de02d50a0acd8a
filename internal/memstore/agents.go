package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Agents is an in-memory ports.AgentRepository.
type Agents struct {
	mu   sync.Mutex
	byID map[string]*domain.AgentAvailability
	logs []domain.AgentActivityLog
}

func NewAgents() *Agents {
	return &Agents{byID: map[string]*domain.AgentAvailability{}}
}

// Put seeds or overwrites an agent record, for test setup.
func (r *Agents) Put(a domain.AgentAvailability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := a
	r.byID[a.UserID] = &cp
}

func (r *Agents) GetByID(ctx context.Context, userID string) (*domain.AgentAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[userID]
	if !ok {
		return nil, svcerrors.NewNotFound("agent", userID)
	}
	cp := *a
	return &cp, nil
}

func (r *Agents) UpdateAvailability(ctx context.Context, userID string, status domain.AvailabilityStatus, reason domain.AvailabilityChangeReason, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[userID]
	if !ok {
		return svcerrors.NewNotFound("agent", userID)
	}
	a.Status = status
	if status == domain.AvailabilityAway || status == domain.AvailabilityAwayManual {
		a.AwaySince = &at
	} else {
		a.AwaySince = nil
	}
	return nil
}

func (r *Agents) UpdateActivity(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[userID]
	if !ok {
		return svcerrors.NewNotFound("agent", userID)
	}
	a.LastActivityAt = at
	return nil
}

func (r *Agents) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[userID]
	if !ok {
		return svcerrors.NewNotFound("agent", userID)
	}
	a.LastLoginAt = &at
	return nil
}

func (r *Agents) GetInactiveOnline(ctx context.Context, cutoff time.Time) ([]domain.AgentAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AgentAvailability
	for _, a := range r.byID {
		if a.Status == domain.AvailabilityOnline && a.LastActivityAt.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *Agents) GetIdleAway(ctx context.Context, cutoff time.Time) ([]domain.AgentAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AgentAvailability
	for _, a := range r.byID {
		if (a.Status == domain.AvailabilityAway || a.Status == domain.AvailabilityAwayManual) &&
			a.AwaySince != nil && a.AwaySince.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *Agents) AppendActivityLog(ctx context.Context, log *domain.AgentActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

// Logs returns a copy of every appended activity log row, for assertions.
func (r *Agents) Logs() []domain.AgentActivityLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AgentActivityLog, len(r.logs))
	copy(out, r.logs)
	return out
}

var _ ports.AgentRepository = (*Agents)(nil)
