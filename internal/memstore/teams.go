package memstore

import (
	"context"
	"sync"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Teams is an in-memory ports.TeamRepository.
type Teams struct {
	mu   sync.Mutex
	byID map[string]*domain.Team
}

func NewTeams() *Teams {
	return &Teams{byID: map[string]*domain.Team{}}
}

// Put seeds or overwrites a team record, for test setup.
func (r *Teams) Put(t domain.Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := t
	r.byID[t.ID] = &cp
}

func (r *Teams) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, svcerrors.NewNotFound("team", id)
	}
	cp := *t
	return &cp, nil
}

func (r *Teams) List(ctx context.Context) ([]domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Team, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, *t)
	}
	return out, nil
}

func (r *Teams) Members(ctx context.Context, teamID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[teamID]
	if !ok {
		return nil, svcerrors.NewNotFound("team", teamID)
	}
	out := make([]string, 0, len(t.MemberUserIDs))
	for u := range t.MemberUserIDs {
		out = append(out, u)
	}
	return out, nil
}

func (r *Teams) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[teamID]
	if !ok {
		return false, svcerrors.NewNotFound("team", teamID)
	}
	return t.IsMember(userID), nil
}

func (r *Teams) GetUserTeams(ctx context.Context, userID string) ([]domain.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Team
	for _, t := range r.byID {
		if t.IsMember(userID) {
			out = append(out, *t)
		}
	}
	return out, nil
}

var _ ports.TeamRepository = (*Teams)(nil)
