package memstore

import (
	"context"
	"sync"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
)

// AssignmentHistory is an in-memory ports.AssignmentHistoryRepository.
type AssignmentHistory struct {
	mu  sync.Mutex
	log []domain.AssignmentHistory
}

func NewAssignmentHistory() *AssignmentHistory {
	return &AssignmentHistory{}
}

func (r *AssignmentHistory) Append(ctx context.Context, h *domain.AssignmentHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, *h)
	return nil
}

// Rows returns a copy of every appended row, for assertions.
func (r *AssignmentHistory) Rows() []domain.AssignmentHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AssignmentHistory, len(r.log))
	copy(out, r.log)
	return out
}

var _ ports.AssignmentHistoryRepository = (*AssignmentHistory)(nil)
