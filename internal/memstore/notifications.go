package memstore

import (
	"context"
	"sync"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
)

// Notifications is an in-memory ports.UserNotificationRepository.
type Notifications struct {
	mu   sync.Mutex
	rows []domain.UserNotification
}

func NewNotifications() *Notifications {
	return &Notifications{}
}

func (r *Notifications) Create(ctx context.Context, n *domain.UserNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *n)
	return nil
}

// Rows returns a copy of every created row, for assertions.
func (r *Notifications) Rows() []domain.UserNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.UserNotification, len(r.rows))
	copy(out, r.rows)
	return out
}

var _ ports.UserNotificationRepository = (*Notifications)(nil)
