package memstore

import (
	"context"
	"sync"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Webhooks is an in-memory ports.WebhookRepository.
type Webhooks struct {
	mu         sync.Mutex
	byID       map[string]*domain.Webhook
	deliveries []*domain.Delivery
}

func NewWebhooks() *Webhooks {
	return &Webhooks{byID: map[string]*domain.Webhook{}}
}

func (r *Webhooks) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, svcerrors.NewNotFound("webhook", id)
	}
	cp := *w
	return &cp, nil
}

func (r *Webhooks) ListActiveForEvent(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Webhook
	for _, w := range r.byID {
		if w.IsActive && w.Subscribes(eventType) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *Webhooks) Create(ctx context.Context, w *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.byID[w.ID] = &cp
	return nil
}

func (r *Webhooks) Update(ctx context.Context, w *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[w.ID]; !ok {
		return svcerrors.NewNotFound("webhook", w.ID)
	}
	cp := *w
	r.byID[w.ID] = &cp
	return nil
}

func (r *Webhooks) RecordDelivery(ctx context.Context, d *domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.deliveries {
		if existing.ID == d.ID {
			cp := *d
			r.deliveries[i] = &cp
			return nil
		}
	}
	cp := *d
	r.deliveries = append(r.deliveries, &cp)
	return nil
}

func (r *Webhooks) PendingDeliveries(ctx context.Context, limit int) ([]domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Delivery
	for _, d := range r.deliveries {
		if d.Status == domain.DeliveryQueued {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

var _ ports.WebhookRepository = (*Webhooks)(nil)
