package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Webhooks is a ports.WebhookRepository over `webhooks` and
// `webhook_deliveries`.
type Webhooks struct {
	db *DB
}

func NewWebhooks(db *DB) *Webhooks {
	return &Webhooks{db: db}
}

func scanWebhook(row interface{ Scan(...any) error }) (*domain.Webhook, error) {
	var w domain.Webhook
	var events pq.StringArray
	if err := row.Scan(&w.ID, &w.URL, &events, &w.Secret, &w.IsActive); err != nil {
		return nil, err
	}
	w.SubscribedEvents = make(map[string]struct{}, len(events))
	for _, e := range events {
		w.SubscribedEvents[e] = struct{}{}
	}
	return &w, nil
}

func subscribedEventsList(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for e := range m {
		out = append(out, e)
	}
	return out
}

func (r *Webhooks) GetByID(ctx context.Context, id string) (*domain.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, url, subscribed_events, secret, is_active FROM webhooks WHERE id = $1`, id)
	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("webhook", id)
	}
	return w, err
}

func (r *Webhooks) ListActiveForEvent(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, url, subscribed_events, secret, is_active FROM webhooks
		WHERE is_active = true AND $1 = ANY(subscribed_events)
	`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *Webhooks) Create(ctx context.Context, w *domain.Webhook) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, url, subscribed_events, secret, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`, w.ID, w.URL, pq.Array(subscribedEventsList(w.SubscribedEvents)), w.Secret, w.IsActive)
	return err
}

func (r *Webhooks) Update(ctx context.Context, w *domain.Webhook) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE webhooks SET url = $1, subscribed_events = $2, secret = $3, is_active = $4 WHERE id = $5
	`, w.URL, pq.Array(subscribedEventsList(w.SubscribedEvents)), w.Secret, w.IsActive, w.ID)
	return checkUpdatedExists(res, err, "webhook", w.ID)
}

// RecordDelivery upserts on id: the deliverer records a Queued row, then
// the same row is updated to Success/Failed after the attempt completes.
func (r *Webhooks) RecordDelivery(ctx context.Context, d *domain.Delivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries
		(id, webhook_id, event_type, payload, signature, status, http_status, retry_count, next_retry_at, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status, http_status = excluded.http_status,
			retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
			error = excluded.error
	`, d.ID, d.WebhookID, d.EventType, d.Payload, d.Signature, d.Status, d.HTTPStatus, d.RetryCount, d.NextRetryAt, d.Error, d.CreatedAt)
	return err
}

func (r *Webhooks) PendingDeliveries(ctx context.Context, limit int) ([]domain.Delivery, error) {
	query := `
		SELECT id, webhook_id, event_type, payload, signature, status, http_status, retry_count, next_retry_at, error, created_at
		FROM webhook_deliveries WHERE status = $1 ORDER BY created_at ASC
	`
	args := []any{domain.DeliveryQueued}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.Payload, &d.Signature, &d.Status,
			&d.HTTPStatus, &d.RetryCount, &d.NextRetryAt, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ ports.WebhookRepository = (*Webhooks)(nil)
