package postgres

import (
	"context"
	"encoding/json"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
)

// Notifications is a ports.UserNotificationRepository over the
// `user_notifications` table, the durable record behind the
// best-effort real-time push (spec.md §4.7 "Notifications").
type Notifications struct {
	db *DB
}

func NewNotifications(db *DB) *Notifications {
	return &Notifications{db: db}
}

func (r *Notifications) Create(ctx context.Context, n *domain.UserNotification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_notifications (id, user_id, kind, conversation_id, payload, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.UserID, n.Kind, n.ConversationID, payload, n.CreatedAt, n.ReadAt)
	return err
}

var _ ports.UserNotificationRepository = (*Notifications)(nil)
