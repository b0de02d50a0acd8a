package postgres

import (
	"context"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
)

// AssignmentHistory is a ports.AssignmentHistoryRepository over the
// append-only `assignment_history` table.
type AssignmentHistory struct {
	db *DB
}

func NewAssignmentHistory(db *DB) *AssignmentHistory {
	return &AssignmentHistory{db: db}
}

func (r *AssignmentHistory) Append(ctx context.Context, h *domain.AssignmentHistory) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assignment_history (id, conversation_id, user_id, team_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, h.ConversationID, h.UserID, h.TeamID, h.ActorID, h.CreatedAt)
	return err
}

var _ ports.AssignmentHistoryRepository = (*AssignmentHistory)(nil)
