package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Conversations is a ports.ConversationRepository over the
// `conversations` table, with tags kept in its `tags text[]` column
// (spec.md §6.4).
type Conversations struct {
	db *DB
}

func NewConversations(db *DB) *Conversations {
	return &Conversations{db: db}
}

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	var c domain.Conversation
	var priority sql.NullString
	var tags pq.StringArray
	err := row.Scan(&c.ID, &c.ReferenceNumber, &c.Status, &priority, &c.AssignedUserID,
		&c.AssignedTeamID, &c.Subject, &tags, &c.CreatedAt, &c.UpdatedAt,
		&c.ResolvedAt, &c.ClosedAt, &c.SnoozedUntil, &c.Version)
	if err != nil {
		return nil, err
	}
	if priority.Valid {
		p := domain.Priority(priority.String)
		c.Priority = &p
	}
	c.Tags = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		c.Tags[t] = struct{}{}
	}
	return &c, nil
}

const conversationColumns = `id, reference_number, status, priority, assigned_user_id,
		assigned_team_id, subject, tags, created_at, updated_at,
		resolved_at, closed_at, snoozed_until, version`

func (r *Conversations) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("conversation", id)
	}
	return c, err
}

func (r *Conversations) GetByReferenceNumber(ctx context.Context, ref int64) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE reference_number = $1`, ref)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("conversation", fmt.Sprintf("%d", ref))
	}
	return c, err
}

func (r *Conversations) Create(ctx context.Context, c *domain.Conversation) error {
	if c.Version == 0 {
		c.Version = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations
		(id, reference_number, status, priority, assigned_user_id, assigned_team_id, subject, tags,
		 created_at, updated_at, resolved_at, closed_at, snoozed_until, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, c.ReferenceNumber, c.Status, nullablePriority(c.Priority), c.AssignedUserID, c.AssignedTeamID,
		c.Subject, pq.Array(c.TagList()), c.CreatedAt, c.UpdatedAt, c.ResolvedAt, c.ClosedAt, c.SnoozedUntil, c.Version)
	return err
}

func nullablePriority(p *domain.Priority) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func (r *Conversations) UpdateFields(ctx context.Context, id string, expectedVersion int64, status domain.ConversationStatus, resolvedAt, closedAt, snoozedUntil *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET status = $1, resolved_at = $2, closed_at = $3, snoozed_until = $4,
			updated_at = now(), version = version + 1
		WHERE id = $5 AND version = $6
	`, status, resolvedAt, closedAt, snoozedUntil, id, expectedVersion)
	return checkVersionedUpdate(res, err, "conversation", id)
}

func (r *Conversations) AssignToUser(ctx context.Context, id, userID, actorID string, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET assigned_user_id = $1, updated_at = now(), version = version + 1
		WHERE id = $2 AND version = $3
	`, userID, id, expectedVersion)
	return checkVersionedUpdate(res, err, "conversation", id)
}

func (r *Conversations) AssignToTeam(ctx context.Context, id, teamID string, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET assigned_team_id = $1, updated_at = now(), version = version + 1
		WHERE id = $2 AND version = $3
	`, teamID, id, expectedVersion)
	return checkVersionedUpdate(res, err, "conversation", id)
}

func (r *Conversations) UnassignUser(ctx context.Context, id string, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET assigned_user_id = NULL, updated_at = now(), version = version + 1
		WHERE id = $1 AND version = $2
	`, id, expectedVersion)
	return checkVersionedUpdate(res, err, "conversation", id)
}

// UnassignOpenForAgent has no caller-supplied version to check: it's a
// batch sweep over every matching row, not a single CAS write (spec.md
// §4.8 auto-unassign-on-away). RETURNING id hands back every affected
// conversation so the caller can publish one event per conversation
// instead of one event for the whole batch.
func (r *Conversations) UnassignOpenForAgent(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE conversations SET assigned_user_id = NULL, updated_at = now(), version = version + 1
		WHERE assigned_user_id = $1 AND status IN ($2, $3)
		RETURNING id
	`, userID, domain.StatusOpen, domain.StatusSnoozed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Conversations) List(ctx context.Context, limit, offset int, filter ports.ConversationFilter) ([]domain.Conversation, error) {
	where, args := buildConversationFilter(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM conversations %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		conversationColumns, where, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Conversations) Count(ctx context.Context, filter ports.ConversationFilter) (int, error) {
	where, args := buildConversationFilter(filter)
	query := fmt.Sprintf(`SELECT count(*) FROM conversations %s`, where)
	var n int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func buildConversationFilter(f ports.ConversationFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.AssignedUserID != nil {
		add("assigned_user_id = $%d", *f.AssignedUserID)
	}
	if f.AssignedTeamID != nil {
		add("assigned_team_id = $%d", *f.AssignedTeamID)
	}
	if f.Tag != nil {
		add("$%d = ANY(tags)", *f.Tag)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r *Conversations) SetPriority(ctx context.Context, id string, priority *domain.Priority, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET priority = $1, updated_at = now(), version = version + 1
		WHERE id = $2 AND version = $3
	`, nullablePriority(priority), id, expectedVersion)
	return checkVersionedUpdate(res, err, "conversation", id)
}

func (r *Conversations) AddTag(ctx context.Context, id, tag string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET tags = array_append(tags, $1), updated_at = now()
		WHERE id = $2 AND NOT ($1 = ANY(tags))
	`, tag, id)
	return err
}

func (r *Conversations) RemoveTag(ctx context.Context, id, tag string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET tags = array_remove(tags, $1), updated_at = now() WHERE id = $2
	`, tag, id)
	return err
}

func (r *Conversations) GetTags(ctx context.Context, id string) ([]string, error) {
	var tags pq.StringArray
	err := r.db.QueryRowContext(ctx, `SELECT tags FROM conversations WHERE id = $1`, id).Scan(&tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("conversation", id)
	}
	return []string(tags), err
}

// checkVersionedUpdate turns a zero-rows-affected optimistic-concurrency
// write into a Conflict error, the shape every CAS write in this
// package shares.
func checkVersionedUpdate(res sql.Result, err error, resource, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return svcerrors.NewConflict(fmt.Sprintf("%s %s version mismatch", resource, id))
	}
	return nil
}

var _ ports.ConversationRepository = (*Conversations)(nil)
