package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Sla is a ports.SlaRepository over `sla_policies`, `applied_slas`,
// `sla_events`, and the `team_holidays` table a team's business hours
// reference.
type Sla struct {
	db *DB
}

func NewSla(db *DB) *Sla {
	return &Sla{db: db}
}

func (r *Sla) GetPolicy(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	var p domain.SlaPolicy
	var first, resolution, next int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, first_response_time_seconds, resolution_time_seconds, next_response_time_seconds
		FROM sla_policies WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &first, &resolution, &next)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("sla_policy", id)
	}
	if err != nil {
		return nil, err
	}
	p.FirstResponseTime = time.Duration(first) * time.Second
	p.ResolutionTime = time.Duration(resolution) * time.Second
	p.NextResponseTime = time.Duration(next) * time.Second
	return &p, nil
}

func (r *Sla) ListPolicies(ctx context.Context) ([]domain.SlaPolicy, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, first_response_time_seconds, resolution_time_seconds, next_response_time_seconds
		FROM sla_policies ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SlaPolicy
	for rows.Next() {
		var p domain.SlaPolicy
		var first, resolution, next int64
		if err := rows.Scan(&p.ID, &p.Name, &first, &resolution, &next); err != nil {
			return nil, err
		}
		p.FirstResponseTime = time.Duration(first) * time.Second
		p.ResolutionTime = time.Duration(resolution) * time.Second
		p.NextResponseTime = time.Duration(next) * time.Second
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Sla) CreatePolicy(ctx context.Context, p *domain.SlaPolicy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sla_policies (id, name, first_response_time_seconds, resolution_time_seconds, next_response_time_seconds)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, int64(p.FirstResponseTime.Seconds()), int64(p.ResolutionTime.Seconds()), int64(p.NextResponseTime.Seconds()))
	return err
}

func (r *Sla) UpdatePolicy(ctx context.Context, p *domain.SlaPolicy) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sla_policies SET name = $1, first_response_time_seconds = $2,
			resolution_time_seconds = $3, next_response_time_seconds = $4
		WHERE id = $5
	`, p.Name, int64(p.FirstResponseTime.Seconds()), int64(p.ResolutionTime.Seconds()), int64(p.NextResponseTime.Seconds()), p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return svcerrors.NewNotFound("sla_policy", p.ID)
	}
	return nil
}

const appliedSlaColumns = `id, conversation_id, sla_policy_id, status, first_response_deadline, resolution_deadline, applied_at`

func scanApplied(row interface{ Scan(...any) error }) (*domain.AppliedSla, error) {
	var a domain.AppliedSla
	err := row.Scan(&a.ID, &a.ConversationID, &a.SlaPolicyID, &a.Status,
		&a.FirstResponseDeadline, &a.ResolutionDeadline, &a.AppliedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Sla) GetApplied(ctx context.Context, conversationID string) (*domain.AppliedSla, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+appliedSlaColumns+` FROM applied_slas WHERE conversation_id = $1`, conversationID)
	a, err := scanApplied(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("applied_sla", conversationID)
	}
	return a, err
}

func (r *Sla) GetAppliedByID(ctx context.Context, id string) (*domain.AppliedSla, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+appliedSlaColumns+` FROM applied_slas WHERE id = $1`, id)
	a, err := scanApplied(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("applied_sla", id)
	}
	return a, err
}

// CreateApplied relies on a unique constraint on conversation_id: a
// second apply for the same conversation is a Conflict, matching
// memstore's pre-insert existence check.
func (r *Sla) CreateApplied(ctx context.Context, a *domain.AppliedSla) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applied_slas (id, conversation_id, sla_policy_id, status, first_response_deadline, resolution_deadline, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.ConversationID, a.SlaPolicyID, a.Status, a.FirstResponseDeadline, a.ResolutionDeadline, a.AppliedAt)
	if isUniqueViolation(err) {
		return svcerrors.NewConflict("SLA already applied")
	}
	return err
}

func (r *Sla) UpdateAppliedStatus(ctx context.Context, id string, status domain.SlaStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE applied_slas SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return svcerrors.NewNotFound("applied_sla", id)
	}
	return nil
}

const slaEventColumns = `id, applied_sla_id, event_type, status, deadline_at, met_at, breached_at`

func scanSlaEvent(row interface{ Scan(...any) error }) (*domain.SlaEvent, error) {
	var e domain.SlaEvent
	err := row.Scan(&e.ID, &e.AppliedSlaID, &e.EventType, &e.Status, &e.DeadlineAt, &e.MetAt, &e.BreachedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Sla) GetEvents(ctx context.Context, appliedSlaID string) ([]domain.SlaEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+slaEventColumns+` FROM sla_events WHERE applied_sla_id = $1 ORDER BY deadline_at`, appliedSlaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SlaEvent
	for rows.Next() {
		e, err := scanSlaEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *Sla) CreateEvent(ctx context.Context, e *domain.SlaEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sla_events (id, applied_sla_id, event_type, status, deadline_at, met_at, breached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.AppliedSlaID, e.EventType, e.Status, e.DeadlineAt, e.MetAt, e.BreachedAt)
	return err
}

// MarkEventMet and MarkEventBreached enforce the mutual-exclusion
// invariant in the WHERE clause itself rather than a separate read:
// the UPDATE only matches a row still Pending, so a concurrent second
// transition loses the race and sees RowsAffected == 0.
func (r *Sla) MarkEventMet(ctx context.Context, eventID string, metAt time.Time) error {
	return r.markEvent(ctx, eventID, domain.SlaMet, metAt, "met_at")
}

func (r *Sla) MarkEventBreached(ctx context.Context, eventID string, breachedAt time.Time) error {
	return r.markEvent(ctx, eventID, domain.SlaBreached, breachedAt, "breached_at")
}

func (r *Sla) markEvent(ctx context.Context, eventID string, status domain.SlaStatus, at time.Time, column string) error {
	query := `UPDATE sla_events SET status = $1, ` + column + ` = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, status, at, eventID, domain.SlaPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT true FROM sla_events WHERE id = $1`, eventID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
		return svcerrors.NewNotFound("sla_event", eventID)
	} else if err != nil {
		return err
	}
	return svcerrors.NewConflict("SLA event status is exclusive")
}

func (r *Sla) GetPendingEventsPastDeadline(ctx context.Context, asOf time.Time) ([]domain.SlaEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+slaEventColumns+` FROM sla_events WHERE status = $1 AND deadline_at <= $2
	`, domain.SlaPending, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SlaEvent
	for rows.Next() {
		e, err := scanSlaEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *Sla) IsHoliday(ctx context.Context, teamID string, day time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT true FROM team_holidays WHERE team_id = $1 AND holiday_date = $2
	`, teamID, day.Format("2006-01-02")).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return exists, err
}

var _ ports.SlaRepository = (*Sla)(nil)
