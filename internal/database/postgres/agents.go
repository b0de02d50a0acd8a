package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Agents is a ports.AgentRepository over `agents` and
// `agent_activity_log`.
type Agents struct {
	db *DB
}

func NewAgents(db *DB) *Agents {
	return &Agents{db: db}
}

const agentColumns = `user_id, status, last_activity_at, away_since, last_login_at`

func scanAgent(row interface{ Scan(...any) error }) (*domain.AgentAvailability, error) {
	var a domain.AgentAvailability
	err := row.Scan(&a.UserID, &a.Status, &a.LastActivityAt, &a.AwaySince, &a.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Agents) GetByID(ctx context.Context, userID string) (*domain.AgentAvailability, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id = $1`, userID)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("agent", userID)
	}
	return a, err
}

// UpdateAvailability mirrors memstore.Agents' away_since clearing rule:
// Away/AwayManual set it to `at`, every other status clears it.
func (r *Agents) UpdateAvailability(ctx context.Context, userID string, status domain.AvailabilityStatus, reason domain.AvailabilityChangeReason, at time.Time) error {
	var awaySince *time.Time
	if status == domain.AvailabilityAway || status == domain.AvailabilityAwayManual {
		awaySince = &at
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE agents SET status = $1, away_since = $2 WHERE user_id = $3
	`, status, awaySince, userID)
	return checkUpdatedExists(res, err, "agent", userID)
}

func (r *Agents) UpdateActivity(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE agents SET last_activity_at = $1 WHERE user_id = $2`, at, userID)
	return checkUpdatedExists(res, err, "agent", userID)
}

func (r *Agents) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE agents SET last_login_at = $1 WHERE user_id = $2`, at, userID)
	return checkUpdatedExists(res, err, "agent", userID)
}

func (r *Agents) GetInactiveOnline(ctx context.Context, cutoff time.Time) ([]domain.AgentAvailability, error) {
	return r.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE status = $1 AND last_activity_at < $2`,
		domain.AvailabilityOnline, cutoff)
}

func (r *Agents) GetIdleAway(ctx context.Context, cutoff time.Time) ([]domain.AgentAvailability, error) {
	return r.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE status IN ($1, $2) AND away_since IS NOT NULL AND away_since < $3`,
		domain.AvailabilityAway, domain.AvailabilityAwayManual, cutoff)
}

func (r *Agents) queryAgents(ctx context.Context, query string, args ...any) ([]domain.AgentAvailability, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentAvailability
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *Agents) AppendActivityLog(ctx context.Context, log *domain.AgentActivityLog) error {
	metadata, err := json.Marshal(log.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO agent_activity_log (id, user_id, event_type, old_status, new_status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.ID, log.UserID, log.EventType, log.OldStatus, log.NewStatus, metadata, log.CreatedAt)
	return err
}

func checkUpdatedExists(res sql.Result, err error, resource, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return svcerrors.NewNotFound(resource, id)
	}
	return nil
}

var _ ports.AgentRepository = (*Agents)(nil)
