package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Teams is a ports.TeamRepository over `teams` and `team_members`.
// BusinessHours has no natural relational shape (a weekly schedule plus
// a holiday set), so it round-trips as JSON, same choice as
// Automation's Condition/Action.
type Teams struct {
	db *DB
}

func NewTeams(db *DB) *Teams {
	return &Teams{db: db}
}

func (r *Teams) scanTeam(ctx context.Context, row interface{ Scan(...any) error }) (*domain.Team, error) {
	var t domain.Team
	var businessHoursJSON []byte
	var defaultSlaPolicyID sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &businessHoursJSON, &defaultSlaPolicyID); err != nil {
		return nil, err
	}
	if defaultSlaPolicyID.Valid {
		t.DefaultSlaPolicyID = &defaultSlaPolicyID.String
	}
	if len(businessHoursJSON) > 0 {
		var bh domain.BusinessHours
		if err := json.Unmarshal(businessHoursJSON, &bh); err != nil {
			return nil, err
		}
		t.BusinessHours = &bh
	}
	members, err := r.Members(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.MemberUserIDs = make(map[string]struct{}, len(members))
	for _, m := range members {
		t.MemberUserIDs[m] = struct{}{}
	}
	return &t, nil
}

func (r *Teams) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, business_hours, default_sla_policy_id FROM teams WHERE id = $1`, id)
	t, err := r.scanTeam(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NewNotFound("team", id)
	}
	return t, err
}

func (r *Teams) List(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, business_hours, default_sla_policy_id FROM teams`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Team
	for rows.Next() {
		t, err := r.scanTeam(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *Teams) Members(ctx context.Context, teamID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM team_members WHERE team_id = $1`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

func (r *Teams) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT true FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return exists, err
}

func (r *Teams) GetUserTeams(ctx context.Context, userID string) ([]domain.Team, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.business_hours, t.default_sla_policy_id
		FROM teams t JOIN team_members m ON m.team_id = t.id
		WHERE m.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Team
	for rows.Next() {
		t, err := r.scanTeam(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

var _ ports.TeamRepository = (*Teams)(nil)
