package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxidesk/deskcore/domain"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

func newMockConversations(t *testing.T) (*Conversations, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewConversations(Open(mockDB)), mock
}

func TestGetByID_NotFoundMapsToServiceError(t *testing.T) {
	repo, mock := newMockConversations(t)
	mock.ExpectQuery("SELECT (.+) FROM conversations WHERE id = \\$1").
		WithArgs("conv-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "conv-1")

	var svcErr *svcerrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, svcerrors.NotFound, svcErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_ScansRow(t *testing.T) {
	repo, mock := newMockConversations(t)
	now := time.Now()
	rows := sqlmock.NewRows(strColumns()).
		AddRow("conv-1", int64(42), domain.StatusOpen, nil, nil, nil, "help",
			pqArrayLiteral([]string{"billing", "vip"}), now, now, nil, nil, nil, int64(1))
	mock.ExpectQuery("SELECT (.+) FROM conversations WHERE id = \\$1").
		WithArgs("conv-1").
		WillReturnRows(rows)

	conv, err := repo.GetByID(context.Background(), "conv-1")

	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, int64(42), conv.ReferenceNumber)
	assert.Contains(t, conv.Tags, "billing")
	assert.Contains(t, conv.Tags, "vip")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignToUser_ZeroRowsIsConflict(t *testing.T) {
	repo, mock := newMockConversations(t)
	mock.ExpectExec("UPDATE conversations SET assigned_user_id").
		WithArgs("user-1", "conv-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AssignToUser(context.Background(), "conv-1", "user-1", "actor-1", 3)

	var svcErr *svcerrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, svcerrors.Conflict, svcErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignToUser_OneRowSucceeds(t *testing.T) {
	repo, mock := newMockConversations(t)
	mock.ExpectExec("UPDATE conversations SET assigned_user_id").
		WithArgs("user-1", "conv-1", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AssignToUser(context.Background(), "conv-1", "user-1", "actor-1", 3)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnassignOpenForAgent_MatchesOpenAndSnoozed(t *testing.T) {
	repo, mock := newMockConversations(t)
	mock.ExpectQuery("UPDATE conversations SET assigned_user_id = NULL").
		WithArgs("user-1", domain.StatusOpen, domain.StatusSnoozed).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("conv-1").AddRow("conv-2"))

	ids, err := repo.UnassignOpenForAgent(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"conv-1", "conv-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func strColumns() []string {
	return []string{"id", "reference_number", "status", "priority", "assigned_user_id",
		"assigned_team_id", "subject", "tags", "created_at", "updated_at",
		"resolved_at", "closed_at", "snoozed_until", "version"}
}

func pqArrayLiteral(tags []string) string {
	out := "{"
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out + "}"
}
