package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/paud-admission-api/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectInstitutionLock(mock sqlmock.Sqlmock, institutionID string) {
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM institutions WHERE id = $1 FOR UPDATE`)).
		WithArgs(institutionID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(institutionID))
}

func TestEnterWaitingAssignsNextOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	expectInstitutionLock(mock, "inst-1")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(current_order), 0) FROM participants WHERE institution_id = $1 AND status = $2`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectExec(`UPDATE participants SET status = \$2, current_order = \$3, reason = NULL`).
		WithArgs("p-1", models.StatusWaiting, 4, "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := repo.EnterWaiting(context.Background(), "p-1", "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 4, order)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnterWaitingEmptyQueueStartsAtOne(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	expectInstitutionLock(mock, "inst-1")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(current_order), 0)`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec(`UPDATE participants SET status = \$2, current_order = \$3`).
		WithArgs("p-1", models.StatusWaiting, 1, "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	order, err := repo.EnterWaiting(context.Background(), "p-1", "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 1, order)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnterWaitingUnknownParticipant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	expectInstitutionLock(mock, "inst-1")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(current_order), 0)`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec(`UPDATE participants SET status = \$2, current_order = \$3`).
		WithArgs("missing", models.StatusWaiting, 1, "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.EnterWaiting(context.Background(), "missing", "inst-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExitWaitingRenumbersTail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	classID := "class-1"
	mock.ExpectBegin()
	expectInstitutionLock(mock, "inst-1")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_order FROM participants WHERE id = $1 AND institution_id = $2 AND status = $3 FOR UPDATE`)).
		WithArgs("p-2", "inst-1", models.StatusWaiting).
		WillReturnRows(sqlmock.NewRows([]string{"current_order"}).AddRow(2))
	mock.ExpectExec(`UPDATE participants SET status = \$2, current_order = NULL`).
		WithArgs("p-2", models.StatusAdmitted, classID, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE participants SET current_order = current_order - 1, updated_at = NOW()
        WHERE institution_id = $1 AND status = $2 AND current_order > $3`)).
		WithArgs("inst-1", models.StatusWaiting, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := repo.ExitWaiting(context.Background(), "p-2", "inst-1", models.StatusAdmitted, models.ParticipantUpdate{ClassID: &classID})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExitWaitingNotWaiting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	expectInstitutionLock(mock, "inst-1")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_order FROM participants`)).
		WithArgs("p-1", "inst-1", models.StatusWaiting).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.ExitWaiting(context.Background(), "p-1", "inst-1", models.StatusRejected, models.ParticipantUpdate{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignOrdersRewritesQueue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	expectInstitutionLock(mock, "inst-1")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE participants SET current_order = 0, updated_at = NOW() WHERE institution_id = $1 AND status = $2`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnResult(sqlmock.NewResult(0, 3))
	for i, id := range []string{"p-3", "p-1", "p-2"} {
		mock.ExpectExec(`UPDATE participants SET current_order = \$3, updated_at = NOW\(\)`).
			WithArgs(id, "inst-1", i+1, models.StatusWaiting).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM participants WHERE institution_id = $1 AND status = $2 AND current_order = 0`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	err := repo.ReassignOrders(context.Background(), "inst-1", []string{"p-3", "p-1", "p-2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignOrdersFailsOnStaleRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectBegin()
	expectInstitutionLock(mock, "inst-1")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE participants SET current_order = 0`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE participants SET current_order = \$3`).
		WithArgs("p-1", "inst-1", 1, models.StatusWaiting).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*)`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.ReassignOrders(context.Background(), "inst-1", []string{"p-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a position")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMergesPartialFields(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	reason := "documents incomplete"
	mock.ExpectExec(`UPDATE participants SET status = \$2`).
		WithArgs("p-1", models.StatusNeedsDocuments, nil, reason, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "p-1", models.StatusNeedsDocuments, models.ParticipantUpdate{Reason: &reason})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusUnknownParticipant(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectExec(`UPDATE participants SET status = \$2`).
		WithArgs("missing", models.StatusRejected, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.StatusRejected, models.ParticipantUpdate{})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWaitingOrders(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParticipantRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_order FROM participants WHERE institution_id = $1 AND status = $2 ORDER BY current_order`)).
		WithArgs("inst-1", models.StatusWaiting).
		WillReturnRows(sqlmock.NewRows([]string{"current_order"}).AddRow(1).AddRow(2).AddRow(3))

	orders, err := repo.WaitingOrders(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, orders)
}
