package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveTakesSeat(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE classes SET current_students = current_students + 1, updated_at = NOW()
        WHERE id = $1 AND current_students < capacity`)).
		WithArgs("class-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	reserved, err := repo.Reserve(context.Background(), "class-1")
	require.NoError(t, err)
	assert.True(t, reserved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveFullClass(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClassRepository(db)

	mock.ExpectExec(`UPDATE classes SET current_students = current_students \+ 1`).
		WithArgs("class-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM classes WHERE id = $1`)).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	reserved, err := repo.Reserve(context.Background(), "class-1")
	require.NoError(t, err)
	assert.False(t, reserved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveUnknownClass(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClassRepository(db)

	mock.ExpectExec(`UPDATE classes SET current_students = current_students \+ 1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM classes WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Reserve(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE classes SET current_students = current_students - 1, updated_at = NOW()
        WHERE id = $1 AND current_students > 0`)).
		WithArgs("class-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Release(context.Background(), "class-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacitySummaryComputesRemaining(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewClassRepository(db)

	mock.ExpectQuery(`SELECT \$1 AS institution_id`).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows([]string{"institution_id", "total_capacity", "total_enrolled"}).
			AddRow("inst-1", 40, 25))

	summary, err := repo.CapacitySummary(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, 40, summary.TotalCapacity)
	assert.Equal(t, 25, summary.TotalEnrolled)
	assert.Equal(t, 15, summary.RemainingSeats)
}
