package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-measures-api/internal/models"
)

func expectProgramLock(mock sqlmock.Sqlmock, capacity int, active bool) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity, active FROM programs WHERE id = $1 FOR UPDATE")).
		WithArgs("prog-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "active"}).AddRow(capacity, active))
}

func expectRoster(mock sqlmock.Sqlmock, enrolled int, present bool) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS enrolled")).
		WithArgs("prog-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"enrolled", "present"}).AddRow(enrolled, present))
}

func TestProgramRepositoryEnrollSuccess(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	expectProgramLock(mock, 3, true)
	expectRoster(mock, 2, false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO program_enrollments")).
		WithArgs("prog-1", "stu-1", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Enroll(context.Background(), "prog-1", "stu-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramRepositoryEnrollFull(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	expectProgramLock(mock, 2, true)
	expectRoster(mock, 2, false)
	mock.ExpectRollback()

	err := repo.Enroll(context.Background(), "prog-1", "stu-1", nil)
	assert.ErrorIs(t, err, ErrProgramFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramRepositoryEnrollAlreadyEnrolled(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	expectProgramLock(mock, 5, true)
	expectRoster(mock, 1, true)
	mock.ExpectRollback()

	err := repo.Enroll(context.Background(), "prog-1", "stu-1", nil)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramRepositoryEnrollUniqueViolation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	expectProgramLock(mock, 5, true)
	expectRoster(mock, 1, false)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO program_enrollments")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.Enroll(context.Background(), "prog-1", "stu-1", nil)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramRepositoryEnrollInactiveAndMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	expectProgramLock(mock, 5, false)
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.Enroll(context.Background(), "prog-1", "stu-1", nil), ErrProgramInactive)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	assert.ErrorIs(t, repo.Enroll(context.Background(), "prog-1", "stu-1", nil), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "description", "subject", "level", "tutor_id", "capacity", "price", "start_date", "end_date", "schedule", "active", "created_at", "updated_at", "enrolled_count"}).
		AddRow("prog-1", "Maths Boost", "", "Maths", "KS2", "tutor-1", 4, 120.5, nil, nil, "Mon 16:00", true, now, now, 3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM programs p WHERE p.id = $1")).
		WithArgs("prog-1").
		WillReturnRows(rows)

	program, err := repo.FindByID(context.Background(), "prog-1")
	require.NoError(t, err)
	assert.Equal(t, 3, program.EnrolledCount)
	assert.Equal(t, 75, program.EnrollmentPercentage())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramRepositoryUnenroll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM program_enrollments")).
		WithArgs("prog-1", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.Unenroll(context.Background(), "prog-1", "stu-1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProgramRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgramRepository(db)

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("FROM programs p WHERE p.subject = $1 AND p.active = $2 ORDER BY p.name ASC LIMIT 20 OFFSET 0")).
		WithArgs("Maths", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity", "enrolled_count"}).AddRow("prog-1", "Maths Boost", 4, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM programs p WHERE p.subject = $1 AND p.active = $2")).
		WithArgs("Maths", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	programs, total, err := repo.List(context.Background(), models.ProgramFilter{Subject: "Maths", Active: &active, SortBy: "name", SortOrder: "ASC"})
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
