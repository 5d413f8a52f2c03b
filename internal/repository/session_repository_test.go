package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-measures-api/internal/models"
)

func TestSessionRepositoryListStaffFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE program_id = $1 AND (tutor_id::text = $2 OR $2 = ANY(assistant_ids)) AND status = $3 ORDER BY session_date DESC LIMIT 20 OFFSET 0")).
		WithArgs("prog-1", "tutor-1", "Planned").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status"}).AddRow("sess-1", "Algebra", "Planned"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sessions WHERE program_id = $1")).
		WithArgs("prog-1", "tutor-1", "Planned").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), models.SessionFilter{
		ProgramID: "prog-1",
		StaffID:   "tutor-1",
		Status:    models.SessionStatusPlanned,
	})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusPlanned, sessions[0].Status)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateStatusStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	session := &models.Session{ID: "sess-1", Status: models.SessionStatusInProgress}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = $2")).
		WithArgs("sess-1", "In Progress", nil, nil, nil, nil, sqlmock.AnyArg(), "Planned").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), session, models.SessionStatusPlanned)
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateLocksAndKeepsAttendance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attendance FROM sessions WHERE id = $1 FOR UPDATE")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"attendance"}).AddRow([]byte(`[{"student_id":"stu-1","status":"Present"}]`)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET tutor_id = ")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session := &models.Session{ID: "sess-1", Title: "Algebra", EnrolledStudentIDs: []string{"stu-1", "stu-2"}}
	require.NoError(t, repo.Update(context.Background(), session))
	require.Len(t, session.Attendance, 1)
	assert.Equal(t, "stu-1", session.Attendance[0].StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateRejectsOrphanedAttendance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attendance FROM sessions WHERE id = $1 FOR UPDATE")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"attendance"}).AddRow([]byte(`[{"student_id":"stu-2","status":"Present"}]`)))
	mock.ExpectRollback()

	session := &models.Session{ID: "sess-1", EnrolledStudentIDs: []string{"stu-1"}}
	err := repo.Update(context.Background(), session)
	assert.ErrorIs(t, err, ErrAttendanceOffRoster)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryRecordAttendance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1 FOR UPDATE")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "enrolled_student_ids", "attendance"}).
			AddRow("sess-1", "Planned", "{stu-1,stu-2}", []byte(`[]`)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET attendance = $2")).
		WithArgs("sess-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session, err := repo.RecordAttendance(context.Background(), "sess-1", func(s *models.Session) error {
		s.Attendance = s.Attendance.Upsert(models.AttendanceRecord{StudentID: "stu-1", Status: models.AttendanceLate})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, session.Attendance, 1)
	assert.Equal(t, []string{"stu-1", "stu-2"}, []string(session.EnrolledStudentIDs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryRecordAttendanceRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("sess-1", "Cancelled"))
	mock.ExpectRollback()

	rejected := assert.AnError
	_, err := repo.RecordAttendance(context.Background(), "sess-1", func(*models.Session) error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryReschedule(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	reason := "tutor unwell"
	original := &models.Session{ID: "sess-1", Status: models.SessionStatusPlanned, CancellationReason: &reason}
	makeup := &models.Session{
		ProgramID:   "prog-1",
		TutorID:     "tutor-1",
		Title:       "Algebra (makeup)",
		Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:   "10:00",
		EndTime:     "11:00",
		SessionType: models.SessionTypeMakeup,
		Status:      models.SessionStatusPlanned,
	}
	require.NoError(t, makeup.Normalize())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM sessions WHERE id = $1 FOR UPDATE")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Planned"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = $2, makeup_session_id = $3")).
		WithArgs("sess-1", "Rescheduled", sqlmock.AnyArg(), &reason, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reschedule(context.Background(), original, makeup))
	assert.NotEmpty(t, makeup.ID)
	assert.Equal(t, models.SessionStatusRescheduled, original.Status)
	require.NotNil(t, original.MakeupSessionID)
	assert.Equal(t, makeup.ID, *original.MakeupSessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryRescheduleStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM sessions")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("Cancelled"))
	mock.ExpectRollback()

	err := repo.Reschedule(context.Background(), &models.Session{ID: "sess-1", Status: models.SessionStatusPlanned}, &models.Session{})
	assert.ErrorIs(t, err, ErrStaleSession)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryStudentAttendance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	day := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("jsonb_array_elements(s.attendance)")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "session_title", "program_id", "program_name", "session_date", "session_status", "status", "participation", "behaviour"}).
			AddRow("sess-1", "Algebra", "prog-1", "Maths", day, "Completed", "Late", "Good", "Good"))

	entries, err := repo.StudentAttendance(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AttendanceLate, entries[0].Status)
	assert.Equal(t, "Maths", entries[0].ProgramName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
