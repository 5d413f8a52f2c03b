package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-measures-api/internal/models"
)

// ErrStaleSession is returned when a session changed status under a concurrent writer.
var ErrStaleSession = errors.New("session status changed concurrently")

// ErrAttendanceOffRoster is returned when a roster change would orphan recorded attendance.
var ErrAttendanceOffRoster = errors.New("attendance recorded for a student outside the roster")

const sessionColumns = `id, program_id, tutor_id, assistant_ids, title, description, session_date, start_time, end_time,
    actual_start_time, actual_end_time, planned_duration, actual_duration, location, session_type, status,
    cancellation_reason, makeup_session_id, enrolled_student_ids, objectives, agenda, resources_used, attendance,
    outcomes, tutor_notes, active, created_by, created_at, updated_at`

const insertSessionQuery = `INSERT INTO sessions (id, program_id, tutor_id, assistant_ids, title, description, session_date, start_time, end_time,
    actual_start_time, actual_end_time, planned_duration, actual_duration, location, session_type, status, cancellation_reason,
    makeup_session_id, enrolled_student_ids, objectives, agenda, resources_used, attendance, outcomes, tutor_notes, active,
    created_by, created_at, updated_at)
    VALUES (:id, :program_id, :tutor_id, :assistant_ids, :title, :description, :session_date, :start_time, :end_time,
    :actual_start_time, :actual_end_time, :planned_duration, :actual_duration, :location, :session_type, :status, :cancellation_reason,
    :makeup_session_id, :enrolled_student_ids, :objectives, :agenda, :resources_used, :attendance, :outcomes, :tutor_notes, :active,
    :created_by, :created_at, :updated_at)`

// SessionRepository persists sessions together with their embedded attendance.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func sessionWhere(filter models.SessionFilter) whereBuilder {
	var where whereBuilder
	if filter.ProgramID != "" {
		where.add("program_id = %s", filter.ProgramID)
	}
	if filter.TutorID != "" {
		where.add("tutor_id = %s", filter.TutorID)
	}
	if filter.StaffID != "" {
		where.add("(tutor_id::text = %s OR %s = ANY(assistant_ids))", filter.StaffID)
	}
	if filter.StudentID != "" {
		where.add("%s = ANY(enrolled_student_ids)", filter.StudentID)
	}
	if filter.Status != "" {
		where.add("status = %s", string(filter.Status))
	}
	if filter.SessionType != "" {
		where.add("session_type = %s", string(filter.SessionType))
	}
	if filter.DateFrom != nil {
		where.add("session_date >= %s", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("session_date <= %s", *filter.DateTo)
	}
	if filter.Active != nil {
		where.add("active = %s", *filter.Active)
	}
	return where
}

// List returns sessions matching the filter with the total count.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	where := sessionWhere(filter)
	allowedSorts := map[string]string{
		"date":       "session_date",
		"title":      "title",
		"status":     "status",
		"created_at": "created_at",
	}
	tail := orderAndPage(filter.SortBy, filter.SortOrder, allowedSorts, "session_date", filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM sessions %s %s", sessionColumns, where.clause(), tail)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM sessions %s", where.clause()), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// ListAll returns every session matching the filter in date order, unpaginated.
func (r *SessionRepository) ListAll(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	where := sessionWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM sessions %s ORDER BY session_date ASC, start_time ASC", sessionColumns, where.clause())
	sessions := []models.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, where.args...); err != nil {
		return nil, fmt.Errorf("list all sessions: %w", err)
	}
	return sessions, nil
}

// FindByID returns a session.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

func prepareInsert(session *models.Session) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	prepareInsert(session)
	if _, err := r.db.NamedExecContext(ctx, insertSessionQuery, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update writes the editable plan and outcome fields. Status and attendance
// have dedicated writers. The row is locked like RecordAttendance does, and
// the write fails with ErrAttendanceOffRoster when stored attendance names a
// student missing from the new roster.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session update tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var attendance models.AttendanceRecords
	if err = tx.GetContext(ctx, &attendance, `SELECT attendance FROM sessions WHERE id = $1 FOR UPDATE`, session.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock session: %w", err)
	}
	roster := make(map[string]struct{}, len(session.EnrolledStudentIDs))
	for _, id := range session.EnrolledStudentIDs {
		roster[id] = struct{}{}
	}
	for _, rec := range attendance {
		if _, ok := roster[rec.StudentID]; !ok {
			return fmt.Errorf("%w: %s", ErrAttendanceOffRoster, rec.StudentID)
		}
	}

	session.UpdatedAt = time.Now().UTC()
	session.Attendance = attendance
	if _, err = tx.NamedExecContext(ctx, updateSessionQuery, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session update: %w", err)
	}
	return nil
}

const updateSessionQuery = `UPDATE sessions SET tutor_id = :tutor_id, assistant_ids = :assistant_ids, title = :title, description = :description,
        session_date = :session_date, start_time = :start_time, end_time = :end_time, planned_duration = :planned_duration,
        location = :location, session_type = :session_type, enrolled_student_ids = :enrolled_student_ids, objectives = :objectives,
        agenda = :agenda, resources_used = :resources_used, outcomes = :outcomes, tutor_notes = :tutor_notes, updated_at = :updated_at
        WHERE id = :id`

// UpdateStatus persists a transition computed from the from status. It fails
// with ErrStaleSession when the stored status no longer matches from.
func (r *SessionRepository) UpdateStatus(ctx context.Context, session *models.Session, from models.SessionStatus) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET status = $2, cancellation_reason = $3, actual_start_time = $4, actual_end_time = $5,
        actual_duration = $6, updated_at = $7 WHERE id = $1 AND status = $8`
	res, err := r.db.ExecContext(ctx, query, session.ID, string(session.Status), session.CancellationReason,
		session.ActualStartTime, session.ActualEndTime, session.ActualDuration, session.UpdatedAt, string(from))
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if affected == 0 {
		return ErrStaleSession
	}
	return nil
}

// Deactivate soft deletes a session.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

// RecordAttendance locks the session row, lets apply mutate the loaded
// session and stores the resulting attendance list.
func (r *SessionRepository) RecordAttendance(ctx context.Context, id string, apply func(*models.Session) error) (session *models.Session, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Session
	if err = tx.GetContext(ctx, &current, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if err = apply(&current); err != nil {
		return nil, err
	}

	current.UpdatedAt = time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE sessions SET attendance = $2, updated_at = $3 WHERE id = $1`,
		id, current.Attendance, current.UpdatedAt); err != nil {
		return nil, fmt.Errorf("store attendance: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance: %w", err)
	}
	return &current, nil
}

// Reschedule inserts makeup and links it from original, which moves to
// Rescheduled, in one transaction.
func (r *SessionRepository) Reschedule(ctx context.Context, original, makeup *models.Session) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.SessionStatus
	if err = tx.GetContext(ctx, &status, `SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, original.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock session: %w", err)
	}
	if status != original.Status {
		return ErrStaleSession
	}

	prepareInsert(makeup)
	if _, err = tx.NamedExecContext(ctx, insertSessionQuery, makeup); err != nil {
		return fmt.Errorf("insert makeup session: %w", err)
	}

	original.Status = models.SessionStatusRescheduled
	original.MakeupSessionID = &makeup.ID
	original.UpdatedAt = makeup.UpdatedAt
	if _, err = tx.ExecContext(ctx, `UPDATE sessions SET status = $2, makeup_session_id = $3, cancellation_reason = $4, updated_at = $5 WHERE id = $1`,
		original.ID, string(original.Status), makeup.ID, original.CancellationReason, original.UpdatedAt); err != nil {
		return fmt.Errorf("mark session rescheduled: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reschedule: %w", err)
	}
	return nil
}

// StudentAttendance returns the student's attendance across active sessions,
// newest first.
func (r *SessionRepository) StudentAttendance(ctx context.Context, studentID string) ([]models.StudentAttendanceEntry, error) {
	const query = `SELECT s.id AS session_id, s.title AS session_title, s.program_id, p.name AS program_name, s.session_date,
        s.status AS session_status, rec->>'status' AS status,
        COALESCE(rec->'participation'->>'level', 'Not Assessed') AS participation,
        COALESCE(rec->'behaviour'->>'rating', 'Good') AS behaviour
        FROM sessions s
        JOIN programs p ON p.id = s.program_id
        CROSS JOIN LATERAL jsonb_array_elements(s.attendance) AS rec
        WHERE s.active = TRUE AND rec->>'student_id' = $1
        ORDER BY s.session_date DESC, s.start_time DESC`
	entries := []models.StudentAttendanceEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("student attendance: %w", err)
	}
	return entries, nil
}
