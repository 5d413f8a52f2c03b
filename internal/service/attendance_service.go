package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type attendanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListAll(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	RecordAttendance(ctx context.Context, id string, apply func(*models.Session) error) (*models.Session, error)
	StudentAttendance(ctx context.Context, studentID string) ([]models.StudentAttendanceEntry, error)
}

type studentAuthorizer interface {
	Authorize(ctx context.Context, actor *models.JWTClaims, id string) (*models.Student, error)
}

type attendanceRecorder interface {
	RecordAttendanceWritten(n int)
}

// AttendanceService records attendance onto sessions and reports on it.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentAuthorizer
	metrics   attendanceRecorder
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students studentAuthorizer, metrics attendanceRecorder, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, students: students, metrics: metrics, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// Record upserts the records into the session attendance list, one entry per student.
func (s *AttendanceService) Record(ctx context.Context, actor *models.JWTClaims, req dto.RecordAttendanceRequest) (*dto.SessionAttendanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid attendance payload")
	}
	seen := make(map[string]struct{}, len(req.Records))
	records := make([]models.AttendanceRecord, len(req.Records))
	for i, rec := range req.Records {
		if err := rec.Normalize(); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("records[%d]: %v", i, err))
		}
		if _, dup := seen[rec.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears more than once", rec.StudentID))
		}
		seen[rec.StudentID] = struct{}{}
		records[i] = rec
	}

	recordedAt := s.now().UTC()
	session, err := s.repo.RecordAttendance(ctx, req.SessionID, func(session *models.Session) error {
		if err := authorizeSession(actor, session); err != nil {
			return err
		}
		if !session.Active || !session.Status.AcceptsAttendance() {
			return appErrors.Clone(appErrors.ErrPreconditionFailed,
				fmt.Sprintf("attendance cannot be recorded for a %s session", session.Status))
		}
		for _, rec := range records {
			if !session.OnRoster(rec.StudentID) {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not on the session roster", rec.StudentID))
			}
		}
		for _, rec := range records {
			if actor != nil {
				rec.RecordedBy = actor.UserID
			}
			rec.RecordedAt = &recordedAt
			session.Attendance = session.Attendance.Upsert(rec)
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			return nil, appErr
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		default:
			return nil, internalErr(err, "failed to record attendance")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordAttendanceWritten(len(records))
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	resp := sessionAttendance(session)
	return &resp, nil
}

// SessionAttendance returns the attendance sheet of one session.
func (s *AttendanceService) SessionAttendance(ctx context.Context, actor *models.JWTClaims, sessionID string) (*dto.SessionAttendanceResponse, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, loadErr(err, "session not found", "failed to load session")
	}
	if err := authorizeSession(actor, session); err != nil {
		return nil, err
	}
	resp := sessionAttendance(session)
	return &resp, nil
}

// StudentHistory lists a student's attendance with totals. Parents may only
// read their own children.
func (s *AttendanceService) StudentHistory(ctx context.Context, actor *models.JWTClaims, studentID string) (*dto.StudentAttendanceResponse, error) {
	if _, err := s.students.Authorize(ctx, actor, studentID); err != nil {
		return nil, err
	}
	history, err := s.repo.StudentAttendance(ctx, studentID)
	if err != nil {
		return nil, internalErr(err, "failed to load attendance history")
	}
	return &dto.StudentAttendanceResponse{
		StudentID: studentID,
		History:   history,
		Summary:   summarizeHistory(history),
	}, nil
}

// Report summarises attendance per session. Tutors only see their own sessions.
func (s *AttendanceService) Report(ctx context.Context, actor *models.JWTClaims, filter models.AttendanceReportFilter) (*dto.AttendanceReportResponse, error) {
	active := true
	sessionFilter := models.SessionFilter{
		ProgramID: filter.ProgramID,
		TutorID:   filter.TutorID,
		StudentID: filter.StudentID,
		DateFrom:  filter.DateFrom,
		DateTo:    filter.DateTo,
		Active:    &active,
	}
	switch {
	case isAdmin(actor):
	case actor != nil && actor.Role == models.RoleTutor:
		sessionFilter.StaffID = actor.UserID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to read attendance reports")
	}

	sessions, err := s.repo.ListAll(ctx, sessionFilter)
	if err != nil {
		return nil, internalErr(err, "failed to load sessions")
	}
	return buildAttendanceReport(sessions), nil
}

func buildAttendanceReport(sessions []models.Session) *dto.AttendanceReportResponse {
	report := &dto.AttendanceReportResponse{Rows: make([]dto.AttendanceReportRow, 0, len(sessions))}
	for i := range sessions {
		session := &sessions[i]
		count := models.CountAttendance(session)
		report.Rows = append(report.Rows, dto.AttendanceReportRow{
			SessionID:            session.ID,
			Title:                session.Title,
			ProgramID:            session.ProgramID,
			Date:                 session.Date,
			Status:               session.Status,
			Count:                count,
			AttendancePercentage: models.AttendancePercentage(session),
			AverageEngagement:    models.AverageEngagement(session),
		})
		report.Records += count.Total
		for _, rec := range session.Attendance {
			if models.Attended(rec.Status) {
				report.Attended++
			}
		}
	}
	report.Sessions = len(sessions)
	report.AttendancePercentage = models.Percentage(report.Attended, report.Records)
	return report
}

func sessionAttendance(session *models.Session) dto.SessionAttendanceResponse {
	records := session.Attendance
	if records == nil {
		records = models.AttendanceRecords{}
	}
	return dto.SessionAttendanceResponse{
		SessionID:            session.ID,
		Status:               session.Status,
		Records:              records,
		Count:                models.CountAttendance(session),
		AttendancePercentage: models.AttendancePercentage(session),
		AverageEngagement:    models.AverageEngagement(session),
	}
}

func summarizeHistory(history []models.StudentAttendanceEntry) dto.StudentAttendanceSummary {
	var summary dto.StudentAttendanceSummary
	attended := 0
	for _, entry := range history {
		summary.Total++
		switch entry.Status {
		case models.AttendancePresent:
			summary.Present++
		case models.AttendanceAbsent:
			summary.Absent++
		case models.AttendanceLate:
			summary.Late++
		case models.AttendanceLeftEarly:
			summary.LeftEarly++
		}
		if models.Attended(entry.Status) {
			attended++
		}
	}
	summary.AttendancePercentage = models.Percentage(attended, summary.Total)
	return summary
}
