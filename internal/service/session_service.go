package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	UpdateStatus(ctx context.Context, session *models.Session, from models.SessionStatus) error
	Deactivate(ctx context.Context, id string) error
	Reschedule(ctx context.Context, original, makeup *models.Session) error
}

type programLookup interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	RosterIDs(ctx context.Context, programID string) ([]string, error)
}

type transitionRecorder interface {
	RecordSessionTransition(from, to string)
}

// SessionService schedules sessions and drives their lifecycle.
type SessionService struct {
	repo      sessionRepository
	programs  programLookup
	audit     auditRecorder
	metrics   transitionRecorder
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionRepository, programs programLookup, audit auditRecorder, metrics transitionRecorder, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:      repo,
		programs:  programs,
		audit:     audit,
		metrics:   metrics,
		cache:     cache,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// authorizeSession lets admins through and tutors only onto sessions they teach or assist.
func authorizeSession(actor *models.JWTClaims, session *models.Session) error {
	if isAdmin(actor) {
		return nil
	}
	if actor != nil && actor.Role == models.RoleTutor && session.IsStaff(actor.UserID) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not allowed to access this session")
}

// List returns sessions. Tutors only see sessions they teach or assist.
func (s *SessionService) List(ctx context.Context, actor *models.JWTClaims, filter models.SessionFilter) ([]dto.SessionResponse, *models.Pagination, error) {
	switch {
	case isAdmin(actor):
	case actor != nil && actor.Role == models.RoleTutor:
		filter.StaffID = actor.UserID
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list sessions")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status %q", filter.Status))
	}
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalErr(err, "failed to list sessions")
	}
	out := make([]dto.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, dto.NewSessionResponse(session))
	}
	return out, newPagination(filter.Page, filter.PageSize, total), nil
}

func (s *SessionService) load(ctx context.Context, actor *models.JWTClaims, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "session not found", "failed to load session")
	}
	if err := authorizeSession(actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns a session with its derived metrics.
func (s *SessionService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.SessionResponse, error) {
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewSessionResponse(*session)
	return &resp, nil
}

// Metrics returns only the derived metrics of a session.
func (s *SessionService) Metrics(ctx context.Context, actor *models.JWTClaims, id string) (*models.SessionMetrics, error) {
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	metrics := models.ComputeSessionMetrics(session)
	return &metrics, nil
}

// Create schedules a new Planned session. Tutor and roster default to the program's.
func (s *SessionService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid session payload")
	}
	program, err := s.programs.FindByID(ctx, req.ProgramID)
	if err != nil {
		return nil, loadErr(err, "program not found", "failed to load program")
	}
	if !program.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "program is inactive")
	}
	roster, err := s.programs.RosterIDs(ctx, program.ID)
	if err != nil {
		return nil, internalErr(err, "failed to load program roster")
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	session := &models.Session{
		ProgramID:       program.ID,
		TutorID:         strings.TrimSpace(req.TutorID),
		AssistantIDs:    pq.StringArray(req.AssistantIDs),
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Date:            date,
		StartTime:       strings.TrimSpace(req.StartTime),
		EndTime:         strings.TrimSpace(req.EndTime),
		PlannedDuration: req.PlannedDuration,
		Location:        strings.TrimSpace(req.Location),
		SessionType:     req.SessionType,
		Status:          models.SessionStatusPlanned,
		Objectives:      req.Objectives,
		Agenda:          req.Agenda,
		ResourcesUsed:   req.ResourcesUsed,
		TutorNotes:      req.TutorNotes,
		Active:          true,
		CreatedBy:       actorID(actor),
	}
	if session.TutorID == "" && program.TutorID != nil {
		session.TutorID = *program.TutorID
	}
	if session.TutorID == "" && actor != nil && actor.Role == models.RoleTutor {
		session.TutorID = actor.UserID
	}
	if session.TutorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tutor_id is required when the program has no tutor")
	}
	if err := authorizeSession(actor, session); err != nil {
		return nil, err
	}

	if req.EnrolledStudentIDs == nil {
		session.EnrolledStudentIDs = pq.StringArray(roster)
	} else {
		if err := checkRosterSubset(req.EnrolledStudentIDs, roster); err != nil {
			return nil, err
		}
		session.EnrolledStudentIDs = pq.StringArray(dedupe(req.EnrolledStudentIDs))
	}
	if err := session.Normalize(); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, internalErr(err, "failed to create session")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	resp := dto.NewSessionResponse(*session)
	return &resp, nil
}

// Update merges plan and outcome fields. Status is left untouched.
func (s *SessionService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateSessionRequest) (*dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid session payload")
	}
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.TutorID != nil {
		if !isAdmin(actor) && strings.TrimSpace(*req.TutorID) != session.TutorID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can reassign the tutor")
		}
		session.TutorID = strings.TrimSpace(*req.TutorID)
	}
	if req.AssistantIDs != nil {
		session.AssistantIDs = pq.StringArray(req.AssistantIDs)
	}
	assignTrimmed(&session.Title, req.Title)
	assignTrimmed(&session.Location, req.Location)
	if req.Description != nil {
		session.Description = *req.Description
	}
	if req.TutorNotes != nil {
		session.TutorNotes = *req.TutorNotes
	}
	if req.Date != nil {
		if session.Date, err = time.Parse(dateLayout, *req.Date); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
		}
	}
	timesChanged := false
	if req.StartTime != nil {
		session.StartTime = strings.TrimSpace(*req.StartTime)
		timesChanged = true
	}
	if req.EndTime != nil {
		session.EndTime = strings.TrimSpace(*req.EndTime)
		timesChanged = true
	}
	switch {
	case req.PlannedDuration != nil:
		session.PlannedDuration = *req.PlannedDuration
	case timesChanged:
		session.PlannedDuration = 0
	}
	if req.SessionType != nil {
		session.SessionType = *req.SessionType
	}
	if req.Objectives != nil {
		session.Objectives = req.Objectives
	}
	if req.Agenda != nil {
		session.Agenda = req.Agenda
	}
	if req.ResourcesUsed != nil {
		session.ResourcesUsed = req.ResourcesUsed
	}
	if req.Outcomes != nil {
		session.Outcomes = req.Outcomes
	}
	if req.EnrolledStudentIDs != nil {
		roster, err := s.programs.RosterIDs(ctx, session.ProgramID)
		if err != nil {
			return nil, internalErr(err, "failed to load program roster")
		}
		if err := checkRosterSubset(req.EnrolledStudentIDs, roster); err != nil {
			return nil, err
		}
		next := pq.StringArray(dedupe(req.EnrolledStudentIDs))
		for _, rec := range session.Attendance {
			if !contains(next, rec.StudentID) {
				return nil, appErrors.Clone(appErrors.ErrConflict,
					fmt.Sprintf("student %s has attendance recorded and cannot leave the session roster", rec.StudentID))
			}
		}
		session.EnrolledStudentIDs = next
	}

	if err := session.Normalize(); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := s.repo.Update(ctx, session); err != nil {
		switch {
		case errors.Is(err, repository.ErrAttendanceOffRoster):
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"a student with recorded attendance cannot leave the session roster")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		default:
			return nil, internalErr(err, "failed to update session")
		}
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	resp := dto.NewSessionResponse(*session)
	return &resp, nil
}

// ChangeStatus moves a session along its lifecycle. Starting stamps the
// actual start time; completing stamps the end time and actual duration.
func (s *SessionService) ChangeStatus(ctx context.Context, actor *models.JWTClaims, id string, req dto.SessionStatusRequest) (*dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status %q", req.Status))
	}
	session, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	from := session.Status
	if !from.CanTransitionTo(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move session from %s to %s", from, req.Status))
	}
	reason := strings.TrimSpace(req.Reason)
	if req.Status == models.SessionStatusCancelled && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a reason is required to cancel a session")
	}
	// Other transitions keep their reason in the audit trail only.
	if reason != "" && (req.Status == models.SessionStatusCancelled || req.Status == models.SessionStatusRescheduled) {
		session.CancellationReason = &reason
	}

	clock := models.FormatClock(s.now())
	switch req.Status {
	case models.SessionStatusInProgress:
		if session.ActualStartTime == nil {
			session.ActualStartTime = &clock
		}
	case models.SessionStatusCompleted:
		if session.ActualEndTime == nil {
			session.ActualEndTime = &clock
		}
		session.ActualDuration = actualDuration(session)
	}
	session.Status = req.Status

	if err := s.repo.UpdateStatus(ctx, session, from); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session status changed concurrently, reload and retry")
		}
		return nil, internalErr(err, "failed to update session status")
	}

	if s.metrics != nil {
		s.metrics.RecordSessionTransition(string(from), string(req.Status))
	}
	s.recordAudit(ctx, actor, session.ID, from, req.Status, reason)
	invalidateAnalytics(ctx, s.cache, s.logger)
	resp := dto.NewSessionResponse(*session)
	return &resp, nil
}

// Reschedule creates a linked makeup session and marks the original Rescheduled.
func (s *SessionService) Reschedule(ctx context.Context, actor *models.JWTClaims, id string, req dto.RescheduleRequest) (*dto.RescheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid reschedule payload")
	}
	original, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !original.Status.CanTransitionTo(models.SessionStatusRescheduled) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot reschedule a %s session", original.Status))
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}

	makeup := makeupFrom(original)
	makeup.Date = date
	makeup.StartTime = strings.TrimSpace(req.StartTime)
	makeup.EndTime = strings.TrimSpace(req.EndTime)
	makeup.CreatedBy = actorID(actor)
	if err := makeup.Normalize(); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		original.CancellationReason = &reason
	}

	from := original.Status
	if err := s.repo.Reschedule(ctx, original, makeup); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		case errors.Is(err, repository.ErrStaleSession):
			return nil, appErrors.Clone(appErrors.ErrConflict, "session status changed concurrently, reload and retry")
		default:
			return nil, internalErr(err, "failed to reschedule session")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSessionTransition(string(from), string(models.SessionStatusRescheduled))
	}
	s.recordAudit(ctx, actor, original.ID, from, models.SessionStatusRescheduled, strings.TrimSpace(req.Reason))
	invalidateAnalytics(ctx, s.cache, s.logger)
	s.logger.Info("session rescheduled", zap.String("session_id", original.ID), zap.String("makeup_session_id", makeup.ID))
	return &dto.RescheduleResponse{
		Original: dto.NewSessionResponse(*original),
		Makeup:   dto.NewSessionResponse(*makeup),
	}, nil
}

// Delete soft deletes a session.
func (s *SessionService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if _, err := s.load(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return internalErr(err, "failed to delete session")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return nil
}

func (s *SessionService) recordAudit(ctx context.Context, actor *models.JWTClaims, sessionID string, from, to models.SessionStatus, reason string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionSessionStatus,
		Resource:   "sessions",
		ResourceID: &sessionID,
		OldValues:  auditJSON(map[string]string{"status": string(from)}),
		NewValues:  auditJSON(map[string]string{"status": string(to), "reason": reason}),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record session audit log", zap.Error(err))
	}
}

// makeupFrom copies the plan of original into a fresh Planned makeup session.
// Objectives and agenda start unachieved.
func makeupFrom(original *models.Session) *models.Session {
	makeup := &models.Session{
		ProgramID:          original.ProgramID,
		TutorID:            original.TutorID,
		AssistantIDs:       append(pq.StringArray{}, original.AssistantIDs...),
		Title:              original.Title,
		Description:        original.Description,
		Location:           original.Location,
		SessionType:        models.SessionTypeMakeup,
		Status:             models.SessionStatusPlanned,
		EnrolledStudentIDs: append(pq.StringArray{}, original.EnrolledStudentIDs...),
		Objectives:         make(models.Objectives, len(original.Objectives)),
		Agenda:             make(models.Agenda, len(original.Agenda)),
		Active:             true,
	}
	for i, obj := range original.Objectives {
		makeup.Objectives[i] = models.Objective{Description: obj.Description}
	}
	for i, item := range original.Agenda {
		makeup.Agenda[i] = models.AgendaItem{Activity: item.Activity, TimeAllocation: item.TimeAllocation}
	}
	return makeup
}

// actualDuration is the minutes between the actual clocks, nil when either
// is missing or the range is not positive.
func actualDuration(session *models.Session) *int {
	if session.ActualStartTime == nil || session.ActualEndTime == nil {
		return nil
	}
	start, err := models.ParseClock(*session.ActualStartTime)
	if err != nil {
		return nil
	}
	end, err := models.ParseClock(*session.ActualEndTime)
	if err != nil || end <= start {
		return nil
	}
	minutes := end - start
	return &minutes
}

func checkRosterSubset(ids, roster []string) error {
	for _, id := range ids {
		if !contains(roster, id) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled in the program", id))
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
