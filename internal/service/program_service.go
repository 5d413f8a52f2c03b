package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type programRepository interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	FindByID(ctx context.Context, id string) (*models.Program, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
	Deactivate(ctx context.Context, id string) error
	Enroll(ctx context.Context, programID, studentID string, enrolledBy *string) error
	Unenroll(ctx context.Context, programID, studentID string) (bool, error)
	Roster(ctx context.Context, programID string) ([]models.ProgramRosterEntry, error)
	RosterIDs(ctx context.Context, programID string) ([]string, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type enrollmentRecorder interface {
	RecordEnrollment(accepted bool, reason string)
}

// ProgramService manages programs and their rosters.
type ProgramService struct {
	repo      programRepository
	students  studentFinder
	audit     auditRecorder
	metrics   enrollmentRecorder
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProgramService constructs the program service.
func NewProgramService(repo programRepository, students studentFinder, audit auditRecorder, metrics enrollmentRecorder, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, students: students, audit: audit, metrics: metrics, cache: cache, validator: validate, logger: logger}
}

// List returns programs with their rosters.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]dto.ProgramResponse, *models.Pagination, error) {
	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalErr(err, "failed to list programs")
	}
	out := make([]dto.ProgramResponse, 0, len(programs))
	for _, p := range programs {
		roster, err := s.repo.RosterIDs(ctx, p.ID)
		if err != nil {
			return nil, nil, internalErr(err, "failed to load program roster")
		}
		out = append(out, dto.NewProgramResponse(p, roster))
	}
	return out, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a program with its roster.
func (s *ProgramService) Get(ctx context.Context, id string) (*dto.ProgramResponse, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "program not found", "failed to load program")
	}
	roster, err := s.repo.RosterIDs(ctx, id)
	if err != nil {
		return nil, internalErr(err, "failed to load program roster")
	}
	resp := dto.NewProgramResponse(*program, roster)
	return &resp, nil
}

// Create registers a new program.
func (s *ProgramService) Create(ctx context.Context, req dto.CreateProgramRequest) (*dto.ProgramResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid program payload")
	}
	program := &models.Program{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Subject:     strings.TrimSpace(req.Subject),
		Level:       strings.TrimSpace(req.Level),
		TutorID:     req.TutorID,
		Capacity:    req.Capacity,
		Price:       req.Price,
		Schedule:    req.Schedule,
		Active:      true,
	}
	if err := setProgramDates(program, req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, program); err != nil {
		return nil, internalErr(err, "failed to create program")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	resp := dto.NewProgramResponse(*program, nil)
	return &resp, nil
}

// Update merges the provided fields. Capacity cannot drop below the current enrollment.
func (s *ProgramService) Update(ctx context.Context, id string, req dto.UpdateProgramRequest) (*dto.ProgramResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid program payload")
	}
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "program not found", "failed to load program")
	}

	assignTrimmed(&program.Name, req.Name)
	assignTrimmed(&program.Subject, req.Subject)
	assignTrimmed(&program.Level, req.Level)
	if req.Description != nil {
		program.Description = *req.Description
	}
	if req.TutorID != nil {
		program.TutorID = req.TutorID
	}
	if req.Capacity != nil {
		if *req.Capacity < program.EnrolledCount {
			return nil, appErrors.Clone(appErrors.ErrConflict, "capacity is below the current enrollment")
		}
		program.Capacity = *req.Capacity
	}
	if req.Price != nil {
		program.Price = *req.Price
	}
	if req.Schedule != nil {
		program.Schedule = *req.Schedule
	}
	if req.Active != nil {
		program.Active = *req.Active
	}
	start, end := req.StartDate, req.EndDate
	if start == nil && program.StartDate != nil {
		v := program.StartDate.Format(dateLayout)
		start = &v
	}
	if end == nil && program.EndDate != nil {
		v := program.EndDate.Format(dateLayout)
		end = &v
	}
	if err := setProgramDates(program, start, end); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, program); err != nil {
		return nil, internalErr(err, "failed to update program")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return s.Get(ctx, id)
}

// Deactivate soft deletes a program.
func (s *ProgramService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return loadErr(err, "program not found", "failed to load program")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return internalErr(err, "failed to deactivate program")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return nil
}

// Enroll adds a student to the program roster. Capacity is enforced atomically by the repository.
func (s *ProgramService) Enroll(ctx context.Context, actor *models.JWTClaims, programID, studentID string) (*dto.ProgramResponse, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		return nil, loadErr(err, "student not found", "failed to load student")
	}
	if !student.Active {
		s.recordEnrollment(false, "student_inactive")
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is inactive")
	}

	err = s.repo.Enroll(ctx, programID, studentID, actorID(actor))
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
	case errors.Is(err, repository.ErrProgramInactive):
		s.recordEnrollment(false, "program_inactive")
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "program is inactive")
	case errors.Is(err, repository.ErrAlreadyEnrolled):
		s.recordEnrollment(false, "already_enrolled")
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled in program")
	case errors.Is(err, repository.ErrProgramFull):
		s.recordEnrollment(false, "capacity")
		return nil, appErrors.Clone(appErrors.ErrCapacityReached, "program is at full capacity")
	default:
		return nil, internalErr(err, "failed to enroll student")
	}

	s.recordEnrollment(true, "")
	s.recordAudit(ctx, actor, models.AuditActionEnroll, programID, studentID)
	invalidateAnalytics(ctx, s.cache, s.logger)
	s.logger.Info("student enrolled", zap.String("program_id", programID), zap.String("student_id", studentID))
	return s.Get(ctx, programID)
}

// Unenroll removes a student from the roster.
func (s *ProgramService) Unenroll(ctx context.Context, actor *models.JWTClaims, programID, studentID string) error {
	removed, err := s.repo.Unenroll(ctx, programID, studentID)
	if err != nil {
		return internalErr(err, "failed to unenroll student")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in program")
	}
	s.recordAudit(ctx, actor, models.AuditActionUnenroll, programID, studentID)
	invalidateAnalytics(ctx, s.cache, s.logger)
	return nil
}

// Roster lists enrolled students of a program.
func (s *ProgramService) Roster(ctx context.Context, programID string) ([]models.ProgramRosterEntry, error) {
	if _, err := s.repo.FindByID(ctx, programID); err != nil {
		return nil, loadErr(err, "program not found", "failed to load program")
	}
	roster, err := s.repo.Roster(ctx, programID)
	if err != nil {
		return nil, internalErr(err, "failed to load roster")
	}
	if roster == nil {
		roster = []models.ProgramRosterEntry{}
	}
	return roster, nil
}

func (s *ProgramService) recordEnrollment(accepted bool, reason string) {
	if s.metrics != nil {
		s.metrics.RecordEnrollment(accepted, reason)
	}
}

func (s *ProgramService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, programID, studentID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		Resource:   "programs",
		ResourceID: &programID,
		NewValues:  auditJSON(map[string]string{"student_id": studentID}),
	}); err != nil {
		s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
	}
}

func setProgramDates(program *models.Program, startRaw, endRaw *string) error {
	start, err := parseDate(startRaw)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	end, err := parseDate(endRaw)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if start != nil && end != nil && end.Before(*start) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	program.StartDate, program.EndDate = start, end
	return nil
}
