package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ProgramIDs(ctx context.Context, studentID string) ([]string, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns students and pagination metadata. Parents only see their own children.
func (s *StudentService) List(ctx context.Context, actor *models.JWTClaims, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if actor != nil && actor.Role == models.RoleParent {
		filter.ParentID = actor.UserID
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalErr(err, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student with the programs they are enrolled in.
func (s *StudentService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.StudentDetail, error) {
	student, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	programIDs, err := s.repo.ProgramIDs(ctx, id)
	if err != nil {
		return nil, internalErr(err, "failed to load student programs")
	}
	if programIDs == nil {
		programIDs = []string{}
	}
	return &models.StudentDetail{Student: *student, ProgramIDs: programIDs}, nil
}

// Authorize loads the student and checks the actor may read it.
func (s *StudentService) Authorize(ctx context.Context, actor *models.JWTClaims, id string) (*models.Student, error) {
	return s.load(ctx, actor, id)
}

func (s *StudentService) load(ctx context.Context, actor *models.JWTClaims, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "student not found", "failed to load student")
	}
	if actor != nil && actor.Role == models.RoleParent && (student.ParentID == nil || *student.ParentID != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student belongs to another family")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid student payload")
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	student := &models.Student{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		DateOfBirth: dob,
		GradeLevel:  strings.TrimSpace(req.GradeLevel),
		School:      strings.TrimSpace(req.School),
		ParentID:    req.ParentID,
		ParentName:  strings.TrimSpace(req.ParentName),
		ParentEmail: strings.ToLower(strings.TrimSpace(req.ParentEmail)),
		ParentPhone: strings.TrimSpace(req.ParentPhone),
		Notes:       req.Notes,
		Active:      true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, internalErr(err, "failed to create student")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return student, nil
}

// Update merges the provided fields into an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationErr(err, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "student not found", "failed to load student")
	}

	if req.DateOfBirth != nil {
		dob, err := parseDate(req.DateOfBirth)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		student.DateOfBirth = dob
	}
	assignTrimmed(&student.FirstName, req.FirstName)
	assignTrimmed(&student.LastName, req.LastName)
	assignTrimmed(&student.GradeLevel, req.GradeLevel)
	assignTrimmed(&student.School, req.School)
	assignTrimmed(&student.ParentName, req.ParentName)
	assignTrimmed(&student.ParentPhone, req.ParentPhone)
	if req.ParentEmail != nil {
		student.ParentEmail = strings.ToLower(strings.TrimSpace(*req.ParentEmail))
	}
	if req.ParentID != nil {
		switch {
		case *req.ParentID == "":
			student.ParentID = nil
		case s.validator.Var(*req.ParentID, "uuid") != nil:
			return nil, appErrors.Clone(appErrors.ErrValidation, "parent_id must be a uuid")
		default:
			student.ParentID = req.ParentID
		}
	}
	if req.Notes != nil {
		student.Notes = *req.Notes
	}
	if req.Active != nil {
		student.Active = *req.Active
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, internalErr(err, "failed to update student")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return student, nil
}

// Deactivate marks student inactive.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return loadErr(err, "student not found", "failed to load student")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return internalErr(err, "failed to deactivate student")
	}
	invalidateAnalytics(ctx, s.cache, s.logger)
	return nil
}

func assignTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
