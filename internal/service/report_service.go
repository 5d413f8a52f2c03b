package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
	"github.com/noah-isme/class-measures-api/pkg/jobs"
	"github.com/noah-isme/class-measures-api/pkg/storage"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportService orchestrates report job lifecycle management.
type ReportService struct {
	repo      reportJobStore
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// ReportServiceConfig governs result retention.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File        *os.File
	Filename    string
	Format      models.ReportFormat
	ContentType string
	ExpiresAt   time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:      repo,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob validates request, persists job, and enqueues processing.
// Session and attendance reports requested by tutors cover only the
// sessions they staff.
func (s *ReportService) CreateJob(ctx context.Context, actor *models.JWTClaims, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	params, err := s.validateRequest(actor, &req)
	if err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type:      req.Type,
		Params:    params,
		Status:    models.ReportStatusQueued,
		Progress:  0,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, internalErr(err, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		if updateErr := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); updateErr != nil {
			s.logger.Warn("failed to mark unqueued report job failed",
				zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrBusy.Code, appErrors.ErrBusy.Status, "report queue is full, retry later")
		}
		return nil, internalErr(err, "failed to enqueue report job")
	}
	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(params.Format)),
		zap.String("actor_id", actor.UserID))
	return &dto.ReportJobResponse{ID: job.ID, Type: job.Type, Format: params.Format, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients. Tutors may only read their own jobs.
func (s *ReportService) GetStatus(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, "report job not found", "failed to load report job")
	}
	if !isAdmin(actor) && (actor == nil || job.CreatedBy != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report job belongs to another user")
	}
	resp := &dto.ReportStatusResponse{
		ID:         job.ID,
		Type:       job.Type,
		Format:     job.Params.Format,
		Status:     job.Status,
		Progress:   job.Progress,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if errors.Is(err, storage.ErrDownloadTokenExpired) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	}
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, loadErr(err, "report job not found", "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file expired")
		}
		return nil, internalErr(err, "failed to open export file")
	}
	contentType := "application/octet-stream"
	if renderer, ok := s.exporter.Renderer(job.Params.Format); ok {
		contentType = renderer.ContentType()
	}
	return &ReportDownload{
		File:        file,
		Filename:    filepath.Base(relPath),
		Format:      job.Params.Format,
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *ReportService) validateRequest(actor *models.JWTClaims, req *dto.ReportRequest) (models.ReportJobParams, error) {
	var params models.ReportJobParams
	if actor == nil || (actor.Role != models.RoleAdmin && actor.Role != models.RoleTutor) {
		return params, appErrors.Clone(appErrors.ErrForbidden, "not allowed to request reports")
	}
	if err := s.validator.Struct(req); err != nil {
		return params, validationErr(err, "invalid report request")
	}
	if !isValidReportType(req.Type) {
		return params, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if req.Format == "" {
		req.Format = models.ReportFormatCSV
	}
	if !isValidFormat(req.Format) {
		return params, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	from, err := parseDate(req.DateFrom)
	if err != nil {
		return params, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	to, err := parseDate(req.DateTo)
	if err != nil {
		return params, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if from != nil && to != nil && to.Before(*from) {
		return params, appErrors.Clone(appErrors.ErrValidation, "date_to must not be before date_from")
	}

	params = models.ReportJobParams{Format: req.Format, DateFrom: from, DateTo: to}
	if req.ProgramID != nil && *req.ProgramID != "" {
		params.ProgramID = req.ProgramID
	}
	if actor.Role == models.RoleTutor {
		params.TutorID = actorID(actor)
	}
	return params, nil
}

func isValidReportType(t models.ReportType) bool {
	switch t {
	case models.ReportTypeStudents, models.ReportTypePrograms, models.ReportTypeResources,
		models.ReportTypeSessions, models.ReportTypeAttendance:
		return true
	default:
		return false
	}
}

func isValidFormat(f models.ReportFormat) bool {
	switch f {
	case models.ReportFormatCSV, models.ReportFormatPDF, models.ReportFormatXLSX:
		return true
	default:
		return false
	}
}
