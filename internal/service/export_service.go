package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/pkg/export"
	"github.com/noah-isme/class-measures-api/pkg/storage"
)

const exportPageSize = 100

type exportStudentSource interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

type exportProgramSource interface {
	ProgramStats(ctx context.Context, filter models.AnalyticsFilter) ([]models.ProgramStats, error)
}

type exportSessionSource interface {
	ListAll(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
}

// ExportSources groups the read models reports are built from.
type ExportSources struct {
	Students  exportStudentSource
	Programs  exportProgramSource
	Resources inventoryLister
	Sessions  exportSessionSource
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	sources   ExportSources
	storage   fileStorage
	renderers map[models.ReportFormat]export.Renderer
	signer    *storage.DownloadSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Formats without a renderer
// fall back to the bundled CSV, PDF and XLSX exporters.
func NewExportService(sources ExportSources, store fileStorage, signer *storage.DownloadSigner, cfg ExportConfig, logger *zap.Logger, renderers map[models.ReportFormat]export.Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	all := map[models.ReportFormat]export.Renderer{
		models.ReportFormatCSV:  export.NewCSVExporter(),
		models.ReportFormatPDF:  export.NewPDFExporter(),
		models.ReportFormatXLSX: export.NewXLSXExporter(),
	}
	for format, renderer := range renderers {
		if renderer != nil {
			all[format] = renderer
		}
	}
	return &ExportService{
		sources:   sources,
		storage:   store,
		renderers: all,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Renderer returns the renderer registered for format.
func (s *ExportService) Renderer(format models.ReportFormat) (export.Renderer, bool) {
	r, ok := s.renderers[format]
	return r, ok
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", job.Params.Format, err)
	}

	relPath, err := s.storage.Save(sanitizeFilename(job.ID)+"/"+s.buildFilename(job, renderer.Extension()), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("report rendered",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("rows", len(dataset.Rows)))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	scope := "all"
	if job.Params.ProgramID != nil && *job.Params.ProgramID != "" {
		scope = *job.Params.ProgramID
	} else if job.Params.DateFrom != nil {
		scope = job.Params.DateFrom.Format(dateLayout)
	}
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), sanitizeFilename(scope), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	switch job.Type {
	case models.ReportTypeStudents:
		return s.buildStudentDataset(ctx, job.Params)
	case models.ReportTypePrograms:
		return s.buildProgramDataset(ctx, job.Params)
	case models.ReportTypeResources:
		return s.buildResourceDataset(ctx)
	case models.ReportTypeSessions:
		return s.buildSessionDataset(ctx, job.Params)
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildStudentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	headers := []string{"ID", "Name", "Grade Level", "School", "Parent", "Parent Email", "Active"}
	filter := models.StudentFilter{ProgramID: deref(params.ProgramID), PageSize: exportPageSize, SortBy: "last_name", SortOrder: "asc"}
	var rows []map[string]string
	for page := 1; ; page++ {
		filter.Page = page
		students, total, err := s.sources.Students.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, err
		}
		for _, st := range students {
			rows = append(rows, map[string]string{
				"ID":           st.ID,
				"Name":         st.FullName(),
				"Grade Level":  st.GradeLevel,
				"School":       st.School,
				"Parent":       st.ParentName,
				"Parent Email": st.ParentEmail,
				"Active":       yesNo(st.Active),
			})
		}
		if len(students) < exportPageSize || len(rows) >= total {
			break
		}
	}
	return export.Dataset{Title: "Students", Headers: headers, Rows: rows}, nil
}

func (s *ExportService) buildProgramDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	stats, err := s.sources.Programs.ProgramStats(ctx, models.AnalyticsFilter{DateFrom: params.DateFrom, DateTo: params.DateTo})
	if err != nil {
		return export.Dataset{}, err
	}
	headers := []string{"Program", "Capacity", "Enrolled", "Enrollment (%)", "Sessions Held", "Attendance (%)"}
	rows := make([]map[string]string, 0, len(stats))
	for _, p := range stats {
		if params.ProgramID != nil && *params.ProgramID != "" && p.ProgramID != *params.ProgramID {
			continue
		}
		rows = append(rows, map[string]string{
			"Program":        p.ProgramName,
			"Capacity":       fmt.Sprintf("%d", p.Capacity),
			"Enrolled":       fmt.Sprintf("%d", p.Enrolled),
			"Enrollment (%)": fmt.Sprintf("%d", p.EnrollmentPercentage),
			"Sessions Held":  fmt.Sprintf("%d", p.SessionsHeld),
			"Attendance (%)": fmt.Sprintf("%d", p.AttendancePercentage),
		})
	}
	return export.Dataset{Title: "Program Summary" + periodSuffix(params), Headers: headers, Rows: rows}, nil
}

func (s *ExportService) buildResourceDataset(ctx context.Context) (export.Dataset, error) {
	resources, err := s.sources.Resources.ListAll(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	headers := []string{"SKU", "Name", "Category", "In Stock", "Reorder Level", "Condition", "Low Stock", "Value"}
	rows := make([]map[string]string, 0, len(resources))
	for _, r := range resources {
		rows = append(rows, map[string]string{
			"SKU":           r.SKU,
			"Name":          r.Name,
			"Category":      r.Category,
			"In Stock":      fmt.Sprintf("%d", r.QuantityInStock),
			"Reorder Level": fmt.Sprintf("%d", r.ReorderLevel),
			"Condition":     string(r.Condition),
			"Low Stock":     yesNo(r.LowStock()),
			"Value":         fmt.Sprintf("%.2f", r.InventoryValue()),
		})
	}
	return export.Dataset{Title: "Resource Inventory", Headers: headers, Rows: rows}, nil
}

func (s *ExportService) sessionFilter(params models.ReportJobParams) models.SessionFilter {
	active := true
	return models.SessionFilter{
		ProgramID: deref(params.ProgramID),
		StaffID:   deref(params.TutorID),
		DateFrom:  params.DateFrom,
		DateTo:    params.DateTo,
		Active:    &active,
	}
}

func (s *ExportService) buildSessionDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	sessions, err := s.sources.Sessions.ListAll(ctx, s.sessionFilter(params))
	if err != nil {
		return export.Dataset{}, err
	}
	headers := []string{"Date", "Start", "End", "Title", "Type", "Status", "Planned (min)", "Actual (min)", "Students"}
	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		actual := ""
		if session.ActualDuration != nil {
			actual = fmt.Sprintf("%d", *session.ActualDuration)
		}
		rows = append(rows, map[string]string{
			"Date":          session.Date.Format(dateLayout),
			"Start":         session.StartTime,
			"End":           session.EndTime,
			"Title":         session.Title,
			"Type":          string(session.SessionType),
			"Status":        string(session.Status),
			"Planned (min)": fmt.Sprintf("%d", session.PlannedDuration),
			"Actual (min)":  actual,
			"Students":      fmt.Sprintf("%d", len(session.EnrolledStudentIDs)),
		})
	}
	return export.Dataset{Title: "Sessions" + periodSuffix(params), Headers: headers, Rows: rows}, nil
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, error) {
	sessions, err := s.sources.Sessions.ListAll(ctx, s.sessionFilter(params))
	if err != nil {
		return export.Dataset{}, err
	}
	report := buildAttendanceReport(sessions)
	headers := []string{"Date", "Session", "Status", "Recorded", "Present", "Late", "Absent", "Attendance (%)", "Engagement"}
	rows := make([]map[string]string, 0, len(report.Rows)+1)
	for _, row := range report.Rows {
		rows = append(rows, map[string]string{
			"Date":           row.Date.Format(dateLayout),
			"Session":        row.Title,
			"Status":         string(row.Status),
			"Recorded":       fmt.Sprintf("%d", row.Count.Total),
			"Present":        fmt.Sprintf("%d", row.Count.Present),
			"Late":           fmt.Sprintf("%d", row.Count.Late),
			"Absent":         fmt.Sprintf("%d", row.Count.Absent),
			"Attendance (%)": fmt.Sprintf("%d", row.AttendancePercentage),
			"Engagement":     fmt.Sprintf("%.2f", row.AverageEngagement),
		})
	}
	rows = append(rows, map[string]string{
		"Session":        "Total",
		"Recorded":       fmt.Sprintf("%d", report.Records),
		"Attendance (%)": fmt.Sprintf("%d", report.AttendancePercentage),
	})
	return export.Dataset{Title: "Attendance" + periodSuffix(params), Headers: headers, Rows: rows}, nil
}

func periodSuffix(params models.ReportJobParams) string {
	switch {
	case params.DateFrom != nil && params.DateTo != nil:
		return fmt.Sprintf(" %s to %s", params.DateFrom.Format(dateLayout), params.DateTo.Format(dateLayout))
	case params.DateFrom != nil:
		return " from " + params.DateFrom.Format(dateLayout)
	case params.DateTo != nil:
		return " until " + params.DateTo.Format(dateLayout)
	}
	return ""
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
