package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/pkg/storage"
)

type exportFixture struct {
	svc      *ExportService
	store    *storage.LocalStorage
	sessions *mockSessionRepo
	students *mockStudentRepo
}

func newExportFixture(t *testing.T) exportFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {
			ID: "sess-1", Title: "Algebra basics", Date: day, StartTime: "09:00", EndTime: "10:30",
			PlannedDuration: 90, Status: models.SessionStatusCompleted, SessionType: models.SessionTypeRegular,
			EnrolledStudentIDs: []string{"stu-1", "stu-2"},
			Attendance: models.AttendanceRecords{
				{StudentID: "stu-1", Status: models.AttendancePresent},
				{StudentID: "stu-2", Status: models.AttendanceAbsent},
			},
		},
	}}
	students := &mockStudentRepo{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FirstName: "Ada", LastName: "Lovelace", GradeLevel: "Grade 8", Active: true},
	}}
	analytics := &mockAnalyticsRepo{programs: []models.ProgramStats{
		{ProgramID: "prog-1", ProgramName: "Math Club", Capacity: 10, Enrolled: 5, EnrollmentPercentage: 50},
		{ProgramID: "prog-2", ProgramName: "Chess", Capacity: 8, Enrolled: 8, EnrollmentPercentage: 100},
	}}
	inventory := stubInventory{resources: []models.Resource{
		{ID: "res-1", SKU: "BK-1", Name: "Workbook", QuantityInStock: 2, ReorderLevel: 5, Condition: models.ConditionGood},
	}}

	signer := storage.NewDownloadSigner("secret", time.Hour)
	svc := NewExportService(ExportSources{
		Students:  students,
		Programs:  analytics,
		Resources: inventory,
		Sessions:  sessions,
	}, store, signer, ExportConfig{APIPrefix: "/api/v1/", ResultTTL: time.Hour}, zap.NewNop(), nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC) }
	return exportFixture{svc: svc, store: store, sessions: sessions, students: students}
}

func readExport(t *testing.T, store *storage.LocalStorage, rel string) string {
	t.Helper()
	data, err := os.ReadFile(store.Path(rel))
	require.NoError(t, err)
	return string(data)
}

func TestExportServiceGenerateAttendanceCSV(t *testing.T) {
	f := newExportFixture(t)
	tutor := "tutor-1"
	job := &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeAttendance,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV, TutorID: &tutor},
	}

	result, err := f.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))
	assert.Equal(t, "attendance_all_20240305_080000.csv", filepath.Base(result.RelativePath))
	assert.Equal(t, "tutor-1", f.sessions.lastFilter.StaffID)

	body := readExport(t, f.store, result.RelativePath)
	assert.Contains(t, body, "Date,Session,Status,Recorded,Present,Late,Absent,Attendance (%),Engagement")
	assert.Contains(t, body, "2024-03-04,Algebra basics,Completed,2,1,0,1,50")
	assert.Contains(t, body, "Total,,2")

	jobID, rel, _, err := f.svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, result.RelativePath, rel)
}

func TestExportServiceProgramDatasetFiltersProgram(t *testing.T) {
	f := newExportFixture(t)
	program := "prog-2"
	job := &models.ReportJob{
		ID:     "job-2",
		Type:   models.ReportTypePrograms,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV, ProgramID: &program},
	}

	result, err := f.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Contains(t, result.RelativePath, "programs_prog-2_")

	body := readExport(t, f.store, result.RelativePath)
	assert.Contains(t, body, "Chess,8,8,100")
	assert.NotContains(t, body, "Math Club")
}

func TestExportServiceStudentsXLSX(t *testing.T) {
	f := newExportFixture(t)
	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportTypeStudents,
		Params: models.ReportJobParams{Format: models.ReportFormatXLSX},
	}

	result, err := f.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatXLSX, result.Format)
	assert.Equal(t, ".xlsx", filepath.Ext(result.RelativePath))
	assert.Equal(t, exportPageSize, f.students.lastFilter.PageSize)

	info, err := os.Stat(f.store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceResourcesPDF(t *testing.T) {
	f := newExportFixture(t)
	job := &models.ReportJob{
		ID:     "job-4",
		Type:   models.ReportTypeResources,
		Params: models.ReportJobParams{Format: models.ReportFormatPDF},
	}

	result, err := f.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	body := readExport(t, f.store, result.RelativePath)
	assert.True(t, strings.HasPrefix(body, "%PDF"))
}

func TestExportServiceRejectsUnknownFormatAndType(t *testing.T) {
	f := newExportFixture(t)

	_, err := f.svc.Generate(context.Background(), &models.ReportJob{ID: "x", Type: models.ReportTypeSessions, Params: models.ReportJobParams{Format: "docx"}})
	require.Error(t, err)

	_, err = f.svc.Generate(context.Background(), &models.ReportJob{ID: "y", Type: "grades", Params: models.ReportJobParams{Format: models.ReportFormatCSV}})
	require.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "a-b_c", sanitizeFilename("a/b c"))
}
