package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

func (m *mockSessionRepo) ListAll(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	m.lastFilter = filter
	out := []models.Session{}
	for _, id := range []string{"sess-1", "sess-2"} {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) RecordAttendance(ctx context.Context, id string, apply func(*models.Session) error) (*models.Session, error) {
	current, ok := m.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	current.Attendance = append(models.AttendanceRecords{}, current.Attendance...)
	if err := apply(&current); err != nil {
		return nil, err
	}
	m.sessions[id] = current
	return &current, nil
}

func (m *mockSessionRepo) StudentAttendance(ctx context.Context, studentID string) ([]models.StudentAttendanceEntry, error) {
	return []models.StudentAttendanceEntry{
		{SessionID: "a", Status: models.AttendancePresent},
		{SessionID: "b", Status: models.AttendanceLate},
		{SessionID: "c", Status: models.AttendanceAbsent},
		{SessionID: "d", Status: models.AttendanceLeftEarly},
	}, nil
}

type fakeStudentAuthorizer struct {
	allowed map[string]bool
}

func (f *fakeStudentAuthorizer) Authorize(ctx context.Context, actor *models.JWTClaims, id string) (*models.Student, error) {
	if !f.allowed[id] {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not your child")
	}
	return &models.Student{ID: id}, nil
}

type fakeAttendanceMetrics struct {
	written int
}

func (f *fakeAttendanceMetrics) RecordAttendanceWritten(n int) { f.written += n }

func newAttendanceFixture() (*AttendanceService, *mockSessionRepo, *fakeAttendanceMetrics) {
	f := newSessionFixture()
	metrics := &fakeAttendanceMetrics{}
	svc := NewAttendanceService(f.repo, &fakeStudentAuthorizer{allowed: map[string]bool{"s1": true}}, metrics, &fakeInvalidator{}, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC) }
	return svc, f.repo, metrics
}

func TestAttendanceServiceRecordUpserts(t *testing.T) {
	svc, repo, metrics := newAttendanceFixture()
	ctx := context.Background()

	resp, err := svc.Record(ctx, tutorActor, dto.RecordAttendanceRequest{
		SessionID: "sess-1",
		Records: []models.AttendanceRecord{
			{StudentID: "s1", Participation: models.Participation{Level: models.ParticipationExcellent}},
			{StudentID: "s2", Status: models.AttendanceLate, Participation: models.Participation{Level: models.ParticipationFair}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceCount{Total: 2, Present: 1, Late: 1}, resp.Count)
	assert.Equal(t, 100, resp.AttendancePercentage)
	assert.Equal(t, 4.0, resp.AverageEngagement)
	assert.Equal(t, "tutor-1", resp.Records[0].RecordedBy)
	require.NotNil(t, resp.Records[0].RecordedAt)

	resp, err = svc.Record(ctx, tutorActor, dto.RecordAttendanceRequest{
		SessionID: "sess-1",
		Records:   []models.AttendanceRecord{{StudentID: "s2", Status: models.AttendanceAbsent}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Records, 2)
	assert.Equal(t, models.AttendanceCount{Total: 2, Present: 1, Absent: 1}, resp.Count)
	assert.Equal(t, 50, resp.AttendancePercentage)
	assert.Len(t, repo.sessions["sess-1"].Attendance, 2)
	assert.Equal(t, 3, metrics.written)
}

func TestAttendanceServiceRecordRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate student in payload", func(t *testing.T) {
		svc, _, _ := newAttendanceFixture()
		_, err := svc.Record(ctx, adminActor, dto.RecordAttendanceRequest{
			SessionID: "sess-1",
			Records:   []models.AttendanceRecord{{StudentID: "s1"}, {StudentID: "s1"}},
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})

	t.Run("off roster", func(t *testing.T) {
		svc, repo, _ := newAttendanceFixture()
		_, err := svc.Record(ctx, adminActor, dto.RecordAttendanceRequest{
			SessionID: "sess-1",
			Records:   []models.AttendanceRecord{{StudentID: "s1"}, {StudentID: "s9"}},
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
		assert.Empty(t, repo.sessions["sess-1"].Attendance)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc, _, _ := newAttendanceFixture()
		_, err := svc.Record(ctx, adminActor, dto.RecordAttendanceRequest{
			SessionID: "sess-1",
			Records:   []models.AttendanceRecord{{StudentID: "s1", Status: "Sleeping"}},
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	})

	t.Run("cancelled session", func(t *testing.T) {
		svc, repo, _ := newAttendanceFixture()
		s := repo.sessions["sess-1"]
		s.Status = models.SessionStatusCancelled
		repo.sessions["sess-1"] = s
		_, err := svc.Record(ctx, adminActor, dto.RecordAttendanceRequest{
			SessionID: "sess-1",
			Records:   []models.AttendanceRecord{{StudentID: "s1"}},
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
	})

	t.Run("foreign tutor", func(t *testing.T) {
		svc, _, _ := newAttendanceFixture()
		_, err := svc.Record(ctx, &models.JWTClaims{UserID: "tutor-2", Role: models.RoleTutor}, dto.RecordAttendanceRequest{
			SessionID: "sess-1",
			Records:   []models.AttendanceRecord{{StudentID: "s1"}},
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	})

	t.Run("unknown session", func(t *testing.T) {
		svc, _, _ := newAttendanceFixture()
		_, err := svc.Record(ctx, adminActor, dto.RecordAttendanceRequest{
			SessionID: "missing",
			Records:   []models.AttendanceRecord{{StudentID: "s1"}},
		})
		assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	})
}

func TestAttendanceServiceStudentHistory(t *testing.T) {
	svc, _, _ := newAttendanceFixture()
	parent := &models.JWTClaims{UserID: "parent-1", Role: models.RoleParent}

	resp, err := svc.StudentHistory(context.Background(), parent, "s1")
	require.NoError(t, err)
	assert.Equal(t, dto.StudentAttendanceSummary{Total: 4, Present: 1, Absent: 1, Late: 1, LeftEarly: 1, AttendancePercentage: 50}, resp.Summary)

	_, err = svc.StudentHistory(context.Background(), parent, "s2")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestAttendanceServiceReport(t *testing.T) {
	svc, repo, _ := newAttendanceFixture()
	repo.sessions["sess-2"] = models.Session{
		ID: "sess-2", ProgramID: "p1", TutorID: "tutor-1", Status: models.SessionStatusCompleted,
		EnrolledStudentIDs: pq.StringArray{"s1", "s2"},
		Attendance: models.AttendanceRecords{
			{StudentID: "s1", Status: models.AttendancePresent},
			{StudentID: "s2", Status: models.AttendanceAbsent},
		},
	}
	s := repo.sessions["sess-1"]
	s.Attendance = models.AttendanceRecords{{StudentID: "s1", Status: models.AttendanceLate}}
	repo.sessions["sess-1"] = s

	report, err := svc.Report(context.Background(), tutorActor, models.AttendanceReportFilter{ProgramID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "tutor-1", repo.lastFilter.StaffID)
	assert.Equal(t, 2, report.Sessions)
	assert.Equal(t, 3, report.Records)
	assert.Equal(t, 2, report.Attended)
	assert.Equal(t, 67, report.AttendancePercentage)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, 100, report.Rows[0].AttendancePercentage)
	assert.Equal(t, 0, report.Rows[0].Count.Present)
	assert.Equal(t, 50, report.Rows[1].AttendancePercentage)

	_, err = svc.Report(context.Background(), &models.JWTClaims{UserID: "p", Role: models.RoleParent}, models.AttendanceReportFilter{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
