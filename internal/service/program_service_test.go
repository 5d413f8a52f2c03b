package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type mockProgramRepo struct {
	programs  map[string]models.Program
	rosters   map[string][]string
	enrollErr error
	updated   *models.Program
}

func (m *mockProgramRepo) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	out := make([]models.Program, 0, len(m.programs))
	for _, p := range m.programs {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockProgramRepo) FindByID(ctx context.Context, id string) (*models.Program, error) {
	if p, ok := m.programs[id]; ok {
		p.EnrolledCount = len(m.rosters[id])
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockProgramRepo) Create(ctx context.Context, program *models.Program) error {
	program.ID = "new-program"
	m.programs[program.ID] = *program
	return nil
}

func (m *mockProgramRepo) Update(ctx context.Context, program *models.Program) error {
	m.updated = program
	m.programs[program.ID] = *program
	return nil
}

func (m *mockProgramRepo) Deactivate(ctx context.Context, id string) error {
	p := m.programs[id]
	p.Active = false
	m.programs[id] = p
	return nil
}

func (m *mockProgramRepo) Enroll(ctx context.Context, programID, studentID string, enrolledBy *string) error {
	if m.enrollErr != nil {
		return m.enrollErr
	}
	if _, ok := m.programs[programID]; !ok {
		return sql.ErrNoRows
	}
	m.rosters[programID] = append(m.rosters[programID], studentID)
	return nil
}

func (m *mockProgramRepo) Unenroll(ctx context.Context, programID, studentID string) (bool, error) {
	roster := m.rosters[programID]
	for i, id := range roster {
		if id == studentID {
			m.rosters[programID] = append(roster[:i], roster[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProgramRepo) Roster(ctx context.Context, programID string) ([]models.ProgramRosterEntry, error) {
	var out []models.ProgramRosterEntry
	for _, id := range m.rosters[programID] {
		out = append(out, models.ProgramRosterEntry{ProgramEnrollment: models.ProgramEnrollment{ProgramID: programID, StudentID: id}})
	}
	return out, nil
}

func (m *mockProgramRepo) RosterIDs(ctx context.Context, programID string) ([]string, error) {
	return m.rosters[programID], nil
}

type fakeAudit struct {
	logs []models.AuditLog
}

func (f *fakeAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.logs = append(f.logs, *log)
	return nil
}

type fakeEnrollMetrics struct {
	accepted int
	rejected []string
}

func (f *fakeEnrollMetrics) RecordEnrollment(accepted bool, reason string) {
	if accepted {
		f.accepted++
		return
	}
	f.rejected = append(f.rejected, reason)
}

type programFixture struct {
	svc      *ProgramService
	repo     *mockProgramRepo
	audit    *fakeAudit
	metrics  *fakeEnrollMetrics
	cache    *fakeInvalidator
	students *mockStudentRepo
}

func newProgramFixture() programFixture {
	repo := &mockProgramRepo{
		programs: map[string]models.Program{
			"p1": {ID: "p1", Name: "Algebra", Capacity: 2, Active: true},
		},
		rosters: map[string][]string{"p1": {"s0"}},
	}
	students := &mockStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", FirstName: "Ana", Active: true},
		"s2": {ID: "s2", FirstName: "Ben", Active: false},
	}}
	f := programFixture{repo: repo, audit: &fakeAudit{}, metrics: &fakeEnrollMetrics{}, cache: &fakeInvalidator{}, students: students}
	f.svc = NewProgramService(repo, students, f.audit, f.metrics, f.cache, nil, nil)
	return f
}

var adminActor = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestProgramServiceGetIncludesRoster(t *testing.T) {
	f := newProgramFixture()

	resp, err := f.svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s0"}, resp.EnrolledStudents)
	assert.Equal(t, 50, resp.EnrollmentPercentage)

	_, err = f.svc.Get(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestProgramServiceCreateRejectsInvertedDates(t *testing.T) {
	f := newProgramFixture()

	_, err := f.svc.Create(context.Background(), dto.CreateProgramRequest{
		Name: "Physics", Capacity: 5, StartDate: strPtr("2024-05-01"), EndDate: strPtr("2024-04-01"),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	resp, err := f.svc.Create(context.Background(), dto.CreateProgramRequest{Name: " Physics ", Capacity: 5})
	require.NoError(t, err)
	assert.Equal(t, "Physics", resp.Name)
	assert.True(t, resp.Active)
	assert.Empty(t, resp.EnrolledStudents)
	assert.Equal(t, []string{analyticsCachePattern}, f.cache.patterns)
}

func TestProgramServiceUpdateCapacityBelowEnrollment(t *testing.T) {
	f := newProgramFixture()
	f.repo.rosters["p1"] = []string{"s0", "s1"}

	one := 1
	_, err := f.svc.Update(context.Background(), "p1", dto.UpdateProgramRequest{Capacity: &one})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Nil(t, f.repo.updated)

	three := 3
	resp, err := f.svc.Update(context.Background(), "p1", dto.UpdateProgramRequest{Capacity: &three, Name: strPtr("Algebra II")})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Capacity)
	assert.Equal(t, "Algebra II", resp.Name)
}

func TestProgramServiceEnroll(t *testing.T) {
	f := newProgramFixture()

	resp, err := f.svc.Enroll(context.Background(), adminActor, "p1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1"}, resp.EnrolledStudents)
	assert.Equal(t, 100, resp.EnrollmentPercentage)
	assert.Equal(t, 1, f.metrics.accepted)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionEnroll, f.audit.logs[0].Action)
	assert.Equal(t, []string{analyticsCachePattern}, f.cache.patterns)
}

func TestProgramServiceEnrollRejections(t *testing.T) {
	cases := []struct {
		name      string
		studentID string
		repoErr   error
		want      *appErrors.Error
		reason    string
	}{
		{name: "unknown student", studentID: "ghost", want: appErrors.ErrNotFound},
		{name: "inactive student", studentID: "s2", want: appErrors.ErrPreconditionFailed, reason: "student_inactive"},
		{name: "full", studentID: "s1", repoErr: repository.ErrProgramFull, want: appErrors.ErrCapacityReached, reason: "capacity"},
		{name: "duplicate", studentID: "s1", repoErr: repository.ErrAlreadyEnrolled, want: appErrors.ErrAlreadyEnrolled, reason: "already_enrolled"},
		{name: "inactive program", studentID: "s1", repoErr: repository.ErrProgramInactive, want: appErrors.ErrPreconditionFailed, reason: "program_inactive"},
		{name: "unknown program", studentID: "s1", repoErr: sql.ErrNoRows, want: appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newProgramFixture()
			f.repo.enrollErr = tc.repoErr

			_, err := f.svc.Enroll(context.Background(), adminActor, "p1", tc.studentID)
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, tc.want), "got %v", err)
			assert.Empty(t, f.audit.logs)
			assert.Zero(t, f.metrics.accepted)
			if tc.reason != "" {
				assert.Equal(t, []string{tc.reason}, f.metrics.rejected)
			}
		})
	}
}

func TestProgramServiceUnenroll(t *testing.T) {
	f := newProgramFixture()

	require.NoError(t, f.svc.Unenroll(context.Background(), adminActor, "p1", "s0"))
	assert.Empty(t, f.repo.rosters["p1"])
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionUnenroll, f.audit.logs[0].Action)

	err := f.svc.Unenroll(context.Background(), adminActor, "p1", "s0")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestProgramServiceRoster(t *testing.T) {
	f := newProgramFixture()

	roster, err := f.svc.Roster(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "s0", roster[0].StudentID)

	_, err = f.svc.Roster(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
