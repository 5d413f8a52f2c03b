package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
)

type fakeInvalidator struct {
	patterns []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

type mockStudentRepo struct {
	students    map[string]models.Student
	programs    map[string][]string
	deactivated []string
	lastFilter  models.StudentFilter
	err         error
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ProgramIDs(ctx context.Context, studentID string) ([]string, error) {
	return m.programs[studentID], nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "generated"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func strPtr(v string) *string { return &v }

func TestStudentServiceCreate(t *testing.T) {
	repo := &mockStudentRepo{}
	cache := &fakeInvalidator{}
	svc := NewStudentService(repo, cache, validator.New(), zap.NewNop())

	student, err := svc.Create(context.Background(), dto.CreateStudentRequest{
		FirstName:   " Ada ",
		LastName:    "Lovelace",
		DateOfBirth: strPtr("2012-12-10"),
		ParentEmail: "Parent@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", student.FirstName)
	assert.Equal(t, "parent@example.com", student.ParentEmail)
	require.NotNil(t, student.DateOfBirth)
	assert.Equal(t, 2012, student.DateOfBirth.Year())
	assert.True(t, student.Active)
	assert.Equal(t, []string{"analytics*"}, cache.patterns)
}

func TestStudentServiceCreateValidation(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, nil, validator.New(), zap.NewNop())
	_, err := svc.Create(context.Background(), dto.CreateStudentRequest{FirstName: "Ada"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(context.Background(), dto.CreateStudentRequest{FirstName: "Ada", LastName: "L", DateOfBirth: strPtr("10/12/2012")})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestStudentServiceListScopesParents(t *testing.T) {
	repo := &mockStudentRepo{}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())

	_, pagination, err := svc.List(context.Background(), &models.JWTClaims{UserID: "parent-1", Role: models.RoleParent}, models.StudentFilter{ParentID: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "parent-1", repo.lastFilter.ParentID)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)

	_, _, err = svc.List(context.Background(), &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}, models.StudentFilter{GradeLevel: "5"})
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.ParentID)
}

func TestStudentServiceGetParentAccess(t *testing.T) {
	repo := &mockStudentRepo{
		students: map[string]models.Student{
			"s1": {ID: "s1", FirstName: "Ada", ParentID: strPtr("parent-1")},
			"s2": {ID: "s2", FirstName: "Bob"},
		},
		programs: map[string][]string{"s1": {"prog-1"}},
	}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())
	parent := &models.JWTClaims{UserID: "parent-1", Role: models.RoleParent}

	detail, err := svc.Get(context.Background(), parent, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"prog-1"}, detail.ProgramIDs)

	_, err = svc.Get(context.Background(), parent, "s2")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	detail, err = svc.Get(context.Background(), &models.JWTClaims{UserID: "t", Role: models.RoleTutor}, "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{}, detail.ProgramIDs)

	_, err = svc.Get(context.Background(), parent, "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestStudentServiceUpdateMerges(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"s1": {ID: "s1", FirstName: "Ada", LastName: "Lovelace", School: "North", ParentID: strPtr("parent-1"), Active: true},
	}}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())

	updated, err := svc.Update(context.Background(), "s1", dto.UpdateStudentRequest{GradeLevel: strPtr("6"), ParentID: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", updated.FirstName)
	assert.Equal(t, "North", updated.School)
	assert.Equal(t, "6", updated.GradeLevel)
	assert.Nil(t, updated.ParentID)
	assert.True(t, updated.Active)
}

func TestStudentServiceDeactivate(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{"s1": {ID: "s1"}}}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())

	require.NoError(t, svc.Deactivate(context.Background(), "s1"))
	assert.Equal(t, []string{"s1"}, repo.deactivated)
	assert.True(t, appErrors.Is(svc.Deactivate(context.Background(), "nope"), appErrors.ErrNotFound))
}
