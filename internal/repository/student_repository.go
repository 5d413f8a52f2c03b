package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-measures-api/internal/models"
)

const studentColumns = `s.id, s.first_name, s.last_name, s.date_of_birth, s.grade_level, s.school, s.parent_id, s.parent_name, s.parent_email, s.parent_phone, s.notes, s.active, s.created_at, s.updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var where whereBuilder
	if filter.Search != "" {
		where.add("(LOWER(s.first_name) LIKE %s OR LOWER(s.last_name) LIKE %s OR LOWER(s.parent_name) LIKE %s)", likePattern(filter.Search))
	}
	if filter.GradeLevel != "" {
		where.add("s.grade_level = %s", filter.GradeLevel)
	}
	if filter.ParentID != "" {
		where.add("s.parent_id = %s", filter.ParentID)
	}
	if filter.ProgramID != "" {
		where.add("EXISTS (SELECT 1 FROM program_enrollments pe WHERE pe.student_id = s.id AND pe.program_id = %s)", filter.ProgramID)
	}
	if filter.Active != nil {
		where.add("s.active = %s", *filter.Active)
	}

	allowedSorts := map[string]string{
		"first_name":  "s.first_name",
		"last_name":   "s.last_name",
		"grade_level": "s.grade_level",
		"created_at":  "s.created_at",
	}
	tail := orderAndPage(filter.SortBy, filter.SortOrder, allowedSorts, "s.created_at", filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM students s %s %s", studentColumns, where.clause(), tail)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students s %s", where.clause())
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s WHERE s.id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ProgramIDs lists the programs a student is enrolled in.
func (r *StudentRepository) ProgramIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT program_id FROM program_enrollments WHERE student_id = $1 ORDER BY enrolled_at`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("list student programs: %w", err)
	}
	return ids, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, first_name, last_name, date_of_birth, grade_level, school, parent_id, parent_name, parent_email, parent_phone, notes, active, created_at, updated_at)
        VALUES (:id, :first_name, :last_name, :date_of_birth, :grade_level, :school, :parent_id, :parent_name, :parent_email, :parent_phone, :notes, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, date_of_birth = :date_of_birth, grade_level = :grade_level, school = :school,
        parent_id = :parent_id, parent_name = :parent_name, parent_email = :parent_email, parent_phone = :parent_phone, notes = :notes, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate marks a student as inactive.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}

// CountActive returns the number of active students.
func (r *StudentRepository) CountActive(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM students WHERE active = TRUE`); err != nil {
		return 0, fmt.Errorf("count active students: %w", err)
	}
	return total, nil
}
