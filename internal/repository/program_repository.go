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

// Enrollment outcomes reported by ProgramRepository.Enroll.
var (
	ErrProgramFull     = errors.New("program is at capacity")
	ErrAlreadyEnrolled = errors.New("student already enrolled")
	ErrProgramInactive = errors.New("program is inactive")
)

const programColumns = `p.id, p.name, p.description, p.subject, p.level, p.tutor_id, p.capacity, p.price, p.start_date, p.end_date, p.schedule, p.active, p.created_at, p.updated_at,
        (SELECT COUNT(*) FROM program_enrollments pe WHERE pe.program_id = p.id) AS enrolled_count`

// ProgramRepository persists programs and their rosters.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs a ProgramRepository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// List returns programs matching filter with the total count.
func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	var where whereBuilder
	if filter.Search != "" {
		where.add("(LOWER(p.name) LIKE %s OR LOWER(p.description) LIKE %s)", likePattern(filter.Search))
	}
	if filter.Subject != "" {
		where.add("p.subject = %s", filter.Subject)
	}
	if filter.Level != "" {
		where.add("p.level = %s", filter.Level)
	}
	if filter.TutorID != "" {
		where.add("p.tutor_id = %s", filter.TutorID)
	}
	if filter.Active != nil {
		where.add("p.active = %s", *filter.Active)
	}

	allowedSorts := map[string]string{
		"name":       "p.name",
		"subject":    "p.subject",
		"start_date": "p.start_date",
		"created_at": "p.created_at",
	}
	tail := orderAndPage(filter.SortBy, filter.SortOrder, allowedSorts, "p.created_at", filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM programs p %s %s", programColumns, where.clause(), tail)
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM programs p %s", where.clause()), where.args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}
	return programs, total, nil
}

// FindByID returns a program with its enrolled count.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs p WHERE p.id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find program: %w", err)
	}
	return &program, nil
}

// Create inserts a program.
func (r *ProgramRepository) Create(ctx context.Context, program *models.Program) error {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if program.CreatedAt.IsZero() {
		program.CreatedAt = now
	}
	program.UpdatedAt = now
	const query = `INSERT INTO programs (id, name, description, subject, level, tutor_id, capacity, price, start_date, end_date, schedule, active, created_at, updated_at)
        VALUES (:id, :name, :description, :subject, :level, :tutor_id, :capacity, :price, :start_date, :end_date, :schedule, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// Update modifies a program.
func (r *ProgramRepository) Update(ctx context.Context, program *models.Program) error {
	program.UpdatedAt = time.Now().UTC()
	const query = `UPDATE programs SET name = :name, description = :description, subject = :subject, level = :level, tutor_id = :tutor_id, capacity = :capacity,
        price = :price, start_date = :start_date, end_date = :end_date, schedule = :schedule, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, program); err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	return nil
}

// Deactivate soft deletes a program.
func (r *ProgramRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE programs SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate program: %w", err)
	}
	return nil
}

// Enroll appends a student to the roster. The program row is locked for
// the duration of the transaction so the capacity check and the insert
// cannot interleave with a concurrent enrollment.
func (r *ProgramRepository) Enroll(ctx context.Context, programID, studentID string, enrolledBy *string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var program struct {
		Capacity int  `db:"capacity"`
		Active   bool `db:"active"`
	}
	const lockQuery = `SELECT capacity, active FROM programs WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &program, lockQuery, programID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock program: %w", err)
	}
	if !program.Active {
		return ErrProgramInactive
	}

	var roster struct {
		Enrolled int  `db:"enrolled"`
		Present  bool `db:"present"`
	}
	const rosterQuery = `SELECT COUNT(*) AS enrolled, COALESCE(BOOL_OR(student_id = $2), FALSE) AS present FROM program_enrollments WHERE program_id = $1`
	if err = tx.GetContext(ctx, &roster, rosterQuery, programID, studentID); err != nil {
		return fmt.Errorf("count roster: %w", err)
	}
	if roster.Present {
		return ErrAlreadyEnrolled
	}
	if roster.Enrolled >= program.Capacity {
		return ErrProgramFull
	}

	const insertQuery = `INSERT INTO program_enrollments (program_id, student_id, enrolled_at, enrolled_by) VALUES ($1, $2, $3, $4)`
	if _, err = tx.ExecContext(ctx, insertQuery, programID, studentID, time.Now().UTC(), enrolledBy); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyEnrolled
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// Unenroll removes a student from the roster and reports whether a row existed.
func (r *ProgramRepository) Unenroll(ctx context.Context, programID, studentID string) (bool, error) {
	const query = `DELETE FROM program_enrollments WHERE program_id = $1 AND student_id = $2`
	res, err := r.db.ExecContext(ctx, query, programID, studentID)
	if err != nil {
		return false, fmt.Errorf("unenroll student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unenroll rows affected: %w", err)
	}
	return affected > 0, nil
}

// Roster lists the enrolled students with basic details.
func (r *ProgramRepository) Roster(ctx context.Context, programID string) ([]models.ProgramRosterEntry, error) {
	const query = `SELECT pe.program_id, pe.student_id, pe.enrolled_at, pe.enrolled_by, s.first_name, s.last_name, s.grade_level
        FROM program_enrollments pe JOIN students s ON s.id = pe.student_id
        WHERE pe.program_id = $1 ORDER BY s.last_name, s.first_name`
	entries := []models.ProgramRosterEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, programID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return entries, nil
}

// RosterIDs returns the enrolled student ids.
func (r *ProgramRepository) RosterIDs(ctx context.Context, programID string) ([]string, error) {
	const query = `SELECT student_id FROM program_enrollments WHERE program_id = $1 ORDER BY enrolled_at`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, programID); err != nil {
		return nil, fmt.Errorf("list roster ids: %w", err)
	}
	return ids, nil
}
