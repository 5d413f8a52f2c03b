package models

import (
	"math"
	"time"
)

// Program is a course offered by the business with a bounded roster.
type Program struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Description   string     `db:"description" json:"description"`
	Subject       string     `db:"subject" json:"subject"`
	Level         string     `db:"level" json:"level"`
	TutorID       *string    `db:"tutor_id" json:"tutor_id,omitempty"`
	Capacity      int        `db:"capacity" json:"capacity"`
	Price         float64    `db:"price" json:"price"`
	StartDate     *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate       *time.Time `db:"end_date" json:"end_date,omitempty"`
	Schedule      string     `db:"schedule" json:"schedule"`
	Active        bool       `db:"active" json:"active"`
	EnrolledCount int        `db:"enrolled_count" json:"enrolled_count"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EnrollmentPercentage is round(100 * enrolled / capacity); 0 when capacity is 0.
func (p Program) EnrollmentPercentage() int {
	if p.Capacity <= 0 {
		return 0
	}
	return int(math.Round(float64(p.EnrolledCount) * 100 / float64(p.Capacity)))
}

// Full reports whether no seat is left.
func (p Program) Full() bool {
	return p.EnrolledCount >= p.Capacity
}

// ProgramFilter scopes program listings.
type ProgramFilter struct {
	Search    string
	Subject   string
	Level     string
	TutorID   string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ProgramEnrollment links a student to a program.
type ProgramEnrollment struct {
	ProgramID  string    `db:"program_id" json:"program_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	EnrolledBy *string   `db:"enrolled_by" json:"enrolled_by,omitempty"`
}

// ProgramRosterEntry is a roster line with student details.
type ProgramRosterEntry struct {
	ProgramEnrollment
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name"`
	GradeLevel string `db:"grade_level" json:"grade_level"`
}
