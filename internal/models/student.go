package models

import "time"

// Student represents a learner registered with the tutoring business.
type Student struct {
	ID          string     `db:"id" json:"id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	GradeLevel  string     `db:"grade_level" json:"grade_level"`
	School      string     `db:"school" json:"school"`
	ParentID    *string    `db:"parent_id" json:"parent_id,omitempty"`
	ParentName  string     `db:"parent_name" json:"parent_name"`
	ParentEmail string     `db:"parent_email" json:"parent_email"`
	ParentPhone string     `db:"parent_phone" json:"parent_phone"`
	Notes       string     `db:"notes" json:"notes"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	GradeLevel string
	ProgramID  string
	ParentID   string
	Active     *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// StudentDetail contains a student together with the programs they attend.
type StudentDetail struct {
	Student
	ProgramIDs []string `json:"program_ids"`
}
