package dto

import "github.com/noah-isme/class-measures-api/internal/models"

// CreateProgramRequest captures POST /programs payload.
type CreateProgramRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description"`
	Subject     string  `json:"subject" validate:"omitempty,max=100"`
	Level       string  `json:"level" validate:"omitempty,max=100"`
	TutorID     *string `json:"tutor_id" validate:"omitempty,uuid"`
	Capacity    int     `json:"capacity" validate:"required,min=1"`
	Price       float64 `json:"price" validate:"min=0"`
	StartDate   *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Schedule    string  `json:"schedule"`
}

// UpdateProgramRequest merges the provided fields into the stored program.
type UpdateProgramRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description"`
	Subject     *string  `json:"subject" validate:"omitempty,max=100"`
	Level       *string  `json:"level" validate:"omitempty,max=100"`
	TutorID     *string  `json:"tutor_id" validate:"omitempty,uuid"`
	Capacity    *int     `json:"capacity" validate:"omitempty,min=1"`
	Price       *float64 `json:"price" validate:"omitempty,min=0"`
	StartDate   *string  `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     *string  `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Schedule    *string  `json:"schedule"`
	Active      *bool    `json:"active"`
}

// EnrollRequest captures POST /programs/:id/enroll payload.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// ProgramResponse adds derived roster figures to a program.
type ProgramResponse struct {
	models.Program
	EnrolledStudents     []string `json:"enrolled_students"`
	EnrollmentPercentage int      `json:"enrollment_percentage"`
}

// NewProgramResponse builds the response from a program and its roster ids.
func NewProgramResponse(p models.Program, roster []string) ProgramResponse {
	if roster == nil {
		roster = []string{}
	}
	return ProgramResponse{Program: p, EnrolledStudents: roster, EnrollmentPercentage: p.EnrollmentPercentage()}
}
