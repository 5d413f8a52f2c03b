package dto

// CreateStudentRequest captures POST /students payload.
type CreateStudentRequest struct {
	FirstName   string  `json:"first_name" validate:"required,max=100"`
	LastName    string  `json:"last_name" validate:"required,max=100"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	GradeLevel  string  `json:"grade_level" validate:"omitempty,max=40"`
	School      string  `json:"school" validate:"omitempty,max=200"`
	ParentID    *string `json:"parent_id" validate:"omitempty,uuid"`
	ParentName  string  `json:"parent_name" validate:"omitempty,max=200"`
	ParentEmail string  `json:"parent_email" validate:"omitempty,email"`
	ParentPhone string  `json:"parent_phone" validate:"omitempty,max=40"`
	Notes       string  `json:"notes"`
}

// UpdateStudentRequest merges the provided fields into the stored student. An
// empty ParentID unlinks the parent account.
type UpdateStudentRequest struct {
	FirstName   *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName    *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	GradeLevel  *string `json:"grade_level" validate:"omitempty,max=40"`
	School      *string `json:"school" validate:"omitempty,max=200"`
	ParentID    *string `json:"parent_id"`
	ParentName  *string `json:"parent_name" validate:"omitempty,max=200"`
	ParentEmail *string `json:"parent_email" validate:"omitempty,email"`
	ParentPhone *string `json:"parent_phone" validate:"omitempty,max=40"`
	Notes       *string `json:"notes"`
	Active      *bool   `json:"active"`
}
