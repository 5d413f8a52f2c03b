package dto

import "github.com/noah-isme/class-measures-api/internal/models"

// CreateSessionRequest captures POST /sessions payload. The roster defaults
// to the program's enrollment when EnrolledStudentIDs is omitted.
type CreateSessionRequest struct {
	ProgramID          string                `json:"program_id" validate:"required"`
	TutorID            string                `json:"tutor_id"`
	AssistantIDs       []string              `json:"assistant_ids"`
	Title              string                `json:"title" validate:"required,max=200"`
	Description        string                `json:"description"`
	Date               string                `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime          string                `json:"start_time" validate:"required"`
	EndTime            string                `json:"end_time" validate:"required"`
	PlannedDuration    int                   `json:"planned_duration" validate:"min=0"`
	Location           string                `json:"location" validate:"omitempty,max=200"`
	SessionType        models.SessionType    `json:"session_type"`
	EnrolledStudentIDs []string              `json:"enrolled_student_ids"`
	Objectives         models.Objectives     `json:"objectives"`
	Agenda             models.Agenda         `json:"agenda"`
	ResourcesUsed      models.ResourceUsages `json:"resources_used"`
	TutorNotes         string                `json:"tutor_notes"`
}

// UpdateSessionRequest merges plan and outcome fields. Status is changed
// through the status endpoint.
type UpdateSessionRequest struct {
	TutorID            *string                 `json:"tutor_id"`
	AssistantIDs       []string                `json:"assistant_ids"`
	Title              *string                 `json:"title" validate:"omitempty,min=1,max=200"`
	Description        *string                 `json:"description"`
	Date               *string                 `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime          *string                 `json:"start_time"`
	EndTime            *string                 `json:"end_time"`
	PlannedDuration    *int                    `json:"planned_duration" validate:"omitempty,min=0"`
	Location           *string                 `json:"location" validate:"omitempty,max=200"`
	SessionType        *models.SessionType     `json:"session_type"`
	EnrolledStudentIDs []string                `json:"enrolled_student_ids"`
	Objectives         models.Objectives       `json:"objectives"`
	Agenda             models.Agenda           `json:"agenda"`
	ResourcesUsed      models.ResourceUsages   `json:"resources_used"`
	Outcomes           *models.SessionOutcomes `json:"outcomes"`
	TutorNotes         *string                 `json:"tutor_notes"`
}

// SessionStatusRequest captures POST /sessions/:id/status payload.
type SessionStatusRequest struct {
	Status models.SessionStatus `json:"status" validate:"required"`
	Reason string               `json:"reason" validate:"omitempty,max=500"`
}

// RescheduleRequest captures POST /sessions/:id/reschedule payload.
type RescheduleRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Reason    string `json:"reason" validate:"omitempty,max=500"`
}

// SessionResponse is a session together with its derived metrics.
type SessionResponse struct {
	models.Session
	Metrics models.SessionMetrics `json:"metrics"`
}

// NewSessionResponse computes metrics for s.
func NewSessionResponse(s models.Session) SessionResponse {
	return SessionResponse{Session: s, Metrics: models.ComputeSessionMetrics(&s)}
}

// RescheduleResponse returns both sides of a reschedule.
type RescheduleResponse struct {
	Original SessionResponse `json:"original"`
	Makeup   SessionResponse `json:"makeup"`
}
