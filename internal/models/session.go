package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusPlanned     SessionStatus = "Planned"
	SessionStatusInProgress  SessionStatus = "In Progress"
	SessionStatusCompleted   SessionStatus = "Completed"
	SessionStatusCancelled   SessionStatus = "Cancelled"
	SessionStatusRescheduled SessionStatus = "Rescheduled"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusPlanned:     {SessionStatusInProgress, SessionStatusCancelled, SessionStatusRescheduled},
	SessionStatusInProgress:  {SessionStatusCompleted, SessionStatusCancelled, SessionStatusRescheduled},
	SessionStatusRescheduled: {SessionStatusCancelled},
}

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPlanned, SessionStatusInProgress, SessionStatusCompleted, SessionStatusCancelled, SessionStatusRescheduled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsAttendance reports whether attendance may still be recorded.
func (s SessionStatus) AcceptsAttendance() bool {
	return s == SessionStatusPlanned || s == SessionStatusInProgress || s == SessionStatusCompleted
}

// SessionType classifies the purpose of a session.
type SessionType string

const (
	SessionTypeRegular    SessionType = "Regular"
	SessionTypeMakeup     SessionType = "Makeup"
	SessionTypeAssessment SessionType = "Assessment"
	SessionTypeReview     SessionType = "Review"
	SessionTypeWorkshop   SessionType = "Workshop"
)

// OutcomeRating grades how well a session went overall.
type OutcomeRating string

const (
	OutcomeExcellent        OutcomeRating = "Excellent"
	OutcomeGood             OutcomeRating = "Good"
	OutcomeSatisfactory     OutcomeRating = "Satisfactory"
	OutcomeNeedsImprovement OutcomeRating = "Needs Improvement"
	OutcomePoor             OutcomeRating = "Poor"
)

// PaceRating captures whether the session pace suited the group.
type PaceRating string

const (
	PaceTooFast   PaceRating = "Too Fast"
	PaceJustRight PaceRating = "Just Right"
	PaceTooSlow   PaceRating = "Too Slow"
)

// Objective is a learning goal for a session.
type Objective struct {
	Description string `json:"description"`
	Achieved    bool   `json:"achieved"`
}

// Objectives is stored as JSONB.
type Objectives []Objective

func (o Objectives) Value() (driver.Value, error) {
	if o == nil {
		o = Objectives{}
	}
	return jsonValue(o, "objectives")
}

func (o *Objectives) Scan(value interface{}) error {
	*o = Objectives{}
	return scanJSON(value, o, "objectives")
}

// AgendaItem is one planned activity; TimeAllocation is in minutes.
type AgendaItem struct {
	Activity       string `json:"activity"`
	TimeAllocation int    `json:"time_allocation"`
	Completed      bool   `json:"completed"`
	Notes          string `json:"notes,omitempty"`
}

// Agenda is stored as JSONB.
type Agenda []AgendaItem

func (a Agenda) Value() (driver.Value, error) {
	if a == nil {
		a = Agenda{}
	}
	return jsonValue(a, "agenda")
}

func (a *Agenda) Scan(value interface{}) error {
	*a = Agenda{}
	return scanJSON(value, a, "agenda")
}

// ResourceUsage records a resource consumed or handled during a session.
type ResourceUsage struct {
	ResourceID      string            `json:"resource_id"`
	Quantity        int               `json:"quantity"`
	ConditionBefore ResourceCondition `json:"condition_before"`
	ConditionAfter  ResourceCondition `json:"condition_after"`
}

// ResourceUsages is stored as JSONB.
type ResourceUsages []ResourceUsage

func (r ResourceUsages) Value() (driver.Value, error) {
	if r == nil {
		r = ResourceUsages{}
	}
	return jsonValue(r, "resources used")
}

func (r *ResourceUsages) Scan(value interface{}) error {
	*r = ResourceUsages{}
	return scanJSON(value, r, "resources used")
}

// SessionOutcomes summarises the session once it has been delivered.
type SessionOutcomes struct {
	OverallSuccess     OutcomeRating `json:"overall_success"`
	StudentsEngaged    int           `json:"students_engaged"`
	ObjectivesAchieved int           `json:"objectives_achieved"`
	PaceRating         PaceRating    `json:"pace_rating"`
	Notes              string        `json:"notes,omitempty"`
}

func (o SessionOutcomes) Value() (driver.Value, error) {
	return jsonValue(o, "outcomes")
}

func (o *SessionOutcomes) Scan(value interface{}) error {
	*o = SessionOutcomes{}
	return scanJSON(value, o, "outcomes")
}

// Normalize applies enum defaults and clamps percentages to [0, 100].
func (o *SessionOutcomes) Normalize() error {
	var ok bool
	if o.OverallSuccess, ok = normalizeEnum(o.OverallSuccess, OutcomeSatisfactory,
		OutcomeExcellent, OutcomeGood, OutcomeSatisfactory, OutcomeNeedsImprovement, OutcomePoor); !ok {
		return fmt.Errorf("invalid overall success rating %q", o.OverallSuccess)
	}
	if o.PaceRating, ok = normalizeEnum(o.PaceRating, PaceJustRight, PaceTooFast, PaceJustRight, PaceTooSlow); !ok {
		return fmt.Errorf("invalid pace rating %q", o.PaceRating)
	}
	o.StudentsEngaged = clampPercent(o.StudentsEngaged)
	o.ObjectivesAchieved = clampPercent(o.ObjectivesAchieved)
	return nil
}

// Session is a scheduled class meeting for a program.
type Session struct {
	ID                 string            `db:"id" json:"id"`
	ProgramID          string            `db:"program_id" json:"program_id"`
	TutorID            string            `db:"tutor_id" json:"tutor_id"`
	AssistantIDs       pq.StringArray    `db:"assistant_ids" json:"assistant_ids"`
	Title              string            `db:"title" json:"title"`
	Description        string            `db:"description" json:"description"`
	Date               time.Time         `db:"session_date" json:"date"`
	StartTime          string            `db:"start_time" json:"start_time"`
	EndTime            string            `db:"end_time" json:"end_time"`
	ActualStartTime    *string           `db:"actual_start_time" json:"actual_start_time,omitempty"`
	ActualEndTime      *string           `db:"actual_end_time" json:"actual_end_time,omitempty"`
	PlannedDuration    int               `db:"planned_duration" json:"planned_duration"`
	ActualDuration     *int              `db:"actual_duration" json:"actual_duration,omitempty"`
	Location           string            `db:"location" json:"location"`
	SessionType        SessionType       `db:"session_type" json:"session_type"`
	Status             SessionStatus     `db:"status" json:"status"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	MakeupSessionID    *string           `db:"makeup_session_id" json:"makeup_session_id,omitempty"`
	EnrolledStudentIDs pq.StringArray    `db:"enrolled_student_ids" json:"enrolled_student_ids"`
	Objectives         Objectives        `db:"objectives" json:"objectives"`
	Agenda             Agenda            `db:"agenda" json:"agenda"`
	ResourcesUsed      ResourceUsages    `db:"resources_used" json:"resources_used"`
	Attendance         AttendanceRecords `db:"attendance" json:"attendance"`
	Outcomes           *SessionOutcomes  `db:"outcomes" json:"outcomes,omitempty"`
	TutorNotes         string            `db:"tutor_notes" json:"tutor_notes"`
	Active             bool              `db:"active" json:"active"`
	CreatedBy          *string           `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// IsStaff reports whether userID teaches or assists the session.
func (s *Session) IsStaff(userID string) bool {
	if s == nil || userID == "" {
		return false
	}
	if s.TutorID == userID {
		return true
	}
	for _, id := range s.AssistantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OnRoster reports whether the student is enrolled in the session.
func (s *Session) OnRoster(studentID string) bool {
	if s == nil {
		return false
	}
	for _, id := range s.EnrolledStudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Normalize applies defaults, validates enums and times and derives the
// planned duration when it is missing.
func (s *Session) Normalize() error {
	if s.Status == "" {
		s.Status = SessionStatusPlanned
	} else if !s.Status.Valid() {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	var ok bool
	if s.SessionType, ok = normalizeEnum(s.SessionType, SessionTypeRegular,
		SessionTypeRegular, SessionTypeMakeup, SessionTypeAssessment, SessionTypeReview, SessionTypeWorkshop); !ok {
		return fmt.Errorf("invalid session type %q", s.SessionType)
	}

	start, err := ParseClock(s.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if end <= start {
		return fmt.Errorf("end_time must be after start_time")
	}
	if s.PlannedDuration <= 0 {
		s.PlannedDuration = end - start
	}

	for i := range s.ResourcesUsed {
		usage := &s.ResourcesUsed[i]
		if usage.ResourceID == "" {
			return fmt.Errorf("resources_used[%d]: resource_id is required", i)
		}
		if usage.Quantity < 1 {
			usage.Quantity = 1
		}
		if usage.ConditionBefore, err = NormalizeCondition(usage.ConditionBefore); err != nil {
			return fmt.Errorf("resources_used[%d]: %w", i, err)
		}
		if usage.ConditionAfter, err = NormalizeCondition(usage.ConditionAfter); err != nil {
			return fmt.Errorf("resources_used[%d]: %w", i, err)
		}
	}

	if s.Outcomes != nil {
		if err := s.Outcomes.Normalize(); err != nil {
			return err
		}
	}
	for i := range s.Attendance {
		if err := s.Attendance[i].Normalize(); err != nil {
			return fmt.Errorf("attendance[%d]: %w", i, err)
		}
	}

	if s.AssistantIDs == nil {
		s.AssistantIDs = pq.StringArray{}
	}
	if s.EnrolledStudentIDs == nil {
		s.EnrolledStudentIDs = pq.StringArray{}
	}
	if s.Objectives == nil {
		s.Objectives = Objectives{}
	}
	if s.Agenda == nil {
		s.Agenda = Agenda{}
	}
	if s.ResourcesUsed == nil {
		s.ResourcesUsed = ResourceUsages{}
	}
	if s.Attendance == nil {
		s.Attendance = AttendanceRecords{}
	}
	return nil
}

// SessionFilter scopes session listings.
type SessionFilter struct {
	ProgramID   string
	TutorID     string
	StaffID     string
	StudentID   string
	Status      SessionStatus
	SessionType SessionType
	DateFrom    *time.Time
	DateTo      *time.Time
	Active      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// ParseClock converts a wall-clock "HH:MM" string into minutes after midnight.
func ParseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders t as "HH:MM".
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}
