package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AttendanceStatus records whether a student attended a session.
type AttendanceStatus string

const (
	AttendancePresent   AttendanceStatus = "Present"
	AttendanceAbsent    AttendanceStatus = "Absent"
	AttendanceLate      AttendanceStatus = "Late"
	AttendanceLeftEarly AttendanceStatus = "Left Early"
)

// ParticipationLevel grades how actively a student took part.
type ParticipationLevel string

const (
	ParticipationExcellent   ParticipationLevel = "Excellent"
	ParticipationGood        ParticipationLevel = "Good"
	ParticipationFair        ParticipationLevel = "Fair"
	ParticipationPoor        ParticipationLevel = "Poor"
	ParticipationNotAssessed ParticipationLevel = "Not Assessed"
)

// BehaviourRating grades conduct during a session.
type BehaviourRating string

const (
	BehaviourExcellent        BehaviourRating = "Excellent"
	BehaviourGood             BehaviourRating = "Good"
	BehaviourNeedsImprovement BehaviourRating = "Needs Improvement"
	BehaviourConcerning       BehaviourRating = "Concerning"
)

// SkillLevel grades mastery of an assessed skill.
type SkillLevel string

const (
	SkillMastered   SkillLevel = "Mastered"
	SkillDeveloping SkillLevel = "Developing"
	SkillEmerging   SkillLevel = "Emerging"
	SkillNotYet     SkillLevel = "Not Yet"
)

// HomeworkQuality grades submitted homework.
type HomeworkQuality string

const (
	HomeworkExcellent    HomeworkQuality = "Excellent"
	HomeworkGood         HomeworkQuality = "Good"
	HomeworkFair         HomeworkQuality = "Fair"
	HomeworkPoor         HomeworkQuality = "Poor"
	HomeworkNotSubmitted HomeworkQuality = "Not Submitted"
)

// Participation describes engagement during the session.
type Participation struct {
	Level ParticipationLevel `json:"level"`
	Notes string             `json:"notes,omitempty"`
}

// Behaviour describes conduct during the session.
type Behaviour struct {
	Rating BehaviourRating `json:"rating"`
	Notes  string          `json:"notes,omitempty"`
}

// SkillAssessment is a per-skill evaluation.
type SkillAssessment struct {
	Skill string     `json:"skill"`
	Level SkillLevel `json:"level"`
	Notes string     `json:"notes,omitempty"`
}

// Homework tracks the assignment handed out and its completion.
type Homework struct {
	Assigned  string          `json:"assigned"`
	Completed bool            `json:"completed"`
	Quality   HomeworkQuality `json:"quality,omitempty"`
}

// AttendanceRecord is one student's entry within a session.
type AttendanceRecord struct {
	StudentID      string            `json:"student_id"`
	Status         AttendanceStatus  `json:"status"`
	ArrivalTime    *string           `json:"arrival_time,omitempty"`
	DepartureTime  *string           `json:"departure_time,omitempty"`
	Participation  Participation     `json:"participation"`
	Behaviour      Behaviour         `json:"behaviour"`
	SkillsAssessed []SkillAssessment `json:"skills_assessed"`
	Homework       *Homework         `json:"homework,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	RecordedBy     string            `json:"recorded_by,omitempty"`
	RecordedAt     *time.Time        `json:"recorded_at,omitempty"`
}

// Normalize applies enum defaults and rejects unknown values.
func (r *AttendanceRecord) Normalize() error {
	if r.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	var ok bool
	if r.Status, ok = normalizeEnum(r.Status, AttendancePresent,
		AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceLeftEarly); !ok {
		return fmt.Errorf("invalid attendance status %q", r.Status)
	}
	if r.Participation.Level, ok = normalizeEnum(r.Participation.Level, ParticipationNotAssessed,
		ParticipationExcellent, ParticipationGood, ParticipationFair, ParticipationPoor, ParticipationNotAssessed); !ok {
		return fmt.Errorf("invalid participation level %q", r.Participation.Level)
	}
	if r.Behaviour.Rating, ok = normalizeEnum(r.Behaviour.Rating, BehaviourGood,
		BehaviourExcellent, BehaviourGood, BehaviourNeedsImprovement, BehaviourConcerning); !ok {
		return fmt.Errorf("invalid behaviour rating %q", r.Behaviour.Rating)
	}
	for i := range r.SkillsAssessed {
		skill := &r.SkillsAssessed[i]
		if skill.Skill == "" {
			return fmt.Errorf("skills_assessed[%d]: skill is required", i)
		}
		if skill.Level, ok = normalizeEnum(skill.Level, SkillNotYet,
			SkillMastered, SkillDeveloping, SkillEmerging, SkillNotYet); !ok {
			return fmt.Errorf("skills_assessed[%d]: invalid level %q", i, skill.Level)
		}
	}
	if r.SkillsAssessed == nil {
		r.SkillsAssessed = []SkillAssessment{}
	}
	if r.Homework != nil {
		// Completed work without a grade stays ungraded.
		def := HomeworkNotSubmitted
		if r.Homework.Completed {
			def = ""
		}
		if r.Homework.Quality, ok = normalizeEnum(r.Homework.Quality, def,
			HomeworkExcellent, HomeworkGood, HomeworkFair, HomeworkPoor, HomeworkNotSubmitted); !ok {
			return fmt.Errorf("invalid homework quality %q", r.Homework.Quality)
		}
	}
	for _, clock := range []*string{r.ArrivalTime, r.DepartureTime} {
		if clock != nil {
			if _, err := ParseClock(*clock); err != nil {
				return err
			}
		}
	}
	return nil
}

// AttendanceRecords is stored as JSONB on the session row.
type AttendanceRecords []AttendanceRecord

func (a AttendanceRecords) Value() (driver.Value, error) {
	if a == nil {
		a = AttendanceRecords{}
	}
	return jsonValue(a, "attendance")
}

func (a *AttendanceRecords) Scan(value interface{}) error {
	*a = AttendanceRecords{}
	return scanJSON(value, a, "attendance")
}

// Find returns the index of the student's record or -1.
func (a AttendanceRecords) Find(studentID string) int {
	for i, rec := range a {
		if rec.StudentID == studentID {
			return i
		}
	}
	return -1
}

// Upsert replaces the student's existing record or appends a new one.
func (a AttendanceRecords) Upsert(rec AttendanceRecord) AttendanceRecords {
	if idx := a.Find(rec.StudentID); idx >= 0 {
		a[idx] = rec
		return a
	}
	return append(a, rec)
}

// StudentAttendanceEntry is one row of a student's attendance history.
type StudentAttendanceEntry struct {
	SessionID     string             `db:"session_id" json:"session_id"`
	SessionTitle  string             `db:"session_title" json:"session_title"`
	ProgramID     string             `db:"program_id" json:"program_id"`
	ProgramName   string             `db:"program_name" json:"program_name"`
	Date          time.Time          `db:"session_date" json:"date"`
	SessionStatus SessionStatus      `db:"session_status" json:"session_status"`
	Status        AttendanceStatus   `db:"status" json:"status"`
	Participation ParticipationLevel `db:"participation" json:"participation"`
	Behaviour     BehaviourRating    `db:"behaviour" json:"behaviour"`
}

// AttendanceReportFilter scopes attendance report queries.
type AttendanceReportFilter struct {
	ProgramID string
	TutorID   string
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
}
