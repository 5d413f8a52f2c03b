package dto

import (
	"time"

	"github.com/noah-isme/class-measures-api/internal/models"
)

// RecordAttendanceRequest captures POST /attendance payload.
type RecordAttendanceRequest struct {
	SessionID string                    `json:"session_id" validate:"required"`
	Records   []models.AttendanceRecord `json:"records" validate:"required,min=1"`
}

// SessionAttendanceResponse is the attendance sheet of one session.
type SessionAttendanceResponse struct {
	SessionID            string                   `json:"session_id"`
	Status               models.SessionStatus     `json:"status"`
	Records              models.AttendanceRecords `json:"records"`
	Count                models.AttendanceCount   `json:"count"`
	AttendancePercentage int                      `json:"attendance_percentage"`
	AverageEngagement    float64                  `json:"average_engagement"`
}

// StudentAttendanceSummary totals a student's attendance history.
type StudentAttendanceSummary struct {
	Total                int `json:"total"`
	Present              int `json:"present"`
	Absent               int `json:"absent"`
	Late                 int `json:"late"`
	LeftEarly            int `json:"left_early"`
	AttendancePercentage int `json:"attendance_percentage"`
}

// StudentAttendanceResponse is a student's attendance history with totals.
type StudentAttendanceResponse struct {
	StudentID string                          `json:"student_id"`
	History   []models.StudentAttendanceEntry `json:"history"`
	Summary   StudentAttendanceSummary        `json:"summary"`
}

// AttendanceReportRow summarises attendance for one session.
type AttendanceReportRow struct {
	SessionID            string                 `json:"session_id"`
	Title                string                 `json:"title"`
	ProgramID            string                 `json:"program_id"`
	Date                 time.Time              `json:"date"`
	Status               models.SessionStatus   `json:"status"`
	Count                models.AttendanceCount `json:"count"`
	AttendancePercentage int                    `json:"attendance_percentage"`
	AverageEngagement    float64                `json:"average_engagement"`
}

// AttendanceReportResponse lists per-session rows with overall totals.
type AttendanceReportResponse struct {
	Rows                 []AttendanceReportRow `json:"rows"`
	Sessions             int                   `json:"sessions"`
	Records              int                   `json:"records"`
	Attended             int                   `json:"attended"`
	AttendancePercentage int                   `json:"attendance_percentage"`
}
