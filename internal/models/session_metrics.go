package models

import "math"

// AttendanceCount tallies attendance statuses. Present counts exact
// "Present" entries only; Late is reported separately.
type AttendanceCount struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
}

// Completion labels for completed sessions.
const (
	CompletionFully     = "Fully Completed"
	CompletionMostly    = "Mostly Completed"
	CompletionPartially = "Partially Completed"
	CompletionMinimally = "Minimally Completed"
)

var participationScores = map[ParticipationLevel]float64{
	ParticipationExcellent: 5,
	ParticipationGood:      4,
	ParticipationFair:      3,
	ParticipationPoor:      2,
}

// SessionMetrics are the derived figures exposed alongside a session.
type SessionMetrics struct {
	PlannedDurationHours float64         `json:"planned_duration_hours"`
	ActualDurationHours  *float64        `json:"actual_duration_hours"`
	AttendanceCount      AttendanceCount `json:"attendance_count"`
	AttendancePercentage int             `json:"attendance_percentage"`
	CompletionStatus     string          `json:"completion_status"`
	AverageEngagement    float64         `json:"average_engagement"`
}

// ComputeSessionMetrics evaluates every derived metric for s.
func ComputeSessionMetrics(s *Session) SessionMetrics {
	return SessionMetrics{
		PlannedDurationHours: PlannedDurationHours(s),
		ActualDurationHours:  ActualDurationHours(s),
		AttendanceCount:      CountAttendance(s),
		AttendancePercentage: AttendancePercentage(s),
		CompletionStatus:     CompletionStatus(s),
		AverageEngagement:    AverageEngagement(s),
	}
}

// PlannedDurationHours converts the planned minutes to hours, one decimal.
func PlannedDurationHours(s *Session) float64 {
	if s == nil {
		return 0
	}
	return round1(float64(s.PlannedDuration) / 60)
}

// ActualDurationHours is nil until an actual duration is recorded.
func ActualDurationHours(s *Session) *float64 {
	if s == nil || s.ActualDuration == nil {
		return nil
	}
	hours := round1(float64(*s.ActualDuration) / 60)
	return &hours
}

// CountAttendance scans the attendance list once.
func CountAttendance(s *Session) AttendanceCount {
	var count AttendanceCount
	if s == nil {
		return count
	}
	count.Total = len(s.Attendance)
	for _, rec := range s.Attendance {
		switch rec.Status {
		case AttendancePresent:
			count.Present++
		case AttendanceAbsent:
			count.Absent++
		case AttendanceLate:
			count.Late++
		}
	}
	return count
}

// AttendancePercentage counts Present and Late entries as attended.
func AttendancePercentage(s *Session) int {
	if s == nil {
		return 0
	}
	return attendedPercentage(s.Attendance)
}

func attendedPercentage(records AttendanceRecords) int {
	if len(records) == 0 {
		return 0
	}
	attended := 0
	for _, rec := range records {
		if Attended(rec.Status) {
			attended++
		}
	}
	return Percentage(attended, len(records))
}

// Attended reports whether the status counts toward attendance percentage.
func Attended(status AttendanceStatus) bool {
	return status == AttendancePresent || status == AttendanceLate
}

// Percentage is round(100 * part / total), 0 when total is 0.
func Percentage(part, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

// CompletionStatus returns the status verbatim unless the session is
// Completed, in which case objectives achieved are bucketed.
func CompletionStatus(s *Session) string {
	if s == nil {
		return ""
	}
	if s.Status != SessionStatusCompleted {
		return string(s.Status)
	}
	total := len(s.Objectives)
	if total == 0 {
		return string(SessionStatusCompleted)
	}
	achieved := 0
	for _, obj := range s.Objectives {
		if obj.Achieved {
			achieved++
		}
	}
	pct := float64(achieved) / float64(total) * 100
	switch {
	case pct >= 90:
		return CompletionFully
	case pct >= 70:
		return CompletionMostly
	case pct >= 50:
		return CompletionPartially
	default:
		return CompletionMinimally
	}
}

// AverageEngagement averages participation scores of assessed entries.
func AverageEngagement(s *Session) float64 {
	if s == nil {
		return 0
	}
	return averageEngagement(s.Attendance)
}

func averageEngagement(records AttendanceRecords) float64 {
	var sum float64
	assessed := 0
	for _, rec := range records {
		if score, ok := participationScores[rec.Participation.Level]; ok {
			sum += score
			assessed++
		}
	}
	if assessed == 0 {
		return 0
	}
	return round1(sum / float64(assessed))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
