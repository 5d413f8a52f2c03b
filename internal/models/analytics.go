package models

import "time"

// AnalyticsFilter scopes analytics queries by session date.
type AnalyticsFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
}

// AnalyticsOverview is the business-wide dashboard summary.
type AnalyticsOverview struct {
	ActiveStudents       int                   `json:"active_students"`
	ActivePrograms       int                   `json:"active_programs"`
	TotalCapacity        int                   `json:"total_capacity"`
	TotalEnrolled        int                   `json:"total_enrolled"`
	EnrollmentPercentage int                   `json:"enrollment_percentage"`
	SessionsByStatus     map[SessionStatus]int `json:"sessions_by_status"`
	AttendancePercentage int                   `json:"attendance_percentage"`
	LowStockResources    int                   `json:"low_stock_resources"`
	InventoryValue       float64               `json:"inventory_value"`
	GeneratedAt          time.Time             `json:"generated_at"`
}

// ProgramStats summarises one program's enrollment and delivery.
type ProgramStats struct {
	ProgramID            string `db:"program_id" json:"program_id"`
	ProgramName          string `db:"program_name" json:"program_name"`
	Capacity             int    `db:"capacity" json:"capacity"`
	Enrolled             int    `db:"enrolled" json:"enrolled"`
	EnrollmentPercentage int    `db:"-" json:"enrollment_percentage"`
	SessionsHeld         int    `db:"sessions_held" json:"sessions_held"`
	AttendanceRecords    int    `db:"attendance_records" json:"attendance_records"`
	AttendedRecords      int    `db:"attended_records" json:"attended_records"`
	AttendancePercentage int    `db:"-" json:"attendance_percentage"`
}

// StatusCount is a grouped session count.
type StatusCount struct {
	Status SessionStatus `db:"status"`
	Count  int           `db:"count"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	EnrollmentsAccepted      uint64    `json:"enrollments_accepted"`
	EnrollmentsRejected      uint64    `json:"enrollments_rejected"`
	ReportsFinished          uint64    `json:"reports_finished"`
	ReportsFailed            uint64    `json:"reports_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// AttendanceTotals counts attendance records and those that count as attended.
type AttendanceTotals struct {
	Records  int `db:"records"`
	Attended int `db:"attended"`
}
