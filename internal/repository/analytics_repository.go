package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-measures-api/internal/models"
)

// attendedStatuses are the attendance statuses counted in attendance percentages.
const attendedStatuses = `('Present', 'Late')`

// AnalyticsRepository exposes read-optimised aggregate queries.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func sessionDateWhere(filter models.AnalyticsFilter) whereBuilder {
	var where whereBuilder
	where.conditions = append(where.conditions, "s.active = TRUE")
	if filter.DateFrom != nil {
		where.add("s.session_date >= %s", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where.add("s.session_date <= %s", *filter.DateTo)
	}
	return where
}

// ProgramStats aggregates enrollment, delivered sessions and attendance per active program.
func (r *AnalyticsRepository) ProgramStats(ctx context.Context, filter models.AnalyticsFilter) ([]models.ProgramStats, error) {
	where := sessionDateWhere(filter)
	query := `SELECT p.id AS program_id, p.name AS program_name, p.capacity,
        (SELECT COUNT(*) FROM program_enrollments pe WHERE pe.program_id = p.id) AS enrolled,
        COUNT(DISTINCT s.id) FILTER (WHERE s.status = 'Completed') AS sessions_held,
        COUNT(rec) AS attendance_records,
        COUNT(rec) FILTER (WHERE rec->>'status' IN ` + attendedStatuses + `) AS attended_records
        FROM programs p
        LEFT JOIN sessions s ON s.program_id = p.id AND ` + strings.Join(where.conditions, " AND ") + `
        LEFT JOIN LATERAL jsonb_array_elements(s.attendance) AS rec ON TRUE
        WHERE p.active = TRUE
        GROUP BY p.id, p.name, p.capacity
        ORDER BY p.name`

	stats := []models.ProgramStats{}
	if err := r.db.SelectContext(ctx, &stats, query, where.args...); err != nil {
		return nil, fmt.Errorf("query program stats: %w", err)
	}
	for i := range stats {
		stats[i].EnrollmentPercentage = models.Percentage(stats[i].Enrolled, stats[i].Capacity)
		stats[i].AttendancePercentage = models.Percentage(stats[i].AttendedRecords, stats[i].AttendanceRecords)
	}
	return stats, nil
}

// SessionStatusCounts groups active sessions by status.
func (r *AnalyticsRepository) SessionStatusCounts(ctx context.Context, filter models.AnalyticsFilter) ([]models.StatusCount, error) {
	where := sessionDateWhere(filter)
	query := fmt.Sprintf("SELECT s.status, COUNT(*) AS count FROM sessions s %s GROUP BY s.status ORDER BY s.status", where.clause())
	counts := []models.StatusCount{}
	if err := r.db.SelectContext(ctx, &counts, query, where.args...); err != nil {
		return nil, fmt.Errorf("query session status counts: %w", err)
	}
	return counts, nil
}

// AttendanceTotals counts attendance records across active sessions.
func (r *AnalyticsRepository) AttendanceTotals(ctx context.Context, filter models.AnalyticsFilter) (models.AttendanceTotals, error) {
	where := sessionDateWhere(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) AS records,
        COUNT(*) FILTER (WHERE rec->>'status' IN %s) AS attended
        FROM sessions s CROSS JOIN LATERAL jsonb_array_elements(s.attendance) AS rec %s`, attendedStatuses, where.clause())
	var totals models.AttendanceTotals
	if err := r.db.GetContext(ctx, &totals, query, where.args...); err != nil {
		return totals, fmt.Errorf("query attendance totals: %w", err)
	}
	return totals, nil
}
