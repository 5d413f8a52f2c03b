package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-measures-api/internal/models"
)

func TestAnalyticsRepositoryProgramStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN sessions s ON s.program_id = p.id AND s.active = TRUE AND s.session_date >= $1")).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"program_id", "program_name", "capacity", "enrolled", "sessions_held", "attendance_records", "attended_records"}).
			AddRow("prog-1", "Maths", 8, 6, 4, 20, 17).
			AddRow("prog-2", "Art", 10, 0, 0, 0, 0))

	stats, err := repo.ProgramStats(context.Background(), models.AnalyticsFilter{DateFrom: &from})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 75, stats[0].EnrollmentPercentage)
	assert.Equal(t, 85, stats[0].AttendancePercentage)
	assert.Equal(t, 0, stats[1].AttendancePercentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepositorySessionStatusCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions s WHERE s.active = TRUE GROUP BY s.status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("Completed", 3).
			AddRow("Planned", 5))

	counts, err := repo.SessionStatusCounts(context.Background(), models.AnalyticsFilter{})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.SessionStatusCompleted, counts[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRepositoryAttendanceTotals(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("CROSS JOIN LATERAL jsonb_array_elements(s.attendance)")).
		WillReturnRows(sqlmock.NewRows([]string{"records", "attended"}).AddRow(40, 31))

	totals, err := repo.AttendanceTotals(context.Background(), models.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 40, totals.Records)
	assert.Equal(t, 31, totals.Attended)
	assert.NoError(t, mock.ExpectationsWereMet())
}
