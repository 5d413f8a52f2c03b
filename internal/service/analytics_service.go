package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/models"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	ProgramStats(ctx context.Context, filter models.AnalyticsFilter) ([]models.ProgramStats, error)
	SessionStatusCounts(ctx context.Context, filter models.AnalyticsFilter) ([]models.StatusCount, error)
	AttendanceTotals(ctx context.Context, filter models.AnalyticsFilter) (models.AttendanceTotals, error)
}

type activeStudentCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type inventoryLister interface {
	ListAll(ctx context.Context) ([]models.Resource, error)
}

// AnalyticsService provides read-optimised access to analytics datasets with cache integration.
type AnalyticsService struct {
	repo      AnalyticsRepository
	students  activeStudentCounter
	resources inventoryLister
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, students activeStudentCounter, resources inventoryLister, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, students: students, resources: resources, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// Overview returns the business-wide summary. The boolean reports a cache hit.
func (s *AnalyticsService) Overview(ctx context.Context, filter models.AnalyticsFilter) (*models.AnalyticsOverview, bool, error) {
	key := makeAnalyticsCacheKey("overview", formatTime(filter.DateFrom), formatTime(filter.DateTo))
	return cachedAnalytics(ctx, s, key, func() (*models.AnalyticsOverview, error) {
		return s.buildOverview(ctx, filter)
	})
}

// Programs returns per-program enrollment and attendance figures.
func (s *AnalyticsService) Programs(ctx context.Context, filter models.AnalyticsFilter) ([]models.ProgramStats, bool, error) {
	key := makeAnalyticsCacheKey("programs", formatTime(filter.DateFrom), formatTime(filter.DateTo))
	return cachedAnalytics(ctx, s, key, func() ([]models.ProgramStats, error) {
		start := time.Now()
		stats, err := s.repo.ProgramStats(ctx, filter)
		s.metrics.ObserveDBQuery("analytics_programs", time.Since(start))
		if err != nil {
			return nil, internalErr(err, "failed to load program analytics")
		}
		return stats, nil
	})
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{GeneratedAt: s.now().UTC()}
	}
	return s.metrics.Snapshot()
}

func (s *AnalyticsService) buildOverview(ctx context.Context, filter models.AnalyticsFilter) (*models.AnalyticsOverview, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveDBQuery("analytics_overview", time.Since(start)) }()

	overview := &models.AnalyticsOverview{
		SessionsByStatus: map[models.SessionStatus]int{},
		GeneratedAt:      s.now().UTC(),
	}

	activeStudents, err := s.students.CountActive(ctx)
	if err != nil {
		return nil, internalErr(err, "failed to count students")
	}
	overview.ActiveStudents = activeStudents

	stats, err := s.repo.ProgramStats(ctx, filter)
	if err != nil {
		return nil, internalErr(err, "failed to load program analytics")
	}
	overview.ActivePrograms = len(stats)
	for _, p := range stats {
		overview.TotalCapacity += p.Capacity
		overview.TotalEnrolled += p.Enrolled
	}
	overview.EnrollmentPercentage = models.Percentage(overview.TotalEnrolled, overview.TotalCapacity)

	counts, err := s.repo.SessionStatusCounts(ctx, filter)
	if err != nil {
		return nil, internalErr(err, "failed to count sessions")
	}
	for _, c := range counts {
		overview.SessionsByStatus[c.Status] = c.Count
	}

	totals, err := s.repo.AttendanceTotals(ctx, filter)
	if err != nil {
		return nil, internalErr(err, "failed to total attendance")
	}
	overview.AttendancePercentage = models.Percentage(totals.Attended, totals.Records)

	resources, err := s.resources.ListAll(ctx)
	if err != nil {
		return nil, internalErr(err, "failed to load resources")
	}
	var value float64
	for _, r := range resources {
		if r.LowStock() {
			overview.LowStockResources++
		}
		value += r.InventoryValue()
	}
	overview.InventoryValue = models.QuoteTotal(value, 1)
	return overview, nil
}

// cachedAnalytics serves key from cache or computes it with load and stores
// the result. Cache failures degrade to a fresh computation.
func cachedAnalytics[T any](ctx context.Context, s *AnalyticsService, key string, load func() (T, error)) (T, bool, error) {
	var cached T
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, true, nil
	}

	result, err := load()
	if err != nil {
		var zero T
		return zero, false, err
	}
	if err := s.cache.Set(ctx, key, result, 0); err != nil {
		s.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, false, nil
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
