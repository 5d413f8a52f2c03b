package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-measures-api/internal/middleware"
	"github.com/noah-isme/class-measures-api/internal/models"
	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
	"github.com/noah-isme/class-measures-api/pkg/response"
)

type analyticsService interface {
	Overview(ctx context.Context, filter models.AnalyticsFilter) (*models.AnalyticsOverview, bool, error)
	Programs(ctx context.Context, filter models.AnalyticsFilter) ([]models.ProgramStats, bool, error)
	SystemMetrics() models.AnalyticsSystemMetrics
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Overview godoc
// @Summary Business overview
// @Description Active students and programs, enrollment, session status counts, attendance and inventory value.
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /analytics/overview [get]
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	filter, err := parseAnalyticsFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	overview, cacheHit, err := h.analytics.Overview(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil, analyticsMeta(c, cacheHit, start))
}

// Programs godoc
// @Summary Program analytics
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /analytics/programs [get]
func (h *AnalyticsHandler) Programs(c *gin.Context) {
	filter, err := parseAnalyticsFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	start := time.Now()
	stats, cacheHit, err := h.analytics.Programs(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, analyticsMeta(c, cacheHit, start))
}

// System godoc
// @Summary Instrumentation snapshot
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	metrics := h.analytics.SystemMetrics()
	response.JSON(c, http.StatusOK, metrics, nil, analyticsMeta(c, false, start))
}

func analyticsMeta(c *gin.Context, cacheHit bool, start time.Time) map[string]interface{} {
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetMeta(c, "processing_time_ms", time.Since(start).Milliseconds())
	return middleware.Meta(c)
}

func parseAnalyticsFilter(c *gin.Context) (models.AnalyticsFilter, error) {
	from, to, err := queryDateRange(c)
	if err != nil {
		return models.AnalyticsFilter{}, err
	}
	return models.AnalyticsFilter{DateFrom: from, DateTo: to}, nil
}
