package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/pkg/response"
)

type sessionService interface {
	List(ctx context.Context, actor *models.JWTClaims, filter models.SessionFilter) ([]dto.SessionResponse, *models.Pagination, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.SessionResponse, error)
	Metrics(ctx context.Context, actor *models.JWTClaims, id string) (*models.SessionMetrics, error)
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateSessionRequest) (*dto.SessionResponse, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateSessionRequest) (*dto.SessionResponse, error)
	ChangeStatus(ctx context.Context, actor *models.JWTClaims, id string, req dto.SessionStatusRequest) (*dto.SessionResponse, error)
	Reschedule(ctx context.Context, actor *models.JWTClaims, id string, req dto.RescheduleRequest) (*dto.RescheduleResponse, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
}

// SessionHandler exposes session planning and lifecycle endpoints.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List godoc
// @Summary List sessions
// @Description Tutors only see sessions they lead or assist.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param program_id query string false "Filter by program"
// @Param tutor_id query string false "Filter by lead tutor"
// @Param student_id query string false "Filter by rostered student"
// @Param status query string false "Filter by status"
// @Param session_type query string false "Filter by type"
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	from, to, err := queryDateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.SessionFilter{
		ProgramID:   c.Query("program_id"),
		TutorID:     c.Query("tutor_id"),
		StudentID:   c.Query("student_id"),
		Status:      models.SessionStatus(c.Query("status")),
		SessionType: models.SessionType(c.Query("session_type")),
		DateFrom:    from,
		DateTo:      to,
		Active:      queryBool(c, "active"),
		SortBy:      c.Query("sort_by"),
		SortOrder:   c.Query("sort_order"),
	}
	filter.Page, filter.PageSize = queryPage(c)

	sessions, pagination, err := h.sessions.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Metrics godoc
// @Summary Session metrics
// @Description Attendance, engagement, objective and agenda completion for one session.
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/metrics [get]
func (h *SessionHandler) Metrics(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	metrics, err := h.sessions.Metrics(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, metrics, nil)
}

// Create godoc
// @Summary Create session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Update godoc
// @Summary Update session plan and outcomes
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UpdateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// ChangeStatus godoc
// @Summary Transition session status
// @Description Planned to In Progress to Completed, or Cancelled/Rescheduled. Terminal states are final.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body dto.SessionStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/status [post]
func (h *SessionHandler) ChangeStatus(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.SessionStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.ChangeStatus(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Reschedule godoc
// @Summary Reschedule session
// @Description Creates a makeup session and marks the original Rescheduled.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body dto.RescheduleRequest true "New slot"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/reschedule [post]
func (h *SessionHandler) Reschedule(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.RescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.sessions.Reschedule(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Delete session
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
