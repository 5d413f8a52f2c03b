package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-measures-api/internal/dto"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/pkg/response"
)

type attendanceService interface {
	Record(ctx context.Context, actor *models.JWTClaims, req dto.RecordAttendanceRequest) (*dto.SessionAttendanceResponse, error)
	SessionAttendance(ctx context.Context, actor *models.JWTClaims, sessionID string) (*dto.SessionAttendanceResponse, error)
	StudentHistory(ctx context.Context, actor *models.JWTClaims, studentID string) (*dto.StudentAttendanceResponse, error)
	Report(ctx context.Context, actor *models.JWTClaims, filter models.AttendanceReportFilter) (*dto.AttendanceReportResponse, error)
}

// AttendanceHandler wires attendance capture and reporting endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Record godoc
// @Summary Record session attendance
// @Description Upserts one record per student. Students must be on the session roster.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.RecordAttendanceRequest true "Attendance batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance [post]
func (h *AttendanceHandler) Record(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.RecordAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.attendance.Record(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SessionAttendance godoc
// @Summary Attendance of one session
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/session/{id} [get]
func (h *AttendanceHandler) SessionAttendance(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.attendance.SessionAttendance(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// StudentHistory godoc
// @Summary Attendance history of a student
// @Description Parents may only read their own children.
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/student/{id} [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.attendance.StudentHistory(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Report godoc
// @Summary Attendance report
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param program_id query string false "Program ID"
// @Param tutor_id query string false "Tutor ID"
// @Param student_id query string false "Student ID"
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/reports [get]
func (h *AttendanceHandler) Report(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	from, to, err := queryDateRange(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.attendance.Report(c.Request.Context(), claims, models.AttendanceReportFilter{
		ProgramID: c.Query("program_id"),
		TutorID:   c.Query("tutor_id"),
		StudentID: c.Query("student_id"),
		DateFrom:  from,
		DateTo:    to,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
