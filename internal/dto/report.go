package dto

import (
	"time"

	"github.com/noah-isme/class-measures-api/internal/models"
)

// ReportRequest is the POST /reports body. Format defaults to csv; the date
// range applies to session and attendance reports.
type ReportRequest struct {
	Type      models.ReportType   `json:"type" validate:"required"`
	Format    models.ReportFormat `json:"format"`
	ProgramID *string             `json:"program_id,omitempty"`
	DateFrom  *string             `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo    *string             `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// ReportJobResponse acknowledges an accepted export.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Type     models.ReportType   `json:"type"`
	Format   models.ReportFormat `json:"format"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse is polled by clients until ResultURL appears.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ReportType   `json:"type"`
	Format     models.ReportFormat `json:"format"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
