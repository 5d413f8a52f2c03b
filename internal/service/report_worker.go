package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	"github.com/noah-isme/class-measures-api/pkg/jobs"
)

// ReportWorker renders queued report jobs; Handle is the reports queue handler.
type ReportWorker struct {
	repo     reportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	logger   *zap.Logger
	attempts int
	now      func() time.Time
}

// NewReportWorker constructs a worker. After attempts failed renders a job is
// marked failed instead of being returned to the queue.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, attempts int, metrics *MetricsService, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &ReportWorker{
		repo:     repo,
		exporter: exporter,
		metrics:  metrics,
		logger:   logger,
		attempts: attempts,
		now:      time.Now,
	}
}

// Handle renders one job. Jobs already finished, for instance when recovered
// twice after a restart, are skipped.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}
	if record.Status == models.ReportStatusFinished {
		return nil
	}

	processing, progress := models.ReportStatusProcessing, 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &processing, Progress: &progress}); err != nil {
		return fmt.Errorf("mark report job %s processing: %w", job.ID, err)
	}

	start := w.now()
	result, err := w.exporter.Generate(ctx, record)
	elapsed := w.now().Sub(start)
	if err != nil {
		outcome := w.recordFailure(ctx, job, err)
		w.metrics.RecordReportJob(string(record.Type), outcome, elapsed)
		return err
	}

	finished, done := models.ReportStatusFinished, 100
	finishedAt := w.now().UTC()
	url, cleared := result.URL, ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &done,
		ResultURL:    &url,
		ErrorMessage: &cleared,
		FinishedAt:   &finishedAt,
	}); err != nil {
		w.logger.Warn("failed to mark report job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.metrics.RecordReportJob(string(record.Type), "finished", elapsed)
	w.logger.Info("report job finished",
		zap.String("job_id", job.ID),
		zap.String("type", string(record.Type)),
		zap.Duration("elapsed", elapsed))
	return nil
}

// recordFailure stores the error and either requeues the job or, on the last
// attempt, closes it as failed. It returns the metrics outcome label.
func (w *ReportWorker) recordFailure(ctx context.Context, job jobs.Job, cause error) string {
	msg := cause.Error()
	status, progress, outcome := models.ReportStatusQueued, 0, "retry"
	params := repository.UpdateReportJobParams{ErrorMessage: &msg}
	if job.Attempt >= w.attempts {
		status, progress, outcome = models.ReportStatusFailed, 100, "failed"
		finishedAt := w.now().UTC()
		params.FinishedAt = &finishedAt
	}
	params.Status = &status
	params.Progress = &progress

	if err := w.repo.Update(ctx, job.ID, params); err != nil {
		w.logger.Warn("failed to record report job failure",
			zap.String("job_id", job.ID), zap.String("status", string(status)), zap.Error(err))
	}
	return outcome
}
