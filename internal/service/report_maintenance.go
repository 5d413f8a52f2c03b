package service

import (
	"context"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/internal/repository"
	"github.com/noah-isme/class-measures-api/pkg/jobs"
)

const (
	recoverBatchSize = 50
	sweepBatchSize   = 100
)

// RecoverPendingJobs puts jobs still marked queued back on the queue, for
// instance after a restart. It returns how many were accepted.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) int {
	pending, err := s.repo.ListQueued(ctx, recoverBatchSize)
	if err != nil {
		s.logger.Warn("failed to list queued report jobs", zap.Error(err))
		return 0
	}
	requeued := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue report job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("recovered queued report jobs", zap.Int("count", requeued))
	}
	return requeued
}

// StartCleanup sweeps expired exports every CleanupInterval until ctx ends.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepExpired(ctx, time.Now())
			}
		}
	}()
}

// sweepExpired deletes the files of finished jobs older than ResultTTL and
// clears their result URL so they are not listed again. Orphaned files are
// removed by age afterwards. It returns the number of jobs expired.
func (s *ReportService) sweepExpired(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-s.cfg.ResultTTL)
	expired := 0
	for ctx.Err() == nil {
		batch, err := s.repo.ListFinishedBefore(ctx, cutoff, sweepBatchSize)
		if err != nil {
			s.logger.Warn("failed to list expired report jobs", zap.Error(err))
			break
		}
		progressed := 0
		for i := range batch {
			if s.expireJob(ctx, &batch[i]) {
				progressed++
			}
		}
		expired += progressed
		if len(batch) < sweepBatchSize || progressed == 0 {
			break
		}
	}

	removed, err := s.exporter.Cleanup(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export directory cleanup failed", zap.Error(err))
	}
	if expired > 0 || len(removed) > 0 {
		s.logger.Info("expired report exports",
			zap.Int("jobs", expired),
			zap.Int("files", len(removed)))
	}
	return expired
}

func (s *ReportService) expireJob(ctx context.Context, job *models.ReportJob) bool {
	if job.ResultURL == nil {
		return false
	}
	if _, rel, _, err := s.exporter.ParseToken(path.Base(*job.ResultURL), true); err == nil {
		if err := s.exporter.Delete(rel); err != nil {
			s.logger.Warn("failed to delete report export", zap.String("job_id", job.ID), zap.Error(err))
			return false
		}
	}
	cleared := ""
	if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{ResultURL: &cleared}); err != nil {
		s.logger.Warn("failed to clear report result", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	return true
}
