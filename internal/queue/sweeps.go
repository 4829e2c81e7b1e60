package queue

import (
	"context"
	"fmt"

	"github.com/carelane/docqueue/internal/models"
	"github.com/carelane/docqueue/pkg/logger"
)

// stuckMessage is recorded on jobs reclaimed by the reaper.
const stuckMessage = "stuck in running state"

// RunReaper fails running jobs older than the stuck threshold. Reclaimed
// jobs go through TransitionJob, so the failure handler applies the same
// retry-budget rules as any worker-reported failure. Idempotent: a second
// run with no new stuck jobs changes nothing.
func (s *Service) RunReaper(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StuckThreshold)

	stuck, err := s.store.StuckJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for stuck jobs: %w", err)
	}

	reaped := 0
	for _, job := range stuck {
		if err := s.TransitionJob(ctx, job.ID, models.JobFailed, stuckMessage); err != nil {
			s.logger.Error("Failed to reap stuck job",
				logger.String("jobId", job.ID.String()),
				logger.Error(err),
			)
			continue
		}
		reaped++
		s.logger.Warn("Reaped stuck job",
			logger.String("jobId", job.ID.String()),
			logger.String("jobType", string(job.JobType)),
			logger.Time("createdAt", job.CreatedAt),
		)
	}

	if reaped > 0 {
		s.logger.Info("Reaper sweep finished", logger.Int("reaped", reaped))
	}
	return reaped, nil
}

// RunRetrySweep resets eligible failed jobs back to pending and re-dispatches
// them. Only failures within the retry window are revived; older ones are
// abandoned. Transient failures (rate limits, network blips) self-heal here
// without manual intervention.
func (s *Service) RunRetrySweep(ctx context.Context) (int, error) {
	since := s.now().Add(-s.cfg.RetryWindow)

	retryable, err := s.store.RetryableJobs(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for retryable jobs: %w", err)
	}

	revived := 0
	for _, job := range retryable {
		// a replacement job may have been enqueued while this one sat
		// failed; reviving it would break the one-active-job-per-pair rule
		active, err := s.store.HasActiveJob(ctx, job.DocumentID, job.JobType)
		if err != nil {
			s.logger.Error("Failed to check active jobs before revival",
				logger.String("jobId", job.ID.String()),
				logger.Error(err),
			)
			continue
		}
		if active {
			s.logger.Warn("Skipping revival, pair already has an active job",
				logger.String("jobId", job.ID.String()),
				logger.String("documentId", job.DocumentID.String()),
				logger.String("jobType", string(job.JobType)),
			)
			continue
		}

		job.RetryCount++
		job.Status = models.JobPending
		job.ErrorMessage = ""
		job.UpdatedAt = s.now()

		if err := s.store.UpdateJob(ctx, job); err != nil {
			s.logger.Error("Failed to revive job",
				logger.String("jobId", job.ID.String()),
				logger.Error(err),
			)
			continue
		}

		doc, err := s.store.GetDocument(ctx, job.DocumentID)
		if err != nil {
			s.logger.Error("Failed to resolve document for revived job",
				logger.String("jobId", job.ID.String()),
				logger.Error(err),
			)
			continue
		}
		if err := s.dispatcher.Dispatch(ctx, job, doc); err != nil {
			s.logger.Error("Failed to re-dispatch revived job",
				logger.String("jobId", job.ID.String()),
				logger.Error(err),
			)
		}

		revived++
		s.logger.Info("Revived failed job",
			logger.String("jobId", job.ID.String()),
			logger.String("jobType", string(job.JobType)),
			logger.Int("retryCount", job.RetryCount),
		)
	}

	return revived, nil
}
