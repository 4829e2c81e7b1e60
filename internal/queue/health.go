package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/carelane/docqueue/internal/models"
)

// healthWindow bounds the aggregation to recent activity.
const healthWindow = 24 * time.Hour

// QueueHealth aggregates the last 24 hours of jobs and documents and
// classifies the queue. Read-only; purely advisory for dashboards and
// alerting.
func (s *Service) QueueHealth(ctx context.Context) (*models.QueueHealth, error) {
	now := s.now()
	since := now.Add(-healthWindow)
	stuckCutoff := now.Add(-s.cfg.StuckThreshold)

	stats, err := s.store.Stats(ctx, since, stuckCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queue stats: %w", err)
	}

	return &models.QueueHealth{
		Status:    ClassifyHealth(stats),
		Stats:     *stats,
		CheckedAt: now,
	}, nil
}

// ClassifyHealth applies the classification rules in order: stuck jobs win,
// then failure excess, then idleness. IDLE means the window saw no jobs at
// all; a queue that drained its work cleanly is HEALTHY, not idle.
func ClassifyHealth(stats *models.QueueStats) models.HealthStatus {
	switch {
	case stats.StuckJobs > 0:
		return models.HealthWarning
	case stats.FailedJobs > stats.CompletedJobs:
		return models.HealthDegraded
	case stats.PendingJobs == 0 && stats.RunningJobs == 0 &&
		stats.FailedJobs == 0 && stats.CompletedJobs == 0:
		return models.HealthIdle
	default:
		return models.HealthHealthy
	}
}
