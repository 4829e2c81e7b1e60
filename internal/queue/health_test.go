package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/docqueue/internal/models"
)

func TestClassifyHealth(t *testing.T) {
	tests := []struct {
		name  string
		stats models.QueueStats
		want  models.HealthStatus
	}{
		{
			name:  "empty window is idle",
			stats: models.QueueStats{},
			want:  models.HealthIdle,
		},
		{
			name:  "drained queue is healthy, not idle",
			stats: models.QueueStats{FailedJobs: 2, CompletedJobs: 5},
			want:  models.HealthHealthy,
		},
		{
			name:  "active queue is healthy",
			stats: models.QueueStats{PendingJobs: 4, RunningJobs: 2, CompletedJobs: 10},
			want:  models.HealthHealthy,
		},
		{
			name:  "any stuck job wins",
			stats: models.QueueStats{StuckJobs: 1, CompletedJobs: 100},
			want:  models.HealthWarning,
		},
		{
			name:  "more failures than completions degrades",
			stats: models.QueueStats{FailedJobs: 6, CompletedJobs: 5},
			want:  models.HealthDegraded,
		},
		{
			name:  "stuck outranks degraded",
			stats: models.QueueStats{StuckJobs: 2, FailedJobs: 9, CompletedJobs: 1},
			want:  models.HealthWarning,
		},
		{
			name:  "only failures degrades",
			stats: models.QueueStats{FailedJobs: 1},
			want:  models.HealthDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyHealth(&tt.stats))
		})
	}
}

func TestQueueHealthAggregation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	doc := seedDocument(t, store, base.Add(-2*time.Hour))

	seedJob(t, store, doc, models.JobPending, base.Add(-10*time.Minute), 0, 3)
	seedJob(t, store, doc, models.JobRunning, base.Add(-5*time.Minute), 0, 3)
	seedJob(t, store, doc, models.JobFailed, base.Add(-time.Hour), 1, 3)

	// completed an hour ago with a two-minute turnaround
	done := seedJob(t, store, doc, models.JobCompleted, base.Add(-time.Hour), 0, 3)
	completedAt := done.CreatedAt.Add(2 * time.Minute)
	done.CompletedAt = &completedAt
	require.NoError(t, store.UpdateJob(ctx, done))

	// outside the 24h window, must not be counted
	seedJob(t, store, doc, models.JobFailed, base.Add(-30*time.Hour), 0, 3)

	health, err := svc.QueueHealth(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, health.Stats.PendingJobs)
	assert.Equal(t, 1, health.Stats.RunningJobs)
	assert.Equal(t, 1, health.Stats.FailedJobs)
	assert.Equal(t, 1, health.Stats.CompletedJobs)
	assert.Equal(t, 0, health.Stats.StuckJobs)
	assert.InDelta(t, 120.0, health.Stats.AvgCompletionSeconds, 0.001)
	assert.Equal(t, 1, health.Stats.DocumentCounts[models.DocProcessing])

	assert.Equal(t, models.HealthHealthy, health.Status)
	assert.Equal(t, base, health.CheckedAt)
}

func TestQueueHealthFlagsStuckJobs(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }

	doc := seedDocument(t, store, base.Add(-2*time.Hour))
	seedJob(t, store, doc, models.JobRunning, base.Add(-45*time.Minute), 0, 3)

	health, err := svc.QueueHealth(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, health.Stats.StuckJobs)
	assert.Equal(t, models.HealthWarning, health.Status)
}
