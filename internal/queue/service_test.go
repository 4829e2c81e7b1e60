package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/docqueue/internal/models"
	"github.com/carelane/docqueue/pkg/logger"
)

// recordingDispatcher captures dispatched jobs instead of talking to redis.
type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []*models.ProcessingJob
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job *models.ProcessingJob, doc *models.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *job
	d.dispatched = append(d.dispatched, &cp)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dispatched)
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *recordingDispatcher) {
	t.Helper()
	store := NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	svc := NewService(store, dispatcher, logger.NewTestLogger(), DefaultConfig())
	return svc, store, dispatcher
}

func jobsByType(store *MemoryStore, jobType models.JobType) []*models.ProcessingJob {
	store.mu.RLock()
	defer store.mu.RUnlock()

	var out []*models.ProcessingJob
	for _, job := range store.jobs {
		if job.JobType == jobType {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out
}

func TestRegisterDocumentEnqueuesParse(t *testing.T) {
	svc, store, dispatcher := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	assert.Equal(t, models.DocProcessing, doc.Status)
	assert.Equal(t, 0, doc.ProgressPercentage)

	assert.Equal(t, models.JobTypeParse, job.JobType)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, 1, dispatcher.count())

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, stored.DocumentID)
}

func TestEnqueueJobValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnqueueJob(ctx, uuid.New(), models.JobType("ocr"))
	assert.Error(t, err)

	_, err = svc.EnqueueJob(ctx, uuid.New(), models.JobTypeParse)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestEnqueueJobRejectsDuplicateActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	doc, _, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	_, err = svc.EnqueueJob(ctx, doc.ID, models.JobTypeParse)
	assert.ErrorIs(t, err, ErrDuplicateActiveJob)
}

func TestEnqueueJobRejectsTerminalDocument(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, _, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	for _, status := range []models.DocumentStatus{models.DocCompleted, models.DocFailed} {
		stored, err := store.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		stored.Status = status
		require.NoError(t, store.UpdateDocument(ctx, stored))

		_, err = svc.EnqueueJob(ctx, doc.ID, models.JobTypeEmbed)
		assert.ErrorIs(t, err, ErrTerminalDocument, string(status))
	}
}

func TestCompletionLeavesTerminalDocument(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))

	// the document settles while the parse job is still in flight
	stored, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	stored.Status = models.DocCompleted
	stored.ProgressPercentage = 100
	require.NoError(t, store.UpdateDocument(ctx, stored))

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobCompleted, ""))

	updated, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, updated.Status, "completed document must not fall back to processing")
	assert.Equal(t, 100, updated.ProgressPercentage)

	assert.Empty(t, jobsByType(store, models.JobTypeEmbed), "straggler completion must not spawn a new stage")
}

func TestParseCompletionSpawnsEmbed(t *testing.T) {
	svc, store, dispatcher := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobCompleted, ""))

	updated, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocProcessing, updated.Status)
	assert.Equal(t, 50, updated.ProgressPercentage)

	embedJobs := jobsByType(store, models.JobTypeEmbed)
	require.Len(t, embedJobs, 1)
	assert.Equal(t, models.JobPending, embedJobs[0].Status)
	assert.Equal(t, 0, embedJobs[0].RetryCount)
	assert.Equal(t, doc.ID, embedJobs[0].DocumentID)

	// parse + spawned embed
	assert.Equal(t, 2, dispatcher.count())

	parsed, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, parsed.CompletedAt)
}

func TestEmbedCompletionCompletesDocument(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, parseJob, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	require.NoError(t, svc.TransitionJob(ctx, parseJob.ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, parseJob.ID, models.JobCompleted, ""))

	embedJobs := jobsByType(store, models.JobTypeEmbed)
	require.Len(t, embedJobs, 1)

	require.NoError(t, svc.TransitionJob(ctx, embedJobs[0].ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, embedJobs[0].ID, models.JobCompleted, ""))

	updated, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocCompleted, updated.Status)
	assert.Equal(t, 100, updated.ProgressPercentage)
}

func TestProgressNeverDecreases(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	// progress already past the parse checkpoint
	stored, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	stored.ProgressPercentage = 80
	require.NoError(t, store.UpdateDocument(ctx, stored))

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobCompleted, ""))

	updated, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, updated.ProgressPercentage)
}

func TestTransitionValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	// unknown status
	err = svc.TransitionJob(ctx, job.ID, models.JobStatus("paused"), "")
	assert.Error(t, err)

	// pending cannot jump straight to completed
	err = svc.TransitionJob(ctx, job.ID, models.JobCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// unknown job
	err = svc.TransitionJob(ctx, uuid.New(), models.JobRunning, "")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	before, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)

	// redelivered claim
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	after, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestTerminalJobsRefuseTransitions(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobFailed, "worker crashed"))

	// a worker completing after failure cannot resurrect the job
	err = svc.TransitionJob(ctx, job.ID, models.JobCompleted, "")
	assert.ErrorIs(t, err, ErrTerminalJob)

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, stored.Status)

	updated, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocProcessing, updated.Status, "retry budget left, document untouched")
}

func TestFailureWithBudgetLeavesDocument(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobFailed, "rate limited"))

	updated, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocProcessing, updated.Status)
	assert.Empty(t, updated.ErrorMessage)

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "rate limited", stored.ErrorMessage)
	assert.LessOrEqual(t, stored.RetryCount, stored.MaxRetries)
}

func TestExhaustedFailureMarksDocument(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	// burn the whole retry budget
	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	stored.RetryCount = stored.MaxRetries
	require.NoError(t, store.UpdateJob(ctx, stored))

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobFailed, "parser exploded"))

	updated, err := store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocFailed, updated.Status)
	assert.Equal(t, "parser exploded", updated.ErrorMessage)
}

func TestCompletionWithMissingDocumentFails(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))

	// simulate the referential integrity fault
	store.mu.Lock()
	delete(store.documents, doc.ID)
	store.mu.Unlock()

	err = svc.TransitionJob(ctx, job.ID, models.JobCompleted, "")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestCompletedAtFeedsLatency(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, job, err := svc.RegisterDocument(ctx, "claim.pdf", "uploads/claim.pdf")
	require.NoError(t, err)

	base := time.Now()
	svc.now = func() time.Time { return base.Add(90 * time.Second) }

	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobRunning, ""))
	require.NoError(t, svc.TransitionJob(ctx, job.ID, models.JobCompleted, ""))

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.After(stored.CreatedAt))
}
