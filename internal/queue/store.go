package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/docqueue/internal/models"
)

var (
	// ErrDocumentNotFound is returned when a document id resolves to nothing.
	// Inside the completion handler this is a referential integrity fault and
	// aborts the transition.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrJobNotFound is returned when a job id resolves to nothing.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateActiveJob guards the one-active-job-per-(document, type)
	// invariant.
	ErrDuplicateActiveJob = errors.New("an active job already exists for this document and job type")
)

// Store is the repository behind the queue. The reaper, retry sweep and
// health monitor all operate through it, so the state machine can be
// exercised without a live database.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error

	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error)
	UpdateJob(ctx context.Context, job *models.ProcessingJob) error

	// HasActiveJob reports whether a pending or running job exists for the
	// (document, job type) pair.
	HasActiveJob(ctx context.Context, documentID uuid.UUID, jobType models.JobType) (bool, error)

	// StuckJobs returns running jobs created before the cutoff.
	StuckJobs(ctx context.Context, cutoff time.Time) ([]*models.ProcessingJob, error)

	// RetryableJobs returns failed jobs with retry budget left that were
	// created at or after since. Older failures are treated as abandoned.
	RetryableJobs(ctx context.Context, since time.Time) ([]*models.ProcessingJob, error)

	// Stats aggregates jobs created at or after since, counting as stuck the
	// running jobs created before stuckCutoff.
	Stats(ctx context.Context, since, stuckCutoff time.Time) (*models.QueueStats, error)
}
