package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/docqueue/internal/models"
	"github.com/carelane/docqueue/pkg/logger"
)

// Document progress checkpoints per completed stage.
const (
	progressAfterParse = 50
	progressCompleted  = 100
)

var (
	// ErrTerminalJob is returned when a transition is requested on a
	// completed or failed job. Workers finishing after the reaper reclaimed
	// their job land here.
	ErrTerminalJob = errors.New("job is in a terminal state")

	// ErrInvalidTransition is returned for status changes outside the state
	// machine (e.g. pending -> completed).
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrTerminalDocument is returned when a job is enqueued for a completed
	// or failed document. Document status only moves forward.
	ErrTerminalDocument = errors.New("document is in a terminal state")
)

// allowed transitions; same-status requests are treated as no-ops
var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobPending: {models.JobRunning, models.JobFailed},
	models.JobRunning: {models.JobCompleted, models.JobFailed},
}

// Dispatcher hands a pending job to the worker fleet. The asynq-backed
// implementation lives in pkg/dispatch; tests inject a recorder.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.ProcessingJob, doc *models.Document) error
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(ctx context.Context, job *models.ProcessingJob, doc *models.Document) error {
	return nil
}

// Config tunes the queue service.
type Config struct {
	DefaultMaxRetries int
	StuckThreshold    time.Duration
	RetryWindow       time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultMaxRetries: 3,
		StuckThreshold:    30 * time.Minute,
		RetryWindow:       24 * time.Hour,
	}
}

// Service owns every sanctioned mutation of documents and jobs. Status
// changes go through TransitionJob, which persists the change and then
// invokes the completion or failure handler as a plain function call, so
// the cascade is explicit and traceable.
type Service struct {
	store      Store
	dispatcher Dispatcher
	logger     logger.Logger
	cfg        Config
	now        func() time.Time
}

func NewService(store Store, dispatcher Dispatcher, log logger.Logger, cfg Config) *Service {
	if dispatcher == nil {
		dispatcher = nopDispatcher{}
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = 3
	}
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = 30 * time.Minute
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 24 * time.Hour
	}

	return &Service{
		store:      store,
		dispatcher: dispatcher,
		logger:     log,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RegisterDocument records an already-uploaded document and enqueues its
// initial parse job. The upload itself happens outside this service.
func (s *Service) RegisterDocument(ctx context.Context, filename, storageKey string) (*models.Document, *models.ProcessingJob, error) {
	now := s.now()
	doc := &models.Document{
		ID:               uuid.New(),
		Status:           models.DocProcessing,
		OriginalFilename: filename,
		StorageKey:       storageKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, nil, fmt.Errorf("failed to create document: %w", err)
	}

	job, err := s.EnqueueJob(ctx, doc.ID, models.JobTypeParse)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Document registered",
		logger.String("documentId", doc.ID.String()),
		logger.String("filename", filename),
	)

	return doc, job, nil
}

// EnqueueJob inserts a pending job and dispatches it to the workers. At most
// one pending or running job may exist per (document, job type) pair.
func (s *Service) EnqueueJob(ctx context.Context, documentID uuid.UUID, jobType models.JobType) (*models.ProcessingJob, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("invalid job type: %q", jobType)
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document %s: %w", documentID, err)
	}
	if doc.Status.Terminal() {
		return nil, fmt.Errorf("document %s is %s: %w", documentID, doc.Status, ErrTerminalDocument)
	}

	active, err := s.store.HasActiveJob(ctx, documentID, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if active {
		return nil, ErrDuplicateActiveJob
	}

	now := s.now()
	job := &models.ProcessingJob{
		ID:         uuid.New(),
		DocumentID: documentID,
		JobType:    jobType,
		Status:     models.JobPending,
		RetryCount: 0,
		MaxRetries: s.cfg.DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, job, doc); err != nil {
		// The job row exists either way; the retry sweep or a manual
		// re-dispatch will pick it up.
		s.logger.Error("Failed to dispatch job",
			logger.String("jobId", job.ID.String()),
			logger.Error(err),
		)
	}

	s.logger.Info("Job enqueued",
		logger.String("jobId", job.ID.String()),
		logger.String("jobType", string(jobType)),
		logger.String("documentId", documentID.String()),
	)

	return job, nil
}

// TransitionJob is the only sanctioned mutation path for job status. It
// validates the transition, persists it, and then runs the matching handler
// synchronously. Requests that repeat the current status are no-ops, which
// keeps redelivered worker callbacks harmless.
func (s *Service) TransitionJob(ctx context.Context, jobID uuid.UUID, newStatus models.JobStatus, errorMessage string) error {
	if !newStatus.Valid() {
		return fmt.Errorf("invalid job status: %q", newStatus)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if job.Status == newStatus {
		return nil
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, ErrTerminalJob)
	}
	if !transitionAllowed(job.Status, newStatus) {
		return fmt.Errorf("%s -> %s: %w", job.Status, newStatus, ErrInvalidTransition)
	}

	now := s.now()
	job.Status = newStatus
	job.UpdatedAt = now
	if errorMessage != "" {
		job.ErrorMessage = errorMessage
	}
	if newStatus == models.JobCompleted {
		job.CompletedAt = &now
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist transition: %w", err)
	}

	switch newStatus {
	case models.JobCompleted:
		return s.handleCompletion(ctx, job)
	case models.JobFailed:
		return s.handleFailure(ctx, job)
	}
	return nil
}

// handleCompletion advances the owning document after a job finished:
// parse spawns the embed stage, embed completes the document. A missing
// document is a referential integrity fault and aborts the transition.
func (s *Service) handleCompletion(ctx context.Context, job *models.ProcessingJob) error {
	doc, err := s.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("completion of job %s: %w", job.ID, err)
	}

	// document status only moves forward; a straggler job finishing after
	// the document settled must not drag it back to processing
	if doc.Status.Terminal() {
		s.logger.Warn("Job completed for a terminal document, leaving it unchanged",
			logger.String("jobId", job.ID.String()),
			logger.String("documentId", doc.ID.String()),
			logger.String("documentStatus", string(doc.Status)),
		)
		return nil
	}

	switch job.JobType {
	case models.JobTypeParse:
		s.raiseProgress(doc, progressAfterParse)
		doc.Status = models.DocProcessing
		doc.UpdatedAt = s.now()
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to update document after parse: %w", err)
		}
		if _, err := s.EnqueueJob(ctx, doc.ID, models.JobTypeEmbed); err != nil {
			return fmt.Errorf("failed to enqueue embed job: %w", err)
		}

	case models.JobTypeEmbed:
		doc.Status = models.DocCompleted
		s.raiseProgress(doc, progressCompleted)
		doc.ErrorMessage = ""
		doc.UpdatedAt = s.now()
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to complete document: %w", err)
		}

	default:
		// future stages take no document-level action yet
	}

	s.logger.Info("Job completed",
		logger.String("jobId", job.ID.String()),
		logger.String("jobType", string(job.JobType)),
		logger.String("filename", doc.OriginalFilename),
	)

	return nil
}

// handleFailure escalates to the document only once the retry budget is
// spent. Jobs with retries left stay failed and wait for the retry sweep.
func (s *Service) handleFailure(ctx context.Context, job *models.ProcessingJob) error {
	if job.RetryCount < job.MaxRetries {
		s.logger.Warn("Job failed, retry budget remaining",
			logger.String("jobId", job.ID.String()),
			logger.Int("retryCount", job.RetryCount),
			logger.Int("maxRetries", job.MaxRetries),
		)
		return nil
	}

	doc, err := s.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("failure of job %s: %w", job.ID, err)
	}

	doc.Status = models.DocFailed
	doc.ErrorMessage = job.ErrorMessage
	doc.UpdatedAt = s.now()
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}

	s.logger.Error("Job failed permanently",
		logger.String("jobId", job.ID.String()),
		logger.String("jobType", string(job.JobType)),
		logger.String("filename", doc.OriginalFilename),
		logger.String("error", job.ErrorMessage),
	)

	return nil
}

// GetDocument returns a document by id.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	return s.store.GetJob(ctx, id)
}

// raiseProgress never lowers progress_percentage; monotonicity is enforced
// here rather than in each store.
func (s *Service) raiseProgress(doc *models.Document, target int) {
	if target > doc.ProgressPercentage {
		doc.ProgressPercentage = target
	}
}

func transitionAllowed(from, to models.JobStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
