package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/docqueue/internal/models"
)

// MemoryStore is an in-memory Store used by unit tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*models.Document
	jobs      map[uuid.UUID]*models.ProcessingJob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[uuid.UUID]*models.Document),
		jobs:      make(map[uuid.UUID]*models.ProcessingJob),
	}
}

func (m *MemoryStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *doc
	m.documents[doc.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[doc.ID]; !ok {
		return ErrDocumentNotFound
	}
	cp := *doc
	m.documents[doc.ID] = &cp
	return nil
}

func (m *MemoryStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) UpdateJob(ctx context.Context, job *models.ProcessingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) HasActiveJob(ctx context.Context, documentID uuid.UUID, jobType models.JobType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, job := range m.jobs {
		if job.DocumentID == documentID && job.JobType == jobType && job.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) StuckJobs(ctx context.Context, cutoff time.Time) ([]*models.ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stuck []*models.ProcessingJob
	for _, job := range m.jobs {
		if job.Status == models.JobRunning && job.CreatedAt.Before(cutoff) {
			cp := *job
			stuck = append(stuck, &cp)
		}
	}
	return stuck, nil
}

func (m *MemoryStore) RetryableJobs(ctx context.Context, since time.Time) ([]*models.ProcessingJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var retryable []*models.ProcessingJob
	for _, job := range m.jobs {
		if job.Status == models.JobFailed && job.RetryCount < job.MaxRetries && !job.CreatedAt.Before(since) {
			cp := *job
			retryable = append(retryable, &cp)
		}
	}
	return retryable, nil
}

func (m *MemoryStore) Stats(ctx context.Context, since, stuckCutoff time.Time) (*models.QueueStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.QueueStats{
		DocumentCounts: make(map[models.DocumentStatus]int),
	}

	var totalLatency time.Duration
	var completed int

	for _, job := range m.jobs {
		if job.CreatedAt.Before(since) {
			continue
		}
		switch job.Status {
		case models.JobPending:
			stats.PendingJobs++
		case models.JobRunning:
			stats.RunningJobs++
			if job.CreatedAt.Before(stuckCutoff) {
				stats.StuckJobs++
			}
		case models.JobFailed:
			stats.FailedJobs++
		case models.JobCompleted:
			stats.CompletedJobs++
			if job.CompletedAt != nil {
				totalLatency += job.CompletedAt.Sub(job.CreatedAt)
				completed++
			}
		}
	}

	if completed > 0 {
		stats.AvgCompletionSeconds = totalLatency.Seconds() / float64(completed)
	}

	for _, doc := range m.documents {
		stats.DocumentCounts[doc.Status]++
	}

	return stats, nil
}
