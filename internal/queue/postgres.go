package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/docqueue/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable Store backed by pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies the embedded DDL. Idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, status, progress_percentage, error_message, original_filename, storage_key, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
		doc.ID, doc.Status, doc.ProgressPercentage, doc.ErrorMessage,
		doc.OriginalFilename, doc.StorageKey, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, progress_percentage, COALESCE(error_message, ''), original_filename, storage_key, created_at, updated_at
		FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET status = $2, progress_percentage = $3, error_message = NULLIF($4, ''), updated_at = $5
		WHERE id = $1`,
		doc.ID, doc.Status, doc.ProgressPercentage, doc.ErrorMessage, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_jobs (id, document_id, job_type, status, retry_count, max_retries, priority, error_message, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`,
		job.ID, job.DocumentID, job.JobType, job.Status, job.RetryCount, job.MaxRetries,
		job.Priority, job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ProcessingJob, error) {
	row := s.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, id)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *models.ProcessingJob) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_jobs
		SET status = $2, retry_count = $3, error_message = NULLIF($4, ''), updated_at = $5, completed_at = $6
		WHERE id = $1`,
		job.ID, job.Status, job.RetryCount, job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) HasActiveJob(ctx context.Context, documentID uuid.UUID, jobType models.JobType) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM processing_jobs
			WHERE document_id = $1 AND job_type = $2 AND status IN ('pending', 'running')
		)`, documentID, jobType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) StuckJobs(ctx context.Context, cutoff time.Time) ([]*models.ProcessingJob, error) {
	rows, err := s.pool.Query(ctx, selectJob+`
		WHERE status = 'running' AND created_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) RetryableJobs(ctx context.Context, since time.Time) ([]*models.ProcessingJob, error) {
	rows, err := s.pool.Query(ctx, selectJob+`
		WHERE status = 'failed' AND retry_count < max_retries AND created_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query retryable jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) Stats(ctx context.Context, since, stuckCutoff time.Time) (*models.QueueStats, error) {
	stats := &models.QueueStats{
		DocumentCounts: make(map[models.DocumentStatus]int),
	}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'running' AND created_at < $2),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - created_at))) FILTER (WHERE status = 'completed' AND completed_at IS NOT NULL), 0)
		FROM processing_jobs
		WHERE created_at >= $1`, since, stuckCutoff,
	).Scan(
		&stats.PendingJobs, &stats.RunningJobs, &stats.FailedJobs,
		&stats.CompletedJobs, &stats.StuckJobs, &stats.AvgCompletionSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate jobs: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.DocumentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan document count: %w", err)
		}
		stats.DocumentCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document counts: %w", err)
	}

	return stats, nil
}

const selectJob = `
	SELECT id, document_id, job_type, status, retry_count, max_retries, priority, COALESCE(error_message, ''), created_at, updated_at, completed_at
	FROM processing_jobs`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.ID, &doc.Status, &doc.ProgressPercentage, &doc.ErrorMessage,
		&doc.OriginalFilename, &doc.StorageKey, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var job models.ProcessingJob
	err := row.Scan(
		&job.ID, &job.DocumentID, &job.JobType, &job.Status, &job.RetryCount,
		&job.MaxRetries, &job.Priority, &job.ErrorMessage, &job.CreatedAt,
		&job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*models.ProcessingJob, error) {
	var jobs []*models.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read jobs: %w", err)
	}
	return jobs, nil
}
