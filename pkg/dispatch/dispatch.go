package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/carelane/docqueue/internal/models"
	"github.com/carelane/docqueue/pkg/logger"
)

// Task types routed to the worker mux.
const (
	TaskTypeParse = "document:parse"
	TaskTypeEmbed = "document:embed"
)

// StagePayload is the wire format of a dispatched stage task. Workers report
// results back through the queue service, never by writing job rows.
type StagePayload struct {
	JobID      uuid.UUID `json:"jobId"`
	DocumentID uuid.UUID `json:"documentId"`
	JobType    string    `json:"jobType"`
	Filename   string    `json:"filename"`
	StorageKey string    `json:"storageKey"`
	RetryCount int       `json:"retryCount"`
}

// Config defines dispatcher configuration
type Config struct {
	RedisAddr      string
	RedisDB        int
	ProcessTimeout time.Duration
}

// Dispatcher pushes stage tasks onto the asynq queues.
type Dispatcher struct {
	client  *asynq.Client
	timeout time.Duration
	logger  logger.Logger
}

func NewDispatcher(cfg *Config, log logger.Logger) *Dispatcher {
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	return &Dispatcher{
		client:  client,
		timeout: timeout,
		logger:  log,
	}
}

// Dispatch enqueues one stage task for a pending job. Retries are owned by
// the queue's retry sweep, so asynq-level retry is disabled; the task id is
// keyed by (job, retry) so a revived job can be dispatched again.
func (d *Dispatcher) Dispatch(ctx context.Context, job *models.ProcessingJob, doc *models.Document) error {
	taskType, err := taskTypeFor(job.JobType)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(StagePayload{
		JobID:      job.ID,
		DocumentID: doc.ID,
		JobType:    string(job.JobType),
		Filename:   doc.OriginalFilename,
		StorageKey: doc.StorageKey,
		RetryCount: job.RetryCount,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stage payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%d", job.ID, job.RetryCount)),
		asynq.MaxRetry(0),
		asynq.Timeout(d.timeout),
		asynq.Queue(queueFor(job.Priority)),
	}

	task := asynq.NewTask(taskType, payload, opts...)
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue stage task: %w", err)
	}

	d.logger.Debug("Stage task dispatched",
		logger.String("taskId", info.ID),
		logger.String("taskType", taskType),
		logger.String("queue", info.Queue),
	)

	return nil
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

func taskTypeFor(jobType models.JobType) (string, error) {
	switch jobType {
	case models.JobTypeParse:
		return TaskTypeParse, nil
	case models.JobTypeEmbed:
		return TaskTypeEmbed, nil
	default:
		return "", fmt.Errorf("no task type for job type %q", jobType)
	}
}

func queueFor(priority int) string {
	switch {
	case priority >= 2:
		return "critical"
	case priority < 0:
		return "low"
	default:
		return "default"
	}
}
