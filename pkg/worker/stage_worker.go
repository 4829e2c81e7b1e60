package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/carelane/docqueue/internal/models"
	"github.com/carelane/docqueue/internal/queue"
	"github.com/carelane/docqueue/pkg/dispatch"
	"github.com/carelane/docqueue/pkg/logger"
)

// StageProcessor executes one processing stage for one document.
type StageProcessor interface {
	Process(ctx context.Context, task dispatch.StagePayload) error
}

// Transitioner is the slice of the queue service the worker needs: the
// sanctioned mutation path. Workers never write job rows directly.
type Transitioner interface {
	TransitionJob(ctx context.Context, jobID uuid.UUID, newStatus models.JobStatus, errorMessage string) error
}

// StageWorker consumes dispatched stage tasks, runs the matching processor
// and reports the outcome through the queue service.
type StageWorker struct {
	BaseWorker
	transitioner Transitioner
	processors   map[string]StageProcessor
}

func NewStageWorker(cfg *Config, transitioner Transitioner, processors map[string]StageProcessor, log logger.Logger) (*StageWorker, error) {
	if len(processors) == 0 {
		return nil, fmt.Errorf("no stage processors registered")
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
		},
	)

	w := &StageWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		transitioner: transitioner,
		processors:   processors,
	}

	for taskType := range processors {
		w.mux.HandleFunc(taskType, w.handleStage)
	}
	return w, nil
}

func (w *StageWorker) handleStage(ctx context.Context, t *asynq.Task) error {
	var task dispatch.StagePayload
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal stage task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal stage task: %w", err)
	}

	log := w.logger.With(
		logger.String("jobId", task.JobID.String()),
		logger.String("jobType", task.JobType),
		logger.String("filename", task.Filename),
	)

	// Claim the job. A terminal result means the reaper or another worker
	// got here first; redelivered tasks are dropped without side effects.
	if err := w.transitioner.TransitionJob(ctx, task.JobID, models.JobRunning, ""); err != nil {
		if errors.Is(err, queue.ErrTerminalJob) || errors.Is(err, queue.ErrInvalidTransition) {
			log.Warn("Skipping stage task, job no longer claimable", logger.Error(err))
			return nil
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	log.Info("Processing stage task")

	processor, ok := w.processors[t.Type()]
	if !ok {
		// registration and mux routing are keyed the same way
		return fmt.Errorf("no processor for task type %q", t.Type())
	}

	if err := processor.Process(ctx, task); err != nil {
		log.Error("Stage processing failed", logger.Error(err))
		if terr := w.transitioner.TransitionJob(ctx, task.JobID, models.JobFailed, err.Error()); terr != nil {
			log.Error("Failed to record job failure", logger.Error(terr))
		}
		// retries are owned by the queue's retry sweep, not asynq
		return nil
	}

	if err := w.transitioner.TransitionJob(ctx, task.JobID, models.JobCompleted, ""); err != nil {
		if errors.Is(err, queue.ErrTerminalJob) {
			log.Warn("Job completed after being reaped, result discarded")
			return nil
		}
		return fmt.Errorf("failed to record job completion: %w", err)
	}

	log.Info("Stage task completed")
	return nil
}

func (w *StageWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}
