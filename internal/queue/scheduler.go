package queue

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/carelane/docqueue/pkg/logger"
)

// SchedulerConfig holds the cron specs for the periodic tasks.
type SchedulerConfig struct {
	ReaperSpec     string
	RetrySweepSpec string
	HealthLogSpec  string
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ReaperSpec:     "@every 5m",
		RetrySweepSpec: "@every 5m",
		HealthLogSpec:  "@every 15m",
	}
}

// Locker is the advisory lock taken before a sweep. The Redis-backed
// implementation is SweepLock; tests inject a fake.
type Locker interface {
	Acquire(ctx context.Context) (release func(), acquired bool, err error)
}

// Scheduler drives the reaper, retry sweep and health logging on cron
// schedules. Sweeps take the shared advisory lock first, so overlapping
// schedules (or multiple scheduler processes) never interleave sweeps.
type Scheduler struct {
	cron   *cron.Cron
	svc    *Service
	lock   Locker
	logger logger.Logger
}

func NewScheduler(svc *Service, lock Locker, log logger.Logger, cfg SchedulerConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		lock:   lock,
		logger: log,
	}

	if _, err := s.cron.AddFunc(cfg.ReaperSpec, func() { s.runLocked("reaper", s.reap) }); err != nil {
		return nil, fmt.Errorf("failed to schedule reaper: %w", err)
	}
	if _, err := s.cron.AddFunc(cfg.RetrySweepSpec, func() { s.runLocked("retry_sweep", s.retry) }); err != nil {
		return nil, fmt.Errorf("failed to schedule retry sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(cfg.HealthLogSpec, s.logHealth); err != nil {
		return nil, fmt.Errorf("failed to schedule health logging: %w", err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts scheduling and waits for in-flight runs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) runLocked(name string, task func(ctx context.Context) error) {
	ctx := context.Background()

	release, acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logger.Error("Sweep lock error", logger.String("task", name), logger.Error(err))
		return
	}
	if !acquired {
		s.logger.Debug("Sweep lock busy, skipping cycle", logger.String("task", name))
		return
	}
	defer release()

	if err := task(ctx); err != nil {
		s.logger.Error("Scheduled task failed", logger.String("task", name), logger.Error(err))
	}
}

func (s *Scheduler) reap(ctx context.Context) error {
	_, err := s.svc.RunReaper(ctx)
	return err
}

func (s *Scheduler) retry(ctx context.Context) error {
	_, err := s.svc.RunRetrySweep(ctx)
	return err
}

func (s *Scheduler) logHealth() {
	health, err := s.svc.QueueHealth(context.Background())
	if err != nil {
		s.logger.Error("Health check failed", logger.Error(err))
		return
	}

	s.logger.Info("Queue health",
		logger.String("status", string(health.Status)),
		logger.Int("pending", health.Stats.PendingJobs),
		logger.Int("running", health.Stats.RunningJobs),
		logger.Int("failed", health.Stats.FailedJobs),
		logger.Int("completed", health.Stats.CompletedJobs),
		logger.Int("stuck", health.Stats.StuckJobs),
		logger.Float64("avgCompletionSeconds", health.Stats.AvgCompletionSeconds),
	)
}
