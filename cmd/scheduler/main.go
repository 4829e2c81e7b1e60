package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/carelane/docqueue/config"
	"github.com/carelane/docqueue/internal/queue"
	"github.com/carelane/docqueue/pkg/dispatch"
	"github.com/carelane/docqueue/pkg/logger"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/scheduler.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	queueCfg, err := config.LoadQueueConfig(os.Getenv("QUEUE_CONFIG"))
	if err != nil {
		log.Error("Failed to load queue config", logger.Error(err))
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := queue.NewPostgresStore(ctx, config.GetPostgresConfig().DSN)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisCfg.Addr,
		DB:   redisCfg.DB,
	})
	defer redisClient.Close()

	// the retry sweep re-dispatches revived jobs, so the scheduler carries
	// a dispatcher too
	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		RedisAddr:      redisCfg.Addr,
		RedisDB:        redisCfg.DB,
		ProcessTimeout: queueCfg.StuckThreshold,
	}, log)
	defer dispatcher.Close()

	svc := queue.NewService(store, dispatcher, log, queue.Config{
		DefaultMaxRetries: queueCfg.DefaultMaxRetries,
		StuckThreshold:    queueCfg.StuckThreshold,
		RetryWindow:       queueCfg.RetryWindow,
	})

	lock := queue.NewSweepLock(redisClient, "docqueue:sweep_lock", queueCfg.SweepLockTTL)

	scheduler, err := queue.NewScheduler(svc, lock, log, queue.SchedulerConfig{
		ReaperSpec:     queueCfg.ReaperSpec,
		RetrySweepSpec: queueCfg.RetrySweepSpec,
		HealthLogSpec:  queueCfg.HealthLogSpec,
	})
	if err != nil {
		log.Error("Failed to create scheduler", logger.Error(err))
		os.Exit(1)
	}

	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down scheduler...")
	scheduler.Stop()
}
