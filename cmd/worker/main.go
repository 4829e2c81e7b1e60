package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/carelane/docqueue/config"
	"github.com/carelane/docqueue/internal/embed"
	"github.com/carelane/docqueue/internal/parse"
	"github.com/carelane/docqueue/internal/queue"
	"github.com/carelane/docqueue/pkg/dispatch"
	"github.com/carelane/docqueue/pkg/logger"
	"github.com/carelane/docqueue/pkg/storage"
	"github.com/carelane/docqueue/pkg/worker"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := queue.NewPostgresStore(ctx, config.GetPostgresConfig().DSN)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	redisCfg := config.GetRedisConfig()
	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		RedisAddr:      redisCfg.Addr,
		RedisDB:        redisCfg.DB,
		ProcessTimeout: queueCfg.StuckThreshold,
	}, log)
	defer dispatcher.Close()

	// the service is shared with the server; parse completions spawn embed
	// jobs through the same completion handler
	svc := queue.NewService(store, dispatcher, log, queue.Config{
		DefaultMaxRetries: queueCfg.DefaultMaxRetries,
		StuckThreshold:    queueCfg.StuckThreshold,
		RetryWindow:       queueCfg.RetryWindow,
	})

	storageType := storage.StorageType(os.Getenv("STORAGE_TYPE"))
	if storageType == "" {
		storageType = storage.StorageTypeMinio
	}
	blobs, err := storage.NewStorage(storageType, log)
	if err != nil {
		log.Error("Failed to initialize storage", logger.Error(err))
		os.Exit(1)
	}

	embedClient := embed.NewClient(config.GetEmbeddingConfig())

	processors := map[string]worker.StageProcessor{
		dispatch.TaskTypeParse: parse.NewProcessor(blobs, log),
		dispatch.TaskTypeEmbed: embed.NewProcessor(blobs, embedClient, log),
	}

	workerCfg := &worker.Config{
		RedisAddr:   redisCfg.Addr,
		RedisDB:     redisCfg.DB,
		Concurrency: queueCfg.WorkerConcurrency,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	}

	stageWorker, err := worker.NewStageWorker(workerCfg, svc, processors, log)
	if err != nil {
		log.Error("Failed to create stage worker", logger.Error(err))
		os.Exit(1)
	}

	if err := stageWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	stageWorker.Stop()
	log.Info("Worker stopped")
}
