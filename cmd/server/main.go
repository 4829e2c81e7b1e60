package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carelane/docqueue/api/handlers"
	"github.com/carelane/docqueue/api/routes"
	"github.com/carelane/docqueue/config"
	"github.com/carelane/docqueue/internal/queue"
	"github.com/carelane/docqueue/pkg/dispatch"
	"github.com/carelane/docqueue/pkg/logger"
)

func main() {
	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	queueCfg, err := config.LoadQueueConfig(os.Getenv("QUEUE_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load queue config", logger.Error(err))
	}

	ctx := context.Background()

	// init store
	store, err := queue.NewPostgresStore(ctx, config.GetPostgresConfig().DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", logger.Error(err))
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to apply schema", logger.Error(err))
	}

	// init dispatcher
	redisCfg := config.GetRedisConfig()
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

	h := handlers.NewHandlers(svc, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting on port 8080")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
