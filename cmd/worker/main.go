// Package main runs the CaseFlow worker: it consumes summarization jobs and
// queued notifications.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ozanyurt/caseflow/internal/blob"
	"github.com/ozanyurt/caseflow/internal/cache"
	"github.com/ozanyurt/caseflow/internal/cases"
	"github.com/ozanyurt/caseflow/internal/config"
	"github.com/ozanyurt/caseflow/internal/database"
	"github.com/ozanyurt/caseflow/internal/queue"
	"github.com/ozanyurt/caseflow/internal/repository"
	"github.com/ozanyurt/caseflow/internal/summarize"
	"github.com/ozanyurt/caseflow/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	snapshots := cache.New(rdb, cfg.CacheTTL, log)
	if err := snapshots.Ping(ctx); err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}

	blobs, err := blob.New(cfg)
	if err != nil {
		log.Error("init blob store", "error", err)
		os.Exit(1)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		log.Error("ensure bucket", "error", err)
		os.Exit(1)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	userRepo := repository.NewUserRepository(pool)
	caseRepo := repository.NewCaseRepository(pool)
	summarizer := summarize.New(cfg, log)
	caseSvc := cases.NewService(caseRepo, userRepo, blobs, snapshots, summarizer, queue.NewJobs(asynqClient), log)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerCount,
	})
	processor := worker.NewProcessor(caseSvc, log)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info("worker started", "concurrency", cfg.WorkerCount)
	if err := server.Run(processor.Handler()); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}
