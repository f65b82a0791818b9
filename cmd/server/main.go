// Package main is the entry point for the CaseFlow API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ozanyurt/caseflow/internal/api"
	"github.com/ozanyurt/caseflow/internal/auth"
	"github.com/ozanyurt/caseflow/internal/blob"
	"github.com/ozanyurt/caseflow/internal/cache"
	"github.com/ozanyurt/caseflow/internal/cases"
	"github.com/ozanyurt/caseflow/internal/config"
	"github.com/ozanyurt/caseflow/internal/database"
	"github.com/ozanyurt/caseflow/internal/notify"
	"github.com/ozanyurt/caseflow/internal/otp"
	"github.com/ozanyurt/caseflow/internal/queue"
	"github.com/ozanyurt/caseflow/internal/repository"
	"github.com/ozanyurt/caseflow/internal/signing"
	"github.com/ozanyurt/caseflow/internal/summarize"
	"github.com/ozanyurt/caseflow/internal/users"
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

	// Startup dependencies are fatal: the process must not serve traffic with
	// the database, cache or blob store unreachable.
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

	dispatcher := notify.NewDispatcher(asynqClient)
	otpSvc := otp.NewService(snapshots, dispatcher, cfg.OTPTTL, log)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, cfg.ResetTTL)
	authSvc := auth.NewService(userRepo, otpSvc, tokens, dispatcher, log)

	summarizer := summarize.New(cfg, log)
	caseSvc := cases.NewService(caseRepo, userRepo, blobs, snapshots, summarizer, queue.NewJobs(asynqClient), log)
	userSvc := users.NewService(userRepo, caseRepo, caseSvc, blobs, snapshots, otpSvc, log)

	signer := signing.NewSigner(cfg.SigningSecret)

	srv := api.New(cfg, authSvc, tokens, caseSvc, userSvc, signer, log)
	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
