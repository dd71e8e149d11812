package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"edukeeper/internal/util"
	"edukeeper/pkg/queue"
	"edukeeper/services/extract/internal/app"
	"edukeeper/services/extract/internal/config"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	jobQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.ExtractStream,
	})
	if err != nil {
		log.Fatalf("failed to init queue: %v", err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("extract worker consuming", "stream", cfg.ExtractStream, "concurrency", concurrency)
	jobQueue.Start(ctx, concurrency, appCore.HandleJob)
	<-ctx.Done()
	slog.Info("extract worker stopping")
}
