// Package main runs the background job worker (recording fetch, session summaries).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lingua-hub/backend/config"
	"github.com/lingua-hub/backend/internal/recordings"
	"github.com/lingua-hub/backend/internal/rooms"
	"github.com/lingua-hub/backend/internal/worker"
	"github.com/lingua-hub/backend/pkg/database"
	"github.com/lingua-hub/backend/pkg/queue"
	"github.com/lingua-hub/backend/pkg/redis"
	"github.com/lingua-hub/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	objectStore, err := storage.New(ctx, storage.Config{
		Region:           cfg.Storage.Region,
		Endpoint:         cfg.Storage.Endpoint,
		AccessKeyID:      cfg.Storage.AccessKeyID,
		SecretAccessKey:  cfg.Storage.SecretAccessKey,
		RecordingsBucket: cfg.Storage.RecordingsBucket,
		ForcePathStyle:   cfg.Storage.ForcePathStyle,
	}, logger)
	if err != nil {
		logger.Fatal("object storage", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)

	roomRepo := rooms.NewRepository(pool)
	participantRepo := rooms.NewParticipantRepository(pool)
	recordingRepo := recordings.NewRepository(pool)
	presignTTL := time.Duration(cfg.Storage.PresignExpireHours) * time.Hour
	recordingService := recordings.NewService(recordingRepo, objectStore, roomRepo, jobQueue, presignTTL, logger)

	summarizer := worker.NewSummarizer(roomRepo, participantRepo, cfg.Worker.SummaryEndpoint, logger)
	processor := worker.NewProcessor(recordingService, summarizer, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
