// Package main runs the live session platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lingua-hub/backend/config"
	"github.com/lingua-hub/backend/internal/auth"
	"github.com/lingua-hub/backend/internal/middleware"
	"github.com/lingua-hub/backend/internal/quizzes"
	"github.com/lingua-hub/backend/internal/recordings"
	"github.com/lingua-hub/backend/internal/rooms"
	"github.com/lingua-hub/backend/internal/rtc"
	"github.com/lingua-hub/backend/pkg/database"
	"github.com/lingua-hub/backend/pkg/queue"
	"github.com/lingua-hub/backend/pkg/redis"
	"github.com/lingua-hub/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// RTC: credential issuer, control-plane client, webhook channel
	roomRepo := rooms.NewRepository(pool)
	participantRepo := rooms.NewParticipantRepository(pool)
	tokenRepo := rtc.NewTokenRepository(pool)
	tokenTTL := time.Duration(cfg.LiveKit.TokenTTLMinutes) * time.Minute
	issuer := rtc.NewIssuer(roomRepo, authRepo, tokenRepo,
		cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL, tokenTTL, logger)
	roomClient := rtc.NewRoomClient(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, logger)
	rtcHandler := rtc.NewHandler(issuer, roomClient, tokenRepo, logger)

	// Rooms
	roomService := rooms.NewService(roomRepo, participantRepo, authRepo,
		issuer, roomClient, jobQueue, rooms.Policy{
			AllowEarlyJoin:         cfg.Room.AllowEarlyJoin,
			EarlyJoinWindowMinutes: cfg.Room.EarlyJoinWindowMinutes,
			MinDurationMinutes:     cfg.Room.MinDurationMinutes,
			MaxDurationMinutes:     cfg.Room.MaxDurationMinutes,
		}, logger)
	roomHandler := rooms.NewHandler(roomService)

	// Recordings
	recordingRepo := recordings.NewRepository(pool)
	presignTTL := time.Duration(cfg.Storage.PresignExpireHours) * time.Hour
	recordingService := recordings.NewService(recordingRepo, objectStore, roomRepo, jobQueue, presignTTL, logger)
	recordingHandler := recordings.NewHandler(recordingService)

	// Quizzes
	quizRepo := quizzes.NewRepository(pool)
	quizService := quizzes.NewService(quizRepo, cfg.Quiz.DefaultPassingScore, logger)
	quizHandler := quizzes.NewHandler(quizService)

	webhookHandler := rtc.NewWebhookHandler(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret,
		roomService, recordingService, logger)

	// Hourly sweep of expired credential audit rows
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go issuer.RunCleanup(cleanupCtx, time.Hour)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("/api")

	// Auth (public)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Provider webhook (no JWT; signature-verified in handler)
	api.POST("/livekit/webhook", webhookHandler.Handle)

	// Protected API (JWT required)
	protected := api.Group("")
	protected.Use(middleware.JWT(jwtService))
	{
		protected.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Rooms
		protected.GET("/rooms", roomHandler.List)
		protected.POST("/rooms", middleware.RequireRole("admin", "professor"), roomHandler.Create)
		protected.GET("/rooms/livekit/:name", roomHandler.GetByLivekitName)
		protected.GET("/rooms/:id", roomHandler.GetByID)
		protected.PATCH("/rooms/:id", middleware.RequireRole("admin", "professor"), roomHandler.Update)
		protected.DELETE("/rooms/:id", middleware.RequireRole("admin"), roomHandler.Delete)
		protected.POST("/rooms/:id/join", roomHandler.Join)
		protected.POST("/rooms/:id/start", middleware.RequireRole("admin", "professor"), roomHandler.Start)
		protected.POST("/rooms/:id/end", middleware.RequireRole("admin", "professor"), roomHandler.End)
		protected.POST("/rooms/:id/cancel", middleware.RequireRole("admin", "professor"), roomHandler.Cancel)
		protected.GET("/rooms/:id/participants", roomHandler.Participants)
		protected.POST("/rooms/:id/participants/mute", middleware.RequireRole("admin", "professor"), roomHandler.Mute)
		protected.POST("/rooms/:id/participants/ping", middleware.RequireRole("admin", "professor"), roomHandler.Ping)
		protected.POST("/rooms/:id/participants/clear-ping", middleware.RequireRole("admin", "professor"), roomHandler.ClearPing)
		protected.POST("/rooms/:id/participants/kick", middleware.RequireRole("admin", "professor"), roomHandler.Kick)

		// Recordings
		protected.POST("/recordings/start", middleware.RequireRole("admin", "professor"), recordingHandler.Start)
		protected.POST("/recordings/upload", middleware.RequireRole("admin", "professor"), recordingHandler.Upload)
		protected.GET("/recordings/room/:roomId", recordingHandler.ListByRoom)
		protected.GET("/recordings/student/:studentId", recordingHandler.ListByStudent)
		protected.GET("/recordings/:id", recordingHandler.GetByID)
		protected.GET("/recordings/:id/playback-url", recordingHandler.PlaybackURL)
		protected.DELETE("/recordings/:id", middleware.RequireRole("admin"), recordingHandler.Delete)

		// Quizzes
		protected.GET("/quizzes", quizHandler.List)
		protected.POST("/quizzes", middleware.RequireRole("admin", "professor"), quizHandler.Create)
		protected.GET("/quizzes/results/student/:id", quizHandler.StudentResults)
		protected.GET("/quizzes/:id", quizHandler.GetByID)
		protected.DELETE("/quizzes/:id", middleware.RequireRole("admin", "professor"), quizHandler.Delete)
		protected.POST("/quizzes/:id/publish", middleware.RequireRole("admin", "professor"), quizHandler.Publish)
		protected.POST("/quizzes/:id/submit", middleware.RequireRole("student"), quizHandler.Submit)
		protected.GET("/quizzes/:id/results", middleware.RequireRole("admin", "professor"), quizHandler.Results)

		// RTC
		protected.POST("/livekit/token", rtcHandler.GetToken)
		protected.GET("/livekit/rooms/:name", rtcHandler.GetRoomInfo)
		protected.POST("/livekit/rooms/:name/mute-track", middleware.RequireRole("admin", "professor"), rtcHandler.MuteTrack)
		protected.GET("/livekit/credentials/:roomId", middleware.RequireRole("admin"), rtcHandler.ListRoomCredentials)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cleanupCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
