package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/batepapo/internal/api"
	"github.com/eldtechnologies/batepapo/internal/api/middleware"
	"github.com/eldtechnologies/batepapo/internal/chat"
	"github.com/eldtechnologies/batepapo/internal/config"
	"github.com/eldtechnologies/batepapo/internal/events"
	"github.com/eldtechnologies/batepapo/internal/handlers"
	"github.com/eldtechnologies/batepapo/internal/presence"
	"github.com/eldtechnologies/batepapo/internal/store"
	"github.com/eldtechnologies/batepapo/internal/stream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the store
	st, err := store.Open(ctx, cfg.StoreOptions(), logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("store initialization failed")
	}
	defer st.Close()
	logger.Info().Str("backend", cfg.StoreBackend).Msg("store ready")

	// Redis for rate limiting, shared with the store when it is the backend
	var limiter *redis.Client
	if rs, ok := st.(*store.RedisStore); ok {
		limiter = rs.Client()
	} else if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		limiter = redis.NewClient(opts)
		defer limiter.Close()
		if err := limiter.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		logger.Info().Msg("connected to Redis")
	}
	if limiter == nil {
		logger.Warn().Msg("REDIS_URL not set, rate limiting disabled")
	}

	// Event fan-out
	hub := stream.NewHub(logger)
	publishers := events.Multi{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publishers = append(publishers, kp)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka event publisher enabled")
	}

	// Services
	presenceSvc := presence.NewService(st, st, publishers, logger)
	chatSvc := chat.NewService(st, st, publishers, logger)
	sweeper := presence.NewSweeper(st, st, publishers, logger, cfg.SweepInterval, cfg.InactivityThreshold)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		_ = sweeper.Run(ctx)
	}()

	// Create router
	router := api.NewRouter(logger, api.Options{
		Handler:   handlers.NewHandler(presenceSvc, chatSvc, st, logger).WithSweeper(sweeper),
		Stream:    stream.NewServer(hub, logger, stream.DefaultPingEvery),
		RateLimit: limiter,
		RateLimitConfig: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting batepapo server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	<-sweepDone

	logger.Info().Msg("server stopped")
}

// newLogger writes human-readable output in development and JSON
// otherwise. An unknown LOG_LEVEL falls back to info.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(out).
			With().
			Timestamp().
			Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
		return logger.Level(zerolog.InfoLevel)
	}
	return logger.Level(level)
}
