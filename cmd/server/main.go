package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/globalchat/internal/api"
	"github.com/eldtechnologies/globalchat/internal/api/middleware"
	"github.com/eldtechnologies/globalchat/internal/config"
	"github.com/eldtechnologies/globalchat/internal/logger"
	"github.com/eldtechnologies/globalchat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Chat state lives only in this process
	chat := store.NewMemoryStore(
		store.WithLogger(log),
		store.WithMaxMessages(cfg.MaxMessages),
		store.WithHeartbeatTTL(cfg.HeartbeatTTL),
		store.WithSweepInterval(cfg.SweepInterval),
	)
	go chat.Run(ctx)

	// Rate limiter: off by default; Redis when configured, otherwise per-process buckets
	var limiter middleware.Limiter
	switch {
	case !cfg.RateLimitEnabled():
		log.Info().Msg("rate limiting disabled")
	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer client.Close()

		window := time.Duration(float64(cfg.RateLimitBurst) / cfg.RateLimitRPS * float64(time.Second))
		limiter = middleware.NewRedisLimiter(client, cfg.RateLimitBurst, window)
		log.Info().Msg("connected to Redis for rate limiting")
	default:
		mem := middleware.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 2*time.Minute)
		defer mem.Stop()
		limiter = mem
	}

	router := api.NewRouter(log, chat, limiter, cfg.RateLimitWhitelist)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("base_path", api.BasePath).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
