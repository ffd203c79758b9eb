package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"assistant-relay/internal/config"
	"assistant-relay/internal/database"
	"assistant-relay/internal/handlers"
	"assistant-relay/internal/logging"
	"assistant-relay/internal/middleware"
	"assistant-relay/internal/router"
	"assistant-relay/internal/services"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logging.Setup(cfg.Env, cfg.LogLevel)
	log.Info().Msg("🚀 Starting Assistant Relay...")
	log.Info().Msg("✓ Environment variables loaded")

	if config.APIKey() == "" {
		// Not fatal: the key is read per request and may be provided later.
		log.Warn().Msg("GOOGLE_API_KEY is not set, relay requests will fail until it is")
	}

	// ──── Step 2: Initialize Gemini Service ────
	geminiService := services.NewGeminiService(
		config.APIKey,
		cfg.GeminiModel,
		cfg.GeminiConcurrentReqs,
		cfg.GeminiTimeout,
	)
	log.Info().
		Str("model", cfg.GeminiModel).
		Int("concurrency", cfg.GeminiConcurrentReqs).
		Dur("timeout", cfg.GeminiTimeout).
		Msg("✓ Gemini service initialized")

	// ──── Step 3: Initialize Rate Limiter ────
	var limiter router.Limiter
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ Redis connection failed")
		}
		defer redisClient.Close()
		limiter = middleware.NewRedisRateLimiter(redisClient, cfg.RateLimitPerMinute)
		log.Info().Int("per_minute", cfg.RateLimitPerMinute).Msg("✓ Redis rate limiter enabled")
	} else {
		memLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		defer memLimiter.Stop()
		limiter = memLimiter
		log.Info().Int("per_minute", cfg.RateLimitPerMinute).Msg("✓ In-memory rate limiter enabled")
	}

	// ──── Step 4: Initialize Handlers ────
	relayHandler := handlers.NewRelayHandler(geminiService, cfg.StreamMode)
	log.Info().Str("stream_mode", cfg.StreamMode).Msg("✓ Relay handler ready")

	// ──── Step 5: Start HTTP Server ────
	r := router.New(relayHandler, limiter, cfg.FrontendURL)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Must outlive the upstream call plus the time to stream the answer.
		WriteTimeout: cfg.GeminiTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().Msgf("✓ Assistant Relay ready on http://localhost:%s", cfg.Port)
	log.Info().Msgf("  API: http://localhost:%s/api/chat", cfg.Port)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
	<-idle
}
