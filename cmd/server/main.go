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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-companion/internal/app"
	"github.com/lexiqai/voice-companion/internal/bridge"
	"github.com/lexiqai/voice-companion/internal/config"
	"github.com/lexiqai/voice-companion/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("api_base_url", cfg.APIBaseURL).
		Str("stt_provider", cfg.STTProvider).
		Str("chat_model", cfg.ChatModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Companion Service starting")

	clips, err := app.OpenCache(cfg, observability.Component("cache"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open TTS cache")
	}
	if removed := clips.EvictOlderThan(time.Duration(cfg.CacheMaxAgeDays) * 24 * time.Hour); removed > 0 {
		logger.Info().Int("removed", removed).Str("dir", clips.Dir()).Msg("Cleaned TTS cache")
	}

	sttService, err := app.NewSTTService(cfg, observability.Component("stt"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create STT service")
	}

	generator := app.NewGenerator(cfg, observability.Component("llm"))

	deps := bridge.Dependencies{
		Config:    cfg,
		Responder: generator,
		STT:       sttService,
		TTS:       app.NewTTSService(cfg, observability.Component("tts")),
		Cache:     clips,
		Logger:    observability.Component("bridge"),
	}

	checks := map[string]observability.HealthCheckFunc{
		"llm": generator.Check,
		"tts_cache": func(ctx context.Context) (bool, error) {
			if err := clips.Check(); err != nil {
				return false, err
			}
			return true, nil
		},
		"api_key": func(ctx context.Context) (bool, error) {
			if cfg.APIKey == "" {
				return false, errors.New("API_KEY not set")
			}
			return true, nil
		},
	}

	store, err := app.OpenHistory(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open conversation history")
	}
	if store != nil {
		defer store.Close()
		deps.History = store
		checks["history"] = store.Check
		logger.Info().Str("path", cfg.HistoryDBPath).Msg("Conversation history enabled")
	}

	// Create HTTP server
	mux := http.NewServeMux()

	// Companion app WebSocket
	mux.Handle("/session", bridge.NewHandler(deps))

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No write timeout: /session connections are long-lived and set their
	// own per-message deadlines.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/session", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	logger.Info().Msg("Server exited gracefully")
}
