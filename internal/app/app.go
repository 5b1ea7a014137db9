// Package app builds the shared services from configuration. Both the
// server and the command line tool are wired through it.
package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/cache"
	"github.com/lexiqai/voice-companion/internal/config"
	"github.com/lexiqai/voice-companion/internal/history"
	"github.com/lexiqai/voice-companion/internal/llm"
	"github.com/lexiqai/voice-companion/internal/observability"
	"github.com/lexiqai/voice-companion/internal/remote"
	"github.com/lexiqai/voice-companion/internal/resilience"
	"github.com/lexiqai/voice-companion/internal/stt"
	"github.com/lexiqai/voice-companion/internal/tts"
)

// NewGenerator creates the chat generator with its retry schedule and
// circuit breaker. Breaker transitions are exported as metrics.
func NewGenerator(cfg *config.Config, logger zerolog.Logger) *llm.Generator {
	breaker := resilience.NewCircuitBreaker("llm", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout)
	breaker.OnStateChange = func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}

	return llm.NewGenerator(llm.Config{
		BaseURL:   cfg.APIBaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.ChatModel,
		MaxTokens: cfg.ChatMaxTokens,
		Timeout:   cfg.ChatTimeout,
		Retry:     resilience.LinearRetryConfig(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		Breaker:   breaker,
	}, logger)
}

// NewSTTService returns the transcription backend selected by STT_PROVIDER.
func NewSTTService(cfg *config.Config, logger zerolog.Logger) (stt.Service, error) {
	switch cfg.STTProvider {
	case "http", "":
		client := remote.NewClient("stt", cfg.APIBaseURL, cfg.APIKey, cfg.RequestTimeout, remote.WithLogger(logger))
		return stt.NewHTTPService(client, cfg.STTModel, cfg.STTLanguage), nil
	case "deepgram":
		return stt.NewDeepgramService(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.STTLanguage), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STTProvider)
	}
}

// NewTTSService returns the synthesis backend.
func NewTTSService(cfg *config.Config, logger zerolog.Logger) tts.Service {
	client := remote.NewClient("tts", cfg.APIBaseURL, cfg.APIKey, cfg.RequestTimeout, remote.WithLogger(logger))
	return tts.NewHTTPService(client)
}

// OpenCache opens the clip cache in the configured directory.
func OpenCache(cfg *config.Config, logger zerolog.Logger) (*cache.Cache, error) {
	return cache.New(cfg.ResolveCacheDir(), logger)
}

// OpenHistory opens the conversation log. It returns nil when no path is
// configured.
func OpenHistory(cfg *config.Config) (*history.Store, error) {
	if cfg.HistoryDBPath == "" {
		return nil, nil
	}
	return history.Open(cfg.HistoryDBPath)
}
