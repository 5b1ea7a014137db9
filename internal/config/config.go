package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice companion service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Shared remote API configuration. Transcription, chat completion and
	// synthesis are all reached through this base address and bearer token.
	APIBaseURL     string        `envconfig:"API_BASE_URL" default:"https://api.aimlapi.com/v1"`
	APIKey         string        `envconfig:"API_KEY" required:"true"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"` // transcription and synthesis
	ChatTimeout    time.Duration `envconfig:"CHAT_TIMEOUT" default:"10s"`    // per chat completion attempt

	// Speech-to-text configuration
	STTProvider    string `envconfig:"STT_PROVIDER" default:"http"` // http, deepgram
	STTModel       string `envconfig:"STT_MODEL" default:"#g1_nova-2-general"`
	STTLanguage    string `envconfig:"STT_LANGUAGE" default:"en"`
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""` // only for STT_PROVIDER=deepgram
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	RecordingDir   string `envconfig:"RECORDING_DIR" default:""` // temp recordings; empty uses os.TempDir

	// Chat completion configuration
	ChatModel     string `envconfig:"CHAT_MODEL" default:"openai/gpt-4.1-nano-2025-04-14"`
	ChatMaxTokens int    `envconfig:"CHAT_MAX_TOKENS" default:"200"`

	// Text-to-speech configuration
	TTSDefaultVoice string  `envconfig:"TTS_DEFAULT_VOICE" default:"default"` // default, male, female, child
	TTSSpeed        float64 `envconfig:"TTS_SPEED" default:"1.0"`
	CacheDir        string  `envconfig:"CACHE_DIR" default:""` // empty uses <user cache dir>/voice-companion/tts-cache
	CacheMaxAgeDays int     `envconfig:"CACHE_MAX_AGE_DAYS" default:"7"`

	// Conversation configuration
	HistoryDBPath          string        `envconfig:"HISTORY_DB_PATH" default:""` // empty disables the conversation log
	HistoryContextMessages int           `envconfig:"HISTORY_CONTEXT_MESSAGES" default:"6"`
	GreetOnListen          bool          `envconfig:"GREET_ON_LISTEN" default:"true"`
	PlaybackTimeout        time.Duration `envconfig:"PLAYBACK_TIMEOUT" default:"2m"`

	// Audio processing configuration
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"65536"`    // capture ring buffer size in bytes
	AutoStopOnSilence  bool    `envconfig:"AUTO_STOP_ON_SILENCE" default:"false"` // end the turn when the speaker goes quiet
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"50"`      // 20ms frames of silence to mark speech end

	// Resilience configuration
	CircuitBreakerMaxFailures  int           `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout time.Duration `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30s"`
	RetryMaxAttempts           int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"` // total chat attempts
	RetryBaseDelay             time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`  // linear: 1x, 2x, ...

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	switch c.STTProvider {
	case "http":
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.CacheMaxAgeDays < 1 {
		return fmt.Errorf("CACHE_MAX_AGE_DAYS must be at least 1")
	}
	return nil
}

// ResolveCacheDir returns the TTS cache directory, defaulting to the user's cache dir.
func (c *Config) ResolveCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "voice-companion", "tts-cache")
}

// ResolveRecordingDir returns the directory used for temporary recordings.
func (c *Config) ResolveRecordingDir() string {
	if c.RecordingDir != "" {
		return c.RecordingDir
	}
	return os.TempDir()
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
