package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-companion/internal/observability"
	"github.com/lexiqai/voice-companion/internal/resilience"
)

var (
	// ErrAuthentication is returned for 401 responses. Never retried.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRateLimited is returned for 429 responses. Never retried.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrServiceUnavailable is returned once retries are exhausted, for
	// non-retryable client errors and while the circuit is open.
	ErrServiceUnavailable = errors.New("chat service unavailable")
	// ErrMalformedResponse is returned when a successful response has no completion text.
	ErrMalformedResponse = errors.New("invalid response structure from chat API")
)

const (
	systemPromptBase    = "You are an AI assistant for elderly users."
	defaultInstructions = "Keep responses clear, concise, and helpful."
)

// Config configures a Generator.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Retry controls the attempt count and backoff schedule.
	Retry *resilience.RetryConfig
	// Breaker, if set, fails calls fast while the chat service is down.
	Breaker *resilience.CircuitBreaker
	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client
}

// Generator produces assistant replies through an OpenAI-compatible chat endpoint.
type Generator struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger

	now func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(cfg Config, logger zerolog.Logger) *Generator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	retry := resilience.LinearRetryConfig(3, time.Second)
	if cfg.Retry != nil {
		retry = cfg.Retry
	}

	return &Generator{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		retry:     *retry,
		breaker:   cfg.Breaker,
		logger:    logger,
		now:       time.Now,
	}
}

// SystemPrompt builds the system instruction, appending context when present.
func SystemPrompt(contextText string) string {
	if contextText = strings.TrimSpace(contextText); contextText != "" {
		return systemPromptBase + " " + contextText
	}
	return systemPromptBase + " " + defaultInstructions
}

// GetResponse returns the assistant's reply to prompt. Connectivity failures
// and 5xx responses are retried on a linear schedule.
func (g *Generator) GetResponse(ctx context.Context, prompt, contextText string) (string, error) {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(contextText)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: g.maxTokens,
	}

	retry := g.retry
	retry.OnRetry = func(n int, err error, delay time.Duration) {
		observability.RecordRetry("llm")
		g.logger.Warn().
			Err(err).
			Int("retry", n).
			Int("max_retries", retry.MaxAttempts-1).
			Dur("delay", delay).
			Msg("Chat request failed, retrying")
	}

	var reply string
	err := resilience.Retry(ctx, func(attempt int) error {
		text, err := g.complete(ctx, req)
		if err != nil {
			return err
		}
		reply = text
		return nil
	}, &retry, resilience.IsRetryable)

	if err != nil && ctx.Err() != nil {
		// Abandoned by the caller, not a service failure.
		if g.breaker != nil {
			g.breaker.Release()
		}
		return "", ctx.Err()
	}
	if err != nil {
		err = g.finalError(err)
	}
	g.recordBreaker(err)
	return reply, err
}

// complete makes one attempt. Retryable failures come back as *resilience.RetryableError.
func (g *Generator) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}
	return content, nil
}

func classify(err error) error {
	if status := statusCode(err); status != 0 {
		switch {
		case status == http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", ErrAuthentication, err)
		case status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case status >= 500:
			return resilience.NewRetryableError(err)
		default:
			return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	// No response received
	if resilience.IsRetryableNetworkError(err) {
		return resilience.NewRetryableError(err)
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// finalError maps the error left after retrying onto the package's sentinels.
func (g *Generator) finalError(err error) error {
	if resilience.IsRetryable(err) {
		g.logger.Error().Err(err).Int("attempts", g.retry.MaxAttempts).Msg("Chat request failed after retries")
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return err
}

func (g *Generator) recordBreaker(err error) {
	if g.breaker == nil {
		return
	}
	failed := errors.Is(err, ErrServiceUnavailable)
	if failed {
		observability.IncrementCircuitBreakerFailures(g.breaker.Name())
	}
	g.breaker.RecordResult(!failed)
}

// Check reports whether chat requests are being let through. It fails while
// the circuit breaker is open.
func (g *Generator) Check(ctx context.Context) (bool, error) {
	if g.breaker == nil {
		return true, nil
	}
	state, requests, failures, rate := g.breaker.GetStats()
	if state == resilience.StateOpen {
		return false, fmt.Errorf("circuit breaker open: %d of %d requests failed (%.0f%%)", failures, requests, rate)
	}
	return true, nil
}

// GetGreeting returns a greeting for the current local time.
func (g *Generator) GetGreeting() string {
	return Greeting(g.now())
}

// Greeting returns the morning, afternoon or evening greeting for t's hour.
func Greeting(t time.Time) string {
	switch hour := t.Hour(); {
	case hour < 12:
		return "Good morning! How can I help you today?"
	case hour < 18:
		return "Good afternoon! How can I assist you?"
	default:
		return "Good evening! What can I do for you?"
	}
}
