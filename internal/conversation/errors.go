package conversation

import (
	"errors"

	"github.com/lexiqai/voice-companion/internal/llm"
	"github.com/lexiqai/voice-companion/internal/resilience"
	"github.com/lexiqai/voice-companion/internal/stt"
	"github.com/lexiqai/voice-companion/internal/tts"
)

// Error message prefixes, one per entry point.
const (
	prefixStartListening = "Failed to start listening"
	prefixProcessSpeech  = "Failed to process speech"
	prefixTextInput      = "Failed to get AI response"
)

var humanMessages = []struct {
	err     error
	kind    string
	message string
}{
	{stt.ErrPermissionDenied, "permission_denied", "Microphone permission required"},
	{stt.ErrDevice, "device", "Failed to start recording"},
	{stt.ErrNoActiveRecording, "no_active_recording", "No active recording found"},
	{stt.ErrTranscription, "transcription", "Failed to convert speech to text"},
	{llm.ErrAuthentication, "authentication", "Authentication failed. Please check your API key."},
	{llm.ErrRateLimited, "rate_limited", "Rate limit exceeded. Please try again later."},
	{resilience.ErrCircuitOpen, "service_unavailable", "The assistant is temporarily unavailable. Please try again shortly."},
	{llm.ErrServiceUnavailable, "service_unavailable", "Failed to get AI response after multiple attempts"},
	{llm.ErrMalformedResponse, "malformed_response", "Invalid response structure from AI API"},
	{tts.ErrSynthesis, "synthesis", "Failed to convert text to speech"},
}

// HumanMessage returns the user-facing text for err.
func HumanMessage(err error) string {
	for _, m := range humanMessages {
		if errors.Is(err, m.err) {
			return m.message
		}
	}
	return "Unknown error"
}

// errorKind returns the metric label for err.
func errorKind(err error) string {
	for _, m := range humanMessages {
		if errors.Is(err, m.err) {
			return m.kind
		}
	}
	return "unknown"
}
