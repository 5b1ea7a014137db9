package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqai/voice-companion/internal/stt"
)

// ErrTurnInProgress is returned when an operation is issued outside the state
// it is allowed from, e.g. a second StartListening while a turn is running.
var ErrTurnInProgress = errors.New("conversation turn in progress")

// Status is the session's current step.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusListening    Status = "listening"
	StatusTranscribing Status = "transcribing"
	StatusGenerating   Status = "generating"
	StatusSpeaking     Status = "speaking"
	StatusFailed       Status = "failed"
)

// Status text shown for each step. Idle shows the empty string.
const (
	TextListening  = "Listening..."
	TextProcessing = "Processing..."
	TextGenerating = "Getting response..."
	TextSpeaking   = "Speaking..."
)

// Apology is spoken whenever a turn fails.
const Apology = "Sorry, there was a problem processing your request."

// Speaker identifies who said a message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one immutable entry in the conversation history.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Speaker   Speaker   `json:"speaker"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(text string, speaker Speaker) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Speaker:   speaker,
		CreatedAt: time.Now(),
	}
}

// Snapshot is a point-in-time copy of the session's observable state.
type Snapshot struct {
	Messages     []Message `json:"messages"`
	Status       Status    `json:"status"`
	StatusText   string    `json:"status_text"`
	ErrorMessage *string   `json:"error_message"`
}

// Transcriber captures one utterance and turns it into text.
type Transcriber interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (stt.Result, error)
	CancelRecording()
}

// Synthesizer speaks text through a single playback slot.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Responder produces assistant replies.
type Responder interface {
	GetResponse(ctx context.Context, prompt, contextText string) (string, error)
	GetGreeting() string
}

// HistoryStore persists the conversation across restarts.
type HistoryStore interface {
	Append(ctx context.Context, msgs ...Message) error
	// List returns the newest limit messages in insertion order, or all of them when limit <= 0.
	List(ctx context.Context, limit int) ([]Message, error)
	Clear(ctx context.Context) error
}

// Observer is called with a fresh snapshot after every state change.
// Calls are serialized and arrive in order.
type Observer func(Snapshot)
