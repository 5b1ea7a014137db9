package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/llm"
	"github.com/lexiqai/voice-companion/internal/stt"
	"github.com/lexiqai/voice-companion/internal/tts"
)

const greeting = "Good morning! How can I help you today?"

type fakeTranscriber struct {
	startErr error
	result   stt.Result
	stopErr  error

	mu        sync.Mutex
	recording bool
	starts    int
	cancels   int
}

func (f *fakeTranscriber) StartRecording(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.recording = true
	return nil
}

func (f *fakeTranscriber) StopRecording(ctx context.Context) (stt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return stt.Result{}, stt.ErrNoActiveRecording
	}
	f.recording = false
	return f.result, f.stopErr
}

func (f *fakeTranscriber) CancelRecording() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	f.cancels++
}

func (f *fakeTranscriber) isRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

type fakeResponder struct {
	reply string
	err   error
	// block, if set, holds GetResponse until closed or the context ends.
	block  chan struct{}
	called chan struct{}

	mu       sync.Mutex
	prompts  []string
	contexts []string
}

func (f *fakeResponder) GetResponse(ctx context.Context, prompt, contextText string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.contexts = append(f.contexts, contextText)
	f.mu.Unlock()

	if f.called != nil {
		f.called <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeResponder) GetGreeting() string { return greeting }

func (f *fakeResponder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeSynthesizer struct {
	// failOn maps text to the error Speak returns for it.
	failOn map[string]error

	mu     sync.Mutex
	spoken []string
	stops  int
}

func (f *fakeSynthesizer) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return f.failOn[text]
}

func (f *fakeSynthesizer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSynthesizer) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakeHistory struct {
	mu       sync.Mutex
	messages []Message
	clears   int
}

func (h *fakeHistory) Append(ctx context.Context, msgs ...Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
	return nil
}

func (h *fakeHistory) List(ctx context.Context, limit int) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...), nil
}

func (h *fakeHistory) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
	h.clears++
	return nil
}

type harness struct {
	session     *Session
	transcriber *fakeTranscriber
	responder   *fakeResponder
	synthesizer *fakeSynthesizer

	mu       sync.Mutex
	statuses []Status
}

func newHarness(opts Options) *harness {
	h := &harness{
		transcriber: &fakeTranscriber{result: stt.Result{Text: "What's the weather?"}},
		responder:   &fakeResponder{reply: "It is sunny."},
		synthesizer: &fakeSynthesizer{},
	}
	opts.Logger = zerolog.Nop()
	opts.Observer = func(s Snapshot) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if n := len(h.statuses); n == 0 || h.statuses[n-1] != s.Status {
			h.statuses = append(h.statuses, s.Status)
		}
	}
	h.session = NewSession(h.transcriber, h.responder, h.synthesizer, opts)
	return h
}

func (h *harness) observed() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.statuses...)
}

func assertIdle(t *testing.T, snap Snapshot) {
	t.Helper()
	if snap.Status != StatusIdle {
		t.Errorf("Expected idle, got %s", snap.Status)
	}
	if snap.StatusText != "" {
		t.Errorf("Expected empty status text, got %q", snap.StatusText)
	}
}

func assertError(t *testing.T, snap Snapshot, want string) {
	t.Helper()
	if snap.ErrorMessage == nil {
		t.Fatalf("Expected error message %q, got nil", want)
	}
	if *snap.ErrorMessage != want {
		t.Errorf("Expected error message %q, got %q", want, *snap.ErrorMessage)
	}
}

func runVoiceTurn(t *testing.T, h *harness) error {
	t.Helper()
	if err := h.session.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	return h.session.StopListening(context.Background())
}

func TestVoiceTurn_Success(t *testing.T) {
	h := newHarness(Options{GreetOnListen: true})

	if err := h.session.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	snap := h.session.Snapshot()
	if snap.Status != StatusListening || snap.StatusText != TextListening {
		t.Errorf("Expected listening with %q, got %s %q", TextListening, snap.Status, snap.StatusText)
	}
	if !h.transcriber.isRecording() {
		t.Error("Expected recording to be started")
	}

	if err := h.session.StopListening(context.Background()); err != nil {
		t.Fatalf("StopListening failed: %v", err)
	}

	snap = h.session.Snapshot()
	assertIdle(t, snap)
	if snap.ErrorMessage != nil {
		t.Errorf("Expected no error, got %q", *snap.ErrorMessage)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[0].Speaker != SpeakerUser || snap.Messages[0].Text != "What's the weather?" {
		t.Errorf("Unexpected first message: %+v", snap.Messages[0])
	}
	if snap.Messages[1].Speaker != SpeakerAssistant || snap.Messages[1].Text != "It is sunny." {
		t.Errorf("Unexpected second message: %+v", snap.Messages[1])
	}
	if snap.Messages[0].ID == "" || snap.Messages[0].ID == snap.Messages[1].ID {
		t.Error("Expected distinct message ids")
	}

	said := h.synthesizer.said()
	if len(said) != 2 || said[0] != greeting || said[1] != "It is sunny." {
		t.Errorf("Expected greeting then reply spoken, got %v", said)
	}

	want := []Status{StatusListening, StatusTranscribing, StatusGenerating, StatusSpeaking, StatusIdle}
	got := h.observed()
	if len(got) != len(want) {
		t.Fatalf("Expected statuses %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Status %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestStartListening_NoGreeting(t *testing.T) {
	h := newHarness(Options{})
	if err := h.session.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}
	if said := h.synthesizer.said(); len(said) != 0 {
		t.Errorf("Expected nothing spoken, got %v", said)
	}
}

func TestStopListening_NoActiveRecording(t *testing.T) {
	h := newHarness(Options{})
	before := h.session.Snapshot()

	err := h.session.StopListening(context.Background())
	if !errors.Is(err, stt.ErrNoActiveRecording) {
		t.Errorf("Expected ErrNoActiveRecording, got %v", err)
	}

	after := h.session.Snapshot()
	if after.Status != before.Status || after.StatusText != before.StatusText || len(after.Messages) != len(before.Messages) || after.ErrorMessage != nil {
		t.Errorf("Expected state unchanged, got %+v", after)
	}
	if len(h.observed()) != 0 {
		t.Errorf("Expected no observer notifications, got %v", h.observed())
	}
}

func TestStopListening_Failures(t *testing.T) {
	tests := []struct {
		name       string
		stopErr    error
		replyErr   error
		speakErr   error
		wantErr    error
		wantMsg    string
		wantLength int
	}{
		{
			name:     "transcription",
			stopErr:  stt.ErrTranscription,
			wantErr:  stt.ErrTranscription,
			wantMsg:  "Failed to process speech: Failed to convert speech to text",
		},
		{
			name:     "authentication",
			replyErr: llm.ErrAuthentication,
			wantErr:  llm.ErrAuthentication,
			wantMsg:  "Failed to process speech: Authentication failed. Please check your API key.",
		},
		{
			name:     "rate limited",
			replyErr: llm.ErrRateLimited,
			wantErr:  llm.ErrRateLimited,
			wantMsg:  "Failed to process speech: Rate limit exceeded. Please try again later.",
		},
		{
			name:     "service unavailable",
			replyErr: llm.ErrServiceUnavailable,
			wantErr:  llm.ErrServiceUnavailable,
			wantMsg:  "Failed to process speech: Failed to get AI response after multiple attempts",
		},
		{
			name:     "malformed",
			replyErr: llm.ErrMalformedResponse,
			wantErr:  llm.ErrMalformedResponse,
			wantMsg:  "Failed to process speech: Invalid response structure from AI API",
		},
		{
			name:       "synthesis",
			speakErr:   tts.ErrSynthesis,
			wantErr:    tts.ErrSynthesis,
			wantMsg:    "Failed to process speech: Failed to convert text to speech",
			wantLength: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Options{})
			h.transcriber.stopErr = tt.stopErr
			h.responder.err = tt.replyErr
			if tt.speakErr != nil {
				h.synthesizer.failOn = map[string]error{"It is sunny.": tt.speakErr}
			}

			err := runVoiceTurn(t, h)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}

			snap := h.session.Snapshot()
			assertIdle(t, snap)
			assertError(t, snap, tt.wantMsg)
			if len(snap.Messages) != tt.wantLength {
				t.Errorf("Expected %d messages, got %d", tt.wantLength, len(snap.Messages))
			}

			said := h.synthesizer.said()
			if len(said) == 0 || said[len(said)-1] != Apology {
				t.Errorf("Expected apology spoken last, got %v", said)
			}

			statuses := h.observed()
			sawFailed := false
			for _, s := range statuses {
				if s == StatusFailed {
					sawFailed = true
				}
			}
			if !sawFailed {
				t.Errorf("Expected failed status to be observed, got %v", statuses)
			}
		})
	}
}

func TestStopListening_NoSpeech(t *testing.T) {
	h := newHarness(Options{})
	h.transcriber.result = stt.Result{Text: stt.FallbackTranscript, NoSpeech: true}

	if err := runVoiceTurn(t, h); err != nil {
		t.Fatalf("StopListening failed: %v", err)
	}

	snap := h.session.Snapshot()
	assertIdle(t, snap)
	if len(snap.Messages) != 0 {
		t.Errorf("Expected no messages, got %d", len(snap.Messages))
	}
	if h.responder.callCount() != 0 {
		t.Error("Expected no response request")
	}
	if said := h.synthesizer.said(); len(said) != 1 || said[0] != stt.FallbackTranscript {
		t.Errorf("Expected fallback spoken, got %v", said)
	}
}

func TestStartListening_Failures(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		greetErr error
		wantMsg  string
	}{
		{"permission denied", stt.ErrPermissionDenied, nil, "Failed to start listening: Microphone permission required"},
		{"device", stt.ErrDevice, nil, "Failed to start listening: Failed to start recording"},
		{"greeting", nil, tts.ErrSynthesis, "Failed to start listening: Failed to convert text to speech"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Options{GreetOnListen: true})
			h.transcriber.startErr = tt.startErr
			if tt.greetErr != nil {
				h.synthesizer.failOn = map[string]error{greeting: tt.greetErr}
			}

			if err := h.session.StartListening(context.Background()); err == nil {
				t.Fatal("Expected StartListening to fail")
			}

			snap := h.session.Snapshot()
			assertIdle(t, snap)
			assertError(t, snap, tt.wantMsg)
			if h.transcriber.isRecording() {
				t.Error("Expected no live recording")
			}

			// A failed start leaves the session usable.
			h.transcriber.startErr = nil
			h.synthesizer.failOn = nil
			if err := h.session.StartListening(context.Background()); err != nil {
				t.Errorf("Expected retry to succeed, got %v", err)
			}
			if h.session.Snapshot().ErrorMessage != nil {
				t.Error("Expected error cleared on new turn")
			}
		})
	}
}

func TestSession_RejectsOverlappingTurns(t *testing.T) {
	h := newHarness(Options{})
	if err := h.session.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening failed: %v", err)
	}

	if err := h.session.StartListening(context.Background()); !errors.Is(err, ErrTurnInProgress) {
		t.Errorf("Expected ErrTurnInProgress for second StartListening, got %v", err)
	}
	if err := h.session.SendTextInput(context.Background(), "hello"); !errors.Is(err, ErrTurnInProgress) {
		t.Errorf("Expected ErrTurnInProgress for SendTextInput, got %v", err)
	}
	if h.transcriber.starts != 1 {
		t.Errorf("Expected 1 recording start, got %d", h.transcriber.starts)
	}
}

func TestSendTextInput(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(Options{})
		if err := h.session.SendTextInput(context.Background(), "  Tell me a joke "); err != nil {
			t.Fatalf("SendTextInput failed: %v", err)
		}
		snap := h.session.Snapshot()
		assertIdle(t, snap)
		if len(snap.Messages) != 2 || snap.Messages[0].Text != "Tell me a joke" {
			t.Errorf("Unexpected messages: %+v", snap.Messages)
		}
		if h.transcriber.starts != 0 {
			t.Error("Expected no recording for typed input")
		}
		if got := h.observed(); got[0] != StatusGenerating {
			t.Errorf("Expected turn to enter at generating, got %v", got)
		}
	})

	t.Run("blank ignored", func(t *testing.T) {
		h := newHarness(Options{})
		if err := h.session.SendTextInput(context.Background(), "   "); err != nil {
			t.Errorf("Expected nil, got %v", err)
		}
		if h.responder.callCount() != 0 || len(h.observed()) != 0 {
			t.Error("Expected blank input to be ignored")
		}
	})

	t.Run("failure keeps user message", func(t *testing.T) {
		h := newHarness(Options{})
		h.responder.err = llm.ErrServiceUnavailable

		err := h.session.SendTextInput(context.Background(), "hello")
		if !errors.Is(err, llm.ErrServiceUnavailable) {
			t.Errorf("Expected ErrServiceUnavailable, got %v", err)
		}
		snap := h.session.Snapshot()
		assertIdle(t, snap)
		assertError(t, snap, "Failed to get AI response: Failed to get AI response after multiple attempts")
		if len(snap.Messages) != 1 || snap.Messages[0].Speaker != SpeakerUser {
			t.Errorf("Expected only the user message, got %+v", snap.Messages)
		}
	})
}

func TestSession_RollingContext(t *testing.T) {
	h := newHarness(Options{ContextMessages: 2})
	h.responder.reply = "Hello!"

	h.session.SendTextInput(context.Background(), "hi")
	h.session.SendTextInput(context.Background(), "how are you")
	h.session.SendTextInput(context.Background(), "bye")

	h.responder.mu.Lock()
	defer h.responder.mu.Unlock()
	if h.responder.contexts[0] != "" {
		t.Errorf("Expected empty context on first turn, got %q", h.responder.contexts[0])
	}
	if want := "Recent conversation:\nUser: hi\nAssistant: Hello!"; h.responder.contexts[1] != want {
		t.Errorf("Expected context %q, got %q", want, h.responder.contexts[1])
	}
	if want := "Recent conversation:\nUser: how are you\nAssistant: Hello!"; h.responder.contexts[2] != want {
		t.Errorf("Expected context limited to 2 messages %q, got %q", want, h.responder.contexts[2])
	}
}

func TestSession_ContextDisabled(t *testing.T) {
	h := newHarness(Options{ContextMessages: -1})
	h.session.SendTextInput(context.Background(), "hi")
	h.session.SendTextInput(context.Background(), "again")

	h.responder.mu.Lock()
	defer h.responder.mu.Unlock()
	if h.responder.contexts[1] != "" {
		t.Errorf("Expected no context, got %q", h.responder.contexts[1])
	}
}

func TestClearConversation(t *testing.T) {
	t.Run("after turns and errors", func(t *testing.T) {
		h := newHarness(Options{})
		runVoiceTurn(t, h)
		h.responder.err = llm.ErrRateLimited
		runVoiceTurn(t, h)

		h.session.ClearConversation()
		snap := h.session.Snapshot()
		assertIdle(t, snap)
		if len(snap.Messages) != 0 || snap.ErrorMessage != nil {
			t.Errorf("Expected empty session, got %+v", snap)
		}
	})

	t.Run("while listening", func(t *testing.T) {
		h := newHarness(Options{})
		h.session.StartListening(context.Background())

		h.session.ClearConversation()
		assertIdle(t, h.session.Snapshot())
		if h.transcriber.isRecording() {
			t.Error("Expected recording cancelled")
		}
		if err := h.session.StopListening(context.Background()); !errors.Is(err, stt.ErrNoActiveRecording) {
			t.Errorf("Expected ErrNoActiveRecording after clear, got %v", err)
		}
	})

	t.Run("during generation", func(t *testing.T) {
		h := newHarness(Options{})
		h.responder.block = make(chan struct{})
		h.responder.called = make(chan struct{}, 1)
		h.session.StartListening(context.Background())

		done := make(chan error, 1)
		go func() { done <- h.session.StopListening(context.Background()) }()
		<-h.responder.called

		h.session.ClearConversation()
		<-done

		snap := h.session.Snapshot()
		assertIdle(t, snap)
		if len(snap.Messages) != 0 || snap.ErrorMessage != nil {
			t.Errorf("Expected abandoned turn not to mutate session, got %+v", snap)
		}
		for _, text := range h.synthesizer.said() {
			if text == Apology {
				t.Error("Expected no apology for an abandoned turn")
			}
		}

		// The session accepts a new turn.
		h.responder.block = nil
		h.responder.called = nil
		if err := runVoiceTurn(t, h); err != nil {
			t.Fatalf("Turn after clear failed: %v", err)
		}
		if n := len(h.session.Snapshot().Messages); n != 2 {
			t.Errorf("Expected 2 messages, got %d", n)
		}
	})
}

func TestSession_History(t *testing.T) {
	store := &fakeHistory{}
	h := newHarness(Options{History: store})

	runVoiceTurn(t, h)
	if len(store.messages) != 2 {
		t.Fatalf("Expected 2 persisted messages, got %d", len(store.messages))
	}

	restored := newHarness(Options{History: store})
	if err := restored.session.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	snap := restored.session.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[0].Text != "What's the weather?" {
		t.Errorf("Unexpected restored messages: %+v", snap.Messages)
	}

	restored.session.ClearConversation()
	if store.clears != 1 || len(store.messages) != 0 {
		t.Error("Expected persisted history cleared")
	}
}

func TestSession_Close(t *testing.T) {
	h := newHarness(Options{})
	h.session.StartListening(context.Background())

	h.session.Close()
	if h.transcriber.isRecording() {
		t.Error("Expected recording cancelled on close")
	}
	if h.synthesizer.stops == 0 {
		t.Error("Expected playback stopped on close")
	}
}

func TestHumanMessage(t *testing.T) {
	if got := HumanMessage(errors.New("boom")); got != "Unknown error" {
		t.Errorf("Expected 'Unknown error', got %q", got)
	}
	wrapped := errors.Join(errors.New("context"), llm.ErrRateLimited)
	if got := HumanMessage(wrapped); got != "Rate limit exceeded. Please try again later." {
		t.Errorf("Expected wrapped sentinel to match, got %q", got)
	}
}

func TestRenderContext(t *testing.T) {
	if got := RenderContext(nil); got != "" {
		t.Errorf("Expected empty context, got %q", got)
	}

	got := RenderContext([]Message{
		NewMessage("hi", SpeakerUser),
		NewMessage("hello!", SpeakerAssistant),
	})
	want := "Recent conversation:\nUser: hi\nAssistant: hello!"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
