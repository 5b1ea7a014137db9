package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/observability"
	"github.com/lexiqai/voice-companion/internal/stt"
)

const defaultContextMessages = 6

// Options configures a Session.
type Options struct {
	// GreetOnListen speaks the time-of-day greeting before recording starts.
	GreetOnListen bool
	// ContextMessages is how many recent messages are sent as context.
	// Zero means 6, negative disables context.
	ContextMessages int
	// History, if set, mirrors the conversation into a persistent log.
	History  HistoryStore
	Observer Observer
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// turn is one operation in flight. It may only mutate the session while its
// epoch is current.
type turn struct {
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc
	outcome string
}

// Session is the conversation controller. It owns the history, the status
// and the turn-taking protocol over the transcriber, responder and synthesizer.
type Session struct {
	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer

	greet        bool
	contextLimit int
	history      HistoryStore
	observer     Observer
	metrics      *observability.Metrics
	logger       zerolog.Logger

	mu         sync.Mutex
	messages   []Message
	status     Status
	statusText string
	errMessage *string
	inFlight   bool
	epoch      uint64
	cancel     context.CancelFunc

	notifyMu sync.Mutex
}

// NewSession creates an idle session.
func NewSession(transcriber Transcriber, responder Responder, synthesizer Synthesizer, opts Options) *Session {
	limit := opts.ContextMessages
	if limit == 0 {
		limit = defaultContextMessages
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewSessionMetrics("")
	}
	return &Session{
		transcriber:  transcriber,
		responder:    responder,
		synthesizer:  synthesizer,
		greet:        opts.GreetOnListen,
		contextLimit: limit,
		history:      opts.History,
		observer:     opts.Observer,
		metrics:      metrics,
		logger:       opts.Logger,
		status:       StatusIdle,
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Messages:   append([]Message(nil), s.messages...),
		Status:     s.status,
		StatusText: s.statusText,
	}
	if s.errMessage != nil {
		msg := *s.errMessage
		snap.ErrorMessage = &msg
	}
	return snap
}

// unlockAndNotify releases s.mu and delivers the state it held to the observer.
func (s *Session) unlockAndNotify() {
	if s.observer == nil {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	s.observer(snap)
}

// begin starts an operation that is allowed only from status from.
func (s *Session) begin(ctx context.Context, from, to Status, text string) (*turn, error) {
	s.mu.Lock()
	if s.inFlight || s.status != from {
		s.mu.Unlock()
		return nil, ErrTurnInProgress
	}

	t := &turn{epoch: s.epoch}
	t.ctx, t.cancel = context.WithCancel(ctx)
	s.cancel = t.cancel
	s.inFlight = true
	s.status = to
	s.statusText = text
	if from == StatusIdle {
		s.errMessage = nil
	}
	s.unlockAndNotify()
	return t, nil
}

// update applies fn if t is still current and reports whether it did.
func (s *Session) update(t *turn, fn func()) bool {
	s.mu.Lock()
	if t.epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	fn()
	s.unlockAndNotify()
	return true
}

func (s *Session) setStatus(t *turn, status Status, text string) bool {
	return s.update(t, func() {
		s.status = status
		s.statusText = text
	})
}

func (s *Session) current(t *turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.epoch == s.epoch
}

// finish returns the session to idle and ends the turn.
func (s *Session) finish(t *turn) {
	ok := s.update(t, func() {
		s.status = StatusIdle
		s.statusText = ""
		s.inFlight = false
		s.cancel = nil
	})
	t.cancel()
	if ok && t.outcome != "" {
		s.metrics.RecordTurnEnd(t.outcome)
	}
}

// pause ends the operation but leaves the status in place for the next step.
func (s *Session) pause(t *turn) {
	s.update(t, func() {
		s.inFlight = false
		s.cancel = nil
	})
	t.cancel()
}

// fail records err under prefix, cancels any recording and speaks the apology.
func (s *Session) fail(t *turn, prefix string, err error) {
	t.outcome = "failed"
	msg := prefix + ": " + HumanMessage(err)
	if !s.update(t, func() {
		s.status = StatusFailed
		s.errMessage = &msg
	}) {
		return
	}

	s.logger.Error().Err(err).Str("error_message", msg).Msg("Conversation turn failed")
	s.metrics.RecordError(errorKind(err), "conversation")

	s.transcriber.CancelRecording()
	if err := s.synthesizer.Speak(t.ctx, Apology); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to speak apology")
	}
}

// StartListening greets the user (when configured) and starts recording.
// The session stays in listening until StopListening.
func (s *Session) StartListening(ctx context.Context) error {
	t, err := s.begin(ctx, StatusIdle, StatusListening, TextListening)
	if err != nil {
		return err
	}
	s.metrics.RecordTurnStart()

	if s.greet {
		s.metrics.RecordStageStart(observability.StageTTS)
		err := s.synthesizer.Speak(t.ctx, s.responder.GetGreeting())
		s.metrics.RecordStageEnd(observability.StageTTS, err == nil)
		if err != nil {
			s.fail(t, prefixStartListening, err)
			s.finish(t)
			return err
		}
	}

	if !s.current(t) {
		t.cancel()
		return nil
	}

	if err := s.transcriber.StartRecording(t.ctx); err != nil {
		s.fail(t, prefixStartListening, err)
		s.finish(t)
		return err
	}
	if !s.current(t) {
		// Cleared while the device was opening.
		s.transcriber.CancelRecording()
		t.cancel()
		return nil
	}

	s.pause(t)
	return nil
}

// StopListening transcribes the recording, gets a reply and speaks it. With
// nothing being recorded it returns stt.ErrNoActiveRecording and leaves the
// session untouched.
func (s *Session) StopListening(ctx context.Context) error {
	t, err := s.begin(ctx, StatusListening, StatusTranscribing, TextProcessing)
	if err != nil {
		if s.idle() {
			return stt.ErrNoActiveRecording
		}
		return err
	}
	defer s.finish(t)

	s.metrics.RecordStageStart(observability.StageSTT)
	result, err := s.transcriber.StopRecording(t.ctx)
	s.metrics.RecordStageEnd(observability.StageSTT, err == nil)
	if err != nil {
		s.fail(t, prefixProcessSpeech, err)
		return err
	}

	if result.NoSpeech {
		t.outcome = "no_speech"
		if s.setStatus(t, StatusSpeaking, result.Text) {
			if err := s.synthesizer.Speak(t.ctx, result.Text); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to speak fallback")
			}
		}
		return nil
	}

	return s.respond(t, result.Text, prefixProcessSpeech, false)
}

// SendTextInput runs a turn for typed text. Blank text is ignored.
func (s *Session) SendTextInput(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	t, err := s.begin(ctx, StatusIdle, StatusGenerating, TextGenerating)
	if err != nil {
		return err
	}
	s.metrics.RecordTurnStart()
	defer s.finish(t)

	return s.respond(t, text, prefixTextInput, true)
}

// respond generates and speaks the reply to prompt. A typed prompt is shown
// before the request goes out; a spoken one only once a reply arrives.
func (s *Session) respond(t *turn, prompt, prefix string, typed bool) error {
	user := NewMessage(prompt, SpeakerUser)

	var contextText string
	if !s.update(t, func() {
		contextText = s.contextLocked()
		s.status = StatusGenerating
		s.statusText = TextGenerating
		if typed {
			s.messages = append(s.messages, user)
		}
	}) {
		return nil
	}
	if typed {
		s.persist(t.ctx, user)
	}

	s.metrics.RecordStageStart(observability.StageLLM)
	reply, err := s.responder.GetResponse(t.ctx, prompt, contextText)
	s.metrics.RecordStageEnd(observability.StageLLM, err == nil)
	if err != nil {
		s.fail(t, prefix, err)
		return err
	}

	assistant := NewMessage(reply, SpeakerAssistant)
	added := []Message{assistant}
	if !typed {
		added = []Message{user, assistant}
	}
	if !s.update(t, func() {
		s.messages = append(s.messages, added...)
		s.status = StatusSpeaking
		s.statusText = TextSpeaking
	}) {
		return nil
	}
	s.persist(t.ctx, added...)

	s.metrics.RecordStageStart(observability.StageTTS)
	err = s.synthesizer.Speak(t.ctx, reply)
	s.metrics.RecordStageEnd(observability.StageTTS, err == nil)
	if err != nil {
		s.fail(t, prefix, err)
		return err
	}

	t.outcome = "success"
	return nil
}

// contextLocked renders the most recent messages for the responder.
func (s *Session) contextLocked() string {
	if s.contextLimit < 0 {
		return ""
	}
	recent := s.messages
	if len(recent) > s.contextLimit {
		recent = recent[len(recent)-s.contextLimit:]
	}
	return RenderContext(recent)
}

// RenderContext formats messages as the conversation context sent with a
// prompt. No messages render as the empty string.
func RenderContext(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:")
	for _, m := range messages {
		b.WriteString("\n")
		if m.Speaker == SpeakerUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

func (s *Session) persist(ctx context.Context, msgs ...Message) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(context.WithoutCancel(ctx), msgs...); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist messages")
	}
}

func (s *Session) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusIdle && !s.inFlight
}

// ClearConversation resets the session from any state: history emptied,
// status idle, error cleared. Any in-flight turn is abandoned and can no
// longer change the session.
func (s *Session) ClearConversation() {
	s.mu.Lock()
	s.abandonLocked()
	s.messages = nil
	s.errMessage = nil
	s.unlockAndNotify()

	s.synthesizer.Stop()
	s.transcriber.CancelRecording()

	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.history.Clear(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to clear conversation history")
		}
	}
}

// abandonLocked invalidates the in-flight turn and returns to idle.
func (s *Session) abandonLocked() {
	if s.inFlight || s.status != StatusIdle {
		s.metrics.RecordTurnEnd("cleared")
	}
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.inFlight = false
	s.status = StatusIdle
	s.statusText = ""
}

// Restore loads the persisted log into an empty session.
func (s *Session) Restore(ctx context.Context) error {
	if s.history == nil {
		return nil
	}
	msgs, err := s.history.List(ctx, 0)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if len(s.messages) > 0 || len(msgs) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.messages = msgs
	s.unlockAndNotify()
	s.logger.Info().Int("messages", len(msgs)).Msg("Restored conversation history")
	return nil
}

// Close abandons any in-flight turn and releases the audio devices. The
// persisted history is kept.
func (s *Session) Close() {
	s.mu.Lock()
	s.abandonLocked()
	s.mu.Unlock()

	s.synthesizer.Stop()
	s.transcriber.CancelRecording()
}
