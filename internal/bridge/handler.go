package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
	"github.com/lexiqai/voice-companion/internal/cache"
	"github.com/lexiqai/voice-companion/internal/config"
	"github.com/lexiqai/voice-companion/internal/conversation"
	"github.com/lexiqai/voice-companion/internal/observability"
	"github.com/lexiqai/voice-companion/internal/stt"
	"github.com/lexiqai/voice-companion/internal/tts"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	// The companion app runs on the same device; any origin is accepted.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Dependencies are the services shared by every connection.
type Dependencies struct {
	Config    *config.Config
	Responder conversation.Responder
	STT       stt.Service
	TTS       tts.Service
	Cache     *cache.Cache
	History   conversation.HistoryStore // optional
	Logger    zerolog.Logger
}

// Handler serves the /session websocket. Each connection gets its own
// conversation session and audio devices.
type Handler struct {
	deps Dependencies
}

// NewHandler creates a session handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps}
}

// ServeHTTP upgrades the request and runs the connection until the app disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Logger.Error().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	c := h.newConnection(ws)
	c.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Companion connected")
	c.run()
	c.logger.Info().Msg("Companion disconnected")
}

// connection holds the state of one companion app connection.
type connection struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	session    *conversation.Session
	capture    *captureDevice
	playback   *playbackDevice
	microphone atomic.Bool
	autoStop   bool

	ctx     context.Context
	cancel  context.CancelFunc
	metrics *observability.Metrics
	logger  zerolog.Logger

	opsMu  sync.Mutex
	closed bool
	ops    sync.WaitGroup
}

func (h *Handler) newConnection(ws *websocket.Conn) *connection {
	cfg := h.deps.Config
	correlationID := observability.NewCorrelationID()
	logger := h.deps.Logger.With().
		Str("correlation_id", correlationID).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		ws:       ws,
		autoStop: cfg.AutoStopOnSilence,
		ctx:      ctx,
		cancel:   cancel,
		metrics:  observability.NewSessionMetrics(correlationID),
		logger:   logger,
	}

	var vadConfig *audio.VADConfig
	if cfg.AutoStopOnSilence {
		vadConfig = &audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
			FrameSize:       audio.SpeechRecordingOptions.SampleRate / 50, // 20ms
		}
	}
	c.capture = newCaptureDevice(c.send, cfg.AudioBufferSize, vadConfig, c.silenceDetected, logger.With().Str("component", "capture").Logger())
	c.playback = newPlaybackDevice(c.send, cfg.PlaybackTimeout, logger.With().Str("component", "playback").Logger())

	permissions := audio.PermissionsFunc(func(ctx context.Context) (bool, error) {
		return c.microphone.Load(), nil
	})
	transcriber := stt.NewTranscriber(permissions, c.capture, h.deps.STT, cfg.ResolveRecordingDir(), logger.With().Str("component", "stt").Logger())
	synthesizer := tts.NewSynthesizer(h.deps.TTS, h.deps.Cache, c.playback, cfg.TTSDefaultVoice, cfg.TTSSpeed, logger.With().Str("component", "tts").Logger())

	c.session = conversation.NewSession(transcriber, h.deps.Responder, synthesizer, conversation.Options{
		GreetOnListen:   cfg.GreetOnListen,
		ContextMessages: cfg.HistoryContextMessages,
		History:         h.deps.History,
		Observer:        c.publish,
		Metrics:         c.metrics,
		Logger:          logger.With().Str("component", "conversation").Logger(),
	})
	return c
}

func (c *connection) run() {
	c.metrics.RecordSessionStart()
	defer c.close()

	if err := c.session.Restore(c.ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to restore conversation history")
	}

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.capture.feed(data)
		case websocket.TextMessage:
			c.handleMessage(data)
		}
	}
}

func (c *connection) handleMessage(data []byte) {
	var msg ClientMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse client message")
		c.sendError("invalid message")
		return
	}

	switch msg.Type {
	case TypeHello:
		c.microphone.Store(msg.Microphone != nil && *msg.Microphone)
		c.capture.setFormat(msg.Encoding, msg.SampleRate)
		c.logger.Info().
			Bool("microphone", c.microphone.Load()).
			Str("encoding", msg.Encoding).
			Int("sample_rate", msg.SampleRate).
			Msg("Companion hello")
		c.publish(c.session.Snapshot())

	case TypeStartListening:
		c.do(msg.Type, c.session.StartListening)

	case TypeStopListening:
		c.do(msg.Type, c.session.StopListening)

	case TypeSendText:
		text := msg.Text
		c.do(msg.Type, func(ctx context.Context) error {
			return c.session.SendTextInput(ctx, text)
		})

	case TypeClear:
		c.session.ClearConversation()

	case TypePlaybackFinished:
		c.playback.finished(msg.ID)

	default:
		c.logger.Warn().Str("type", msg.Type).Msg("Unknown client message")
		c.sendError("unknown message type: " + msg.Type)
	}
}

// do runs op in the background so the read loop keeps delivering audio and
// playback acks while the turn is in flight.
func (c *connection) do(name string, op func(context.Context) error) {
	c.opsMu.Lock()
	defer c.opsMu.Unlock()
	if c.closed {
		return
	}

	c.ops.Add(1)
	go func() {
		defer c.ops.Done()
		err := op(c.ctx)
		switch {
		case err == nil:
		case errors.Is(err, conversation.ErrTurnInProgress), errors.Is(err, stt.ErrNoActiveRecording):
			// Rejected without touching the session; the app only learns of it here.
			c.sendError(err.Error())
		default:
			c.logger.Debug().Err(err).Str("op", name).Msg("Operation failed")
		}
	}()
}

func (c *connection) silenceDetected() {
	if !c.autoStop {
		return
	}
	c.logger.Debug().Msg("Silence detected, stopping recording")
	c.do("auto_stop", c.session.StopListening)
}

func (c *connection) publish(snap conversation.Snapshot) {
	if err := c.send(ServerMessage{Type: TypeState, State: &snap}); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to publish state")
	}
}

func (c *connection) sendError(message string) {
	if err := c.send(ServerMessage{Type: TypeError, Message: message}); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send error")
	}
}

// send writes one JSON message. Writes are serialized across goroutines.
func (c *connection) send(msg ServerMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) close() {
	c.opsMu.Lock()
	c.closed = true
	c.opsMu.Unlock()

	c.cancel()
	c.session.Close()
	c.playback.finishAll()
	c.ops.Wait()
	c.metrics.RecordSessionEnd()
	c.ws.Close()
}
