package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
	"github.com/lexiqai/voice-companion/internal/observability"
)

// playbackDevice sends clips to the app and waits for its playback_finished
// acknowledgement, or for timeout if the app never answers.
type playbackDevice struct {
	send    sendFunc
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]*playback
}

func newPlaybackDevice(send sendFunc, timeout time.Duration, logger zerolog.Logger) *playbackDevice {
	return &playbackDevice{
		send:    send,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]*playback),
	}
}

// Play sends the clip at path to the app.
func (d *playbackDevice) Play(ctx context.Context, path string) (audio.Playback, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clip: %w", err)
	}

	p := &playback{id: uuid.NewString(), device: d, done: make(chan struct{})}
	d.mu.Lock()
	d.pending[p.id] = p
	d.mu.Unlock()

	err = d.send(ServerMessage{
		Type:   TypePlay,
		ID:     p.id,
		Format: "wav",
		Audio:  base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		p.finish()
		return nil, fmt.Errorf("failed to send clip: %w", err)
	}
	observability.RecordAudioBytes("out", len(data))

	if d.timeout > 0 {
		p.mu.Lock()
		p.timer = time.AfterFunc(d.timeout, func() {
			if p.finish() {
				d.logger.Warn().Str("playback_id", p.id).Dur("timeout", d.timeout).Msg("Playback not acknowledged, assuming finished")
			}
		})
		p.mu.Unlock()
	}
	return p, nil
}

// finished marks the playback with id complete.
func (d *playbackDevice) finished(id string) {
	d.mu.Lock()
	p := d.pending[id]
	d.mu.Unlock()
	if p == nil {
		d.logger.Debug().Str("playback_id", id).Msg("Ignoring ack for unknown playback")
		return
	}
	p.finish()
}

// finishAll completes every pending playback, e.g. when the app disconnects.
func (d *playbackDevice) finishAll() {
	d.mu.Lock()
	pending := make([]*playback, 0, len(d.pending))
	for _, p := range d.pending {
		pending = append(pending, p)
	}
	d.mu.Unlock()

	for _, p := range pending {
		p.finish()
	}
}

func (d *playbackDevice) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
}

type playback struct {
	id     string
	device *playbackDevice
	done   chan struct{}

	mu       sync.Mutex
	timer    *time.Timer
	finished bool
}

func (p *playback) Done() <-chan struct{} { return p.done }

// finish closes done once and reports whether this call closed it.
func (p *playback) finish() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return false
	}
	p.finished = true
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.done)
	p.device.remove(p.id)
	return true
}

// Stop asks the app to stop the clip. No-op once finished.
func (p *playback) Stop(ctx context.Context) error {
	if !p.finish() {
		return nil
	}
	return p.device.send(ServerMessage{Type: TypePlayStop, ID: p.id})
}
