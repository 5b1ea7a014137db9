package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
	"github.com/lexiqai/voice-companion/internal/observability"
)

// captureDevice records the app's microphone stream into WAV files. Only one
// capture receives audio at a time.
type captureDevice struct {
	send       sendFunc
	bufferSize int
	vadConfig  *audio.VADConfig // nil disables silence detection
	onSilence  func()
	logger     zerolog.Logger

	mu         sync.Mutex
	encoding   string
	sampleRate int
	active     *capture
}

func newCaptureDevice(send sendFunc, bufferSize int, vadConfig *audio.VADConfig, onSilence func(), logger zerolog.Logger) *captureDevice {
	return &captureDevice{
		send:       send,
		bufferSize: bufferSize,
		vadConfig:  vadConfig,
		onSilence:  onSilence,
		logger:     logger,
		encoding:   audio.EncodingPCM16,
		sampleRate: audio.SpeechRecordingOptions.SampleRate,
	}
}

// setFormat sets the encoding and rate of incoming frames for future captures.
func (d *captureDevice) setFormat(encoding string, sampleRate int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if encoding != "" {
		d.encoding = encoding
	}
	if sampleRate > 0 {
		d.sampleRate = sampleRate
	}
}

// Open starts a capture into path and asks the app to start streaming.
func (d *captureDevice) Open(ctx context.Context, path string, opts audio.RecordingOptions) (audio.Capture, error) {
	writer, err := audio.CreateWAV(path, opts)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	c := &capture{
		device:   d,
		writer:   writer,
		buffer:   audio.NewRingBuffer(d.bufferSize),
		encoding: d.encoding,
		inRate:   d.sampleRate,
		outRate:  opts.SampleRate,
	}
	if d.vadConfig != nil {
		c.vad = audio.NewVADDetector(d.vadConfig)
	}
	d.active = c
	d.mu.Unlock()

	if err := d.send(ServerMessage{Type: TypeRecordStart, SampleRate: c.inRate, Channels: opts.Channels, Encoding: c.encoding}); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start remote microphone: %w", err)
	}
	return c, nil
}

// feed routes one microphone frame to the active capture. Frames with no
// active capture are dropped.
func (d *captureDevice) feed(data []byte) {
	d.mu.Lock()
	c := d.active
	d.mu.Unlock()
	if c == nil {
		return
	}
	if err := c.write(data); err != nil {
		d.logger.Warn().Err(err).Msg("Dropping microphone frame")
	}
}

func (d *captureDevice) detach(c *capture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == c {
		d.active = nil
	}
}

// capture stages converted PCM in a ring buffer and drains it into the WAV
// file when the buffer fills or the capture stops.
type capture struct {
	device   *captureDevice
	writer   *audio.WAVWriter
	buffer   *audio.RingBuffer
	vad      *audio.VADDetector
	encoding string
	inRate   int
	outRate  int

	mu       sync.Mutex
	finished bool
	silenced bool
}

func (c *capture) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return nil
	}

	pcm, err := audio.ToPCM16(data, c.encoding, c.inRate, c.outRate)
	if err != nil {
		return err
	}
	observability.RecordAudioBytes("in", len(data))

	if c.vad != nil && c.vad.Feed(audio.BytesToSamples(pcm)) && !c.silenced {
		c.silenced = true
		if c.device.onSilence != nil {
			go c.device.onSilence()
		}
	}

	for len(pcm) > 0 {
		n, err := c.buffer.Write(pcm)
		pcm = pcm[n:]
		if errors.Is(err, audio.ErrBufferFull) {
			if _, err := c.buffer.WriteTo(c.writer); err != nil {
				return fmt.Errorf("failed to write recording: %w", err)
			}
		}
	}
	return nil
}

// finish drains the buffer and finalizes the file. It reports whether this
// call did the work.
func (c *capture) finish() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return false, nil
	}
	c.finished = true
	c.device.detach(c)

	_, flushErr := c.buffer.WriteTo(c.writer)
	closeErr := c.writer.Close()
	return true, errors.Join(flushErr, closeErr)
}

// Stop finalizes the file and tells the app to stop streaming.
func (c *capture) Stop(ctx context.Context) error {
	done, err := c.finish()
	if done {
		if sendErr := c.device.send(ServerMessage{Type: TypeRecordStop}); sendErr != nil {
			c.device.logger.Debug().Err(sendErr).Msg("Failed to send record_stop")
		}
	}
	return err
}

// Close releases the capture. Safe after Stop.
func (c *capture) Close() error {
	return c.Stop(context.Background())
}
