package stt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
)

// recordingHandle owns one live capture and its temporary file.
type recordingHandle struct {
	capture audio.Capture
	path    string
	logger  zerolog.Logger

	mu       sync.Mutex
	stopped  bool
	released bool
}

// stop ends the capture so the file can be read.
func (h *recordingHandle) stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.released {
		return nil
	}
	h.stopped = true
	return h.capture.Stop(ctx)
}

// release stops and closes the capture and deletes the file. Errors are
// logged. Safe to call more than once.
func (h *recordingHandle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true

	if !h.stopped {
		h.stopped = true
		if err := h.capture.Stop(context.Background()); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to stop capture during cleanup")
		}
	}
	if err := h.capture.Close(); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to close capture")
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.logger.Warn().Err(err).Str("path", h.path).Msg("Failed to delete recording file")
	}
}

// Transcriber records one utterance at a time and transcribes it.
type Transcriber struct {
	permissions audio.Permissions
	device      audio.CaptureDevice
	service     Service
	dir         string
	opts        audio.RecordingOptions
	logger      zerolog.Logger

	mu     sync.Mutex
	handle *recordingHandle
}

// NewTranscriber creates a transcriber that records into temporary files under dir.
func NewTranscriber(permissions audio.Permissions, device audio.CaptureDevice, service Service, dir string, logger zerolog.Logger) *Transcriber {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Transcriber{
		permissions: permissions,
		device:      device,
		service:     service,
		dir:         dir,
		opts:        audio.SpeechRecordingOptions,
		logger:      logger,
	}
}

// StartRecording opens a new capture, releasing any existing one first.
func (t *Transcriber) StartRecording(ctx context.Context) error {
	t.releasePrevious()

	granted, err := t.permissions.RequestMicrophone(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// A concurrent start may have opened one while permission was pending.
	if t.handle != nil {
		t.logger.Debug().Str("path", t.handle.path).Msg("Releasing previous recording")
		t.handle.release()
		t.handle = nil
	}

	path := filepath.Join(t.dir, "recording-"+uuid.NewString()+t.opts.Extension)
	capture, err := t.device.Open(ctx, path, t.opts)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			t.logger.Warn().Err(rmErr).Str("path", path).Msg("Failed to delete recording file")
		}
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}

	t.handle = &recordingHandle{capture: capture, path: path, logger: t.logger}
	t.logger.Info().Str("path", path).Msg("Started recording")
	return nil
}

// StopRecording finalizes the active capture and transcribes it. The
// recording is released on every path, before the upload starts.
func (t *Transcriber) StopRecording(ctx context.Context) (Result, error) {
	h := t.detach()
	if h == nil {
		return Result{}, ErrNoActiveRecording
	}
	defer h.release()

	if err := h.stop(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: failed to stop capture: %w", ErrTranscription, err)
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: failed to read recording: %w", ErrTranscription, err)
	}
	if len(data) == 0 {
		return Result{}, fmt.Errorf("%w: recording is empty", ErrTranscription)
	}
	h.release()

	t.logger.Debug().Int("bytes", len(data)).Msg("Sending audio for transcription")
	text, err := t.service.Transcribe(ctx, Clip{Data: data, MIMESubtype: t.opts.MIMESubtype})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Text: FallbackTranscript, NoSpeech: true}, nil
	}
	return Result{Text: text}, nil
}

// CancelRecording releases the active capture without transcribing. No-op when idle.
func (t *Transcriber) CancelRecording() {
	if h := t.detach(); h != nil {
		h.release()
		t.logger.Debug().Msg("Recording cancelled")
	}
}

// Recording reports whether a capture is live.
func (t *Transcriber) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != nil
}

func (t *Transcriber) releasePrevious() {
	if h := t.detach(); h != nil {
		t.logger.Debug().Str("path", h.path).Msg("Releasing previous recording")
		h.release()
	}
}

func (t *Transcriber) detach() *recordingHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.handle
	t.handle = nil
	return h
}
