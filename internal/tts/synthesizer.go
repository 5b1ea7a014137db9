package tts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-companion/internal/audio"
	"github.com/lexiqai/voice-companion/internal/cache"
)

// playbackHandle owns one live playback.
type playbackHandle struct {
	playback audio.Playback
	once     sync.Once
	logger   zerolog.Logger
}

// release stops the playback unless it already finished. Safe to call more than once.
func (h *playbackHandle) release() {
	h.once.Do(func() {
		select {
		case <-h.playback.Done():
			return
		default:
		}
		if err := h.playback.Stop(context.Background()); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to stop playback")
		}
	})
}

// Synthesizer speaks text through a single exclusive playback slot, reusing
// cached clips for repeated phrases.
type Synthesizer struct {
	service Service
	cache   *cache.Cache
	device  audio.PlaybackDevice
	voices  map[string]string
	voice   string
	speed   float64
	logger  zerolog.Logger

	mu     sync.Mutex
	handle *playbackHandle
}

// NewSynthesizer creates a synthesizer speaking with the given default voice and speed.
func NewSynthesizer(service Service, clips *cache.Cache, device audio.PlaybackDevice, voice string, speed float64, logger zerolog.Logger) *Synthesizer {
	if voice == "" {
		voice = VoiceDefault
	}
	if speed == 0 {
		speed = 1.0
	}
	return &Synthesizer{
		service: service,
		cache:   clips,
		device:  device,
		voices:  DefaultVoices,
		voice:   voice,
		speed:   speed,
		logger:  logger,
	}
}

// Speak speaks text with the default voice and speed.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	return s.SpeakWith(ctx, text, s.voice, s.speed)
}

// SpeakWith stops any active playback, then plays text. It returns when the
// playback completes or is stopped, or with ctx's error if ctx ends first.
func (s *Synthesizer) SpeakWith(ctx context.Context, text, voice string, speed float64) error {
	s.Stop()

	clip, err := s.Prepare(ctx, text, voice, speed)
	if err != nil {
		return err
	}

	pb, err := s.device.Play(ctx, clip.Path)
	if err != nil {
		return fmt.Errorf("%w: playback failed: %w", ErrSynthesis, err)
	}
	h := &playbackHandle{playback: pb, logger: s.logger}

	s.mu.Lock()
	prev := s.handle
	s.handle = h
	s.mu.Unlock()
	if prev != nil {
		prev.release()
	}

	go func() {
		<-pb.Done()
		s.mu.Lock()
		if s.handle == h {
			s.handle = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-pb.Done():
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		if s.handle == h {
			s.handle = nil
		}
		s.mu.Unlock()
		h.release()
		return ctx.Err()
	}
}

// Prepare returns the cached clip for (text, voice, speed), synthesizing and
// caching it on a miss.
func (s *Synthesizer) Prepare(ctx context.Context, text, voice string, speed float64) (cache.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return cache.Clip{}, fmt.Errorf("%w: empty text", ErrSynthesis)
	}
	speed = ClampSpeed(speed)
	model := VoiceModel(s.voices, voice)
	key := cache.Key(text, model, speed)

	if clip, ok := s.cache.Get(key); ok {
		s.logger.Debug().Str("key", key).Msg("Using cached TTS audio")
		return clip, nil
	}

	start := time.Now()
	data, err := s.service.Synthesize(ctx, text, model, speed)
	if err != nil {
		return cache.Clip{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	if len(data) == 0 {
		return cache.Clip{}, fmt.Errorf("%w: empty audio", ErrSynthesis)
	}
	if !audio.IsWAV(data) {
		return cache.Clip{}, fmt.Errorf("%w: unplayable audio", ErrSynthesis)
	}

	clip, err := s.cache.Put(key, data)
	if err != nil {
		return cache.Clip{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	s.logger.Debug().
		Str("key", key).
		Str("voice", model).
		Int("bytes", len(data)).
		Dur("latency", time.Since(start)).
		Msg("Generated new TTS audio")
	return clip, nil
}

// Stop stops and releases the active playback. No-op when idle.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h != nil {
		h.release()
	}
}

// Playing reports whether a playback is live.
func (s *Synthesizer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// CleanCache evicts clips older than maxAgeDays and returns how many were removed.
func (s *Synthesizer) CleanCache(maxAgeDays int) int {
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	return s.cache.EvictOlderThan(time.Duration(maxAgeDays) * 24 * time.Hour)
}
