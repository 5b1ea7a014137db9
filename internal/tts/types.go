package tts

import (
	"context"
	"errors"
	"strings"
)

// ErrSynthesis covers remote synthesis failures, unplayable audio and playback errors.
var ErrSynthesis = errors.New("speech synthesis failed")

// Speed bounds accepted by the synthesis service.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// Voice names.
const (
	VoiceDefault = "default"
	VoiceMale    = "male"
	VoiceFemale  = "female"
	VoiceChild   = "child"
)

// DefaultVoices maps voice names onto synthesis model identifiers.
var DefaultVoices = map[string]string{
	VoiceDefault: "#g1_aura-asteria-en",
	VoiceMale:    "#g1_aura-orion-en",
	VoiceFemale:  "#g1_aura-asteria-en",
	VoiceChild:   "#g1_aura-nova-en",
}

// Service turns text into encoded audio.
type Service interface {
	Synthesize(ctx context.Context, text, voiceModel string, speed float64) ([]byte, error)
}

// ClampSpeed limits speed to [MinSpeed, MaxSpeed].
func ClampSpeed(speed float64) float64 {
	return max(MinSpeed, min(MaxSpeed, speed))
}

// VoiceModel resolves a voice name, falling back to the default voice.
func VoiceModel(voices map[string]string, voice string) string {
	if model, ok := voices[strings.ToLower(strings.TrimSpace(voice))]; ok {
		return model
	}
	return voices[VoiceDefault]
}
