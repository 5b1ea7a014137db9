package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame
}

// DefaultVADConfig returns a default VAD configuration for 16 kHz speech.
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   50,  // 1s of silence (50 frames * 20ms)
		FrameSize:       320, // 20ms at 16kHz
	}
}

// VADDetector performs energy-based Voice Activity Detection over a stream of samples.
type VADDetector struct {
	config         VADConfig
	pending        []int16
	silenceCounter int
	isSpeaking     bool
	heardSpeech    bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	cfg := *config
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultVADConfig().FrameSize
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = 1
	}
	return &VADDetector{config: cfg}
}

// ProcessFrame processes one frame and returns (isSpeaking, speechStarted, speechEnded).
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
			v.heardSpeech = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Feed splits samples of any length into frames, carrying the remainder over
// to the next call. It reports whether an utterance ended within them.
func (v *VADDetector) Feed(samples []int16) bool {
	v.pending = append(v.pending, samples...)

	ended := false
	size := v.config.FrameSize
	for len(v.pending) >= size {
		if _, _, end := v.ProcessFrame(v.pending[:size]); end {
			ended = true
		}
		v.pending = v.pending[size:]
	}

	if len(v.pending) == 0 {
		v.pending = nil
	}
	return ended
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.pending = nil
	v.silenceCounter = 0
	v.isSpeaking = false
	v.heardSpeech = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// HeardSpeech reports whether any speech was detected since the last Reset.
func (v *VADDetector) HeardSpeech() bool {
	return v.heardSpeech
}
