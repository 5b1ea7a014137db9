package audio

import "context"

// RecordingOptions describes how captured audio is encoded on disk.
type RecordingOptions struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Extension     string // file extension, including the dot
	MIMESubtype   string // subtype for the audio/<subtype> data URI
}

// SpeechRecordingOptions is mono 16 kHz 16-bit WAV, suited to speech recognition.
var SpeechRecordingOptions = RecordingOptions{
	SampleRate:    16000,
	Channels:      1,
	BitsPerSample: 16,
	Extension:     ".wav",
	MIMESubtype:   "wav",
}

// Permissions grants access to the microphone.
type Permissions interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

// CaptureDevice opens microphone captures into files.
type CaptureDevice interface {
	// Open starts capturing into path. The file is complete once Stop returns.
	Open(ctx context.Context, path string, opts RecordingOptions) (Capture, error)
}

// Capture is a single live recording.
type Capture interface {
	// Stop ends the capture and finalizes the file.
	Stop(ctx context.Context) error
	// Close releases the capture. It is safe to call after Stop and more than once.
	Close() error
}

// PlaybackDevice plays audio files.
type PlaybackDevice interface {
	Play(ctx context.Context, path string) (Playback, error)
}

// Playback is a single live audio output.
type Playback interface {
	// Done is closed when playback finishes or is stopped.
	Done() <-chan struct{}
	// Stop ends playback early. It is safe to call after Done is closed.
	Stop(ctx context.Context) error
}

// PermissionsFunc adapts a function to Permissions.
type PermissionsFunc func(ctx context.Context) (bool, error)

// RequestMicrophone calls f(ctx).
func (f PermissionsFunc) RequestMicrophone(ctx context.Context) (bool, error) {
	return f(ctx)
}
