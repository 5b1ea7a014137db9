package stt

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when microphone access is refused.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDevice is returned when the capture device cannot be opened.
	ErrDevice = errors.New("audio device error")
	// ErrNoActiveRecording is returned by StopRecording when nothing is being captured.
	ErrNoActiveRecording = errors.New("no active recording")
	// ErrTranscription covers capture, read and remote transcription failures.
	ErrTranscription = errors.New("transcription failed")
	// ErrMalformedResponse is returned by services when the result lacks a transcript.
	ErrMalformedResponse = errors.New("invalid transcription response format")
)

// FallbackTranscript is reported when the service heard nothing it could transcribe.
const FallbackTranscript = "Sorry, I didn't catch that"

// Result is the outcome of a completed recording.
type Result struct {
	// Text is the transcript, or FallbackTranscript when NoSpeech is set.
	Text string
	// NoSpeech is set when the service returned an empty but valid transcript.
	NoSpeech bool
}

// Clip is captured audio ready for upload.
type Clip struct {
	Data        []byte
	MIMESubtype string // e.g. "wav"
}

// Service transcribes a complete audio clip. An empty transcript with a nil
// error means the service found no speech.
type Service interface {
	Transcribe(ctx context.Context, clip Clip) (string, error)
}
