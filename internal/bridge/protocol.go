// Package bridge exposes a conversation session to a companion app over a
// websocket. The app owns the microphone and speaker; the bridge turns its
// audio stream into recordings and sends synthesized clips back to play.
package bridge

import (
	"github.com/lexiqai/voice-companion/internal/conversation"
)

// Client to server message types. Binary frames carry microphone audio.
const (
	TypeHello            = "hello"
	TypeStartListening   = "start_listening"
	TypeStopListening    = "stop_listening"
	TypeSendText         = "send_text"
	TypeClear            = "clear"
	TypePlaybackFinished = "playback_finished"
)

// Server to client message types.
const (
	TypeState       = "state"
	TypeRecordStart = "record_start"
	TypeRecordStop  = "record_stop"
	TypePlay        = "play"
	TypePlayStop    = "play_stop"
	TypeError       = "error"
)

// ClientMessage is a JSON message from the companion app.
type ClientMessage struct {
	Type string `json:"type"`

	// hello
	Microphone *bool  `json:"microphone,omitempty"`
	Encoding   string `json:"encoding,omitempty"` // pcm16 or mulaw
	SampleRate int    `json:"sample_rate,omitempty"`

	// send_text
	Text string `json:"text,omitempty"`

	// playback_finished
	ID string `json:"id,omitempty"`
}

// ServerMessage is a JSON message to the companion app.
type ServerMessage struct {
	Type string `json:"type"`

	// state
	State *conversation.Snapshot `json:"state,omitempty"`

	// record_start
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Encoding   string `json:"encoding,omitempty"`

	// play, play_stop
	ID     string `json:"id,omitempty"`
	Format string `json:"format,omitempty"`
	Audio  string `json:"audio,omitempty"` // base64

	// error
	Message string `json:"message,omitempty"`
}

// sendFunc delivers one message to the app.
type sendFunc func(ServerMessage) error
