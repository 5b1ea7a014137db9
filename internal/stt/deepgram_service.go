package stt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramService transcribes clips with Deepgram's pre-recorded API.
type DeepgramService struct {
	client  *api.Client
	options *interfaces.PreRecordedTranscriptionOptions
}

// NewDeepgramService creates a Deepgram transcription service.
func NewDeepgramService(apiKey, model, language string) *DeepgramService {
	c := listenClient.NewREST(apiKey, &interfaces.ClientOptions{})
	return &DeepgramService{
		client: api.New(c),
		options: &interfaces.PreRecordedTranscriptionOptions{
			Model:       model,
			Language:    language,
			Punctuate:   true,
			SmartFormat: true,
		},
	}
}

// Transcribe streams the clip to Deepgram and returns the best transcript.
func (s *DeepgramService) Transcribe(ctx context.Context, clip Clip) (string, error) {
	res, err := s.client.FromStream(ctx, bytes.NewReader(clip.Data), s.options)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription failed: %w", err)
	}

	// Same response path as the HTTP backend.
	raw, err := sonic.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return ParseTranscript(raw)
}
