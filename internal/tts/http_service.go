package tts

import (
	"context"

	"github.com/lexiqai/voice-companion/internal/remote"
)

type httpRequest struct {
	Model  string  `json:"model"`
	Text   string  `json:"text"`
	Speed  float64 `json:"speed"`
	Format string  `json:"format"`
}

// HTTPService synthesizes WAV audio through the shared API's /tts endpoint.
type HTTPService struct {
	client *remote.Client
}

// NewHTTPService creates a synthesis service.
func NewHTTPService(client *remote.Client) *HTTPService {
	return &HTTPService{client: client}
}

// Synthesize returns the raw audio body.
func (s *HTTPService) Synthesize(ctx context.Context, text, voiceModel string, speed float64) ([]byte, error) {
	resp, err := s.client.PostJSON(ctx, "tts", httpRequest{
		Model:  voiceModel,
		Text:   text,
		Speed:  speed,
		Format: "wav",
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
