package stt

import (
	"context"
	"encoding/base64"

	"github.com/tidwall/gjson"

	"github.com/lexiqai/voice-companion/internal/remote"
)

// transcriptPath locates the best alternative in a transcription response.
const transcriptPath = "results.channels.0.alternatives.0"

type httpRequest struct {
	Model    string `json:"model"`
	Audio    string `json:"audio"`
	Language string `json:"language"`
}

// HTTPService transcribes clips through the shared API's /stt endpoint.
type HTTPService struct {
	client   *remote.Client
	model    string
	language string
}

// NewHTTPService creates a transcription service.
func NewHTTPService(client *remote.Client, model, language string) *HTTPService {
	return &HTTPService{client: client, model: model, language: language}
}

// Transcribe uploads the clip as a base64 data URI.
func (s *HTTPService) Transcribe(ctx context.Context, clip Clip) (string, error) {
	subtype := clip.MIMESubtype
	if subtype == "" {
		subtype = "wav"
	}

	resp, err := s.client.PostJSON(ctx, "stt", httpRequest{
		Model:    s.model,
		Audio:    "data:audio/" + subtype + ";base64," + base64.StdEncoding.EncodeToString(clip.Data),
		Language: s.language,
	})
	if err != nil {
		return "", err
	}
	return ParseTranscript(resp.Body)
}

// ParseTranscript extracts the first alternative's transcript. A present
// alternative with no transcript yields "".
func ParseTranscript(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrMalformedResponse
	}

	alt := gjson.GetBytes(body, transcriptPath)
	if !alt.IsObject() {
		return "", ErrMalformedResponse
	}

	transcript := alt.Get("transcript")
	switch transcript.Type {
	case gjson.String:
		return transcript.String(), nil
	case gjson.Null:
		return "", nil
	default:
		return "", ErrMalformedResponse
	}
}
