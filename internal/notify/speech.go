package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
)

// SpeechClient synthesizes spoken alerts through an external TTS
// service
type SpeechClient struct {
	httpClient *http.Client
	baseURL    string
	voiceID    string
	logger     *logger.Logger
}

// SpeechConfig contains speech client configuration
type SpeechConfig struct {
	ServiceURL string
	VoiceID    string
	Timeout    time.Duration
}

type speechRequest struct {
	VoiceID string `json:"voice_id,omitempty"`
	Text    string `json:"text"`
}

// NewSpeechClient creates a speech client
func NewSpeechClient(config SpeechConfig, log *logger.Logger) *SpeechClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &SpeechClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    config.ServiceURL,
		voiceID:    config.VoiceID,
		logger:     log,
	}
}

// Synthesize converts the alert text to audio and returns the encoded
// bytes
func (c *SpeechClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	jsonData, err := json.Marshal(speechRequest{VoiceID: c.voiceID, Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/tts", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create speech request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech service returned status %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	return audio, nil
}
