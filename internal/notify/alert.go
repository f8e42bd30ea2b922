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

// AlertClient places a voice call through an external telephony
// service
type AlertClient struct {
	httpClient *http.Client
	baseURL    string
	fromNumber string
	toNumber   string
	logger     *logger.Logger
}

// AlertConfig contains alert client configuration
type AlertConfig struct {
	ServiceURL string
	FromNumber string
	ToNumber   string
	Timeout    time.Duration
}

type callRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// NewAlertClient creates an alert client
func NewAlertClient(config AlertConfig, log *logger.Logger) *AlertClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &AlertClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    config.ServiceURL,
		fromNumber: config.FromNumber,
		toNumber:   config.ToNumber,
		logger:     log,
	}
}

// Call places the alert call with the given message
func (c *AlertClient) Call(ctx context.Context, message string) error {
	jsonData, err := json.Marshal(callRequest{
		From:    c.fromNumber,
		To:      c.toNumber,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal call request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/call", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alert service returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
