package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

// Client is an HTTP client for the weapon detection service
type Client struct {
	serviceURL        string
	httpClient        *http.Client
	logger            *logger.Logger
	defaultConfidence float64
	weaponClasses     []string
}

// ClientConfig contains configuration for the detection client
type ClientConfig struct {
	ServiceURL          string
	Timeout             time.Duration
	ConfidenceThreshold float64
	WeaponClasses       []string
}

// NewClient creates a new detection service client
func NewClient(config ClientConfig, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		serviceURL: config.ServiceURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:            log,
		defaultConfidence: config.ConfidenceThreshold,
		weaponClasses:     config.WeaponClasses,
	}
}

// Detect performs inference on a single frame
func (c *Client) Detect(ctx context.Context, frame *video.Frame) (*InferenceResponse, error) {
	req := InferenceRequest{
		Image: base64.StdEncoding.EncodeToString(frame.Data),
	}

	if c.defaultConfidence > 0 {
		req.ConfidenceThreshold = &c.defaultConfidence
	}
	if len(c.weaponClasses) > 0 {
		req.EnabledClasses = c.weaponClasses
	}

	return c.inferRequest(ctx, req)
}

// inferRequest performs a single inference request
func (c *Client) inferRequest(ctx context.Context, req InferenceRequest) (*InferenceResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inference", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending inference request", "url", url)
	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	requestDuration := time.Since(startTime)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Detection service returned error",
			"status", resp.StatusCode,
			"response", string(body),
		)
		return nil, fmt.Errorf("detection service returned status %d: %s", resp.StatusCode, string(body))
	}

	var inferenceResp InferenceResponse
	if err := json.Unmarshal(body, &inferenceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.Debug("Inference completed",
		"detection_count", inferenceResp.DetectionCount,
		"inference_time_ms", inferenceResp.InferenceTimeMs,
		"request_duration_ms", requestDuration.Milliseconds(),
	)

	return &inferenceResp, nil
}

// DetectWithRetry performs inference with retry logic
func (c *Client) DetectWithRetry(
	ctx context.Context,
	frame *video.Frame,
	maxRetries int,
	retryDelay time.Duration,
) (*InferenceResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("Retrying inference",
				"attempt", attempt,
				"max_retries", maxRetries,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		resp, err := c.Detect(ctx, frame)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		c.logger.Warn("Inference attempt failed",
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, fmt.Errorf("inference failed after %d retries: %w", maxRetries, lastErr)
}

// GetStats retrieves inference statistics from the detection service
func (c *Client) GetStats(ctx context.Context) (*InferenceStats, error) {
	url := fmt.Sprintf("%s/api/v1/inference/stats", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detection service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var stats InferenceStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &stats, nil
}

// HealthCheck checks if the detection service is up
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health/ready", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service health check failed: status %d", resp.StatusCode)
	}

	return nil
}
