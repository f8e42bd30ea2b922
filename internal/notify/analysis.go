package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/incident"
	"github.com/sentinelai/sentinel-edge/internal/logger"
)

// AnalysisClient asks an external vision model to describe a finalized
// incident from its screenshots
type AnalysisClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *logger.Logger
}

// AnalysisConfig contains analysis client configuration
type AnalysisConfig struct {
	ServiceURL string
	Model      string
	Timeout    time.Duration
}

type analysisRequest struct {
	Model   string   `json:"model,omitempty"`
	Images  []string `json:"images"`
	Classes []string `json:"classes"`
	Prompt  string   `json:"prompt,omitempty"`
}

type analysisResponse struct {
	Analysis string `json:"analysis"`
}

// NewAnalysisClient creates an analysis client
func NewAnalysisClient(config AnalysisConfig, log *logger.Logger) *AnalysisClient {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &AnalysisClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    config.ServiceURL,
		model:      config.Model,
		logger:     log,
	}
}

// AnalyzeIncident submits the incident's screenshots for analysis and
// returns the model's text description. Screenshots that cannot be
// read are skipped; at most three are sent.
func (c *AnalysisClient) AnalyzeIncident(ctx context.Context, record *incident.Record) (string, error) {
	images := c.loadImages(record.ScreenshotPaths, 3)
	if len(images) == 0 {
		return "", fmt.Errorf("no readable screenshots for incident %s", record.ID)
	}

	req := analysisRequest{
		Model:   c.model,
		Images:  images,
		Classes: record.WeaponClasses,
		Prompt:  "Describe the security threat visible in these camera frames.",
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/analyze", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("analysis service returned status %d: %s", resp.StatusCode, string(body))
	}

	var analysisResp analysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&analysisResp); err != nil {
		return "", fmt.Errorf("failed to decode analysis response: %w", err)
	}

	return analysisResp.Analysis, nil
}

func (c *AnalysisClient) loadImages(paths []string, limit int) []string {
	var images []string
	for _, path := range paths {
		if len(images) >= limit {
			break
		}
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("Failed to read screenshot for analysis", "path", path, "error", err)
			continue
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}
	return images
}
