package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate validates the configuration with detailed error messages
func (c *Config) Validate() error {
	var errors []string

	if c.Agent.DataDir == "" {
		errors = append(errors, "agent.data_dir is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format: %s (must be: text or json)", c.Log.Format))
	}

	if c.Agent.Camera.Input == "" {
		errors = append(errors, "camera.input is required")
	}

	if c.Agent.Camera.CaptureFPS <= 0 {
		errors = append(errors, fmt.Sprintf("camera.capture_fps must be > 0, got: %.2f", c.Agent.Camera.CaptureFPS))
	}

	if c.Agent.Camera.MaxFailures <= 0 {
		errors = append(errors, fmt.Sprintf("camera.max_failures must be > 0, got: %d", c.Agent.Camera.MaxFailures))
	}

	if c.Agent.Camera.RetryBackoff > c.Agent.Camera.MaxBackoff {
		errors = append(errors, fmt.Sprintf("camera.retry_backoff (%v) cannot be greater than max_backoff (%v)", c.Agent.Camera.RetryBackoff, c.Agent.Camera.MaxBackoff))
	}

	if c.Agent.Camera.RTSP.ProbeEnabled && !strings.HasPrefix(c.Agent.Camera.Input, "rtsp://") {
		errors = append(errors, "camera.rtsp.probe_enabled requires an rtsp:// input")
	}

	if c.Agent.Detector.ServiceURL == "" {
		errors = append(errors, "detector.service_url is required")
	}

	if c.Agent.Detector.ConfidenceThreshold < 0 || c.Agent.Detector.ConfidenceThreshold > 1 {
		errors = append(errors, fmt.Sprintf("detector.confidence_threshold must be between 0 and 1, got: %.2f", c.Agent.Detector.ConfidenceThreshold))
	}

	if c.Agent.Detector.SkipPeriod <= 0 {
		errors = append(errors, fmt.Sprintf("detector.skip_period must be > 0, got: %d", c.Agent.Detector.SkipPeriod))
	}

	if len(c.Agent.Detector.WeaponClasses) == 0 {
		errors = append(errors, "detector.weapon_classes must not be empty")
	}

	if c.Agent.Stream.MaxFPS <= 0 {
		errors = append(errors, fmt.Sprintf("stream.max_fps must be > 0, got: %.2f", c.Agent.Stream.MaxFPS))
	}

	if c.Agent.Stream.JPEGQuality < 1 || c.Agent.Stream.JPEGQuality > 100 {
		errors = append(errors, fmt.Sprintf("stream.jpeg_quality must be between 1 and 100, got: %d", c.Agent.Stream.JPEGQuality))
	}

	if c.Agent.Stream.SkipPeriod <= 0 {
		errors = append(errors, fmt.Sprintf("stream.skip_period must be > 0, got: %d", c.Agent.Stream.SkipPeriod))
	}

	if c.Agent.Stream.SubscriberBuffer < 1 || c.Agent.Stream.SubscriberBuffer > 3 {
		errors = append(errors, fmt.Sprintf("stream.subscriber_buffer must be between 1 and 3, got: %d", c.Agent.Stream.SubscriberBuffer))
	}

	if c.Agent.Incidents.Cooldown < 0 {
		errors = append(errors, fmt.Sprintf("incidents.cooldown must be >= 0, got: %v", c.Agent.Incidents.Cooldown))
	}

	if c.Agent.Incidents.BatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("incidents.batch_size must be > 0, got: %d", c.Agent.Incidents.BatchSize))
	}

	if c.Agent.Incidents.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("incidents.idle_timeout must be > 0, got: %v", c.Agent.Incidents.IdleTimeout))
	}

	if c.Agent.Incidents.CheckInterval <= 0 {
		errors = append(errors, fmt.Sprintf("incidents.check_interval must be > 0, got: %v", c.Agent.Incidents.CheckInterval))
	}

	if c.Agent.Incidents.QueueSize <= 0 {
		errors = append(errors, fmt.Sprintf("incidents.queue_size must be > 0, got: %d", c.Agent.Incidents.QueueSize))
	}

	if c.Agent.Storage.RetentionDays < 0 {
		errors = append(errors, fmt.Sprintf("storage.retention_days must be >= 0, got: %d", c.Agent.Storage.RetentionDays))
	}

	if c.Agent.Storage.MaxDiskUsagePercent < 0 || c.Agent.Storage.MaxDiskUsagePercent > 100 {
		errors = append(errors, fmt.Sprintf("storage.max_disk_usage_percent must be between 0 and 100, got: %.2f", c.Agent.Storage.MaxDiskUsagePercent))
	}

	if c.Agent.Storage.ScreenshotsDir != "" {
		if !filepath.IsAbs(c.Agent.Storage.ScreenshotsDir) && !strings.HasPrefix(c.Agent.Storage.ScreenshotsDir, "./") {
			c.Agent.Storage.ScreenshotsDir = filepath.Join(c.Agent.DataDir, c.Agent.Storage.ScreenshotsDir)
		}
	}

	if c.Agent.Notify.Analysis.Enabled && c.Agent.Notify.Analysis.ServiceURL == "" {
		errors = append(errors, "notify.analysis.service_url is required when analysis is enabled")
	}

	if c.Agent.Notify.Speech.Enabled && c.Agent.Notify.Speech.ServiceURL == "" {
		errors = append(errors, "notify.speech.service_url is required when speech is enabled")
	}

	if c.Agent.Notify.Alert.Enabled {
		if c.Agent.Notify.Alert.ServiceURL == "" {
			errors = append(errors, "notify.alert.service_url is required when alert is enabled")
		}
		if c.Agent.Notify.Alert.ToNumber == "" {
			errors = append(errors, "notify.alert.to_number is required when alert is enabled")
		}
	}

	if c.Agent.Web.Enabled {
		if c.Agent.Web.Port <= 0 || c.Agent.Web.Port > 65535 {
			errors = append(errors, fmt.Sprintf("web.port must be between 1 and 65535, got: %d", c.Agent.Web.Port))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
