package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
)

// Service provides configuration management with environment variable support
type Service struct {
	config     *Config
	configPath string
	logger     *logger.Logger
	mu         sync.RWMutex
	watchers   []ConfigWatcher
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(ctx context.Context, oldConfig, newConfig *Config) error

// NewService creates a new configuration service
func NewService(configPath string, log *logger.Logger) (*Service, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Service{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		watchers:   make([]ConfigWatcher, 0),
	}, nil
}

// Get returns the current configuration (thread-safe)
func (s *Service) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Reload reloads the configuration from file
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldConfig := s.config

	newConfig, err := Load(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	applyEnvOverrides(newConfig)

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid reloaded configuration: %w", err)
	}

	s.config = newConfig

	for _, watcher := range s.watchers {
		if err := watcher(ctx, oldConfig, newConfig); err != nil {
			s.logger.Error("Config watcher error", "error", err)
		}
	}

	s.logger.Info("Configuration reloaded", "path", s.configPath)
	return nil
}

// Watch registers a configuration change watcher
func (s *Service) Watch(watcher ConfigWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, watcher)
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SENTINEL_DATA_DIR"); val != "" {
		cfg.Agent.DataDir = val
	}

	if val := os.Getenv("SENTINEL_CAMERA_INPUT"); val != "" {
		cfg.Agent.Camera.Input = val
	}
	if val := os.Getenv("SENTINEL_CAMERA_CAPTURE_FPS"); val != "" {
		if fps, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Agent.Camera.CaptureFPS = fps
		}
	}

	if val := os.Getenv("SENTINEL_DETECTOR_URL"); val != "" {
		cfg.Agent.Detector.ServiceURL = val
	}
	if val := os.Getenv("SENTINEL_DETECTOR_CONFIDENCE_THRESHOLD"); val != "" {
		if threshold, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Agent.Detector.ConfidenceThreshold = threshold
		}
	}
	if val := os.Getenv("SENTINEL_DETECTOR_WEAPON_CLASSES"); val != "" {
		classes := strings.Split(val, ",")
		for i := range classes {
			classes[i] = strings.TrimSpace(classes[i])
		}
		cfg.Agent.Detector.WeaponClasses = classes
	}

	if val := os.Getenv("SENTINEL_INCIDENTS_COOLDOWN"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Agent.Incidents.Cooldown = d
		}
	}
	if val := os.Getenv("SENTINEL_INCIDENTS_BATCH_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			cfg.Agent.Incidents.BatchSize = size
		}
	}
	if val := os.Getenv("SENTINEL_INCIDENTS_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Agent.Incidents.IdleTimeout = d
		}
	}

	if val := os.Getenv("SENTINEL_STORAGE_SCREENSHOTS_DIR"); val != "" {
		cfg.Agent.Storage.ScreenshotsDir = val
	}
	if val := os.Getenv("SENTINEL_STORAGE_RETENTION_DAYS"); val != "" {
		if days, err := strconv.Atoi(val); err == nil {
			cfg.Agent.Storage.RetentionDays = days
		}
	}

	if val := os.Getenv("SENTINEL_NOTIFY_ANALYSIS_URL"); val != "" {
		cfg.Agent.Notify.Analysis.ServiceURL = val
	}
	if val := os.Getenv("SENTINEL_NOTIFY_SPEECH_URL"); val != "" {
		cfg.Agent.Notify.Speech.ServiceURL = val
	}
	if val := os.Getenv("SENTINEL_NOTIFY_ALERT_URL"); val != "" {
		cfg.Agent.Notify.Alert.ServiceURL = val
	}

	if val := os.Getenv("SENTINEL_WEB_ENABLED"); val != "" {
		cfg.Agent.Web.Enabled = (val == "true" || val == "1")
	}
	if val := os.Getenv("SENTINEL_WEB_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Agent.Web.Port = port
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		cfg.Log.Output = val
	}
}
