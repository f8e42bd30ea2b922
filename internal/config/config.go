package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Agent AgentConfig `yaml:"agent"`
	Log   LogConfig   `yaml:"log,omitempty"`
}

// AgentConfig contains the edge agent configuration
type AgentConfig struct {
	DataDir   string          `yaml:"data_dir"`
	Camera    CameraConfig    `yaml:"camera"`
	Detector  DetectorConfig  `yaml:"detector"`
	Stream    StreamConfig    `yaml:"stream"`
	Incidents IncidentsConfig `yaml:"incidents"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`
	Web       WebConfig       `yaml:"web"`
}

// CameraConfig contains frame capture configuration
type CameraConfig struct {
	Input        string        `yaml:"input"` // device path, RTSP URL or video file
	CaptureFPS   float64       `yaml:"capture_fps"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	JPEGQuality  int           `yaml:"jpeg_quality"`
	MaxFailures  int           `yaml:"max_failures"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
	RTSP         RTSPConfig    `yaml:"rtsp"`
}

// RTSPConfig contains the RTSP connection probe configuration
type RTSPConfig struct {
	ProbeEnabled      bool          `yaml:"probe_enabled"`
	Timeout           time.Duration `yaml:"timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// DetectorConfig contains weapon detection service configuration
type DetectorConfig struct {
	ServiceURL          string        `yaml:"service_url"`
	Timeout             time.Duration `yaml:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	WeaponClasses       []string      `yaml:"weapon_classes"`
	SkipPeriod          int           `yaml:"skip_period"` // run inference once every N frames
	Retries             int           `yaml:"retries"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
}

// StreamConfig contains MJPEG streaming configuration
type StreamConfig struct {
	MaxFPS           float64       `yaml:"max_fps"`
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	JPEGQuality      int           `yaml:"jpeg_quality"`
	SkipPeriod       int           `yaml:"skip_period"`
	StalenessWindow  time.Duration `yaml:"staleness_window"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
}

// IncidentsConfig contains incident aggregation configuration
type IncidentsConfig struct {
	Cooldown      time.Duration `yaml:"cooldown"`
	BatchSize     int           `yaml:"batch_size"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	CheckInterval time.Duration `yaml:"check_interval"`
	QueueSize     int           `yaml:"queue_size"`
}

// StorageConfig contains local storage configuration
type StorageConfig struct {
	ScreenshotsDir      string  `yaml:"screenshots_dir"`
	RetentionDays       int     `yaml:"retention_days"`
	MaxDiskUsagePercent float64 `yaml:"max_disk_usage_percent"`
}

// NotifyConfig contains collaborator service configuration
type NotifyConfig struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Speech   SpeechConfig   `yaml:"speech"`
	Alert    AlertConfig    `yaml:"alert"`
}

// AnalysisConfig contains the incident analysis service configuration
type AnalysisConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ServiceURL string        `yaml:"service_url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SpeechConfig contains the speech synthesis service configuration
type SpeechConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ServiceURL string        `yaml:"service_url"`
	VoiceID    string        `yaml:"voice_id"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AlertConfig contains the phone alert service configuration
type AlertConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ServiceURL string        `yaml:"service_url"`
	FromNumber string        `yaml:"from_number"`
	ToNumber   string        `yaml:"to_number"`
	Timeout    time.Duration `yaml:"timeout"`
}

// WebConfig contains web server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.dev.yaml",
		"./config/config.yaml",
		"../config/config.dev.yaml",
		"../config/config.yaml",
		"/etc/sentinel-edge/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return paths[0]
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Agent.DataDir == "" {
		c.Agent.DataDir = "./data"
	}

	if c.Agent.Camera.Input == "" {
		c.Agent.Camera.Input = "/dev/video0"
	}
	if c.Agent.Camera.CaptureFPS == 0 {
		c.Agent.Camera.CaptureFPS = 10
	}
	if c.Agent.Camera.JPEGQuality == 0 {
		c.Agent.Camera.JPEGQuality = 5
	}
	if c.Agent.Camera.MaxFailures == 0 {
		c.Agent.Camera.MaxFailures = 30
	}
	if c.Agent.Camera.RetryBackoff == 0 {
		c.Agent.Camera.RetryBackoff = 200 * time.Millisecond
	}
	if c.Agent.Camera.MaxBackoff == 0 {
		c.Agent.Camera.MaxBackoff = 5 * time.Second
	}
	if c.Agent.Camera.RTSP.Timeout == 0 {
		c.Agent.Camera.RTSP.Timeout = 30 * time.Second
	}
	if c.Agent.Camera.RTSP.ReconnectInterval == 0 {
		c.Agent.Camera.RTSP.ReconnectInterval = 10 * time.Second
	}

	if c.Agent.Detector.ServiceURL == "" {
		c.Agent.Detector.ServiceURL = "http://localhost:8080"
	}
	if c.Agent.Detector.Timeout == 0 {
		c.Agent.Detector.Timeout = 10 * time.Second
	}
	if c.Agent.Detector.ConfidenceThreshold == 0 {
		c.Agent.Detector.ConfidenceThreshold = 0.5
	}
	if len(c.Agent.Detector.WeaponClasses) == 0 {
		c.Agent.Detector.WeaponClasses = []string{"pistol", "knife", "rifle"}
	}
	if c.Agent.Detector.SkipPeriod == 0 {
		c.Agent.Detector.SkipPeriod = 3
	}
	if c.Agent.Detector.Retries == 0 {
		c.Agent.Detector.Retries = 3
	}
	if c.Agent.Detector.RetryDelay == 0 {
		c.Agent.Detector.RetryDelay = time.Second
	}

	if c.Agent.Stream.MaxFPS == 0 {
		c.Agent.Stream.MaxFPS = 15
	}
	if c.Agent.Stream.JPEGQuality == 0 {
		c.Agent.Stream.JPEGQuality = 70
	}
	if c.Agent.Stream.SkipPeriod == 0 {
		c.Agent.Stream.SkipPeriod = 1
	}
	if c.Agent.Stream.StalenessWindow == 0 {
		c.Agent.Stream.StalenessWindow = 2 * time.Second
	}
	if c.Agent.Stream.SubscriberBuffer == 0 {
		c.Agent.Stream.SubscriberBuffer = 2
	}

	if c.Agent.Incidents.Cooldown == 0 {
		c.Agent.Incidents.Cooldown = 3 * time.Second
	}
	if c.Agent.Incidents.BatchSize == 0 {
		c.Agent.Incidents.BatchSize = 5
	}
	if c.Agent.Incidents.IdleTimeout == 0 {
		c.Agent.Incidents.IdleTimeout = 30 * time.Second
	}
	if c.Agent.Incidents.CheckInterval == 0 {
		c.Agent.Incidents.CheckInterval = time.Second
	}
	if c.Agent.Incidents.QueueSize == 0 {
		c.Agent.Incidents.QueueSize = 64
	}

	if c.Agent.Storage.ScreenshotsDir == "" {
		c.Agent.Storage.ScreenshotsDir = filepath.Join(c.Agent.DataDir, "screenshots")
	}
	if c.Agent.Storage.RetentionDays == 0 {
		c.Agent.Storage.RetentionDays = 7
	}
	if c.Agent.Storage.MaxDiskUsagePercent == 0 {
		c.Agent.Storage.MaxDiskUsagePercent = 80
	}

	if c.Agent.Notify.Analysis.Timeout == 0 {
		c.Agent.Notify.Analysis.Timeout = 30 * time.Second
	}
	if c.Agent.Notify.Speech.Timeout == 0 {
		c.Agent.Notify.Speech.Timeout = 20 * time.Second
	}
	if c.Agent.Notify.Alert.Timeout == 0 {
		c.Agent.Notify.Alert.Timeout = 15 * time.Second
	}

	if c.Agent.Web.Host == "" {
		c.Agent.Web.Host = "0.0.0.0"
	}
	if c.Agent.Web.Port == 0 {
		c.Agent.Web.Port = 8090
	}
}
