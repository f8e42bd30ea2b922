package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/config"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/state"
	"github.com/sentinelai/sentinel-edge/internal/storage"
)

// TestEnvironment provides a test environment for integration tests
type TestEnvironment struct {
	TempDir  string
	Config   *config.Config
	StateMgr *state.Manager
	Store    *storage.Store
	Logger   *logger.Logger
}

// SetupTestEnvironment creates a test environment with a real SQLite
// database and screenshot directory under a temp dir
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tmpDir := t.TempDir()
	screenshotsDir := filepath.Join(tmpDir, "screenshots")

	cfg := &config.Config{
		Agent: config.AgentConfig{
			DataDir: tmpDir,
			Storage: config.StorageConfig{
				ScreenshotsDir:      screenshotsDir,
				RetentionDays:       7,
				MaxDiskUsagePercent: 80.0,
			},
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "text",
		},
	}

	log := logger.NewNopLogger()

	stateMgr, err := state.NewManager(cfg, log)
	if err != nil {
		t.Fatalf("Failed to create state manager: %v", err)
	}
	t.Cleanup(func() { stateMgr.Close() })

	store, err := storage.NewStore(storage.StoreConfig{
		ScreenshotsDir: screenshotsDir,
	}, log)
	if err != nil {
		t.Fatalf("Failed to create screenshot store: %v", err)
	}

	return &TestEnvironment{
		TempDir:  tmpDir,
		Config:   cfg,
		StateMgr: stateMgr,
		Store:    store,
		Logger:   log,
	}
}

// WaitForCondition polls a condition until it holds or the timeout
// expires
func WaitForCondition(timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// ContextWithTimeout creates a context with timeout for tests
func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
