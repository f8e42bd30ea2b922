package state

import (
	"testing"

	"github.com/sentinelai/sentinel-edge/internal/config"
	"github.com/sentinelai/sentinel-edge/internal/logger"
)

func setupTestManager(t *testing.T) *Manager {
	tmpDir := t.TempDir()

	cfg := &config.Config{}
	cfg.Agent.DataDir = tmpDir

	mgr, err := NewManager(cfg, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	t.Cleanup(func() { mgr.Close() })

	return mgr
}
