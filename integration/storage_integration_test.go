package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/storage"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

func TestStorage_ScreenshotRetention(t *testing.T) {
	env := SetupTestEnvironment(t)

	frame := video.NewFrame([]byte("jpeg-data"), 1)
	path, err := env.Store.WriteScreenshot("11111111-2222-3333-4444-555555555555", 0, []string{"pistol"}, frame)
	if err != nil {
		t.Fatalf("Failed to write screenshot: %v", err)
	}

	// Age the file past the retention window
	old := time.Now().Add(-10 * 24 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Failed to age file: %v", err)
	}

	// And keep a fresh one
	freshPath, err := env.Store.WriteScreenshot("66666666-7777-8888-9999-000000000000", 0, []string{"knife"}, frame)
	if err != nil {
		t.Fatalf("Failed to write screenshot: %v", err)
	}

	diskMonitor, err := storage.NewDiskMonitor(
		env.Config.Agent.Storage.ScreenshotsDir,
		env.Config.Agent.Storage.MaxDiskUsagePercent,
		env.Logger,
	)
	if err != nil {
		t.Fatalf("Failed to create disk monitor: %v", err)
	}

	retention, err := storage.NewRetentionPolicy(
		env.Config.Agent.Storage.ScreenshotsDir,
		env.Config.Agent.Storage.RetentionDays,
		diskMonitor,
		env.Logger,
	)
	if err != nil {
		t.Fatalf("Failed to create retention policy: %v", err)
	}

	if err := retention.Enforce(context.Background()); err != nil {
		t.Fatalf("Failed to enforce retention: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expired screenshot should have been deleted")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Errorf("Fresh screenshot should survive retention: %v", err)
	}
}

func TestStorage_DiskUsageReporting(t *testing.T) {
	env := SetupTestEnvironment(t)

	diskMonitor, err := storage.NewDiskMonitor(
		env.Config.Agent.Storage.ScreenshotsDir,
		env.Config.Agent.Storage.MaxDiskUsagePercent,
		env.Logger,
	)
	if err != nil {
		t.Fatalf("Failed to create disk monitor: %v", err)
	}

	usage, err := diskMonitor.GetUsage(context.Background())
	if err != nil {
		t.Fatalf("Failed to get disk usage: %v", err)
	}
	if usage.TotalBytes == 0 {
		t.Error("Expected non-zero total disk size")
	}
	if usage.UsagePercent < 0 || usage.UsagePercent > 100 {
		t.Errorf("Usage percent out of range: %f", usage.UsagePercent)
	}
}

func TestStorage_ListAfterWrite(t *testing.T) {
	env := SetupTestEnvironment(t)

	frame := video.NewFrame([]byte("jpeg-data"), 1)
	if _, err := env.Store.WriteScreenshot("11111111-2222-3333-4444-555555555555", 0, []string{"pistol"}, frame); err != nil {
		t.Fatalf("Failed to write screenshot: %v", err)
	}

	files, err := env.Store.ListScreenshots()
	if err != nil {
		t.Fatalf("Failed to list screenshots: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Expected 1 screenshot, got %d", len(files))
	}
	if files[0].SizeBytes == 0 {
		t.Error("Expected non-zero screenshot size")
	}
}
