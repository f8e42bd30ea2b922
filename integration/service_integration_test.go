package integration

import (
	"testing"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/incident"
	"github.com/sentinelai/sentinel-edge/internal/service"
	"github.com/sentinelai/sentinel-edge/internal/storage"
)

func TestServiceManager_AggregatorLifecycle(t *testing.T) {
	env := SetupTestEnvironment(t)

	agg := incident.NewAggregator(incident.Config{
		Cooldown:      time.Millisecond,
		BatchSize:     2,
		IdleTimeout:   time.Minute,
		CheckInterval: 10 * time.Millisecond,
	}, env.Store, env.StateMgr, nil, nil, env.Logger)

	mgr := service.NewManager(env.Logger)
	mgr.Register(agg)

	flushedCh := mgr.GetEventBus().Subscribe(service.EventTypeIncidentFlushed)
	openedCh := mgr.GetEventBus().Subscribe(service.EventTypeIncidentOpened)

	ctx, cancel := ContextWithTimeout(10 * time.Second)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}

	agg.Submit(detectionEvent(1, "pistol"))
	time.Sleep(5 * time.Millisecond)
	agg.Submit(detectionEvent(2, "pistol"))

	select {
	case event := <-openedCh:
		if event.Source != "incident-aggregator" {
			t.Errorf("Unexpected opened event source: %s", event.Source)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No incident.opened event on the bus")
	}

	select {
	case event := <-flushedCh:
		if event.Data["screenshot_count"] == nil {
			t.Error("Flushed event missing screenshot_count")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No incident.flushed event on the bus")
	}

	shutdownCtx, shutdownCancel := ContextWithTimeout(5 * time.Second)
	defer shutdownCancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Failed to shut down services: %v", err)
	}

	status := mgr.GetServiceStatus("incident-aggregator")
	if status == nil {
		t.Fatal("No status for incident-aggregator")
	}
}

func TestServiceManager_SweeperLifecycle(t *testing.T) {
	env := SetupTestEnvironment(t)

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

	sweeper := storage.NewSweeper(retention, diskMonitor, 50*time.Millisecond, env.Logger)

	mgr := service.NewManager(env.Logger)
	mgr.Register(sweeper)

	ctx, cancel := ContextWithTimeout(5 * time.Second)
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Failed to start services: %v", err)
	}

	// Let at least one sweep run
	time.Sleep(120 * time.Millisecond)

	shutdownCtx, shutdownCancel := ContextWithTimeout(5 * time.Second)
	defer shutdownCancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Failed to shut down services: %v", err)
	}
}
