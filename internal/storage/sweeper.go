package storage

import (
	"context"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
)

// Sweeper periodically enforces the retention policy and publishes
// storage pressure events
type Sweeper struct {
	*service.ServiceBase

	retention   *RetentionPolicy
	diskMonitor *DiskMonitor
	interval    time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a retention sweeper
func NewSweeper(retention *RetentionPolicy, diskMonitor *DiskMonitor, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval == 0 {
		interval = time.Hour
	}
	return &Sweeper{
		ServiceBase: service.NewServiceBase("storage-sweeper", log),
		retention:   retention,
		diskMonitor: diskMonitor,
		interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the periodic sweep loop
func (s *Sweeper) Start(ctx context.Context) error {
	s.LogInfo("Starting storage sweeper", "interval", s.interval)
	s.GetStatus().SetStatus(service.StatusRunning)
	go s.run(ctx)
	return nil
}

// Stop halts the sweep loop
func (s *Sweeper) Stop(ctx context.Context) error {
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.GetStatus().SetStatus(service.StatusStopped)
	s.LogInfo("Storage sweeper stopped")
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	// Sweep once at startup to clear leftovers from previous runs
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.retention.Enforce(ctx); err != nil {
		s.LogError("Retention sweep failed", err)
	}

	usage, err := s.diskMonitor.GetUsage(ctx)
	if err != nil {
		s.LogError("Failed to read disk usage", err)
		return
	}

	if full, _ := s.diskMonitor.IsDiskFull(ctx); full {
		s.PublishEvent(service.EventTypeStorageFull, map[string]interface{}{
			"usage_percent":   usage.UsagePercent,
			"available_bytes": usage.AvailableBytes,
		})
	} else if usage.UsagePercent > s.diskMonitor.maxUsagePercent*0.9 {
		s.PublishEvent(service.EventTypeStorageWarning, map[string]interface{}{
			"usage_percent":   usage.UsagePercent,
			"available_bytes": usage.AvailableBytes,
		})
	}
}
