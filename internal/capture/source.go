package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/camera"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
	"github.com/sentinelai/sentinel-edge/internal/stats"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

// Config contains frame source configuration
type Config struct {
	FPS          float64
	MaxFailures  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// Source owns the camera device and runs the paced capture loop.
// Every grabbed frame is stamped with a monotonically increasing
// sequence number and published into the shared frame cache.
type Source struct {
	*service.ServiceBase
	device    camera.Device
	cache     *video.FrameCache
	collector *stats.Collector
	cfg       Config

	seq    atomic.Uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource creates a frame source service
func NewSource(device camera.Device, cache *video.FrameCache, collector *stats.Collector, cfg Config, log *logger.Logger) *Source {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 30
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	return &Source{
		ServiceBase: service.NewServiceBase("frame-source", log),
		device:      device,
		cache:       cache,
		collector:   collector,
		cfg:         cfg,
		done:        make(chan struct{}),
	}
}

// Start begins the capture loop
func (s *Source) Start(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStarting)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.LogInfo("Starting frame source",
		"input", s.device.Describe(),
		"fps", s.cfg.FPS,
		"max_failures", s.cfg.MaxFailures,
	)

	go s.run()

	s.GetStatus().SetStatus(service.StatusRunning)
	return nil
}

// Stop terminates the capture loop and closes the device
func (s *Source) Stop(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStopping)

	if s.cancel != nil {
		s.cancel()
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.device.Close(); err != nil {
		s.LogError("Failed to close camera device", err)
	}

	s.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

// run is the paced capture loop. Transient grab failures back off
// exponentially; after MaxFailures consecutive failures the source
// gives up and reports a camera error.
func (s *Source) run() {
	defer close(s.done)

	interval := time.Duration(float64(time.Second) / s.cfg.FPS)
	backoff := s.cfg.RetryBackoff
	failures := 0

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		started := time.Now()

		data, err := s.device.ReadFrame(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}

			failures++
			s.collector.RecordCaptureError()
			s.LogWarn("Frame grab failed",
				"error", err,
				"consecutive_failures", failures,
			)

			if failures >= s.cfg.MaxFailures {
				fatal := fmt.Errorf("camera unavailable after %d consecutive failures: %w", failures, err)
				s.LogError("Frame source giving up", fatal)
				s.collector.SetStatus(stats.StatusCameraError)
				s.GetStatus().SetError(fatal)
				s.PublishEvent(service.EventTypeCaptureFatal, map[string]interface{}{
					"input":    s.device.Describe(),
					"failures": failures,
					"error":    err.Error(),
				})
				return
			}

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.cfg.MaxBackoff {
				backoff = s.cfg.MaxBackoff
			}
			continue
		}

		failures = 0
		backoff = s.cfg.RetryBackoff

		frame := video.NewFrame(data, s.seq.Add(1))
		s.cache.Publish(frame)
		s.collector.RecordFrame()

		if remaining := interval - time.Since(started); remaining > 0 {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(remaining):
			}
		}
	}
}

// Sequence returns the sequence number of the last captured frame
func (s *Source) Sequence() uint64 {
	return s.seq.Load()
}
