package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
	"github.com/sentinelai/sentinel-edge/internal/stats"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

// fakeDevice serves frames or errors from a scripted ReadFrame func
type fakeDevice struct {
	read   func(ctx context.Context) ([]byte, error)
	closed bool
}

func (d *fakeDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	return d.read(ctx)
}

func (d *fakeDevice) Describe() string { return "fake" }

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 80, G: 80, B: 80, A: 255})
		}
	}
	data, err := video.EncodeJPEG(img, 85)
	if err != nil {
		t.Fatalf("Failed to encode test jpeg: %v", err)
	}
	return data
}

func TestSource_PublishesFrames(t *testing.T) {
	jpeg := testJPEG(t)
	device := &fakeDevice{
		read: func(ctx context.Context) ([]byte, error) { return jpeg, nil },
	}

	cache := video.NewFrameCache()
	collector := stats.NewCollector()
	src := NewSource(device, cache, collector, Config{FPS: 200}, logger.NewNopLogger())

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for cache.Published() < 3 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for frames")
		case <-time.After(5 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := src.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	frame, ok := cache.Fetch()
	if !ok {
		t.Fatal("Cache should hold a frame")
	}
	if frame.Sequence == 0 {
		t.Error("Frame sequence should start at 1")
	}
	if !device.closed {
		t.Error("Stop should close the device")
	}
	if collector.GetSnapshot().Status != stats.StatusMonitoring {
		t.Errorf("Expected monitoring status, got %s", collector.GetSnapshot().Status)
	}
}

func TestSource_SequenceIncreases(t *testing.T) {
	jpeg := testJPEG(t)
	device := &fakeDevice{
		read: func(ctx context.Context) ([]byte, error) { return jpeg, nil },
	}

	cache := video.NewFrameCache()
	src := NewSource(device, cache, stats.NewCollector(), Config{FPS: 500}, logger.NewNopLogger())

	src.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for src.Sequence() < 5 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for sequence to advance")
		case <-time.After(2 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	src.Stop(stopCtx)

	frame, _ := cache.Fetch()
	if frame.Sequence != src.Sequence() {
		t.Errorf("Cached frame sequence %d should match source sequence %d", frame.Sequence, src.Sequence())
	}
}

func TestSource_FatalAfterMaxFailures(t *testing.T) {
	grabErr := errors.New("device gone")
	device := &fakeDevice{
		read: func(ctx context.Context) ([]byte, error) { return nil, grabErr },
	}

	cache := video.NewFrameCache()
	collector := stats.NewCollector()
	src := NewSource(device, cache, collector, Config{
		FPS:          100,
		MaxFailures:  3,
		RetryBackoff: time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
	}, logger.NewNopLogger())

	bus := service.NewEventBus(10)
	src.SetEventBus(bus)
	fatalCh := bus.Subscribe(service.EventTypeCaptureFatal)

	src.Start(context.Background())

	select {
	case ev := <-fatalCh:
		if ev.Data["failures"].(int) != 3 {
			t.Errorf("Expected 3 failures in event, got %v", ev.Data["failures"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a capture fatal event")
	}

	if collector.GetSnapshot().Status != stats.StatusCameraError {
		t.Errorf("Expected camera_error status, got %s", collector.GetSnapshot().Status)
	}
	if src.GetStatus().GetError() == nil {
		t.Error("Service status should carry the fatal error")
	}
	if collector.CaptureErrors() != 3 {
		t.Errorf("Expected 3 capture errors, got %d", collector.CaptureErrors())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	src.Stop(stopCtx)
}

func TestSource_RecoversFromTransientFailures(t *testing.T) {
	jpeg := testJPEG(t)
	calls := 0
	device := &fakeDevice{
		read: func(ctx context.Context) ([]byte, error) {
			calls++
			if calls <= 2 {
				return nil, errors.New("transient")
			}
			return jpeg, nil
		},
	}

	cache := video.NewFrameCache()
	collector := stats.NewCollector()
	src := NewSource(device, cache, collector, Config{
		FPS:          200,
		MaxFailures:  10,
		RetryBackoff: time.Millisecond,
		MaxBackoff:   2 * time.Millisecond,
	}, logger.NewNopLogger())

	src.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for cache.Published() == 0 {
		select {
		case <-deadline:
			t.Fatal("Source should recover and publish a frame")
		case <-time.After(5 * time.Millisecond):
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	src.Stop(stopCtx)

	if collector.CaptureErrors() != 2 {
		t.Errorf("Expected 2 capture errors, got %d", collector.CaptureErrors())
	}
}
