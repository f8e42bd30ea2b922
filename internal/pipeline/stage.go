package pipeline

import (
	"context"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/detector"
	"github.com/sentinelai/sentinel-edge/internal/incident"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
	"github.com/sentinelai/sentinel-edge/internal/stats"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

// Inferencer runs weapon inference on a frame
type Inferencer interface {
	DetectWithRetry(ctx context.Context, frame *video.Frame, maxRetries int, retryDelay time.Duration) (*detector.InferenceResponse, error)
}

// EventSink receives detection events for incident aggregation
type EventSink interface {
	Submit(event incident.DetectionEvent)
}

// Config contains detection stage parameters
type Config struct {
	Interval    time.Duration
	SkipPeriod  int
	Retries     int
	RetryDelay  time.Duration
	JPEGQuality int
}

func (c *Config) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.SkipPeriod == 0 {
		c.SkipPeriod = 3
	}
	if c.Retries == 0 {
		c.Retries = 1
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = 85
	}
}

// Stage runs weapon detection on the newest captured frame. It paces
// itself against the raw frame cache rather than a queue, so a slow
// detector causes frames to be skipped instead of piling up. Frames
// with weapon hits are annotated and published to a second cache for
// the live stream, and forwarded to the incident aggregator.
type Stage struct {
	*service.ServiceBase

	config    Config
	raw       *video.FrameCache
	annotated *video.FrameCache
	skip      *video.SkipPolicy
	inference Inferencer
	filter    *detector.Filter
	collector *stats.Collector
	sink      EventSink

	stopCh chan struct{}
	doneCh chan struct{}

	lastSequence uint64
}

// NewStage creates a detection stage
func NewStage(
	config Config,
	raw *video.FrameCache,
	annotated *video.FrameCache,
	inference Inferencer,
	filter *detector.Filter,
	collector *stats.Collector,
	sink EventSink,
	log *logger.Logger,
) *Stage {
	config.setDefaults()
	return &Stage{
		ServiceBase: service.NewServiceBase("detection-stage", log),
		config:      config,
		raw:         raw,
		annotated:   annotated,
		skip:        video.NewSkipPolicy(config.SkipPeriod),
		inference:   inference,
		filter:      filter,
		collector:   collector,
		sink:        sink,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the detection loop
func (s *Stage) Start(ctx context.Context) error {
	s.LogInfo("Starting detection stage",
		"interval", s.config.Interval,
		"skip_period", s.config.SkipPeriod)

	s.GetStatus().SetStatus(service.StatusRunning)
	go s.run(ctx)
	return nil
}

// Stop halts the detection loop
func (s *Stage) Stop(ctx context.Context) error {
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.GetStatus().SetStatus(service.StatusStopped)
	s.LogInfo("Detection stage stopped")
	return nil
}

func (s *Stage) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.skip.Allow() {
				s.cycle(ctx)
			}
		}
	}
}

// cycle processes the newest frame once. Detector failures count as
// "no detections" for that frame and never stop the loop.
func (s *Stage) cycle(ctx context.Context) {
	frame, ok := s.raw.Fetch()
	if !ok {
		return
	}
	if frame.Sequence == s.lastSequence {
		return
	}
	s.lastSequence = frame.Sequence

	resp, err := s.inference.DetectWithRetry(ctx, frame, s.config.Retries, s.config.RetryDelay)
	if err != nil {
		s.LogWarn("Inference failed, treating as no detections",
			"sequence", frame.Sequence, "error", err.Error())
		s.PublishEvent(service.EventTypeDetectorOffline, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	detections := s.filter.Apply(resp)
	if len(detections) == 0 {
		s.collector.ClearThreats()
		return
	}

	s.collector.RecordDetections(len(detections))
	s.collector.SetThreats(toThreats(detections))
	s.PublishEvent(service.EventTypeThreatDetected, map[string]interface{}{
		"sequence": frame.Sequence,
		"count":    len(detections),
		"classes":  detector.Classes(detections),
	})

	annotated, err := video.Annotate(frame, toAnnotations(detections), s.config.JPEGQuality)
	if err != nil {
		s.LogError("Failed to annotate frame", err, "sequence", frame.Sequence)
	} else {
		s.annotated.Publish(annotated)
	}

	s.sink.Submit(incident.DetectionEvent{
		Sequence:   frame.Sequence,
		Timestamp:  frame.Timestamp,
		Detections: detections,
		Frame:      pickEventFrame(frame, annotated, err),
	})
}

// pickEventFrame prefers the annotated frame for incident screenshots
func pickEventFrame(raw, annotated *video.Frame, annotateErr error) *video.Frame {
	if annotateErr != nil || annotated == nil {
		return raw
	}
	return annotated
}

func toThreats(detections []detector.Detection) []stats.Threat {
	threats := make([]stats.Threat, len(detections))
	for i, d := range detections {
		threats[i] = stats.Threat{
			Class:      d.Class,
			Confidence: d.Confidence,
			Box:        [4]int{d.X1, d.Y1, d.X2, d.Y2},
		}
	}
	return threats
}

func toAnnotations(detections []detector.Detection) []video.Annotation {
	annotations := make([]video.Annotation, len(detections))
	for i, d := range detections {
		annotations[i] = video.Annotation{
			Box:        video.Box{X1: d.X1, Y1: d.Y1, X2: d.X2, Y2: d.Y2},
			Label:      d.Class,
			Confidence: d.Confidence,
		}
	}
	return annotations
}
