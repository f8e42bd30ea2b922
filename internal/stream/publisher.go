package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

// Config contains MJPEG streaming parameters
type Config struct {
	MaxFPS           float64
	Width            int
	Height           int
	JPEGQuality      int
	SkipPeriod       int
	StalenessWindow  time.Duration
	SubscriberBuffer int
}

func (c *Config) setDefaults() {
	if c.MaxFPS <= 0 {
		c.MaxFPS = 15
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = 70
	}
	if c.StalenessWindow == 0 {
		c.StalenessWindow = 2 * time.Second
	}
	if c.SubscriberBuffer < 1 {
		c.SubscriberBuffer = 2
	}
	if c.SubscriberBuffer > 3 {
		c.SubscriberBuffer = 3
	}
}

// Publisher fans encoded frames out to stream subscribers at a capped
// rate. It prefers a recent annotated frame over the raw one and
// delivers through small bounded per-subscriber queues, dropping the
// oldest queued frame when a subscriber falls behind. A slow client
// never slows the encoder or other subscribers.
type Publisher struct {
	*service.ServiceBase

	config    Config
	raw       *video.FrameCache
	annotated *video.FrameCache
	skip      *video.SkipPolicy

	mu          sync.RWMutex
	subscribers map[string]chan []byte

	stopCh chan struct{}
	doneCh chan struct{}

	lastSequence  uint64
	lastAnnotated bool
	lastEncoded   []byte
}

// NewPublisher creates a stream publisher
func NewPublisher(config Config, raw, annotated *video.FrameCache, log *logger.Logger) *Publisher {
	config.setDefaults()
	return &Publisher{
		ServiceBase: service.NewServiceBase("stream-publisher", log),
		config:      config,
		raw:         raw,
		annotated:   annotated,
		skip:        video.NewSkipPolicy(config.SkipPeriod),
		subscribers: make(map[string]chan []byte),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the publishing loop
func (p *Publisher) Start(ctx context.Context) error {
	p.LogInfo("Starting stream publisher",
		"max_fps", p.config.MaxFPS,
		"quality", p.config.JPEGQuality,
		"subscriber_buffer", p.config.SubscriberBuffer)

	p.GetStatus().SetStatus(service.StatusRunning)
	go p.run(ctx)
	return nil
}

// Stop halts the publishing loop and closes all subscriber channels
func (p *Publisher) Stop(ctx context.Context) error {
	close(p.stopCh)
	select {
	case <-p.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	for id, ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, id)
	}
	p.mu.Unlock()

	p.GetStatus().SetStatus(service.StatusStopped)
	p.LogInfo("Stream publisher stopped")
	return nil
}

// Subscribe registers a new stream consumer. The returned channel is
// closed on Unsubscribe or when the publisher stops.
func (p *Publisher) Subscribe() (string, <-chan []byte) {
	id := uuid.New().String()
	ch := make(chan []byte, p.config.SubscriberBuffer)

	p.mu.Lock()
	p.subscribers[id] = ch
	count := len(p.subscribers)
	p.mu.Unlock()

	p.LogInfo("Stream subscriber added", "subscriber_id", id, "subscribers", count)
	return id, ch
}

// Unsubscribe removes a stream consumer
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	ch, ok := p.subscribers[id]
	if ok {
		close(ch)
		delete(p.subscribers, id)
	}
	count := len(p.subscribers)
	p.mu.Unlock()

	if ok {
		p.LogInfo("Stream subscriber removed", "subscriber_id", id, "subscribers", count)
	}
}

// SubscriberCount returns the number of active subscribers
func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.doneCh)

	interval := time.Duration(float64(time.Second) / p.config.MaxFPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.skip.Allow() {
				p.publishOnce()
			}
		}
	}
}

// publishOnce encodes the newest frame and fans it out. Encoding
// happens once per tick regardless of subscriber count.
func (p *Publisher) publishOnce() {
	p.mu.RLock()
	idle := len(p.subscribers) == 0
	p.mu.RUnlock()
	if idle {
		return
	}

	frame, annotated := p.selectFrame()
	if frame == nil {
		return
	}

	// Re-sending the previous encode keeps the stream alive without
	// paying for a decode of an unchanged frame.
	if frame.Sequence == p.lastSequence && annotated == p.lastAnnotated && p.lastEncoded != nil {
		p.deliver(p.lastEncoded)
		return
	}

	data, err := p.encode(frame)
	if err != nil {
		p.LogWarn("Failed to encode stream frame", "sequence", frame.Sequence, "error", err.Error())
		return
	}

	p.lastSequence = frame.Sequence
	p.lastAnnotated = annotated
	p.lastEncoded = data
	p.deliver(data)
}

// selectFrame prefers an annotated frame captured within the staleness
// window, falling back to the raw cache.
func (p *Publisher) selectFrame() (*video.Frame, bool) {
	if f, ok := p.annotated.Fetch(); ok && f.Age() <= p.config.StalenessWindow {
		return f, true
	}
	if f, ok := p.raw.Fetch(); ok {
		return f, false
	}
	return nil, false
}

func (p *Publisher) encode(frame *video.Frame) ([]byte, error) {
	if p.config.Width <= 0 && p.config.Height <= 0 {
		return frame.Data, nil
	}
	resized, err := video.Resize(frame, p.config.Width, p.config.Height, p.config.JPEGQuality)
	if err != nil {
		return nil, err
	}
	return resized.Data, nil
}

// deliver pushes the encoded frame to every subscriber, dropping the
// oldest queued frame for any subscriber whose queue is full.
func (p *Publisher) deliver(data []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.subscribers {
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
}
