package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"

	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
)

// RTSPProbe keeps a lightweight session open against an RTSP camera
// and watches packet flow. Frame grabs go through ffmpeg separately;
// the probe exists to notice a dead camera quickly and to publish
// connect/disconnect events for the rest of the system.
type RTSPProbe struct {
	*service.ServiceBase
	url               string
	reconnectInterval time.Duration
	timeout           time.Duration

	client       *gortsplib.Client
	connected    bool
	lastPacket   time.Time
	packetCount  uint64
	healthStatus string
	mu           sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// RTSPProbeConfig contains probe configuration
type RTSPProbeConfig struct {
	URL               string
	Timeout           time.Duration
	ReconnectInterval time.Duration
}

// NewRTSPProbe creates a new RTSP connection probe
func NewRTSPProbe(cfg RTSPProbeConfig, log *logger.Logger) *RTSPProbe {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &RTSPProbe{
		ServiceBase:       service.NewServiceBase("rtsp-probe", log),
		url:               cfg.URL,
		timeout:           cfg.Timeout,
		reconnectInterval: cfg.ReconnectInterval,
		healthStatus:      "disconnected",
	}
}

// Start starts the probe
func (p *RTSPProbe) Start(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusStarting)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.LogInfo("Starting RTSP probe", "url", p.url)

	go p.run()

	p.GetStatus().SetStatus(service.StatusRunning)
	return nil
}

// Stop stops the probe
func (p *RTSPProbe) Stop(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusStopping)
	p.LogInfo("Stopping RTSP probe", "url", p.url)

	if p.cancel != nil {
		p.cancel()
	}

	p.mu.Lock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	p.connected = false
	p.mu.Unlock()

	p.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

// run manages the connection lifecycle
func (p *RTSPProbe) run() {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			if err := p.connect(); err != nil {
				p.LogError("RTSP connection failed", err, "url", p.url)
				p.mu.Lock()
				p.connected = false
				p.healthStatus = "error"
				p.mu.Unlock()

				p.PublishEvent(service.EventTypeCameraDisconnected, map[string]interface{}{
					"url":    p.url,
					"reason": err.Error(),
				})

				select {
				case <-p.ctx.Done():
					return
				case <-time.After(p.reconnectInterval):
				}
				continue
			}

			p.monitorHealth()
		}
	}
}

// connect establishes the RTSP session and subscribes to RTP packets
func (p *RTSPProbe) connect() error {
	p.LogInfo("Connecting to RTSP stream", "url", p.url)

	u, err := base.ParseURL(p.url)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	client := &gortsplib.Client{
		ReadTimeout: p.timeout,
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		return fmt.Errorf("failed to describe stream: %w", err)
	}

	var videoFormat *format.H264
	var videoMedia *description.Media
	for _, media := range desc.Medias {
		for _, forma := range media.Formats {
			if h264, ok := forma.(*format.H264); ok {
				videoFormat = h264
				videoMedia = media
				break
			}
		}
		if videoFormat != nil {
			break
		}
	}

	if videoFormat == nil {
		return fmt.Errorf("H.264 format not found in stream")
	}

	if err := client.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		return fmt.Errorf("failed to setup stream: %w", err)
	}

	client.OnPacketRTP(videoMedia, videoFormat, func(pkt *rtp.Packet) {
		p.mu.Lock()
		p.lastPacket = time.Now()
		p.packetCount++
		p.mu.Unlock()
	})

	if _, err := client.Play(nil); err != nil {
		return fmt.Errorf("failed to play stream: %w", err)
	}

	p.mu.Lock()
	p.client = client
	p.connected = true
	p.healthStatus = "connected"
	p.mu.Unlock()

	p.LogInfo("RTSP stream connected", "url", p.url)
	p.PublishEvent(service.EventTypeCameraConnected, map[string]interface{}{
		"url": p.url,
	})

	go func() {
		err := client.Wait()
		if err != nil {
			p.LogError("RTSP stream error", err, "url", p.url)
		}
		p.mu.Lock()
		p.connected = false
		p.healthStatus = "disconnected"
		p.mu.Unlock()
	}()

	return nil
}

// monitorHealth watches packet flow on the open session
func (p *RTSPProbe) monitorHealth() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.mu.RLock()
			lastPacket := p.lastPacket
			connected := p.connected
			p.mu.RUnlock()

			if !connected {
				return
			}

			if time.Since(lastPacket) > p.timeout {
				p.LogWarn("No RTP packets within timeout", "url", p.url, "timeout", p.timeout)
				p.mu.Lock()
				p.healthStatus = "degraded"
				p.mu.Unlock()

				p.PublishEvent(service.EventTypeCameraDisconnected, map[string]interface{}{
					"url":    p.url,
					"reason": "no_packets",
				})
			} else {
				p.mu.Lock()
				p.healthStatus = "healthy"
				p.mu.Unlock()
			}
		}
	}
}

// IsConnected returns whether the session is up
func (p *RTSPProbe) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// GetHealthStatus returns the probe's view of stream health
func (p *RTSPProbe) GetHealthStatus() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthStatus
}

// GetPacketCount returns the number of RTP packets seen
func (p *RTSPProbe) GetPacketCount() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.packetCount
}

// GetLastPacketTime returns when the last RTP packet arrived
func (p *RTSPProbe) GetLastPacketTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPacket
}
