package stats

import (
	"sync"
	"time"
)

// System status values reported on the API
const (
	StatusInitializing = "initializing"
	StatusMonitoring   = "monitoring"
	StatusThreat       = "threat_detected"
	StatusCameraError  = "camera_error"
)

// Threat is a currently visible detection
type Threat struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        [4]int  `json:"box"`
}

// Snapshot is the point-in-time view served on the status API
type Snapshot struct {
	Threats         []Threat  `json:"threats"`
	Count           int       `json:"count"`
	FPS             float64   `json:"fps"`
	FrameCount      uint64    `json:"frame_count"`
	TotalDetections uint64    `json:"total_detections"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}

// Collector aggregates runtime counters from the capture and
// detection loops. All methods are safe for concurrent use.
type Collector struct {
	mu              sync.RWMutex
	startTime       time.Time
	frameCount      uint64
	totalDetections uint64
	captureErrors   uint64
	status          string
	threats         []Threat
	lastFrame       time.Time

	// rolling FPS window
	windowStart time.Time
	windowCount int
	fps         float64
}

// NewCollector creates a collector in the initializing state
func NewCollector() *Collector {
	now := time.Now()
	return &Collector{
		startTime:   now,
		windowStart: now,
		status:      StatusInitializing,
	}
}

// RecordFrame counts a captured frame and updates the FPS estimate
func (c *Collector) RecordFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frameCount++
	c.windowCount++
	c.lastFrame = time.Now()

	if c.status == StatusInitializing {
		c.status = StatusMonitoring
	}

	elapsed := time.Since(c.windowStart)
	if elapsed >= time.Second {
		c.fps = float64(c.windowCount) / elapsed.Seconds()
		c.windowStart = time.Now()
		c.windowCount = 0
	}
}

// RecordDetections adds to the running total of weapon detections
func (c *Collector) RecordDetections(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDetections += uint64(n)
}

// SetThreats replaces the currently visible threats
func (c *Collector) SetThreats(threats []Threat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threats = threats
	if len(threats) > 0 {
		c.status = StatusThreat
	}
}

// ClearThreats removes visible threats and returns to monitoring
func (c *Collector) ClearThreats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threats = nil
	if c.status == StatusThreat {
		c.status = StatusMonitoring
	}
}

// SetStatus forces the system status
func (c *Collector) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// RecordCaptureError counts a failed frame grab
func (c *Collector) RecordCaptureError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captureErrors++
}

// CaptureErrors returns the number of failed grabs
func (c *Collector) CaptureErrors() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.captureErrors
}

// Uptime returns time since the collector was created
func (c *Collector) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}

// LastFrameTime returns when the last frame was recorded
func (c *Collector) LastFrameTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastFrame
}

// GetSnapshot returns the current state for the status API
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	threats := make([]Threat, len(c.threats))
	copy(threats, c.threats)

	return Snapshot{
		Threats:         threats,
		Count:           len(threats),
		FPS:             c.fps,
		FrameCount:      c.frameCount,
		TotalDetections: c.totalDetections,
		Status:          c.status,
		Timestamp:       time.Now(),
	}
}
