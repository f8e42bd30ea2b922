package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
)

// Config contains incident aggregation parameters.
//
// QueueSize bounds the event channel, which also buffers events arriving
// while a flush is in progress. A flush blocks the loop for at most
// analyzerTimeout, and cooldown gates the event rate, so the queue must
// hold at least analyzerTimeout/Cooldown events; the default 64 covers
// that with a wide margin. Overflow drops the event and counts it.
type Config struct {
	Cooldown      time.Duration
	BatchSize     int
	IdleTimeout   time.Duration
	CheckInterval time.Duration
	QueueSize     int
}

// analyzerTimeout caps the synchronous analysis call inside flush so a
// stalled collaborator cannot wedge the aggregation loop.
const analyzerTimeout = 30 * time.Second

func (c *Config) setDefaults() {
	if c.Cooldown == 0 {
		c.Cooldown = 3 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 64
	}
}

// Aggregator turns a stream of detection events into discrete incidents.
// Events are debounced by cooldown; an incident closes when it reaches
// BatchSize screenshots or sits idle longer than IdleTimeout. All state
// is owned by the run goroutine; the events channel doubles as the
// buffer for events arriving while a flush is in progress.
type Aggregator struct {
	*service.ServiceBase

	config     Config
	screenshot ScreenshotWriter
	persister  Persister
	analyzer   Analyzer
	notifier   Notifier

	events chan DetectionEvent
	stopCh chan struct{}
	doneCh chan struct{}

	mu           sync.Mutex
	state        State
	current      *Incident
	lastAccepted time.Time
	flushed      uint64
	discarded    uint64

	now func() time.Time
}

// NewAggregator creates an incident aggregator
func NewAggregator(
	config Config,
	screenshot ScreenshotWriter,
	persister Persister,
	analyzer Analyzer,
	notifier Notifier,
	log *logger.Logger,
) *Aggregator {
	config.setDefaults()
	return &Aggregator{
		ServiceBase: service.NewServiceBase("incident-aggregator", log),
		config:      config,
		screenshot:  screenshot,
		persister:   persister,
		analyzer:    analyzer,
		notifier:    notifier,
		events:      make(chan DetectionEvent, config.QueueSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		state:       StateIdle,
		now:         time.Now,
	}
}

// Start begins the aggregation loop
func (a *Aggregator) Start(ctx context.Context) error {
	a.LogInfo("Starting incident aggregator",
		"cooldown", a.config.Cooldown,
		"batch_size", a.config.BatchSize,
		"idle_timeout", a.config.IdleTimeout)

	a.GetStatus().SetStatus(service.StatusRunning)
	go a.run(ctx)
	return nil
}

// Stop force-flushes any open incident and stops the loop
func (a *Aggregator) Stop(ctx context.Context) error {
	close(a.stopCh)
	select {
	case <-a.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.GetStatus().SetStatus(service.StatusStopped)
	a.LogInfo("Incident aggregator stopped", "incidents_flushed", a.Flushed())
	return nil
}

// Submit queues a detection event for aggregation. It never blocks;
// when the queue is full the event is dropped and counted.
func (a *Aggregator) Submit(event DetectionEvent) {
	select {
	case a.events <- event:
	default:
		a.mu.Lock()
		a.discarded++
		a.mu.Unlock()
		a.LogWarn("Event queue full, dropping detection event", "sequence", event.Sequence)
	}
}

// State returns the current aggregator state
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Flushed returns the number of incidents flushed so far
func (a *Aggregator) Flushed() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushed
}

// Discarded returns the number of events dropped on queue overflow
func (a *Aggregator) Discarded() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.discarded
}

func (a *Aggregator) run(ctx context.Context) {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return
		case <-a.stopCh:
			a.shutdown()
			return
		case event := <-a.events:
			a.handleEvent(event)
		case <-ticker.C:
			a.checkIdle()
		}
	}
}

// shutdown drains queued events, then force-flushes any open incident
func (a *Aggregator) shutdown() {
	for {
		select {
		case event := <-a.events:
			a.handleEvent(event)
		default:
			if a.current != nil {
				a.LogInfo("Force-flushing open incident on shutdown",
					"incident_id", a.current.ID,
					"screenshots", len(a.current.Screenshots))
				a.flush()
			}
			return
		}
	}
}

func (a *Aggregator) handleEvent(event DetectionEvent) {
	now := a.now()

	if !a.lastAccepted.IsZero() && now.Sub(a.lastAccepted) < a.config.Cooldown {
		a.LogDebug("Event suppressed by cooldown", "sequence", event.Sequence)
		return
	}

	if a.current == nil {
		a.openIncident(event)
	}

	classes := eventClasses(event)
	index := len(a.current.Screenshots)

	path, err := a.screenshot.WriteScreenshot(a.current.ID, index, classes, event.Frame)
	if err != nil {
		a.LogError("Failed to write screenshot", err,
			"incident_id", a.current.ID, "sequence", event.Sequence)
		return
	}

	a.current.Screenshots = append(a.current.Screenshots, Screenshot{
		Path:      path,
		Timestamp: event.Timestamp,
		Classes:   classes,
	})
	a.current.addClasses(classes)
	a.current.LastAccepted = event.Timestamp

	a.mu.Lock()
	a.lastAccepted = now
	a.mu.Unlock()

	a.LogInfo("Screenshot accepted",
		"incident_id", a.current.ID,
		"count", len(a.current.Screenshots),
		"classes", classes)

	if len(a.current.Screenshots) >= a.config.BatchSize {
		a.flush()
	}
}

func (a *Aggregator) openIncident(event DetectionEvent) {
	a.current = &Incident{
		ID:        uuid.New().String(),
		StartedAt: event.Timestamp,
		classes:   make(map[string]bool),
	}

	a.mu.Lock()
	a.state = StateOpen
	a.mu.Unlock()

	a.LogInfo("Incident opened", "incident_id", a.current.ID, "sequence", event.Sequence)
	a.PublishEvent(service.EventTypeIncidentOpened, map[string]interface{}{
		"incident_id": a.current.ID,
	})
}

func (a *Aggregator) checkIdle() {
	if a.current == nil {
		return
	}
	if a.now().Sub(a.lastAccepted) > a.config.IdleTimeout {
		a.LogInfo("Incident idle timeout reached",
			"incident_id", a.current.ID,
			"screenshots", len(a.current.Screenshots))
		a.flush()
	}
}

// flush finalizes the current incident. Persistence is retried once;
// on continued failure the record is marked degraded and the
// aggregator still returns to idle with the screenshot files intact.
func (a *Aggregator) flush() {
	incident := a.current

	if len(incident.Screenshots) == 0 {
		a.LogWarn("Discarding incident with no screenshots", "incident_id", incident.ID)
		a.current = nil
		a.mu.Lock()
		a.state = StateIdle
		a.lastAccepted = time.Time{}
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	a.state = StateFlushing
	a.mu.Unlock()

	endedAt := incident.LastAccepted
	record := &Record{
		ID:              incident.ID,
		StartedAt:       incident.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(incident.StartedAt).Seconds(),
		ScreenshotCount: len(incident.Screenshots),
		WeaponClasses:   incident.Classes(),
		ScreenshotPaths: screenshotPaths(incident),
	}

	if a.analyzer != nil {
		analysisCtx, cancel := context.WithTimeout(context.Background(), analyzerTimeout)
		analysis, err := a.analyzer.AnalyzeIncident(analysisCtx, record)
		cancel()
		if err != nil {
			a.LogWarn("Incident analysis failed", "incident_id", record.ID, "error", err.Error())
		} else {
			record.AIAnalysis = analysis
		}
	}

	if err := a.persist(record); err != nil {
		record.Degraded = true
		a.LogError("Failed to persist incident, marking degraded", err, "incident_id", record.ID)
		a.PublishEvent(service.EventTypeIncidentDegraded, map[string]interface{}{
			"incident_id": record.ID,
			"error":       err.Error(),
		})
	}

	if a.notifier != nil {
		go a.notifier.IncidentFlushed(record)
	}

	a.PublishEvent(service.EventTypeIncidentFlushed, map[string]interface{}{
		"incident_id":      record.ID,
		"screenshot_count": record.ScreenshotCount,
		"weapon_classes":   record.WeaponClasses,
		"degraded":         record.Degraded,
	})

	a.LogInfo("Incident flushed",
		"incident_id", record.ID,
		"screenshots", record.ScreenshotCount,
		"duration_seconds", record.DurationSeconds,
		"classes", record.WeaponClasses,
		"degraded", record.Degraded)

	a.current = nil

	a.mu.Lock()
	a.state = StateIdle
	a.lastAccepted = time.Time{}
	a.flushed++
	a.mu.Unlock()
}

// persist writes the record with one retry, on a background context
// so a shutdown flush still reaches the database.
func (a *Aggregator) persist(record *Record) error {
	if a.persister == nil {
		return nil
	}

	ctx := context.Background()
	err := a.persister.SaveIncident(ctx, record)
	if err == nil {
		return nil
	}

	a.LogWarn("Incident persistence failed, retrying", "incident_id", record.ID, "error", err.Error())
	if retryErr := a.persister.SaveIncident(ctx, record); retryErr != nil {
		return fmt.Errorf("persistence failed after retry: %w", retryErr)
	}
	return nil
}

func eventClasses(event DetectionEvent) []string {
	seen := make(map[string]bool, len(event.Detections))
	var classes []string
	for _, d := range event.Detections {
		if !seen[d.Class] {
			seen[d.Class] = true
			classes = append(classes, d.Class)
		}
	}
	return classes
}

func screenshotPaths(incident *Incident) []string {
	paths := make([]string, len(incident.Screenshots))
	for i, s := range incident.Screenshots {
		paths[i] = s.Path
	}
	return paths
}
