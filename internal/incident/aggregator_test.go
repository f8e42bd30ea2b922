package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/detector"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

type stubWriter struct {
	fail  bool
	calls int
}

func (w *stubWriter) WriteScreenshot(incidentID string, index int, classes []string, frame *video.Frame) (string, error) {
	w.calls++
	if w.fail {
		return "", errors.New("disk full")
	}
	return fmt.Sprintf("/data/screenshots/%s_%03d.jpg", incidentID, index), nil
}

type stubPersister struct {
	mu       sync.Mutex
	failures int
	calls    int
	records  []*Record
}

func (p *stubPersister) SaveIncident(ctx context.Context, record *Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("database locked")
	}
	p.records = append(p.records, record)
	return nil
}

func (p *stubPersister) saved() []*Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Record(nil), p.records...)
}

type stubAnalyzer struct {
	analysis string
	err      error
}

func (s *stubAnalyzer) AnalyzeIncident(ctx context.Context, record *Record) (string, error) {
	return s.analysis, s.err
}

type stubNotifier struct {
	flushed chan *Record
}

func (n *stubNotifier) IncidentFlushed(record *Record) {
	n.flushed <- record
}

// testAggregator builds an unstarted aggregator with a manual clock.
// Tests drive handleEvent/checkIdle directly, matching the single
// goroutine ownership of the run loop.
func testAggregator(config Config, writer ScreenshotWriter, persister Persister) (*Aggregator, *time.Time) {
	agg := NewAggregator(config, writer, persister, nil, nil, logger.NewNopLogger())
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return clock }
	return agg, &clock
}

func eventAt(clock time.Time, seq uint64, classes ...string) DetectionEvent {
	detections := make([]detector.Detection, len(classes))
	for i, c := range classes {
		detections[i] = detector.Detection{Class: c, Confidence: 0.9}
	}
	return DetectionEvent{
		Sequence:   seq,
		Timestamp:  clock,
		Detections: detections,
		Frame:      &video.Frame{Data: []byte("jpeg"), Timestamp: clock, Sequence: seq},
	}
}

func TestAggregator_CooldownDebounce(t *testing.T) {
	writer := &stubWriter{}
	persister := &stubPersister{}
	agg, clock := testAggregator(Config{Cooldown: 2 * time.Second, BatchSize: 100}, writer, persister)

	start := *clock
	for _, offset := range []time.Duration{0, time.Second, 3 * time.Second, 5 * time.Second} {
		*clock = start.Add(offset)
		agg.handleEvent(eventAt(*clock, uint64(offset/time.Millisecond), "pistol"))
	}

	if agg.current == nil {
		t.Fatal("Expected an open incident")
	}
	if got := len(agg.current.Screenshots); got != 3 {
		t.Errorf("Expected 3 accepted screenshots (t=0,3,5), got %d", got)
	}
	if writer.calls != 3 {
		t.Errorf("Expected 3 screenshot writes, got %d", writer.calls)
	}
}

func TestAggregator_BatchSizeFlush(t *testing.T) {
	persister := &stubPersister{}
	agg, clock := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 3}, &stubWriter{}, persister)

	for i := 0; i < 3; i++ {
		*clock = clock.Add(10 * time.Millisecond)
		agg.handleEvent(eventAt(*clock, uint64(i), "knife"))
	}

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Expected 1 flushed incident, got %d", len(records))
	}
	if records[0].ScreenshotCount != 3 {
		t.Errorf("Expected screenshot count 3, got %d", records[0].ScreenshotCount)
	}
	if agg.State() != StateIdle {
		t.Errorf("Expected idle state after flush, got %s", agg.State())
	}
	if agg.current != nil {
		t.Error("Current incident should be cleared after flush")
	}
}

func TestAggregator_NextIncidentNotDebouncedByPrevious(t *testing.T) {
	persister := &stubPersister{}
	agg, clock := testAggregator(Config{Cooldown: 10 * time.Second, BatchSize: 1}, &stubWriter{}, persister)

	agg.handleEvent(eventAt(*clock, 1, "pistol"))

	// Flush resets the cooldown clock, so an immediate follow-up
	// event opens a fresh incident.
	*clock = clock.Add(time.Second)
	agg.handleEvent(eventAt(*clock, 2, "pistol"))

	records := persister.saved()
	if len(records) != 2 {
		t.Fatalf("Expected 2 flushed incidents, got %d", len(records))
	}
	if records[0].ID == records[1].ID {
		t.Error("Incidents should have distinct IDs")
	}
}

func TestAggregator_IdleTimeoutFlush(t *testing.T) {
	persister := &stubPersister{}
	agg, clock := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 100, IdleTimeout: 5 * time.Second}, &stubWriter{}, persister)

	agg.handleEvent(eventAt(*clock, 1, "rifle"))

	*clock = clock.Add(4 * time.Second)
	agg.checkIdle()
	if len(persister.saved()) != 0 {
		t.Fatal("Incident should stay open before idle timeout")
	}

	*clock = clock.Add(2 * time.Second)
	agg.checkIdle()

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Expected 1 flushed incident after idle timeout, got %d", len(records))
	}
	if records[0].ScreenshotCount != 1 {
		t.Errorf("Expected screenshot count 1, got %d", records[0].ScreenshotCount)
	}
}

func TestAggregator_ShutdownForceFlush(t *testing.T) {
	persister := &stubPersister{}
	agg, clock := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 7}, &stubWriter{}, persister)

	for i := 0; i < 3; i++ {
		*clock = clock.Add(10 * time.Millisecond)
		agg.handleEvent(eventAt(*clock, uint64(i), "pistol"))
	}

	agg.shutdown()

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 flushed incident on shutdown, got %d", len(records))
	}
	if records[0].ScreenshotCount != 3 {
		t.Errorf("Expected screenshot count 3, got %d", records[0].ScreenshotCount)
	}
}

func TestAggregator_ClassUnion(t *testing.T) {
	persister := &stubPersister{}
	agg, clock := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 3}, &stubWriter{}, persister)

	*clock = clock.Add(10 * time.Millisecond)
	agg.handleEvent(eventAt(*clock, 1, "pistol"))
	*clock = clock.Add(10 * time.Millisecond)
	agg.handleEvent(eventAt(*clock, 2, "knife", "pistol"))
	*clock = clock.Add(10 * time.Millisecond)
	agg.handleEvent(eventAt(*clock, 3, "rifle"))

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Expected 1 flushed incident, got %d", len(records))
	}

	expected := []string{"pistol", "knife", "rifle"}
	if len(records[0].WeaponClasses) != len(expected) {
		t.Fatalf("Expected classes %v, got %v", expected, records[0].WeaponClasses)
	}
	for i, c := range expected {
		if records[0].WeaponClasses[i] != c {
			t.Errorf("Expected class %s at position %d, got %s", c, i, records[0].WeaponClasses[i])
		}
	}
}

func TestAggregator_PersistenceRetrySucceeds(t *testing.T) {
	persister := &stubPersister{failures: 1}
	agg, _ := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 1}, &stubWriter{}, persister)

	agg.handleEvent(eventAt(agg.now(), 1, "pistol"))

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Expected 1 persisted incident after retry, got %d", len(records))
	}
	if records[0].Degraded {
		t.Error("Incident should not be degraded when the retry succeeds")
	}
	if persister.calls != 2 {
		t.Errorf("Expected 2 persistence attempts, got %d", persister.calls)
	}
}

func TestAggregator_DegradedOnPersistenceFailure(t *testing.T) {
	persister := &stubPersister{failures: 2}
	agg, _ := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 1}, &stubWriter{}, persister)

	agg.handleEvent(eventAt(agg.now(), 1, "pistol"))

	if len(persister.saved()) != 0 {
		t.Error("Nothing should be persisted when both attempts fail")
	}
	if persister.calls != 2 {
		t.Errorf("Expected 2 persistence attempts, got %d", persister.calls)
	}
	if agg.State() != StateIdle {
		t.Errorf("Aggregator should return to idle despite persistence failure, got %s", agg.State())
	}
	if agg.Flushed() != 1 {
		t.Errorf("Degraded flush still counts, got %d", agg.Flushed())
	}
}

func TestAggregator_ScreenshotWriteFailure(t *testing.T) {
	writer := &stubWriter{fail: true}
	persister := &stubPersister{}
	agg, clock := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 1, IdleTimeout: time.Second}, writer, persister)

	agg.handleEvent(eventAt(*clock, 1, "pistol"))

	if agg.current == nil {
		t.Fatal("Incident should be open even though the write failed")
	}
	if len(agg.current.Screenshots) != 0 {
		t.Errorf("Failed write should not count as a screenshot, got %d", len(agg.current.Screenshots))
	}

	// The empty incident is discarded on idle timeout, never persisted.
	*clock = clock.Add(2 * time.Second)
	agg.checkIdle()

	if len(persister.saved()) != 0 {
		t.Error("Empty incident should not be persisted")
	}
	if agg.State() != StateIdle {
		t.Errorf("Expected idle state, got %s", agg.State())
	}
}

func TestAggregator_AnalyzerResult(t *testing.T) {
	persister := &stubPersister{}
	agg, _ := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 1}, &stubWriter{}, persister)
	agg.analyzer = &stubAnalyzer{analysis: "armed person near entrance"}

	agg.handleEvent(eventAt(agg.now(), 1, "pistol"))

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Expected 1 flushed incident, got %d", len(records))
	}
	if records[0].AIAnalysis != "armed person near entrance" {
		t.Errorf("Expected analysis text on the record, got %q", records[0].AIAnalysis)
	}
}

func TestAggregator_AnalyzerFailureNonFatal(t *testing.T) {
	persister := &stubPersister{}
	agg, _ := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 1}, &stubWriter{}, persister)
	agg.analyzer = &stubAnalyzer{err: errors.New("model unavailable")}

	agg.handleEvent(eventAt(agg.now(), 1, "pistol"))

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Analyzer failure should not block the flush, got %d records", len(records))
	}
	if records[0].AIAnalysis != "" {
		t.Errorf("Expected empty analysis, got %q", records[0].AIAnalysis)
	}
	if records[0].Degraded {
		t.Error("Analyzer failure alone should not mark the incident degraded")
	}
}

func TestAggregator_NotifierInvoked(t *testing.T) {
	persister := &stubPersister{}
	notifier := &stubNotifier{flushed: make(chan *Record, 1)}
	agg, _ := testAggregator(Config{Cooldown: time.Millisecond, BatchSize: 1}, &stubWriter{}, persister)
	agg.notifier = notifier

	agg.handleEvent(eventAt(agg.now(), 1, "knife"))

	select {
	case record := <-notifier.flushed:
		if record.ScreenshotCount != 1 {
			t.Errorf("Expected screenshot count 1, got %d", record.ScreenshotCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Notifier was not invoked")
	}
}

func TestAggregator_SubmitThroughRunLoop(t *testing.T) {
	persister := &stubPersister{}
	agg := NewAggregator(
		Config{Cooldown: time.Millisecond, BatchSize: 2, QueueSize: 16},
		&stubWriter{}, persister, nil, nil, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agg.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	agg.Submit(eventAt(time.Now(), 1, "pistol"))
	time.Sleep(20 * time.Millisecond)
	agg.Submit(eventAt(time.Now(), 2, "pistol"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(persister.saved()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := agg.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	records := persister.saved()
	if len(records) != 1 {
		t.Fatalf("Expected 1 flushed incident, got %d", len(records))
	}
	if records[0].ScreenshotCount != 2 {
		t.Errorf("Expected screenshot count 2, got %d", records[0].ScreenshotCount)
	}
}

type blockingAnalyzer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAnalyzer) AnalyzeIncident(ctx context.Context, record *Record) (string, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return "analysis", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestAggregator_MidFlushEventsBuffered(t *testing.T) {
	persister := &stubPersister{}
	analyzer := &blockingAnalyzer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	agg := NewAggregator(
		Config{Cooldown: time.Millisecond, BatchSize: 1, QueueSize: 16},
		&stubWriter{}, persister, analyzer, nil, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := agg.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	agg.Submit(eventAt(time.Now(), 1, "pistol"))

	// First flush is now blocked inside the analyzer call; an event
	// arriving here must queue, not drop.
	<-analyzer.entered
	agg.Submit(eventAt(time.Now(), 2, "rifle"))
	close(analyzer.release)

	// The second incident's flush enters the analyzer too.
	select {
	case <-analyzer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Buffered event did not open a second incident")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(persister.saved()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := agg.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	records := persister.saved()
	if len(records) != 2 {
		t.Fatalf("Expected 2 flushed incidents, got %d", len(records))
	}
	if records[0].ID == records[1].ID {
		t.Error("Mid-flush event should open a distinct incident")
	}
	if records[1].WeaponClasses[0] != "rifle" {
		t.Errorf("Expected second incident to carry the buffered event's class, got %v", records[1].WeaponClasses)
	}
	if got := agg.Discarded(); got != 0 {
		t.Errorf("Expected no dropped events, got %d", got)
	}
}
