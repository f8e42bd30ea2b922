package incident

import (
	"context"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/detector"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

// State represents the aggregator state
type State string

const (
	StateIdle     State = "idle"
	StateOpen     State = "open"
	StateFlushing State = "flushing"
)

// DetectionEvent carries one frame's filtered weapon detections
type DetectionEvent struct {
	Sequence   uint64
	Timestamp  time.Time
	Detections []detector.Detection
	Frame      *video.Frame
}

// Screenshot is one accepted capture within an incident
type Screenshot struct {
	Path      string
	Timestamp time.Time
	Classes   []string
}

// Incident accumulates accepted screenshots until it is flushed
type Incident struct {
	ID           string
	StartedAt    time.Time
	LastAccepted time.Time
	Screenshots  []Screenshot
	classes      map[string]bool
	classOrder   []string
}

func (i *Incident) addClasses(classes []string) {
	for _, c := range classes {
		if !i.classes[c] {
			i.classes[c] = true
			i.classOrder = append(i.classOrder, c)
		}
	}
}

// Classes returns the union of detected classes in first-seen order
func (i *Incident) Classes() []string {
	out := make([]string, len(i.classOrder))
	copy(out, i.classOrder)
	return out
}

// Record is the finalized incident handed to persistence and notification
type Record struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	ScreenshotCount int       `json:"screenshot_count"`
	WeaponClasses   []string  `json:"weapon_classes"`
	ScreenshotPaths []string  `json:"screenshot_paths"`
	AIAnalysis      string    `json:"ai_analysis,omitempty"`
	Degraded        bool      `json:"degraded"`
}

// ScreenshotWriter stores an accepted frame and returns its path
type ScreenshotWriter interface {
	WriteScreenshot(incidentID string, index int, classes []string, frame *video.Frame) (string, error)
}

// Persister stores finalized incident records
type Persister interface {
	SaveIncident(ctx context.Context, record *Record) error
}

// Analyzer produces an optional text analysis for a finalized incident
type Analyzer interface {
	AnalyzeIncident(ctx context.Context, record *Record) (string, error)
}

// Notifier is invoked after an incident is finalized, fire and forget
type Notifier interface {
	IncidentFlushed(record *Record)
}
