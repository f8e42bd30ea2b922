package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/incident"
	"github.com/sentinelai/sentinel-edge/internal/logger"
)

// DescriptionWriter stores the incident metadata sidecar
type DescriptionWriter interface {
	WriteDescription(record *incident.Record) (string, error)
	Dir() string
}

// Notifier fans a finalized incident out to the configured
// collaborators. Every step is best effort: a failing collaborator is
// logged and the rest still run.
type Notifier struct {
	logger       *logger.Logger
	descriptions DescriptionWriter
	speech       *SpeechClient
	alert        *AlertClient
	timeout      time.Duration
}

// NewNotifier creates an incident notifier. Nil clients are skipped.
func NewNotifier(descriptions DescriptionWriter, speech *SpeechClient, alert *AlertClient, log *logger.Logger) *Notifier {
	return &Notifier{
		logger:       log,
		descriptions: descriptions,
		speech:       speech,
		alert:        alert,
		timeout:      60 * time.Second,
	}
}

// IncidentFlushed handles a finalized incident record
func (n *Notifier) IncidentFlushed(record *incident.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if n.descriptions != nil {
		if path, err := n.descriptions.WriteDescription(record); err != nil {
			n.logger.Warn("Failed to write incident description", "incident_id", record.ID, "error", err)
		} else {
			n.logger.Info("Incident description written", "incident_id", record.ID, "path", path)
		}
	}

	message := alertMessage(record)

	if n.speech != nil {
		if audio, err := n.speech.Synthesize(ctx, message); err != nil {
			n.logger.Warn("Failed to synthesize alert audio", "incident_id", record.ID, "error", err)
		} else {
			n.saveAudio(record, audio)
		}
	}

	if n.alert != nil {
		if err := n.alert.Call(ctx, message); err != nil {
			n.logger.Warn("Failed to place alert call", "incident_id", record.ID, "error", err)
		} else {
			n.logger.Info("Alert call placed", "incident_id", record.ID)
		}
	}
}

func (n *Notifier) saveAudio(record *incident.Record, audio []byte) {
	if n.descriptions == nil || len(audio) == 0 {
		return
	}

	id := record.ID
	if len(id) > 8 {
		id = id[:8]
	}
	path := filepath.Join(n.descriptions.Dir(), fmt.Sprintf("incident_%s_alert.mp3", id))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		n.logger.Warn("Failed to save alert audio", "incident_id", record.ID, "error", err)
		return
	}
	n.logger.Info("Alert audio saved", "incident_id", record.ID, "path", path, "bytes", len(audio))
}

// alertMessage renders the spoken and dialed alert text
func alertMessage(record *incident.Record) string {
	classes := strings.Join(record.WeaponClasses, ", ")
	if classes == "" {
		classes = "a weapon"
	}

	return fmt.Sprintf(
		"Security alert. Detected %s on camera. %d screenshots captured over %.0f seconds.",
		classes, record.ScreenshotCount, record.DurationSeconds)
}
