package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/incident"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

// Store manages incident screenshots on local disk
type Store struct {
	logger         *logger.Logger
	screenshotsDir string
	mu             sync.RWMutex
	written        uint64
}

// StoreConfig contains screenshot store configuration
type StoreConfig struct {
	ScreenshotsDir string
}

// NewStore creates a screenshot store
func NewStore(config StoreConfig, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(config.ScreenshotsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshots directory: %w", err)
	}

	log.Info("Screenshot store initialized", "screenshots_dir", config.ScreenshotsDir)

	return &Store{
		logger:         log,
		screenshotsDir: config.ScreenshotsDir,
	}, nil
}

// Dir returns the screenshots directory path
func (s *Store) Dir() string {
	return s.screenshotsDir
}

// WriteScreenshot stores a detection frame for an incident and returns
// the file path. Filenames carry the incident, sequence within the
// incident, detected classes and capture time, so a directory listing
// is readable without the database.
func (s *Store) WriteScreenshot(incidentID string, index int, classes []string, frame *video.Frame) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := fmt.Sprintf("incident_%s_shot_%03d_%s_%s.jpg",
		shortID(incidentID), index, classLabel(classes),
		frame.Timestamp.Format("20060102_150405"))
	path := filepath.Join(s.screenshotsDir, filename)

	if err := os.WriteFile(path, frame.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	s.written++
	s.logger.Debug("Screenshot written", "path", path, "bytes", len(frame.Data))
	return path, nil
}

// WriteDescription stores a JSON sidecar with the finalized incident
// metadata next to its screenshots
func (s *Store) WriteDescription(record *incident.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal incident description: %w", err)
	}

	path := filepath.Join(s.screenshotsDir,
		fmt.Sprintf("incident_%s_description.json", shortID(record.ID)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write incident description: %w", err)
	}

	return path, nil
}

// ScreenshotFile describes one stored screenshot
type ScreenshotFile struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ListScreenshots returns stored screenshots, newest first
func (s *Store) ListScreenshots() ([]ScreenshotFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.screenshotsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshots directory: %w", err)
	}

	var files []ScreenshotFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, ScreenshotFile{
			Name:      entry.Name(),
			Path:      filepath.Join(s.screenshotsDir, entry.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

// Written returns the number of screenshots written since startup
func (s *Store) Written() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.written
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func classLabel(classes []string) string {
	if len(classes) == 0 {
		return "unknown"
	}
	return strings.Join(classes, "-")
}
