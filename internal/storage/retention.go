package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
)

// RetentionPolicy deletes aged screenshots and frees disk space. It
// works directly off the filesystem: a screenshot's age is its file
// modification time, so the sweep also covers files left behind by
// earlier runs.
type RetentionPolicy struct {
	retentionDays int
	diskMonitor   *DiskMonitor
	dir           string
	logger        *logger.Logger
	mu            sync.Mutex
	enforcing     bool
}

// NewRetentionPolicy creates a new retention policy
func NewRetentionPolicy(dir string, retentionDays int, diskMonitor *DiskMonitor, log *logger.Logger) (*RetentionPolicy, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}

	return &RetentionPolicy{
		retentionDays: retentionDays,
		diskMonitor:   diskMonitor,
		dir:           dir,
		logger:        log,
	}, nil
}

// Enforce runs one retention sweep
func (r *RetentionPolicy) Enforce(ctx context.Context) error {
	r.mu.Lock()
	if r.enforcing {
		r.mu.Unlock()
		return fmt.Errorf("retention sweep already running")
	}
	r.enforcing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.enforcing = false
		r.mu.Unlock()
	}()

	if err := r.deleteExpiredFiles(ctx); err != nil {
		r.logger.Warn("Failed to delete expired files", "error", err)
	}

	if err := r.freeDiskSpace(ctx); err != nil {
		r.logger.Warn("Failed to free disk space", "error", err)
	}

	return nil
}

type agedFile struct {
	path    string
	modTime time.Time
}

// listFiles returns incident artifacts in the screenshots directory,
// oldest first
func (r *RetentionPolicy) listFiles() ([]agedFile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshots directory: %w", err)
	}

	var files []agedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jpg") && !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, agedFile{
			path:    filepath.Join(r.dir, name),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	return files, nil
}

// deleteExpiredFiles deletes files older than the retention period
func (r *RetentionPolicy) deleteExpiredFiles(ctx context.Context) error {
	expirationTime := time.Now().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)

	files, err := r.listFiles()
	if err != nil {
		return err
	}

	deletedCount := 0
	for _, file := range files {
		if !file.modTime.Before(expirationTime) {
			break
		}
		if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to delete expired file", "path", file.path, "error", err)
			continue
		}
		deletedCount++
	}

	if deletedCount > 0 {
		r.logger.Info("Deleted expired screenshots", "count", deletedCount)
	}

	return nil
}

// freeDiskSpace deletes oldest files until disk usage drops below the
// configured threshold
func (r *RetentionPolicy) freeDiskSpace(ctx context.Context) error {
	if r.diskMonitor == nil {
		return nil
	}

	full, err := r.diskMonitor.IsDiskFull(ctx)
	if err != nil {
		return err
	}
	if !full {
		return nil
	}

	files, err := r.listFiles()
	if err != nil {
		return err
	}

	deletedCount := 0
	for _, file := range files {
		if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to delete file", "path", file.path, "error", err)
			continue
		}
		deletedCount++

		// Usage is cached, re-check every few deletions
		if deletedCount%5 == 0 {
			r.diskMonitor.mu.Lock()
			r.diskMonitor.cachedUsage = nil
			r.diskMonitor.mu.Unlock()

			full, err := r.diskMonitor.IsDiskFull(ctx)
			if err != nil {
				return err
			}
			if !full {
				break
			}
		}
	}

	if deletedCount > 0 {
		r.logger.Warn("Freed disk space by deleting old screenshots", "count", deletedCount)
	}

	return nil
}
