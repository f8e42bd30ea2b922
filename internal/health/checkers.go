package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseChecker checks database connectivity
type DatabaseChecker struct {
	dbPath string
}

func NewDatabaseChecker(dbPath string) *DatabaseChecker {
	return &DatabaseChecker{dbPath: dbPath}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if c.dbPath == "" {
		check.Status = StatusDegraded
		check.Message = "Database path not configured"
		return check
	}

	if _, err := os.Stat(c.dbPath); os.IsNotExist(err) {
		// Database file doesn't exist yet - this is OK for first run
		check.Status = StatusHealthy
		check.Message = "Database file will be created on first use"
		check.Details["file_exists"] = false
		return check
	}

	db, err := sql.Open("sqlite3", c.dbPath)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Failed to open database: %v", err)
		return check
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Database connection OK"
	check.Details["file_exists"] = true

	return check
}

// DetectorChecker checks weapon detection service connectivity
type DetectorChecker struct {
	serviceURL string
	client     *http.Client
}

func NewDetectorChecker(serviceURL string) *DetectorChecker {
	return &DetectorChecker{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *DetectorChecker) Name() string {
	return "detector"
}

func (c *DetectorChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"url": c.serviceURL},
	}

	if c.serviceURL == "" {
		check.Status = StatusDegraded
		check.Message = "Detector service URL not configured"
		return check
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.serviceURL+"/health/ready", nil)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Failed to create request: %v", err)
		return check
	}

	resp, err := c.client.Do(req)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Detector service unreachable: %v", err)
		return check
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Detector service returned status %d", resp.StatusCode)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Detector service OK"

	return check
}

// StorageChecker checks the screenshots directory is writable
type StorageChecker struct {
	dir string
}

func NewStorageChecker(dir string) *StorageChecker {
	return &StorageChecker{dir: dir}
}

func (c *StorageChecker) Name() string {
	return "storage"
}

func (c *StorageChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"dir": c.dir},
	}

	info, err := os.Stat(c.dir)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Screenshots directory unavailable: %v", err)
		return check
	}
	if !info.IsDir() {
		check.Status = StatusUnhealthy
		check.Message = "Screenshots path is not a directory"
		return check
	}

	probe, err := os.CreateTemp(c.dir, ".health_*")
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Screenshots directory not writable: %v", err)
		return check
	}
	probe.Close()
	os.Remove(probe.Name())

	check.Status = StatusHealthy
	check.Message = "Storage OK"

	return check
}
