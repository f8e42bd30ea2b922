package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
)

type staticChecker struct {
	name   string
	status Status
}

func (c *staticChecker) Name() string { return c.name }

func (c *staticChecker) Check(ctx context.Context) Check {
	return Check{Name: c.name, Status: c.status, Timestamp: time.Now()}
}

func TestRegistry_AllHealthy(t *testing.T) {
	registry := NewRegistry(logger.NewNopLogger())
	registry.Register(&staticChecker{name: "a", status: StatusHealthy})
	registry.Register(&staticChecker{name: "b", status: StatusHealthy})

	report := registry.RunChecks(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Errorf("Expected 2 checks, got %d", len(report.Checks))
	}
	if report.Uptime == "" {
		t.Error("Expected uptime to be set")
	}
}

func TestRegistry_DegradedWins(t *testing.T) {
	registry := NewRegistry(logger.NewNopLogger())
	registry.Register(&staticChecker{name: "a", status: StatusHealthy})
	registry.Register(&staticChecker{name: "b", status: StatusDegraded})

	report := registry.RunChecks(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", report.Status)
	}
}

func TestRegistry_UnhealthyWins(t *testing.T) {
	registry := NewRegistry(logger.NewNopLogger())
	registry.Register(&staticChecker{name: "a", status: StatusDegraded})
	registry.Register(&staticChecker{name: "b", status: StatusUnhealthy})
	registry.Register(&staticChecker{name: "c", status: StatusHealthy})

	report := registry.RunChecks(context.Background())
	if report.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", report.Status)
	}
}

func TestRegistry_NoCheckers(t *testing.T) {
	registry := NewRegistry(logger.NewNopLogger())

	report := registry.RunChecks(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("Expected healthy with no checkers, got %s", report.Status)
	}
}

func TestDatabaseChecker_MissingFile(t *testing.T) {
	checker := NewDatabaseChecker(filepath.Join(t.TempDir(), "missing.db"))

	check := checker.Check(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("Expected healthy for missing file, got %s: %s", check.Status, check.Message)
	}
	if exists, ok := check.Details["file_exists"].(bool); !ok || exists {
		t.Error("Expected file_exists detail to be false")
	}
}

func TestDatabaseChecker_EmptyPath(t *testing.T) {
	checker := NewDatabaseChecker("")

	check := checker.Check(context.Background())
	if check.Status != StatusDegraded {
		t.Errorf("Expected degraded for empty path, got %s", check.Status)
	}
}

func TestDetectorChecker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/ready" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewDetectorChecker(server.URL)
	check := checker.Check(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s: %s", check.Status, check.Message)
	}
}

func TestDetectorChecker_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	checker := NewDetectorChecker(server.URL)
	check := checker.Check(context.Background())
	if check.Status != StatusDegraded {
		t.Errorf("Expected degraded on 503, got %s", check.Status)
	}
}

func TestDetectorChecker_Unreachable(t *testing.T) {
	checker := NewDetectorChecker("http://127.0.0.1:1")

	check := checker.Check(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy for unreachable service, got %s", check.Status)
	}
}

func TestStorageChecker(t *testing.T) {
	checker := NewStorageChecker(t.TempDir())

	check := checker.Check(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s: %s", check.Status, check.Message)
	}
}

func TestStorageChecker_MissingDir(t *testing.T) {
	checker := NewStorageChecker(filepath.Join(t.TempDir(), "missing"))

	check := checker.Check(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy for missing directory, got %s", check.Status)
	}
}

func TestStorageChecker_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	checker := NewStorageChecker(path)
	check := checker.Check(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy for non-directory, got %s", check.Status)
	}
}
