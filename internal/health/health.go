package health

import (
	"context"
	"sync"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/logger"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check result
type Check struct {
	Name      string                 `json:"name"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Report represents the overall health report
type Report struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
}

// Checker is an interface for health checkers
type Checker interface {
	Name() string
	Check(ctx context.Context) Check
}

// Registry runs registered health checkers and aggregates their
// results
type Registry struct {
	logger    *logger.Logger
	checkers  []Checker
	startTime time.Time
	mu        sync.RWMutex
}

// NewRegistry creates a health checker registry
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		logger:    log,
		checkers:  make([]Checker, 0),
		startTime: time.Now(),
	}
}

// Register registers a health checker
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, checker)
}

// RunChecks performs all health checks. Overall status is unhealthy
// if any check is unhealthy, degraded if any check is degraded.
func (r *Registry) RunChecks(ctx context.Context) Report {
	r.mu.RLock()
	checkers := make([]Checker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(r.startTime).Round(time.Second).String(),
		Checks:    make(map[string]Check, len(checkers)),
	}

	for _, checker := range checkers {
		check := checker.Check(ctx)
		report.Checks[check.Name] = check

		switch check.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}

		if check.Status != StatusHealthy {
			r.logger.Warn("Health check not healthy",
				"check", check.Name, "status", check.Status, "message", check.Message)
		}
	}

	return report
}
