package web

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentinelai/sentinel-edge/internal/health"
)

// handleVideoFeed streams annotated frames as multipart MJPEG. The
// connection stays open until the client disconnects or the stream
// source closes the subscriber channel.
func (s *Server) handleVideoFeed(c *gin.Context) {
	if s.stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "video stream not available"})
		return
	}

	id, frames := s.stream.Subscribe()
	defer s.stream.Unsubscribe(id)

	s.LogDebug("Video feed subscriber connected", "subscriber_id", id, "client_ip", c.ClientIP())

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=--frame")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case data, ok := <-frames:
			if !ok {
				return false
			}

			if _, err := w.Write([]byte("--frame\r\n")); err != nil {
				return false
			}
			if _, err := w.Write([]byte("Content-Type: image/jpeg\r\n")); err != nil {
				return false
			}
			if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
				return false
			}
			if _, err := w.Write(data); err != nil {
				return false
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return false
			}

			if flusher, ok := c.Writer.(http.Flusher); ok {
				flusher.Flush()
			}
			return true
		}
	})

	s.LogDebug("Video feed subscriber disconnected", "subscriber_id", id)
}

// handleHealth runs registered health checks and reports the result
func (s *Server) handleHealth(c *gin.Context) {
	if s.healthRegistry == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  health.StatusHealthy,
			"version": s.version,
		})
		return
	}

	report := s.healthRegistry.RunChecks(c.Request.Context())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    report.Status,
		"timestamp": report.Timestamp,
		"uptime":    report.Uptime,
		"version":   s.version,
		"checks":    report.Checks,
	})
}

// handleStatus returns the current monitoring snapshot
func (s *Server) handleStatus(c *gin.Context) {
	snapshot := s.collector.GetSnapshot()

	c.JSON(http.StatusOK, gin.H{
		"status":           snapshot.Status,
		"fps":              snapshot.FPS,
		"frame_count":      snapshot.FrameCount,
		"total_detections": snapshot.TotalDetections,
		"threat_count":     snapshot.Count,
		"threats":          snapshot.Threats,
		"timestamp":        snapshot.Timestamp,
		"version":          s.version,
	})
}

// handleThreats returns the currently visible detections
func (s *Server) handleThreats(c *gin.Context) {
	snapshot := s.collector.GetSnapshot()

	c.JSON(http.StatusOK, gin.H{
		"threats": snapshot.Threats,
		"count":   snapshot.Count,
	})
}

// handleListIncidents returns persisted incidents, newest first
func (s *Server) handleListIncidents(c *gin.Context) {
	if s.incidents == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "incident store not available"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = parsed
	}

	records, err := s.incidents.ListIncidents(c.Request.Context(), limit)
	if err != nil {
		s.LogError("Failed to list incidents", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list incidents"})
		return
	}

	total, err := s.incidents.CountIncidents(c.Request.Context())
	if err != nil {
		s.LogError("Failed to count incidents", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count incidents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"incidents": records,
		"count":     len(records),
		"total":     total,
	})
}

// handleGetIncident returns a single incident by ID
func (s *Server) handleGetIncident(c *gin.Context) {
	if s.incidents == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "incident store not available"})
		return
	}

	id := c.Param("id")
	record, err := s.incidents.GetIncident(c.Request.Context(), id)
	if err != nil {
		s.LogError("Failed to get incident", err, "incident_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get incident"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleListScreenshots returns stored screenshot files, newest first
func (s *Server) handleListScreenshots(c *gin.Context) {
	if s.screenshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "screenshot store not available"})
		return
	}

	files, err := s.screenshots.ListScreenshots()
	if err != nil {
		s.LogError("Failed to list screenshots", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list screenshots"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"screenshots": files,
		"count":       len(files),
	})
}

// handleGetScreenshot serves a stored screenshot by file name
func (s *Server) handleGetScreenshot(c *gin.Context) {
	if s.screenshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "screenshot store not available"})
		return
	}

	name := c.Param("name")
	// Reject anything that could escape the screenshots directory
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid screenshot name"})
		return
	}
	if !strings.HasSuffix(name, ".jpg") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid screenshot name"})
		return
	}

	path := filepath.Join(s.screenshots.Dir(), name)
	c.Header("Content-Type", "image/jpeg")
	c.Header("Cache-Control", "max-age=3600")
	c.File(path)
}
