package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentinelai/sentinel-edge/internal/config"
	"github.com/sentinelai/sentinel-edge/internal/health"
	"github.com/sentinelai/sentinel-edge/internal/incident"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/service"
	"github.com/sentinelai/sentinel-edge/internal/stats"
	"github.com/sentinelai/sentinel-edge/internal/storage"
)

// Server represents the web server service
type Server struct {
	*service.ServiceBase
	config     *config.WebConfig
	logger     *logger.Logger
	httpServer *http.Server
	router     *gin.Engine

	collector     *stats.Collector
	stream        StreamSource      // Optional MJPEG stream source
	incidents     IncidentStore     // Optional incident store
	screenshots   ScreenshotLister  // Optional screenshot store
	healthRegistry *health.Registry   // Optional health checker registry
	version       string
	startTime     time.Time
}

// StreamSource provides encoded frames for the MJPEG endpoint
type StreamSource interface {
	Subscribe() (string, <-chan []byte)
	Unsubscribe(id string)
}

// IncidentStore serves persisted incident records
type IncidentStore interface {
	ListIncidents(ctx context.Context, limit int) ([]incident.Record, error)
	GetIncident(ctx context.Context, id string) (*incident.Record, error)
	CountIncidents(ctx context.Context) (int, error)
}

// ScreenshotLister serves stored screenshot files
type ScreenshotLister interface {
	ListScreenshots() ([]storage.ScreenshotFile, error)
	Dir() string
}

// NewServer creates a new web server service
func NewServer(cfg *config.WebConfig, collector *stats.Collector, log *logger.Logger) *Server {
	// Set Gin mode to release mode for production
	// Debug mode can be enabled via GIN_MODE environment variable
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	return &Server{
		ServiceBase: service.NewServiceBase("web-server", log),
		config:      cfg,
		logger:      log,
		router:      router,
		collector:   collector,
		version:     "dev",
		startTime:   time.Now(),
	}
}

// SetVersion sets the application version
func (s *Server) SetVersion(version string) {
	s.version = version
}

// SetStreamSource sets the MJPEG stream source
func (s *Server) SetStreamSource(stream StreamSource) {
	s.stream = stream
}

// SetIncidentStore sets the incident store
func (s *Server) SetIncidentStore(store IncidentStore) {
	s.incidents = store
}

// SetScreenshotStore sets the screenshot store
func (s *Server) SetScreenshotStore(store ScreenshotLister) {
	s.screenshots = store
}

// SetHealthRegistry sets the health checker registry
func (s *Server) SetHealthRegistry(registry *health.Registry) {
	s.healthRegistry = registry
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.LogInfo("Web server is disabled")
		return nil
	}

	s.setupRoutes()

	// WriteTimeout and IdleTimeout stay 0: the MJPEG endpoint holds
	// its connection open and handles cancellation itself
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  0,
	}

	go func() {
		s.LogInfo("Starting web server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.LogError("Web server error", err, "address", addr)
		}
	}()

	// Wait for context cancellation or server startup
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		s.LogInfo("Web server started", "address", addr)
		s.GetStatus().SetStatus(service.StatusRunning)
		return nil
	}
}

// Stop stops the web server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.LogInfo("Stopping web server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.GetStatus().SetStatus(service.StatusStopped)
	return err
}

// setupRoutes sets up all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/video_feed", s.handleVideoFeed)
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/threats", s.handleThreats)

		incidents := api.Group("/incidents")
		{
			incidents.GET("", s.handleListIncidents)
			incidents.GET("/:id", s.handleGetIncident)
		}

		screenshots := api.Group("/screenshots")
		{
			screenshots.GET("", s.handleListScreenshots)
			screenshots.GET("/:name", s.handleGetScreenshot)
		}
	}
}

// ginLogger creates a Gin middleware for logging
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware creates a CORS middleware for local network access
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
