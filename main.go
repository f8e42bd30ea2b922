package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/camera"
	"github.com/sentinelai/sentinel-edge/internal/capture"
	"github.com/sentinelai/sentinel-edge/internal/config"
	"github.com/sentinelai/sentinel-edge/internal/detector"
	"github.com/sentinelai/sentinel-edge/internal/health"
	"github.com/sentinelai/sentinel-edge/internal/incident"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/notify"
	"github.com/sentinelai/sentinel-edge/internal/pipeline"
	"github.com/sentinelai/sentinel-edge/internal/service"
	"github.com/sentinelai/sentinel-edge/internal/state"
	"github.com/sentinelai/sentinel-edge/internal/stats"
	"github.com/sentinelai/sentinel-edge/internal/storage"
	"github.com/sentinelai/sentinel-edge/internal/stream"
	"github.com/sentinelai/sentinel-edge/internal/video"
	"github.com/sentinelai/sentinel-edge/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	// Load configuration
	bootCfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.LogConfig{
		Level:  bootCfg.Log.Level,
		Format: bootCfg.Log.Format,
		Output: bootCfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Re-load through the config service to pick up env overrides
	// and run validation
	cfgService, err := config.NewService(configPath, log)
	if err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgService.Get()

	log.Info("Starting Sentinel Edge",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// State database
	stateMgr, err := state.NewManager(cfg, log)
	if err != nil {
		log.Error("Failed to initialize state database", "error", err)
		os.Exit(1)
	}
	defer stateMgr.Close()

	// Screenshot storage and retention
	store, err := storage.NewStore(storage.StoreConfig{
		ScreenshotsDir: cfg.Agent.Storage.ScreenshotsDir,
	}, log)
	if err != nil {
		log.Error("Failed to initialize screenshot store", "error", err)
		os.Exit(1)
	}

	diskMonitor, err := storage.NewDiskMonitor(
		cfg.Agent.Storage.ScreenshotsDir,
		cfg.Agent.Storage.MaxDiskUsagePercent,
		log,
	)
	if err != nil {
		log.Error("Failed to initialize disk monitor", "error", err)
		os.Exit(1)
	}

	retention, err := storage.NewRetentionPolicy(
		cfg.Agent.Storage.ScreenshotsDir,
		cfg.Agent.Storage.RetentionDays,
		diskMonitor,
		log,
	)
	if err != nil {
		log.Error("Failed to initialize retention policy", "error", err)
		os.Exit(1)
	}

	// Collaborator clients, all optional
	var analyzer incident.Analyzer
	if cfg.Agent.Notify.Analysis.Enabled {
		analyzer = notify.NewAnalysisClient(notify.AnalysisConfig{
			ServiceURL: cfg.Agent.Notify.Analysis.ServiceURL,
			Model:      cfg.Agent.Notify.Analysis.Model,
			Timeout:    cfg.Agent.Notify.Analysis.Timeout,
		}, log)
	}

	var speech *notify.SpeechClient
	if cfg.Agent.Notify.Speech.Enabled {
		speech = notify.NewSpeechClient(notify.SpeechConfig{
			ServiceURL: cfg.Agent.Notify.Speech.ServiceURL,
			VoiceID:    cfg.Agent.Notify.Speech.VoiceID,
			Timeout:    cfg.Agent.Notify.Speech.Timeout,
		}, log)
	}

	var alert *notify.AlertClient
	if cfg.Agent.Notify.Alert.Enabled {
		alert = notify.NewAlertClient(notify.AlertConfig{
			ServiceURL: cfg.Agent.Notify.Alert.ServiceURL,
			FromNumber: cfg.Agent.Notify.Alert.FromNumber,
			ToNumber:   cfg.Agent.Notify.Alert.ToNumber,
			Timeout:    cfg.Agent.Notify.Alert.Timeout,
		}, log)
	}

	notifier := notify.NewNotifier(store, speech, alert, log)

	// Pipeline plumbing
	collector := stats.NewCollector()
	rawCache := video.NewFrameCache()
	annotatedCache := video.NewFrameCache()

	grabber, err := camera.NewFFmpegGrabber(log)
	if err != nil {
		log.Error("Failed to locate ffmpeg", "error", err)
		os.Exit(1)
	}
	device := camera.NewFFmpegDevice(grabber, camera.FFmpegDeviceConfig{
		Input:   cfg.Agent.Camera.Input,
		Quality: cfg.Agent.Camera.JPEGQuality,
		Width:   cfg.Agent.Camera.Width,
		Height:  cfg.Agent.Camera.Height,
	})

	detectorClient := detector.NewClient(detector.ClientConfig{
		ServiceURL:          cfg.Agent.Detector.ServiceURL,
		Timeout:             cfg.Agent.Detector.Timeout,
		ConfidenceThreshold: cfg.Agent.Detector.ConfidenceThreshold,
		WeaponClasses:       cfg.Agent.Detector.WeaponClasses,
	}, log)
	filter := detector.NewFilter(
		cfg.Agent.Detector.ConfidenceThreshold,
		cfg.Agent.Detector.WeaponClasses,
	)

	// Services, in dependency order
	aggregator := incident.NewAggregator(incident.Config{
		Cooldown:      cfg.Agent.Incidents.Cooldown,
		BatchSize:     cfg.Agent.Incidents.BatchSize,
		IdleTimeout:   cfg.Agent.Incidents.IdleTimeout,
		CheckInterval: cfg.Agent.Incidents.CheckInterval,
		QueueSize:     cfg.Agent.Incidents.QueueSize,
	}, store, stateMgr, analyzer, notifier, log)

	source := capture.NewSource(device, rawCache, collector, capture.Config{
		FPS:          cfg.Agent.Camera.CaptureFPS,
		MaxFailures:  cfg.Agent.Camera.MaxFailures,
		RetryBackoff: cfg.Agent.Camera.RetryBackoff,
		MaxBackoff:   cfg.Agent.Camera.MaxBackoff,
	}, log)

	stage := pipeline.NewStage(pipeline.Config{
		Interval:   captureInterval(cfg.Agent.Camera.CaptureFPS),
		SkipPeriod: cfg.Agent.Detector.SkipPeriod,
		Retries:    cfg.Agent.Detector.Retries,
		RetryDelay: cfg.Agent.Detector.RetryDelay,
	}, rawCache, annotatedCache, detectorClient, filter, collector, aggregator, log)

	publisher := stream.NewPublisher(stream.Config{
		MaxFPS:           cfg.Agent.Stream.MaxFPS,
		Width:            cfg.Agent.Stream.Width,
		Height:           cfg.Agent.Stream.Height,
		JPEGQuality:      cfg.Agent.Stream.JPEGQuality,
		SkipPeriod:       cfg.Agent.Stream.SkipPeriod,
		StalenessWindow:  cfg.Agent.Stream.StalenessWindow,
		SubscriberBuffer: cfg.Agent.Stream.SubscriberBuffer,
	}, rawCache, annotatedCache, log)

	sweeper := storage.NewSweeper(retention, diskMonitor, time.Hour, log)

	// Health checks served on the web API
	dbPath := filepath.Join(cfg.Agent.DataDir, "db", "sentinel.db")
	healthRegistry := health.NewRegistry(log)
	healthRegistry.Register(health.NewDatabaseChecker(dbPath))
	healthRegistry.Register(health.NewDetectorChecker(cfg.Agent.Detector.ServiceURL))
	healthRegistry.Register(health.NewStorageChecker(cfg.Agent.Storage.ScreenshotsDir))

	webServer := web.NewServer(&cfg.Agent.Web, collector, log)
	webServer.SetVersion(version)
	webServer.SetStreamSource(publisher)
	webServer.SetIncidentStore(stateMgr)
	webServer.SetScreenshotStore(store)
	webServer.SetHealthRegistry(healthRegistry)

	svcMgr := service.NewManager(log)
	svcMgr.Register(aggregator)
	svcMgr.Register(source)
	svcMgr.Register(stage)
	svcMgr.Register(publisher)
	svcMgr.Register(sweeper)
	svcMgr.Register(webServer)

	// RTSP connection watchdog, only meaningful for network cameras
	if cfg.Agent.Camera.RTSP.ProbeEnabled && strings.HasPrefix(cfg.Agent.Camera.Input, "rtsp://") {
		probe := camera.NewRTSPProbe(camera.RTSPProbeConfig{
			URL:               cfg.Agent.Camera.Input,
			Timeout:           cfg.Agent.Camera.RTSP.Timeout,
			ReconnectInterval: cfg.Agent.Camera.RTSP.ReconnectInterval,
		}, log)
		svcMgr.Register(probe)
	}

	// A fatal capture failure means the camera is gone for good;
	// shut the agent down so the supervisor can restart it
	fatalCh := svcMgr.GetEventBus().Subscribe(service.EventTypeCaptureFatal)
	go func() {
		select {
		case <-ctx.Done():
		case event := <-fatalCh:
			collector.SetStatus(stats.StatusCameraError)
			log.Error("Camera capture failed permanently, shutting down",
				"source", event.Source)
			cancel()
		}
	}()

	if err := svcMgr.Start(ctx); err != nil {
		log.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	if err := stateMgr.SaveSystemState(ctx, "last_startup", time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn("Failed to record startup time", "error", err)
	}

	// SIGHUP reloads the configuration file; watchers decide what
	// applies without a restart
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, syscall.SIGHUP)
	go func() {
		for range hupChan {
			if err := cfgService.Reload(ctx); err != nil {
				log.Error("Configuration reload failed", "error", err)
			}
		}
	}()

	// Wait for a shutdown signal or a fatal capture failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	if err := stateMgr.SaveSystemState(shutdownCtx, "last_clean_shutdown", time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn("Failed to record clean shutdown", "error", err)
	}

	log.Info("Shutdown complete")
}

// captureInterval converts a capture FPS into a detection loop period
func captureInterval(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
