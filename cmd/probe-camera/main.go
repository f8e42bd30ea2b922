package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sentinelai/sentinel-edge/internal/camera"
	"github.com/sentinelai/sentinel-edge/internal/config"
	"github.com/sentinelai/sentinel-edge/internal/detector"
	"github.com/sentinelai/sentinel-edge/internal/logger"
	"github.com/sentinelai/sentinel-edge/internal/video"
)

func main() {
	var configPath string
	var frames int
	var runInference bool
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.IntVar(&frames, "frames", 5, "Number of frames to grab")
	flag.BoolVar(&runInference, "inference", false, "Send the last frame to the detector service")
	flag.Parse()

	fmt.Println("=== Camera Probe ===")
	fmt.Println("Grabs frames from the configured camera input and reports timings")
	fmt.Println()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	fmt.Printf("Camera input: %s\n", cfg.Agent.Camera.Input)
	fmt.Printf("Detector URL: %s\n", cfg.Agent.Detector.ServiceURL)
	fmt.Println()

	grabber, err := camera.NewFFmpegGrabber(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ ffmpeg not found: %v\n", err)
		os.Exit(1)
	}
	ffmpegVersion, err := grabber.GetVersion()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ ffmpeg not runnable: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ ffmpeg available: %s\n", ffmpegVersion)

	device := camera.NewFFmpegDevice(grabber, camera.FFmpegDeviceConfig{
		Input:   cfg.Agent.Camera.Input,
		Quality: cfg.Agent.Camera.JPEGQuality,
		Width:   cfg.Agent.Camera.Width,
		Height:  cfg.Agent.Camera.Height,
	})
	defer device.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lastFrame []byte
	for i := 0; i < frames; i++ {
		grabCtx, grabCancel := context.WithTimeout(ctx, 30*time.Second)
		start := time.Now()
		data, err := device.ReadFrame(grabCtx)
		grabCancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Frame %d grab failed: %v\n", i+1, err)
			os.Exit(1)
		}
		fmt.Printf("✅ Frame %d: %d bytes in %v\n", i+1, len(data), time.Since(start).Round(time.Millisecond))
		lastFrame = data
	}

	if !runInference {
		fmt.Println()
		fmt.Println("Camera probe complete")
		return
	}

	fmt.Println()
	fmt.Println("Running inference on the last frame...")

	client := detector.NewClient(detector.ClientConfig{
		ServiceURL:          cfg.Agent.Detector.ServiceURL,
		Timeout:             cfg.Agent.Detector.Timeout,
		ConfidenceThreshold: cfg.Agent.Detector.ConfidenceThreshold,
		WeaponClasses:       cfg.Agent.Detector.WeaponClasses,
	}, log)

	if err := client.HealthCheck(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Detector service not ready: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✅ Detector service is ready")

	frame := video.NewFrame(lastFrame, 0)
	start := time.Now()
	resp, err := client.Detect(ctx, frame)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Inference failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Inference returned %d detection(s) in %v\n", resp.DetectionCount, time.Since(start).Round(time.Millisecond))
	for _, box := range resp.BoundingBoxes {
		fmt.Printf("   %s (%.1f%%) box=[%.0f %.0f %.0f %.0f]\n",
			box.ClassName, box.Confidence*100, box.X1, box.Y1, box.X2, box.Y2)
	}

	fmt.Println()
	fmt.Println("Camera probe complete")
}
