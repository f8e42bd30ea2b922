package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"os/exec"
	"strings"
	"sync"

	"github.com/sentinelai/sentinel-edge/internal/logger"
)

// FFmpegGrabber wraps the ffmpeg binary for single-frame JPEG grabs
type FFmpegGrabber struct {
	logger     *logger.Logger
	ffmpegPath string
	mu         sync.RWMutex
}

// NewFFmpegGrabber creates a grabber, locating the ffmpeg binary
func NewFFmpegGrabber(log *logger.Logger) (*FFmpegGrabber, error) {
	grabber := &FFmpegGrabber{
		logger:     log,
		ffmpegPath: "ffmpeg",
	}

	path, err := grabber.detectFFmpeg()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	grabber.ffmpegPath = path

	version, err := grabber.GetVersion()
	if err == nil {
		log.Info("FFmpeg grabber initialized", "path", path, "version", version)
	} else {
		log.Info("FFmpeg grabber initialized", "path", path)
	}

	return grabber, nil
}

// detectFFmpeg finds the ffmpeg executable
func (f *FFmpegGrabber) detectFFmpeg() (string, error) {
	paths := []string{"ffmpeg", "/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg"}

	for _, path := range paths {
		cmd := exec.Command(path, "-version")
		if err := cmd.Run(); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("ffmpeg not found in PATH or common locations")
}

// GetVersion returns the ffmpeg version line
func (f *FFmpegGrabber) GetVersion() (string, error) {
	cmd := exec.Command(f.ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}

	return "unknown", nil
}

// BuildCommand builds an ffmpeg command bound to the context
func (f *FFmpegGrabber) BuildCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, f.ffmpegPath, args...)
}

// ValidateInput probes an input source (device path, RTSP URL or file)
func (f *FFmpegGrabber) ValidateInput(input string) error {
	args := []string{
		"-hide_banner",
		"-probesize", "32",
		"-analyzeduration", "1000000",
		"-i", input,
		"-f", "null",
		"-",
	}

	cmd := f.BuildCommand(context.Background(), args)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "Connection refused") ||
			strings.Contains(string(output), "No such file") ||
			strings.Contains(string(output), "Invalid data found") {
			return fmt.Errorf("invalid input: %s: %w", string(output), err)
		}
		return fmt.Errorf("input validation failed: %w", err)
	}

	return nil
}

// Grab captures a single JPEG frame from the input source
func (f *FFmpegGrabber) Grab(ctx context.Context, input string, quality, width, height int) ([]byte, error) {
	if quality <= 0 || quality > 31 {
		quality = 5
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
	}
	args = append(args, inputArgs(input)...)
	args = append(args,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprintf("%d", quality),
	)
	if width > 0 && height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args, "-")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd := f.BuildCommand(ctx, args)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg grab failed: %w (%s)", err, stderr.String())
	}

	frameData := stdout.Bytes()
	if len(frameData) == 0 {
		return nil, ErrNoFrame
	}

	// Validate it decodes as an image
	if _, _, err := image.Decode(bytes.NewReader(frameData)); err != nil {
		return nil, fmt.Errorf("invalid frame data: %w", err)
	}

	return frameData, nil
}

// inputArgs picks ffmpeg input flags for the source kind
func inputArgs(input string) []string {
	switch {
	case strings.HasPrefix(input, "rtsp://"):
		return []string{"-rtsp_transport", "tcp", "-i", input}
	case strings.HasPrefix(input, "/dev/video"):
		return []string{"-f", "v4l2", "-i", input}
	default:
		return []string{"-i", input}
	}
}

// FFmpegDevice adapts the grabber to the Device interface
type FFmpegDevice struct {
	grabber *FFmpegGrabber
	input   string
	quality int
	width   int
	height  int
}

// FFmpegDeviceConfig contains frame grab parameters
type FFmpegDeviceConfig struct {
	Input   string
	Quality int
	Width   int
	Height  int
}

// NewFFmpegDevice creates a device reading from the configured input
func NewFFmpegDevice(grabber *FFmpegGrabber, cfg FFmpegDeviceConfig) *FFmpegDevice {
	return &FFmpegDevice{
		grabber: grabber,
		input:   cfg.Input,
		quality: cfg.Quality,
		width:   cfg.Width,
		height:  cfg.Height,
	}
}

// ReadFrame grabs one JPEG frame from the source
func (d *FFmpegDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	return d.grabber.Grab(ctx, d.input, d.quality, d.width, d.height)
}

// Describe returns the input source
func (d *FFmpegDevice) Describe() string {
	return d.input
}

// Close releases the device. Each grab spawns its own process, so
// there is nothing to tear down.
func (d *FFmpegDevice) Close() error {
	return nil
}
