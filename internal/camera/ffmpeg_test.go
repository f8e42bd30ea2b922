package camera

import (
	"testing"

	"github.com/sentinelai/sentinel-edge/internal/logger"
)

func setupTestGrabber(t *testing.T) *FFmpegGrabber {
	log := logger.NewNopLogger()
	grabber, err := NewFFmpegGrabber(log)
	if err != nil {
		t.Skipf("FFmpeg not available, skipping test: %v", err)
	}
	return grabber
}

func TestNewFFmpegGrabber(t *testing.T) {
	grabber := setupTestGrabber(t)

	if grabber.ffmpegPath == "" {
		t.Error("FFmpeg path should be set")
	}
}

func TestFFmpegGrabber_GetVersion(t *testing.T) {
	grabber := setupTestGrabber(t)

	version, err := grabber.GetVersion()
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if version == "" {
		t.Error("Version should not be empty")
	}
}

func TestInputArgs(t *testing.T) {
	tests := []struct {
		input string
		first string
	}{
		{"rtsp://cam:554/stream", "-rtsp_transport"},
		{"/dev/video0", "-f"},
		{"recording.mp4", "-i"},
	}

	for _, tt := range tests {
		args := inputArgs(tt.input)
		if len(args) == 0 || args[0] != tt.first {
			t.Errorf("inputArgs(%q) = %v, expected to start with %q", tt.input, args, tt.first)
		}
	}
}

func TestFFmpegDevice_Describe(t *testing.T) {
	device := NewFFmpegDevice(nil, FFmpegDeviceConfig{Input: "/dev/video0"})

	if device.Describe() != "/dev/video0" {
		t.Errorf("Expected '/dev/video0', got '%s'", device.Describe())
	}

	if err := device.Close(); err != nil {
		t.Errorf("Close should not fail: %v", err)
	}
}
