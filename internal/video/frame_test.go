package video

import (
	"image/color"
	"testing"
)

func TestFrame_Decode(t *testing.T) {
	frame := NewFrame(makeTestJPEG(t, 64, 48, color.RGBA{R: 10, G: 10, B: 10, A: 255}), 1)

	img, err := frame.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("Unexpected decoded size: %v", img.Bounds())
	}

	if frame.Width != 64 || frame.Height != 48 {
		t.Errorf("Decode should record dimensions, got %dx%d", frame.Width, frame.Height)
	}
}

func TestFrame_DecodeInvalid(t *testing.T) {
	frame := NewFrame([]byte("not a jpeg"), 2)

	if _, err := frame.Decode(); err == nil {
		t.Error("Decode of garbage data should fail")
	}
}

func TestResize(t *testing.T) {
	frame := NewFrame(makeTestJPEG(t, 640, 480, color.RGBA{R: 20, G: 20, B: 20, A: 255}), 3)

	resized, err := Resize(frame, 320, 240, 80)
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}

	if resized.Width != 320 || resized.Height != 240 {
		t.Errorf("Expected 320x240, got %dx%d", resized.Width, resized.Height)
	}

	if resized.Sequence != frame.Sequence {
		t.Error("Resize should preserve the sequence number")
	}
	if !resized.Timestamp.Equal(frame.Timestamp) {
		t.Error("Resize should preserve the capture timestamp")
	}
}

func TestResize_NoDimensions(t *testing.T) {
	frame := NewFrame(makeTestJPEG(t, 64, 48, color.RGBA{A: 255}), 4)

	out, err := Resize(frame, 0, 0, 80)
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if out != frame {
		t.Error("Resize without target dimensions should return the input frame")
	}
}
