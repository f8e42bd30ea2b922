package video

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestAnnotate_DrawsBox(t *testing.T) {
	frame := NewFrame(makeTestJPEG(t, 200, 150, color.RGBA{R: 255, G: 255, B: 255, A: 255}), 1)

	annotated, err := Annotate(frame, []Annotation{
		{Box: Box{X1: 40, Y1: 40, X2: 120, Y2: 100}, Label: "pistol", Confidence: 0.91},
	}, 90)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(annotated.Data))
	if err != nil {
		t.Fatalf("Failed to decode annotated frame: %v", err)
	}

	// Border pixels should no longer be white
	r, g, b, _ := img.At(80, 40).RGBA()
	if r>>8 > 240 && g>>8 > 240 && b>>8 > 240 {
		t.Error("Expected box border to change pixel color at top edge")
	}

	if annotated.Sequence != frame.Sequence {
		t.Error("Annotate should preserve the sequence number")
	}
	if !annotated.Timestamp.Equal(frame.Timestamp) {
		t.Error("Annotate should preserve the capture timestamp")
	}
}

func TestAnnotate_LeavesInputUntouched(t *testing.T) {
	data := makeTestJPEG(t, 100, 100, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	original := make([]byte, len(data))
	copy(original, data)

	frame := NewFrame(data, 2)
	if _, err := Annotate(frame, []Annotation{
		{Box: Box{X1: 10, Y1: 10, X2: 50, Y2: 50}, Label: "knife"},
	}, 90); err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}

	if !bytes.Equal(frame.Data, original) {
		t.Error("Annotate must not mutate the input frame data")
	}
}

func TestAnnotate_BoxOutsideBounds(t *testing.T) {
	frame := NewFrame(makeTestJPEG(t, 80, 60, color.RGBA{R: 128, G: 128, B: 128, A: 255}), 3)

	// Out of range coordinates are clamped rather than panicking
	_, err := Annotate(frame, []Annotation{
		{Box: Box{X1: -20, Y1: -20, X2: 500, Y2: 500}, Label: "rifle", Confidence: 0.5},
	}, 90)
	if err != nil {
		t.Fatalf("Annotate with oversized box failed: %v", err)
	}
}

func TestAnnotate_NoAnnotations(t *testing.T) {
	frame := NewFrame(makeTestJPEG(t, 80, 60, color.RGBA{R: 128, G: 128, B: 128, A: 255}), 4)

	annotated, err := Annotate(frame, nil, 90)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if len(annotated.Data) == 0 {
		t.Error("Annotated frame should still carry image data")
	}
}

func TestBoxColor(t *testing.T) {
	if boxColor("pistol") == defaultBoxColor {
		t.Error("pistol should use a class specific color")
	}
	if boxColor("unknown-thing") != defaultBoxColor {
		t.Error("unknown classes should fall back to the default color")
	}
}
