package video

import (
	"image"
	"image/color"
	"testing"
)

// makeTestJPEG renders a flat-colored JPEG of the given size
func makeTestJPEG(t *testing.T, width, height int, c color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	data, err := EncodeJPEG(img, 85)
	if err != nil {
		t.Fatalf("Failed to encode test jpeg: %v", err)
	}
	return data
}

func makeTestFrame(t *testing.T, seq uint64) *Frame {
	t.Helper()
	data := makeTestJPEG(t, 64, 48, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	return NewFrame(data, seq)
}
