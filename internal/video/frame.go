package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/disintegration/imaging"
)

// Frame is a single captured video frame. Data holds the encoded JPEG
// bytes; Width and Height are filled in when the frame has been decoded
// at least once.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	Sequence  uint64
	Width     int
	Height    int
}

// NewFrame wraps encoded JPEG bytes into a frame
func NewFrame(data []byte, seq uint64) *Frame {
	return &Frame{
		Data:      data,
		Timestamp: time.Now(),
		Sequence:  seq,
	}
}

// Decode decodes the frame's JPEG payload
func (f *Frame) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", f.Sequence, err)
	}
	bounds := img.Bounds()
	f.Width = bounds.Dx()
	f.Height = bounds.Dy()
	return img, nil
}

// Age returns how long ago the frame was captured
func (f *Frame) Age() time.Duration {
	return time.Since(f.Timestamp)
}

// EncodeJPEG encodes an image as JPEG with the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize re-encodes the frame scaled to the given dimensions. A zero
// width or height keeps the aspect ratio of the other dimension.
func Resize(f *Frame, width, height, quality int) (*Frame, error) {
	if width <= 0 && height <= 0 {
		return f, nil
	}

	img, err := f.Decode()
	if err != nil {
		return nil, err
	}

	resized := imaging.Resize(img, width, height, imaging.Linear)
	data, err := EncodeJPEG(resized, quality)
	if err != nil {
		return nil, err
	}

	out := &Frame{
		Data:      data,
		Timestamp: f.Timestamp,
		Sequence:  f.Sequence,
		Width:     resized.Bounds().Dx(),
		Height:    resized.Bounds().Dy(),
	}
	return out, nil
}
