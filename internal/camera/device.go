package camera

import (
	"context"
	"errors"
)

// ErrNoFrame is returned when a grab produced no usable image data
var ErrNoFrame = errors.New("camera: no frame data")

// Device produces encoded JPEG frames from a video source. ReadFrame
// blocks until a frame is available, the context is cancelled, or the
// grab fails.
type Device interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Describe() string
	Close() error
}
