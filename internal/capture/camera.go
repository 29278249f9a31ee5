package capture

import (
	"context"
	"image"
)

type Facing string

const (
	FacingAny         Facing = ""
	FacingEnvironment Facing = "environment"
)

// Constraints describe a device request. Zero Width/Height means no
// resolution hint.
type Constraints struct {
	Facing Facing
	Width  int
	Height int
}

// DefaultLadder is tried in order until a camera opens: the preferred
// rear camera at 1080p, the rear camera at any resolution, then any camera.
var DefaultLadder = []Constraints{
	{Facing: FacingEnvironment, Width: 1920, Height: 1080},
	{Facing: FacingEnvironment},
	{Facing: FacingAny},
}

// Camera acquires exclusive device streams. Open must not return a stream
// together with a non-nil error.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open device handle. Dimensions reports (0, 0) until the
// device has produced a real frame. Close releases the device.
type Stream interface {
	Dimensions() (width, height int)
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}
