package staging

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// ErrClosed is returned by a Buffer after Close.
var ErrClosed = errors.New("staging buffer is closed")

// ErrNotStaged is returned when lending a buffer that holds no complete frame.
var ErrNotStaged = errors.New("staging buffer holds no complete frame")

// A ShapeMismatchError is returned when a frame does not match the buffer's shape. The
// buffer is left untouched.
type ShapeMismatchError struct {
	WantCount int
	GotCount  int
	// Camera is the index of the offending image, or -1 when the count is wrong.
	Camera int
	Want   image.Point
	Got    image.Point
	// Detail is set when the size matches but the pixel storage does not.
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	if e.Camera < 0 {
		return fmt.Sprintf("shape mismatch: expected %d images, got %d", e.WantCount, e.GotCount)
	}
	if e.Detail != "" {
		return fmt.Sprintf("shape mismatch: image %d: %s", e.Camera, e.Detail)
	}
	return fmt.Sprintf("shape mismatch: image %d is %dx%d, expected %dx%d",
		e.Camera, e.Got.X, e.Got.Y, e.Want.X, e.Want.Y)
}

// IsShapeMismatchError returns if the given error is a shape mismatch.
func IsShapeMismatchError(err error) bool {
	var errArt *ShapeMismatchError
	return errors.As(err, &errArt)
}
