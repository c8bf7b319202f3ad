// Package boxes defines the oriented 3D boxes produced by the detector and their flat text form.
package boxes

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// OrientedBox is a detected object. Center is the box center in meters; Length runs along
// the heading, Width across it and Height along the up axis. Yaw is the heading in radians,
// right-handed about the up axis. VX and VY are planar velocity in m/s.
type OrientedBox struct {
	Center r3.Vector `json:"center"`
	Length float64   `json:"length"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Yaw    float64   `json:"yaw"`
	VX     float64   `json:"vx"`
	VY     float64   `json:"vy"`
	Score  float64   `json:"score"`
	Label  int       `json:"label"`
}

// An InvalidBoxError is returned for a box with non-finite or negative geometry.
type InvalidBoxError struct {
	// Index is the position of the box in its detection list, or -1 if unknown.
	Index  int
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidBoxError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid box: %s %v %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid box %d: %s %v %s", e.Index, e.Field, e.Value, e.Reason)
}

// IsInvalidBoxError returns if the given error is an invalid box error.
func IsInvalidBoxError(err error) bool {
	var errArt *InvalidBoxError
	return errors.As(err, &errArt)
}

// Validate returns an InvalidBoxError if any field is NaN or infinite, or an extent is negative.
func (b OrientedBox) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"x", b.Center.X}, {"y", b.Center.Y}, {"z", b.Center.Z},
		{"l", b.Length}, {"w", b.Width}, {"h", b.Height},
		{"yaw", b.Yaw}, {"vx", b.VX}, {"vy", b.VY}, {"score", b.Score},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &InvalidBoxError{Index: -1, Field: f.name, Value: f.value, Reason: "is not finite"}
		}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{{"l", b.Length}, {"w", b.Width}, {"h", b.Height}} {
		if f.value < 0 {
			return &InvalidBoxError{Index: -1, Field: f.name, Value: f.value, Reason: "is negative"}
		}
	}
	return nil
}

// Footprint returns the four ground-plane corners of the box, counter-clockwise starting at
// front-left.
func (b OrientedBox) Footprint() [4]r3.Vector {
	s, c := math.Sincos(b.Yaw)
	hl, hw := b.Length/2, b.Width/2
	local := [4][2]float64{{hl, hw}, {-hl, hw}, {-hl, -hw}, {hl, -hw}}
	var out [4]r3.Vector
	for i, p := range local {
		out[i] = r3.Vector{
			X: b.Center.X + c*p[0] - s*p[1],
			Y: b.Center.Y + s*p[0] + c*p[1],
			Z: b.Center.Z,
		}
	}
	return out
}
