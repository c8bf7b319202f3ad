// Package inference defines the detector engine capability and a registry of engine models.
// Engines read a staged multi-camera frame together with the calibration and return oriented
// boxes in the ego frame.
package inference

import (
	"context"
	"time"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/staging"
	"go.viam.com/bevdet/vision/boxes"
)

// Frame is read access to a staged frame. *staging.Lease implements it.
type Frame interface {
	// Shape returns cameras, channels, height, width.
	Shape() (int, int, int, int)
	Order() staging.ChannelOrder
	Generation() uint64
	Bytes() ([]byte, error)
}

var _ Frame = (*staging.Lease)(nil)

// Result is the output of one inference.
type Result struct {
	Boxes []boxes.OrientedBox
	// Elapsed is the time the engine spent, as measured by the engine.
	Elapsed time.Duration
}

// Engine runs the detector. Infer is never called concurrently on one engine and frame is
// only valid until Infer returns.
type Engine interface {
	Infer(ctx context.Context, frame Frame, calib *calibration.Calibration) (Result, error)
	Close(ctx context.Context) error
}
