// Package fake implements an inference engine that returns configured boxes. It is used for
// wiring tests and for running the node without an accelerator.
package fake

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/ml/inference"
	"go.viam.com/bevdet/vision/boxes"
)

// Model is the registered engine name.
const Model = "fake"

func init() {
	inference.Register(Model, func(
		ctx context.Context,
		calib *calibration.Calibration,
		attrs inference.Attributes,
		logger logging.Logger,
	) (inference.Engine, error) {
		var conf Config
		if err := inference.DecodeAttributes(attrs, &conf); err != nil {
			return nil, err
		}
		return NewEngine(conf, logger)
	})
}

// BoxConfig is one box the engine reports, in the ego frame.
type BoxConfig struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	L     float64 `json:"l"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Yaw   float64 `json:"yaw"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Score float64 `json:"score"`
	Label int     `json:"label"`
}

// Config is the engine's attributes.
type Config struct {
	Boxes []BoxConfig `json:"boxes"`
	// Delay is how long each inference takes.
	Delay time.Duration `json:"delay"`
	// FailEvery makes every n-th inference fail. Zero never fails.
	FailEvery int `json:"fail_every"`
	// CheckFrame verifies that the staged frame matches the calibration.
	CheckFrame bool `json:"check_frame"`
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Delay < 0 {
		return errors.Errorf("delay must not be negative, got %s", c.Delay)
	}
	if c.FailEvery < 0 {
		return errors.Errorf("fail_every must not be negative, got %d", c.FailEvery)
	}
	return nil
}

// Engine is the fake engine.
type Engine struct {
	conf   Config
	boxes  []boxes.OrientedBox
	calls  atomic.Int64
	logger logging.Logger
}

// NewEngine builds a fake engine.
func NewEngine(conf Config, logger logging.Logger) (*Engine, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	out := make([]boxes.OrientedBox, 0, len(conf.Boxes))
	for _, b := range conf.Boxes {
		out = append(out, boxes.OrientedBox{
			Center: r3.Vector{X: b.X, Y: b.Y, Z: b.Z},
			Length: b.L, Width: b.W, Height: b.H,
			Yaw: b.Yaw, VX: b.VX, VY: b.VY,
			Score: b.Score, Label: b.Label,
		})
	}
	return &Engine{conf: conf, boxes: out, logger: logger}, nil
}

// Infer returns the configured boxes after the configured delay.
func (e *Engine) Infer(ctx context.Context, frame inference.Frame, calib *calibration.Calibration) (inference.Result, error) {
	start := time.Now()
	call := e.calls.Add(1)
	if e.conf.CheckFrame {
		if err := checkFrame(frame, calib); err != nil {
			return inference.Result{}, err
		}
	}
	if e.conf.Delay > 0 {
		timer := time.NewTimer(e.conf.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return inference.Result{}, ctx.Err()
		}
	}
	if e.conf.FailEvery > 0 && call%int64(e.conf.FailEvery) == 0 {
		return inference.Result{}, errors.Errorf("injected failure on call %d", call)
	}
	e.logger.Debugw("fake inference", "call", call, "generation", frame.Generation(), "boxes", len(e.boxes))
	return inference.Result{
		Boxes:   append([]boxes.OrientedBox(nil), e.boxes...),
		Elapsed: time.Since(start),
	}, nil
}

func checkFrame(frame inference.Frame, calib *calibration.Calibration) error {
	t, err := inference.FrameTensor(frame)
	if err != nil {
		return err
	}
	w, h := calib.ImageSize()
	want := tensor.Shape{calib.NumCameras(), 3, h, w}
	if !t.Shape().Eq(want) {
		return errors.Errorf("frame shape %v does not match calibration %v", t.Shape(), want)
	}
	return nil
}

// Calls returns how many times Infer was called.
func (e *Engine) Calls() int {
	return int(e.calls.Load())
}

// Close does nothing.
func (e *Engine) Close(ctx context.Context) error {
	return nil
}
