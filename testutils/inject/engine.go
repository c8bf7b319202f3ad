package inject

import (
	"context"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/ml/inference"
)

// Engine is an injected inference engine.
type Engine struct {
	inference.Engine
	InferFunc func(ctx context.Context, frame inference.Frame, calib *calibration.Calibration) (inference.Result, error)
	CloseFunc func(ctx context.Context) error
}

// NewEngine returns a new injected engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Infer calls the injected Infer or the real version.
func (e *Engine) Infer(ctx context.Context, frame inference.Frame, calib *calibration.Calibration) (inference.Result, error) {
	if e.InferFunc == nil {
		return e.Engine.Infer(ctx, frame, calib)
	}
	return e.InferFunc(ctx, frame, calib)
}

// Close calls the injected Close or the real version.
func (e *Engine) Close(ctx context.Context) error {
	if e.CloseFunc == nil {
		if e.Engine == nil {
			return nil
		}
		return e.Engine.Close(ctx)
	}
	return e.CloseFunc(ctx)
}
