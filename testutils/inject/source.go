package inject

import (
	"context"

	"go.viam.com/bevdet/sensors"
)

// Source is an injected sensor source.
type Source struct {
	sensors.Source
	CaptureFunc func(ctx context.Context) (*sensors.Capture, error)
	CloseFunc   func(ctx context.Context) error
}

// NewSource returns a new injected source.
func NewSource() *Source {
	return &Source{}
}

// Capture calls the injected Capture or the real version.
func (s *Source) Capture(ctx context.Context) (*sensors.Capture, error) {
	if s.CaptureFunc == nil {
		return s.Source.Capture(ctx)
	}
	return s.CaptureFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *Source) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		if s.Source == nil {
			return nil
		}
		return s.Source.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
