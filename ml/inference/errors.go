package inference

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// A FailureError is returned when an engine fails or does not answer in time. The cycle's
// results are discarded.
type FailureError struct {
	Engine  string
	Timeout bool
	Reason  error
}

func (e *FailureError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("inference engine %q timed out: %s", e.Engine, e.Reason)
	}
	return fmt.Sprintf("inference engine %q failed: %s", e.Engine, e.Reason)
}

func (e *FailureError) Unwrap() error {
	return e.Reason
}

// NewFailureError wraps an engine error.
func NewFailureError(engine string, err error) error {
	return &FailureError{Engine: engine, Reason: err}
}

// NewTimeoutError reports an engine that did not finish within timeout.
func NewTimeoutError(engine string, timeout time.Duration) error {
	return &FailureError{Engine: engine, Timeout: true, Reason: errors.Errorf("no result after %s", timeout)}
}

// IsFailureError returns if the given error is an inference failure.
func IsFailureError(err error) bool {
	var errArt *FailureError
	return errors.As(err, &errArt)
}
