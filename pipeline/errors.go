package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStopped is returned for triggers submitted after the orchestrator stopped.
	ErrStopped = errors.New("orchestrator is stopped")
	// ErrQueueFull is returned for triggers that arrive while the queue is full.
	ErrQueueFull = errors.New("trigger queue is full")
)

// A CycleError describes a failed cycle.
type CycleError struct {
	Cycle  string
	Seq    uint64
	State  State
	Class  ErrorClass
	Action Action
	Err    error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d failed in %s (%s): %v", e.Seq, e.State, e.Class, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// IsCycleError returns if the given error is a cycle error.
func IsCycleError(err error) bool {
	var errArt *CycleError
	return errors.As(err, &errArt)
}

// IsFatal returns if err is a cycle error whose policy stops the orchestrator.
func IsFatal(err error) bool {
	var errArt *CycleError
	return errors.As(err, &errArt) && errArt.Action == Fatal
}
