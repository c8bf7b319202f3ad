package testutils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.viam.com/bevdet/staging"
)

// Interval is one timed operation observed by a Recorder.
type Interval struct {
	Kind  string
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Recorder collects intervals from instrumented collaborators. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Interval
}

// Record stores an interval of kind that started at start and ends now.
func (r *Recorder) Record(kind string, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Interval{Kind: kind, Start: start, End: time.Now()})
}

// Events returns the recorded intervals of the given kinds, or all of them.
func (r *Recorder) Events(kinds ...string) []Interval {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Interval
	for _, e := range r.events {
		if len(kinds) == 0 {
			out = append(out, e)
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// AnyOverlap reports whether any interval in a overlaps any interval in b.
func AnyOverlap(a, b []Interval) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Overlaps(y) {
				return true
			}
		}
	}
	return false
}

// InstrumentedMemory wraps device memory, timing every copy and counting frees.
type InstrumentedMemory struct {
	staging.DeviceMemory
	Recorder  *Recorder
	CopyDelay time.Duration

	mu      sync.Mutex
	copyErr error
	copies  atomic.Int32
	frees   atomic.Int32
}

// NewInstrumentedMemory wraps mem.
func NewInstrumentedMemory(mem staging.DeviceMemory, recorder *Recorder) *InstrumentedMemory {
	if recorder == nil {
		recorder = &Recorder{}
	}
	return &InstrumentedMemory{DeviceMemory: mem, Recorder: recorder}
}

// FailCopies makes every later CopyFromHost return err; nil restores normal copies.
func (m *InstrumentedMemory) FailCopies(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copyErr = err
}

// CopyFromHost records a "copy" interval around the wrapped copy.
func (m *InstrumentedMemory) CopyFromHost(ctx context.Context, offset int, src []byte) error {
	start := time.Now()
	defer m.Recorder.Record("copy", start)
	m.copies.Add(1)
	if m.CopyDelay > 0 {
		select {
		case <-time.After(m.CopyDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	err := m.copyErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.DeviceMemory.CopyFromHost(ctx, offset, src)
}

// Free counts calls and forwards them.
func (m *InstrumentedMemory) Free() error {
	m.frees.Add(1)
	return m.DeviceMemory.Free()
}

// Copies returns how many copies were attempted.
func (m *InstrumentedMemory) Copies() int {
	return int(m.copies.Load())
}

// Frees returns how many times Free was called.
func (m *InstrumentedMemory) Frees() int {
	return int(m.frees.Load())
}
