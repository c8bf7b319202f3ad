// Package pipeline drives frames through loading, staging, inference, frame conversion and
// publishing, one cycle at a time.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/bevdet/calibration"
	"go.viam.com/bevdet/logging"
	"go.viam.com/bevdet/ml/inference"
	"go.viam.com/bevdet/publish"
	"go.viam.com/bevdet/referenceframe"
	"go.viam.com/bevdet/sensors"
	"go.viam.com/bevdet/staging"
	"go.viam.com/bevdet/utils"
	"go.viam.com/bevdet/vision/boxes"
)

// DefaultQueueSize is how many triggers may wait while a cycle runs.
const DefaultQueueSize = 10

const drainPollInterval = 5 * time.Millisecond

// Config tunes the orchestrator.
type Config struct {
	// QueueSize bounds pending triggers. Triggers arriving at a full queue are dropped.
	QueueSize int
	// InferenceTimeout aborts a cycle whose engine has not answered in time. Zero waits forever.
	InferenceTimeout time.Duration
	Policy           FailurePolicy
	// Engine names the engine in errors and logs.
	Engine string
}

// Dependencies are the collaborators the orchestrator drives. The orchestrator owns them
// once constructed and closes them on Close.
type Dependencies struct {
	Calibration *calibration.Calibration
	Buffer      *staging.Buffer
	Source      sensors.Source
	Engine      inference.Engine
	Transformer *referenceframe.BoxTransformer
	Publisher   publish.Publisher
	Clock       clock.Clock
}

// Orchestrator runs cycles from a FIFO trigger queue on a single worker, so cycles never
// overlap and run in trigger order.
type Orchestrator struct {
	cfg    Config
	deps   Dependencies
	clock  clock.Clock
	logger logging.Logger

	queue   chan Trigger
	pending atomic.Int64
	seq     atomic.Uint64
	stats   *cycleStats
	cycleMu sync.Mutex

	mu      sync.Mutex
	state   State
	hooks   []StateHook
	workers utils.StoppableWorkers
	done    chan struct{}
	err     error
	closed  bool
}

// New returns an orchestrator. Call Start to begin consuming triggers.
func New(cfg Config, deps Dependencies, logger logging.Logger) (*Orchestrator, error) {
	switch {
	case deps.Calibration == nil:
		return nil, errors.New("orchestrator needs a calibration")
	case deps.Buffer == nil:
		return nil, errors.New("orchestrator needs a staging buffer")
	case deps.Source == nil:
		return nil, errors.New("orchestrator needs a sensor source")
	case deps.Engine == nil:
		return nil, errors.New("orchestrator needs an inference engine")
	case deps.Transformer == nil:
		return nil, errors.New("orchestrator needs a box transformer")
	case deps.Publisher == nil:
		return nil, errors.New("orchestrator needs a publisher")
	}
	n, _, h, w := deps.Buffer.Shape()
	cw, ch := deps.Calibration.ImageSize()
	if n != deps.Calibration.NumCameras() || w != cw || h != ch {
		return nil, errors.Errorf("staging buffer holds %d images of %dx%d but calibration has %d cameras of %dx%d",
			n, w, h, deps.Calibration.NumCameras(), cw, ch)
	}
	if err := cfg.Policy.Validate("failure_policy"); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.InferenceTimeout < 0 {
		return nil, errors.Errorf("inference timeout must not be negative, got %s", cfg.InferenceTimeout)
	}
	if cfg.Engine == "" {
		cfg.Engine = "engine"
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		clock:  clk,
		logger: logger,
		queue:  make(chan Trigger, cfg.QueueSize),
		stats:  newCycleStats(),
		done:   make(chan struct{}),
	}, nil
}

// OnStateChange registers hook for every later state change.
func (o *Orchestrator) OnStateChange(hook StateHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, hook)
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(cycle string, to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	hooks := append([]StateHook(nil), o.hooks...)
	o.mu.Unlock()
	if from == to {
		return
	}
	o.logger.Debugw("state change", "cycle", cycle, "from", from, "to", to)
	for _, hook := range hooks {
		hook(cycle, from, to)
	}
}

// Start begins consuming triggers until ctx ends, Close is called, or a cycle fails with a
// fatal policy.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.workers != nil || o.closed {
		return
	}
	o.logger.Infow("starting orchestrator",
		"cameras", o.deps.Calibration.Names(),
		"queue_size", o.cfg.QueueSize,
		"inference_timeout", o.cfg.InferenceTimeout,
		"staging_bytes", o.deps.Buffer.Len())
	o.workers = utils.NewStoppableWorkersWithContext(ctx, o.run)
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-o.queue:
			_, err := o.RunCycle(ctx, t)
			o.pending.Add(-1)
			if err != nil && IsFatal(err) {
				o.mu.Lock()
				o.err = err
				o.mu.Unlock()
				o.logger.Errorw("stopping after fatal cycle failure", "error", err)
				return
			}
		}
	}
}

// Stop stops the worker and waits for it to exit. Pending triggers stay queued; collaborators
// stay open until Close.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	workers := o.workers
	o.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}

// Done is closed when the worker started by Start has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Err returns the fatal cycle error that stopped the worker, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Submit queues t without blocking. It returns ErrQueueFull, dropping t, if the queue is
// full. A zero Seq is assigned the next sequence number and a zero Stamp the current time.
func (o *Orchestrator) Submit(t Trigger) error {
	o.mu.Lock()
	stopped := o.closed || o.err != nil
	o.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if t.Seq == 0 {
		t.Seq = o.seq.Add(1)
	}
	if t.Stamp.IsZero() {
		t.Stamp = o.clock.Now()
	}
	o.pending.Add(1)
	select {
	case o.queue <- t:
		return nil
	default:
		o.pending.Add(-1)
		o.stats.dropTrigger()
		o.logger.Warnw("dropping trigger, queue is full", "seq", t.Seq, "source", t.Source, "queue_size", cap(o.queue))
		return ErrQueueFull
	}
}

// Drain waits until every queued trigger has run. It returns early with the fatal error
// when the worker exits, or with ctx's error when ctx ends first.
func (o *Orchestrator) Drain(ctx context.Context) error {
	for o.pending.Load() > 0 {
		select {
		case <-o.done:
			return o.Err()
		default:
		}
		if !goutils.SelectContextOrWait(ctx, drainPollInterval) {
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns a snapshot of the cycle counters and latencies.
func (o *Orchestrator) Stats() StatsSnapshot {
	return o.stats.snapshot()
}

// RunCycle runs one cycle for t and returns what was published. Calls are serialized, so
// cycles run by the worker and by direct callers never overlap.
func (o *Orchestrator) RunCycle(ctx context.Context, t Trigger) (*publish.Result, error) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	ctx, span := trace.StartSpan(ctx, "pipeline::Orchestrator::RunCycle")
	defer span.End()

	cycle := uuid.New().String()
	span.AddAttributes(trace.StringAttribute("cycle", cycle), trace.Int64Attribute("seq", int64(t.Seq)))
	start := o.clock.Now()
	o.stats.start()
	defer o.setState(cycle, StateIdle)

	state := StateLoading
	fail := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		class := Classify(err, state)
		action := o.cfg.Policy.ActionFor(class)
		if action == Drop {
			action = Skip
		}
		o.stats.fail(class)
		span.SetStatus(trace.Status{Code: trace.StatusCodeAborted, Message: err.Error()})
		o.logger.Warnw("cycle failed", "cycle", cycle, "seq", t.Seq, "state", state, "class", class, "action", action, "error", err)
		return &CycleError{Cycle: cycle, Seq: t.Seq, State: state, Class: class, Action: action, Err: err}
	}

	o.setState(cycle, StateLoading)
	capture, err := o.load(ctx)
	if err != nil {
		return nil, fail(err)
	}
	defer capture.Release()

	state = StateStaging
	o.setState(cycle, state)
	if err := o.stage(ctx, capture); err != nil {
		return nil, fail(err)
	}

	state = StateInferring
	o.setState(cycle, state)
	inferStart := o.clock.Now()
	result, err := o.infer(ctx)
	if err != nil {
		return nil, fail(err)
	}
	inferElapsed := result.Elapsed
	if inferElapsed <= 0 {
		inferElapsed = o.clock.Since(inferStart)
	}

	state = StateTransforming
	o.setState(cycle, state)
	sensorBoxes, dropped, err := o.transform(ctx, result)
	if err != nil {
		return nil, fail(err)
	}

	state = StatePublishing
	o.setState(cycle, state)
	res := &publish.Result{
		Cycle: cycle,
		Seq:   t.Seq,
		Stamp: capture.Stamp,
		Boxes: sensorBoxes,
		Cloud: capture.Cloud,
	}
	if err := o.publish(ctx, res); err != nil {
		return nil, fail(err)
	}

	elapsed := o.clock.Since(start)
	o.stats.complete(elapsed, inferElapsed, dropped)
	o.logger.Debugw("cycle complete",
		"cycle", cycle,
		"seq", t.Seq,
		"boxes", len(sensorBoxes),
		"dropped_boxes", dropped,
		"inference", inferElapsed,
		"elapsed", elapsed)
	return res, nil
}

func (o *Orchestrator) load(ctx context.Context) (*sensors.Capture, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline::Orchestrator::load")
	defer span.End()
	return o.deps.Source.Capture(ctx)
}

func (o *Orchestrator) stage(ctx context.Context, capture *sensors.Capture) error {
	ctx, span := trace.StartSpan(ctx, "pipeline::Orchestrator::stage")
	defer span.End()
	return o.deps.Buffer.Stage(ctx, capture.Images)
}

type inferOutcome struct {
	result inference.Result
	err    error
}

// infer lends the staged frame to the engine. On timeout it returns without waiting for
// the engine; the lease is released only when the engine returns, so the next Stage waits
// for the abandoned call to finish.
func (o *Orchestrator) infer(ctx context.Context) (inference.Result, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline::Orchestrator::infer")
	defer span.End()

	lease, err := o.deps.Buffer.Lend(ctx)
	if err != nil {
		return inference.Result{}, err
	}

	inferCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.cfg.InferenceTimeout > 0 {
		inferCtx, cancel = o.clock.WithTimeout(ctx, o.cfg.InferenceTimeout)
	}
	defer cancel()

	outcome := make(chan inferOutcome, 1)
	goutils.PanicCapturingGoWithCallback(func() {
		defer lease.Release()
		res, err := o.deps.Engine.Infer(inferCtx, lease, o.deps.Calibration)
		outcome <- inferOutcome{result: res, err: err}
	}, func(err interface{}) {
		outcome <- inferOutcome{err: errors.Errorf("engine panicked: %v", err)}
	})

	select {
	case out := <-outcome:
		if out.err != nil {
			if ctx.Err() != nil {
				return inference.Result{}, ctx.Err()
			}
			if errors.Is(out.err, context.DeadlineExceeded) && inferCtx.Err() != nil {
				return inference.Result{}, inference.NewTimeoutError(o.cfg.Engine, o.cfg.InferenceTimeout)
			}
			if !inference.IsFailureError(out.err) {
				out.err = inference.NewFailureError(o.cfg.Engine, out.err)
			}
			return inference.Result{}, out.err
		}
		return out.result, nil
	case <-inferCtx.Done():
		if ctx.Err() != nil {
			return inference.Result{}, ctx.Err()
		}
		return inference.Result{}, inference.NewTimeoutError(o.cfg.Engine, o.cfg.InferenceTimeout)
	}
}

func (o *Orchestrator) transform(ctx context.Context, result inference.Result) ([]boxes.OrientedBox, int, error) {
	_, span := trace.StartSpan(ctx, "pipeline::Orchestrator::transform")
	defer span.End()
	return o.deps.Transformer.Transform(result.Boxes)
}

func (o *Orchestrator) publish(ctx context.Context, res *publish.Result) error {
	ctx, span := trace.StartSpan(ctx, "pipeline::Orchestrator::publish")
	defer span.End()
	return o.deps.Publisher.Publish(ctx, res)
}

// Close stops the worker, waits for an abandoned inference to return, and closes every
// collaborator. The staging memory is freed exactly once.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	workers := o.workers
	o.mu.Unlock()

	if workers != nil {
		workers.Stop()
	} else {
		close(o.done)
	}
	return multierr.Combine(
		o.deps.Source.Close(ctx),
		o.deps.Buffer.Close(ctx),
		o.deps.Engine.Close(ctx),
		o.deps.Publisher.Close(ctx),
	)
}
