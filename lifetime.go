package assembly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/centraunit/assembly/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// State is the run state of a lifetime.
type State int

const (
	StateNotStarted State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateTerminated || s == StateFailed
}

// StopReason tells stop callbacks why the lifetime is stopping.
type StopReason int32

const (
	StopNormal StopReason = iota
	// StopAborted interrupts a start in progress.
	StopAborted
	// StopForced follows a start timeout.
	StopForced
)

func (r StopReason) String() string {
	switch r {
	case StopAborted:
		return "aborted"
	case StopForced:
		return "forced"
	default:
		return "normal"
	}
}

// StopOptions configures Stop.
type StopOptions struct {
	Reason StopReason
}

// Controller drives one lifetime of a Plan: its own storage, its own run
// state. Initialize, Start and Stop are serialised; Stop may be requested
// while Start runs and takes effect at the next phase boundary.
type Controller struct {
	id    string
	plan  *Plan
	opts  options
	frame *frame
	root  *LifetimeContext

	// driver serialises Initialize, Start and Stop. driving holds the
	// goroutine that owns it, zero when none.
	driver  sync.Mutex
	driving atomic.Int64

	mu          sync.Mutex
	state       State
	initialized bool
	cause       error
	changed     chan struct{}

	// stopRequest holds the requested StopReason plus one, zero when no stop
	// was requested.
	stopRequest atomic.Int32

	// guarded by driver
	stopped [2][]bool
	started map[*bean]bool
	failure struct {
		list OperationList
		rank int
	}
}

// NewLifetime creates a lifetime of p in state NotStarted. Plans built with
// WithParent need the parent plan's lifetime through WithParentLifetime.
func (p *Plan) NewLifetime(opts ...Option) (*Controller, error) {
	o := newOptions(p.opts, opts)
	c := &Controller{
		id:      uuid.NewString(),
		plan:    p,
		opts:    o,
		state:   StateNotStarted,
		changed: make(chan struct{}),
		started: make(map[*bean]bool),
	}

	var parent *frame
	if p.parent != nil {
		if o.parentLifetime == nil {
			return nil, ErrNoParentLifetime
		}
		if o.parentLifetime.plan != p.parent {
			return nil, fmt.Errorf("%w: lifetime %s runs a different plan", ErrNoParentLifetime, o.parentLifetime.id)
		}
		parent = o.parentLifetime.frame
	}
	c.frame = &frame{
		store:  newStore(p.arena),
		parent: parent,
		constructed: func(bean string) {
			o.metrics.Constructed(bean)
			o.logger.Debug("bean constructed", zap.String("lifetime", c.id), zap.String("bean", bean))
		},
	}

	c.root = NewLifetimeContext(context.Background())
	c.root.lifetime = c.id
	for k, v := range o.values {
		c.root.values.Store(k, v)
	}
	c.stopped[0] = make([]bool, len(p.lists[StopPre]))
	c.stopped[1] = make([]bool, len(p.lists[StopPost]))
	return c, nil
}

// ID returns the unique lifetime ID.
func (c *Controller) ID() string { return c.id }

// Plan returns the plan the lifetime runs.
func (c *Controller) Plan() *Plan { return c.plan }

// State returns the current run state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialized reports whether Initialize completed.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Err returns the failure that moved the lifetime to StateFailed, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Initialize runs init-pre then init-post. A callback failure moves the
// lifetime to StateFailed with no unwind. Calling Initialize again after
// success is a no-op.
func (c *Controller) Initialize(ctx context.Context) error {
	release, ok := c.drive()
	if !ok {
		return &StateTransitionError{From: c.State(), Operation: "initialize"}
	}
	defer release()

	c.mu.Lock()
	state, initialized := c.state, c.initialized
	cause := c.cause
	c.mu.Unlock()
	switch {
	case state == StateInitializing && initialized:
		return nil
	case state != StateNotStarted:
		return &StateTransitionError{From: state, Operation: "initialize", Cause: cause}
	}
	return c.initialize(ctx)
}

func (c *Controller) initialize(ctx context.Context) error {
	c.transition(StateInitializing, nil)
	err := c.runPhase(ctx, PhaseInitialize, InitPre, InitPost)
	switch {
	case err == nil:
		c.mu.Lock()
		c.initialized = true
		c.mu.Unlock()
		return nil
	case errors.Is(err, ErrAborted):
		return c.abort(ctx)
	default:
		c.transition(StateFailed, err)
		return err
	}
}

// Start runs start-pre then start-post, initializing first if needed. On a
// callback failure the lifetime moves to StateFailed and the stop callbacks of
// already started beans run before the error is returned. A stop request or a
// cancelled ctx seen at a phase boundary runs the stop sequence and returns
// ErrAborted.
func (c *Controller) Start(ctx context.Context) error {
	release, ok := c.drive()
	if !ok {
		return &StateTransitionError{From: c.State(), Operation: "start"}
	}
	defer release()

	c.mu.Lock()
	state, initialized := c.state, c.initialized
	cause := c.cause
	c.mu.Unlock()
	switch {
	case state == StateRunning:
		return nil
	case state == StateNotStarted:
		if err := c.initialize(ctx); err != nil {
			return err
		}
	case state == StateInitializing && initialized:
	default:
		return &StateTransitionError{From: state, Operation: "start", Cause: cause}
	}

	err := c.runPhase(ctx, PhaseStart, StartPre, StartPost)
	if err == nil && c.stopRequest.Load() > 0 {
		err = ErrAborted
	}
	switch {
	case err == nil:
		c.transition(StateRunning, nil)
		return nil
	case errors.Is(err, ErrAborted):
		return c.abort(ctx)
	default:
		c.transition(StateFailed, err)
		if unwindErr := c.runStops(context.WithoutCancel(ctx), StopAborted, c.startedBefore()); unwindErr != nil {
			c.opts.logger.Warn("start unwind incomplete", zap.String("lifetime", c.id), zap.Error(unwindErr))
			err = multierr.Append(err, unwindErr)
		}
		return err
	}
}

// startedBefore selects the beans that completed their start: beans before
// the failing one in dependency order, and beans with a successful start
// callback. A start-post failure means every bean completed start-pre.
func (c *Controller) startedBefore() func(*bean) bool {
	list, rank := c.failure.list, c.failure.rank
	return func(b *bean) bool {
		return list == StartPost || b.index < rank || c.started[b]
	}
}

// abort runs every remaining stop callback with the requested reason and
// terminates the lifetime.
func (c *Controller) abort(ctx context.Context) error {
	reason := c.requestedReason()
	c.opts.logger.Info("start aborted", zap.String("lifetime", c.id), zap.Stringer("reason", reason))
	c.transition(StateStopping, nil)
	err := c.runStops(context.WithoutCancel(ctx), reason, nil)
	c.transition(StateTerminated, nil)
	return multierr.Append(ErrAborted, err)
}

// Stop runs every stop callback that has not run yet, stop-pre then
// stop-post. Callback failures do not interrupt the sequence; they are
// returned together and leave the lifetime in StateFailed. Stop on a
// terminated lifetime is a no-op.
//
// Called from a callback of a running Initialize, Start or Stop, Stop only
// records the request and returns: the running operation observes it at its
// next phase boundary.
func (c *Controller) Stop(ctx context.Context, opts StopOptions) error {
	c.stopRequest.CompareAndSwap(0, int32(opts.Reason)+1)

	release, ok := c.drive()
	if !ok {
		c.opts.logger.Debug("stop requested from callback",
			zap.String("lifetime", c.id), zap.Stringer("reason", opts.Reason))
		return nil
	}
	defer release()

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateTerminated {
		return nil
	}

	if c.opts.stopTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.stopTimeout)
		defer cancel()
	}
	if state != StateFailed {
		c.transition(StateStopping, nil)
	}
	err := c.runStops(ctx, opts.Reason, nil)
	switch {
	case err != nil:
		c.transition(StateFailed, err)
	case state != StateFailed:
		c.transition(StateTerminated, nil)
	}
	return err
}

// StopRequested reports whether Stop was called on the lifetime.
func (c *Controller) StopRequested() bool {
	return c.stopRequest.Load() > 0
}

// drive takes the driver lock for the calling goroutine. ok is false when
// that goroutine already holds it, i.e. the call comes from a callback.
func (c *Controller) drive() (release func(), ok bool) {
	g := goid()
	if c.driving.Load() == g {
		return nil, false
	}
	c.driver.Lock()
	c.driving.Store(g)
	return func() {
		c.driving.Store(0)
		c.driver.Unlock()
	}, true
}

func (c *Controller) requestedReason() StopReason {
	if r := c.stopRequest.Load(); r > 0 {
		return StopReason(r - 1)
	}
	return StopAborted
}

func (c *Controller) aborted(ctx context.Context) bool {
	return c.stopRequest.Load() > 0 || ctx.Err() != nil
}

// runPhase runs lists in order, checking for a stop request before each list.
func (c *Controller) runPhase(ctx context.Context, phase Phase, lists ...OperationList) (err error) {
	began := time.Now()
	ctx, span := telemetry.StartSpan(ctx, c.opts.tracer, "assembly."+string(phase),
		telemetry.LifetimeKey.String(c.id), telemetry.PhaseKey.String(string(phase)))
	defer func() {
		c.opts.metrics.ObservePhase(string(phase), time.Since(began), err)
		telemetry.EndSpan(span, err)
	}()

	for _, list := range lists {
		if c.aborted(ctx) {
			return ErrAborted
		}
		for _, op := range c.plan.lists[list] {
			if err := c.invoke(ctx, list, op, StopNormal); err != nil {
				c.failure.list, c.failure.rank = list, op.bean.index
				c.opts.logger.Error("lifecycle callback failed",
					zap.String("lifetime", c.id),
					zap.String("bean", op.Bean),
					zap.Stringer("list", list),
					zap.Error(err),
				)
				return err
			}
			if phase == PhaseStart {
				c.started[op.bean] = true
			}
		}
	}
	return nil
}

// runStops runs the stop lists, skipping operations that already ran, beans
// filter rejects and singletons that were never constructed.
func (c *Controller) runStops(ctx context.Context, reason StopReason, filter func(*bean) bool) (errs error) {
	began := time.Now()
	ctx, span := telemetry.StartSpan(ctx, c.opts.tracer, "assembly.stop",
		telemetry.LifetimeKey.String(c.id), telemetry.PhaseKey.String(string(PhaseStop)))
	defer func() {
		c.opts.metrics.ObservePhase(string(PhaseStop), time.Since(began), errs)
		telemetry.EndSpan(span, errs)
	}()

	for li, list := range []OperationList{StopPre, StopPost} {
		for i, op := range c.plan.lists[list] {
			if c.stopped[li][i] || (filter != nil && !filter(op.bean)) {
				continue
			}
			if _, ok := op.bean.node.peek(c.frame); !ok {
				continue
			}
			c.stopped[li][i] = true
			if err := c.invoke(ctx, list, op, reason); err != nil {
				c.opts.logger.Error("stop callback failed",
					zap.String("lifetime", c.id),
					zap.String("bean", op.Bean),
					zap.Stringer("list", list),
					zap.Error(err),
				)
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// invoke runs one operation. Panics in callbacks and constructors become a
// *LifecyclePhaseError, except arena violations which are engine bugs.
func (c *Controller) invoke(ctx context.Context, list OperationList, op Operation, reason StopReason) (err error) {
	ctx, span := telemetry.StartSpan(ctx, c.opts.tracer, "assembly.callback",
		telemetry.LifetimeKey.String(c.id),
		telemetry.BeanKey.String(op.Bean),
		telemetry.ListKey.String(list.String()),
		telemetry.CallbackKey.String(op.Callback),
	)
	fail := func(cause error) error {
		return &LifecyclePhaseError{Phase: op.Phase, Ordering: op.Ordering, Bean: op.Bean, Callback: op.Callback, Err: cause}
	}
	defer func() {
		if r := recover(); r != nil {
			if violation, ok := r.(*SlotViolationError); ok {
				span.End()
				panic(violation)
			}
			err = fail(fmt.Errorf("panic: %v", r))
		}
		c.opts.metrics.ObserveCallback(list.String(), err)
		telemetry.EndSpan(span, err)
	}()

	var instance any
	if op.Phase == PhaseStop {
		instance, _ = op.bean.node.peek(c.frame)
	} else if instance, err = op.bean.node.instance(c.frame); err != nil {
		return fail(err)
	}
	if err := op.fn(c.root.derive(ctx, op.Bean, op.Phase, reason), instance); err != nil {
		return fail(err)
	}
	return nil
}

func (c *Controller) transition(s State, cause error) {
	c.mu.Lock()
	from := c.state
	c.state = s
	if cause != nil {
		c.cause = cause
	}
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	c.opts.metrics.Transition(s.String())
	c.opts.logger.Info("lifetime state changed",
		zap.String("lifetime", c.id),
		zap.Stringer("from", from),
		zap.Stringer("to", s),
	)
}

// AwaitState blocks until the lifetime is in one of states. It returns
// ErrStateUnreachable once the lifetime settles in another terminal state.
func (c *Controller) AwaitState(ctx context.Context, states ...State) (State, error) {
	for {
		c.mu.Lock()
		current, changed := c.state, c.changed
		c.mu.Unlock()
		for _, s := range states {
			if current == s {
				return current, nil
			}
		}
		if current.terminal() {
			return current, ErrStateUnreachable
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return current, ctx.Err()
		}
	}
}

// StartAsync runs Start in a new goroutine. The channel receives its result.
func (c *Controller) StartAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	return done
}

// StopAsync runs Stop in a new goroutine. The channel receives its result.
func (c *Controller) StopAsync(ctx context.Context, opts StopOptions) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Stop(ctx, opts) }()
	return done
}

// StartWithTimeout starts the lifetime, bounded by timeout or, when timeout
// is zero, by the configured start timeout. On expiry a forced stop is
// requested: the start unwinds at its next phase boundary.
func (c *Controller) StartWithTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.opts.startTimeout
	}
	if timeout <= 0 {
		return c.Start(ctx)
	}

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := c.StartAsync(startCtx)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
	}
	c.stopRequest.CompareAndSwap(0, int32(StopForced)+1)
	cancel()
	startErr := <-done
	stopErr := c.Stop(context.WithoutCancel(ctx), StopOptions{Reason: StopForced})

	err := fmt.Errorf("assembly: start did not complete within %s: %w", timeout, context.DeadlineExceeded)
	if startErr != nil && !errors.Is(startErr, ErrAborted) {
		err = multierr.Append(err, startErr)
	}
	return multierr.Append(err, stopErr)
}

// Get returns the value bound to key, constructing a singleton on first use.
// Keys bound in a parent plan are served by the parent lifetime.
func (c *Controller) Get(key Key) (any, error) {
	if state := c.State(); state == StateTerminated {
		return nil, &StateTransitionError{From: state, Operation: "resolve from"}
	}
	b, depth, ok := c.plan.registry.lookup(key)
	if !ok {
		return nil, &BindingNotFoundError{Key: key}
	}
	v, err := hop(depth, b.producer())(c.frame)
	if err != nil {
		return nil, err
	}
	if v == NoInstance {
		return nil, ErrNoInstance
	}
	return v, nil
}

// Resolve returns the value bound to the key of T, optionally qualified.
//
//	db, err := assembly.Resolve[*Db](lifetime)
func Resolve[T any](c *Controller, qualifier ...string) (T, error) {
	var zero T
	key := KeyOf[T]()
	if len(qualifier) > 0 {
		key = key.Named(qualifier[0])
	}
	v, err := c.Get(key)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{Expected: key.Type.String(), Got: fmt.Sprintf("%T", v)}
	}
	return t, nil
}
