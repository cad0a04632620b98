package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/picklr-io/provprobe/internal/logging"
)

// ErrHandleInUse is returned when Create hands back a handle another run on
// the same controller still owns.
var ErrHandleInUse = errors.New("handle already owned by another lifecycle")

// EventType is the kind of progress event emitted during a lifecycle.
type EventType string

const (
	EventCreated   EventType = "created"
	EventPolled    EventType = "polled"
	EventReady     EventType = "ready"
	EventExhausted EventType = "exhausted"
	EventDeleted   EventType = "deleted"
	EventFailed    EventType = "failed"
)

// Event represents a progress event during a lifecycle.
type Event struct {
	Type     EventType
	Phase    Phase
	Kind     string
	Handle   Handle
	Attempt  int
	Status   Status
	Duration time.Duration
	Err      error
}

// EventCallback is called for each lifecycle event if set.
type EventCallback func(event Event)

// TrackedResource is what a Tracker records for a live resource.
type TrackedResource struct {
	Kind      string
	Handle    Handle
	Name      string
	CreatedAt time.Time
}

// Tracker records resources between create and a successful delete so they
// can be found again if the process dies mid-lifecycle.
type Tracker interface {
	Track(ctx context.Context, res TrackedResource) error
	Release(ctx context.Context, kind string, handle Handle) error
}

// Result describes a finished lifecycle. An exhausted poll is a normal result.
type Result struct {
	Kind     string
	Name     string
	Handle   Handle
	Outcome  Outcome
	Attempts int
	Last     Status
	Deleted  bool
	Duration time.Duration
}

// Controller drives one resource at a time through create, poll and delete.
// A single Controller may run several lifecycles concurrently; each handle is
// owned by exactly one of them.
type Controller struct {
	client   ControlPlane
	tracker  Tracker
	metrics  *Metrics
	callback EventCallback
	sleep    SleepFunc

	mu     sync.Mutex
	active map[Handle]struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithTracker records created resources until they are deleted.
func WithTracker(t Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

// WithMetrics records lifecycle metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithCallback receives progress events.
func WithCallback(cb EventCallback) Option {
	return func(c *Controller) { c.callback = cb }
}

// WithSleepFunc replaces the wait between poll attempts.
func WithSleepFunc(fn SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

func NewController(client ControlPlane, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		sleep:  Sleep,
		active: make(map[Handle]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run creates the resource described by spec, polls it according to policy
// and deletes it. Once create has succeeded, delete is attempted exactly once
// on every return path, including describe errors and cancellation.
func (c *Controller) Run(ctx context.Context, spec ResourceSpec, policy Policy) (result *Result, err error) {
	if spec == nil {
		return nil, &LifecycleError{Phase: PhaseCreate, Err: errors.New("resource spec is nil")}
	}
	policy = policy.withDefaults()
	kind := spec.Kind()
	start := time.Now()
	name := policy.Namer()
	log := logging.With("kind", kind, "name", name)

	log.Info("creating resource")
	handle, err := c.create(ctx, CreateRequest{Name: name, Spec: spec}, policy.CallTimeout)
	if err != nil {
		c.emit(Event{Type: EventFailed, Phase: PhaseCreate, Kind: kind, Duration: time.Since(start), Err: err})
		c.metrics.observeRun(kind, "create_failed", time.Since(start))
		return nil, &LifecycleError{Phase: PhaseCreate, Kind: kind, Err: err}
	}
	if err := c.acquire(handle); err != nil {
		// The run that owns handle tracks and deletes it.
		log.Warn("created handle is owned by another lifecycle, leaving teardown to it", "handle", handle.String())
		c.metrics.observeRun(kind, "create_failed", time.Since(start))
		return nil, &LifecycleError{Phase: PhaseCreate, Kind: kind, Handle: handle, Err: err}
	}
	defer c.release(handle)

	log = log.With("handle", handle.String())
	log.Info("resource created")
	c.emit(Event{Type: EventCreated, Phase: PhaseCreate, Kind: kind, Handle: handle, Duration: time.Since(start)})
	c.track(ctx, TrackedResource{Kind: kind, Handle: handle, Name: name, CreatedAt: start})

	result = &Result{Kind: kind, Name: name, Handle: handle, Outcome: OutcomeExhausted}
	var pollErr error
	completed := false

	defer func() {
		teardownErr := c.teardown(ctx, kind, handle, policy.TeardownTimeout)
		result.Duration = time.Since(start)
		if teardownErr == nil {
			result.Deleted = true
			c.untrack(ctx, kind, handle)
		}

		switch {
		case !completed:
			c.metrics.observeRun(kind, "panicked", result.Duration)
		case pollErr != nil:
			err = &LifecycleError{Phase: PhasePoll, Kind: kind, Handle: handle, Err: pollErr, TeardownErr: teardownErr}
			c.metrics.observeRun(kind, "poll_failed", result.Duration)
		case teardownErr != nil:
			err = &LifecycleError{Phase: PhaseDelete, Kind: kind, Handle: handle, TeardownErr: teardownErr}
			c.metrics.observeRun(kind, "delete_failed", result.Duration)
		default:
			c.metrics.observeRun(kind, string(result.Outcome), result.Duration)
		}
	}()

	poller := NewPoller(DescriberFunc(func(ctx context.Context, h Handle) (Status, error) {
		status, err := c.client.Describe(ctx, h)
		c.metrics.observeCall(kind, "describe", err)
		return status, err
	})).WithSleep(c.sleep)
	poller.OnAttempt = func(attempt int, status Status, ready bool) {
		c.metrics.observeAttempt(kind)
		c.emit(Event{Type: EventPolled, Phase: PhasePoll, Kind: kind, Handle: handle, Attempt: attempt, Status: status})
	}

	pr, pollErr := poller.PollUntilReady(ctx, handle, policy)
	completed = true
	result.Attempts = pr.Attempts
	result.Last = pr.Last
	if pollErr != nil {
		log.Error("polling failed, tearing down", "attempt", pr.Attempts, "error", pollErr)
		c.emit(Event{Type: EventFailed, Phase: PhasePoll, Kind: kind, Handle: handle, Attempt: pr.Attempts, Err: pollErr})
		return result, nil
	}

	result.Outcome = pr.Outcome
	if pr.Outcome == OutcomeReady {
		c.emit(Event{Type: EventReady, Phase: PhasePoll, Kind: kind, Handle: handle, Attempt: pr.Attempts, Status: pr.Last})
	} else {
		log.Warn("resource not ready within attempt budget", "attempts", pr.Attempts, "status", pr.Last.State)
		c.emit(Event{Type: EventExhausted, Phase: PhasePoll, Kind: kind, Handle: handle, Attempt: pr.Attempts, Status: pr.Last})
	}
	return result, nil
}

func (c *Controller) create(ctx context.Context, req CreateRequest, timeout time.Duration) (Handle, error) {
	callCtx, cancel := WithTimeout(ctx, timeout)
	defer cancel()

	handle, err := c.client.Create(callCtx, req)
	c.metrics.observeCall(req.Spec.Kind(), "create", err)
	if err != nil {
		return "", err
	}
	if handle == "" {
		return "", fmt.Errorf("control plane returned an empty handle for %q", req.Name)
	}
	return handle, nil
}

// teardown deletes handle with a context that survives cancellation of ctx.
// A not-found answer counts as deleted.
func (c *Controller) teardown(ctx context.Context, kind string, handle Handle, timeout time.Duration) error {
	delCtx, cancel := teardownContext(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.client.Delete(delCtx, handle)
	c.metrics.observeCall(kind, "delete", err)
	if errors.Is(err, ErrNotFound) {
		logging.Warn("resource already gone at teardown", "kind", kind, "handle", handle.String())
		err = nil
	}
	if err != nil {
		logging.Error("teardown failed", "kind", kind, "handle", handle.String(), "error", err)
		c.emit(Event{Type: EventFailed, Phase: PhaseDelete, Kind: kind, Handle: handle, Duration: time.Since(start), Err: err})
		return err
	}
	logging.Info("resource deleted", "kind", kind, "handle", handle.String())
	c.emit(Event{Type: EventDeleted, Phase: PhaseDelete, Kind: kind, Handle: handle, Duration: time.Since(start)})
	return nil
}

func (c *Controller) acquire(handle Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[handle]; ok {
		return fmt.Errorf("%w: %s", ErrHandleInUse, handle)
	}
	c.active[handle] = struct{}{}
	return nil
}

func (c *Controller) release(handle Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, handle)
}

func (c *Controller) track(ctx context.Context, res TrackedResource) {
	if c.tracker == nil {
		return
	}
	if err := c.tracker.Track(ctx, res); err != nil {
		logging.Warn("failed to record resource in ledger", "kind", res.Kind, "handle", res.Handle.String(), "error", err)
	}
}

func (c *Controller) untrack(ctx context.Context, kind string, handle Handle) {
	if c.tracker == nil {
		return
	}
	if err := c.tracker.Release(context.WithoutCancel(ctx), kind, handle); err != nil {
		logging.Warn("failed to drop resource from ledger", "kind", kind, "handle", handle.String(), "error", err)
	}
}

func (c *Controller) emit(event Event) {
	if c.callback != nil {
		c.callback(event)
	}
}
