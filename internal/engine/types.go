package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by a ControlPlane when the handle names no resource.
var ErrNotFound = errors.New("resource not found")

// Handle identifies a remote resource returned by Create.
type Handle string

func (h Handle) String() string {
	return string(h)
}

// ResourceSpec describes a resource to create. Implementations are value types
// and are never mutated after construction.
type ResourceSpec interface {
	Kind() string
}

// CreateRequest is passed to ControlPlane.Create.
type CreateRequest struct {
	Name string
	Spec ResourceSpec
}

// Status is a single describe snapshot. Found is false when the control plane
// returned no entry for the handle.
type Status struct {
	State string
	Found bool
}

// ControlPlane is the capability set the controller needs from a resource kind.
type ControlPlane interface {
	Create(ctx context.Context, req CreateRequest) (Handle, error)
	Describe(ctx context.Context, handle Handle) (Status, error)
	Delete(ctx context.Context, handle Handle) error
}

// Outcome is the result of a polling session.
type Outcome string

const (
	OutcomeReady     Outcome = "ready"
	OutcomeExhausted Outcome = "exhausted"
)

// ReadinessFunc decides whether a status snapshot means provisioning finished.
type ReadinessFunc func(Status) bool

// StatusContains reports ready when the state contains substr.
func StatusContains(substr string) ReadinessFunc {
	return func(s Status) bool {
		return s.Found && strings.Contains(s.State, substr)
	}
}

// StatusEquals reports ready when the state equals want, ignoring case.
func StatusEquals(want string) ReadinessFunc {
	return func(s Status) bool {
		return s.Found && strings.EqualFold(s.State, want)
	}
}

// NamerFunc produces the name passed to Create.
type NamerFunc func() string

// TimestampNamer returns names of the form "<prefix>-<unix seconds>".
func TimestampNamer(prefix string) NamerFunc {
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, time.Now().Unix())
	}
}

const (
	DefaultInterval        = 10 * time.Second
	DefaultMaxAttempts     = 100
	DefaultTeardownTimeout = 5 * time.Minute
	DefaultNamePrefix      = "test"
	DefaultReadyState      = "available"
)

// Policy controls how a lifecycle is polled and torn down.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
	IsReady     ReadinessFunc
	Namer       NamerFunc

	// KeepPollingWhenReady makes every attempt even after a ready snapshot;
	// readiness is only recorded. The zero value ends polling on the first
	// ready snapshot.
	KeepPollingWhenReady bool

	TeardownTimeout time.Duration
	CallTimeout     time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Interval:        DefaultInterval,
		MaxAttempts:     DefaultMaxAttempts,
		IsReady:         StatusContains(DefaultReadyState),
		Namer:           TimestampNamer(DefaultNamePrefix),
		TeardownTimeout: DefaultTeardownTimeout,
	}
}

// MaxLifetime bounds how long a lifecycle run under p can keep its resource:
// every wait between attempts, every call deadline when one is set, and the
// teardown deadline.
func (p Policy) MaxLifetime() time.Duration {
	p = p.withDefaults()
	life := time.Duration(p.MaxAttempts)*p.Interval + p.TeardownTimeout
	if p.CallTimeout > 0 {
		// create plus one describe per attempt
		life += time.Duration(p.MaxAttempts+1) * p.CallTimeout
	}
	return life
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Interval < 0 {
		p.Interval = 0
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.IsReady == nil {
		p.IsReady = d.IsReady
	}
	if p.Namer == nil {
		p.Namer = d.Namer
	}
	if p.TeardownTimeout <= 0 {
		p.TeardownTimeout = d.TeardownTimeout
	}
	return p
}
