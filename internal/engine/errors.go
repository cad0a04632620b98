package engine

import (
	"fmt"
)

// Phase names the lifecycle step an error came from.
type Phase string

const (
	PhaseCreate Phase = "create"
	PhasePoll   Phase = "poll"
	PhaseDelete Phase = "delete"
)

// PollError is returned when a describe call fails or the poll is cancelled.
type PollError struct {
	Handle  Handle
	Attempt int
	Err     error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s failed on attempt %d: %v", e.Handle, e.Attempt, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// LifecycleError reports which phase of a lifecycle failed. When polling failed
// and teardown failed too, Err holds the poll error and TeardownErr the delete
// error; both are reachable through errors.Is and errors.As.
type LifecycleError struct {
	Phase       Phase
	Kind        string
	Handle      Handle
	Err         error
	TeardownErr error
}

func (e *LifecycleError) Error() string {
	target := e.Kind
	if e.Handle != "" {
		target = fmt.Sprintf("%s %s", e.Kind, e.Handle)
	}
	if e.Err != nil && e.TeardownErr != nil {
		return fmt.Sprintf("%s failed for %s: %v (teardown also failed: %v)", e.Phase, target, e.Err, e.TeardownErr)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed for %s: %v", e.Phase, target, e.Err)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Phase, target, e.TeardownErr)
}

func (e *LifecycleError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.TeardownErr != nil {
		errs = append(errs, e.TeardownErr)
	}
	return errs
}
