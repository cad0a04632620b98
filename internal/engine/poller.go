package engine

import (
	"context"
	"time"

	"github.com/picklr-io/provprobe/internal/logging"
)

// Describer is the part of a ControlPlane the poller needs.
type Describer interface {
	Describe(ctx context.Context, handle Handle) (Status, error)
}

// DescriberFunc adapts a function to Describer.
type DescriberFunc func(ctx context.Context, handle Handle) (Status, error)

func (f DescriberFunc) Describe(ctx context.Context, handle Handle) (Status, error) {
	return f(ctx, handle)
}

// PollResult summarises a polling session.
type PollResult struct {
	Outcome  Outcome
	Attempts int
	Last     Status
}

// Poller repeatedly describes a handle until it is ready or the attempt
// budget runs out.
type Poller struct {
	client Describer
	sleep  SleepFunc

	// OnAttempt, if set, is called after every describe that returned a status.
	OnAttempt func(attempt int, status Status, ready bool)
}

func NewPoller(client Describer) *Poller {
	return &Poller{client: client, sleep: Sleep}
}

// WithSleep replaces the wait between attempts.
func (p *Poller) WithSleep(fn SleepFunc) *Poller {
	if fn != nil {
		p.sleep = fn
	}
	return p
}

// PollUntilReady describes handle up to policy.MaxAttempts times, sleeping
// policy.Interval after each attempt that does not end the session. A describe
// error or cancellation aborts immediately with a *PollError.
func (p *Poller) PollUntilReady(ctx context.Context, handle Handle, policy Policy) (PollResult, error) {
	policy = policy.withDefaults()
	log := logging.With("handle", handle.String())

	result := PollResult{Outcome: OutcomeExhausted}
	seenReady := false

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result.Attempts = attempt
		log.Debug("describing resource", "attempt", attempt)

		status, err := p.describe(ctx, handle, policy.CallTimeout)
		if err != nil {
			return result, &PollError{Handle: handle, Attempt: attempt, Err: err}
		}
		result.Last = status

		ready := policy.IsReady(status)
		if p.OnAttempt != nil {
			p.OnAttempt(attempt, status, ready)
		}
		if ready {
			seenReady = true
			if !policy.KeepPollingWhenReady {
				result.Outcome = OutcomeReady
				log.Info("resource ready", "attempt", attempt, "status", status.State)
				return result, nil
			}
		}

		if err := p.sleep(ctx, policy.Interval); err != nil {
			return result, &PollError{Handle: handle, Attempt: attempt, Err: err}
		}
	}

	if seenReady {
		result.Outcome = OutcomeReady
	}
	return result, nil
}

func (p *Poller) describe(ctx context.Context, handle Handle, timeout time.Duration) (Status, error) {
	callCtx, cancel := WithTimeout(ctx, timeout)
	defer cancel()
	return p.client.Describe(callCtx, handle)
}
