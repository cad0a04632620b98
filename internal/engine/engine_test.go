package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

type testSpec struct{}

func (testSpec) Kind() string { return "test" }

// fakeControlPlane replays scripted describe answers and counts calls.
type fakeControlPlane struct {
	mu sync.Mutex

	handle    Handle
	createErr error
	statuses  []Status
	// describeErrs maps a 1-based describe call number to the error it returns.
	describeErrs map[int]error
	deleteErr    error

	createCalls   int
	describeCalls int
	deleteCalls   int
	deleted       []Handle
	lastCreate    CreateRequest
}

func (f *fakeControlPlane) Create(ctx context.Context, req CreateRequest) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.handle != "" {
		return f.handle, nil
	}
	return Handle(req.Name), nil
}

func (f *fakeControlPlane) Describe(ctx context.Context, handle Handle) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	if err, ok := f.describeErrs[f.describeCalls]; ok {
		return Status{}, err
	}
	if len(f.statuses) == 0 {
		return Status{}, nil
	}
	idx := f.describeCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func (f *fakeControlPlane) Delete(ctx context.Context, handle Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	f.deleted = append(f.deleted, handle)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return f.deleteErr
}

func creating(n int) []Status {
	out := make([]Status, n)
	for i := range out {
		out[i] = Status{State: "creating", Found: true}
	}
	return out
}

// sleepRecorder counts waits without blocking.
type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func fixedName(name string) NamerFunc {
	return func() string { return name }
}

func testPolicy(maxAttempts int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.Interval = 10 * time.Second
	p.Namer = fixedName("test-1000")
	return p
}

var errTransport = errors.New("transport: connection reset by peer")
