package null

import (
	"context"
	"fmt"
	"sync"

	"github.com/picklr-io/provprobe/internal/engine"
)

// Kind is the resource kind served by this provider.
const Kind = "null"

// Spec scripts the statuses a null resource reports, one per describe call.
// The last status repeats once the script is used up.
type Spec struct {
	Statuses []string `json:"statuses"`
	// FailDescribeAt makes the n-th describe call (1-based) fail. Zero disables it.
	FailDescribeAt int `json:"fail_describe_at"`
}

func DefaultSpec() Spec {
	return Spec{Statuses: []string{"creating", "creating", "available"}}
}

func (Spec) Kind() string {
	return Kind
}

type resource struct {
	spec  Spec
	calls int
}

// Provider is an in-memory control plane. Nothing leaves the process.
type Provider struct {
	mu        sync.Mutex
	resources map[engine.Handle]*resource
}

var _ engine.ControlPlane = (*Provider)(nil)

func New() *Provider {
	return &Provider{resources: make(map[engine.Handle]*resource)}
}

func (p *Provider) Create(ctx context.Context, req engine.CreateRequest) (engine.Handle, error) {
	spec, ok := req.Spec.(Spec)
	if !ok {
		return "", fmt.Errorf("null provider cannot create %T", req.Spec)
	}
	if req.Name == "" {
		return "", fmt.Errorf("name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	handle := engine.Handle("null-" + req.Name)
	if _, exists := p.resources[handle]; exists {
		return "", fmt.Errorf("resource %s already exists", handle)
	}
	p.resources[handle] = &resource{spec: spec}
	return handle, nil
}

func (p *Provider) Describe(ctx context.Context, handle engine.Handle) (engine.Status, error) {
	if err := ctx.Err(); err != nil {
		return engine.Status{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.resources[handle]
	if !ok {
		return engine.Status{}, nil
	}
	res.calls++
	if res.spec.FailDescribeAt > 0 && res.calls == res.spec.FailDescribeAt {
		return engine.Status{}, fmt.Errorf("scripted describe failure on call %d", res.calls)
	}
	if len(res.spec.Statuses) == 0 {
		return engine.Status{}, nil
	}

	idx := res.calls - 1
	if idx >= len(res.spec.Statuses) {
		idx = len(res.spec.Statuses) - 1
	}
	return engine.Status{State: res.spec.Statuses[idx], Found: true}, nil
}

func (p *Provider) Delete(ctx context.Context, handle engine.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.resources[handle]; !ok {
		return fmt.Errorf("delete %s: %w", handle, engine.ErrNotFound)
	}
	delete(p.resources, handle)
	return nil
}

// Live returns the number of resources not yet deleted.
func (p *Provider) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}
