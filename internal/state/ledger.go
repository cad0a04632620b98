package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/picklr-io/provprobe/internal/ir"
)

// Ledger records resources between create and confirmed delete. Each change
// is a locked read-modify-write on the backend.
type Ledger struct {
	backend Backend
	region  string

	mu sync.Mutex
}

var _ engine.Tracker = (*Ledger)(nil)

// NewLedger wraps a backend. region is stamped on new entries.
func NewLedger(backend Backend, region string) *Ledger {
	return &Ledger{backend: backend, region: region}
}

// Track adds a resource. Tracking the same resource twice keeps one entry.
func (l *Ledger) Track(ctx context.Context, res engine.TrackedResource) error {
	return l.update(ctx, func(ledger *ir.Ledger) bool {
		if ledger.Find(res.Kind, res.Handle.String()) >= 0 {
			return false
		}
		ledger.Resources = append(ledger.Resources, &ir.LedgerEntry{
			Kind:      res.Kind,
			Handle:    res.Handle.String(),
			Name:      res.Name,
			Region:    l.region,
			CreatedAt: res.CreatedAt.UTC().Format(time.RFC3339),
		})
		return true
	})
}

// Release drops a resource once it has been deleted.
func (l *Ledger) Release(ctx context.Context, kind string, handle engine.Handle) error {
	return l.update(ctx, func(ledger *ir.Ledger) bool {
		i := ledger.Find(kind, handle.String())
		if i < 0 {
			return false
		}
		ledger.Resources = append(ledger.Resources[:i], ledger.Resources[i+1:]...)
		return true
	})
}

// Entries returns the resources currently recorded.
func (l *Ledger) Entries(ctx context.Context) ([]ir.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ledger, err := l.backend.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ir.LedgerEntry, 0, len(ledger.Resources))
	for _, e := range ledger.Resources {
		out = append(out, *e)
	}
	return out, nil
}

func (l *Ledger) update(ctx context.Context, mutate func(*ir.Ledger) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backend.Lock(); err != nil {
		return err
	}
	defer l.backend.Unlock()

	ledger, err := l.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if !mutate(ledger) {
		return nil
	}
	ledger.Serial++
	if err := l.backend.Write(ctx, ledger); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}
