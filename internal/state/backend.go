package state

import (
	"context"
	"fmt"

	"github.com/picklr-io/provprobe/internal/ir"
)

// Backend stores the ledger.
type Backend interface {
	// Read loads the ledger from the backend.
	Read(ctx context.Context) (*ir.Ledger, error)

	// Write saves the ledger to the backend.
	Write(ctx context.Context, ledger *ir.Ledger) error

	// Lock acquires an exclusive lock on the ledger.
	Lock() error

	// Unlock releases the lock on the ledger.
	Unlock() error
}

// NewBackend creates a ledger backend from configuration. A nil config
// selects the local file backend at DefaultLedgerPath.
func NewBackend(cfg *ir.LedgerConfig, loader LedgerLoader) (Backend, error) {
	if cfg == nil {
		return NewManager("", loader), nil
	}

	switch cfg.Backend {
	case "local", "":
		return NewManager(cfg.Path, loader), nil
	case "s3":
		return newS3Backend(cfg, loader)
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.Backend)
	}
}
