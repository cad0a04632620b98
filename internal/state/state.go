package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/picklr-io/provprobe/internal/ir"
)

// DefaultLedgerPath is where the local backend keeps its ledger.
const DefaultLedgerPath = ".provprobe/ledger.pkl"

// LedgerLoader parses a ledger file. *eval.Evaluator implements it.
type LedgerLoader interface {
	LoadLedger(ctx context.Context, file string) (*ir.Ledger, error)
}

// Manager stores the ledger in a local file.
type Manager struct {
	path   string
	loader LedgerLoader
}

var _ Backend = (*Manager)(nil)

func NewManager(path string, loader LedgerLoader) *Manager {
	if path == "" {
		path = DefaultLedgerPath
	}
	return &Manager{
		path:   path,
		loader: loader,
	}
}

// Path returns the ledger file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the ledger. A missing file is an empty ledger.
func (m *Manager) Read(ctx context.Context) (*ir.Ledger, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return ir.NewLedger(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file %s: %w", m.path, err)
	}

	if !IsEncrypted(raw) {
		ledger, err := m.loader.LoadLedger(ctx, m.path)
		if err != nil {
			return nil, fmt.Errorf("failed to load ledger from %s: %w", m.path, err)
		}
		return ledger, nil
	}

	plain, err := Open(raw)
	if err != nil {
		return nil, err
	}
	return loadFromBytes(ctx, m.loader, plain)
}

// Write saves the ledger, encrypting it when a key is configured.
func (m *Manager) Write(ctx context.Context, ledger *ir.Ledger) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	data, err := Seal([]byte(SerializeLedger(ledger)))
	if err != nil {
		return fmt.Errorf("failed to encrypt ledger: %w", err)
	}

	// Write-then-rename so a crash never leaves a truncated ledger behind.
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write ledger file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace ledger file %s: %w", m.path, err)
	}
	return nil
}

// loadFromBytes hands decrypted or downloaded content to the PKL loader
// through a temporary file.
func loadFromBytes(ctx context.Context, loader LedgerLoader, content []byte) (*ir.Ledger, error) {
	tmpFile, err := os.CreateTemp("", "provprobe-ledger-*.pkl")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write temp ledger file: %w", err)
	}
	tmpFile.Close()

	ledger, err := loader.LoadLedger(ctx, tmpFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger: %w", err)
	}
	return ledger, nil
}

// SerializeLedger converts a ledger to PKL text.
func SerializeLedger(ledger *ir.Ledger) string {
	var b strings.Builder

	fmt.Fprintf(&b, "// provprobe ledger: resources created and not yet deleted\n")
	fmt.Fprintf(&b, "version = %d\n", ledger.Version)
	fmt.Fprintf(&b, "serial = %d\n\n", ledger.Serial)

	if len(ledger.Resources) == 0 {
		fmt.Fprintf(&b, "resources = new Listing {}\n")
		return b.String()
	}

	fmt.Fprintf(&b, "resources {\n")
	for _, res := range ledger.Resources {
		fmt.Fprintf(&b, "  new {\n")
		fmt.Fprintf(&b, "    kind = %q\n", res.Kind)
		fmt.Fprintf(&b, "    handle = %q\n", res.Handle)
		fmt.Fprintf(&b, "    name = %q\n", res.Name)
		fmt.Fprintf(&b, "    region = %q\n", res.Region)
		fmt.Fprintf(&b, "    createdAt = %q\n", res.CreatedAt)
		fmt.Fprintf(&b, "  }\n")
	}
	fmt.Fprintf(&b, "}\n")

	return b.String()
}
