package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/picklr-io/provprobe/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader returns a fixed ledger and remembers what it was asked to parse.
type fakeLoader struct {
	ledger  *ir.Ledger
	err     error
	content string
}

func (f *fakeLoader) LoadLedger(_ context.Context, file string) (*ir.Ledger, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	f.content = string(raw)
	if f.err != nil {
		return nil, f.err
	}
	return f.ledger, nil
}

func TestManager_ReadMissing(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "ledger.pkl"), &fakeLoader{})

	l, err := mgr.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.Version)
	assert.Equal(t, 0, l.Serial)
	assert.Empty(t, l.Resources)
}

func TestManager_WriteRead(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	path := filepath.Join(t.TempDir(), "nested", "ledger.pkl")
	want := &ir.Ledger{Version: 1, Serial: 3}
	loader := &fakeLoader{ledger: want}
	mgr := NewManager(path, loader)
	ctx := context.Background()

	ledger := &ir.Ledger{
		Version: 1,
		Serial:  3,
		Resources: []*ir.LedgerEntry{
			{Kind: "cache-cluster", Handle: "test-1700000000", Name: "test-1700000000", Region: "us-east-1", CreatedAt: "2026-01-02T03:04:05Z"},
		},
	}
	require.NoError(t, mgr.Write(ctx, ledger))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `kind = "cache-cluster"`)
	assert.Contains(t, string(content), `handle = "test-1700000000"`)
	assert.Contains(t, string(content), "serial = 3")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, string(content), loader.content)
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "ledger-key")
	path := filepath.Join(t.TempDir(), "ledger.pkl")
	loader := &fakeLoader{ledger: ir.NewLedger()}
	mgr := NewManager(path, loader)
	ctx := context.Background()

	ledger := ir.NewLedger()
	ledger.Resources = []*ir.LedgerEntry{{Kind: "instance", Handle: "i-0abc"}}
	require.NoError(t, mgr.Write(ctx, ledger))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "i-0abc")

	_, err = mgr.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, loader.content, `handle = "i-0abc"`)
}

func TestManager_LockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.pkl")
	mgr := NewManager(path, &fakeLoader{})
	other := NewManager(path, &fakeLoader{})

	require.NoError(t, mgr.Lock())
	err := other.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, mgr.Unlock())
	require.NoError(t, other.Lock())
	require.NoError(t, other.Unlock())
	// Unlocking twice is harmless.
	require.NoError(t, other.Unlock())
}

func TestNewManager_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultLedgerPath, NewManager("", nil).Path())
}

func TestSerializeLedger(t *testing.T) {
	empty := SerializeLedger(ir.NewLedger())
	assert.Contains(t, empty, "version = 1")
	assert.Contains(t, empty, "resources = new Listing {}")

	full := SerializeLedger(&ir.Ledger{
		Version: 1,
		Serial:  7,
		Resources: []*ir.LedgerEntry{
			{Kind: "null", Handle: `null-"quoted"`, Name: "n"},
		},
	})
	assert.Contains(t, full, "serial = 7")
	assert.Contains(t, full, "resources {")
	assert.Contains(t, full, `handle = "null-\"quoted\""`)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Manager{}, b)

	b, err = NewBackend(&ir.LedgerConfig{Backend: "local", Path: "custom.pkl"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom.pkl", b.(*Manager).Path())

	_, err = NewBackend(&ir.LedgerConfig{Backend: "redis"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger backend")

	_, err = NewBackend(&ir.LedgerConfig{Backend: "s3"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}
