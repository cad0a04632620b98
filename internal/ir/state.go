package ir

// Ledger lists resources that were created and not yet confirmed deleted.
type Ledger struct {
	Version   int            `pkl:"version"`
	Serial    int            `pkl:"serial"`
	Resources []*LedgerEntry `pkl:"resources"`
}

type LedgerEntry struct {
	Kind      string `pkl:"kind"`
	Handle    string `pkl:"handle"`
	Name      string `pkl:"name"`
	Region    string `pkl:"region"`
	CreatedAt string `pkl:"createdAt"` // RFC 3339
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{Version: 1}
}

// Find returns the index of the entry for kind and handle, or -1.
func (l *Ledger) Find(kind, handle string) int {
	for i, e := range l.Resources {
		if e.Kind == kind && e.Handle == handle {
			return i
		}
	}
	return -1
}
