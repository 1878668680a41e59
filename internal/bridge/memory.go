package bridge

import (
	"context"

	"finch/internal/core"
)

// MemorySource is an in-process AccountSource for tests and local
// development without a bridge token.
type MemorySource struct {
	Snap Snapshot
	Err  error
	// Fetches counts how many times Fetch was called.
	Fetches int
}

var _ AccountSource = (*MemorySource)(nil)

// Fetch returns the configured snapshot or error.
func (m *MemorySource) Fetch(ctx context.Context) (Snapshot, error) {
	m.Fetches++
	if m.Err != nil {
		return Snapshot{}, m.Err
	}
	return m.Snap, nil
}

// SetAccounts replaces the snapshot contents.
func (m *MemorySource) SetAccounts(accounts []core.Account, txs []core.Transaction) {
	m.Snap = Snapshot{Accounts: accounts, Transactions: txs}
}
