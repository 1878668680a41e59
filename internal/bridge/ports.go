// Package bridge talks to the external read-only financial-data bridge:
// it fetches the raw JSON payload over HTTPS, maps failures to a typed
// error taxonomy, and normalizes raw records into core entities.
package bridge

import (
	"context"

	"finch/internal/core"
)

// AccountSource is the inbound port the refresh service depends on. The
// HTTP client implements it for production; the memory source stands in for
// tests.
type AccountSource interface {
	// Fetch returns the normalized accounts and transactions visible at
	// the bridge right now, plus any non-fatal error strings the bridge
	// reported inside the payload.
	Fetch(ctx context.Context) (Snapshot, error)
}

// Snapshot is one normalized read of the bridge.
type Snapshot struct {
	Accounts     []core.Account
	Transactions []core.Transaction
	// Warnings carries the payload-level "errors" strings. They are
	// informational: the fetch itself succeeded.
	Warnings []string
}
