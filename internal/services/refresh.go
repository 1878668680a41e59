// Package services wires the pure engine to the bridge, the store and the
// event bus. The engine stays side-effect free; everything durable happens
// here.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"finch/internal/amqp"
	"finch/internal/bridge"
	"finch/internal/core"
	"finch/internal/engine"
)

// ErrRateLimited is returned when the daily sync quota is exhausted. The
// caller must not retry until the limiter's TimeUntilReset elapses.
var ErrRateLimited = errors.New("sync quota exhausted")

// Store is the slice of the repository the refresh service needs.
type Store interface {
	UpsertAccounts(ctx context.Context, accounts []core.Account) error
	ListAccounts(ctx context.Context) ([]core.Account, error)
	InsertTransactions(ctx context.Context, txs []core.Transaction) (int, error)
	ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	SaveClassifications(ctx context.Context, txs []core.Transaction, ids []string) error
	ListClassificationRules(ctx context.Context, activeOnly bool) ([]core.ClassificationRule, error)
	ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error)
	SaveDailySnapshot(ctx context.Context, s core.DailySnapshot) error
	SaveMonthlySnapshot(ctx context.Context, s core.MonthlySnapshot) error
	SaveLimiterState(ctx context.Context, state engine.LimiterState) error
}

// Publisher announces completed refreshes to other devices. Optional.
type Publisher interface {
	PublishRefresh(ctx context.Context, msg *amqp.RefreshMessage) error
}

// RefreshResult summarizes one completed refresh.
type RefreshResult struct {
	Accounts        int
	NewTransactions int
	Classified      int
	NetWorth        engine.NetWorth
}

// RefreshService runs the full ingest-classify-aggregate pass against the
// bridge, gated by the sync rate limiter.
type RefreshService struct {
	Store     Store
	Source    bridge.AccountSource
	Publisher Publisher
	Limiter   *engine.RateLimiter
	DeviceID  string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *RefreshService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Refresh fetches fresh data from the bridge, ingests it, runs the
// classification pipeline and freezes today's snapshots. The pass is
// idempotent: re-running it after a partial failure cannot downgrade any
// already-classified transaction.
func (s *RefreshService) Refresh(ctx context.Context) (RefreshResult, error) {
	now := s.now()
	s.Limiter.CheckAndResetIfNeeded(now)
	if !s.Limiter.CanSync() {
		return RefreshResult{}, fmt.Errorf("%w: retry in %s", ErrRateLimited, s.Limiter.TimeUntilReset(now))
	}

	// The bridge fetch and the rule loads are independent.
	var (
		snap          bridge.Snapshot
		rules         []core.ClassificationRule
		categoryRules []core.CategoryRule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.Source.Fetch(gctx)
		if err != nil {
			return fmt.Errorf("fetch bridge: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rules, err = s.Store.ListClassificationRules(gctx, true)
		if err != nil {
			return fmt.Errorf("load classification rules: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categoryRules, err = s.Store.ListCategoryRules(gctx)
		if err != nil {
			return fmt.Errorf("load category rules: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return RefreshResult{}, err
	}

	if err := s.Store.UpsertAccounts(ctx, snap.Accounts); err != nil {
		return RefreshResult{}, fmt.Errorf("upsert accounts: %w", err)
	}
	inserted, err := s.Store.InsertTransactions(ctx, snap.Transactions)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("insert transactions: %w", err)
	}

	// Classify over the full stored set so new arrivals can pair with
	// transactions from earlier refreshes.
	txs, err := s.Store.ListTransactions(ctx, 0)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("load transactions: %w", err)
	}
	pipeline := engine.Pipeline{Rules: rules, CategoryRules: categoryRules}
	changed := pipeline.Run(txs)
	if err := s.Store.SaveClassifications(ctx, txs, changed); err != nil {
		return RefreshResult{}, fmt.Errorf("save classifications: %w", err)
	}

	netWorth, err := s.writeSnapshots(ctx, txs, now)
	if err != nil {
		return RefreshResult{}, err
	}

	s.Limiter.RecordSync(now)
	if err := s.Store.SaveLimiterState(ctx, s.Limiter.State()); err != nil {
		return RefreshResult{}, fmt.Errorf("save limiter state: %w", err)
	}

	result := RefreshResult{
		Accounts:        len(snap.Accounts),
		NewTransactions: inserted,
		Classified:      len(changed),
		NetWorth:        netWorth,
	}

	if s.Publisher != nil {
		msg := amqp.NewRefreshMessage(s.DeviceID, result.Accounts, result.NewTransactions, result.Classified, s.Limiter.State())
		if err := s.Publisher.PublishRefresh(ctx, msg); err != nil {
			// The refresh itself succeeded; other devices will converge on
			// the next message.
			slog.WarnContext(ctx, "Failed to publish refresh message", "error", err)
		}
	}

	slog.InfoContext(ctx, "Refresh completed",
		"accounts", result.Accounts,
		"new_transactions", result.NewTransactions,
		"classified", result.Classified,
		"remaining_quota", s.Limiter.Remaining())

	return result, nil
}

// writeSnapshots freezes today's net worth and the current month's income
// aggregate. Snapshots are write-once per key, so repeated refreshes in one
// day keep the first value.
func (s *RefreshService) writeSnapshots(ctx context.Context, txs []core.Transaction, now time.Time) (engine.NetWorth, error) {
	accounts, err := s.Store.ListAccounts(ctx)
	if err != nil {
		return engine.NetWorth{}, fmt.Errorf("load accounts: %w", err)
	}
	netWorth := engine.CalculateNetWorth(CountedAccounts(accounts))

	if err := s.Store.SaveDailySnapshot(ctx, engine.DailySnapshotFor(now, netWorth)); err != nil {
		return engine.NetWorth{}, fmt.Errorf("save daily snapshot: %w", err)
	}

	monthly := engine.CalculateMonthlyIncome(txs, now.Year(), now.Month())
	if err := s.Store.SaveMonthlySnapshot(ctx, engine.MonthlySnapshotFor(now.Year(), now.Month(), monthly)); err != nil {
		return engine.NetWorth{}, fmt.Errorf("save monthly snapshot: %w", err)
	}
	return netWorth, nil
}

// MergeRemoteLimiter folds a limiter state observed from another device
// into the local limiter and persists the merged state.
func (s *RefreshService) MergeRemoteLimiter(ctx context.Context, remote engine.LimiterState) error {
	s.Limiter.Merge(remote)
	if err := s.Store.SaveLimiterState(ctx, s.Limiter.State()); err != nil {
		return fmt.Errorf("save merged limiter state: %w", err)
	}
	slog.DebugContext(ctx, "Merged remote limiter state",
		"remaining", s.Limiter.Remaining())
	return nil
}

// CountedAccounts filters to the accounts that participate in totals:
// hidden accounts are excluded everywhere, tracking-only accounts are
// visible but excluded from totals.
func CountedAccounts(accounts []core.Account) []core.Account {
	out := make([]core.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Hidden || a.TrackingOnly {
			continue
		}
		out = append(out, a)
	}
	return out
}

// VisibleAccounts filters only the hidden accounts out, for list displays.
func VisibleAccounts(accounts []core.Account) []core.Account {
	out := make([]core.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Hidden {
			continue
		}
		out = append(out, a)
	}
	return out
}
