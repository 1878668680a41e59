package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finch/internal/core"
	"finch/internal/engine"
)

// ErrNotMatched is returned by Unmatch when the two transactions are not
// each other's transfer counterpart.
var ErrNotMatched = errors.New("transactions are not a matched transfer pair")

// ClassifierStore is the slice of the repository the classifier needs.
type ClassifierStore interface {
	ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, externalID string) (core.Transaction, bool, error)
	SaveClassifications(ctx context.Context, txs []core.Transaction, ids []string) error
	SaveManual(ctx context.Context, externalID, category string, ignored bool) error
	AddClassificationRule(ctx context.Context, rule core.ClassificationRule) error
	ListClassificationRules(ctx context.Context, activeOnly bool) ([]core.ClassificationRule, error)
	ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error)
}

// ClassifierService exposes the user-facing classification operations:
// manual overrides, rule creation and full re-classification passes.
type ClassifierService struct {
	Store ClassifierStore
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *ClassifierService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Override applies a manual classification to one transaction. When
// createRule is set, a reusable payee rule is derived from the transaction
// so future arrivals classify the same way; if no usable match text exists
// the override stays a one-off and no rule is created.
func (s *ClassifierService) Override(ctx context.Context, tx core.Transaction, category string, class core.Classification, ignored, createRule bool) (ruleCreated bool, err error) {
	// Reclassifying away from Transfer breaks the pairing on both sides,
	// keeping the matched-implies-Transfer invariant.
	if tx.MatchedTransferID != "" && !strings.EqualFold(category, core.CategoryTransfer) {
		counterpart, found, err := s.Store.GetTransaction(ctx, tx.MatchedTransferID)
		if err != nil {
			return false, fmt.Errorf("load transfer counterpart: %w", err)
		}
		if found {
			engine.Unmatch(&tx, &counterpart)
			if err := s.Store.SaveClassifications(ctx, []core.Transaction{tx, counterpart}, []string{tx.ExternalID, counterpart.ExternalID}); err != nil {
				return false, fmt.Errorf("save unmatched pair: %w", err)
			}
		}
	}

	if err := s.Store.SaveManual(ctx, tx.ExternalID, category, ignored); err != nil {
		return false, fmt.Errorf("save manual override: %w", err)
	}

	if !createRule {
		return false, nil
	}
	rule, ok := engine.DeriveRule(tx, category, class, s.now())
	if !ok {
		slog.InfoContext(ctx, "No rule derivable from transaction, keeping one-off override",
			"transaction", tx.ExternalID)
		return false, nil
	}
	if err := s.Store.AddClassificationRule(ctx, rule); err != nil {
		return false, fmt.Errorf("add classification rule: %w", err)
	}
	slog.InfoContext(ctx, "Derived classification rule",
		"payee", rule.Payee, "category", rule.Category)
	return true, nil
}

// Reclassify re-runs the full pipeline over everything in the store. The
// priority model guarantees this is a no-op unless a strictly
// higher-priority rule newly matches, so it is safe to call after any rule
// change.
func (s *ClassifierService) Reclassify(ctx context.Context) (int, error) {
	txs, err := s.Store.ListTransactions(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("load transactions: %w", err)
	}
	rules, err := s.Store.ListClassificationRules(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("load classification rules: %w", err)
	}
	categoryRules, err := s.Store.ListCategoryRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("load category rules: %w", err)
	}

	pipeline := engine.Pipeline{Rules: rules, CategoryRules: categoryRules}
	changed := pipeline.Run(txs)
	if err := s.Store.SaveClassifications(ctx, txs, changed); err != nil {
		return 0, fmt.Errorf("save classifications: %w", err)
	}
	return len(changed), nil
}

// Unmatch breaks a transfer pairing on both sides and re-runs the pipeline
// so the two transactions pick up fresh classifications. The two sides must
// actually point at each other: anything else is ErrNotMatched, never a
// reset of unrelated classifications.
func (s *ClassifierService) Unmatch(ctx context.Context, a, b core.Transaction) error {
	if a.MatchedTransferID != b.ExternalID || b.MatchedTransferID != a.ExternalID {
		return ErrNotMatched
	}
	engine.Unmatch(&a, &b)
	if err := s.Store.SaveClassifications(ctx, []core.Transaction{a, b}, []string{a.ExternalID, b.ExternalID}); err != nil {
		return fmt.Errorf("save unmatched pair: %w", err)
	}
	_, err := s.Reclassify(ctx)
	return err
}

// TransferStats reports how many transactions look transfer-shaped but
// have no matched counterpart. Display-only; never feeds classification.
type TransferStats struct {
	UnmatchedLikelyTransfers int
}

// Stats scans the store for unmatched likely transfers.
func (s *ClassifierService) Stats(ctx context.Context) (TransferStats, error) {
	txs, err := s.Store.ListTransactions(ctx, 0)
	if err != nil {
		return TransferStats{}, fmt.Errorf("load transactions: %w", err)
	}
	var stats TransferStats
	for _, tx := range txs {
		if tx.MatchedTransferID == "" && engine.LooksLikeTransfer(tx) {
			stats.UnmatchedLikelyTransfers++
		}
	}
	return stats, nil
}
