package engine

import (
	"sort"
	"time"

	"finch/internal/core"
)

// transferWindowDays is the maximum calendar-day distance between the two
// sides of an internal transfer.
const transferWindowDays = 3

// TransferMatch pairs the outgoing and incoming sides of one internal
// movement of money between two of the user's accounts. It is ephemeral:
// only its effect on the two transactions is persisted.
type TransferMatch struct {
	OutgoingID string
	IncomingID string
}

// candidatePair holds a viable pair with its tie-break keys.
type candidatePair struct {
	out, in  int
	distance time.Duration
	lowID    string
	highID   string
}

// isTransferPair applies the pairing rule: exactly opposite amounts,
// different accounts, neither pending, neither already matched, and posted
// within the transfer window.
func isTransferPair(a, b core.Transaction) bool {
	if a.Amount.Cents != -b.Amount.Cents || a.Amount.IsZero() {
		return false
	}
	if a.AccountID == b.AccountID {
		return false
	}
	if a.Pending || b.Pending {
		return false
	}
	if a.MatchedTransferID != "" || b.MatchedTransferID != "" {
		return false
	}
	// A manually classified side cannot accept the pairing decision, and a
	// half-applied pair would be asymmetric.
	if a.Source >= core.SourceManual || b.Source >= core.SourceManual {
		return false
	}
	return daysApart(a.Posted, b.Posted) <= transferWindowDays
}

// daysApart is the absolute calendar-day distance, ignoring time of day.
func daysApart(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(au.Sub(bu) / (24 * time.Hour))
	if d < 0 {
		d = -d
	}
	return d
}

func postedDistance(a, b core.Transaction) time.Duration {
	d := a.Posted.Sub(b.Posted)
	if d < 0 {
		d = -d
	}
	return d
}

// DetectTransfers scans all transactions for unordered pairs satisfying the
// pairing rule and returns one match per consumed transaction pair.
//
// Tie-break when more than two transactions could plausibly pair: closest
// posted-time distance first, then the lexicographically smallest pair of
// external ids. This keeps the result independent of input order.
func DetectTransfers(txs []core.Transaction) []TransferMatch {
	var candidates []candidatePair
	for i := range txs {
		if !txs[i].Amount.IsNegative() {
			continue
		}
		for j := range txs {
			if !txs[j].Amount.IsPositive() {
				continue
			}
			if !isTransferPair(txs[i], txs[j]) {
				continue
			}
			low, high := txs[i].ExternalID, txs[j].ExternalID
			if high < low {
				low, high = high, low
			}
			candidates = append(candidates, candidatePair{
				out:      i,
				in:       j,
				distance: postedDistance(txs[i], txs[j]),
				lowID:    low,
				highID:   high,
			})
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.distance != cb.distance {
			return ca.distance < cb.distance
		}
		if ca.lowID != cb.lowID {
			return ca.lowID < cb.lowID
		}
		return ca.highID < cb.highID
	})

	consumed := make(map[int]bool, len(txs))
	var matches []TransferMatch
	for _, c := range candidates {
		if consumed[c.out] || consumed[c.in] {
			continue
		}
		consumed[c.out] = true
		consumed[c.in] = true
		matches = append(matches, TransferMatch{
			OutgoingID: txs[c.out].ExternalID,
			IncomingID: txs[c.in].ExternalID,
		})
	}
	return matches
}

// TransferDecisions expands matches into per-side classification decisions
// carrying the counterpart id. The pipeline applies them subject to the
// usual priority check.
func TransferDecisions(matches []TransferMatch) map[string]Decision {
	out := make(map[string]Decision, len(matches)*2)
	for _, m := range matches {
		out[m.OutgoingID] = Decision{
			Applies:           true,
			Source:            core.SourceAutoTransfer,
			Category:          core.CategoryTransfer,
			Classification:    core.ClassTransfer,
			Reason:            "Auto-Transfer",
			MatchedTransferID: m.IncomingID,
		}
		out[m.IncomingID] = Decision{
			Applies:           true,
			Source:            core.SourceAutoTransfer,
			Category:          core.CategoryTransfer,
			Classification:    core.ClassTransfer,
			Reason:            "Auto-Transfer",
			MatchedTransferID: m.OutgoingID,
		}
	}
	return out
}

// Unmatch clears a user-overridden pairing on both sides and resets them to
// unclassified so the next pipeline run has a clean slate to re-classify.
func Unmatch(a, b *core.Transaction) {
	a.MatchedTransferID = ""
	b.MatchedTransferID = ""
	for _, t := range []*core.Transaction{a, b} {
		t.Category = ""
		t.Source = core.SourceNone
		t.Reason = ""
	}
}

// LooksLikeTransfer flags a single transaction as transfer-shaped without
// requiring a counterpart. Used for statistics about unmatched likely
// transfers, never for automatic classification.
func LooksLikeTransfer(tx core.Transaction) bool {
	for _, text := range []string{tx.Description, tx.Payee} {
		if containsFold(text, "transfer") || containsFold(text, "xfer") {
			return true
		}
	}
	return false
}
