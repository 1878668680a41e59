package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"finch/internal/core"
)

// ccPaymentPhrases mark a negative transaction as a credit-card payment,
// which is one leg of an internal movement even when the counterpart never
// shows up in a linked account.
var ccPaymentPhrases = []string{
	"credit card payment",
	"credit crd payment",
	"cc payment",
	"card payment",
	"payment to credit card",
	"autopay payment",
	"payment - thank you",
	"epay",
}

// Decision is the outcome of one classification step for one transaction.
// Nothing is mutated until the pipeline applies it.
type Decision struct {
	Applies           bool
	Source            core.ClassificationSource
	Category          string
	Classification    core.Classification
	Reason            string
	MatchedTransferID string
}

// Classify evaluates the per-transaction steps of the priority model, from
// highest candidate downward, and returns the first applicable decision.
// Transfer pairing is engine-wide and handled by the pipeline; manual
// actions enter through ApplyManual. Classify itself always has an opinion:
// the sign-based default applies when nothing else does.
func Classify(tx core.Transaction, rules []core.ClassificationRule) Decision {
	if d, ok := matchPayeeRule(tx, rules); ok {
		return d
	}
	if d, ok := detectCCPayment(tx); ok {
		return d
	}
	if name, ok := DetectIncome(tx); ok {
		return Decision{
			Applies:        true,
			Source:         core.SourcePatternIncome,
			Category:       core.CategoryIncome,
			Classification: core.ClassIncome,
			Reason:         "Pattern: " + name,
		}
	}
	return defaultDecision(tx)
}

func matchPayeeRule(tx core.Transaction, rules []core.ClassificationRule) (Decision, bool) {
	for _, rule := range rules {
		if !rule.Active || strings.TrimSpace(rule.Payee) == "" {
			continue
		}
		if containsFold(tx.Payee, rule.Payee) || containsFold(tx.Description, rule.Payee) {
			return Decision{
				Applies:        true,
				Source:         core.SourcePayeeRule,
				Category:       rule.Category,
				Classification: rule.Classification,
				Reason:         "Payee Rule: " + rule.Payee,
			}, true
		}
	}
	return Decision{}, false
}

func detectCCPayment(tx core.Transaction) (Decision, bool) {
	if !tx.Amount.IsNegative() {
		return Decision{}, false
	}
	for _, phrase := range ccPaymentPhrases {
		if containsFold(tx.Description, phrase) || containsFold(tx.Payee, phrase) {
			return Decision{
				Applies:        true,
				Source:         core.SourceAutoCCPayment,
				Category:       core.CategoryTransfer,
				Classification: core.ClassTransfer,
				Reason:         "Auto-CC Payment",
			}, true
		}
	}
	return Decision{}, false
}

func defaultDecision(tx core.Transaction) Decision {
	d := Decision{Applies: true, Source: core.SourceDefault, Reason: "Default"}
	if tx.Amount.IsPositive() {
		d.Category = core.CategoryIncome
		d.Classification = core.ClassIncome
	} else {
		d.Category = core.CategoryExpense
		d.Classification = core.ClassExpense
	}
	return d
}

// Apply writes a decision onto a transaction when its source strictly
// outranks the existing one, or when forced. It reports whether the
// transaction changed.
func Apply(tx *core.Transaction, d Decision, force bool) bool {
	if !d.Applies {
		return false
	}
	if !force && !core.CanOverride(d.Source, tx.Source) {
		return false
	}
	tx.Category = d.Category
	tx.Source = d.Source
	tx.Reason = d.Reason
	if d.Source == core.SourceAutoTransfer {
		tx.MatchedTransferID = d.MatchedTransferID
	}
	return true
}

// ApplyManual records a user intervention that is not backed by a rule,
// such as an ignore toggle or a one-off category pick.
func ApplyManual(tx *core.Transaction, category string, ignored bool) {
	tx.Category = category
	tx.Ignored = ignored
	tx.Source = core.SourceManual
	tx.Reason = "Manual"
}

// Pipeline runs the full classification pass: transfer detection across the
// whole set, then per-transaction rule evaluation, then spending-category
// refinement. Re-running it over already-classified data is a no-op unless
// a strictly higher-priority rule newly matches.
type Pipeline struct {
	Rules         []core.ClassificationRule
	CategoryRules []core.CategoryRule
}

// Run mutates the given transactions in place and returns the external ids
// of those that changed. Each transaction takes at most one decision per
// pass: a candidate pairing only survives when it is the winning decision on
// both sides, so a higher-priority rule on one side drops the pairing for
// both instead of leaving one half-matched.
func (p Pipeline) Run(txs []core.Transaction) []string {
	decisions := make([]Decision, len(txs))
	index := make(map[string]int, len(txs))
	for i := range txs {
		decisions[i] = Classify(txs[i], p.Rules)
		index[txs[i].ExternalID] = i
	}

	var viable []TransferMatch
	for _, m := range DetectTransfers(txs) {
		out, in := index[m.OutgoingID], index[m.IncomingID]
		if pairingWins(txs[out], decisions[out]) && pairingWins(txs[in], decisions[in]) {
			viable = append(viable, m)
		}
	}
	transfer := TransferDecisions(viable)

	var changed []string
	for i := range txs {
		tx := &txs[i]
		dirty := false

		if d, ok := transfer[tx.ExternalID]; ok {
			dirty = Apply(tx, d, false)
		} else {
			dirty = Apply(tx, decisions[i], false)
		}

		if name := MatchCategory(*tx, p.CategoryRules); name != "" && tx.Category != name {
			// Refinement keeps the classification audit trail: only the
			// spending category changes, never source or reason.
			tx.Category = name
			dirty = true
		}
		if dirty {
			changed = append(changed, tx.ExternalID)
		}
	}
	return changed
}

// pairingWins reports whether the pairing decision would win on one side of
// a candidate match: it must outrank the side's existing classification and
// its per-transaction decision.
func pairingWins(tx core.Transaction, d Decision) bool {
	return core.CanOverride(core.SourceAutoTransfer, tx.Source) &&
		d.Source < core.SourceAutoTransfer
}

// DeriveRule builds a reusable ClassificationRule from a user-chosen
// classification of one transaction. It prefers the payee verbatim; with no
// payee it falls back to the first word of the description provided that
// word is at least three characters, guarding against useless one or two
// character rules. ok is false when no rule can be derived and the
// classification stays a one-off override.
func DeriveRule(tx core.Transaction, category string, class core.Classification, now time.Time) (core.ClassificationRule, bool) {
	match := strings.TrimSpace(tx.Payee)
	if match == "" {
		fields := strings.Fields(tx.Description)
		if len(fields) > 0 && len(fields[0]) >= 3 {
			match = fields[0]
		}
	}
	if match == "" {
		return core.ClassificationRule{}, false
	}
	return core.ClassificationRule{
		ID:             uuid.NewString(),
		Payee:          match,
		Category:       category,
		Classification: class,
		Active:         true,
		UserCreated:    true,
		CreatedAt:      now,
	}, true
}
