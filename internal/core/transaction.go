package core

import (
	"errors"
	"strings"
	"time"
)

// Classification is the coarse income/expense/transfer/ignored label, as
// opposed to the finer-grained spending category.
type Classification string

const (
	ClassIncome   Classification = "income"
	ClassExpense  Classification = "expense"
	ClassTransfer Classification = "transfer"
	ClassIgnored  Classification = "ignored"
)

// ClassificationSource identifies which step of the rule engine produced the
// current classification. It is an ordered priority: a candidate source may
// overwrite an existing one only when it is strictly higher. The Reason
// string on a transaction is display-only; the source carries the priority.
type ClassificationSource int

const (
	SourceNone ClassificationSource = iota
	SourceDefault
	SourcePatternIncome
	SourceAutoTransfer
	SourceAutoCCPayment
	SourceManual
	SourcePayeeRule
)

var sourceNames = map[ClassificationSource]string{
	SourceNone:          "none",
	SourceDefault:       "default",
	SourcePatternIncome: "pattern-income",
	SourceAutoTransfer:  "auto-transfer",
	SourceAutoCCPayment: "auto-cc-payment",
	SourceManual:        "manual",
	SourcePayeeRule:     "payee-rule",
}

func (s ClassificationSource) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return "none"
}

// CanOverride reports whether a candidate classification from source next is
// allowed to replace one from source existing. Equal priorities never
// override, which is what makes a full re-classification pass idempotent.
func CanOverride(next, existing ClassificationSource) bool {
	return next > existing
}

// Category labels shared between the engine steps.
const (
	CategoryIncome   = "Income"
	CategoryExpense  = "Expense"
	CategoryTransfer = "Transfer"
)

// Transaction is one ledger entry. The engine mutates only Category, Reason,
// Source and MatchedTransferID; Ignored and user overrides belong to the
// user and are never overwritten by automatic re-classification.
type Transaction struct {
	ExternalID string
	AccountID  string
	// Posted is the zero time while the transaction is pending-unposted.
	Posted      time.Time
	Amount      Money
	Description string
	Payee       string
	Memo        string
	Pending     bool

	Category string
	Source   ClassificationSource
	Reason   string
	// UserClassification records a user override of the coarse label.
	UserClassification Classification
	MatchedTransferID  string
	Ignored            bool
}

// ErrTransferCategory is returned by Validate when a matched transfer does
// not carry the Transfer category.
var ErrTransferCategory = errors.New("matched transfer must have category Transfer")

// Validate checks the cross-field invariants the engine is required to keep.
// Category comparisons are case-insensitive throughout the engine, so a
// user-typed "transfer" satisfies the invariant the same as "Transfer".
func (t Transaction) Validate() error {
	if t.MatchedTransferID != "" && !strings.EqualFold(t.Category, CategoryTransfer) {
		return ErrTransferCategory
	}
	return nil
}

// PostedOn reports whether the transaction posted in the given calendar
// month. Pending transactions with a real posted date are included.
func (t Transaction) PostedOn(year int, month time.Month) bool {
	return t.Posted.Year() == year && t.Posted.Month() == month
}

// ClassificationRule maps a payee text to a classification, created either
// by the user or derived from a one-off correction.
type ClassificationRule struct {
	ID             string
	Payee          string
	Category       string
	Classification Classification
	Active         bool
	UserCreated    bool
	CreatedAt      time.Time
}

// MatchMode selects how a CategoryRule pattern is applied.
type MatchMode string

const (
	MatchContains MatchMode = "contains"
	MatchPrefix   MatchMode = "prefix"
	MatchSuffix   MatchMode = "suffix"
	MatchRegex    MatchMode = "regex"
)

// MatchField selects which transaction field a CategoryRule inspects.
type MatchField string

const (
	FieldDescription MatchField = "description"
	FieldPayee       MatchField = "payee"
	FieldMemo        MatchField = "memo"
)

// CategoryRule maps a pattern to a spending category. Distinct from
// ClassificationRule: it assigns categories like Groceries or Dining, not
// income/expense/transfer/ignored.
type CategoryRule struct {
	ID       string
	Pattern  string
	Mode     MatchMode
	Field    MatchField
	Category string
}
