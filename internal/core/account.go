package core

import "strings"

// AccountType tags a linked account with its product type.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit-card"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountMortgage   AccountType = "mortgage"
	AccountBrokerage  AccountType = "brokerage"
	AccountUnknown    AccountType = "unknown"
)

// Account is one linked financial account. Balance and PrevBalance are
// rolled on every successful refresh; Nickname, Hidden, TrackingOnly and
// SortOrder are only ever mutated by the user.
type Account struct {
	ExternalID   string
	OrgName      string
	Name         string
	Nickname     string
	Type         AccountType
	Balance      Money
	PrevBalance  *Money
	Hidden       bool
	TrackingOnly bool
	SortOrder    int
}

// DisplayName resolves to the user nickname when present, else the
// institution-provided name.
func (a Account) DisplayName() string {
	if strings.TrimSpace(a.Nickname) != "" {
		return a.Nickname
	}
	return a.Name
}

// IsLiability reports whether the account counts against net worth.
// Unknown types default to asset.
func (a Account) IsLiability() bool {
	switch a.Type {
	case AccountCreditCard, AccountLoan, AccountMortgage:
		return true
	default:
		return false
	}
}

// InferAccountType derives the account type from the institution-provided
// account name. Performed once at ingestion and never re-derived.
func InferAccountType(name string) AccountType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "checking"):
		return AccountChecking
	case strings.Contains(n, "saving"):
		return AccountSavings
	case strings.Contains(n, "credit"):
		return AccountCreditCard
	case strings.Contains(n, "invest"), strings.Contains(n, "brokerage"):
		return AccountInvestment
	case strings.Contains(n, "mortgage"):
		return AccountMortgage
	case strings.Contains(n, "loan"):
		return AccountLoan
	default:
		return AccountUnknown
	}
}
