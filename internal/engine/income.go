package engine

import (
	"regexp"

	"finch/internal/core"
)

// incomePattern is one named income detector. Patterns are ordered: the
// first match decides the display name.
type incomePattern struct {
	name string
	re   *regexp.Regexp
}

var incomePatterns = []incomePattern{
	{"Payroll", regexp.MustCompile(`(?i)\bpayroll\b`)},
	{"Direct Deposit", regexp.MustCompile(`(?i)direct\s*dep(osit)?`)},
	{"Salary", regexp.MustCompile(`(?i)\bsalary\b`)},
	{"Wages", regexp.MustCompile(`(?i)\bwages?\b`)},
	{"Social Security", regexp.MustCompile(`(?i)social\s*security|\bssa\b`)},
	{"Tax Refund", regexp.MustCompile(`(?i)tax\s*ref(und)?|\birs\b.*\btreas\b|treas\s*310`)},
	{"Dividend", regexp.MustCompile(`(?i)\bdividends?\b|\bdiv\b`)},
	{"Interest", regexp.MustCompile(`(?i)\binterest\b(\s*(payment|earned|paid))?`)},
	{"ACH Credit", regexp.MustCompile(`(?i)ach\s*credit`)},
	{"Wire Transfer", regexp.MustCompile(`(?i)wire\s*(trans(fer)?|in)`)},
	{"Bonus", regexp.MustCompile(`(?i)\bbonus\b`)},
	{"Cashback", regexp.MustCompile(`(?i)cash\s*back|cashback`)},
	{"Unemployment", regexp.MustCompile(`(?i)unemployment`)},
	{"Refund", regexp.MustCompile(`(?i)\brefund\b`)},
	{"Reimbursement", regexp.MustCompile(`(?i)reimburse(ment)?`)},
}

// MatchIncomePattern scans description, payee and memo, in that order, for
// the first income pattern match and returns its display name. The empty
// string means no pattern matched.
func MatchIncomePattern(description, payee, memo string) string {
	for _, p := range incomePatterns {
		for _, field := range []string{description, payee, memo} {
			if field != "" && p.re.MatchString(field) {
				return p.name
			}
		}
	}
	return ""
}

// DetectIncome decides whether a transaction denotes pattern income. Only
// positive, non-ignored transactions not already categorized as transfers
// are considered; zero amount is never income.
func DetectIncome(tx core.Transaction) (string, bool) {
	if !tx.Amount.IsPositive() || tx.Ignored {
		return "", false
	}
	if equalFold(tx.Category, core.CategoryTransfer) {
		return "", false
	}
	name := MatchIncomePattern(tx.Description, tx.Payee, tx.Memo)
	return name, name != ""
}
