// Package engine implements the transaction classification and
// reconciliation core: the priority-ordered rule engine, the income and
// category detectors, the transfer pairing algorithm, the net-worth and
// monthly-income calculators, and the sync rate limiter.
//
// Everything here is pure and synchronous. Detectors and the rule engine
// return decision values; the pipeline is the only place a decision is
// applied to a transaction, and only when its source outranks the existing
// one.
package engine

import (
	"regexp"
	"strings"

	"finch/internal/core"
)

// equalFold is strings.EqualFold under a name that reads well at call
// sites comparing category labels.
func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// containsFold reports whether substr occurs in s, case-insensitively.
func containsFold(s, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// fieldValue extracts the rule's target field from a transaction.
func fieldValue(tx core.Transaction, field core.MatchField) string {
	switch field {
	case core.FieldPayee:
		return tx.Payee
	case core.FieldMemo:
		return tx.Memo
	default:
		return tx.Description
	}
}

// matchPattern applies one pattern in the given mode. A malformed regular
// expression matches nothing rather than failing the caller.
func matchPattern(value, pattern string, mode core.MatchMode) bool {
	if value == "" || pattern == "" {
		return false
	}
	v := strings.ToLower(value)
	p := strings.ToLower(pattern)
	switch mode {
	case core.MatchPrefix:
		return strings.HasPrefix(v, p)
	case core.MatchSuffix:
		return strings.HasSuffix(v, p)
	case core.MatchRegex:
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	default:
		return strings.Contains(v, p)
	}
}

// matchCategoryRule evaluates a user category rule against a transaction.
func matchCategoryRule(tx core.Transaction, rule core.CategoryRule) bool {
	return matchPattern(fieldValue(tx, rule.Field), rule.Pattern, rule.Mode)
}
