package engine

import (
	"time"

	"github.com/google/uuid"

	"finch/internal/core"
)

// MonthlyIncome is the income/expense aggregate for one calendar month.
type MonthlyIncome struct {
	TotalIncome   core.Money
	TotalExpenses core.Money
	NetIncome     core.Money
}

// CalculateMonthlyIncome aggregates transactions posted in the given
// calendar month, pending included. Transfer-categorized transactions
// contribute to neither side; the category comparison is case-insensitive.
// Malformed amounts were coerced to zero at ingestion, so they cannot abort
// the aggregation here.
func CalculateMonthlyIncome(txs []core.Transaction, year int, month time.Month) MonthlyIncome {
	var out MonthlyIncome
	for _, tx := range txs {
		if !tx.PostedOn(year, month) {
			continue
		}
		if equalFold(tx.Category, core.CategoryTransfer) {
			continue
		}
		switch {
		case tx.Amount.IsPositive():
			out.TotalIncome = out.TotalIncome.Add(tx.Amount)
		case tx.Amount.IsNegative():
			out.TotalExpenses = out.TotalExpenses.Add(tx.Amount.Abs())
		}
	}
	out.NetIncome = out.TotalIncome.Sub(out.TotalExpenses)
	return out
}

// MonthlySnapshotFor freezes a monthly aggregate for its year+month key.
func MonthlySnapshotFor(year int, month time.Month, mi MonthlyIncome) core.MonthlySnapshot {
	return core.MonthlySnapshot{
		ID:       uuid.NewString(),
		Year:     year,
		Month:    month,
		Income:   mi.TotalIncome,
		Expenses: mi.TotalExpenses,
		Net:      mi.NetIncome,
	}
}
