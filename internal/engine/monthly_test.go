package engine

import (
	"testing"
	"time"

	"finch/internal/core"
)

func monthTx(id string, amountCents int64, posted time.Time, category string) core.Transaction {
	return core.Transaction{
		ExternalID: id,
		Amount:     core.Money{Cents: amountCents},
		Posted:     posted,
		Category:   category,
	}
}

func TestCalculateMonthlyIncome(t *testing.T) {
	june := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	may := time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)

	txs := []core.Transaction{
		monthTx("salary", 250000, june, core.CategoryIncome),
		monthTx("groceries", -15000, june, "Groceries"),
		monthTx("rent", -120000, june, core.CategoryExpense),
		monthTx("transfer-out", -50000, june, core.CategoryTransfer),
		monthTx("transfer-in", 50000, june, core.CategoryTransfer),
		monthTx("last-month", 99999, may, core.CategoryIncome),
		monthTx("zero", 0, june, ""),
	}

	mi := CalculateMonthlyIncome(txs, 2025, time.June)
	if mi.TotalIncome.Cents != 250000 {
		t.Errorf("income = %d, want 250000 (transfers excluded)", mi.TotalIncome.Cents)
	}
	if mi.TotalExpenses.Cents != 135000 {
		t.Errorf("expenses = %d, want 135000 as a magnitude", mi.TotalExpenses.Cents)
	}
	if mi.NetIncome.Cents != 115000 {
		t.Errorf("net = %d, want 115000", mi.NetIncome.Cents)
	}
}

func TestCalculateMonthlyIncomeTransferCaseInsensitive(t *testing.T) {
	june := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		monthTx("t1", 50000, june, "transfer"),
		monthTx("t2", -50000, june, "TRANSFER"),
	}
	mi := CalculateMonthlyIncome(txs, 2025, time.June)
	if !mi.TotalIncome.IsZero() || !mi.TotalExpenses.IsZero() {
		t.Errorf("case-variant transfers leaked into totals: %+v", mi)
	}
}

func TestCalculateMonthlyIncomePendingIncluded(t *testing.T) {
	june := time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC)
	pending := monthTx("p", -3000, june, core.CategoryExpense)
	pending.Pending = true

	mi := CalculateMonthlyIncome([]core.Transaction{pending}, 2025, time.June)
	if mi.TotalExpenses.Cents != 3000 {
		t.Errorf("pending expense excluded: %+v", mi)
	}
}

func TestMonthlySnapshotFor(t *testing.T) {
	mi := MonthlyIncome{
		TotalIncome:   core.Money{Cents: 100},
		TotalExpenses: core.Money{Cents: 40},
		NetIncome:     core.Money{Cents: 60},
	}
	snap := MonthlySnapshotFor(2025, time.June, mi)
	if snap.ID == "" {
		t.Error("snapshot needs an id")
	}
	if snap.Year != 2025 || snap.Month != time.June {
		t.Errorf("key = %d-%v", snap.Year, snap.Month)
	}
	if snap.Income.Cents != 100 || snap.Expenses.Cents != 40 || snap.Net.Cents != 60 {
		t.Errorf("snapshot = %+v", snap)
	}
}
