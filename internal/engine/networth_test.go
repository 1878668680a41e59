package engine

import (
	"testing"
	"time"

	"finch/internal/core"
)

func TestCalculateNetWorth(t *testing.T) {
	accounts := []core.Account{
		{ExternalID: "chk", Type: core.AccountChecking, Balance: core.Money{Cents: 500000}},
		{ExternalID: "sav", Type: core.AccountSavings, Balance: core.Money{Cents: 1200000}},
		{ExternalID: "cc", Type: core.AccountCreditCard, Balance: core.Money{Cents: -150000}},
		{ExternalID: "loan", Type: core.AccountLoan, Balance: core.Money{Cents: -2000000}},
	}

	nw := CalculateNetWorth(accounts)
	if nw.TotalAssets.Cents != 1700000 {
		t.Errorf("assets = %d, want 1700000", nw.TotalAssets.Cents)
	}
	if nw.TotalLiabilities.Cents != 2150000 {
		t.Errorf("liabilities = %d, want 2150000 (magnitudes)", nw.TotalLiabilities.Cents)
	}
	if nw.NetWorth.Cents != -450000 {
		t.Errorf("net worth = %d, want -450000", nw.NetWorth.Cents)
	}
}

func TestCalculateNetWorthEmpty(t *testing.T) {
	nw := CalculateNetWorth(nil)
	if !nw.NetWorth.IsZero() || !nw.TotalAssets.IsZero() || !nw.TotalLiabilities.IsZero() {
		t.Errorf("empty net worth = %+v", nw)
	}
}

func TestCalculateNetWorthLiabilityMagnitude(t *testing.T) {
	// A credit card reported with a positive balance still counts by
	// magnitude on the liability side.
	accounts := []core.Account{
		{ExternalID: "cc", Type: core.AccountCreditCard, Balance: core.Money{Cents: 50000}},
	}
	nw := CalculateNetWorth(accounts)
	if nw.TotalLiabilities.Cents != 50000 {
		t.Errorf("liabilities = %d, want 50000", nw.TotalLiabilities.Cents)
	}
	if nw.NetWorth.Cents != -50000 {
		t.Errorf("net worth = %d, want -50000", nw.NetWorth.Cents)
	}
}

func TestCalculateDelta(t *testing.T) {
	d := CalculateDelta(core.Money{Cents: 110000}, core.Money{Cents: 100000})
	if d.Amount.Cents != 10000 || !d.IsPositive {
		t.Errorf("delta = %+v", d)
	}
	if !d.HasPercentage || d.PercentageChange != 10 {
		t.Errorf("percentage = %v (has=%v), want 10", d.PercentageChange, d.HasPercentage)
	}

	// Zero previous total has no meaningful percentage.
	d = CalculateDelta(core.Money{Cents: 5000}, core.Money{})
	if d.HasPercentage {
		t.Error("percentage against zero should be absent")
	}

	d = CalculateDelta(core.Money{Cents: 90000}, core.Money{Cents: 100000})
	if d.IsPositive || d.Amount.Cents != -10000 {
		t.Errorf("negative delta = %+v", d)
	}
}

func TestDailySnapshotFor(t *testing.T) {
	nw := NetWorth{NetWorth: core.Money{Cents: 100}, TotalAssets: core.Money{Cents: 300}, TotalLiabilities: core.Money{Cents: 200}}
	at := time.Date(2025, time.June, 2, 17, 45, 0, 0, time.UTC)

	snap := DailySnapshotFor(at, nw)
	if snap.ID == "" {
		t.Error("snapshot needs an id")
	}
	want := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	if !snap.Date.Equal(want) {
		t.Errorf("date = %v, want truncated to %v", snap.Date, want)
	}
	if snap.NetWorth.Cents != 100 || snap.Assets.Cents != 300 || snap.Liabilities.Cents != 200 {
		t.Errorf("snapshot = %+v", snap)
	}
}
