package engine

import (
	"time"

	"github.com/google/uuid"

	"finch/internal/core"
)

// NetWorth is the result of one net-worth aggregation over the accounts the
// caller chose to include.
type NetWorth struct {
	NetWorth         core.Money
	TotalAssets      core.Money
	TotalLiabilities core.Money
}

// CalculateNetWorth sums asset balances and liability magnitudes over the
// given accounts. Filtering of hidden and tracking-only accounts is the
// caller's concern: the calculator only sees the accounts it is given.
func CalculateNetWorth(accounts []core.Account) NetWorth {
	var out NetWorth
	for _, a := range accounts {
		if a.IsLiability() {
			out.TotalLiabilities = out.TotalLiabilities.Add(a.Balance.Abs())
		} else {
			out.TotalAssets = out.TotalAssets.Add(a.Balance)
		}
	}
	out.NetWorth = out.TotalAssets.Sub(out.TotalLiabilities)
	return out
}

// Delta describes the movement between two totals. Percentage is only
// meaningful when HasPercentage is true (previous was non-zero).
type Delta struct {
	Amount           core.Money
	IsPositive       bool
	PercentageChange float64
	HasPercentage    bool
}

// CalculateDelta compares a current total against a previous one.
func CalculateDelta(current, previous core.Money) Delta {
	amount := current.Sub(previous)
	d := Delta{
		Amount:     amount,
		IsPositive: amount.Cents >= 0,
	}
	if previous.Cents != 0 {
		d.PercentageChange = float64(amount.Cents) / float64(previous.Cents) * 100
		d.HasPercentage = true
	}
	return d
}

// DailySnapshotFor freezes a net-worth result for a calendar date.
func DailySnapshotFor(date time.Time, nw NetWorth) core.DailySnapshot {
	return core.DailySnapshot{
		ID:          uuid.NewString(),
		Date:        time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		NetWorth:    nw.NetWorth,
		Assets:      nw.TotalAssets,
		Liabilities: nw.TotalLiabilities,
	}
}
