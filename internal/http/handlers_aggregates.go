package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"finch/internal/engine"
	"finch/internal/services"
)

const netWorthCacheKey = "networth"

type netWorthResponse struct {
	NetWorthCents    int64   `json:"net_worth_cents"`
	NetWorth         float64 `json:"net_worth"`
	AssetsCents      int64   `json:"assets_cents"`
	LiabilitiesCents int64   `json:"liabilities_cents"`

	DeltaCents    int64   `json:"delta_cents"`
	DeltaPositive bool    `json:"delta_positive"`
	DeltaPercent  float64 `json:"delta_percent,omitempty"`
	HasPercent    bool    `json:"has_percent"`
}

// handleNetWorth computes current net worth from the counted accounts and
// compares it against the most recent daily snapshot. Cached briefly since
// dashboards poll it.
func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if cached, ok := s.netWorthCache.Get(netWorthCacheKey); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute net worth")
		return
	}
	nw := engine.CalculateNetWorth(services.CountedAccounts(accounts))

	resp := netWorthResponse{
		NetWorthCents:    nw.NetWorth.Cents,
		NetWorth:         nw.NetWorth.Float(),
		AssetsCents:      nw.TotalAssets.Cents,
		LiabilitiesCents: nw.TotalLiabilities.Cents,
	}

	// Delta against the newest frozen snapshot, when one exists.
	snaps, err := s.store.ListDailySnapshots(ctx, 1)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load daily snapshots", "error", err)
	} else if len(snaps) > 0 {
		d := engine.CalculateDelta(nw.NetWorth, snaps[0].NetWorth)
		resp.DeltaCents = d.Amount.Cents
		resp.DeltaPositive = d.IsPositive
		resp.DeltaPercent = d.PercentageChange
		resp.HasPercent = d.HasPercentage
	}

	s.netWorthCache.Set(netWorthCacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

type summaryResponse struct {
	Year  int `json:"year"`
	Month int `json:"month"`

	IncomeCents   int64   `json:"income_cents"`
	Income        float64 `json:"income"`
	ExpensesCents int64   `json:"expenses_cents"`
	Expenses      float64 `json:"expenses"`
	NetCents      int64   `json:"net_cents"`
	Net           float64 `json:"net"`
}

// handleSummary aggregates income and expenses for one calendar month,
// defaulting to the current one.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	year, month := parseYearMonth(r)
	key := fmt.Sprintf("%04d-%02d", year, int(month))
	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	txs, err := s.store.ListTransactions(ctx, 0)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute summary")
		return
	}
	monthly := engine.CalculateMonthlyIncome(txs, year, month)

	resp := summaryResponse{
		Year:          year,
		Month:         int(month),
		IncomeCents:   monthly.TotalIncome.Cents,
		Income:        monthly.TotalIncome.Float(),
		ExpensesCents: monthly.TotalExpenses.Cents,
		Expenses:      monthly.TotalExpenses.Float(),
		NetCents:      monthly.NetIncome.Cents,
		Net:           monthly.NetIncome.Float(),
	}
	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

type dailySnapshotResponse struct {
	Date             string `json:"date"`
	NetWorthCents    int64  `json:"net_worth_cents"`
	AssetsCents      int64  `json:"assets_cents"`
	LiabilitiesCents int64  `json:"liabilities_cents"`
}

// handleDailySnapshots lists the frozen daily net-worth history, newest
// first.
func (s *Server) handleDailySnapshots(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	snaps, err := s.store.ListDailySnapshots(ctx, parseLimit(r))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list daily snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	out := make([]dailySnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, dailySnapshotResponse{
			Date:             snap.Date.Format("2006-01-02"),
			NetWorthCents:    snap.NetWorth.Cents,
			AssetsCents:      snap.Assets.Cents,
			LiabilitiesCents: snap.Liabilities.Cents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

type monthlySnapshotResponse struct {
	Year          int   `json:"year"`
	Month         int   `json:"month"`
	IncomeCents   int64 `json:"income_cents"`
	ExpensesCents int64 `json:"expenses_cents"`
	NetCents      int64 `json:"net_cents"`
}

// handleMonthlySnapshots lists the frozen monthly income history.
func (s *Server) handleMonthlySnapshots(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	snaps, err := s.store.ListMonthlySnapshots(ctx, parseLimit(r))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list monthly snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	out := make([]monthlySnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, monthlySnapshotResponse{
			Year:          snap.Year,
			Month:         int(snap.Month),
			IncomeCents:   snap.Income.Cents,
			ExpensesCents: snap.Expenses.Cents,
			NetCents:      snap.Net.Cents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}
