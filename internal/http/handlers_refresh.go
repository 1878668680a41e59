package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"finch/internal/engine"
	"finch/internal/services"
)

// Refreshes call out to the bridge, so they get a longer budget than the
// read handlers.
const refreshTimeout = 2 * time.Minute

type refreshResponse struct {
	Accounts        int   `json:"accounts"`
	NewTransactions int   `json:"new_transactions"`
	Classified      int   `json:"classified"`
	NetWorthCents   int64 `json:"net_worth_cents"`
	RemainingSyncs  int   `json:"remaining_syncs"`
}

// handleRefresh triggers a full bridge sync. When the daily quota is
// exhausted it answers 429 with a Retry-After header.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	result, err := s.refresher.Refresh(ctx)
	if err != nil {
		if errors.Is(err, services.ErrRateLimited) {
			retryAfter := s.limiter.TimeUntilReset(time.Now())
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "sync quota exhausted")
			return
		}
		slog.ErrorContext(ctx, "Refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, refreshResponse{
		Accounts:        result.Accounts,
		NewTransactions: result.NewTransactions,
		Classified:      result.Classified,
		NetWorthCents:   result.NetWorth.NetWorth.Cents,
		RemainingSyncs:  s.limiter.Remaining(),
	})
}

type limiterResponse struct {
	Remaining      int    `json:"remaining"`
	CanSync        bool   `json:"can_sync"`
	TimeUntilReset string `json:"time_until_reset"`
	LastSync       string `json:"last_sync,omitempty"`
	MaxSyncsPerDay int    `json:"max_syncs_per_day"`
}

// handleLimiter reports the current sync quota.
func (s *Server) handleLimiter(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	now := time.Now()
	s.limiter.CheckAndResetIfNeeded(now)

	state := s.limiter.State()
	resp := limiterResponse{
		Remaining:      s.limiter.Remaining(),
		CanSync:        s.limiter.CanSync(),
		TimeUntilReset: s.limiter.TimeUntilReset(now).Truncate(time.Second).String(),
		MaxSyncsPerDay: engine.MaxSyncsPerDay,
	}
	if !state.LastSync.IsZero() {
		resp.LastSync = state.LastSync.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}
