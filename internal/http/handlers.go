package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"finch/internal/core"
	"finch/internal/services"
)

const handlerTimeout = 10 * time.Second

// handleHealth performs a basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type accountResponse struct {
	ExternalID   string  `json:"external_id"`
	OrgName      string  `json:"org_name"`
	Name         string  `json:"name"`
	DisplayName  string  `json:"display_name"`
	Type         string  `json:"type"`
	BalanceCents int64   `json:"balance_cents"`
	Balance      float64 `json:"balance"`
	Liability    bool    `json:"liability"`
	TrackingOnly bool    `json:"tracking_only"`
	SortOrder    int     `json:"sort_order"`
}

func toAccountResponse(a core.Account) accountResponse {
	return accountResponse{
		ExternalID:   a.ExternalID,
		OrgName:      a.OrgName,
		Name:         a.Name,
		DisplayName:  a.DisplayName(),
		Type:         string(a.Type),
		BalanceCents: a.Balance.Cents,
		Balance:      a.Balance.Float(),
		Liability:    a.IsLiability(),
		TrackingOnly: a.TrackingOnly,
		SortOrder:    a.SortOrder,
	}
}

// handleAccounts lists the non-hidden accounts.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	visible := services.VisibleAccounts(accounts)
	out := make([]accountResponse, 0, len(visible))
	for _, a := range visible {
		out = append(out, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

type accountPrefsRequest struct {
	ExternalID   string `json:"external_id"`
	Nickname     string `json:"nickname"`
	Hidden       bool   `json:"hidden"`
	TrackingOnly bool   `json:"tracking_only"`
	SortOrder    int    `json:"sort_order"`
}

// handleAccountPrefs updates the user-owned account fields. Bridge syncs
// never touch these.
func (s *Server) handleAccountPrefs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	var req accountPrefsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id is required")
		return
	}

	if err := s.store.UpdateAccountPrefs(ctx, req.ExternalID, req.Nickname, req.Hidden, req.TrackingOnly, req.SortOrder); err != nil {
		slog.ErrorContext(ctx, "Failed to update account prefs", "error", err, "account", req.ExternalID)
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}

	// Hiding or untracking an account moves the totals.
	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type transactionResponse struct {
	ExternalID        string  `json:"external_id"`
	AccountID         string  `json:"account_id"`
	Posted            string  `json:"posted,omitempty"`
	AmountCents       int64   `json:"amount_cents"`
	Amount            float64 `json:"amount"`
	Description       string  `json:"description"`
	Payee             string  `json:"payee,omitempty"`
	Memo              string  `json:"memo,omitempty"`
	Pending           bool    `json:"pending"`
	Category          string  `json:"category"`
	Source            string  `json:"source"`
	Reason            string  `json:"reason"`
	MatchedTransferID string  `json:"matched_transfer_id,omitempty"`
	Ignored           bool    `json:"ignored"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	out := transactionResponse{
		ExternalID:        t.ExternalID,
		AccountID:         t.AccountID,
		AmountCents:       t.Amount.Cents,
		Amount:            t.Amount.Float(),
		Description:       t.Description,
		Payee:             t.Payee,
		Memo:              t.Memo,
		Pending:           t.Pending,
		Category:          t.Category,
		Source:            t.Source.String(),
		Reason:            t.Reason,
		MatchedTransferID: t.MatchedTransferID,
		Ignored:           t.Ignored,
	}
	if !t.Posted.IsZero() {
		out.Posted = t.Posted.Format(time.RFC3339)
	}
	return out
}

// handleTransactions lists transactions, newest first. An optional limit
// query parameter caps the page size.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	txs, err := s.store.ListTransactions(ctx, parseLimit(r))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}
