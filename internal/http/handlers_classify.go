package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"finch/internal/core"
	"finch/internal/services"
)

type classifyRequest struct {
	ExternalID     string `json:"external_id"`
	Category       string `json:"category"`
	Classification string `json:"classification"`
	Ignored        bool   `json:"ignored"`
	CreateRule     bool   `json:"create_rule"`
}

// handleClassify applies a manual override to one transaction, optionally
// deriving a reusable payee rule from it.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ExternalID == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, "external_id and category are required")
		return
	}

	tx, found, err := s.store.GetTransaction(ctx, req.ExternalID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load transaction", "error", err, "transaction", req.ExternalID)
		writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	ruleCreated, err := s.classifier.Override(ctx, tx, req.Category, core.Classification(req.Classification), req.Ignored, req.CreateRule)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to apply override", "error", err, "transaction", req.ExternalID)
		writeError(w, http.StatusInternalServerError, "failed to apply override")
		return
	}

	if ruleCreated {
		// A new rule can reclassify historic transactions.
		if _, err := s.classifier.Reclassify(ctx); err != nil {
			slog.WarnContext(ctx, "Reclassify after rule creation failed", "error", err)
		}
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "classified",
		"rule_created": ruleCreated,
	})
}

type unmatchRequest struct {
	OutgoingID string `json:"outgoing_id"`
	IncomingID string `json:"incoming_id"`
}

// handleUnmatch breaks a transfer pairing on both sides.
func (s *Server) handleUnmatch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	var req unmatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OutgoingID == "" || req.IncomingID == "" {
		writeError(w, http.StatusBadRequest, "outgoing_id and incoming_id are required")
		return
	}

	a, foundA, err := s.store.GetTransaction(ctx, req.OutgoingID)
	if err == nil && foundA {
		var b core.Transaction
		var foundB bool
		b, foundB, err = s.store.GetTransaction(ctx, req.IncomingID)
		if err == nil && foundB {
			if err := s.classifier.Unmatch(ctx, a, b); err != nil {
				if errors.Is(err, services.ErrNotMatched) {
					writeError(w, http.StatusConflict, "transactions are not a matched pair")
					return
				}
				slog.ErrorContext(ctx, "Failed to unmatch pair", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to unmatch")
				return
			}
			s.invalidateAggregates()
			writeJSON(w, http.StatusOK, map[string]string{"status": "unmatched"})
			return
		}
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load transfer pair", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	writeError(w, http.StatusNotFound, "transaction not found")
}

// handleTransferStats reports unmatched likely transfers.
func (s *Server) handleTransferStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	stats, err := s.classifier.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to compute transfer stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"unmatched_likely_transfers": stats.UnmatchedLikelyTransfers,
	})
}

type ruleResponse struct {
	ID             string `json:"id"`
	Payee          string `json:"payee"`
	Category       string `json:"category"`
	Classification string `json:"classification"`
	Active         bool   `json:"active"`
	UserCreated    bool   `json:"user_created"`
	CreatedAt      string `json:"created_at"`
}

// handleRules lists classification rules, oldest first. Pass active=true to
// filter to active rules only.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	activeOnly := r.URL.Query().Get("active") == "true"
	rules, err := s.store.ListClassificationRules(ctx, activeOnly)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleResponse{
			ID:             rule.ID,
			Payee:          rule.Payee,
			Category:       rule.Category,
			Classification: string(rule.Classification),
			Active:         rule.Active,
			UserCreated:    rule.UserCreated,
			CreatedAt:      rule.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

type ruleActiveRequest struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// handleRuleActive toggles one rule. Deactivated rules stop matching on the
// next pipeline pass; already-classified transactions keep their labels.
func (s *Server) handleRuleActive(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	var req ruleActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.store.SetClassificationRuleActive(ctx, req.ID, req.Active); err != nil {
		slog.ErrorContext(ctx, "Failed to toggle rule", "error", err, "rule", req.ID)
		writeError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type categoryRuleRequest struct {
	Pattern  string `json:"pattern"`
	Mode     string `json:"mode"`
	Field    string `json:"field"`
	Category string `json:"category"`
}

type categoryRuleResponse struct {
	ID       string `json:"id"`
	Pattern  string `json:"pattern"`
	Mode     string `json:"mode"`
	Field    string `json:"field"`
	Category string `json:"category"`
}

// handleCategoryRules lists (GET) or adds (POST) user category rules. User
// rules are consulted before the built-in category tables.
func (s *Server) handleCategoryRules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		rules, err := s.store.ListCategoryRules(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to list category rules", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list category rules")
			return
		}
		out := make([]categoryRuleResponse, 0, len(rules))
		for _, rule := range rules {
			out = append(out, categoryRuleResponse{
				ID:       rule.ID,
				Pattern:  rule.Pattern,
				Mode:     string(rule.Mode),
				Field:    string(rule.Field),
				Category: rule.Category,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": out})

	case http.MethodPost:
		var req categoryRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Pattern == "" || req.Category == "" {
			writeError(w, http.StatusBadRequest, "pattern and category are required")
			return
		}
		rule := core.CategoryRule{
			ID:       uuid.NewString(),
			Pattern:  req.Pattern,
			Mode:     core.MatchMode(req.Mode),
			Field:    core.MatchField(req.Field),
			Category: req.Category,
		}
		if rule.Mode == "" {
			rule.Mode = core.MatchContains
		}
		if rule.Field == "" {
			rule.Field = core.FieldDescription
		}
		if err := s.store.AddCategoryRule(ctx, rule); err != nil {
			slog.ErrorContext(ctx, "Failed to add category rule", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to add category rule")
			return
		}
		if _, err := s.classifier.Reclassify(ctx); err != nil {
			slog.WarnContext(ctx, "Reclassify after category rule creation failed", "error", err)
		}
		s.invalidateAggregates()
		writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "id": rule.ID})

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
