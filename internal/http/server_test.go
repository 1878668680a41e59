package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"finch/internal/bridge"
	"finch/internal/core"
	"finch/internal/engine"
	"finch/internal/services"
)

// fakeStore backs the API, the refresh service and the classifier in one
// in-memory implementation.
type fakeStore struct {
	accounts map[string]core.Account
	txs      map[string]core.Transaction
	rules    []core.ClassificationRule
	catRules []core.CategoryRule
	daily    map[string]core.DailySnapshot
	monthly  map[string]core.MonthlySnapshot
	limiter  engine.LimiterState
}

var (
	_ Store                    = (*fakeStore)(nil)
	_ services.Store           = (*fakeStore)(nil)
	_ services.ClassifierStore = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]core.Account),
		txs:      make(map[string]core.Transaction),
		daily:    make(map[string]core.DailySnapshot),
		monthly:  make(map[string]core.MonthlySnapshot),
	}
}

func (f *fakeStore) ListAccounts(ctx context.Context) ([]core.Account, error) {
	out := make([]core.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (f *fakeStore) UpsertAccounts(ctx context.Context, accounts []core.Account) error {
	for _, a := range accounts {
		f.accounts[a.ExternalID] = a
	}
	return nil
}

func (f *fakeStore) UpdateAccountPrefs(ctx context.Context, externalID, nickname string, hidden, trackingOnly bool, sortOrder int) error {
	a, ok := f.accounts[externalID]
	if !ok {
		return context.Canceled
	}
	a.Nickname = nickname
	a.Hidden = hidden
	a.TrackingOnly = trackingOnly
	a.SortOrder = sortOrder
	f.accounts[externalID] = a
	return nil
}

func (f *fakeStore) ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(f.txs))
	for _, t := range f.txs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, externalID string) (core.Transaction, bool, error) {
	t, ok := f.txs[externalID]
	return t, ok, nil
}

func (f *fakeStore) InsertTransactions(ctx context.Context, txs []core.Transaction) (int, error) {
	inserted := 0
	for _, t := range txs {
		if _, exists := f.txs[t.ExternalID]; exists {
			continue
		}
		f.txs[t.ExternalID] = t
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) SaveClassifications(ctx context.Context, txs []core.Transaction, ids []string) error {
	byID := make(map[string]core.Transaction, len(txs))
	for _, t := range txs {
		byID[t.ExternalID] = t
	}
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			f.txs[id] = t
		}
	}
	return nil
}

func (f *fakeStore) SaveManual(ctx context.Context, externalID, category string, ignored bool) error {
	t := f.txs[externalID]
	t.Category = category
	t.Ignored = ignored
	t.Source = core.SourceManual
	t.Reason = "Manual"
	f.txs[externalID] = t
	return nil
}

func (f *fakeStore) AddClassificationRule(ctx context.Context, rule core.ClassificationRule) error {
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeStore) ListClassificationRules(ctx context.Context, activeOnly bool) ([]core.ClassificationRule, error) {
	out := make([]core.ClassificationRule, 0, len(f.rules))
	for _, r := range f.rules {
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) SetClassificationRuleActive(ctx context.Context, id string, active bool) error {
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules[i].Active = active
		}
	}
	return nil
}

func (f *fakeStore) AddCategoryRule(ctx context.Context, rule core.CategoryRule) error {
	f.catRules = append(f.catRules, rule)
	return nil
}

func (f *fakeStore) ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error) {
	return f.catRules, nil
}

func (f *fakeStore) SaveDailySnapshot(ctx context.Context, s core.DailySnapshot) error {
	key := s.Date.Format("2006-01-02")
	if _, exists := f.daily[key]; !exists {
		f.daily[key] = s
	}
	return nil
}

func (f *fakeStore) ListDailySnapshots(ctx context.Context, limit int) ([]core.DailySnapshot, error) {
	out := make([]core.DailySnapshot, 0, len(f.daily))
	for _, s := range f.daily {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) SaveMonthlySnapshot(ctx context.Context, s core.MonthlySnapshot) error {
	key := strconv.Itoa(s.Year) + "-" + strconv.Itoa(int(s.Month))
	if _, exists := f.monthly[key]; !exists {
		f.monthly[key] = s
	}
	return nil
}

func (f *fakeStore) ListMonthlySnapshots(ctx context.Context, limit int) ([]core.MonthlySnapshot, error) {
	out := make([]core.MonthlySnapshot, 0, len(f.monthly))
	for _, s := range f.monthly {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) SaveLimiterState(ctx context.Context, state engine.LimiterState) error {
	f.limiter = state
	return nil
}

func newTestServer(t *testing.T, store *fakeStore, source bridge.AccountSource, limiter *engine.RateLimiter) *Server {
	t.Helper()
	if limiter == nil {
		limiter = engine.NewRateLimiter(time.Now())
	}
	refresher := &services.RefreshService{
		Store:    store,
		Source:   source,
		Limiter:  limiter,
		DeviceID: "test-device",
	}
	classifier := &services.ClassifierService{Store: store}
	srv := NewServer("127.0.0.1:0", store, refresher, classifier, limiter)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &bridge.MemorySource{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["status"]; got != "ok" {
		t.Errorf("status field = %v", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &bridge.MemorySource{}, nil)
	tests := []struct {
		method, target, allow string
	}{
		{http.MethodPost, "/api/accounts", "GET"},
		{http.MethodGet, "/api/refresh", "POST"},
		{http.MethodGet, "/api/classify", "POST"},
		{http.MethodDelete, "/api/category-rules", "GET, POST"},
	}
	for _, tt := range tests {
		rec := doRequest(t, srv, tt.method, tt.target, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status = %d", tt.method, tt.target, rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != tt.allow {
			t.Errorf("%s %s: Allow = %q, want %q", tt.method, tt.target, got, tt.allow)
		}
	}
}

func TestHandleAccountsHidesHidden(t *testing.T) {
	store := newFakeStore()
	store.accounts["a1"] = core.Account{ExternalID: "a1", Name: "Checking", Type: core.AccountChecking, Balance: core.Money{Cents: 100000}}
	store.accounts["a2"] = core.Account{ExternalID: "a2", Name: "Old Card", Type: core.AccountCreditCard, Hidden: true}
	store.accounts["a3"] = core.Account{ExternalID: "a3", Name: "House", Nickname: "Home", TrackingOnly: true}

	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/accounts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	accounts := decodeBody(t, rec)["accounts"].([]any)
	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2 (hidden excluded, tracking-only included)", len(accounts))
	}
	last := accounts[1].(map[string]any)
	if last["display_name"] != "Home" || last["tracking_only"] != true {
		t.Errorf("tracking-only account = %v", last)
	}
}

func TestHandleAccountPrefs(t *testing.T) {
	store := newFakeStore()
	store.accounts["a1"] = core.Account{ExternalID: "a1", Name: "Checking"}
	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/accounts/prefs", `{"nickname":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing external_id: status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/accounts/prefs",
		`{"external_id":"a1","nickname":"Main","hidden":false,"tracking_only":true,"sort_order":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := store.accounts["a1"]
	if got.Nickname != "Main" || !got.TrackingOnly || got.SortOrder != 3 {
		t.Errorf("account = %+v", got)
	}
}

func TestHandleNetWorthCachesAndInvalidates(t *testing.T) {
	store := newFakeStore()
	store.accounts["a1"] = core.Account{ExternalID: "a1", Name: "Checking", Type: core.AccountChecking, Balance: core.Money{Cents: 100000}}
	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/networth", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["net_worth_cents"].(float64); got != 100000 {
		t.Fatalf("net_worth_cents = %v", got)
	}

	// A store mutation alone is not visible: the response is cached.
	a := store.accounts["a1"]
	a.Balance = core.Money{Cents: 200000}
	store.accounts["a1"] = a
	rec = doRequest(t, srv, http.MethodGet, "/api/networth", "")
	if got := decodeBody(t, rec)["net_worth_cents"].(float64); got != 100000 {
		t.Errorf("cached net_worth_cents = %v, want the stale 100000", got)
	}

	// A write through the API invalidates.
	doRequest(t, srv, http.MethodPost, "/api/accounts/prefs", `{"external_id":"a1","nickname":"Main"}`)
	rec = doRequest(t, srv, http.MethodGet, "/api/networth", "")
	if got := decodeBody(t, rec)["net_worth_cents"].(float64); got != 200000 {
		t.Errorf("net_worth_cents after invalidation = %v, want 200000", got)
	}
}

func TestHandleSummary(t *testing.T) {
	store := newFakeStore()
	posted := time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC)
	store.txs["pay"] = core.Transaction{ExternalID: "pay", Posted: posted, Amount: core.Money{Cents: 300000}, Category: core.CategoryIncome}
	store.txs["rent"] = core.Transaction{ExternalID: "rent", Posted: posted, Amount: core.Money{Cents: -150000}, Category: "Housing"}

	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/summary?year=2025&month=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["income_cents"].(float64) != 300000 || body["expenses_cents"].(float64) != 150000 {
		t.Errorf("summary = %v", body)
	}
	if body["net_cents"].(float64) != 150000 {
		t.Errorf("net_cents = %v", body["net_cents"])
	}
}

func TestHandleRefresh(t *testing.T) {
	store := newFakeStore()
	posted := time.Now().Add(-time.Hour)
	source := &bridge.MemorySource{Snap: bridge.Snapshot{
		Accounts: []core.Account{
			{ExternalID: "a1", Name: "Checking", Type: core.AccountChecking, Balance: core.Money{Cents: 500000}},
		},
		Transactions: []core.Transaction{
			{ExternalID: "t1", AccountID: "a1", Posted: posted, Amount: core.Money{Cents: 250000}, Description: "PAYROLL DEPOSIT"},
		},
	}}

	srv := newTestServer(t, store, source, nil)
	rec := doRequest(t, srv, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["accounts"].(float64) != 1 || body["new_transactions"].(float64) != 1 {
		t.Errorf("refresh = %v", body)
	}
	if body["net_worth_cents"].(float64) != 500000 {
		t.Errorf("net_worth_cents = %v", body["net_worth_cents"])
	}
	if body["remaining_syncs"].(float64) != float64(engine.MaxSyncsPerDay-1) {
		t.Errorf("remaining_syncs = %v", body["remaining_syncs"])
	}
}

func TestHandleRefreshRateLimited(t *testing.T) {
	store := newFakeStore()
	limiter := engine.RestoreRateLimiter(engine.LimiterState{
		Remaining: 0,
		LastReset: time.Now().Add(-time.Hour),
		LastSync:  time.Now().Add(-time.Minute),
	})
	source := &bridge.MemorySource{}

	srv := newTestServer(t, store, source, limiter)
	rec := doRequest(t, srv, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if source.Fetches != 0 {
		t.Errorf("bridge fetched %d times while rate limited", source.Fetches)
	}
}

func TestHandleLimiter(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &bridge.MemorySource{}, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/limiter", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["remaining"].(float64) != float64(engine.MaxSyncsPerDay) {
		t.Errorf("remaining = %v", body["remaining"])
	}
	if body["can_sync"] != true {
		t.Errorf("can_sync = %v", body["can_sync"])
	}
	if body["max_syncs_per_day"].(float64) != float64(engine.MaxSyncsPerDay) {
		t.Errorf("max_syncs_per_day = %v", body["max_syncs_per_day"])
	}
	if _, present := body["last_sync"]; present {
		t.Error("last_sync should be omitted before the first sync")
	}
}

func TestHandleClassify(t *testing.T) {
	store := newFakeStore()
	store.txs["t1"] = core.Transaction{ExternalID: "t1", Payee: "Corner Cafe", Amount: core.Money{Cents: -1200}}
	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/classify", `{"external_id":"missing","category":"Dining"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown transaction: status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/classify",
		`{"external_id":"t1","category":"Dining","classification":"expense","create_rule":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["rule_created"]; got != true {
		t.Errorf("rule_created = %v", got)
	}
	// The follow-up reclassify pass applies the freshly derived payee rule,
	// which outranks the one-off manual override.
	tx := store.txs["t1"]
	if tx.Category != "Dining" || tx.Source != core.SourcePayeeRule {
		t.Errorf("transaction = %+v", tx)
	}
	if len(store.rules) != 1 || store.rules[0].Payee != "Corner Cafe" {
		t.Errorf("rules = %+v", store.rules)
	}
}

func TestHandleRulesActiveFilter(t *testing.T) {
	store := newFakeStore()
	store.rules = []core.ClassificationRule{
		{ID: "r1", Payee: "acme", Category: "Consulting", Active: true},
		{ID: "r2", Payee: "globex", Category: "Salary", Active: false},
	}
	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/rules", "")
	if got := len(decodeBody(t, rec)["rules"].([]any)); got != 2 {
		t.Errorf("all rules = %d, want 2", got)
	}
	rec = doRequest(t, srv, http.MethodGet, "/api/rules?active=true", "")
	if got := len(decodeBody(t, rec)["rules"].([]any)); got != 1 {
		t.Errorf("active rules = %d, want 1", got)
	}
}

func TestHandleCategoryRules(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/category-rules", `{"pattern":"COFFEE","category":"Dining"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(store.catRules) != 1 {
		t.Fatalf("rules stored = %d", len(store.catRules))
	}
	rule := store.catRules[0]
	if rule.Mode != core.MatchContains || rule.Field != core.FieldDescription {
		t.Errorf("defaults not applied: %+v", rule)
	}
	if rule.ID == "" {
		t.Error("rule id not assigned")
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/category-rules", `{"pattern":"COFFEE"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing category: status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/category-rules", "")
	if got := len(decodeBody(t, rec)["rules"].([]any)); got != 1 {
		t.Errorf("listed rules = %d, want 1", got)
	}
}

func TestHandleUnmatch(t *testing.T) {
	store := newFakeStore()
	posted := time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC)
	store.txs["out"] = core.Transaction{ExternalID: "out", AccountID: "a1", Posted: posted, Amount: core.Money{Cents: -50000},
		Category: core.CategoryTransfer, Source: core.SourceAutoTransfer, MatchedTransferID: "in"}
	store.txs["in"] = core.Transaction{ExternalID: "in", AccountID: "a2", Posted: posted, Amount: core.Money{Cents: 50000},
		Category: core.CategoryTransfer, Source: core.SourceAutoTransfer, MatchedTransferID: "out"}
	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/transfers/unmatch", `{"outgoing_id":"out"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing incoming_id: status = %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/transfers/unmatch", `{"outgoing_id":"out","incoming_id":"nope"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown pair: status = %d", rec.Code)
	}

	// Both transactions exist but are not each other's counterpart; their
	// classifications must survive the rejected request.
	store.txs["solo"] = core.Transaction{ExternalID: "solo", AccountID: "a3", Posted: posted, Amount: core.Money{Cents: 50000},
		Category: "Dining", Source: core.SourceManual, Reason: "Manual"}
	rec = doRequest(t, srv, http.MethodPost, "/api/transfers/unmatch", `{"outgoing_id":"out","incoming_id":"solo"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("unpaired transactions: status = %d, want 409", rec.Code)
	}
	if got := store.txs["solo"]; got.Category != "Dining" || got.Source != core.SourceManual {
		t.Errorf("manual classification erased: %+v", got)
	}
	if got := store.txs["out"]; got.MatchedTransferID != "in" {
		t.Errorf("pairing disturbed by rejected unmatch: %+v", got)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/transfers/unmatch", `{"outgoing_id":"out","incoming_id":"in"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleTransferStats(t *testing.T) {
	store := newFakeStore()
	store.txs["t1"] = core.Transaction{ExternalID: "t1", Description: "ONLINE TRANSFER TO SAVINGS"}
	srv := newTestServer(t, store, &bridge.MemorySource{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/transfers/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody(t, rec)["unmatched_likely_transfers"].(float64); got != 1 {
		t.Errorf("unmatched_likely_transfers = %v", got)
	}
}
