package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finch/internal/core"
	"finch/internal/engine"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable store behind the engine: accounts,
// transactions, rules, snapshots and the rate-limiter state.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close releases the underlying pool.
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// UpsertAccounts stores freshly normalized accounts. On conflict the
// previous balance is rolled into prev_balance_cents and the new balance
// written; user-owned fields (nickname, hidden, tracking, sort order) are
// left alone. An account is never silently deleted while it still appears
// upstream.
func (r *SQLiteRepository) UpsertAccounts(ctx context.Context, accounts []core.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accounts (external_id, org_name, name, account_type, balance_cents, sort_order)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			org_name = excluded.org_name,
			name = excluded.name,
			prev_balance_cents = accounts.balance_cents,
			balance_cents = excluded.balance_cents,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range accounts {
		if _, err := stmt.ExecContext(ctx, a.ExternalID, a.OrgName, a.Name, string(a.Type), a.Balance.Cents, a.SortOrder); err != nil {
			return fmt.Errorf("upsert account %s: %w", a.ExternalID, err)
		}
	}
	return tx.Commit()
}

// ListAccounts returns all accounts ordered by sort order.
func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT external_id, org_name, name, nickname, account_type,
		       balance_cents, prev_balance_cents, hidden, tracking_only, sort_order
		FROM accounts
		ORDER BY sort_order, external_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var a core.Account
		var accountType string
		var prev sql.NullInt64
		if err := rows.Scan(&a.ExternalID, &a.OrgName, &a.Name, &a.Nickname, &accountType,
			&a.Balance.Cents, &prev, &a.Hidden, &a.TrackingOnly, &a.SortOrder); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Type = core.AccountType(accountType)
		if prev.Valid {
			a.PrevBalance = &core.Money{Cents: prev.Int64}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAccountPrefs writes the user-owned account fields.
func (r *SQLiteRepository) UpdateAccountPrefs(ctx context.Context, externalID, nickname string, hidden, trackingOnly bool, sortOrder int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET nickname = ?, hidden = ?, tracking_only = ?, sort_order = ?, updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ?
	`, nickname, hidden, trackingOnly, sortOrder, externalID)
	if err != nil {
		return fmt.Errorf("update account prefs: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("account %s not found", externalID)
	}
	return err
}

// InsertTransactions stores new transactions. A transaction is created once
// per external id and never duplicated; re-ingesting an id is a no-op so a
// refresh can be safely re-run.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, txs []core.Transaction) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(external_id, account_id, posted, amount_cents, description, payee, memo, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range txs {
		res, err := stmt.ExecContext(ctx, t.ExternalID, t.AccountID, postedUnix(t.Posted),
			t.Amount.Cents, t.Description, t.Payee, t.Memo, t.Pending)
		if err != nil {
			return inserted, fmt.Errorf("insert transaction %s: %w", t.ExternalID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}
	return inserted, tx.Commit()
}

// ListTransactions returns transactions newest first; limit <= 0 means all.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	query := `
		SELECT external_id, account_id, posted, amount_cents, description, payee, memo,
		       pending, category, source, reason, user_classification, matched_transfer_id, ignored
		FROM transactions
		ORDER BY posted DESC, external_id
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var posted int64
		var source int
		var userClass string
		if err := rows.Scan(&t.ExternalID, &t.AccountID, &posted, &t.Amount.Cents,
			&t.Description, &t.Payee, &t.Memo, &t.Pending, &t.Category, &source,
			&t.Reason, &userClass, &t.MatchedTransferID, &t.Ignored); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Posted = unixPosted(posted)
		t.Source = core.ClassificationSource(source)
		t.UserClassification = core.Classification(userClass)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTransaction loads one transaction by external id. The ok result is
// false when no row exists.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, externalID string) (core.Transaction, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT external_id, account_id, posted, amount_cents, description, payee, memo,
		       pending, category, source, reason, user_classification, matched_transfer_id, ignored
		FROM transactions
		WHERE external_id = ?
	`, externalID)

	var t core.Transaction
	var posted int64
	var source int
	var userClass string
	err := row.Scan(&t.ExternalID, &t.AccountID, &posted, &t.Amount.Cents,
		&t.Description, &t.Payee, &t.Memo, &t.Pending, &t.Category, &source,
		&t.Reason, &userClass, &t.MatchedTransferID, &t.Ignored)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, false, nil
	}
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("get transaction: %w", err)
	}
	t.Posted = unixPosted(posted)
	t.Source = core.ClassificationSource(source)
	t.UserClassification = core.Classification(userClass)
	return t, true, nil
}

// SaveClassifications persists the engine-mutated fields of the given
// transactions: category, source, reason and the matched transfer id.
func (r *SQLiteRepository) SaveClassifications(ctx context.Context, txs []core.Transaction, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	byID := make(map[string]core.Transaction, len(txs))
	for _, t := range txs {
		byID[t.ExternalID] = t
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE transactions
		SET category = ?, source = ?, reason = ?, matched_transfer_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, t.Category, int(t.Source), t.Reason, t.MatchedTransferID, t.ExternalID); err != nil {
			return fmt.Errorf("save classification %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// SaveManual records a user intervention on one transaction.
func (r *SQLiteRepository) SaveManual(ctx context.Context, externalID, category string, ignored bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, ignored = ?, source = ?, reason = 'Manual', updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ?
	`, category, ignored, int(core.SourceManual), externalID)
	if err != nil {
		return fmt.Errorf("save manual classification: %w", err)
	}
	return nil
}

// AddClassificationRule stores a payee rule.
func (r *SQLiteRepository) AddClassificationRule(ctx context.Context, rule core.ClassificationRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classification_rules (id, payee, category, classification, active, user_created, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Payee, rule.Category, string(rule.Classification), rule.Active, rule.UserCreated, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert classification rule: %w", err)
	}
	return nil
}

// ListClassificationRules returns rules, optionally only active ones,
// oldest first so earlier rules win ties the same way every pass.
func (r *SQLiteRepository) ListClassificationRules(ctx context.Context, activeOnly bool) ([]core.ClassificationRule, error) {
	query := `
		SELECT id, payee, category, classification, active, user_created, created_at
		FROM classification_rules
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query classification rules: %w", err)
	}
	defer rows.Close()

	var out []core.ClassificationRule
	for rows.Next() {
		var rule core.ClassificationRule
		var class string
		if err := rows.Scan(&rule.ID, &rule.Payee, &rule.Category, &class, &rule.Active, &rule.UserCreated, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan classification rule: %w", err)
		}
		rule.Classification = core.Classification(class)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// SetClassificationRuleActive toggles a rule.
func (r *SQLiteRepository) SetClassificationRuleActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE classification_rules SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("toggle classification rule: %w", err)
	}
	return nil
}

// AddCategoryRule stores a pattern-to-spending-category rule.
func (r *SQLiteRepository) AddCategoryRule(ctx context.Context, rule core.CategoryRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO category_rules (id, pattern, mode, field, category)
		VALUES (?, ?, ?, ?, ?)
	`, rule.ID, rule.Pattern, string(rule.Mode), string(rule.Field), rule.Category)
	if err != nil {
		return fmt.Errorf("insert category rule: %w", err)
	}
	return nil
}

// ListCategoryRules returns all category rules in insertion order.
func (r *SQLiteRepository) ListCategoryRules(ctx context.Context) ([]core.CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pattern, mode, field, category FROM category_rules ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query category rules: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryRule
	for rows.Next() {
		var rule core.CategoryRule
		var mode, field string
		if err := rows.Scan(&rule.ID, &rule.Pattern, &mode, &field, &rule.Category); err != nil {
			return nil, fmt.Errorf("scan category rule: %w", err)
		}
		rule.Mode = core.MatchMode(mode)
		rule.Field = core.MatchField(field)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// SaveDailySnapshot writes a snapshot once per date; later writes for the
// same date are ignored, keeping snapshots immutable.
func (r *SQLiteRepository) SaveDailySnapshot(ctx context.Context, s core.DailySnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO daily_snapshots (snapshot_date, id, net_worth_cents, assets_cents, liabilities_cents)
		VALUES (?, ?, ?, ?, ?)
	`, s.Date.Format("2006-01-02"), s.ID, s.NetWorth.Cents, s.Assets.Cents, s.Liabilities.Cents)
	if err != nil {
		return fmt.Errorf("insert daily snapshot: %w", err)
	}
	return nil
}

// ListDailySnapshots returns snapshots newest first; limit <= 0 means all.
func (r *SQLiteRepository) ListDailySnapshots(ctx context.Context, limit int) ([]core.DailySnapshot, error) {
	query := `
		SELECT snapshot_date, id, net_worth_cents, assets_cents, liabilities_cents
		FROM daily_snapshots ORDER BY snapshot_date DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("query daily snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.DailySnapshot
	for rows.Next() {
		var s core.DailySnapshot
		var date string
		if err := rows.Scan(&date, &s.ID, &s.NetWorth.Cents, &s.Assets.Cents, &s.Liabilities.Cents); err != nil {
			return nil, fmt.Errorf("scan daily snapshot: %w", err)
		}
		s.Date, _ = time.Parse("2006-01-02", date)
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveMonthlySnapshot writes a snapshot once per (year, month).
func (r *SQLiteRepository) SaveMonthlySnapshot(ctx context.Context, s core.MonthlySnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO monthly_snapshots (year, month, id, income_cents, expenses_cents, net_cents)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.Year, int(s.Month), s.ID, s.Income.Cents, s.Expenses.Cents, s.Net.Cents)
	if err != nil {
		return fmt.Errorf("insert monthly snapshot: %w", err)
	}
	return nil
}

// ListMonthlySnapshots returns monthly snapshots newest first.
func (r *SQLiteRepository) ListMonthlySnapshots(ctx context.Context, limit int) ([]core.MonthlySnapshot, error) {
	query := `
		SELECT year, month, id, income_cents, expenses_cents, net_cents
		FROM monthly_snapshots ORDER BY year DESC, month DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("query monthly snapshots: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlySnapshot
	for rows.Next() {
		var s core.MonthlySnapshot
		var month int
		if err := rows.Scan(&s.Year, &month, &s.ID, &s.Income.Cents, &s.Expenses.Cents, &s.Net.Cents); err != nil {
			return nil, fmt.Errorf("scan monthly snapshot: %w", err)
		}
		s.Month = time.Month(month)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadLimiterState reads the persisted rate-limiter state. ok is false when
// no state has been stored yet.
func (r *SQLiteRepository) LoadLimiterState(ctx context.Context) (engine.LimiterState, bool, error) {
	var state engine.LimiterState
	var lastReset, lastSync int64
	err := r.db.QueryRowContext(ctx, `
		SELECT remaining, last_reset, last_sync FROM limiter_state WHERE id = 1
	`).Scan(&state.Remaining, &lastReset, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.LimiterState{}, false, nil
	}
	if err != nil {
		return engine.LimiterState{}, false, fmt.Errorf("load limiter state: %w", err)
	}
	state.LastReset = unixPosted(lastReset)
	state.LastSync = unixPosted(lastSync)
	return state, true, nil
}

// SaveLimiterState persists the limiter state. Callers merge before saving
// so the stored counter never under-counts quota usage.
func (r *SQLiteRepository) SaveLimiterState(ctx context.Context, state engine.LimiterState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO limiter_state (id, remaining, last_reset, last_sync)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			remaining = excluded.remaining,
			last_reset = excluded.last_reset,
			last_sync = excluded.last_sync
	`, state.Remaining, postedUnix(state.LastReset), postedUnix(state.LastSync))
	if err != nil {
		return fmt.Errorf("save limiter state: %w", err)
	}
	return nil
}

// postedUnix maps the zero-time pending sentinel to 0 seconds.
func postedUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixPosted(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}
