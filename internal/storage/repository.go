package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"karmacash/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when a referenced rule, budget or summary
	// record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleRule is returned when a guarded rule write loses the version
	// race against a concurrent generation pass.
	ErrStaleRule = errors.New("rule version is stale")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping reports whether the database is reachable, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const ruleColumns = `id, budget_id, category_id, category_type, description, amount,
	frequency, repeat_interval, start_date, end_date, next_date, active, version`

// CreateRule stores a validated rule.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("validate rule: %w", err)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rules (id, budget_id, category_id, category_type, description, amount,
			frequency, repeat_interval, start_date, end_date, next_date, active, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.BudgetID, rule.CategoryID, string(rule.CategoryType),
		rule.Description, rule.Amount.String(), string(rule.Frequency), rule.Interval,
		formatDate(rule.StartDate), formatDatePtr(rule.EndDate), formatDatePtr(rule.NextDate),
		boolToInt(rule.Active), rule.Version)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}

	slog.InfoContext(ctx, "Rule created",
		"rule_id", rule.ID,
		"budget_id", rule.BudgetID,
		"frequency", rule.Frequency,
		"start_date", formatDate(rule.StartDate))

	return nil
}

// GetRule returns a rule scoped to its budget, or ErrNotFound.
func (r *SQLiteRepository) GetRule(ctx context.Context, budgetID, ruleID string) (*core.Rule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE budget_id = ? AND id = ?`,
		budgetID, ruleID)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns all rules for a budget.
func (r *SQLiteRepository) ListRules(ctx context.Context, budgetID string) ([]core.Rule, error) {
	return r.listRules(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE budget_id = ? ORDER BY start_date, id`,
		budgetID)
}

// ListActiveRules returns the budget's active rules for bulk expansion.
func (r *SQLiteRepository) ListActiveRules(ctx context.Context, budgetID string) ([]core.Rule, error) {
	return r.listRules(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE budget_id = ? AND active = 1 ORDER BY start_date, id`,
		budgetID)
}

func (r *SQLiteRepository) listRules(ctx context.Context, query string, args ...any) ([]core.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// ListBudgetsWithActiveRules returns the distinct budget IDs that still have
// active rules, for the worker's periodic re-expansion pass.
func (r *SQLiteRepository) ListBudgetsWithActiveRules(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT budget_id FROM rules WHERE active = 1 ORDER BY budget_id`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan budget id: %w", err)
		}
		budgets = append(budgets, id)
	}
	return budgets, rows.Err()
}

// UpdateRule replaces the user-editable fields of a rule. The generation
// cursor and version are not touched here; those move only through the
// guarded statements below.
func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("validate rule: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE rules
		SET category_id = ?, category_type = ?, description = ?, amount = ?,
			frequency = ?, repeat_interval = ?, start_date = ?, end_date = ?,
			active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE budget_id = ? AND id = ?`,
		rule.CategoryID, string(rule.CategoryType), rule.Description, rule.Amount.String(),
		string(rule.Frequency), rule.Interval, formatDate(rule.StartDate),
		formatDatePtr(rule.EndDate), boolToInt(rule.Active),
		rule.BudgetID, rule.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireRow(res, rule.ID)
}

// DeleteRule removes a rule and every instance it generated, returning the
// number of instances deleted. Explicit user deletion is the only path that
// removes a rule.
func (r *SQLiteRepository) DeleteRule(ctx context.Context, budgetID, ruleID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete rule: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE budget_id = ? AND rule_id = ?`, budgetID, ruleID)
	if err != nil {
		return 0, fmt.Errorf("delete rule instances: %w", err)
	}
	deleted, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM rules WHERE budget_id = ? AND id = ?`, budgetID, ruleID)
	if err != nil {
		return 0, fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete rule: %w", err)
	}

	slog.InfoContext(ctx, "Rule deleted with its instances",
		"rule_id", ruleID,
		"budget_id", budgetID,
		"deleted", deleted)

	return int(deleted), nil
}

// ClaimRuleGeneration atomically bumps the rule's version from the value the
// caller loaded, acquiring the generation lease. A concurrent pass that
// already bumped it causes ErrStaleRule.
func (r *SQLiteRepository) ClaimRuleGeneration(ctx context.Context, budgetID, ruleID string, version int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rules SET version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE budget_id = ? AND id = ? AND version = ?`,
		budgetID, ruleID, version)
	if err != nil {
		return 0, fmt.Errorf("claim rule generation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("rule %s at version %d: %w", ruleID, version, ErrStaleRule)
	}
	return version + 1, nil
}

// UpdateRuleCursor advances the rule's next-occurrence cursor under the
// claimed version. The cursor never moves backwards; a regression indicates
// a racing pass and fails the guard.
func (r *SQLiteRepository) UpdateRuleCursor(ctx context.Context, budgetID, ruleID string, next time.Time, version int64) error {
	nextStr := formatDate(next)
	res, err := r.db.ExecContext(ctx, `
		UPDATE rules SET next_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE budget_id = ? AND id = ? AND version = ?
			AND (next_date IS NULL OR next_date <= ?)`,
		nextStr, budgetID, ruleID, version, nextStr)
	if err != nil {
		return fmt.Errorf("update rule cursor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s cursor to %s at version %d: %w", ruleID, nextStr, version, ErrStaleRule)
	}
	return nil
}

// DeactivateRule flags a rule whose end date has passed.
func (r *SQLiteRepository) DeactivateRule(ctx context.Context, budgetID, ruleID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rules SET active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE budget_id = ? AND id = ?`,
		budgetID, ruleID)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	return requireRow(res, ruleID)
}

// CreateTransaction stores a single ledger entry (manual or generated).
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.db.ExecContext(ctx, insertTransactionSQL,
		transactionArgs(t)...)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListTransactionsInRange returns the budget's transactions with
// start <= date < end, ordered by date.
func (r *SQLiteRepository) ListTransactionsInRange(ctx context.Context, budgetID string, start, end time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, budget_id, category_id, txn_date, amount, is_recurring, rule_id, description
		FROM transactions
		WHERE budget_id = ? AND txn_date >= ? AND txn_date < ?
		ORDER BY txn_date, id`,
		budgetID, formatDate(start), formatDate(end))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		var (
			t         core.Transaction
			dateStr   string
			amountStr string
			recurring int
			ruleID    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.BudgetID, &t.CategoryID, &dateStr, &amountStr, &recurring, &ruleID, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("parse transaction date %q: %w", dateStr, err)
		}
		if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse transaction amount %q: %w", amountStr, err)
		}
		t.IsRecurring = recurring != 0
		t.RuleID = ruleID.String
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// ListInstanceMonthsFrom reports the distinct months holding instances of
// the rule dated on or after from.
func (r *SQLiteRepository) ListInstanceMonthsFrom(ctx context.Context, budgetID, ruleID string, from time.Time) ([]core.MonthKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT substr(txn_date, 1, 7)
		FROM transactions
		WHERE budget_id = ? AND rule_id = ? AND txn_date >= ?`,
		budgetID, ruleID, formatDate(from))
	if err != nil {
		return nil, fmt.Errorf("list instance months: %w", err)
	}
	defer rows.Close()

	var months []core.MonthKey
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan instance month: %w", err)
		}
		month, err := core.ParseMonthKey(s)
		if err != nil {
			return nil, fmt.Errorf("stored instance month %q: %w", s, err)
		}
		months = append(months, month)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance months: %w", err)
	}
	return months, nil
}

// DeleteInstancesFrom removes a rule's generated instances dated on or
// after from. Past instances stay: they are historical facts the user may
// already have acted on.
func (r *SQLiteRepository) DeleteInstancesFrom(ctx context.Context, budgetID, ruleID string, from time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM transactions
		WHERE budget_id = ? AND rule_id = ? AND txn_date >= ?`,
		budgetID, ruleID, formatDate(from))
	if err != nil {
		return 0, fmt.Errorf("delete future instances: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteInstancesByRule removes every instance generated from the rule,
// regardless of date.
func (r *SQLiteRepository) DeleteInstancesByRule(ctx context.Context, budgetID, ruleID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE budget_id = ? AND rule_id = ?`,
		budgetID, ruleID)
	if err != nil {
		return 0, fmt.Errorf("delete rule instances: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetMonthlySummary returns the summary record for one month, or ErrNotFound.
func (r *SQLiteRepository) GetMonthlySummary(ctx context.Context, budgetID string, month core.MonthKey) (*core.MonthlySummary, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT allocations, revenue, recurring_expenses, rollover, available_to_allocate,
			total_allocated, remaining_to_allocate, total_spent, net_savings
		FROM monthly_summaries
		WHERE budget_id = ? AND month = ?`,
		budgetID, month.String())

	var (
		allocJSON string
		fields    [8]string
	)
	err := row.Scan(&allocJSON, &fields[0], &fields[1], &fields[2], &fields[3],
		&fields[4], &fields[5], &fields[6], &fields[7])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary %s/%s: %w", budgetID, month, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly summary: %w", err)
	}

	summary := &core.MonthlySummary{
		BudgetID:    budgetID,
		Month:       month,
		Allocations: map[string]decimal.Decimal{},
	}
	if err := json.Unmarshal([]byte(allocJSON), &summary.Allocations); err != nil {
		return nil, fmt.Errorf("parse allocations: %w", err)
	}

	dst := []*decimal.Decimal{
		&summary.Derived.Revenue, &summary.Derived.RecurringExpenses,
		&summary.Derived.Rollover, &summary.Derived.AvailableToAllocate,
		&summary.Derived.TotalAllocated, &summary.Derived.RemainingToAllocate,
		&summary.Derived.TotalSpent, &summary.Derived.NetSavings,
	}
	for i, s := range fields {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("parse summary field: %w", err)
		}
		*dst[i] = d
	}
	return summary, nil
}

// SetAllocations upserts the user-entered allocation map for a month. The
// derived block of an existing record is left untouched.
func (r *SQLiteRepository) SetAllocations(ctx context.Context, budgetID string, month core.MonthKey, allocations map[string]decimal.Decimal) error {
	if allocations == nil {
		allocations = map[string]decimal.Decimal{}
	}
	blob, err := json.Marshal(allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO monthly_summaries (budget_id, month, allocations)
		VALUES (?, ?, ?)
		ON CONFLICT (budget_id, month)
		DO UPDATE SET allocations = excluded.allocations, updated_at = CURRENT_TIMESTAMP`,
		budgetID, month.String(), string(blob))
	if err != nil {
		return fmt.Errorf("upsert allocations: %w", err)
	}
	return nil
}

// UpsertDerivedBlock overwrites a month's derived block wholesale while
// preserving the stored allocation map (merge semantics).
func (r *SQLiteRepository) UpsertDerivedBlock(ctx context.Context, budgetID string, month core.MonthKey, block core.DerivedBlock) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_summaries (budget_id, month, revenue, recurring_expenses,
			rollover, available_to_allocate, total_allocated, remaining_to_allocate,
			total_spent, net_savings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (budget_id, month)
		DO UPDATE SET
			revenue = excluded.revenue,
			recurring_expenses = excluded.recurring_expenses,
			rollover = excluded.rollover,
			available_to_allocate = excluded.available_to_allocate,
			total_allocated = excluded.total_allocated,
			remaining_to_allocate = excluded.remaining_to_allocate,
			total_spent = excluded.total_spent,
			net_savings = excluded.net_savings,
			updated_at = CURRENT_TIMESTAMP`,
		budgetID, month.String(),
		block.Revenue.String(), block.RecurringExpenses.String(),
		block.Rollover.String(), block.AvailableToAllocate.String(),
		block.TotalAllocated.String(), block.RemainingToAllocate.String(),
		block.TotalSpent.String(), block.NetSavings.String())
	if err != nil {
		return fmt.Errorf("upsert derived block: %w", err)
	}

	slog.InfoContext(ctx, "Monthly summary updated",
		"budget_id", budgetID,
		"month", month.String(),
		"available_to_allocate", block.AvailableToAllocate.String())

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*core.Rule, error) {
	var (
		rule         core.Rule
		categoryType string
		frequency    string
		amountStr    string
		startStr     string
		endStr       sql.NullString
		nextStr      sql.NullString
		active       int
	)
	err := row.Scan(&rule.ID, &rule.BudgetID, &rule.CategoryID, &categoryType,
		&rule.Description, &amountStr, &frequency, &rule.Interval,
		&startStr, &endStr, &nextStr, &active, &rule.Version)
	if err != nil {
		return nil, err
	}

	rule.CategoryType = core.CategoryType(categoryType)
	rule.Frequency = core.Frequency(frequency)
	rule.Active = active != 0

	if rule.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("parse rule amount %q: %w", amountStr, err)
	}
	if rule.StartDate, err = time.Parse(dateLayout, startStr); err != nil {
		return nil, fmt.Errorf("parse rule start date %q: %w", startStr, err)
	}
	if endStr.Valid {
		end, err := time.Parse(dateLayout, endStr.String)
		if err != nil {
			return nil, fmt.Errorf("parse rule end date %q: %w", endStr.String, err)
		}
		rule.EndDate = &end
	}
	if nextStr.Valid {
		next, err := time.Parse(dateLayout, nextStr.String)
		if err != nil {
			return nil, fmt.Errorf("parse rule next date %q: %w", nextStr.String, err)
		}
		rule.NextDate = &next
	}
	return &rule, nil
}

const insertTransactionSQL = `
	INSERT INTO transactions (id, budget_id, category_id, txn_date, amount, is_recurring, rule_id, description)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func transactionArgs(t core.Transaction) []any {
	var ruleID any
	if t.RuleID != "" {
		ruleID = t.RuleID
	}
	return []any{
		t.ID, t.BudgetID, t.CategoryID, formatDate(t.Date),
		t.Amount.String(), boolToInt(t.IsRecurring), ruleID, t.Description,
	}
}

func formatDate(t time.Time) string {
	return core.StartOfDay(t).Format(dateLayout)
}

func formatDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatDate(*t)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}
