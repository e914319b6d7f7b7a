package worker

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"karmacash/internal/amqp"
	"karmacash/internal/core"
	"karmacash/internal/log"
	"karmacash/internal/services"
	"karmacash/internal/sheets/memory"
	"karmacash/internal/storage"
)

func newTestWorker(t *testing.T) (*Worker, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "karmacash.db"))
	if err != nil {
		t.Fatalf("create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	expander := services.NewExpander(repo, nil, services.ExpanderConfig{
		WindowPastMonths:   3,
		WindowFutureMonths: 12,
		BatchSize:          400,
	}, logger)
	recalculator := services.NewRecalculator(repo, logger)
	exporter := memory.New()

	w := New(repo, recalculator, expander, nil, exporter, time.Hour, logger)
	return w, repo, exporter
}

func TestHandleRecalculationExports(t *testing.T) {
	w, repo, exporter := newTestWorker(t)
	ctx := context.Background()

	salary := core.Transaction{
		ID: "salary", BudgetID: "budget-1", CategoryID: "cat-salary",
		Date: core.NewDate(2024, time.May, 1), Amount: decimal.NewFromInt(2000),
	}
	if err := repo.CreateTransaction(ctx, salary); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	msg := amqp.NewRecalculationMessage("budget-1", "2024-05", "test")
	if err := w.HandleRecalculation(ctx, msg); err != nil {
		t.Fatalf("HandleRecalculation: %v", err)
	}

	key := core.MonthKey{Year: 2024, Month: time.May}
	exported, ok := exporter.Get("budget-1", key)
	if !ok {
		t.Fatal("summary not exported")
	}
	if !exported.Derived.Revenue.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("exported revenue = %s, want 2000", exported.Derived.Revenue)
	}

	stored, err := repo.GetMonthlySummary(ctx, "budget-1", key)
	if err != nil {
		t.Fatalf("GetMonthlySummary: %v", err)
	}
	if !stored.Derived.Revenue.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("stored revenue = %s, want 2000", stored.Derived.Revenue)
	}
}

func TestHandleRecalculationDropsInvalidMonth(t *testing.T) {
	w, _, exporter := newTestWorker(t)

	msg := amqp.NewRecalculationMessage("budget-1", "2024-5", "test")
	if err := w.HandleRecalculation(context.Background(), msg); err != nil {
		t.Fatalf("invalid month should be dropped, got %v", err)
	}
	if exporter.Len() != 0 {
		t.Errorf("exports = %d, want 0", exporter.Len())
	}
}

func TestExpandAllBudgets(t *testing.T) {
	w, repo, _ := newTestWorker(t)
	ctx := context.Background()

	for i, budgetID := range []string{"budget-1", "budget-2"} {
		rule := core.Rule{
			ID:           "rule-" + budgetID,
			BudgetID:     budgetID,
			CategoryID:   "cat-rent",
			CategoryType: core.ExpenseCategory,
			Amount:       decimal.NewFromInt(int64(100 * (i + 1))),
			Frequency:    core.Monthly,
			Interval:     1,
			StartDate:    core.NewDate(2024, time.January, 1),
			Active:       true,
		}
		if err := repo.CreateRule(ctx, rule); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}

	w.ExpandAllBudgets(ctx, core.NewDate(2024, time.June, 15))

	for _, budgetID := range []string{"budget-1", "budget-2"} {
		got, err := repo.ListTransactionsInRange(ctx, budgetID,
			core.NewDate(2024, time.June, 1), core.NewDate(2026, time.January, 1))
		if err != nil {
			t.Fatalf("ListTransactionsInRange: %v", err)
		}
		if len(got) == 0 {
			t.Errorf("budget %s has no generated instances", budgetID)
		}
	}
}
