package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"karmacash/internal/core"
	"karmacash/internal/storage"
)

func seedTransaction(t *testing.T, repo *storage.SQLiteRepository, id string, date time.Time, amount string, recurring bool) {
	t.Helper()
	ruleID := ""
	if recurring {
		ruleID = "rule-1"
	}
	tx := core.Transaction{
		ID:          id,
		BudgetID:    "budget-1",
		CategoryID:  "cat-x",
		Date:        date,
		Amount:      dec(t, amount),
		IsRecurring: recurring,
		RuleID:      ruleID,
	}
	if err := repo.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
}

func TestRecalculateDerivedBlock(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecalculator(repo, testLogger())
	ctx := context.Background()

	// Previous month leaves 200 unallocated.
	prev := core.MonthKey{Year: 2024, Month: time.April}
	if err := repo.UpsertDerivedBlock(ctx, "budget-1", prev, core.DerivedBlock{
		AvailableToAllocate: dec(t, "1200"),
		TotalAllocated:      dec(t, "1000"),
	}); err != nil {
		t.Fatalf("seed previous month: %v", err)
	}

	seedTransaction(t, repo, "salary", core.NewDate(2024, time.May, 1), "2000", false)
	seedTransaction(t, repo, "rent", core.NewDate(2024, time.May, 5), "-300", true)
	seedTransaction(t, repo, "groceries", core.NewDate(2024, time.May, 12), "-150", false)

	key := core.MonthKey{Year: 2024, Month: time.May}
	if err := repo.SetAllocations(ctx, "budget-1", key, map[string]decimal.Decimal{
		"groceries": dec(t, "500"),
		"transport": dec(t, "400"),
	}); err != nil {
		t.Fatalf("SetAllocations: %v", err)
	}

	summary, err := rec.Recalculate(ctx, "budget-1", "2024-05")
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"Revenue", summary.Derived.Revenue, "2000"},
		{"RecurringExpenses", summary.Derived.RecurringExpenses, "300"},
		{"Rollover", summary.Derived.Rollover, "200"},
		{"AvailableToAllocate", summary.Derived.AvailableToAllocate, "1900"},
		{"TotalAllocated", summary.Derived.TotalAllocated, "900"},
		{"RemainingToAllocate", summary.Derived.RemainingToAllocate, "1000"},
		{"TotalSpent", summary.Derived.TotalSpent, "450"},
		{"NetSavings", summary.Derived.NetSavings, "1550"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(t, c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}

	stored, err := repo.GetMonthlySummary(ctx, "budget-1", key)
	if err != nil {
		t.Fatalf("GetMonthlySummary: %v", err)
	}
	if !stored.Derived.NetSavings.Equal(dec(t, "1550")) {
		t.Errorf("persisted NetSavings = %s, want 1550", stored.Derived.NetSavings)
	}
	if !stored.Allocations["groceries"].Equal(dec(t, "500")) {
		t.Errorf("allocations modified by recalculation: %+v", stored.Allocations)
	}
}

func TestRecalculateIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecalculator(repo, testLogger())
	ctx := context.Background()

	seedTransaction(t, repo, "salary", core.NewDate(2024, time.May, 1), "2000", false)
	seedTransaction(t, repo, "rent", core.NewDate(2024, time.May, 5), "-300", true)

	first, err := rec.Recalculate(ctx, "budget-1", "2024-05")
	if err != nil {
		t.Fatalf("first Recalculate: %v", err)
	}
	second, err := rec.Recalculate(ctx, "budget-1", "2024-05")
	if err != nil {
		t.Fatalf("second Recalculate: %v", err)
	}

	if !first.Derived.AvailableToAllocate.Equal(second.Derived.AvailableToAllocate) ||
		!first.Derived.NetSavings.Equal(second.Derived.NetSavings) ||
		!first.Derived.Rollover.Equal(second.Derived.Rollover) {
		t.Errorf("derived block drifted between runs: %+v vs %+v", first.Derived, second.Derived)
	}
}

func TestRecalculateNoPreviousMonth(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecalculator(repo, testLogger())

	seedTransaction(t, repo, "salary", core.NewDate(2024, time.May, 1), "1000", false)

	summary, err := rec.Recalculate(context.Background(), "budget-1", "2024-05")
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if !summary.Derived.Rollover.IsZero() {
		t.Errorf("Rollover = %s, want 0 when no previous month exists", summary.Derived.Rollover)
	}
	if !summary.Derived.AvailableToAllocate.Equal(dec(t, "1000")) {
		t.Errorf("AvailableToAllocate = %s, want 1000", summary.Derived.AvailableToAllocate)
	}
}

func TestRecalculateInvalidMonth(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecalculator(repo, testLogger())

	for _, month := range []string{"2024-5", "2024-13", "2024/05", "may-2024", ""} {
		if _, err := rec.Recalculate(context.Background(), "budget-1", month); !errors.Is(err, core.ErrInvalidMonthKey) {
			t.Errorf("Recalculate(%q) error = %v, want ErrInvalidMonthKey", month, err)
		}
	}
}

func TestRecalculateEmptyMonth(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecalculator(repo, testLogger())

	summary, err := rec.Recalculate(context.Background(), "budget-1", "2024-05")
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if !summary.Derived.Revenue.IsZero() || !summary.Derived.TotalSpent.IsZero() {
		t.Errorf("empty month should yield zero figures: %+v", summary.Derived)
	}
}
