package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"karmacash/internal/core"
	"karmacash/internal/log"
	"karmacash/internal/storage"
)

// Recalculator rebuilds the derived figures of a budget month from its
// transactions and allocations.
type Recalculator struct {
	storage *storage.SQLiteRepository
	logger  *log.Logger
}

func NewRecalculator(repo *storage.SQLiteRepository, logger *log.Logger) *Recalculator {
	return &Recalculator{
		storage: repo,
		logger:  logger.WithComponent(log.ComponentRecalc),
	}
}

// Recalculate recomputes and persists the derived block for one month.
// The month string must be a strict YYYY-MM key. Allocations already stored
// for the month are read, never modified. The previous month's figures feed
// the rollover; a month with no stored summary contributes zeros.
func (r *Recalculator) Recalculate(ctx context.Context, budgetID, month string) (*core.MonthlySummary, error) {
	key, err := core.ParseMonthKey(month)
	if err != nil {
		return nil, err
	}

	start, end := key.Bounds()
	transactions, err := r.storage.ListTransactionsInRange(ctx, budgetID, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for %s %s: %w", budgetID, key, err)
	}

	allocations := map[string]decimal.Decimal{}
	if existing, err := r.storage.GetMonthlySummary(ctx, budgetID, key); err == nil {
		allocations = existing.Allocations
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading summary for %s %s: %w", budgetID, key, err)
	}

	var prevAvailable, prevAllocated decimal.Decimal
	if prev, err := r.storage.GetMonthlySummary(ctx, budgetID, key.Prev()); err == nil {
		prevAvailable = prev.Derived.AvailableToAllocate
		prevAllocated = prev.Derived.TotalAllocated
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading summary for %s %s: %w", budgetID, key.Prev(), err)
	}

	derived := core.ComputeDerived(transactions, allocations, prevAvailable, prevAllocated)
	if err := r.storage.UpsertDerivedBlock(ctx, budgetID, key, derived); err != nil {
		return nil, fmt.Errorf("storing derived block for %s %s: %w", budgetID, key, err)
	}

	r.logger.Info("recalculated month",
		log.FieldBudgetID, budgetID,
		log.FieldMonth, key.String(),
		"transactions", len(transactions),
	)

	return &core.MonthlySummary{
		BudgetID:    budgetID,
		Month:       key,
		Allocations: allocations,
		Derived:     derived,
	}, nil
}
