package core

import "github.com/shopspring/decimal"

// DerivedBlock is the computed part of a monthly summary. It is a pure
// function of the month's transactions, the month's allocations and the
// previous month's carry figures, so recomputing it with unchanged inputs
// always yields the same values.
type DerivedBlock struct {
	Revenue             decimal.Decimal
	RecurringExpenses   decimal.Decimal
	Rollover            decimal.Decimal
	AvailableToAllocate decimal.Decimal
	TotalAllocated      decimal.Decimal
	RemainingToAllocate decimal.Decimal
	TotalSpent          decimal.Decimal
	NetSavings          decimal.Decimal
}

// MonthlySummary is the per-(budget, month) record. Allocations are
// user-entered per category and are never touched by recalculation; the
// derived block is overwritten wholesale each run.
type MonthlySummary struct {
	BudgetID    string
	Month       MonthKey
	Allocations map[string]decimal.Decimal
	Derived     DerivedBlock
}

// ComputeDerived builds the derived block for one month.
//
//	rollover            = prevAvailable - prevAllocated
//	availableToAllocate = revenue - recurringExpenses + rollover
//	remainingToAllocate = availableToAllocate - totalAllocated
//	netSavings          = revenue - totalSpent
//
// Revenue sums income entries (positive amounts); recurringExpenses sums the
// absolute values of rule-generated expense entries; totalSpent sums the
// absolute values of all expense entries, recurring or not. Negative
// allocation values count as zero toward totalAllocated.
func ComputeDerived(txns []Transaction, allocations map[string]decimal.Decimal, prevAvailable, prevAllocated decimal.Decimal) DerivedBlock {
	var revenue, recurring, spent decimal.Decimal

	for _, t := range txns {
		if t.IsExpense() {
			abs := t.Amount.Abs()
			spent = spent.Add(abs)
			if t.IsRecurring {
				recurring = recurring.Add(abs)
			}
			continue
		}
		revenue = revenue.Add(t.Amount)
	}

	var allocated decimal.Decimal
	for _, v := range allocations {
		if v.IsNegative() {
			continue
		}
		allocated = allocated.Add(v)
	}

	rollover := prevAvailable.Sub(prevAllocated)
	available := revenue.Sub(recurring).Add(rollover)

	return DerivedBlock{
		Revenue:             revenue,
		RecurringExpenses:   recurring,
		Rollover:            rollover,
		AvailableToAllocate: available,
		TotalAllocated:      allocated,
		RemainingToAllocate: available.Sub(allocated),
		TotalSpent:          spent,
		NetSavings:          revenue.Sub(spent),
	}
}
