package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily     Frequency = "daily"
	Weekly    Frequency = "weekly"
	BiWeekly  Frequency = "bi-weekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Yearly    Frequency = "yearly"
)

const (
	ExpenseCategory CategoryType = "expense"
	IncomeCategory  CategoryType = "income"
)

type (
	// Frequency is the unit of a rule's recurrence step.
	Frequency string

	// CategoryType decides the sign of generated instance amounts.
	CategoryType string

	// Rule is a user-defined template describing a repeating transaction.
	// Amount holds the magnitude only; the sign is derived from CategoryType
	// when instances are generated.
	Rule struct {
		ID           string
		BudgetID     string
		CategoryID   string
		CategoryType CategoryType
		Description  string
		Amount       decimal.Decimal
		Frequency    Frequency
		Interval     int
		StartDate    time.Time
		EndDate      *time.Time
		// NextDate is the generation cursor: the next occurrence that has not
		// been materialized yet. Advanced only by the expander, never moved
		// backwards.
		NextDate *time.Time
		Active   bool
		// Version is the generation lease counter. Every generation pass
		// claims the rule by incrementing it, so overlapping passes for the
		// same rule cannot both commit.
		Version int64
	}

	// Transaction is a single dated ledger entry. Instances generated from a
	// rule carry IsRecurring=true and the generating rule's ID; manual
	// entries leave RuleID empty.
	Transaction struct {
		ID          string
		BudgetID    string
		CategoryID  string
		Date        time.Time
		Amount      decimal.Decimal
		IsRecurring bool
		RuleID      string
		Description string
	}
)

var (
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidInterval  = errors.New("interval must be at least 1")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCategory  = errors.New("invalid category type")
	ErrMissingCategory  = errors.New("missing category")
	ErrMissingStartDate = errors.New("missing start date")
	ErrMissingBudget    = errors.New("missing budget id")
	ErrEndBeforeStart   = errors.New("end date before start date")
)

// ValidFrequency reports whether f is one of the enumerated recurrence units.
func ValidFrequency(f Frequency) bool {
	switch f {
	case Daily, Weekly, BiWeekly, Monthly, Quarterly, Yearly:
		return true
	}
	return false
}

// StartOfDay normalizes t to midnight UTC. All dates handled by the
// recurrence logic are day-granular; a stray time component would make
// window comparisons and cursor monotonicity ambiguous.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate builds a start-of-day UTC date from year, month and day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.BudgetID) == "" {
		return ErrMissingBudget
	}
	if strings.TrimSpace(r.CategoryID) == "" {
		return ErrMissingCategory
	}
	switch r.CategoryType {
	case ExpenseCategory, IncomeCategory:
	default:
		return ErrInvalidCategory
	}
	if !ValidFrequency(r.Frequency) {
		return ErrInvalidFrequency
	}
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	if r.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if r.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// InstanceAmount returns the signed amount for an instance generated from
// this rule: negative for expense categories, positive otherwise. The stored
// magnitude is taken as an absolute value so a rule saved with a negative
// amount still produces consistent signs.
func (r Rule) InstanceAmount() decimal.Decimal {
	abs := r.Amount.Abs()
	if r.CategoryType == ExpenseCategory {
		return abs.Neg()
	}
	return abs
}

// Ended reports whether the rule's end date has passed relative to today.
func (r Rule) Ended(today time.Time) bool {
	return r.EndDate != nil && r.EndDate.Before(StartOfDay(today))
}

// IsExpense reports whether the transaction is an expense entry. The sign is
// authoritative: it was derived from the category type at generation time
// and is never re-derived afterwards.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}
