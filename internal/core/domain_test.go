package core

import (
	"errors"
	"testing"
	"time"
)

func validRule() Rule {
	return Rule{
		ID:           "r1",
		BudgetID:     "b1",
		CategoryID:   "c1",
		CategoryType: ExpenseCategory,
		Description:  "Rent",
		Amount:       dec("850"),
		Frequency:    Monthly,
		Interval:     1,
		StartDate:    NewDate(2024, time.January, 1),
		Active:       true,
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Rule)
		wantErr error
	}{
		{name: "valid", mutate: func(r *Rule) {}},
		{
			name:    "missing budget",
			mutate:  func(r *Rule) { r.BudgetID = "  " },
			wantErr: ErrMissingBudget,
		},
		{
			name:    "missing category",
			mutate:  func(r *Rule) { r.CategoryID = "" },
			wantErr: ErrMissingCategory,
		},
		{
			name:    "bad category type",
			mutate:  func(r *Rule) { r.CategoryType = "transfer" },
			wantErr: ErrInvalidCategory,
		},
		{
			name:    "bad frequency",
			mutate:  func(r *Rule) { r.Frequency = "hourly" },
			wantErr: ErrInvalidFrequency,
		},
		{
			name:    "zero interval",
			mutate:  func(r *Rule) { r.Interval = 0 },
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "zero amount",
			mutate:  func(r *Rule) { r.Amount = dec("0") },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "missing start date",
			mutate:  func(r *Rule) { r.StartDate = time.Time{} },
			wantErr: ErrMissingStartDate,
		},
		{
			name: "end before start",
			mutate: func(r *Rule) {
				end := NewDate(2023, time.December, 31)
				r.EndDate = &end
			},
			wantErr: ErrEndBeforeStart,
		},
		{
			name: "end equals start is allowed",
			mutate: func(r *Rule) {
				end := r.StartDate
				r.EndDate = &end
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			err := rule.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRuleInstanceAmount(t *testing.T) {
	tests := []struct {
		name         string
		categoryType CategoryType
		amount       string
		want         string
	}{
		{name: "expense is negative", categoryType: ExpenseCategory, amount: "50", want: "-50"},
		{name: "income is positive", categoryType: IncomeCategory, amount: "50", want: "50"},
		{name: "expense stored negative stays negative", categoryType: ExpenseCategory, amount: "-50", want: "-50"},
		{name: "income stored negative becomes positive", categoryType: IncomeCategory, amount: "-50", want: "50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			rule.CategoryType = tt.categoryType
			rule.Amount = dec(tt.amount)
			if got := rule.InstanceAmount(); !got.Equal(dec(tt.want)) {
				t.Errorf("InstanceAmount() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRuleEnded(t *testing.T) {
	rule := validRule()
	today := NewDate(2024, time.June, 15)

	if rule.Ended(today) {
		t.Error("rule without end date never ends")
	}

	past := NewDate(2024, time.June, 14)
	rule.EndDate = &past
	if !rule.Ended(today) {
		t.Error("rule with yesterday's end date has ended")
	}

	sameDay := today
	rule.EndDate = &sameDay
	if rule.Ended(today) {
		t.Error("rule ending today has not ended yet")
	}
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2024, time.March, 1, 0, 30, 0, 0, loc) // Feb 29 23:30 UTC
	got := StartOfDay(in)
	if want := NewDate(2024, time.February, 29); !got.Equal(want) {
		t.Errorf("StartOfDay() = %v, want %v", got, want)
	}
}
