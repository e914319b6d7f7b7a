package http

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"karmacash/internal/core"
)

const dateLayout = "2006-01-02"

// rulePayload is the wire shape for rule create/update requests. Older
// clients send snake_case field names; both spellings are accepted and the
// camelCase one wins when a request carries both.
type rulePayload struct {
	CategoryID         string           `json:"categoryId"`
	CategoryIDLegacy   string           `json:"category_id"`
	CategoryType       string           `json:"categoryType"`
	CategoryTypeLegacy string           `json:"category_type"`
	Description        string           `json:"description"`
	Amount             *decimal.Decimal `json:"amount"`
	Frequency          string           `json:"frequency"`
	Interval           int              `json:"interval"`
	StartDate          string           `json:"startDate"`
	StartDateLegacy    string           `json:"start_date"`
	EndDate            string           `json:"endDate"`
	EndDateLegacy      string           `json:"end_date"`
	Active             *bool            `json:"active"`
}

func decodeRulePayload(body io.Reader) (*rulePayload, error) {
	var p rulePayload
	dec := json.NewDecoder(body)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("malformed JSON body: %w", err)
	}
	p.CategoryID = firstNonEmpty(p.CategoryID, p.CategoryIDLegacy)
	p.CategoryType = firstNonEmpty(p.CategoryType, p.CategoryTypeLegacy)
	p.StartDate = firstNonEmpty(p.StartDate, p.StartDateLegacy)
	p.EndDate = firstNonEmpty(p.EndDate, p.EndDateLegacy)
	return &p, nil
}

// toRule builds a domain rule from the payload. Validation proper happens
// in core; only shape problems (unparseable dates, missing amount) are
// reported here.
func (p *rulePayload) toRule(id, budgetID string) (core.Rule, error) {
	rule := core.Rule{
		ID:           id,
		BudgetID:     budgetID,
		CategoryID:   p.CategoryID,
		CategoryType: core.CategoryType(p.CategoryType),
		Description:  p.Description,
		Frequency:    core.Frequency(p.Frequency),
		Interval:     p.Interval,
		Active:       true,
	}
	if p.Amount != nil {
		rule.Amount = *p.Amount
	}
	if p.Active != nil {
		rule.Active = *p.Active
	}
	if p.Interval == 0 {
		rule.Interval = 1
	}

	if p.StartDate != "" {
		start, err := time.Parse(dateLayout, p.StartDate)
		if err != nil {
			return core.Rule{}, fmt.Errorf("invalid startDate %q: %w", p.StartDate, err)
		}
		rule.StartDate = start
	}
	if p.EndDate != "" {
		end, err := time.Parse(dateLayout, p.EndDate)
		if err != nil {
			return core.Rule{}, fmt.Errorf("invalid endDate %q: %w", p.EndDate, err)
		}
		rule.EndDate = &end
	}
	return rule, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ruleResponse is the wire shape for rules returned by the API.
type ruleResponse struct {
	ID           string          `json:"id"`
	BudgetID     string          `json:"budgetId"`
	CategoryID   string          `json:"categoryId"`
	CategoryType string          `json:"categoryType"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	Frequency    string          `json:"frequency"`
	Interval     int             `json:"interval"`
	StartDate    string          `json:"startDate"`
	EndDate      *string         `json:"endDate,omitempty"`
	NextDate     *string         `json:"nextDate,omitempty"`
	Active       bool            `json:"active"`
}

func toRuleResponse(r *core.Rule) ruleResponse {
	return ruleResponse{
		ID:           r.ID,
		BudgetID:     r.BudgetID,
		CategoryID:   r.CategoryID,
		CategoryType: string(r.CategoryType),
		Description:  r.Description,
		Amount:       r.Amount,
		Frequency:    string(r.Frequency),
		Interval:     r.Interval,
		StartDate:    r.StartDate.Format(dateLayout),
		EndDate:      formatDatePtr(r.EndDate),
		NextDate:     formatDatePtr(r.NextDate),
		Active:       r.Active,
	}
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// summaryResponse is the wire shape for monthly summaries.
type summaryResponse struct {
	BudgetID            string                     `json:"budgetId"`
	Month               string                     `json:"month"`
	Allocations         map[string]decimal.Decimal `json:"allocations"`
	Revenue             decimal.Decimal            `json:"revenue"`
	RecurringExpenses   decimal.Decimal            `json:"recurringExpenses"`
	Rollover            decimal.Decimal            `json:"rollover"`
	AvailableToAllocate decimal.Decimal            `json:"availableToAllocate"`
	TotalAllocated      decimal.Decimal            `json:"totalAllocated"`
	RemainingToAllocate decimal.Decimal            `json:"remainingToAllocate"`
	TotalSpent          decimal.Decimal            `json:"totalSpent"`
	NetSavings          decimal.Decimal            `json:"netSavings"`
}

func toSummaryResponse(s *core.MonthlySummary) summaryResponse {
	allocations := s.Allocations
	if allocations == nil {
		allocations = map[string]decimal.Decimal{}
	}
	return summaryResponse{
		BudgetID:            s.BudgetID,
		Month:               s.Month.String(),
		Allocations:         allocations,
		Revenue:             s.Derived.Revenue,
		RecurringExpenses:   s.Derived.RecurringExpenses,
		Rollover:            s.Derived.Rollover,
		AvailableToAllocate: s.Derived.AvailableToAllocate,
		TotalAllocated:      s.Derived.TotalAllocated,
		RemainingToAllocate: s.Derived.RemainingToAllocate,
		TotalSpent:          s.Derived.TotalSpent,
		NetSavings:          s.Derived.NetSavings,
	}
}
