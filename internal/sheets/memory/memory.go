package memory

import (
	"context"
	"sync"

	"karmacash/internal/core"
	ports "karmacash/internal/sheets"
)

// Store is an in-memory SummaryExporter for local runs and tests.
type Store struct {
	mu   sync.Mutex
	rows map[string]core.MonthlySummary
}

var _ ports.SummaryExporter = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[string]core.MonthlySummary)}
}

// Export keeps the latest summary per (budget, month).
func (s *Store) Export(_ context.Context, summary *core.MonthlySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[summary.BudgetID+"|"+summary.Month.String()] = *summary
	return nil
}

// Get returns the exported summary for the key, if any.
func (s *Store) Get(budgetID string, month core.MonthKey) (core.MonthlySummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[budgetID+"|"+month.String()]
	return row, ok
}

// Len reports the number of exported rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
