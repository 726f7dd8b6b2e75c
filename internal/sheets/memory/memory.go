// Package memory is an ExpenseExporter that keeps rows in process. The
// worker uses it as a dry run when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"budgetly/internal/core"
	"budgetly/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows map[int][]core.Expense
}

var _ sheets.ExpenseExporter = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[int][]core.Expense)}
}

// AppendExpense stores the expense and returns a synthetic row reference.
func (s *Store) AppendExpense(ctx context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		return "", fmt.Errorf("expense without id")
	}
	year := e.Date.Year()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rows[year] {
		if existing.ID == e.ID {
			return fmt.Sprintf("mem:%d:%d", year, i+1), nil
		}
	}
	s.rows[year] = append(s.rows[year], e)
	slog.DebugContext(ctx, "Dry-run export", "id", e.ID, "row", sheets.Row(e))
	return fmt.Sprintf("mem:%d:%d", year, len(s.rows[year])), nil
}

func (s *Store) RemoveExpense(_ context.Context, id string, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	years := []int{year}
	if year == 0 {
		years = years[:0]
		for y := range s.rows {
			years = append(years, y)
		}
	}
	for _, y := range years {
		rows := s.rows[y]
		for i, e := range rows {
			if e.ID == id {
				s.rows[y] = append(rows[:i:i], rows[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

// Rows returns the stored expenses for year in append order.
func (s *Store) Rows(year int) []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.rows[year]...)
}
