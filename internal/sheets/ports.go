package sheets

import (
	"context"

	"budgetly/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseExporter mirrors expenses into a spreadsheet, one tab per year.
	// Both operations are idempotent on the expense id, so redelivered
	// events are harmless.
	ExpenseExporter interface {
		AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
		// RemoveExpense deletes the row for id from the tab of year. A year
		// of 0 means the current year. A missing row is not an error.
		RemoveExpense(ctx context.Context, id string, year int) error
	}
)

// Header is the first row written to every yearly tab.
var Header = []string{"Date", "Description", "Amount", "Category", "ID"}

// Row renders e in Header column order.
func Row(e core.Expense) []any {
	return []any{e.Date.String(), e.Description, core.FormatAmount(e.Amount), string(e.Category), e.ID}
}
