// Package aggregate derives the view of a user's spending for a period.
//
// Every function here is pure: the same expenses, period and budget always
// produce the same Summary, and inputs are never modified.
package aggregate

import (
	"budgetly/internal/core"
)

// Summary is the derived state for one period.
type Summary struct {
	Period     core.Period
	Expenses   []core.Expense // filtered, in source order
	Total      float64
	Categories []core.CategoryAmount // first-appearance order
	Budget     float64
	Remaining  float64
}

// Filter keeps the expenses whose date falls inside p, preserving order.
func Filter(expenses []core.Expense, p core.Period) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if p.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// Total sums amounts at full precision.
func Total(expenses []core.Expense) float64 {
	var total float64
	for _, e := range expenses {
		total += e.Amount
	}
	return total
}

// ByCategory groups amounts by category in order of first appearance.
// A missing category is counted as Others.
func ByCategory(expenses []core.Expense) []core.CategoryAmount {
	index := make(map[core.Category]int)
	var out []core.CategoryAmount
	for _, e := range expenses {
		cat := e.Category
		if cat == "" {
			cat = core.Others
		}
		i, seen := index[cat]
		if !seen {
			i = len(out)
			index[cat] = i
			out = append(out, core.CategoryAmount{Category: cat})
		}
		out[i].Amount += e.Amount
	}
	return out
}

// Summarize filters expenses to p and computes totals against budget.
func Summarize(expenses []core.Expense, p core.Period, budget float64) Summary {
	filtered := Filter(expenses, p)
	total := Total(filtered)
	return Summary{
		Period:     p,
		Expenses:   filtered,
		Total:      total,
		Categories: ByCategory(filtered),
		Budget:     budget,
		Remaining:  budget - total,
	}
}

// Title is the period heading, e.g. "in May 2024".
func (s Summary) Title() string {
	return s.Period.Title()
}

// OverBudget reports a negative remainder.
func (s Summary) OverBudget() bool {
	return s.Remaining < 0
}

func (s Summary) Empty() bool {
	return len(s.Expenses) == 0
}

// Share is a category's slice of the total, used for chart legends.
type Share struct {
	Category core.Category
	Amount   float64
	Percent  float64
}

func (s Summary) Shares() []Share {
	out := make([]Share, 0, len(s.Categories))
	for _, c := range s.Categories {
		out = append(out, Share{
			Category: c.Category,
			Amount:   c.Amount,
			Percent:  core.Percent(c.Amount, s.Total),
		})
	}
	return out
}
