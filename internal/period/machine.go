// Package period implements the filter state machine behind the dashboard's
// All Time / Year / Month selector.
//
// The machine remembers the last chosen year and month even while in a
// coarser mode, so switching Month -> Year -> Month returns to the same month.
package period

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"budgetly/internal/core"
)

var (
	ErrNoYearSelector = errors.New("year selector is not shown in all-time mode")
	ErrNotMonthMode   = errors.New("month selector is only shown in month mode")
	ErrInvalidMonth   = errors.New("month must be between 0 and 11")
)

// Machine is not safe for concurrent use; callers serialize access.
type Machine struct {
	mode  core.Mode
	year  int
	month int
}

// New starts in Month(current year, current month).
func New(now time.Time) *Machine {
	p := core.CurrentMonth(now)
	return &Machine{mode: p.Mode, year: p.Year, month: p.Month}
}

// Period returns the active selection.
func (m *Machine) Period() core.Period {
	switch m.mode {
	case core.ModeAll:
		return core.AllTime()
	case core.ModeYear:
		return core.YearPeriod(m.year)
	default:
		return core.MonthPeriod(m.year, m.month)
	}
}

func (m *Machine) Mode() core.Mode {
	return m.mode
}

// Year is the last selected year, shown by the year selector.
func (m *Machine) Year() int {
	return m.year
}

// Month is the last selected zero-based month.
func (m *Machine) Month() int {
	return m.month
}

func (m *Machine) SelectAll() {
	m.mode = core.ModeAll
}

func (m *Machine) SelectYear() {
	m.mode = core.ModeYear
}

func (m *Machine) SelectMonth() {
	m.mode = core.ModeMonth
}

// Select switches to mode.
func (m *Machine) Select(mode core.Mode) error {
	switch mode {
	case core.ModeAll:
		m.SelectAll()
	case core.ModeYear:
		m.SelectYear()
	case core.ModeMonth:
		m.SelectMonth()
	default:
		return fmt.Errorf("unknown filter mode %q", mode)
	}
	return nil
}

// SetYear changes the selected year; only valid while a year selector is shown.
func (m *Machine) SetYear(year int) error {
	if m.mode == core.ModeAll {
		return ErrNoYearSelector
	}
	m.year = year
	return nil
}

// SetMonth changes the selected month; only valid in month mode.
func (m *Machine) SetMonth(month int) error {
	if m.mode != core.ModeMonth {
		return ErrNotMonthMode
	}
	if month < 0 || month > 11 {
		return ErrInvalidMonth
	}
	m.month = month
	return nil
}

// YearSelectorVisible reports whether the year dropdown is shown.
func (m *Machine) YearSelectorVisible() bool {
	return m.mode != core.ModeAll
}

// MonthSelectorVisible reports whether the month dropdown is shown.
func (m *Machine) MonthSelectorVisible() bool {
	return m.mode == core.ModeMonth
}

// AvailableYears returns the distinct years of the expenses plus the
// current year, most recent first.
func AvailableYears(expenses []core.Expense, now time.Time) []int {
	seen := map[int]struct{}{now.Year(): {}}
	for _, e := range expenses {
		if e.Date.IsZero() {
			continue
		}
		seen[e.Date.Year()] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
