package core

import (
	"fmt"
	"time"
)

// Mode is the granularity of a filter selection.
type Mode string

const (
	ModeAll   Mode = "all"
	ModeYear  Mode = "year"
	ModeMonth Mode = "month"
)

// Period selects which expenses are in view. Month is zero-based (0-11)
// and only meaningful in ModeMonth; Year is ignored in ModeAll.
type Period struct {
	Mode  Mode
	Year  int
	Month int
}

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the English name of a zero-based month.
func MonthName(m int) string {
	if m < 0 || m > 11 {
		return ""
	}
	return monthNames[m]
}

func AllTime() Period {
	return Period{Mode: ModeAll}
}

func YearPeriod(year int) Period {
	return Period{Mode: ModeYear, Year: year}
}

func MonthPeriod(year, month int) Period {
	return Period{Mode: ModeMonth, Year: year, Month: month}
}

// CurrentMonth is the month containing now.
func CurrentMonth(now time.Time) Period {
	return MonthPeriod(now.Year(), int(now.Month())-1)
}

// ParseMode maps a form value onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAll, ModeYear, ModeMonth:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown filter mode %q", s)
}

func (p Period) Validate() error {
	switch p.Mode {
	case ModeAll, ModeYear:
		return nil
	case ModeMonth:
		if p.Month < 0 || p.Month > 11 {
			return ErrInvalidMonth
		}
		return nil
	}
	return fmt.Errorf("unknown filter mode %q", p.Mode)
}

// Contains reports whether d falls inside the period. Zero dates are never
// contained.
func (p Period) Contains(d Date) bool {
	if d.IsZero() {
		return false
	}
	switch p.Mode {
	case ModeYear:
		return d.Year() == p.Year
	case ModeMonth:
		return d.Year() == p.Year && d.Month()-1 == p.Month
	default:
		return true
	}
}

// Title is the heading suffix shown next to totals.
func (p Period) Title() string {
	switch p.Mode {
	case ModeYear:
		return fmt.Sprintf("in %d", p.Year)
	case ModeMonth:
		return fmt.Sprintf("in %s %d", MonthName(p.Month), p.Year)
	default:
		return "(All Time)"
	}
}

func (p Period) String() string {
	switch p.Mode {
	case ModeYear:
		return fmt.Sprintf("year:%d", p.Year)
	case ModeMonth:
		return fmt.Sprintf("month:%d-%02d", p.Year, p.Month+1)
	default:
		return "all"
	}
}
