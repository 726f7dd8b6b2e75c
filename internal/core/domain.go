package core

import (
	"errors"
	"strings"
	"time"
)

// DefaultBudget is assigned to a user record the first time it is created.
const DefaultBudget = 1000.0

const dateLayout = "2006-01-02"

type (
	// Date is a calendar date without a time of day. It is stored as
	// midnight UTC and only becomes an instant at the storage boundary.
	Date struct {
		time.Time
	}

	User struct {
		ID          string
		DisplayName string
		Email       string
		AvatarURL   string
		Budget      float64
		CreatedAt   time.Time
	}

	Expense struct {
		ID          string
		UserID      string
		Description string
		Amount      float64
		Category    Category
		Date        Date
		CreatedAt   time.Time // Date at 12:00 local time, used for ordering
	}

	// NewExpense is a validated entry ready to be written.
	NewExpense struct {
		Description string
		Amount      float64
		Category    Category
		Date        Date
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyUserID      = errors.New("empty user id")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month (1-12)
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// After reports whether d falls on a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Midday returns 12:00 of the date in loc.
func (d Date) Midday(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year(), d.Time.Month(), d.Day(), 12, 0, 0, 0, loc)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return ErrEmptyUserID
	}
	return nil
}

func (e NewExpense) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if !(e.Amount > 0) {
		return ErrInvalidAmount
	}
	return e.Date.Validate()
}

// Materialize turns a validated entry into an Expense owned by userID.
// CreatedAt is the entry date at midday in loc.
func (e NewExpense) Materialize(id, userID string, loc *time.Location) Expense {
	return Expense{
		ID:          id,
		UserID:      userID,
		Description: strings.TrimSpace(e.Description),
		Amount:      e.Amount,
		Category:    ParseCategory(string(e.Category)),
		Date:        e.Date,
		CreatedAt:   e.Date.Midday(loc),
	}
}
