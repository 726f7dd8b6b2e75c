// Package validate gates user input before anything is written.
//
// Rules run in a fixed order and the first failure wins, so a form with
// several problems reports exactly one message.
package validate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"budgetly/internal/core"
)

var (
	ErrDescriptionRequired = errors.New("description required")
	ErrAmountInvalid       = errors.New("amount must be a positive number")
	ErrDateInvalid         = errors.New("date missing or malformed")
	ErrFutureDate          = errors.New("date is in the future")
	ErrBudgetInvalid       = errors.New("budget must be a non-negative number")
)

// Messages shown to the user, one per rule.
const (
	MsgDescription = "Please enter a description."
	MsgAmount      = "Please enter a valid, positive amount."
	MsgDate        = "Please enter a valid date."
	MsgFutureDate  = "You cannot add an expense for a future date."
	MsgBudget      = "Please enter a valid, non-negative budget."
)

// ValidationError carries a single human-readable message for the form.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func fail(field, msg string, err error) error {
	return &ValidationError{Field: field, Message: msg, Err: err}
}

// RawExpense is the entry form as submitted.
type RawExpense struct {
	Description string
	Amount      string
	Category    string
	Date        string // YYYY-MM-DD
}

// Expense checks raw against today's date and returns a normalized entry.
// An empty category defaults to the form default; an unknown one is kept
// as Others.
func Expense(raw RawExpense, today core.Date) (core.NewExpense, error) {
	desc := strings.TrimSpace(raw.Description)
	if desc == "" {
		return core.NewExpense{}, fail("description", MsgDescription, ErrDescriptionRequired)
	}

	amount, err := core.ParseAmount(raw.Amount)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return core.NewExpense{}, fail("amount", MsgAmount, ErrAmountInvalid)
	}

	if strings.TrimSpace(raw.Date) == "" {
		return core.NewExpense{}, fail("date", MsgDate, ErrDateInvalid)
	}
	date, err := core.ParseDate(raw.Date)
	if err != nil {
		return core.NewExpense{}, fail("date", MsgDate, ErrDateInvalid)
	}

	if date.After(today) {
		return core.NewExpense{}, fail("date", MsgFutureDate, ErrFutureDate)
	}

	category := core.DefaultCategory
	if strings.TrimSpace(raw.Category) != "" {
		category = core.ParseCategory(raw.Category)
	}

	return core.NewExpense{
		Description: desc,
		Amount:      amount,
		Category:    category,
		Date:        date,
	}, nil
}

// Budget parses a budget update. NaN, infinities and negatives are rejected;
// there is no upper bound.
func Budget(raw string) (float64, error) {
	v, err := core.ParseAmount(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fail("budget", MsgBudget, ErrBudgetInvalid)
	}
	return v, nil
}

// Message extracts the user-facing message from err, if it is a
// ValidationError.
func Message(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message, true
	}
	return "", false
}
