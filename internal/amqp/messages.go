package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"budgetly/internal/core"
)

type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseDeleted EventType = "expense.deleted"
	EventBudgetUpdated  EventType = "budget.updated"
)

// Event is a lightweight change notification. Consumers fetch anything
// else they need from storage; a deleted expense is gone by then, so its
// date travels with the event.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	ExpenseID string    `json:"expense_id,omitempty"`
	Date      string    `json:"date,omitempty"`
	Budget    *float64  `json:"budget,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseCreated(userID, expenseID string, date core.Date) Event {
	return Event{Type: EventExpenseCreated, UserID: userID, ExpenseID: expenseID, Date: date.String(), Timestamp: time.Now()}
}

func NewExpenseDeleted(userID, expenseID string, date core.Date) Event {
	return Event{Type: EventExpenseDeleted, UserID: userID, ExpenseID: expenseID, Date: date.String(), Timestamp: time.Now()}
}

func NewBudgetUpdated(userID string, budget float64) Event {
	return Event{Type: EventBudgetUpdated, UserID: userID, Budget: &budget, Timestamp: time.Now()}
}

// Year returns the year of the expense date, or 0 when the event has none.
func (e Event) Year() int {
	d, err := core.ParseDate(e.Date)
	if err != nil {
		return 0
	}
	return d.Year()
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes and checks an event body.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if e.UserID == "" {
		return Event{}, errors.New("event without user id")
	}
	switch e.Type {
	case EventExpenseCreated, EventExpenseDeleted:
		if e.ExpenseID == "" {
			return Event{}, fmt.Errorf("%s event without expense id", e.Type)
		}
	case EventBudgetUpdated:
		if e.Budget == nil {
			return Event{}, errors.New("budget event without budget")
		}
	default:
		return Event{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	return e, nil
}
