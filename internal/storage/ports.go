package storage

import (
	"context"
	"errors"
	"time"

	"budgetly/internal/core"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Credentials is the login record for a user. Email is matched
// case-insensitively.
type Credentials struct {
	UserID       string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository is the persistence port shared by every data backend.
type Repository interface {
	CreateCredentials(ctx context.Context, c Credentials) error
	FindCredentials(ctx context.Context, email string) (Credentials, error)

	GetUser(ctx context.Context, id string) (core.User, error)
	CreateUser(ctx context.Context, u core.User) error
	UpdateBudget(ctx context.Context, userID string, budget float64) error

	// ListExpenses returns the user's expenses, newest CreatedAt first.
	// Ties keep the most recently inserted row first.
	ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	// CreateExpense stores e and returns its id. An empty e.ID is assigned.
	CreateExpense(ctx context.Context, e core.Expense) (string, error)
	DeleteExpense(ctx context.Context, userID, id string) error

	Ping(ctx context.Context) error
	Close() error
}
