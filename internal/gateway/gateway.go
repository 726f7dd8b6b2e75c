// Package gateway defines the boundary between the application and whatever
// provides identity, persistence and change notification.
//
// Subscriptions deliver full snapshots: every callback receives the complete
// current state of the resource and replaces whatever the caller held before.
// A snapshot is delivered once immediately on subscribe and again after every
// committed change, in commit order.
package gateway

import (
	"context"

	"budgetly/internal/core"
)

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Order of an expense snapshot.
type Order int

const (
	OrderCreatedDesc Order = iota
	OrderCreatedAsc
)

// AuthListener is told about sign-ins (user set) and sign-outs (user nil).
type AuthListener func(userID string, user *core.User)

type Gateway interface {
	// CurrentUser returns the user bound to ctx, or nil when none is.
	CurrentUser(ctx context.Context) (*core.User, error)
	SignIn(ctx context.Context, email, password string) (*core.User, error)
	SignOut(ctx context.Context, userID string) error
	OnAuthChange(fn AuthListener) Unsubscribe

	// EnsureUserRecord creates the user's record with the default budget if
	// it does not exist yet and returns the stored record.
	EnsureUserRecord(ctx context.Context, u core.User) (core.User, error)

	SubscribeBudget(ctx context.Context, userID string, fn func(budget float64)) (Unsubscribe, error)
	SubscribeExpenses(ctx context.Context, userID string, order Order, fn func(expenses []core.Expense)) (Unsubscribe, error)

	CreateExpense(ctx context.Context, userID string, e core.NewExpense) (string, error)
	DeleteExpense(ctx context.Context, userID, expenseID string) error
	UpdateBudget(ctx context.Context, userID string, budget float64) error
}

type ctxKey struct{}

// WithUserID binds a signed-in user to ctx for the lifetime of a request.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFrom returns the user bound to ctx.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
