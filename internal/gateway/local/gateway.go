// Package local implements gateway.Gateway on top of a storage.Repository.
//
// Every write, every snapshot refresh and every subscribe runs under one
// mutex, so subscribers observe snapshots in commit order and a new
// subscriber cannot miss a change committed between its initial read and its
// registration. Callbacks run while that mutex is held and must not call
// back into the gateway.
package local

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"budgetly/internal/amqp"
	"budgetly/internal/auth"
	"budgetly/internal/core"
	"budgetly/internal/gateway"
	"budgetly/internal/log"
	"budgetly/internal/storage"
)

const (
	msgBadCredentials = "Invalid email or password."
	msgSignInFailed   = "Sign-in failed. Please try again."
)

// EventPublisher receives a change event after each committed write.
type EventPublisher interface {
	Publish(ctx context.Context, ev amqp.Event) error
}

type Options struct {
	// DefaultBudget seeds new user records; zero means core.DefaultBudget.
	DefaultBudget float64
	// Location places an expense's CreatedAt at local midday.
	Location *time.Location
	Events   EventPublisher
	Logger   *log.Logger
}

type Gateway struct {
	repo   storage.Repository
	opts   Options
	logger *log.Logger
	events *log.StructuredLogger

	writeMu  sync.Mutex
	budgets  *topic[float64]
	expenses *topic[[]core.Expense]

	authMu    sync.Mutex
	authNext  int
	listeners map[int]gateway.AuthListener
}

var _ gateway.Gateway = (*Gateway)(nil)

func New(repo storage.Repository, opts Options) *Gateway {
	if opts.DefaultBudget == 0 {
		opts.DefaultBudget = core.DefaultBudget
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(context.Background())
	}
	logger := opts.Logger.WithComponent(log.ComponentGateway)
	return &Gateway{
		repo:      repo,
		opts:      opts,
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		budgets:   newTopic[float64](),
		expenses:  newTopic[[]core.Expense](),
		listeners: make(map[int]gateway.AuthListener),
	}
}

func (g *Gateway) CurrentUser(ctx context.Context) (*core.User, error) {
	id, ok := gateway.UserIDFrom(ctx)
	if !ok {
		return nil, nil
	}
	u, err := g.repo.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (*core.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &gateway.AuthError{Message: msgBadCredentials}
	}

	creds, err := g.repo.FindCredentials(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		g.logger.WarnContext(ctx, "Sign-in rejected", log.FieldOperation, log.OpSignIn)
		return nil, &gateway.AuthError{Message: msgBadCredentials}
	}
	if err != nil {
		return nil, &gateway.AuthError{Message: msgSignInFailed, Err: err}
	}
	if !auth.CheckPassword(password, creds.PasswordHash) {
		g.logger.WarnContext(ctx, "Sign-in rejected", log.FieldOperation, log.OpSignIn, log.FieldUserID, creds.UserID)
		return nil, &gateway.AuthError{Message: msgBadCredentials}
	}

	u, err := g.repo.GetUser(ctx, creds.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// EnsureUserRecord creates the record on first sign-in.
		u = core.User{ID: creds.UserID, DisplayName: creds.DisplayName, Email: creds.Email}
	case err != nil:
		return nil, &gateway.AuthError{Message: msgSignInFailed, Err: err}
	}

	g.logger.InfoContext(ctx, "User signed in", log.FieldOperation, log.OpSignIn, log.FieldUserID, u.ID)
	g.notifyAuth(u.ID, &u)
	return &u, nil
}

func (g *Gateway) SignOut(ctx context.Context, userID string) error {
	if userID == "" {
		return gateway.ErrUnauthenticated
	}
	g.logger.InfoContext(ctx, "User signed out", log.FieldOperation, log.OpSignOut, log.FieldUserID, userID)
	g.notifyAuth(userID, nil)
	return nil
}

func (g *Gateway) OnAuthChange(fn gateway.AuthListener) gateway.Unsubscribe {
	g.authMu.Lock()
	g.authNext++
	id := g.authNext
	g.listeners[id] = fn
	g.authMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.authMu.Lock()
			delete(g.listeners, id)
			g.authMu.Unlock()
		})
	}
}

func (g *Gateway) notifyAuth(userID string, u *core.User) {
	g.authMu.Lock()
	fns := make([]gateway.AuthListener, 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.authMu.Unlock()
	for _, fn := range fns {
		fn(userID, u)
	}
}

func (g *Gateway) EnsureUserRecord(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	existing, err := g.repo.GetUser(ctx, u.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return core.User{}, &gateway.WriteError{Op: "load user", Err: err}
	}

	u.Budget = g.opts.DefaultBudget
	if err := g.repo.CreateUser(ctx, u); err != nil && !errors.Is(err, storage.ErrConflict) {
		return core.User{}, &gateway.WriteError{Op: "create user", Err: err}
	}
	stored, err := g.repo.GetUser(ctx, u.ID)
	if err != nil {
		return core.User{}, &gateway.WriteError{Op: "load user", Err: err}
	}
	g.budgets.publish(stored.ID, stored.Budget)
	return stored, nil
}

func (g *Gateway) SubscribeBudget(ctx context.Context, userID string, fn func(float64)) (gateway.Unsubscribe, error) {
	if userID == "" {
		return nil, gateway.ErrUnauthenticated
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	budget, err := g.readBudget(ctx, userID)
	if err != nil {
		return nil, &gateway.SubscriptionError{Resource: "budget", Err: err}
	}
	id := g.budgets.add(userID, fn)
	fn(budget)
	return g.unsubscriber(func() { g.budgets.remove(userID, id) }), nil
}

func (g *Gateway) SubscribeExpenses(ctx context.Context, userID string, order gateway.Order, fn func([]core.Expense)) (gateway.Unsubscribe, error) {
	if userID == "" {
		return nil, gateway.ErrUnauthenticated
	}

	deliver := func(list []core.Expense) {
		out := slices.Clone(list)
		if out == nil {
			out = []core.Expense{}
		}
		if order == gateway.OrderCreatedAsc {
			slices.Reverse(out)
		}
		fn(out)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	list, err := g.repo.ListExpenses(ctx, userID)
	if err != nil {
		return nil, &gateway.SubscriptionError{Resource: "expenses", Err: err}
	}
	id := g.expenses.add(userID, deliver)
	deliver(list)
	return g.unsubscriber(func() { g.expenses.remove(userID, id) }), nil
}

func (g *Gateway) unsubscriber(fn func()) gateway.Unsubscribe {
	var once sync.Once
	return func() { once.Do(fn) }
}

func (g *Gateway) CreateExpense(ctx context.Context, userID string, e core.NewExpense) (string, error) {
	if userID == "" {
		return "", gateway.ErrUnauthenticated
	}
	if err := e.Validate(); err != nil {
		return "", &gateway.WriteError{Op: "create expense", Err: err}
	}

	expense := e.Materialize("", userID, g.opts.Location)

	g.writeMu.Lock()
	id, err := g.repo.CreateExpense(ctx, expense)
	if err != nil {
		g.writeMu.Unlock()
		return "", &gateway.WriteError{Op: "create expense", Err: err}
	}
	g.refreshExpenses(ctx, userID)
	g.writeMu.Unlock()

	g.events.LogExpenseCreated(ctx, userID, id, expense.Amount, string(expense.Category), expense.Date.String())
	g.publish(ctx, amqp.NewExpenseCreated(userID, id, expense.Date))
	return id, nil
}

func (g *Gateway) DeleteExpense(ctx context.Context, userID, expenseID string) error {
	if userID == "" {
		return gateway.ErrUnauthenticated
	}

	g.writeMu.Lock()
	existing, err := g.repo.GetExpense(ctx, expenseID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && existing.UserID != userID) {
		g.writeMu.Unlock()
		return &gateway.WriteError{Op: "delete expense", Err: gateway.ErrNotFound}
	}
	if err == nil {
		err = g.repo.DeleteExpense(ctx, userID, expenseID)
	}
	if err != nil {
		g.writeMu.Unlock()
		if errors.Is(err, storage.ErrNotFound) {
			err = gateway.ErrNotFound
		}
		return &gateway.WriteError{Op: "delete expense", Err: err}
	}
	g.refreshExpenses(ctx, userID)
	g.writeMu.Unlock()

	g.events.LogExpenseDeleted(ctx, userID, expenseID)
	g.publish(ctx, amqp.NewExpenseDeleted(userID, expenseID, existing.Date))
	return nil
}

func (g *Gateway) UpdateBudget(ctx context.Context, userID string, budget float64) error {
	if userID == "" {
		return gateway.ErrUnauthenticated
	}
	if math.IsNaN(budget) || math.IsInf(budget, 0) || budget < 0 {
		return &gateway.WriteError{Op: "update budget", Err: core.ErrInvalidAmount}
	}

	g.writeMu.Lock()
	if err := g.repo.UpdateBudget(ctx, userID, budget); err != nil {
		g.writeMu.Unlock()
		if errors.Is(err, storage.ErrNotFound) {
			err = gateway.ErrNotFound
		}
		return &gateway.WriteError{Op: "update budget", Err: err}
	}
	g.refreshBudget(ctx, userID)
	g.writeMu.Unlock()

	g.events.LogBudgetUpdated(ctx, userID, budget)
	g.publish(ctx, amqp.NewBudgetUpdated(userID, budget))
	return nil
}

// SubscriberCount reports live subscriptions for userID across both
// resources.
func (g *Gateway) SubscriberCount(userID string) int {
	return g.budgets.count(userID) + g.expenses.count(userID)
}

// readBudget treats a user without a record as having a zero budget.
func (g *Gateway) readBudget(ctx context.Context, userID string) (float64, error) {
	u, err := g.repo.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return u.Budget, nil
}

// refreshExpenses re-reads and fans out the user's expenses. The write has
// already committed, so the read ignores cancellation of the caller's ctx.
// On a read failure subscribers keep their last snapshot. Callers hold
// writeMu.
func (g *Gateway) refreshExpenses(ctx context.Context, userID string) {
	if !g.expenses.has(userID) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	list, err := g.repo.ListExpenses(ctx, userID)
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to refresh expenses snapshot", log.FieldUserID, userID, log.FieldError, err)
		return
	}
	g.expenses.publish(userID, list)
}

// refreshBudget is refreshExpenses for the budget. Callers hold writeMu.
func (g *Gateway) refreshBudget(ctx context.Context, userID string) {
	if !g.budgets.has(userID) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	budget, err := g.readBudget(ctx, userID)
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to refresh budget snapshot", log.FieldUserID, userID, log.FieldError, err)
		return
	}
	g.budgets.publish(userID, budget)
}

// publish forwards ev to the event publisher. A failed publish never fails
// the write that caused it.
func (g *Gateway) publish(ctx context.Context, ev amqp.Event) {
	if g.opts.Events == nil {
		return
	}
	if err := g.opts.Events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		g.logger.ErrorContext(ctx, "Failed to publish change event",
			log.FieldOperation, log.OpPublish,
			log.FieldEventType, string(ev.Type),
			log.FieldUserID, ev.UserID,
			log.FieldError, err)
	}
}
