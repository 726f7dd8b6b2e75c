// Package dashboard holds the per-session view model behind the dashboard
// page.
//
// A Dashboard keeps the latest budget and expense snapshots pushed by the
// gateway and recomputes the derived summary whenever a snapshot arrives or
// the period filter changes. Writes go to the gateway and never touch local
// state; the resulting snapshot push is what updates the view.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"budgetly/internal/aggregate"
	"budgetly/internal/core"
	"budgetly/internal/gateway"
	"budgetly/internal/log"
	"budgetly/internal/period"
	"budgetly/internal/validate"
)

var ErrClosed = errors.New("dashboard closed")

type Options struct {
	// Now is the clock for the initial period, the year list and the
	// future-date check. Defaults to time.Now.
	Now    func() time.Time
	Logger *log.Logger
}

// View is an immutable copy of the dashboard state at one version.
type View struct {
	User    core.User
	Version uint64
	// Loading stays true until the first expense snapshot arrives.
	Loading bool

	Mode                 core.Mode
	Year                 int
	Month                int
	YearSelectorVisible  bool
	MonthSelectorVisible bool
	AvailableYears       []int

	Summary aggregate.Summary
}

type Dashboard struct {
	gw     gateway.Gateway
	user   core.User
	now    func() time.Time
	logger *log.Logger

	mu       sync.Mutex
	machine  *period.Machine
	budget   float64
	expenses []core.Expense
	loaded   bool
	closed   bool
	version  uint64
	summary  aggregate.Summary

	closeOnce sync.Once
	unsubs    []gateway.Unsubscribe
}

// Open subscribes to the user's budget and expenses. A failed subscription
// is logged and leaves that resource at its zero value.
func Open(ctx context.Context, gw gateway.Gateway, user core.User, opts Options) (*Dashboard, error) {
	if gw == nil {
		return nil, errors.New("dashboard: nil gateway")
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.FromContext(ctx)
	}

	d := &Dashboard{
		gw:      gw,
		user:    user,
		now:     opts.Now,
		logger:  opts.Logger.WithComponent(log.ComponentDashboard),
		machine: period.New(opts.Now()),
		budget:  user.Budget,
	}
	d.recompute()

	unsubBudget, err := gw.SubscribeBudget(ctx, user.ID, d.onBudget)
	if err != nil {
		d.logger.ErrorContext(ctx, "Budget subscription failed", log.FieldUserID, user.ID, log.FieldError, err)
	} else {
		d.unsubs = append(d.unsubs, unsubBudget)
	}

	unsubExpenses, err := gw.SubscribeExpenses(ctx, user.ID, gateway.OrderCreatedDesc, d.onExpenses)
	if err != nil {
		d.logger.ErrorContext(ctx, "Expense subscription failed", log.FieldUserID, user.ID, log.FieldError, err)
		d.onExpenses(nil)
	} else {
		d.unsubs = append(d.unsubs, unsubExpenses)
	}

	return d, nil
}

// Close releases both subscriptions. Later calls are no-ops.
func (d *Dashboard) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		for _, unsub := range d.unsubs {
			unsub()
		}
	})
}

func (d *Dashboard) onBudget(budget float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.budget = budget
	d.recompute()
}

func (d *Dashboard) onExpenses(list []core.Expense) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if list == nil {
		list = []core.Expense{}
	}
	d.expenses = list
	d.loaded = true
	d.recompute()
}

// recompute must be called with mu held.
func (d *Dashboard) recompute() {
	d.summary = aggregate.Summarize(d.expenses, d.machine.Period(), d.budget)
	d.version++
}

// View returns the current derived state.
func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return View{
		User:                 d.user,
		Version:              d.version,
		Loading:              !d.loaded,
		Mode:                 d.machine.Mode(),
		Year:                 d.machine.Year(),
		Month:                d.machine.Month(),
		YearSelectorVisible:  d.machine.YearSelectorVisible(),
		MonthSelectorVisible: d.machine.MonthSelectorVisible(),
		AvailableYears:       period.AvailableYears(d.expenses, d.now()),
		Summary:              d.summary,
	}
}

// Select switches the filter mode ("all", "year" or "month").
func (d *Dashboard) Select(mode string) error {
	m, err := core.ParseMode(mode)
	if err != nil {
		return err
	}
	return d.transition(func(pm *period.Machine) error { return pm.Select(m) })
}

func (d *Dashboard) SetYear(year int) error {
	return d.transition(func(pm *period.Machine) error { return pm.SetYear(year) })
}

// SetMonth takes a zero-based month.
func (d *Dashboard) SetMonth(month int) error {
	return d.transition(func(pm *period.Machine) error { return pm.SetMonth(month) })
}

func (d *Dashboard) transition(fn func(*period.Machine) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := fn(d.machine); err != nil {
		return err
	}
	d.recompute()
	return nil
}

// AddExpense validates raw and hands it to the gateway. Validation failures
// never reach the gateway.
func (d *Dashboard) AddExpense(ctx context.Context, raw validate.RawExpense) (string, error) {
	if d.isClosed() {
		return "", ErrClosed
	}
	entry, err := validate.Expense(raw, core.DateOf(d.now()))
	if err != nil {
		return "", err
	}
	id, err := d.gw.CreateExpense(ctx, d.user.ID, entry)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to add expense",
			log.FieldOperation, log.OpCreate,
			log.FieldUserID, d.user.ID,
			log.FieldError, err)
		return "", asWriteError("create expense", err)
	}
	return id, nil
}

func (d *Dashboard) DeleteExpense(ctx context.Context, id string) error {
	if d.isClosed() {
		return ErrClosed
	}
	if err := d.gw.DeleteExpense(ctx, d.user.ID, id); err != nil {
		d.logger.ErrorContext(ctx, "Failed to delete expense",
			log.FieldOperation, log.OpDelete,
			log.FieldUserID, d.user.ID,
			log.FieldExpenseID, id,
			log.FieldError, err)
		return asWriteError("delete expense", err)
	}
	return nil
}

// SetBudget parses raw and updates the budget. An invalid value never
// reaches the gateway.
func (d *Dashboard) SetBudget(ctx context.Context, raw string) error {
	if d.isClosed() {
		return ErrClosed
	}
	budget, err := validate.Budget(raw)
	if err != nil {
		return err
	}
	if err := d.gw.UpdateBudget(ctx, d.user.ID, budget); err != nil {
		d.logger.ErrorContext(ctx, "Failed to update budget",
			log.FieldOperation, log.OpUpdate,
			log.FieldUserID, d.user.ID,
			log.FieldError, err)
		return asWriteError("update budget", err)
	}
	return nil
}

func (d *Dashboard) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func asWriteError(op string, err error) error {
	var we *gateway.WriteError
	if errors.As(err, &we) {
		return err
	}
	return &gateway.WriteError{Op: op, Err: err}
}

// Greeting picks the salutation for the hour of now.
func Greeting(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "Good Morning"
	case h < 18:
		return "Good Afternoon"
	default:
		return "Good Evening"
	}
}
