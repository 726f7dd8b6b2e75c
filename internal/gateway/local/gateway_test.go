package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetly/internal/amqp"
	"budgetly/internal/auth"
	"budgetly/internal/core"
	"budgetly/internal/gateway"
	"budgetly/internal/storage"
	"budgetly/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []amqp.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev amqp.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []amqp.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]amqp.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// flakyRepo fails ListExpenses once armed.
type flakyRepo struct {
	storage.Repository
	mu       sync.Mutex
	failList bool
}

func (f *flakyRepo) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	f.mu.Lock()
	fail := f.failList
	f.mu.Unlock()
	if fail {
		return nil, errors.New("backend unavailable")
	}
	return f.Repository.ListExpenses(ctx, userID)
}

// cancelAfterWrite cancels the caller's context once a write has committed,
// as a browser disconnect would, and honors cancellation on reads.
type cancelAfterWrite struct {
	storage.Repository
	cancel context.CancelFunc
}

func (c *cancelAfterWrite) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	id, err := c.Repository.CreateExpense(ctx, e)
	c.cancel()
	return id, err
}

func (c *cancelAfterWrite) UpdateBudget(ctx context.Context, userID string, budget float64) error {
	err := c.Repository.UpdateBudget(ctx, userID, budget)
	c.cancel()
	return err
}

func (c *cancelAfterWrite) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Repository.ListExpenses(ctx, userID)
}

func (c *cancelAfterWrite) GetUser(ctx context.Context, id string) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, err
	}
	return c.Repository.GetUser(ctx, id)
}

func newGateway(t *testing.T) (*Gateway, *memory.Store, *recorder) {
	t.Helper()
	repo := memory.New()
	rec := &recorder{}
	gw := New(repo, Options{DefaultBudget: 1000, Location: time.UTC, Events: rec})
	return gw, repo, rec
}

func entry(desc string, amount float64, cat core.Category, d core.Date) core.NewExpense {
	return core.NewExpense{Description: desc, Amount: amount, Category: cat, Date: d}
}

func TestSignIn(t *testing.T) {
	gw, repo, _ := newGateway(t)
	ctx := context.Background()
	u, err := auth.Provision(ctx, repo, auth.Account{Email: "ana@example.com", DisplayName: "Ana", Password: "pw"})
	require.NoError(t, err)

	var (
		seenID   string
		seenUser *core.User
	)
	unsub := gw.OnAuthChange(func(id string, user *core.User) { seenID, seenUser = id, user })
	defer unsub()

	_, err = gw.SignIn(ctx, "ana@example.com", "wrong")
	var ae *gateway.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, msgBadCredentials, ae.Message)

	_, err = gw.SignIn(ctx, "nobody@example.com", "pw")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, msgBadCredentials, ae.Message, "unknown email reads the same as a wrong password")

	got, err := gw.SignIn(ctx, "ANA@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.ID, seenID)
	require.NotNil(t, seenUser)

	require.NoError(t, gw.SignOut(ctx, u.ID))
	assert.Nil(t, seenUser, "sign-out notifies with a nil user")

	unsub()
	unsub()
	_, err = gw.SignIn(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Nil(t, seenUser, "listener removed")
}

func TestCurrentUser(t *testing.T) {
	gw, _, _ := newGateway(t)
	ctx := context.Background()

	u, err := gw.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	_, err = gw.EnsureUserRecord(ctx, core.User{ID: "u1", DisplayName: "Ana"})
	require.NoError(t, err)

	u, err = gw.CurrentUser(gateway.WithUserID(ctx, "u1"))
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ana", u.DisplayName)
}

func TestEnsureUserRecord(t *testing.T) {
	gw, repo, _ := newGateway(t)
	ctx := context.Background()

	var budgets []float64
	unsub, err := gw.SubscribeBudget(ctx, "u1", func(b float64) { budgets = append(budgets, b) })
	require.NoError(t, err)
	defer unsub()

	u, err := gw.EnsureUserRecord(ctx, core.User{ID: "u1", Budget: 5})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, u.Budget, "new records start at the default budget")

	require.NoError(t, repo.UpdateBudget(ctx, "u1", 42))
	u, err = gw.EnsureUserRecord(ctx, core.User{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 42.0, u.Budget, "existing records are left alone")

	assert.Equal(t, []float64{0, 1000}, budgets, "missing record reads as zero until created")

	_, err = gw.EnsureUserRecord(ctx, core.User{})
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
}

func TestSubscribeExpenses_SnapshotsInCommitOrder(t *testing.T) {
	gw, _, rec := newGateway(t)
	ctx := context.Background()

	var snapshots [][]core.Expense
	unsub, err := gw.SubscribeExpenses(ctx, "u1", gateway.OrderCreatedDesc, func(list []core.Expense) {
		snapshots = append(snapshots, list)
	})
	require.NoError(t, err)

	require.Len(t, snapshots, 1, "initial snapshot delivered on subscribe")
	assert.NotNil(t, snapshots[0])
	assert.Empty(t, snapshots[0])

	id1, err := gw.CreateExpense(ctx, "u1", entry("Lunch", 50, core.Food, core.NewDate(2024, 5, 3)))
	require.NoError(t, err)
	_, err = gw.CreateExpense(ctx, "u1", entry("Taxi", 30, core.Travel, core.NewDate(2024, 5, 10)))
	require.NoError(t, err)

	require.Len(t, snapshots, 3)
	assert.Len(t, snapshots[1], 1)
	require.Len(t, snapshots[2], 2)
	assert.Equal(t, "Taxi", snapshots[2][0].Description, "newest first")

	require.NoError(t, gw.DeleteExpense(ctx, "u1", id1))
	require.Len(t, snapshots, 4)
	assert.Len(t, snapshots[3], 1)

	unsub()
	unsub()
	_, err = gw.CreateExpense(ctx, "u1", entry("Coffee", 3, core.Food, core.NewDate(2024, 5, 11)))
	require.NoError(t, err)
	assert.Len(t, snapshots, 4, "no delivery after unsubscribe")
	assert.Zero(t, gw.SubscriberCount("u1"))

	assert.Equal(t, []amqp.EventType{
		amqp.EventExpenseCreated, amqp.EventExpenseCreated, amqp.EventExpenseDeleted, amqp.EventExpenseCreated,
	}, rec.types())
}

func TestSubscribeExpenses_AscendingOrder(t *testing.T) {
	gw, _, _ := newGateway(t)
	ctx := context.Background()
	for _, d := range []int{1, 9, 5} {
		_, err := gw.CreateExpense(ctx, "u1", entry("x", 1, core.Food, core.NewDate(2024, 5, d)))
		require.NoError(t, err)
	}

	var got []core.Expense
	unsub, err := gw.SubscribeExpenses(ctx, "u1", gateway.OrderCreatedAsc, func(list []core.Expense) { got = list })
	require.NoError(t, err)
	defer unsub()

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Date.Day())
	assert.Equal(t, 9, got[2].Date.Day())
}

func TestSubscriptionsAreScopedToUser(t *testing.T) {
	gw, _, _ := newGateway(t)
	ctx := context.Background()

	calls := 0
	unsub, err := gw.SubscribeExpenses(ctx, "u2", gateway.OrderCreatedDesc, func([]core.Expense) { calls++ })
	require.NoError(t, err)
	defer unsub()

	_, err = gw.CreateExpense(ctx, "u1", entry("x", 1, core.Food, core.NewDate(2024, 5, 1)))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "only the initial snapshot")
}

func TestDeleteExpense_OwnershipAndMissing(t *testing.T) {
	gw, _, rec := newGateway(t)
	ctx := context.Background()

	id, err := gw.CreateExpense(ctx, "u1", entry("Lunch", 10, core.Food, core.NewDate(2024, 5, 1)))
	require.NoError(t, err)

	err = gw.DeleteExpense(ctx, "u2", id)
	assert.ErrorIs(t, err, gateway.ErrNotFound)
	var we *gateway.WriteError
	assert.ErrorAs(t, err, &we)

	assert.ErrorIs(t, gw.DeleteExpense(ctx, "u1", "missing"), gateway.ErrNotFound)
	require.NoError(t, gw.DeleteExpense(ctx, "u1", id))

	types := rec.types()
	assert.Equal(t, amqp.EventExpenseDeleted, types[len(types)-1])
	rec.mu.Lock()
	assert.Equal(t, "2024-05-01", rec.events[len(rec.events)-1].Date)
	rec.mu.Unlock()
}

func TestUpdateBudget(t *testing.T) {
	gw, _, rec := newGateway(t)
	ctx := context.Background()
	_, err := gw.EnsureUserRecord(ctx, core.User{ID: "u1"})
	require.NoError(t, err)

	var budgets []float64
	unsub, err := gw.SubscribeBudget(ctx, "u1", func(b float64) { budgets = append(budgets, b) })
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, gw.UpdateBudget(ctx, "u1", 1500))
	assert.Equal(t, []float64{1000, 1500}, budgets)
	assert.Equal(t, []amqp.EventType{amqp.EventBudgetUpdated}, rec.types())

	assert.Error(t, gw.UpdateBudget(ctx, "u1", -1))
	assert.ErrorIs(t, gw.UpdateBudget(ctx, "ghost", 10), gateway.ErrNotFound)
	assert.Len(t, budgets, 2, "failed writes publish nothing")
}

func TestWritesRequireUser(t *testing.T) {
	gw, _, _ := newGateway(t)
	ctx := context.Background()

	_, err := gw.CreateExpense(ctx, "", entry("x", 1, core.Food, core.NewDate(2024, 5, 1)))
	assert.ErrorIs(t, err, gateway.ErrUnauthenticated)
	assert.ErrorIs(t, gw.DeleteExpense(ctx, "", "id"), gateway.ErrUnauthenticated)
	assert.ErrorIs(t, gw.UpdateBudget(ctx, "", 1), gateway.ErrUnauthenticated)
	_, err = gw.SubscribeBudget(ctx, "", func(float64) {})
	assert.ErrorIs(t, err, gateway.ErrUnauthenticated)
}

func TestCreateExpense_RejectsInvalidEntry(t *testing.T) {
	gw, _, rec := newGateway(t)
	_, err := gw.CreateExpense(context.Background(), "u1", entry("", 1, core.Food, core.NewDate(2024, 5, 1)))
	assert.ErrorIs(t, err, core.ErrEmptyDescription)
	assert.Empty(t, rec.types())
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	gw, _, rec := newGateway(t)
	rec.err = errors.New("broker down")

	_, err := gw.CreateExpense(context.Background(), "u1", entry("x", 1, core.Food, core.NewDate(2024, 5, 1)))
	assert.NoError(t, err)
}

func TestRefreshFailureKeepsLastSnapshot(t *testing.T) {
	repo := &flakyRepo{Repository: memory.New()}
	gw := New(repo, Options{DefaultBudget: 1000, Location: time.UTC})
	ctx := context.Background()

	var snapshots [][]core.Expense
	unsub, err := gw.SubscribeExpenses(ctx, "u1", gateway.OrderCreatedDesc, func(list []core.Expense) {
		snapshots = append(snapshots, list)
	})
	require.NoError(t, err)
	defer unsub()

	repo.mu.Lock()
	repo.failList = true
	repo.mu.Unlock()

	_, err = gw.CreateExpense(ctx, "u1", entry("x", 1, core.Food, core.NewDate(2024, 5, 1)))
	require.NoError(t, err, "the write itself committed")
	assert.Len(t, snapshots, 1, "no partial snapshot is delivered")

	_, err = gw.SubscribeExpenses(ctx, "u1", gateway.OrderCreatedDesc, func([]core.Expense) {})
	var se *gateway.SubscriptionError
	assert.ErrorAs(t, err, &se)
}

func TestCancelledRequestStillRefreshesSubscribers(t *testing.T) {
	repo := &cancelAfterWrite{Repository: memory.New()}
	gw := New(repo, Options{Location: time.UTC})

	var (
		snapshots [][]core.Expense
		budgets   []float64
	)
	unsubE, err := gw.SubscribeExpenses(context.Background(), "u1", gateway.OrderCreatedDesc, func(list []core.Expense) {
		snapshots = append(snapshots, list)
	})
	require.NoError(t, err)
	defer unsubE()
	unsubB, err := gw.SubscribeBudget(context.Background(), "u1", func(b float64) { budgets = append(budgets, b) })
	require.NoError(t, err)
	defer unsubB()
	_, err = gw.EnsureUserRecord(context.Background(), core.User{ID: "u1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	repo.cancel = cancel
	_, err = gw.CreateExpense(ctx, "u1", entry("Lunch", 12, core.Food, core.NewDate(2024, 5, 1)))
	require.NoError(t, err)
	require.Error(t, ctx.Err(), "request context was cancelled after the commit")
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 1, "subscribers see the committed expense")

	ctx, cancel = context.WithCancel(context.Background())
	repo.cancel = cancel
	require.NoError(t, gw.UpdateBudget(ctx, "u1", 250))
	assert.Equal(t, []float64{0, 1000, 250}, budgets)
}

func TestNew_ZeroDefaultBudget(t *testing.T) {
	gw := New(memory.New(), Options{})
	u, err := gw.EnsureUserRecord(context.Background(), core.User{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, core.DefaultBudget, u.Budget)
}

func TestConcurrentWritesDeliverCompleteSnapshots(t *testing.T) {
	gw, _, _ := newGateway(t)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		sizes []int
	)
	unsub, err := gw.SubscribeExpenses(ctx, "u1", gateway.OrderCreatedDesc, func(list []core.Expense) {
		mu.Lock()
		sizes = append(sizes, len(list))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			_, err := gw.CreateExpense(ctx, "u1", entry("x", 1, core.Food, core.NewDate(2024, 5, day)))
			assert.NoError(t, err)
		}(i%28 + 1)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sizes, writers+1)
	for i, n := range sizes {
		assert.Equal(t, i, n, "snapshot %d must reflect exactly %d commits", i, i)
	}
}
