package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetly/internal/core"
	"budgetly/internal/gateway"
	"budgetly/internal/gateway/local"
	"budgetly/internal/storage/memory"
	"budgetly/internal/validate"
)

var june15 = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return june15 }

// stubGateway pushes nothing after writes, so any state change observed by
// a test must come from an explicit push.
type stubGateway struct {
	gateway.Gateway
	budgetFn   func(float64)
	expensesFn func([]core.Expense)
	released   int
	creates    int
	writeErr   error
	subErr     error
}

func (s *stubGateway) SubscribeBudget(_ context.Context, _ string, fn func(float64)) (gateway.Unsubscribe, error) {
	s.budgetFn = fn
	fn(1000)
	return func() { s.released++ }, nil
}

func (s *stubGateway) SubscribeExpenses(_ context.Context, _ string, _ gateway.Order, fn func([]core.Expense)) (gateway.Unsubscribe, error) {
	if s.subErr != nil {
		return nil, s.subErr
	}
	s.expensesFn = fn
	fn([]core.Expense{})
	return func() { s.released++ }, nil
}

func (s *stubGateway) CreateExpense(context.Context, string, core.NewExpense) (string, error) {
	s.creates++
	return "new-id", s.writeErr
}

func (s *stubGateway) DeleteExpense(context.Context, string, string) error {
	return s.writeErr
}

func (s *stubGateway) UpdateBudget(context.Context, string, float64) error {
	return s.writeErr
}

func open(t *testing.T, gw gateway.Gateway) *Dashboard {
	t.Helper()
	d, err := Open(context.Background(), gw, core.User{ID: "u1", DisplayName: "Ana"}, Options{Now: clock})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func categoryMap(cs []core.CategoryAmount) map[core.Category]float64 {
	out := make(map[core.Category]float64, len(cs))
	for _, c := range cs {
		out[c.Category] = c.Amount
	}
	return out
}

func TestDashboard_Scenario(t *testing.T) {
	repo := memory.New()
	gw := local.New(repo, local.Options{DefaultBudget: 1000, Location: time.UTC})
	ctx := context.Background()

	user, err := gw.EnsureUserRecord(ctx, core.User{ID: "u1", DisplayName: "Ana"})
	require.NoError(t, err)
	d, err := Open(ctx, gw, user, Options{Now: clock})
	require.NoError(t, err)
	defer d.Close()

	for _, raw := range []validate.RawExpense{
		{Description: "Pizza", Amount: "50", Category: "Food", Date: "2024-05-01"},
		{Description: "Train", Amount: "30", Category: "Travel", Date: "2024-05-02"},
		{Description: "Sushi", Amount: "20", Category: "Food", Date: "2024-06-01"},
	} {
		_, err := d.AddExpense(ctx, raw)
		require.NoError(t, err)
	}

	v := d.View()
	assert.False(t, v.Loading)
	assert.Equal(t, core.ModeMonth, v.Mode)
	assert.Equal(t, 20.0, v.Summary.Total, "starts in the current month")

	require.NoError(t, d.SetMonth(4))
	v = d.View()
	require.Len(t, v.Summary.Expenses, 2)
	assert.Equal(t, 80.0, v.Summary.Total)
	assert.Equal(t, map[core.Category]float64{core.Food: 50, core.Travel: 30}, categoryMap(v.Summary.Categories))
	assert.Equal(t, 920.0, v.Summary.Remaining)
	assert.Equal(t, "in May 2024", v.Summary.Title())

	require.NoError(t, d.Select("all"))
	v = d.View()
	assert.Equal(t, 100.0, v.Summary.Total)
	assert.Equal(t, map[core.Category]float64{core.Food: 70, core.Travel: 30}, categoryMap(v.Summary.Categories))
	assert.False(t, v.YearSelectorVisible)

	require.NoError(t, d.SetBudget(ctx, "50"))
	v = d.View()
	assert.Equal(t, -50.0, v.Summary.Remaining)
	assert.True(t, v.Summary.OverBudget())

	// Deleting pushes a fresh snapshot.
	id := v.Summary.Expenses[0].ID
	require.NoError(t, d.DeleteExpense(ctx, id))
	assert.Equal(t, 80.0, d.View().Summary.Total)

	var we *gateway.WriteError
	require.ErrorAs(t, d.DeleteExpense(ctx, id), &we)
	assert.ErrorIs(t, we, gateway.ErrNotFound)
}

func TestDashboard_ValidationNeverReachesGateway(t *testing.T) {
	gw := &stubGateway{}
	d := open(t, gw)
	ctx := context.Background()

	_, err := d.AddExpense(ctx, validate.RawExpense{Description: "x", Amount: "-5", Date: "2024-06-01"})
	assert.ErrorIs(t, err, validate.ErrAmountInvalid)
	msg, _ := validate.Message(err)
	assert.Equal(t, validate.MsgAmount, msg)

	_, err = d.AddExpense(ctx, validate.RawExpense{Description: "x", Amount: "5", Date: "2024-06-16"})
	assert.ErrorIs(t, err, validate.ErrFutureDate)

	assert.ErrorIs(t, d.SetBudget(ctx, "NaN"), validate.ErrBudgetInvalid)
	assert.Zero(t, gw.creates)
}

func TestDashboard_WritesWaitForPush(t *testing.T) {
	gw := &stubGateway{}
	d := open(t, gw)
	before := d.View()

	_, err := d.AddExpense(context.Background(), validate.RawExpense{Description: "x", Amount: "5", Date: "2024-06-01"})
	require.NoError(t, err)
	after := d.View()
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, after.Summary.Empty())

	gw.expensesFn([]core.Expense{{ID: "new-id", Amount: 5, Category: core.Food, Date: core.NewDate(2024, 6, 1)}})
	after = d.View()
	assert.Greater(t, after.Version, before.Version)
	assert.Equal(t, 5.0, after.Summary.Total)
}

func TestDashboard_WriteErrorsAreTyped(t *testing.T) {
	gw := &stubGateway{writeErr: errors.New("offline")}
	d := open(t, gw)
	ctx := context.Background()

	var we *gateway.WriteError
	_, err := d.AddExpense(ctx, validate.RawExpense{Description: "x", Amount: "5", Date: "2024-06-01"})
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "create expense", we.Op)
	require.ErrorAs(t, d.DeleteExpense(ctx, "e1"), &we)
	require.ErrorAs(t, d.SetBudget(ctx, "10"), &we)
}

func TestDashboard_CloseReleasesOnce(t *testing.T) {
	gw := &stubGateway{}
	d, err := Open(context.Background(), gw, core.User{ID: "u1"}, Options{Now: clock})
	require.NoError(t, err)

	d.Close()
	d.Close()
	assert.Equal(t, 2, gw.released)

	// Late deliveries are ignored.
	v := d.View()
	gw.budgetFn(5)
	assert.Equal(t, v.Version, d.View().Version)

	assert.ErrorIs(t, d.SetYear(2020), ErrClosed)
	_, err = d.AddExpense(context.Background(), validate.RawExpense{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDashboard_SubscriptionFailureDegrades(t *testing.T) {
	gw := &stubGateway{subErr: errors.New("denied")}
	d := open(t, gw)

	v := d.View()
	assert.False(t, v.Loading)
	assert.True(t, v.Summary.Empty())
	assert.Equal(t, []int{2024}, v.AvailableYears)
	assert.Equal(t, 1000.0, v.Summary.Budget)
}

func TestDashboard_FilterGuards(t *testing.T) {
	d := open(t, &stubGateway{})

	assert.Error(t, d.Select("weekly"))
	assert.Error(t, d.SetMonth(12))
	require.NoError(t, d.Select("year"))
	assert.Error(t, d.SetMonth(1))
	require.NoError(t, d.SetYear(2023))
	v := d.View()
	assert.Equal(t, core.YearPeriod(2023), v.Summary.Period)
	assert.False(t, v.MonthSelectorVisible)
}

func TestOpen_RejectsMissingUser(t *testing.T) {
	_, err := Open(context.Background(), &stubGateway{}, core.User{}, Options{})
	assert.Error(t, err)
	_, err = Open(context.Background(), nil, core.User{ID: "u1"}, Options{})
	assert.Error(t, err)
}

func TestGreeting(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, "Good Morning"},
		{11, "Good Morning"},
		{12, "Good Afternoon"},
		{17, "Good Afternoon"},
		{18, "Good Evening"},
		{23, "Good Evening"},
	}
	for _, tt := range tests {
		got := Greeting(time.Date(2024, 1, 1, tt.hour, 30, 0, 0, time.UTC))
		if got != tt.want {
			t.Errorf("Greeting(%02d:30) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}
