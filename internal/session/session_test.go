package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetly/internal/auth"
	"budgetly/internal/core"
	"budgetly/internal/gateway"
	"budgetly/internal/gateway/local"
	"budgetly/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Manager, *local.Gateway, *fakeClock) {
	t.Helper()
	repo := memory.New()
	_, err := auth.Provision(context.Background(), repo, auth.Account{Email: "ana@example.com", DisplayName: "Ana", Password: "secret"})
	require.NoError(t, err)

	gw := local.New(repo, local.Options{DefaultBudget: core.DefaultBudget, Location: time.UTC})
	clock := &fakeClock{now: time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)}
	m := NewManager(gw, Options{TTL: time.Hour, Now: clock.Now})
	t.Cleanup(m.Stop)
	return m, gw, clock
}

func TestSignInStartsSession(t *testing.T) {
	m, gw, _ := setup(t)
	ctx := context.Background()

	s, err := m.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Len(t, s.Token, 64)
	assert.Equal(t, "Ana", s.User.DisplayName)
	assert.Equal(t, core.DefaultBudget, s.Dashboard.View().Summary.Budget)
	assert.Equal(t, 2, gw.SubscriberCount(s.User.ID))

	got, ok := m.Get(s.Token)
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestSignInFailure(t *testing.T) {
	m, _, _ := setup(t)
	_, err := m.SignIn(context.Background(), "ana@example.com", "wrong")

	var ae *gateway.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Invalid email or password.", ae.Message)
	assert.Zero(t, m.Count())
}

func TestEndReleasesSubscriptions(t *testing.T) {
	m, gw, _ := setup(t)
	ctx := context.Background()

	first, err := m.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	_, err = m.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, 4, gw.SubscriberCount(first.User.ID))

	require.NoError(t, m.End(ctx, first.Token))
	assert.Zero(t, m.Count(), "sign-out ends every session of the user")
	assert.Zero(t, gw.SubscriberCount(first.User.ID))

	assert.ErrorIs(t, m.End(ctx, first.Token), ErrNoSession)
	_, ok := m.Get(first.Token)
	assert.False(t, ok)
}

func TestIdleSessionsExpire(t *testing.T) {
	m, gw, clock := setup(t)
	ctx := context.Background()

	s, err := m.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	_, ok := m.Get(s.Token)
	require.True(t, ok, "access refreshes the idle timer")

	clock.Advance(50 * time.Minute)
	assert.Zero(t, m.Reap())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, m.Reap())
	assert.Zero(t, gw.SubscriberCount(s.User.ID))
}

func TestGetExpiredSession(t *testing.T) {
	m, _, clock := setup(t)
	s, err := m.SignIn(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, ok := m.Get(s.Token)
	assert.False(t, ok)
	assert.Zero(t, m.Count())

	_, ok = m.Get("")
	assert.False(t, ok)
}

func TestStopClosesEverything(t *testing.T) {
	m, gw, _ := setup(t)
	s, err := m.SignIn(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)
	m.StartReaper(time.Millisecond)

	m.Stop()
	m.Stop()
	assert.Zero(t, m.Count())
	assert.Zero(t, gw.SubscriberCount(s.User.ID))
}
