// Package storagetest holds the behaviour every storage.Repository must
// share. Backends run it from their own tests.
package storagetest

import (
	"context"
	"time"

	"budgetly/internal/core"
	"budgetly/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RepositorySuite runs the repository contract against the backend returned
// by New, which is called before every test.
type RepositorySuite struct {
	suite.Suite
	New  func() (storage.Repository, error)
	repo storage.Repository
	ctx  context.Context
}

// SetupTest runs before each test
func (s *RepositorySuite) SetupTest() {
	repo, err := s.New()
	require.NoError(s.T(), err, "failed to create repository")
	s.repo = repo
	s.ctx = context.Background()
}

// TearDownTest runs after each test
func (s *RepositorySuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *RepositorySuite) expense(userID, desc string, amount float64, d core.Date) core.Expense {
	return core.NewExpense{Description: desc, Amount: amount, Category: core.Food, Date: d}.
		Materialize("", userID, time.UTC)
}

func (s *RepositorySuite) TestCredentialsRoundTrip() {
	err := s.repo.CreateCredentials(s.ctx, storage.Credentials{
		UserID: "u1", Email: "Ana@Example.com", DisplayName: "Ana", PasswordHash: "hash",
	})
	require.NoError(s.T(), err)

	c, err := s.repo.FindCredentials(s.ctx, "ana@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "u1", c.UserID)
	assert.Equal(s.T(), "hash", c.PasswordHash)
	assert.False(s.T(), c.CreatedAt.IsZero())

	err = s.repo.CreateCredentials(s.ctx, storage.Credentials{UserID: "u2", Email: "ANA@example.com", PasswordHash: "x"})
	assert.ErrorIs(s.T(), err, storage.ErrConflict)

	_, err = s.repo.FindCredentials(s.ctx, "nobody@example.com")
	assert.ErrorIs(s.T(), err, storage.ErrNotFound)
}

func (s *RepositorySuite) TestUserLifecycle() {
	_, err := s.repo.GetUser(s.ctx, "u1")
	require.ErrorIs(s.T(), err, storage.ErrNotFound)

	require.NoError(s.T(), s.repo.CreateUser(s.ctx, core.User{ID: "u1", DisplayName: "Ana", Budget: core.DefaultBudget}))
	assert.ErrorIs(s.T(), s.repo.CreateUser(s.ctx, core.User{ID: "u1"}), storage.ErrConflict)

	require.NoError(s.T(), s.repo.UpdateBudget(s.ctx, "u1", 1500))
	u, err := s.repo.GetUser(s.ctx, "u1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1500.0, u.Budget)
	assert.Equal(s.T(), "Ana", u.DisplayName)

	assert.ErrorIs(s.T(), s.repo.UpdateBudget(s.ctx, "ghost", 1), storage.ErrNotFound)
}

func (s *RepositorySuite) TestListExpensesNewestFirst() {
	inputs := []struct {
		desc string
		date core.Date
	}{
		{"Bus", core.NewDate(2024, 5, 1)},
		{"Coffee", core.NewDate(2024, 5, 20)},
		{"Snack", core.NewDate(2024, 5, 10)},
	}
	for _, in := range inputs {
		_, err := s.repo.CreateExpense(s.ctx, s.expense("u1", in.desc, 5, in.date))
		require.NoError(s.T(), err, "failed to create expense: %s", in.desc)
	}
	_, err := s.repo.CreateExpense(s.ctx, s.expense("u2", "Other user", 9, core.NewDate(2024, 5, 30)))
	require.NoError(s.T(), err)

	got, err := s.repo.ListExpenses(s.ctx, "u1")
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 3)
	assert.Equal(s.T(), "Coffee", got[0].Description)
	assert.Equal(s.T(), "Snack", got[1].Description)
	assert.Equal(s.T(), "Bus", got[2].Description)
	assert.Equal(s.T(), core.NewDate(2024, 5, 20), got[0].Date)
	assert.Equal(s.T(), core.Food, got[0].Category)
}

func (s *RepositorySuite) TestSameDayKeepsLatestInsertFirst() {
	d := core.NewDate(2024, 5, 1)
	_, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "First", 1, d))
	require.NoError(s.T(), err)
	_, err = s.repo.CreateExpense(s.ctx, s.expense("u1", "Second", 2, d))
	require.NoError(s.T(), err)

	got, err := s.repo.ListExpenses(s.ctx, "u1")
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 2)
	assert.Equal(s.T(), "Second", got[0].Description)
}

func (s *RepositorySuite) TestEmptyListIsNotNil() {
	got, err := s.repo.ListExpenses(s.ctx, "nobody")
	require.NoError(s.T(), err)
	assert.NotNil(s.T(), got)
	assert.Empty(s.T(), got)
}

func (s *RepositorySuite) TestDeleteExpense() {
	id, err := s.repo.CreateExpense(s.ctx, s.expense("u1", "Lunch", 12.5, core.NewDate(2024, 5, 1)))
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), id)

	e, err := s.repo.GetExpense(s.ctx, id)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 12.5, e.Amount)
	assert.Equal(s.T(), "u1", e.UserID)

	assert.ErrorIs(s.T(), s.repo.DeleteExpense(s.ctx, "u2", id), storage.ErrNotFound, "other users cannot delete")
	require.NoError(s.T(), s.repo.DeleteExpense(s.ctx, "u1", id))
	assert.ErrorIs(s.T(), s.repo.DeleteExpense(s.ctx, "u1", id), storage.ErrNotFound)

	_, err = s.repo.GetExpense(s.ctx, id)
	assert.ErrorIs(s.T(), err, storage.ErrNotFound)
}

func (s *RepositorySuite) TestPing() {
	assert.NoError(s.T(), s.repo.Ping(s.ctx))
}
