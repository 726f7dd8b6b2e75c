package supabase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetly/internal/core"
	"budgetly/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpenseRow(t *testing.T) {
	row := expenseRow{ID: "e1", UserID: "u1", Description: "Lunch", Amount: 12, Category: "food", ExpenseDate: "2024-05-03"}
	e := row.expense()
	assert.Equal(t, core.Food, e.Category)
	assert.Equal(t, core.NewDate(2024, 5, 3), e.Date)

	row.ExpenseDate = "garbage"
	row.Category = "Pets"
	e = row.expense()
	assert.True(t, e.Date.IsZero(), "unreadable date stays zero")
	assert.Equal(t, core.Others, e.Category)
}

func TestRequireAffected(t *testing.T) {
	assert.ErrorIs(t, requireAffected([]byte(`[]`)), storage.ErrNotFound)
	assert.NoError(t, requireAffected([]byte(`[{"id":"e1"}]`)))
	assert.Error(t, requireAffected([]byte(`not json`)))
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(errors.New(`(23505) duplicate key value violates unique constraint "users_pkey"`)))
	assert.False(t, isDuplicate(errors.New("connection refused")))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ana@example.com", normalizeEmail("  Ana@Example.COM "))
}

func TestListExpensesOrdersNewestFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/rest/v1/expenses") {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"a","seq":1,"user_id":"u1","description":"Old","amount":5,"category":"Food","expense_date":"2024-05-01","created_at":"2024-05-01T12:00:00Z"},
			{"id":"b","seq":2,"user_id":"u1","description":"Same day later","amount":7,"category":"Food","expense_date":"2024-05-01","created_at":"2024-05-01T12:00:00Z"},
			{"id":"c","seq":3,"user_id":"u1","description":"New","amount":9,"category":"Travel","expense_date":"2024-05-09","created_at":"2024-05-09T12:00:00Z"}
		]`))
	}))
	defer srv.Close()

	repo, err := New(srv.URL, "anon-key")
	require.NoError(t, err)

	got, err := repo.ListExpenses(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, core.Travel, got[0].Category)
}
