package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"budgetly/internal/core"
	"budgetly/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSyncTracking(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	defer repo.Close()

	add := func(desc string, day int) string {
		e := core.NewExpense{Description: desc, Amount: 1, Date: core.NewDate(2024, 5, day)}.Materialize("", "u1", time.UTC)
		id, err := repo.CreateExpense(ctx, e)
		require.NoError(t, err)
		return id
	}
	first := add("first", 1)
	second := add("second", 2)
	third := add("third", 3)

	pending, err := repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, first, pending[0].ID, "oldest first")

	require.NoError(t, repo.MarkSynced(ctx, first, "Sheet!A2:E2"))
	require.NoError(t, repo.MarkSyncError(ctx, second))

	pending, err = repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second, pending[0].ID, "failed exports are retried")
	assert.Equal(t, third, pending[1].ID)

	pending, err = repo.PendingSync(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	assert.ErrorIs(t, repo.MarkSynced(ctx, "missing", ""), storage.ErrNotFound)
}
