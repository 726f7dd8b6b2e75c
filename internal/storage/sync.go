package storage

import (
	"context"
	"fmt"
	"time"

	"budgetly/internal/core"
)

// Sync states of an expense row relative to the spreadsheet export.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// SyncTracker records which expenses reached the spreadsheet. Only the
// SQLite backend tracks sync state.
type SyncTracker interface {
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	PendingSync(ctx context.Context, limit int) ([]core.Expense, error)
	MarkSynced(ctx context.Context, id, ref string) error
	MarkSyncError(ctx context.Context, id string) error
}

var _ SyncTracker = (*SQLiteRepository)(nil)

// PendingSync returns up to limit expenses that were never exported or whose
// last export failed, oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, category, expense_date, created_at
		 FROM expenses WHERE sync_status IN (?, ?) ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		SyncPending, SyncError, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, ref string) error {
	return r.setSyncStatus(ctx, id, SyncDone, ref, time.Now().UnixMilli())
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	return r.setSyncStatus(ctx, id, SyncError, "", nil)
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id, status, ref string, syncedAt any) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET sync_status = ?, sheet_ref = ?, synced_at = ? WHERE id = ?`,
		status, ref, syncedAt, id)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
