package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"budgetly/internal/amqp"
	"budgetly/internal/core"
	"budgetly/internal/sheets"
	"budgetly/internal/storage"
)

// SyncWorker mirrors expenses from SQLite into the spreadsheet export.
// The event consumer and the periodic sweep share one worker.
type SyncWorker struct {
	tracker   storage.SyncTracker
	exporter  sheets.ExpenseExporter
	batchSize int

	// exportMu serializes sheet writes; an exporter's find-then-append is
	// not atomic.
	exportMu sync.Mutex
}

func NewSyncWorker(tracker storage.SyncTracker, exporter sheets.ExpenseExporter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		tracker:   tracker,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleEvent processes a single change event from AMQP. A returned error
// makes the broker redeliver the message.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev amqp.Event) error {
	slog.InfoContext(ctx, "Processing event",
		"type", ev.Type,
		"user_id", ev.UserID,
		"expense_id", ev.ExpenseID)

	switch ev.Type {
	case amqp.EventExpenseCreated:
		expense, err := w.tracker.GetExpense(ctx, ev.ExpenseID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted before we got to it; the delete event covers the sheet.
			slog.InfoContext(ctx, "Expense no longer exists, skipping export", "expense_id", ev.ExpenseID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get expense from storage: %w", err)
		}
		return w.export(ctx, expense)

	case amqp.EventExpenseDeleted:
		w.exportMu.Lock()
		err := w.exporter.RemoveExpense(ctx, ev.ExpenseID, ev.Year())
		w.exportMu.Unlock()
		if err != nil {
			slog.ErrorContext(ctx, "Failed to remove expense from sheet",
				"expense_id", ev.ExpenseID,
				"error", err)
			return fmt.Errorf("remove expense: %w", err)
		}
		slog.InfoContext(ctx, "Removed expense from sheet", "expense_id", ev.ExpenseID)
		return nil

	case amqp.EventBudgetUpdated:
		budget := 0.0
		if ev.Budget != nil {
			budget = *ev.Budget
		}
		slog.InfoContext(ctx, "Budget updated", "user_id", ev.UserID, "budget", budget)
		return nil

	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", "type", ev.Type)
		return nil
	}
}

// ProcessPendingExpenses exports expenses that haven't been synced yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingExpenses(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if synced+failed > 0 {
		slog.InfoContext(ctx, "Processed pending expenses", "synced", synced, "errors", failed)
	}
	return nil
}

// StartupSyncCheck catches up on expenses missed while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending expenses found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"total", synced+failed,
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.tracker.PendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending expenses: %w", err)
	}
	for _, e := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.export(ctx, e); err != nil {
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// export appends e to the sheet and records the outcome.
func (w *SyncWorker) export(ctx context.Context, e core.Expense) error {
	w.exportMu.Lock()
	defer w.exportMu.Unlock()

	ref, err := w.exporter.AppendExpense(ctx, e)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to export expense", "expense_id", e.ID, "error", err)
		if markErr := w.tracker.MarkSyncError(ctx, e.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "expense_id", e.ID, "error", markErr)
		}
		return fmt.Errorf("export expense %s: %w", e.ID, err)
	}

	if err := w.tracker.MarkSynced(ctx, e.ID, ref); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mark synced: %w", err)
	}

	slog.InfoContext(ctx, "Expense exported",
		"expense_id", e.ID,
		"ref", ref,
		"year", e.Date.Year())
	return nil
}
