package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetly/internal/amqp"
	"budgetly/internal/cli"
	"budgetly/internal/config"
	"budgetly/internal/log"
	"budgetly/internal/sheets"
	gsheet "budgetly/internal/sheets/google"
	memsheet "budgetly/internal/sheets/memory"
	"budgetly/internal/worker"
)

const (
	shutdownTimeout = 30 * time.Second
	connectAttempts = 5
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting budgetly-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration invalid", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(cfg *config.Config, logger *log.Logger) error {
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	exporter, err := newExporter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	client, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, connectAttempts)
	if err != nil {
		return err
	}
	defer client.Close()

	syncWorker := worker.NewSyncWorker(repo, exporter, cfg.SyncBatchSize)

	// Catch up on anything written while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldOperation, log.OpSync, log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeWithReconnect(gctx, syncWorker.HandleEvent)
	})
	g.Go(func() error {
		// Periodic sweep for events lost while the broker was unreachable.
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := syncWorker.ProcessPendingExpenses(gctx); err != nil {
					logger.Error("Periodic sync failed", log.FieldOperation, log.OpSync, log.FieldError, err)
				}
			}
		}
	})

	err = g.Wait()
	if ctx.Err() != nil {
		<-done
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newExporter picks the Google Sheets exporter when a spreadsheet is
// configured and an in-process one otherwise.
func newExporter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.ExpenseExporter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting in memory",
			log.FieldComponent, log.ComponentSheets)
		return memsheet.New(), nil
	}
	client, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets client initialized",
		log.FieldComponent, log.ComponentSheets,
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)
	return client, nil
}
