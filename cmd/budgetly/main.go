package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetly/internal/auth"
	"budgetly/internal/backend"
	"budgetly/internal/cli"
	"budgetly/internal/config"
	"budgetly/internal/gateway/local"
	apphttp "budgetly/internal/http"
	"budgetly/internal/log"
	"budgetly/internal/session"
	"budgetly/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	reapInterval    = time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldComponent, log.ComponentBackend, log.FieldError, err)
		}
	}()

	if err := bootstrap(context.Background(), cfg, res.Repository, logger); err != nil {
		return err
	}

	opts := local.Options{
		DefaultBudget: cfg.DefaultBudget,
		Location:      time.Local,
		Logger:        logger,
	}
	// A nil *amqp.Client must not become a non-nil interface.
	if res.Events != nil {
		opts.Events = res.Events
	}
	gw := local.New(res.Repository, opts)

	sessions := session.NewManager(gw, session.Options{
		TTL:    cfg.SessionTTL,
		Logger: logger,
	})
	sessions.StartReaper(reapInterval)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Sessions:           sessions,
		Logger:             logger,
		Ready:              res.Repository.Ping,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting budgetly server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", res.Events != nil,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		<-done
	} else {
		// The listener failed on its own; release sessions before exiting.
		_ = srv.Shutdown(context.Background())
	}
	return err
}

// bootstrap provisions the first account from BOOTSTRAP_EMAIL and
// BOOTSTRAP_PASSWORD. An existing account is left untouched.
func bootstrap(ctx context.Context, cfg *config.Config, repo storage.Repository, logger *log.Logger) error {
	if cfg.BootstrapEmail == "" {
		return nil
	}
	u, err := auth.Provision(ctx, repo, auth.Account{
		Email:    cfg.BootstrapEmail,
		Password: cfg.BootstrapPassword,
	})
	if errors.Is(err, auth.ErrAccountExists) {
		logger.Debug("Bootstrap account already exists", "email", cfg.BootstrapEmail)
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap account: %w", err)
	}
	logger.Info("Bootstrap account created",
		log.FieldComponent, log.ComponentAuth,
		log.FieldUserID, u.ID,
		"email", u.Email)
	return nil
}
