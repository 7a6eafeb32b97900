// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/salesflow/internal/app"
	"github.com/adiadia/salesflow/internal/compactor"
	"github.com/adiadia/salesflow/internal/config"
	"github.com/adiadia/salesflow/internal/logging"
	httptransport "github.com/adiadia/salesflow/internal/transport/http"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)

	svc, err := app.Open(ctx, cfg, app.RoleIngest, logger)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer svc.Close()

	sched := compactor.NewScheduler(svc.Compactor, cfg.CompactInterval, logger)

	deps := httptransport.Deps{
		Raw:                    svc.Raw,
		Dataset:                svc.Dataset,
		Compactor:              svc.Compactor,
		HealthChecker:          svc.Health,
		Logger:                 logger,
		AdminToken:             cfg.AdminToken,
		MaxBodyBytes:           cfg.MaxBodyBytes,
		WebhookRateLimitPerMin: cfg.WebhookRateLimitPerMin,
		CORSAllowedOrigins:     cfg.CORSAllowedOrigins,
		Version:                Version,
		Commit:                 Commit,
		BuildDate:              BuildDate,
	}
	if cfg.CompactOnIngest {
		deps.Trigger = sched
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
			"raw_backend", cfg.RawStoreBackend,
			"dataset", cfg.DatasetPath,
		)

		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "error", err)
		svc.Close()
		os.Exit(1)
	}
}
