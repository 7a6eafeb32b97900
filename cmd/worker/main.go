// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adiadia/salesflow/internal/app"
	"github.com/adiadia/salesflow/internal/compactor"
	"github.com/adiadia/salesflow/internal/config"
	"github.com/adiadia/salesflow/internal/logging"
	"github.com/adiadia/salesflow/internal/rawstore"
	"golang.org/x/sync/errgroup"
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

	svc, err := app.Open(ctx, cfg, app.RoleCompact, logger)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer svc.Close()

	sched := compactor.NewScheduler(svc.Compactor, cfg.CompactInterval, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if cfg.WatchRawFile && cfg.RawStoreBackend == config.BackendCSV {
		g.Go(func() error {
			// The ingest process replaces the commit marker once a batch is durable.
			return compactor.WatchFile(gctx, rawstore.CommittedPath(cfg.RawStorePath), sched.Trigger, logger)
		})
	}

	logger.Info("worker started",
		"interval", cfg.CompactInterval.String(),
		"watch", cfg.WatchRawFile,
	)

	if err := g.Wait(); err != nil {
		logger.Error("worker failed", "error", err)
		svc.Close()
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
