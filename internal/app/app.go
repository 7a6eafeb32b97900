// SPDX-License-Identifier: Apache-2.0

// Package app wires configuration into the stores and services shared by the
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adiadia/salesflow/internal/compactor"
	"github.com/adiadia/salesflow/internal/config"
	"github.com/adiadia/salesflow/internal/dataset"
	"github.com/adiadia/salesflow/internal/notify"
	"github.com/adiadia/salesflow/internal/persistence/postgres"
	"github.com/adiadia/salesflow/internal/rawstore"
	"github.com/adiadia/salesflow/internal/repository"
)

// HealthChecker reports whether the backing stores are usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Role decides how a binary may touch the raw log.
type Role int

const (
	// RoleIngest appends to the raw log. With the csv backend only one
	// process may hold this role for a given file.
	RoleIngest Role = iota
	// RoleCompact only reads the raw log, so it can run next to an ingesting
	// process.
	RoleCompact
)

func (r Role) String() string {
	switch r {
	case RoleIngest:
		return "ingest"
	case RoleCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// Services is everything a binary needs. Close releases the raw store and any
// database pool.
type Services struct {
	// Raw is nil for RoleCompact with the csv backend.
	Raw       rawstore.Store
	Source    compactor.RawReader
	Dataset   *dataset.FileStore
	Compactor *compactor.Compactor
	Health    HealthChecker

	closers []func()
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func Open(ctx context.Context, cfg config.Config, role Role, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Services{}

	switch cfg.RawStoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, "salesflow-"+role.String())
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				s.Close()
				return nil, fmt.Errorf("schema bootstrap: %w", err)
			}
		}

		repo := repository.NewRawEventRepository(pool, logger)
		s.Raw = repo
		s.Source = repo
		s.Health = postgres.NewSchemaHealthChecker(pool)
		logger.Info("raw store opened", "backend", cfg.RawStoreBackend)
	case config.BackendCSV:
		if role == RoleCompact {
			reader := rawstore.NewCSVReader(cfg.RawStorePath)
			s.Source = reader
			logger.Info("raw store opened read-only", "backend", config.BackendCSV, "path", reader.Path())
			break
		}

		store, err := rawstore.OpenCSV(cfg.RawStorePath)
		if err != nil {
			return nil, fmt.Errorf("open raw store: %w", err)
		}
		s.closers = append(s.closers, func() {
			if err := store.Close(); err != nil {
				logger.Error("close raw store failed", "error", err)
			}
		})
		s.Raw = store
		s.Source = store
		logger.Info("raw store opened", "backend", config.BackendCSV, "path", store.Path())
	default:
		return nil, fmt.Errorf("unknown raw store backend %q", cfg.RawStoreBackend)
	}

	s.Dataset = dataset.NewFileStore(cfg.DatasetPath)

	deps := compactor.Deps{
		Raw:     s.Source,
		Dataset: s.Dataset,
		Logger:  logger,
	}
	if hook := notify.New(notify.Deps{
		URL:    cfg.NotifyWebhookURL,
		Secret: cfg.NotifyWebhookSecret,
		Logger: logger,
	}); hook != nil {
		deps.Listener = hook
	}
	s.Compactor = compactor.New(deps)

	return s, nil
}
