// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adiadia/salesflow/internal/app"
	"github.com/adiadia/salesflow/internal/config"
	"github.com/adiadia/salesflow/internal/dataset"
	"github.com/adiadia/salesflow/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLoggerTo(os.Stderr, cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "compact":
		err = runCompact(ctx, cfg, logger, os.Stdout)
	case "stats":
		err = runStats(ctx, dataset.NewFileStore(cfg.DatasetPath), os.Stdout)
	case "export-xlsx":
		if len(os.Args) < 3 {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		err = runExportXLSX(ctx, dataset.NewFileStore(cfg.DatasetPath), os.Args[2], logger)
	default:
		printUsage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

func runCompact(ctx context.Context, cfg config.Config, logger *slog.Logger, w io.Writer) error {
	svc, err := app.Open(ctx, cfg, app.RoleCompact, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Compactor.Compact(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

func runStats(ctx context.Context, reader dataset.Reader, w io.Writer) error {
	snap, err := reader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	return writeJSON(w, dataset.Summarize(snap.Records))
}

func runExportXLSX(ctx context.Context, reader dataset.Reader, path string, logger *slog.Logger) error {
	snap, err := reader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := dataset.WriteXLSX(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write xlsx: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	logger.Info("dataset exported", "path", path, "records", snap.Len())
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage(w *os.File) {
	_, _ = fmt.Fprintln(w, "usage: go run ./cmd/cli <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  compact             rebuild and publish the canonical dataset once")
	_, _ = fmt.Fprintln(w, "  stats               print a summary of the published dataset")
	_, _ = fmt.Fprintln(w, "  export-xlsx <path>  write the published dataset as an xlsx workbook")
}
