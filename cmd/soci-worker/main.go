package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"soci/internal/cli"
	"soci/internal/config"
	"soci/internal/log"
	gsheet "soci/internal/sheets/google"
	"soci/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting soci-worker")

	if !cfg.ExportEnabled() {
		logger.Error("Statement export disabled - set GOOGLE_SPREADSHEET_ID to run the worker")
		os.Exit(1)
	}
	if cfg.DataBackend == config.BackendMemory {
		// Each process keeps its own memory ledger; only sqlite is shared.
		logger.Warn("Memory backend does not see changes made by the server", log.FieldBackend, cfg.DataBackend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := cli.BuildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize runtime", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	}()

	writer, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleStatementsSheet,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
		Currency:        cfg.Currency,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		_ = rt.Close()
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	w := worker.NewExportWorker(rt.Service, writer, logger)

	g, gctx := errgroup.WithContext(ctx)
	if rt.AMQP != nil {
		g.Go(func() error {
			err := rt.AMQP.ConsumeLedgerChanged(gctx, w.HandleLedgerChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping AMQP message consumption - relying on periodic export")
	}
	g.Go(func() error {
		w.Run(gctx, cfg.ExportInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		_ = rt.Close()
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", log.FieldRevision, w.LastExported())
}
