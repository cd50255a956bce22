package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"soci/internal/cli"
	apphttp "soci/internal/http"
	"soci/internal/log"
	"soci/internal/report"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	rt, err := cli.BuildRuntime(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize runtime", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	// Reports are optional; without a key the endpoint answers 503.
	var gen report.Generator
	if cfg.GeminiAPIKey != "" {
		g, err := report.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("Failed to initialize report generator, reports disabled", log.FieldError, err)
		} else {
			gen = g
			logger.Info("Report generator initialized", "model", cfg.GeminiModel)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, rt.Service, apphttp.Options{
		Generator:     gen,
		ReportTimeout: cfg.ReportTimeout,
		Logger:        logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := rt.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	})

	logger.Info("Starting soci server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		_ = rt.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
