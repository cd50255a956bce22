// Package cli provides common initialization shared by cmd/soci and
// cmd/soci-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"soci/internal/amqp"
	"soci/internal/backend"
	"soci/internal/cache"
	"soci/internal/config"
	"soci/internal/core"
	"soci/internal/log"
	"soci/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_FORMAT and LOG_LEVEL and
// sets it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Component = component
	if cfg != nil {
		lc.Format = cfg.LogFormat
		lc.Level = log.ParseLevel(cfg.LogLevel)
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// Bootstrap loads .env and the configuration, sets up logging and validates.
// It exits the process when the configuration is unusable.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		logger := SetupLogger(nil, component)
		logger.Error("Failed to load configuration", log.FieldError, err)
		os.Exit(1)
	}
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// Runtime holds the wired ledger service and the resources behind it.
type Runtime struct {
	Service *services.LedgerService
	AMQP    *amqp.Client
	Caches  *cache.Manager
	cleanup []func() error
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		if err := r.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildRuntime opens the configured store, cache and AMQP client and wires
// them into a ledger service. AMQP is optional: a failed connection is
// logged and the service runs without announcing changes.
func BuildRuntime(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	rt := &Runtime{}

	roster, err := cfg.Roster()
	if err != nil {
		return nil, err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	if res.Cleanup != nil {
		rt.cleanup = append(rt.cleanup, res.Cleanup)
	}

	fc, err := buildCache(ctx, cfg, logger, rt)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", log.FieldError, err)
		} else {
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			rt.AMQP = client
			publisher = client
			rt.cleanup = append(rt.cleanup, client.Close)
		}
	}

	svc, err := services.NewLedgerService(res.Store, services.Options{
		Roster:        roster,
		Tax:           cfg.Tax(),
		Publisher:     publisher,
		Cache:         fc,
		AllowOverdraw: cfg.AllowOverdraw,
		Logger:        logger,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	rt.Service = svc

	logger.Info("Ledger service ready",
		log.FieldPartners, roster.String(),
		log.FieldBackend, cfg.DataBackend,
		"allow_overdraw", cfg.AllowOverdraw)
	return rt, nil
}

func buildCache(ctx context.Context, cfg *config.Config, logger *log.Logger, rt *Runtime) (cache.Cache[core.Financials], error) {
	rt.Caches = cache.NewManager(logger)
	rt.cleanup = append(rt.cleanup, func() error { rt.Caches.Stop(); return nil })

	if cfg.CacheBackend == config.CacheRedis {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		rt.cleanup = append(rt.cleanup, client.Close)
		return cache.NewRedisCache[core.Financials](client, "soci:", cfg.CacheTTL, logger), nil
	}

	lru := cache.NewLRUCache[core.Financials](64, cfg.CacheTTL)
	rt.Caches.Register(lru)
	rt.Caches.StartCleanup(cfg.CacheTTL)
	return lru, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		cancel()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
