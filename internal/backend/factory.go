package backend

import (
	"context"
	"fmt"

	"soci/internal/ledger/memory"
	"soci/internal/log"
	"soci/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	rev, err := repo.Revision(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to read ledger revision: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		log.FieldBackend, SQLiteBackend.String(),
		"db_path", config.SQLiteDBPath,
		log.FieldRevision, rev)

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.DataDirectory == "" {
		f.logger.Info("Initialized memory backend without persistence", log.FieldBackend, MemoryBackend.String())
		return &BackendResult{Store: memory.New()}, nil
	}

	store, err := memory.Open(config.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend",
		log.FieldBackend, MemoryBackend.String(),
		"data_directory", config.DataDirectory)

	return &BackendResult{Store: store}, nil
}
