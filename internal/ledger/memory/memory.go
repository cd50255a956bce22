// Package memory is an in-process ledger store, optionally persisted to a
// single JSON file in the data directory.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"soci/internal/core"
	"soci/internal/ledger"
)

const fileName = "ledger.json"

type Store struct {
	mu       sync.Mutex
	path     string
	data     core.Ledger
	revision int64
}

// New returns an empty, non-persistent store.
func New() *Store {
	return &Store{data: core.Ledger{}.Clone()}
}

// Open loads dir/ledger.json when present and persists every mutation there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{path: filepath.Join(dir, fileName), data: core.Ledger{}.Clone()}
	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	l, err := ledger.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	s.data = l
	return s, nil
}

func (s *Store) Snapshot(_ context.Context) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone(), nil
}

func (s *Store) Revision(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision, nil
}

func (s *Store) CreateProject(_ context.Context, p core.Project) error {
	return s.mutate(func(l *core.Ledger) { l.Projects = append(l.Projects, p) })
}

func (s *Store) RecordPayment(_ context.Context, p core.Payment) error {
	p.Distributions = append([]core.Distribution{}, p.Distributions...)
	return s.mutate(func(l *core.Ledger) { l.Payments = append(l.Payments, p) })
}

func (s *Store) RecordExpense(_ context.Context, e core.Expense) error {
	e.Distributions = append([]core.Distribution{}, e.Distributions...)
	return s.mutate(func(l *core.Ledger) { l.Expenses = append(l.Expenses, e) })
}

func (s *Store) RecordDividend(_ context.Context, d core.DividendPayout) error {
	return s.mutate(func(l *core.Ledger) { l.Dividends = append(l.Dividends, d) })
}

func (s *Store) ResetLedger(_ context.Context) error {
	return s.mutate(func(l *core.Ledger) { *l = core.Ledger{}.Clone() })
}

func (s *Store) ReplaceLedger(_ context.Context, in core.Ledger) error {
	next := in.Clone()
	return s.mutate(func(l *core.Ledger) { *l = next })
}

// mutate applies fn to a copy and commits it only once persistence succeeded.
func (s *Store) mutate(fn func(*core.Ledger)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.Clone()
	fn(&next)
	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	s.revision++
	return nil
}

func (s *Store) persist(l core.Ledger) error {
	if s.path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := ledger.Encode(tmp, l); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

var _ ledger.Store = (*Store)(nil)
