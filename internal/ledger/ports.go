// Package ledger defines the ports through which the ledger is read and
// mutated, and the JSON interchange format used to move it between stores.
package ledger

import (
	"context"
	"errors"

	"soci/internal/core"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("id already recorded")
)

// Ports for ledger storage adapters.
type (
	// SnapshotReader returns a consistent deep copy of the whole ledger.
	SnapshotReader interface {
		Snapshot(ctx context.Context) (core.Ledger, error)
	}

	// Recorder appends entities. Records are never updated or removed one by one.
	Recorder interface {
		CreateProject(ctx context.Context, p core.Project) error
		RecordPayment(ctx context.Context, p core.Payment) error
		RecordExpense(ctx context.Context, e core.Expense) error
		RecordDividend(ctx context.Context, d core.DividendPayout) error
	}

	Resetter interface {
		ResetLedger(ctx context.Context) error
	}

	// Importer replaces the whole ledger in one step.
	Importer interface {
		ReplaceLedger(ctx context.Context, l core.Ledger) error
	}

	// Revisioner exposes a counter that grows after every committed mutation.
	Revisioner interface {
		Revision(ctx context.Context) (int64, error)
	}

	Store interface {
		SnapshotReader
		Recorder
		Resetter
		Importer
		Revisioner
	}
)
