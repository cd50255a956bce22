// Package sheets defines the outbound ports for exporting statements to a
// spreadsheet.
package sheets

import (
	"context"
	"time"

	"soci/internal/core"
)

type (
	// StatementWriter replaces the exported statement block with fresh figures.
	StatementWriter interface {
		WriteStatements(ctx context.Context, f core.Financials, asOf time.Time) (ref string, err error)
	}
)
