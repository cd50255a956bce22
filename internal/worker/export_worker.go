// Package worker keeps the exported partner statements in step with the ledger.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"soci/internal/amqp"
	"soci/internal/core"
	"soci/internal/log"
	"soci/internal/sheets"
)

// FinancialsSource is the read side of the ledger service.
type FinancialsSource interface {
	Revision(ctx context.Context) (int64, error)
	Financials(ctx context.Context) (core.Financials, error)
}

// ExportWorker writes statements whenever the ledger moved past the last
// exported revision. Messages only trigger a check, so duplicates and
// out-of-order deliveries are harmless.
type ExportWorker struct {
	source FinancialsSource
	writer sheets.StatementWriter
	logger *log.Logger
	now    func() time.Time

	mu           sync.Mutex
	lastExported int64
}

func NewExportWorker(source FinancialsSource, writer sheets.StatementWriter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		source:       source,
		writer:       writer,
		logger:       logger.WithComponent(log.ComponentWorker),
		now:          time.Now,
		lastExported: -1,
	}
}

// LastExported returns the last revision written, or -1 before the first export.
func (w *ExportWorker) LastExported() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastExported
}

// HandleLedgerChanged is the AMQP handler. Returning an error requeues the message.
func (w *ExportWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if msg.Revision <= w.LastExported() {
		w.logger.DebugContext(ctx, "Skipping stale ledger change",
			log.FieldRevision, msg.Revision, "last_exported", w.LastExported())
		return nil
	}
	_, err := w.ExportIfStale(ctx)
	return err
}

// ExportIfStale exports when the ledger revision is newer than the last
// export. It reports whether a write happened.
func (w *ExportWorker) ExportIfStale(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rev, err := w.source.Revision(ctx)
	if err != nil {
		return false, fmt.Errorf("read revision: %w", err)
	}
	if rev <= w.lastExported {
		return false, nil
	}
	fin, err := w.source.Financials(ctx)
	if err != nil {
		return false, fmt.Errorf("compute financials: %w", err)
	}
	ref, err := w.writer.WriteStatements(ctx, fin, w.now())
	if err != nil {
		return false, fmt.Errorf("write statements: %w", err)
	}
	w.lastExported = rev
	w.logger.InfoContext(ctx, "Statements exported",
		log.FieldRevision, rev, log.FieldSheetsRef, ref, log.FieldPartners, len(fin.Partners))
	return true, nil
}

// Run calls ExportIfStale immediately and then every interval until ctx is
// done. It is the backup path when change messages are lost.
func (w *ExportWorker) Run(ctx context.Context, interval time.Duration) {
	if _, err := w.ExportIfStale(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Initial export failed", log.FieldError, err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ExportIfStale(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic export failed", log.FieldError, err)
			}
		}
	}
}
