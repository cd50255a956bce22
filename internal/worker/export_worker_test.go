package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soci/internal/amqp"
	"soci/internal/core"
)

type fakeSource struct {
	mu    sync.Mutex
	rev   int64
	calls int
	err   error
}

func (f *fakeSource) Revision(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rev, nil
}

func (f *fakeSource) Financials(context.Context) (core.Financials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return core.Financials{}, f.err
	}
	return core.Financials{Summary: core.CompanySummary{TotalRevenue: float64(f.rev)}}, nil
}

func (f *fakeSource) setRev(r int64) {
	f.mu.Lock()
	f.rev = r
	f.mu.Unlock()
}

type fakeWriter struct {
	mu      sync.Mutex
	written []core.Financials
	err     error
}

func (f *fakeWriter) WriteStatements(_ context.Context, fin core.Financials, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.written = append(f.written, fin)
	return "'Statements'!A1:K5", nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestExportIfStale(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	wr := &fakeWriter{}
	w := NewExportWorker(src, wr, nil)
	assert.Equal(t, int64(-1), w.LastExported())

	wrote, err := w.ExportIfStale(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, int64(0), w.LastExported())

	wrote, err = w.ExportIfStale(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 1, wr.count())

	src.setRev(3)
	wrote, err = w.ExportIfStale(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 3.0, wr.written[1].Summary.TotalRevenue)
}

func TestHandleLedgerChangedSkipsStaleRevisions(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rev: 5}
	wr := &fakeWriter{}
	w := NewExportWorker(src, wr, nil)

	require.NoError(t, w.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage(5, amqp.KindPayment, "a")))
	assert.Equal(t, 1, wr.count())

	// older or duplicate deliveries do nothing
	require.NoError(t, w.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage(4, amqp.KindPayment, "b")))
	require.NoError(t, w.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage(5, amqp.KindPayment, "a")))
	assert.Equal(t, 1, wr.count())
	assert.Equal(t, 1, src.calls)
}

func TestHandleLedgerChangedReturnsWriteErrors(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{rev: 2}
	wr := &fakeWriter{err: errors.New("quota exceeded")}
	w := NewExportWorker(src, wr, nil)

	err := w.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage(2, amqp.KindExpense, "e"))
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, int64(-1), w.LastExported())

	src.err = errors.New("store offline")
	wr.err = nil
	_, err = w.ExportIfStale(ctx)
	assert.ErrorContains(t, err, "store offline")
}

func TestRunExportsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{rev: 1}
	wr := &fakeWriter{}
	w := NewExportWorker(src, wr, nil)

	done := make(chan struct{})
	go func() {
		w.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return wr.count() == 1 }, time.Second, time.Millisecond)
	src.setRev(2)
	require.Eventually(t, func() bool { return wr.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
