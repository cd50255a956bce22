package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soci/internal/amqp"
	"soci/internal/cache"
	"soci/internal/core"
	"soci/internal/ledger"
	"soci/internal/ledger/memory"
	"soci/internal/storage"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.LedgerChangedMessage
	err  error
}

func (f *fakePublisher) PublishLedgerChanged(_ context.Context, m *amqp.LedgerChangedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Kind
	}
	return out
}

// countingStore counts snapshots taken from the wrapped memory store.
type countingStore struct {
	*memory.Store
	mu        sync.Mutex
	snapshots int
}

func (c *countingStore) Snapshot(ctx context.Context) (core.Ledger, error) {
	c.mu.Lock()
	c.snapshots++
	c.mu.Unlock()
	return c.Store.Snapshot(ctx)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots
}

var roster = core.MustRoster(
	core.Partner{ID: "p1", Name: "Marco"},
	core.Partner{ID: "p2", Name: "Luca"},
	core.Partner{ID: "p3", Name: "Sara"},
)

type fixture struct {
	svc   *LedgerService
	store *countingStore
	pub   *fakePublisher
}

func newFixture(t *testing.T, mod func(*Options)) fixture {
	t.Helper()
	store := &countingStore{Store: memory.New()}
	pub := &fakePublisher{}
	n := 0
	opts := Options{
		Roster:    roster,
		Tax:       core.TaxConfig{CorporateRate: 0.2, DividendRate: 0.05},
		Publisher: pub,
		Cache:     cache.NewLRUCache[core.Financials](16, time.Minute),
		Now:       func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
	if mod != nil {
		mod(&opts)
	}
	svc, err := NewLedgerService(store, opts)
	require.NoError(t, err)
	return fixture{svc: svc, store: store, pub: pub}
}

func (f fixture) project(t *testing.T) core.Project {
	t.Helper()
	p, err := f.svc.CreateProject(context.Background(), core.Project{Name: "Villa Rossi", Type: core.ProjectElectrical})
	require.NoError(t, err)
	return p
}

func TestNewLedgerServiceRejectsBadConfig(t *testing.T) {
	_, err := NewLedgerService(memory.New(), Options{})
	assert.ErrorIs(t, err, core.ErrEmptyRoster)

	_, err = NewLedgerService(memory.New(), Options{Roster: roster, Tax: core.TaxConfig{CorporateRate: 2}})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestCreateProjectFillsDefaults(t *testing.T) {
	f := newFixture(t, nil)
	p, err := f.svc.CreateProject(context.Background(), core.Project{Name: "Shop"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", p.ID)
	assert.Equal(t, core.StatusActive, p.Status)
	assert.Equal(t, core.ProjectOther, p.Type)
	assert.False(t, p.CreatedAt.IsZero())

	_, err = f.svc.CreateProject(context.Background(), core.Project{ID: "id-1", Name: "Again"})
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordPaymentValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	proj := f.project(t)

	base := core.Payment{ProjectID: proj.ID, Date: core.NewDate(2024, 1, 2), Description: "deposit", TotalAmount: 100}

	cases := []struct {
		name string
		mod  func(*core.Payment)
		want error
	}{
		{"unknown project", func(p *core.Payment) { p.ProjectID = "nope" }, core.ErrMissingProject},
		{"unknown partner", func(p *core.Payment) { p.Distributions = []core.Distribution{{PartnerID: "ghost", Amount: 1}} }, ErrUnknownPartner},
		{"duplicate partner", func(p *core.Payment) {
			p.Distributions = []core.Distribution{{PartnerID: "p1", Amount: 1}, {PartnerID: "p1", Amount: 2}}
		}, core.ErrDuplicateShare},
		{"negative amount", func(p *core.Payment) { p.TotalAmount = -5 }, core.ErrInvalidAmount},
		{"missing date", func(p *core.Payment) { p.Date = core.Date{} }, core.ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mod(&p)
			_, err := f.svc.RecordPayment(ctx, p)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	got, err := f.svc.RecordPayment(ctx, base)
	require.NoError(t, err)
	assert.NotNil(t, got.Distributions)

	l, _ := f.svc.Snapshot(ctx)
	assert.Len(t, l.Payments, 1)
}

func TestMismatchedDistributionsAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	proj := f.project(t)

	_, err := f.svc.RecordPayment(ctx, core.Payment{
		ProjectID: proj.ID, Date: core.NewDate(2024, 1, 2), Description: "partial", TotalAmount: 1000,
		Distributions: []core.Distribution{{PartnerID: "p1", Amount: 100}},
	})
	require.NoError(t, err)

	fin, err := f.svc.Financials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, fin.Summary.TotalRevenue)
	assert.Equal(t, 100.0, fin.Partners[0].Revenue)
}

func TestRecordExpenseEqualSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	e, err := f.svc.RecordExpense(ctx, core.Expense{Date: core.NewDate(2024, 1, 3), Description: "tools", Amount: 90})
	require.NoError(t, err)
	assert.True(t, e.EqualSplit())

	fin, err := f.svc.Financials(ctx)
	require.NoError(t, err)
	for _, st := range fin.Partners {
		assert.Equal(t, 30.0, st.ExpenseShare)
	}

	_, err = f.svc.RecordExpense(ctx, core.Expense{ID: e.ID, Date: core.NewDate(2024, 1, 3), Description: "tools", Amount: 90})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func seedRevenue(t *testing.T, f fixture, amount float64) {
	t.Helper()
	proj := f.project(t)
	_, err := f.svc.RecordPayment(context.Background(), core.Payment{
		ProjectID: proj.ID, Date: core.NewDate(2024, 1, 2), Description: "job", TotalAmount: amount,
		Distributions: []core.Distribution{{PartnerID: "p1", Amount: amount}},
	})
	require.NoError(t, err)
}

func TestRecordDividendStampsAndRefusesOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedRevenue(t, f, 1250) // net share 1000 at 20%

	d, err := f.svc.RecordDividend(ctx, "p1", core.NewDate(2024, 2, 1), 1000)
	require.NoError(t, err)
	assert.Equal(t, 50.0, d.TaxAmount)
	assert.Equal(t, 950.0, d.NetReceived)

	_, err = f.svc.RecordDividend(ctx, "p1", core.NewDate(2024, 2, 2), 0.01)
	assert.ErrorIs(t, err, ErrOverdraw)

	_, err = f.svc.RecordDividend(ctx, "ghost", core.NewDate(2024, 2, 2), 1)
	assert.ErrorIs(t, err, ErrUnknownPartner)

	_, err = f.svc.RecordDividend(ctx, "p1", core.Date{}, 1)
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	fin, err := f.svc.Financials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fin.Partners[0].Balance)
	assert.Equal(t, 50.0, fin.Partners[0].DividendTaxPaid)
}

func TestRecordDividendOverdrawAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) {
		o.AllowOverdraw = true
		o.Tax.CorporateRate = 0
	})
	seedRevenue(t, f, 1000)

	_, err := f.svc.RecordDividend(ctx, "p1", core.NewDate(2024, 2, 1), 1200)
	require.NoError(t, err)
	fin, err := f.svc.Financials(ctx)
	require.NoError(t, err)
	assert.Equal(t, -200.0, fin.Partners[0].Balance)
}

func TestFinancialsCachedPerRevision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.Financials(ctx)
	require.NoError(t, err)
	_, err = f.svc.Financials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.count())

	_, err = f.svc.RecordExpense(ctx, core.Expense{Date: core.NewDate(2024, 1, 3), Description: "fuel", Amount: 30})
	require.NoError(t, err)
	before := f.store.count()
	fin, err := f.svc.Financials(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.store.count())
	assert.Equal(t, 30.0, fin.Summary.TotalExpenses)
}

func TestFinancialsWithoutCache(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Cache = nil })
	_, err := f.svc.Financials(context.Background())
	require.NoError(t, err)
	_, err = f.svc.Financials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.count())
}

func TestPublishesEveryCommitAndToleratesFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.pub.err = errors.New("broker down")

	seedRevenue(t, f, 100)
	require.NoError(t, f.svc.Reset(ctx))

	assert.Equal(t, []string{amqp.KindProject, amqp.KindPayment, amqp.KindReset}, f.pub.kinds())
	assert.Equal(t, int64(3), f.pub.msgs[2].Revision)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedRevenue(t, f, 500)
	_, err := f.svc.RecordExpense(ctx, core.Expense{Date: core.NewDate(2024, 1, 3), Description: "fuel", Amount: 30})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, &buf))
	want, err := f.svc.Financials(ctx)
	require.NoError(t, err)

	other := newFixture(t, nil)
	imported, err := other.svc.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Len(t, imported.Payments, 1)

	got, err := other.svc.Financials(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{amqp.KindImport}, other.pub.kinds())
}

func TestImportRejectsUnknownPartner(t *testing.T) {
	f := newFixture(t, nil)
	doc := `{"projects":[],"payments":[],"expenses":[],"dividends":[
		{"id":"d","partnerId":"ghost","date":"2024-01-01","grossAmount":1,"taxAmount":0.05,"netReceived":0.95}]}`
	_, err := f.svc.Import(context.Background(), strings.NewReader(doc))
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrUnknownPartner)

	_, err = f.svc.Import(context.Background(), strings.NewReader(`{"bogus": 1}`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestImportRejectsDuplicateIDsOnEveryBackend(t *testing.T) {
	doc := `{"projects":[{"id":"x","name":"Villa","type":"electrical","status":"active","createdAt":"2024-01-01T00:00:00Z"}],
		"payments":[
			{"id":"a","projectId":"x","date":"2024-01-02","description":"deposit","totalAmount":100,"distributions":[]},
			{"id":"a","projectId":"x","date":"2024-01-03","description":"again","totalAmount":100,"distributions":[]}],
		"expenses":[],"dividends":[]}`

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "soci.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	stores := map[string]ledger.Store{
		"memory": memory.New(),
		"sqlite": repo,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, err := NewLedgerService(store, Options{Roster: roster, Tax: core.TaxConfig{CorporateRate: 0.2}})
			require.NoError(t, err)

			_, err = svc.Import(ctx, strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, ErrDuplicateID)

			l, err := svc.Snapshot(ctx)
			require.NoError(t, err)
			assert.Empty(t, l.Payments)
			fin, err := svc.Financials(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0.0, fin.Summary.TotalRevenue)
		})
	}
}

func TestConcurrentFinancials(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	seedRevenue(t, f, 100)

	var wg sync.WaitGroup
	results := make([]core.Financials, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fin, err := f.svc.Financials(ctx)
			assert.NoError(t, err)
			results[i] = fin
		}(i)
	}
	wg.Wait()
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}
