package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soci/internal/core"
	"soci/internal/ledger/memory"
	"soci/internal/report"
	"soci/internal/services"
)

var fixedNow = time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	text string
	err  error
	seen report.Projection
}

func (f *fakeGenerator) Generate(_ context.Context, p report.Projection) (string, error) {
	f.seen = p
	return f.text, f.err
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	svc, err := services.NewLedgerService(memory.New(), services.Options{
		Roster: core.MustRoster(core.Partner{ID: "p1", Name: "Marco"}, core.Partner{ID: "p2", Name: "Luca"}),
		Tax:    core.TaxConfig{CorporateRate: 0.2, DividendRate: 0.05},
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	opts.Now = func() time.Time { return fixedNow }
	return NewServer(":0", svc, opts)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func seed(t *testing.T, srv *Server) {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/projects", `{"id":"villa","name":"Villa Rossi","type":"electrical"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, srv, http.MethodPost, "/api/payments", `{
		"projectId":"villa","date":"2024-03-01","description":"First instalment","totalAmount":1000,
		"distributions":[{"partnerId":"p1","amount":600},{"partnerId":"p2","amount":"400,00"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-02","description":"Cable","amount":200,"category":"materials"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	}
	assert.Equal(t, "nosniff", do(t, srv, http.MethodGet, "/healthz", "").Header().Get("X-Content-Type-Options"))
}

func TestPartners(t *testing.T) {
	srv := newTestServer(t, Options{})
	rr := do(t, srv, http.MethodGet, "/api/partners", "")
	require.Equal(t, http.StatusOK, rr.Code)

	partners := decodeBody[[]core.Partner](t, rr)
	require.Len(t, partners, 2)
	assert.Equal(t, "p1", partners[0].ID)
	assert.Equal(t, "Luca", partners[1].Name)
}

func TestFinancialsFlow(t *testing.T) {
	srv := newTestServer(t, Options{})
	seed(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/financials", "")
	require.Equal(t, http.StatusOK, rr.Code)
	fin := decodeBody[core.Financials](t, rr)

	assert.InDelta(t, 1000, fin.Summary.TotalRevenue, 1e-9)
	assert.InDelta(t, 200, fin.Summary.TotalExpenses, 1e-9)
	assert.InDelta(t, 800, fin.Summary.TaxableProfit, 1e-9)
	assert.InDelta(t, 160, fin.Summary.CorporateTax, 1e-9)
	assert.InDelta(t, 640, fin.Summary.NetProfit, 1e-9)

	require.Len(t, fin.Partners, 2)
	p1, p2 := fin.Partners[0], fin.Partners[1]
	assert.Equal(t, "p1", p1.PartnerID)
	assert.InDelta(t, 600, p1.Revenue, 1e-9)
	assert.InDelta(t, 100, p1.ExpenseShare, 1e-9)
	assert.InDelta(t, 100, p1.EqualSplitExpense, 1e-9)
	assert.InDelta(t, 400, p1.NetProfitShare, 1e-9)
	assert.InDelta(t, 400, p1.Balance, 1e-9)
	assert.InDelta(t, 240, p2.NetProfitShare, 1e-9)
}

func TestRecordDividend(t *testing.T) {
	srv := newTestServer(t, Options{})
	seed(t, srv)

	rr := do(t, srv, http.MethodPost, "/api/dividends", `{"partnerId":"p1","grossAmount":100}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	d := decodeBody[core.DividendPayout](t, rr)
	assert.Equal(t, 5.0, d.TaxAmount)
	assert.Equal(t, 95.0, d.NetReceived)
	assert.Equal(t, "2024-05-17", d.Date.String())

	rr = do(t, srv, http.MethodPost, "/api/dividends", `{"partnerId":"p1","grossAmount":1000}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, decodeBody[errorBody](t, rr).Error, "exceeds available balance")

	fin := decodeBody[core.Financials](t, do(t, srv, http.MethodGet, "/api/financials", ""))
	assert.InDelta(t, 300, fin.Partners[0].Balance, 1e-9)
	assert.InDelta(t, 5, fin.Partners[0].DividendTaxPaid, 1e-9)
}

func TestRecordValidation(t *testing.T) {
	srv := newTestServer(t, Options{})
	seed(t, srv)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name: "malformed json", path: "/api/payments", body: `{"projectId":`,
			wantCode: http.StatusBadRequest, wantMsg: "malformed request body",
		},
		{
			name: "unknown field", path: "/api/expenses", body: `{"description":"x","amount":1,"colour":"red"}`,
			wantCode: http.StatusBadRequest, wantMsg: "unknown field",
		},
		{
			name: "missing description", path: "/api/expenses", body: `{"amount":10}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "description is required",
		},
		{
			name: "negative amount", path: "/api/expenses", body: `{"description":"fuel","amount":-10}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "amount must be at least 0",
		},
		{
			name: "bad date", path: "/api/expenses", body: `{"description":"fuel","amount":10,"date":"17/05/2024"}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "date must be a YYYY-MM-DD date",
		},
		{
			name: "unknown project", path: "/api/payments",
			body:     `{"projectId":"ghost","description":"x","totalAmount":10}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "ghost",
		},
		{
			name: "unknown partner", path: "/api/payments",
			body:     `{"projectId":"villa","description":"x","totalAmount":10,"distributions":[{"partnerId":"zed","amount":10}]}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "partner not in roster",
		},
		{
			name: "distribution without partner", path: "/api/expenses",
			body:     `{"description":"x","amount":10,"distributions":[{"amount":10}]}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "distributions[0].partnerId is required",
		},
		{
			name: "invalid project type", path: "/api/projects", body: `{"name":"Shop","type":"gardening"}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "type must be one of",
		},
		{
			name: "dividend for unknown partner", path: "/api/dividends", body: `{"partnerId":"zed","grossAmount":1}`,
			wantCode: http.StatusUnprocessableEntity, wantMsg: "partner not in roster",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
			assert.Contains(t, decodeBody[errorBody](t, rr).Error, tt.wantMsg)
		})
	}

	// nothing above reached the ledger
	fin := decodeBody[core.Financials](t, do(t, srv, http.MethodGet, "/api/financials", ""))
	assert.InDelta(t, 1000, fin.Summary.TotalRevenue, 1e-9)
	assert.InDelta(t, 200, fin.Summary.TotalExpenses, 1e-9)
}

func TestExportResetImport(t *testing.T) {
	srv := newTestServer(t, Options{})
	seed(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/ledger", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="soci-ledger-2024-05-17.json"`, rr.Header().Get("Content-Disposition"))
	exported := rr.Body.String()
	assert.Contains(t, exported, `"dividends": []`)

	rr = do(t, srv, http.MethodDelete, "/api/ledger", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	fin := decodeBody[core.Financials](t, do(t, srv, http.MethodGet, "/api/financials", ""))
	assert.Zero(t, fin.Summary.TotalRevenue)
	assert.Zero(t, fin.Partners[0].Balance)

	rr = do(t, srv, http.MethodPut, "/api/ledger", exported)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[importResponse](t, rr)
	assert.Equal(t, importResponse{Projects: 1, Payments: 1, Expenses: 1, Dividends: 0, Revision: res.Revision}, res)
	assert.Positive(t, res.Revision)

	fin = decodeBody[core.Financials](t, do(t, srv, http.MethodGet, "/api/financials", ""))
	assert.InDelta(t, 640, fin.Summary.NetProfit, 1e-9)

	rr = do(t, srv, http.MethodPut, "/api/ledger", `{"projects": [`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, srv, http.MethodPut, "/api/ledger", `{"projects":[],"payments":[],"expenses":[],"dividends":[],"extra":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(t, srv, http.MethodPut, "/api/ledger",
		`{"projects":[],"payments":[],"expenses":[],"dividends":[{"id":"d1","partnerId":"zed","date":"2024-01-01","grossAmount":1,"taxAmount":0.05,"netReceived":0.95}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeBody[errorBody](t, rr).Error, "partner not in roster")

	rr = do(t, srv, http.MethodPut, "/api/ledger",
		`{"projects":[],"payments":[],"expenses":[
			{"id":"e1","date":"2024-01-01","description":"fuel","amount":10,"category":"fuel","distributions":[]},
			{"id":"e1","date":"2024-01-02","description":"fuel","amount":10,"category":"fuel","distributions":[]}],"dividends":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeBody[errorBody](t, rr).Error, "expense e1: id already recorded")

	// a refused import leaves the ledger untouched
	fin = decodeBody[core.Financials](t, do(t, srv, http.MethodGet, "/api/financials", ""))
	assert.InDelta(t, 640, fin.Summary.NetProfit, 1e-9)
}

func TestReport(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, Options{})
		rr := do(t, srv, http.MethodPost, "/api/report", `{"text":"how are we doing?"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, report.ErrNotConfigured.Error(), decodeBody[errorBody](t, rr).Error)
	})

	t.Run("success", func(t *testing.T) {
		gen := &fakeGenerator{text: "## Summary\nAll good."}
		srv := newTestServer(t, Options{Generator: gen})
		seed(t, srv)

		rr := do(t, srv, http.MethodPost, "/api/report", `{"text":"how are we doing?","recent":1}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, report.Result{Text: "## Summary\nAll good."}, decodeBody[report.Result](t, rr))
		assert.Equal(t, "how are we doing?", gen.seen.Question)
		assert.Len(t, gen.seen.RecentPayments, 1)
		assert.InDelta(t, 1000, gen.seen.Summary.TotalRevenue, 1e-9)
	})

	t.Run("generator failure", func(t *testing.T) {
		srv := newTestServer(t, Options{Generator: &fakeGenerator{err: errors.New("quota exhausted")}})
		rr := do(t, srv, http.MethodPost, "/api/report", `{}`)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "quota exhausted", decodeBody[errorBody](t, rr).Error)
	})
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not found", decodeBody[errorBody](t, rr).Error)

	rr = do(t, srv, http.MethodPatch, "/api/ledger", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv := newTestServer(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, srv.Shutdown(ctx))

	reqs, hits, _ := srv.Metrics()
	assert.Zero(t, reqs.TotalRequests)
	assert.Zero(t, hits.TotalHits)
}

func TestLargeBodyRejected(t *testing.T) {
	srv := newTestServer(t, Options{})
	big := `{"description":"` + strings.Repeat("a", maxBodyBytes) + `","amount":1}`
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/expenses", bytes.NewBufferString(big)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
