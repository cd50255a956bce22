package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf, Component: ComponentLedger})
	l.Info("hello", FieldRevision, int64(3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ledger", rec[FieldComponent])
	assert.Equal(t, float64(3), rec[FieldRevision])
	assert.Equal(t, "hello", rec["msg"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf}).WithComponent(ComponentCache)
	assert.Equal(t, ComponentCache, l.Component())
	l.Warn("evicted")
	assert.Contains(t, buf.String(), `"component":"cache"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestFieldsToSliceIsSorted(t *testing.T) {
	f := NewFields().WithPartner("p1", 10).WithError(errors.New("boom")).WithEntity("payment", "a")
	s := f.ToSlice()
	require.Len(t, s, 10)
	assert.Equal(t, FieldAmount, s[0])
	assert.Equal(t, FieldError, s[6])
	assert.Equal(t, "boom", s[7])
}

func TestMiddlewareAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})

	var got *Logger
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			got.Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestLogHTTPEndLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Output: &buf}))
	r := httptest.NewRequest(http.MethodPost, "/api/payments", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusConflict, 4, "10.0.0.1")
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"success":false`)

	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, http.StatusInternalServerError, 4, "10.0.0.1")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}
