package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// fakeLedger serves canned entries and a summary.
type fakeLedger struct {
	summary domain.LedgerSummary
	entries []domain.LedgerEntry
}

func (f *fakeLedger) Summary() domain.LedgerSummary { return f.summary }

func (f *fakeLedger) Entries() []domain.LedgerEntry {
	return append([]domain.LedgerEntry{}, f.entries...)
}

func newTestServer(cfg Config, ledger Ledger) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, ledger, logger)
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(Config{Port: 8080}, &fakeLedger{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSummaryEndpoint(t *testing.T) {
	ledger := &fakeLedger{summary: domain.LedgerSummary{
		Trades:    3,
		Wins:      2,
		Losses:    1,
		CumProfit: 4.5,
		WinRate:   2.0 / 3,
	}}
	s := newTestServer(Config{Port: 8080}, ledger)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.LedgerSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ledger.summary, got)
}

func TestTradesEndpointLimitAndOrder(t *testing.T) {
	entries := make([]domain.LedgerEntry, 5)
	for i := range entries {
		entries[i] = domain.LedgerEntry{
			ID:        string(rune('a' + i)),
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}
	}
	s := newTestServer(Config{Port: 8080}, &fakeLedger{entries: entries})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/trades?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	// Newest first: the last two recorded entries, reversed.
	assert.Equal(t, "e", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
}

func TestAuthRequiredWhenKeyConfigured(t *testing.T) {
	s := newTestServer(Config{Port: 8080, APIKey: "secret"}, &fakeLedger{})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, doRequest(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, doRequest(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, doRequest(s, req).Code)
}
