package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/sp-ranking/internal/api/handlers"
	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/internal/export"
	"github.com/wonny/sp-ranking/internal/runstore"
	"github.com/wonny/sp-ranking/internal/store"
	"github.com/wonny/sp-ranking/pkg/database"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// queueOnly creates runs without executing them
type queueOnly struct {
	st  contracts.Store
	err error
}

func (q *queueOnly) Trigger(ctx context.Context, mode contracts.FormulaMode) (*contracts.Run, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.st.CreateRun(ctx, mode)
}

type fixture struct {
	st      contracts.Store
	trigger *queueOnly
	router  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	st := store.NewSQLiteStore(db)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	log := logger.NewNop()
	runs := runstore.New(st, log)
	trigger := &queueOnly{st: st}

	router := NewRouter(Handlers{
		Health:   handlers.NewHealthHandler(st, "ranker-api"),
		Symbols:  handlers.NewSymbolsHandler(st, log),
		Rankings: handlers.NewRankingsHandler(trigger, runs, export.New(st, 1000, log), log),
		Stream:   handlers.NewStreamHandler(runs, []string{"*"}, 10*time.Millisecond, log),
	}, []string{"http://localhost:3000"}, log)

	return &fixture{st: st, trigger: trigger, router: router}
}

func (f *fixture) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) completedRun(t *testing.T, mode contracts.FormulaMode, n int) int64 {
	t.Helper()
	ctx := context.Background()

	run, err := f.st.CreateRun(ctx, mode)
	require.NoError(t, err)
	require.NoError(t, f.st.StartRun(ctx, run.ID))

	sectors := []string{"Tech", "Energy"}
	rows := make([]contracts.ScoreResult, n)
	for i := range rows {
		rows[i] = contracts.ScoreResult{
			Symbol:       string(rune('A'+i)) + "CO",
			Name:         "Company",
			Sector:       sectors[i%2],
			MarketCap:    contracts.Float(float64(i+1) * 1e9),
			ScoreBuffett: contracts.Float(float64(100 - i)),
			CombinedRank: i + 1,
			Completeness: 100,
			LastUpdated:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		}
	}
	require.NoError(t, f.st.CompleteRun(ctx, run.ID, rows))
	return run.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36, "generated uuid")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/rankings/run", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSymbols(t *testing.T) {
	f := newFixture(t)
	_, err := f.st.UpsertSymbols(context.Background(), []contracts.Symbol{
		{Symbol: "MSFT", Name: "Microsoft", Sector: "Information Technology"},
		{Symbol: "XOM", Name: "Exxon Mobil", Sector: "Energy"},
		{Symbol: "AAPL", Name: "Apple", Sector: "Information Technology"},
		{Symbol: "ZZZ", Name: "Unclassified"},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/symbols", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.SymbolsResponse
	decode(t, rec, &body)
	require.Len(t, body.Symbols, 4)
	assert.Equal(t, "AAPL", body.Symbols[0].Symbol)
	assert.Equal(t, []string{"Energy", "Information Technology"}, body.Sectors)
}

func TestSymbols_Empty(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/symbols", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"symbols":[],"sectors":[]}`, rec.Body.String())
}

func TestTriggerRun(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"buffett", `{"formula_mode":"buffett","options":{}}`, http.StatusOK},
		{"case insensitive", `{"formula_mode":" Both "}`, http.StatusOK},
		{"unknown mode", `{"formula_mode":"graham"}`, http.StatusBadRequest},
		{"missing mode", `{"options":{}}`, http.StatusBadRequest},
		{"malformed body", `{"formula_mode":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(t, http.MethodPost, "/rankings/run", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			runs, err := f.st.LatestRun(context.Background())
			if tt.status != http.StatusOK {
				assert.ErrorIs(t, err, contracts.ErrRunNotFound, "rejected requests create no run")
				return
			}
			require.NoError(t, err)

			var body handlers.RunResponse
			decode(t, rec, &body)
			assert.Equal(t, runs.ID, body.RunID)
			assert.Equal(t, contracts.StatusRunning, body.Status)
		})
	}
}

func TestTriggerRun_ValidationMessage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/rankings/run", `{"formula_mode":"graham"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "validation error: FormulaMode - oneof", body["error"])
}

func TestTriggerRun_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.trigger.err = errors.New("disk full")

	rec := f.do(t, http.MethodPost, "/rankings/run", `{"formula_mode":"cramer"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/rankings/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"idle"}`, rec.Body.String())

	id := f.completedRun(t, contracts.ModeBuffett, 3)

	rec = f.do(t, http.MethodGet, "/rankings/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run contracts.Run
	decode(t, rec, &run)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, contracts.StatusCompleted, run.Status)
	assert.Equal(t, 100, run.Progress)

	rec = f.do(t, http.MethodGet, "/rankings/status?run_id=999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/rankings/status?run_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatest_NoCompletedRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.st.CreateRun(context.Background(), contracts.ModeBoth)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/rankings/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"total":0,"run_id":null}`, rec.Body.String())
}

func TestLatest_FiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	id := f.completedRun(t, contracts.ModeBuffett, 12)

	var page contracts.ResultPage

	rec := f.do(t, http.MethodGet, "/rankings/latest?page=2&pageSize=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Equal(t, 12, page.Total)
	assert.Len(t, page.Items, 2)
	require.NotNil(t, page.RunID)
	assert.Equal(t, id, *page.RunID)

	rec = f.do(t, http.MethodGet, "/rankings/latest?sectors=Energy&marketCapMin=4e9&marketCapMax=8e9", "")
	decode(t, rec, &page)
	// Energy rows have even caps: 2e9, 4e9 ... 12e9
	assert.Equal(t, 3, page.Total)
	for _, item := range page.Items {
		assert.Equal(t, "Energy", item.Sector)
	}

	rec = f.do(t, http.MethodGet, "/rankings/latest?sectors=Energy,Tech&sortBy=market_cap&sortDir=desc&pageSize=1", "")
	decode(t, rec, &page)
	assert.Equal(t, 12, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 12e9, *page.Items[0].MarketCap)

	rec = f.do(t, http.MethodGet, "/rankings/latest?formula_mode=cramer&sortBy=drop%20table", "")
	decode(t, rec, &page)
	require.NotNil(t, page.RunID)
	assert.Equal(t, id, *page.RunID, "falls back to any mode")
	assert.Equal(t, 1, page.Items[0].CombinedRank)
}

func TestLatest_DefaultsToCombinedRun(t *testing.T) {
	f := newFixture(t)
	both := f.completedRun(t, contracts.ModeBoth, 3)
	buffett := f.completedRun(t, contracts.ModeBuffett, 4)

	var page contracts.ResultPage

	rec := f.do(t, http.MethodGet, "/rankings/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	require.NotNil(t, page.RunID)
	assert.Equal(t, both, *page.RunID, "a newer single-formula run does not win by default")
	assert.Equal(t, 3, page.Total)

	rec = f.do(t, http.MethodGet, "/rankings/latest?formula_mode=buffett", "")
	decode(t, rec, &page)
	require.NotNil(t, page.RunID)
	assert.Equal(t, buffett, *page.RunID)
}

func TestExport(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/rankings/export", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := f.completedRun(t, contracts.ModeBuffett, 3)

	rec = f.do(t, http.MethodGet, "/rankings/export?format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), export.FormatCSV.Filename(id))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(export.Header, ","), lines[0])

	rec = f.do(t, http.MethodGet, "/rankings/export?format=excel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = f.do(t, http.MethodGet, "/rankings/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.FormatExcel.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), export.FormatExcel.Filename(id))

	rec = f.do(t, http.MethodGet, "/rankings/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	running, err := f.st.CreateRun(context.Background(), contracts.ModeBoth)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/rankings/export?run_id="+itoa(running.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "unfinished runs cannot be exported")
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.st.CreateRun(ctx, contracts.ModeBuffett)
	require.NoError(t, err)

	server := httptest.NewServer(f.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/rankings/stream?run_id=" + itoa(run.ID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got contracts.Run
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, contracts.StatusQueued, got.Status)

	require.NoError(t, f.st.StartRun(ctx, run.ID))
	require.NoError(t, f.st.CompleteRun(ctx, run.ID, nil))

	// intermediate states may be coalesced; the last message is terminal
	for got.Status != contracts.StatusCompleted {
		require.NoError(t, conn.ReadJSON(&got))
	}
	assert.Equal(t, 100, got.Progress)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStream_UnknownRun(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/rankings/stream?run_id=42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
