package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thlee33/ai-sql-map/internal/apperrors"
	"github.com/thlee33/ai-sql-map/internal/classify"
	"github.com/thlee33/ai-sql-map/internal/dispatch"
	"github.com/thlee33/ai-sql-map/internal/geo"
	"github.com/thlee33/ai-sql-map/internal/history"
	"github.com/thlee33/ai-sql-map/internal/schema"
)

type fakeAnalyzer struct {
	out   dispatch.Outcome
	texts []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, text string) dispatch.Outcome {
	f.texts = append(f.texts, text)
	return f.out
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryRecorder) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < len(m.entries) {
		return m.entries[:limit], nil
	}
	return m.entries, nil
}

func (m *memoryRecorder) Close(context.Context) error { return nil }
func (m *memoryRecorder) Enabled() bool               { return true }

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAnalyzeReplies(t *testing.T) {
	fc := &geo.Collection{Features: []json.RawMessage{
		json.RawMessage(`{"type":"Feature","geometry":{"type":"Point","coordinates":[126.9377,37.5991]},"properties":{"address":"Nokbeon-dong 11-1"}}`),
	}}

	tests := []struct {
		name string
		out  dispatch.Outcome
		want string
	}{
		{
			"feature collection",
			dispatch.Outcome{Reply: fc, Kind: classify.TypeSpatialQuery},
			`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[126.9377,37.5991]},"properties":{"address":"Nokbeon-dong 11-1"}}]}`,
		},
		{
			"empty collection",
			dispatch.Outcome{Reply: geo.EmptyCollection(), Kind: classify.TypeSpatialQuery},
			`{"type":"FeatureCollection","features":[]}`,
		},
		{
			"client command",
			dispatch.Outcome{Reply: dispatch.CommandReply{Type: classify.TypeClientCommand, Content: "PAN_LEFT"}},
			`{"type":"CLIENT_COMMAND","content":"PAN_LEFT"}`,
		},
		{
			"answer",
			dispatch.Outcome{Reply: dispatch.AnswerReply{AnswerText: "hi"}},
			`{"answer_text":"hi"}`,
		},
		{
			"query error",
			dispatch.Outcome{Reply: dispatch.ErrorReply{Error: "bad", Query: "SELECT a < b"}},
			`{"error":"bad","query":"SELECT a < b"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{out: tt.out}
			rec := post(t, New(Deps{Analyzer: a}), "/analyze", `{"text":"  find buildings  "}`)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.want, rec.Body.String())
			assert.Equal(t, []string{"find buildings"}, a.texts)
		})
	}
}

func TestAnalyzeBadRequests(t *testing.T) {
	a := &fakeAnalyzer{}
	s := New(Deps{Analyzer: a})

	rec := post(t, s, "/analyze", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, rec.Body.String())

	rec = post(t, s, "/analyze", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"text is required"}`, rec.Body.String())

	assert.Empty(t, a.texts)
}

func TestAnalyzeRecordsHistory(t *testing.T) {
	fc := &geo.Collection{Features: []json.RawMessage{
		json.RawMessage(`{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`),
		json.RawMessage(`{"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{}}`),
	}}

	rec := &memoryRecorder{}
	a := &fakeAnalyzer{out: dispatch.Outcome{Reply: fc, Kind: classify.TypeSpatialQuery, SQL: "SELECT * FROM buildings"}}
	s := New(Deps{Analyzer: a, History: rec})

	resp := post(t, s, "/analyze", `{"text":"old buildings"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	s.Wait()

	require.Len(t, rec.entries, 1)
	e := rec.entries[0]
	assert.Equal(t, "old buildings", e.Text)
	assert.Equal(t, classify.TypeSpatialQuery, e.Type)
	assert.Equal(t, "SELECT * FROM buildings", e.SQL)
	assert.Equal(t, 2, e.Features)
	assert.NotEmpty(t, e.ID)
}

func TestAnalyzeHistoryFailureDoesNotChangeReply(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("mongo down")}
	a := &fakeAnalyzer{out: dispatch.Outcome{
		Reply: dispatch.AnswerReply{AnswerText: classify.RefusedText},
		Kind:  classify.TypeGeneralAnswer,
		Err:   apperrors.New(apperrors.AdapterRefused, classify.RefusedText),
	}}

	s := New(Deps{Analyzer: a, History: rec})
	resp := post(t, s, "/analyze", `{"text":"x"}`)
	s.Wait()
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"answer_text":"`+classify.RefusedText+`"}`, resp.Body.String())
}

type blockingRecorder struct {
	memoryRecorder
	release chan struct{}
}

func (b *blockingRecorder) Record(ctx context.Context, e history.Entry) error {
	<-b.release
	return b.memoryRecorder.Record(ctx, e)
}

func TestAnalyzeRepliesBeforeHistoryIsWritten(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	a := &fakeAnalyzer{out: dispatch.Outcome{Reply: dispatch.AnswerReply{AnswerText: "hi"}, Kind: classify.TypeGeneralAnswer}}
	s := New(Deps{Analyzer: a, History: rec})

	resp := post(t, s, "/analyze", `{"text":"hello"}`)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"answer_text":"hi"}`, resp.Body.String())

	close(rec.release)
	s.Wait()
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "hello", rec.entries[0].Text)
}

func TestHistoryEndpoint(t *testing.T) {
	s := New(Deps{Analyzer: &fakeAnalyzer{}})
	assert.Equal(t, http.StatusNotFound, get(t, s, "/history").Code)

	rec := &memoryRecorder{entries: []history.Entry{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}}}
	s = New(Deps{Analyzer: &fakeAnalyzer{}, History: rec})

	resp := get(t, s, "/history?limit=1")
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Entries []history.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "1", body.Entries[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/history?limit=abc").Code)
}

func TestSchemaEndpoints(t *testing.T) {
	s := New(Deps{Analyzer: &fakeAnalyzer{}})

	resp := get(t, s, "/schema")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"tables":[],"tableCount":0}`, resp.Body.String())

	resp = post(t, s, "/schema/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("information_schema.columns").WillReturnError(errors.New("connection refused"))

	s = New(Deps{Analyzer: &fakeAnalyzer{}, Schema: schema.NewCache(), SchemaDB: db})
	resp = post(t, s, "/schema/refresh", "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "connection refused")
}

func TestHealthAndCORS(t *testing.T) {
	s := New(Deps{Analyzer: &fakeAnalyzer{}, AllowedOrigins: []string{"http://localhost:5173"}})

	resp := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestWildcardCORSEchoesOrigin(t *testing.T) {
	s := New(Deps{Analyzer: &fakeAnalyzer{out: dispatch.Outcome{Reply: dispatch.AnswerReply{AnswerText: "ok"}}}})

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://map.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "http://map.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Origin", "http://map.example")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://map.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
