package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thlee33/ai-sql-map/internal/apperrors"
	"github.com/thlee33/ai-sql-map/internal/classify"
	"github.com/thlee33/ai-sql-map/internal/geo"
)

type stubClassifier struct {
	resp classify.Response
}

func (s stubClassifier) Classify(context.Context, string) classify.Response { return s.resp }

type stubExecutor struct {
	fc    *geo.Collection
	err   error
	calls []string
}

func (s *stubExecutor) Execute(_ context.Context, sql string) (*geo.Collection, error) {
	s.calls = append(s.calls, sql)
	return s.fc, s.err
}

func replyJSON(t *testing.T, out Outcome) string {
	t.Helper()
	b, err := json.Marshal(out.Reply)
	require.NoError(t, err)
	return string(b)
}

func TestAnalyzeSpatialQuery(t *testing.T) {
	fc := &geo.Collection{Features: []json.RawMessage{
		json.RawMessage(`{"type":"Feature","geometry":{"type":"Point","coordinates":[126.93,37.60]},"properties":{"data_type":"building"}}`),
	}}

	exec := &stubExecutor{fc: fc}
	d := New(stubClassifier{classify.SpatialQuery{SQL: "SELECT * FROM buildings;  "}}, exec, nil)

	out := d.Analyze(context.Background(), "all buildings")
	require.Equal(t, []string{"SELECT * FROM buildings"}, exec.calls)
	assert.Equal(t, classify.TypeSpatialQuery, out.Kind)
	assert.Equal(t, "SELECT * FROM buildings", out.SQL)
	assert.NoError(t, out.Err)
	assert.Same(t, fc, out.Reply)
}

func TestAnalyzeEmptySQL(t *testing.T) {
	exec := &stubExecutor{}
	d := New(stubClassifier{classify.SpatialQuery{SQL: " ; "}}, exec, nil)

	out := d.Analyze(context.Background(), "something")
	assert.Empty(t, exec.calls)
	assert.JSONEq(t, `{"error":"`+GenerationFailedText+`"}`, replyJSON(t, out))
	assert.Equal(t, apperrors.GenerationEmpty, apperrors.KindOf(out.Err))
}

func TestAnalyzeQueryError(t *testing.T) {
	exec := &stubExecutor{err: &geo.QueryError{
		Message: "syntax error at or near \"FORM\"",
		Query:   "SELECT * FORM buildings",
		Kind:    apperrors.QueryFailed,
	}}
	d := New(stubClassifier{classify.SpatialQuery{SQL: "SELECT * FORM buildings"}}, exec, nil)

	out := d.Analyze(context.Background(), "buildings")
	assert.JSONEq(t, `{"error":"syntax error at or near \"FORM\"","query":"SELECT * FORM buildings"}`, replyJSON(t, out))
	assert.Equal(t, apperrors.QueryFailed, apperrors.KindOf(out.Err))
}

func TestAnalyzePlainExecutorError(t *testing.T) {
	exec := &stubExecutor{err: errors.New("boom")}
	d := New(stubClassifier{classify.SpatialQuery{SQL: "SELECT 1"}}, exec, nil)

	out := d.Analyze(context.Background(), "x")
	assert.JSONEq(t, `{"error":"boom","query":"SELECT 1"}`, replyJSON(t, out))
}

func TestAnalyzeClientCommandSkipsDatabase(t *testing.T) {
	exec := &stubExecutor{}
	d := New(stubClassifier{classify.ClientCommand{Token: "ZOOM_IN"}}, exec, nil)

	out := d.Analyze(context.Background(), "zoom in")
	assert.Empty(t, exec.calls)
	assert.JSONEq(t, `{"type":"CLIENT_COMMAND","content":"ZOOM_IN"}`, replyJSON(t, out))
	assert.NoError(t, out.Err)
}

func TestAnalyzeGeneralAnswer(t *testing.T) {
	d := New(stubClassifier{classify.GeneralAnswer{Text: "I have building and subway station data."}}, &stubExecutor{}, nil)

	out := d.Analyze(context.Background(), "what data do you have?")
	assert.JSONEq(t, `{"answer_text":"I have building and subway station data."}`, replyJSON(t, out))
	assert.NoError(t, out.Err)
}

func TestAnalyzeFallbackAnswerCarriesKind(t *testing.T) {
	d := New(stubClassifier{classify.GeneralAnswer{Text: classify.NotUnderstoodText, Kind: apperrors.AdapterUnparseable}}, &stubExecutor{}, nil)

	out := d.Analyze(context.Background(), "???")
	assert.JSONEq(t, `{"answer_text":"`+classify.NotUnderstoodText+`"}`, replyJSON(t, out))
	assert.Equal(t, apperrors.AdapterUnparseable, apperrors.KindOf(out.Err))
}

func TestAnalyzeUnrecognized(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"quota exceeded", "An error occurred: quota exceeded"},
		{"", "An error occurred: unknown error"},
	}
	for _, tt := range tests {
		d := New(stubClassifier{classify.Unrecognized{Tag: "ERROR", Content: tt.content}}, &stubExecutor{}, nil)
		out := d.Analyze(context.Background(), "x")
		assert.Equal(t, AnswerReply{AnswerText: tt.want}, out.Reply)
		assert.Equal(t, "ERROR", out.Kind)
	}
}
