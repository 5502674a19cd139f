// Package server exposes the analyze pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/thlee33/ai-sql-map/internal/apperrors"
	"github.com/thlee33/ai-sql-map/internal/dispatch"
	"github.com/thlee33/ai-sql-map/internal/geo"
	"github.com/thlee33/ai-sql-map/internal/history"
	"github.com/thlee33/ai-sql-map/internal/schema"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 20
	schemaTimeout       = 30 * time.Second
	recordTimeout       = 2 * time.Second
)

// Analyzer produces the reply for one utterance.
type Analyzer interface {
	Analyze(ctx context.Context, text string) dispatch.Outcome
}

// Deps are the collaborators of the HTTP surface. Schema and SchemaDB may be
// nil; History defaults to history.Nop.
type Deps struct {
	Analyzer       Analyzer
	Schema         *schema.Cache
	SchemaDB       schema.Querier
	History        history.Recorder
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Server struct {
	analyzer Analyzer
	schema   *schema.Cache
	schemaDB schema.Querier
	history  history.Recorder
	logger   *zap.Logger
	router   chi.Router
	pending  sync.WaitGroup
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.History == nil {
		d.History = history.Nop{}
	}
	if d.Schema == nil {
		d.Schema = schema.NewCache()
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		analyzer: d.Analyzer,
		schema:   d.Schema,
		schemaDB: d.SchemaDB,
		history:  d.History,
		logger:   d.Logger.Named("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(origins)))

	r.Get("/healthz", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/schema", s.handleSchema)
	r.Post("/schema/refresh", s.handleSchemaRefresh)
	r.Get("/history", s.handleHistory)

	s.router = r
	return s
}

// corsOptions allows credentials. A "*" entry echoes the request origin,
// since browsers refuse a literal "*" on credentialed responses.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if slices.Contains(origins, "*") {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return opts
}

// Wait blocks until pending history writes have finished.
func (s *Server) Wait() {
	s.pending.Wait()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, dispatch.ErrorReply{Error: "invalid JSON body"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondJSON(w, http.StatusBadRequest, dispatch.ErrorReply{Error: "text is required"})
		return
	}

	start := time.Now()
	out := s.analyzer.Analyze(r.Context(), text)
	elapsed := time.Since(start)

	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("type", out.Kind),
		zap.Duration("duration", elapsed),
	}
	if out.Err != nil {
		s.logger.Warn("analyze finished with error", append(fields,
			zap.String("kind", string(apperrors.KindOf(out.Err))),
			zap.Error(out.Err),
		)...)
	} else {
		s.logger.Info("analyze finished", fields...)
	}

	respondJSON(w, http.StatusOK, out.Reply)
	s.record(r.Context(), text, out, elapsed)
}

// record writes the audit entry in the background. It outlives a cancelled
// request and never changes the reply.
func (s *Server) record(ctx context.Context, text string, out dispatch.Outcome, elapsed time.Duration) {
	if !s.history.Enabled() {
		return
	}

	e := history.NewEntry(text)
	e.Type = out.Kind
	e.SQL = out.SQL
	e.DurationMs = elapsed.Milliseconds()
	if out.Err != nil {
		e.ErrorKind = string(apperrors.KindOf(out.Err))
		e.Error = out.Err.Error()
	}
	if fc, ok := out.Reply.(*geo.Collection); ok {
		e.Features = len(fc.Features)
	}

	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()
		if err := s.history.Record(ctx, e); err != nil {
			s.logger.Warn("record history failed", zap.Error(err), zap.String("id", e.ID))
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type schemaResponse struct {
	Tables      []schema.Table `json:"tables"`
	TableCount  int            `json:"tableCount"`
	LastRefresh string         `json:"lastRefresh,omitempty"`
}

func (s *Server) schemaSnapshot() schemaResponse {
	resp := schemaResponse{
		Tables:     s.schema.Tables(),
		TableCount: s.schema.Count(),
	}
	if t := s.schema.Refreshed(); !t.IsZero() {
		resp.LastRefresh = t.Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.schemaSnapshot())
}

func (s *Server) handleSchemaRefresh(w http.ResponseWriter, r *http.Request) {
	if s.schemaDB == nil {
		respondJSON(w, http.StatusServiceUnavailable, dispatch.ErrorReply{Error: "database is not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), schemaTimeout)
	defer cancel()

	if err := s.schema.Load(ctx, s.schemaDB); err != nil {
		s.logger.Error("schema refresh failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, dispatch.ErrorReply{Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, s.schemaSnapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.history.Enabled() {
		respondJSON(w, http.StatusNotFound, dispatch.ErrorReply{Error: "history is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondJSON(w, http.StatusBadRequest, dispatch.ErrorReply{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("read history failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, dispatch.ErrorReply{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
