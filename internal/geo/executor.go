package geo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers driver "pgx"
	_ "github.com/lib/pq"              // registers driver "postgres"
	"go.uber.org/zap"

	"github.com/thlee33/ai-sql-map/internal/apperrors"
	"github.com/thlee33/ai-sql-map/internal/config"
	"github.com/thlee33/ai-sql-map/internal/logging"
)

// QueryError is the structured failure returned to the client.
type QueryError struct {
	Message string         `json:"error"`
	Query   string         `json:"query"`
	Kind    apperrors.Kind `json:"-"`
	Err     error          `json:"-"`
}

func (e *QueryError) Error() string { return e.Message }
func (e *QueryError) Unwrap() error { return e.Err }

// Opener opens a database handle. It matches sql.Open.
type Opener func(driver, dsn string) (*sql.DB, error)

// Executor runs one statement per call on a fresh connection.
type Executor struct {
	cfg    config.DB
	open   Opener
	logger *zap.Logger
}

// Option customises an Executor.
type Option func(*Executor)

// WithOpener replaces sql.Open, mainly for tests.
func WithOpener(open Opener) Option {
	return func(e *Executor) { e.open = open }
}

// NewExecutor creates an executor for the given connection settings.
func NewExecutor(cfg config.DB, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		cfg:    cfg,
		open:   sql.Open,
		logger: logger.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute wraps query, runs it in a read-only transaction and decodes the
// aggregated document. Every failure is a *QueryError carrying query as given.
func (e *Executor) Execute(ctx context.Context, query string) (*Collection, error) {
	if missing := e.cfg.Missing(); len(missing) > 0 {
		return nil, &QueryError{
			Message: "database connection settings are missing: " + strings.Join(missing, ", "),
			Query:   query,
			Kind:    apperrors.ConfigMissing,
		}
	}

	if e.cfg.Guard {
		if err := CheckStatement(query); err != nil {
			e.logger.Warn("statement rejected", zap.Error(err), zap.String("sql", logging.Truncate(query, 500)))
			return nil, &QueryError{Message: err.Error(), Query: query, Kind: apperrors.StatementRejected, Err: err}
		}
	}

	start := time.Now()
	raw, err := e.fetch(ctx, query)
	if err != nil {
		e.logger.Error("query failed", zap.Error(err), zap.String("sql", logging.Truncate(query, 500)))
		return nil, &QueryError{Message: err.Error(), Query: query, Kind: apperrors.QueryFailed, Err: err}
	}

	fc, err := decodeCollection(raw)
	if err != nil {
		e.logger.Error("decode result failed", zap.Error(err))
		return nil, &QueryError{Message: err.Error(), Query: query, Kind: apperrors.QueryFailed, Err: err}
	}

	e.logger.Info("query executed",
		zap.Int("features", len(fc.Features)),
		zap.Duration("duration", time.Since(start)),
	)
	return fc, nil
}

// fetch returns the aggregate document, or nil when there was no row or the
// aggregate was NULL.
func (e *Executor) fetch(ctx context.Context, query string) ([]byte, error) {
	db, err := e.open(e.cfg.Driver, e.cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx, WrapQuery(query)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
