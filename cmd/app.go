package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thlee33/ai-sql-map/internal/classify"
	"github.com/thlee33/ai-sql-map/internal/config"
	"github.com/thlee33/ai-sql-map/internal/dispatch"
	"github.com/thlee33/ai-sql-map/internal/geo"
	"github.com/thlee33/ai-sql-map/internal/history"
	"github.com/thlee33/ai-sql-map/internal/llm"
	"github.com/thlee33/ai-sql-map/internal/schema"
)

const schemaLoadTimeout = 30 * time.Second

// app wires the analyze pipeline from one Config.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	provider   llm.Provider
	dispatcher *dispatch.Dispatcher
	schema     *schema.Cache
	schemaDB   *sql.DB
	history    history.Recorder
}

// newApp only fails on configuration it cannot work around (an unreadable
// SCHEMA_FILE). A missing LLM key or database settings surface per request.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, withHistory bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		schema:  schema.NewCache(),
		history: history.Nop{},
	}

	provider, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		logger.Warn("LLM not configured, requests will be answered with the error", zap.Error(err))
		provider = llm.NewUnconfigured(cfg.LLM.Provider, err)
	}
	a.provider = provider
	logger.Info("LLM provider initialized", zap.String("provider", provider.Name()), zap.String("mode", cfg.Analyze.Mode))

	if missing := cfg.DB.Missing(); len(missing) > 0 {
		logger.Warn("database settings incomplete, spatial queries will fail", zap.Strings("missing", missing))
	} else {
		a.loadSchema(ctx)
	}

	doc, err := a.schemaDocument()
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	classifier := classify.New(provider, classify.Options{
		Mode:       cfg.Analyze.Mode,
		Schema:     doc,
		RepairJSON: cfg.Analyze.RepairJSON,
	}, logger)
	executor := geo.NewExecutor(cfg.DB, logger)
	a.dispatcher = dispatch.New(classifier, executor, logger)

	if withHistory && cfg.History.Enabled() {
		rec, err := history.Connect(ctx, cfg.History)
		if err != nil {
			logger.Warn("history disabled", zap.Error(err))
		} else {
			a.history = rec
			logger.Info("history enabled",
				zap.String("database", cfg.History.Database),
				zap.String("collection", cfg.History.Collection),
			)
		}
	}

	return a, nil
}

func newProvider(ctx context.Context, cfg config.LLM) (llm.Provider, error) {
	p, err := llm.NewProvider(ctx, llm.Config{
		Provider:    cfg.Provider,
		APIKey:      cfg.Key(),
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize LLM: %w", err)
	}
	return p, nil
}

// loadSchema opens the shared pool used for introspection. Failures only
// disable the live schema.
func (a *app) loadSchema(ctx context.Context) {
	db, err := sql.Open(a.cfg.DB.Driver, a.cfg.DB.DSN())
	if err != nil {
		a.logger.Warn("open database for schema", zap.Error(err))
		return
	}
	a.schemaDB = db

	ctx, cancel := context.WithTimeout(ctx, schemaLoadTimeout)
	defer cancel()
	if err := a.schema.Load(ctx, db); err != nil {
		a.logger.Warn("failed to load schema", zap.Error(err))
		return
	}
	a.logger.Info("loaded schema", zap.Int("tables", a.schema.Count()))
}

// schemaDocument is the schema text embedded in the model instructions.
func (a *app) schemaDocument() (string, error) {
	doc, err := a.cfg.Analyze.ReadSchemaFile()
	if err != nil {
		return "", err
	}
	if doc == "" {
		doc = classify.DefaultSchema
	}
	if a.cfg.Analyze.IntrospectSchema {
		doc = classify.ComposeSchema(doc, a.schema.Text())
	}
	return doc, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.history.Close(ctx); err != nil {
		a.logger.Warn("close history", zap.Error(err))
	}
	if a.schemaDB != nil {
		_ = a.schemaDB.Close()
	}
	if a.provider != nil {
		if err := llm.Close(a.provider); err != nil {
			a.logger.Warn("close LLM provider", zap.Error(err))
		}
	}
}
