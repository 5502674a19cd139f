// Package dispatch routes a classified model response to the executor or
// straight back to the client.
package dispatch

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/thlee33/ai-sql-map/internal/apperrors"
	"github.com/thlee33/ai-sql-map/internal/classify"
	"github.com/thlee33/ai-sql-map/internal/geo"
)

// GenerationFailedText is returned when the model classified the request as
// spatial but produced no SQL.
const GenerationFailedText = "The AI did not generate an SQL query."

const unknownErrorText = "unknown error"

// Classifier turns text into a classified response.
type Classifier interface {
	Classify(ctx context.Context, text string) classify.Response
}

// Executor runs SQL and returns a FeatureCollection.
type Executor interface {
	Execute(ctx context.Context, sql string) (*geo.Collection, error)
}

// CommandReply instructs the map client to perform a view change.
type CommandReply struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AnswerReply carries a textual answer.
type AnswerReply struct {
	AnswerText string `json:"answer_text"`
}

// ErrorReply carries a failure. Query is omitted when no SQL was involved.
type ErrorReply struct {
	Error string `json:"error"`
	Query string `json:"query,omitempty"`
}

// Outcome is the reply for the client plus what happened, for logs and history.
type Outcome struct {
	Reply any
	Kind  string // response tag, or "" when the classifier gave nothing usable
	SQL   string
	Err   error
}

// Dispatcher holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	classifier Classifier
	executor   Executor
	logger     *zap.Logger
}

func New(classifier Classifier, executor Executor, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		classifier: classifier,
		executor:   executor,
		logger:     logger.Named("dispatch"),
	}
}

// Analyze classifies text and produces exactly one reply.
func (d *Dispatcher) Analyze(ctx context.Context, text string) Outcome {
	resp := d.classifier.Classify(ctx, text)
	d.logger.Info("classified", zap.String("response", classify.String(resp)))

	switch r := resp.(type) {
	case classify.SpatialQuery:
		return d.runQuery(ctx, r.SQL)

	case classify.ClientCommand:
		return Outcome{
			Reply: CommandReply{Type: classify.TypeClientCommand, Content: r.Token},
			Kind:  classify.TypeClientCommand,
		}

	case classify.GeneralAnswer:
		out := Outcome{
			Reply: AnswerReply{AnswerText: r.Text},
			Kind:  classify.TypeGeneralAnswer,
		}
		if r.Kind != "" {
			out.Err = apperrors.New(r.Kind, r.Text)
		}
		return out

	case classify.Unrecognized:
		content := r.Content
		if strings.TrimSpace(content) == "" {
			content = unknownErrorText
		}
		d.logger.Warn("unrecognized response type", zap.String("type", r.Tag))
		return Outcome{
			Reply: AnswerReply{AnswerText: "An error occurred: " + content},
			Kind:  r.Tag,
			Err:   apperrors.New(apperrors.AdapterUnparseable, "unrecognized response type "+r.Tag),
		}
	}

	return Outcome{
		Reply: AnswerReply{AnswerText: "An error occurred: " + unknownErrorText},
		Err:   apperrors.New(apperrors.AdapterUnparseable, "no response"),
	}
}

func (d *Dispatcher) runQuery(ctx context.Context, raw string) Outcome {
	sql := classify.StripTerminator(raw)
	out := Outcome{Kind: classify.TypeSpatialQuery, SQL: sql}

	if sql == "" {
		out.Reply = ErrorReply{Error: GenerationFailedText}
		out.Err = apperrors.New(apperrors.GenerationEmpty, GenerationFailedText)
		return out
	}

	fc, err := d.executor.Execute(ctx, sql)
	if err != nil {
		var qe *geo.QueryError
		if errors.As(err, &qe) {
			out.Reply = ErrorReply{Error: qe.Message, Query: qe.Query}
			out.Err = apperrors.Wrap(qe.Kind, "execute query", err)
		} else {
			out.Reply = ErrorReply{Error: err.Error(), Query: sql}
			out.Err = apperrors.Wrap(apperrors.QueryFailed, "execute query", err)
		}
		return out
	}

	out.Reply = fc
	return out
}
