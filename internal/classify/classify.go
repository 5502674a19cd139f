// Package classify turns free text into a classified model response.
//
// The model is asked for one JSON object {"type": ..., "content": ...}. Its
// output is not trusted to be clean: the object is cut out of whatever prose
// or code fences surround it, and every failure (refusal, no JSON, bad JSON)
// degrades to a GeneralAnswer instead of an error.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/thlee33/ai-sql-map/internal/apperrors"
	"github.com/thlee33/ai-sql-map/internal/config"
	"github.com/thlee33/ai-sql-map/internal/llm"
	"github.com/thlee33/ai-sql-map/internal/logging"
)

// Response tags.
const (
	TypeSpatialQuery  = "SPATIAL_QUERY"
	TypeClientCommand = "CLIENT_COMMAND"
	TypeGeneralAnswer = "GENERAL_ANSWER"
)

// Fixed fallback answers.
const (
	RefusedText       = "The AI declined to answer this request."
	NotUnderstoodText = "Sorry, I could not understand the request."
	processingPrefix  = "An error occurred while processing the AI response: "
)

// Response is one of SpatialQuery, ClientCommand, GeneralAnswer or Unrecognized.
type Response interface {
	Type() string
}

// SpatialQuery carries SQL to run against the spatial database.
type SpatialQuery struct {
	SQL string
}

// ClientCommand carries a map control token for the client.
type ClientCommand struct {
	Token string
}

// GeneralAnswer carries user-facing text.
type GeneralAnswer struct {
	Text string
	// Kind is set when the answer is a fallback for a failure.
	Kind apperrors.Kind
}

// Unrecognized is a well-formed object whose type tag is not one of the three.
type Unrecognized struct {
	Tag     string
	Content string
}

func (SpatialQuery) Type() string   { return TypeSpatialQuery }
func (ClientCommand) Type() string  { return TypeClientCommand }
func (GeneralAnswer) Type() string  { return TypeGeneralAnswer }
func (u Unrecognized) Type() string { return u.Tag }

// envelope is the wire shape requested from the model.
type envelope struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ExtractJSON returns the substring from the first '{' to the last '}'.
func ExtractJSON(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// ErrNoJSON is returned by Decode when the output holds no brace pair.
var ErrNoJSON = errors.New("no JSON object in model output")

// Decode parses model output into a Response.
func Decode(raw string) (Response, error) {
	return decode(raw, false)
}

func decode(raw string, repair bool) (Response, error) {
	obj, ok := ExtractJSON(raw)
	if !ok {
		return nil, ErrNoJSON
	}

	var env envelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		if !repair {
			return nil, err
		}
		repaired, rerr := jsonrepair.JSONRepair(obj)
		if rerr != nil {
			return nil, err
		}
		if rerr := json.Unmarshal([]byte(repaired), &env); rerr != nil {
			return nil, err
		}
	}

	switch tag := strings.ToUpper(strings.TrimSpace(env.Type)); tag {
	case TypeSpatialQuery:
		return SpatialQuery{SQL: env.Content}, nil
	case TypeClientCommand:
		return ClientCommand{Token: strings.TrimSpace(env.Content)}, nil
	case TypeGeneralAnswer:
		return GeneralAnswer{Text: env.Content}, nil
	default:
		return Unrecognized{Tag: env.Type, Content: env.Content}, nil
	}
}

// Classifier asks the model about one utterance at a time.
type Classifier struct {
	provider llm.Provider
	system   string
	mode     string
	repair   bool
	logger   *zap.Logger
}

// Options configures a Classifier.
type Options struct {
	Mode       string // config.ModeClassify or config.ModeSQL
	Schema     string // schema document embedded in the instructions
	RepairJSON bool   // retry malformed JSON through jsonrepair
}

// New builds a Classifier around provider.
func New(provider llm.Provider, opts Options, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema := opts.Schema
	if strings.TrimSpace(schema) == "" {
		schema = DefaultSchema
	}
	mode := opts.Mode
	if mode == "" {
		mode = config.ModeClassify
	}

	system := BuildClassifierPrompt(schema)
	if mode == config.ModeSQL {
		system = BuildSQLPrompt(schema)
	}

	return &Classifier{
		provider: provider,
		system:   system,
		mode:     mode,
		repair:   opts.RepairJSON,
		logger:   logger.Named("classifier"),
	}
}

// SystemPrompt returns the instruction document sent with every request.
func (c *Classifier) SystemPrompt() string {
	return c.system
}

// Classify never returns an error: failures become a GeneralAnswer.
func (c *Classifier) Classify(ctx context.Context, text string) Response {
	c.logger.Debug("sending question", zap.String("provider", c.provider.Name()), zap.String("text", text))

	raw, err := c.provider.Complete(ctx, llm.Request{
		System: c.system,
		Prompt: text,
		JSON:   c.mode == config.ModeClassify,
	})
	if errors.Is(err, llm.ErrEmptyResponse) || (err == nil && strings.TrimSpace(raw) == "") {
		c.logger.Warn("model returned no answer", zap.Error(err))
		return GeneralAnswer{Text: RefusedText, Kind: apperrors.AdapterRefused}
	}
	if err != nil {
		c.logger.Error("model request failed", zap.Error(err))
		return GeneralAnswer{Text: processingPrefix + err.Error(), Kind: apperrors.AdapterUnavailable}
	}

	c.logger.Debug("model answered", zap.String("raw", logging.Truncate(raw, 2000)))

	if c.mode == config.ModeSQL {
		return SpatialQuery{SQL: StripCodeFence(raw)}
	}

	resp, err := decode(raw, c.repair)
	switch {
	case errors.Is(err, ErrNoJSON):
		c.logger.Warn("no JSON object in model output")
		return GeneralAnswer{Text: NotUnderstoodText, Kind: apperrors.AdapterUnparseable}
	case err != nil:
		c.logger.Warn("model output is not valid JSON", zap.Error(err))
		return GeneralAnswer{Text: processingPrefix + err.Error(), Kind: apperrors.AdapterUnparseable}
	}

	if cmd, ok := resp.(ClientCommand); ok && !IsKnownCommand(cmd.Token) {
		c.logger.Warn("client command outside vocabulary", zap.String("token", cmd.Token))
	}
	return resp
}

// StripCodeFence removes markdown code fences around a bare SQL answer.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"```sql", "```SQL", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// StripTerminator removes trailing whitespace and statement terminators.
func StripTerminator(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}

// String renders a response for logs.
func String(r Response) string {
	switch v := r.(type) {
	case SpatialQuery:
		return fmt.Sprintf("%s(%s)", TypeSpatialQuery, logging.Truncate(v.SQL, 200))
	case ClientCommand:
		return fmt.Sprintf("%s(%s)", TypeClientCommand, v.Token)
	case GeneralAnswer:
		return fmt.Sprintf("%s(%s)", TypeGeneralAnswer, logging.Truncate(v.Text, 200))
	case Unrecognized:
		return fmt.Sprintf("UNRECOGNIZED(%s)", v.Tag)
	}
	return "<nil>"
}
