// Package history keeps an optional audit trail of analyze requests.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one analyzed request.
type Entry struct {
	ID         string    `bson:"_id" json:"id"`
	Text       string    `bson:"text" json:"text"`
	Type       string    `bson:"type,omitempty" json:"type,omitempty"`
	SQL        string    `bson:"sql,omitempty" json:"sql,omitempty"`
	ErrorKind  string    `bson:"error_kind,omitempty" json:"errorKind,omitempty"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
	Features   int       `bson:"features" json:"features"`
	DurationMs int64     `bson:"duration_ms" json:"durationMs"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
}

// NewEntry stamps an entry with a fresh id and the current time.
func NewEntry(text string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// Recorder stores entries. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close(ctx context.Context) error
	Enabled() bool
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error          { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Close(context.Context) error                  { return nil }
func (Nop) Enabled() bool                                { return false }
