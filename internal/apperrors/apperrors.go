// Package apperrors defines typed errors with categories for reporting.
// Every failure on the analyze path is mapped to one Kind so that logs and the
// audit trail can tell a refused model answer apart from a broken query.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// AdapterRefused indicates the model returned nothing or declined to answer.
	AdapterRefused Kind = "adapter_refused"
	// AdapterUnavailable indicates the model API could not be reached.
	AdapterUnavailable Kind = "adapter_unavailable"
	// AdapterUnparseable indicates the model output held no usable JSON object.
	AdapterUnparseable Kind = "adapter_unparseable"
	// GenerationEmpty indicates a SPATIAL_QUERY answer without SQL.
	GenerationEmpty Kind = "generation_empty"
	// ConfigMissing indicates required connection settings are unset.
	ConfigMissing Kind = "config_missing"
	// StatementRejected indicates the statement guard refused the SQL.
	StatementRejected Kind = "statement_rejected"
	// QueryFailed indicates the database rejected or failed the query.
	QueryFailed Kind = "query_failed"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the Kind of the first *E in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
