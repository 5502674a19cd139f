package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by a provider that could not be initialized.
var ErrNotConfigured = errors.New("LLM not configured")

// Unconfigured stands in for a provider whose settings are incomplete, so the
// service can still start and answer every request with the reason.
type Unconfigured struct {
	name   string
	reason error
}

func NewUnconfigured(name string, reason error) *Unconfigured {
	return &Unconfigured{name: name, reason: reason}
}

func (u *Unconfigured) Name() string { return u.name }

func (u *Unconfigured) Complete(context.Context, Request) (string, error) {
	if u.reason == nil {
		return "", ErrNotConfigured
	}
	return "", fmt.Errorf("%w: %v", ErrNotConfigured, u.reason)
}
