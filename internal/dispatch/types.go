// Package dispatch routes classified intents to registered action handlers,
// gating execution on confidence and required entities.
package dispatch

import (
	"context"
	"errors"

	"github.com/normanking/voxassist/internal/intent"
)

// Common errors
var (
	ErrUnknownIntent = errors.New("no handler registered for intent")
)

// FailureKind classifies why a dispatch did not execute or did not succeed.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureLowConfidence FailureKind = "low_confidence"
	FailureMissingEntity FailureKind = "missing_entity"
	FailureExecution     FailureKind = "execution_error"
)

// Request carries a classified command to a handler. Passed by value.
// Text is the raw utterance, for handlers whose intent carries no slots.
type Request struct {
	Intent    intent.Intent
	Text      string
	Entities  map[string]string
	UserID    string
	SessionID string
}

// Result is the outcome of a dispatch. Message is spoken back to the user
// whether or not the action succeeded.
type Result struct {
	Success bool
	Message string
	Failure FailureKind
	Data    any
}

// Handler executes the side effect for one intent. Handlers are owned by the
// surrounding application and may perform their own network or database I/O.
type Handler interface {
	Handle(ctx context.Context, req Request) (*Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (*Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
