package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mkthub/edi/internal/models"
)

// NewCommand is the input for enqueueing an internal command. Enqueue happens
// in the same transaction as the domain change that requires the deferred
// effect, so the command is durable iff that change is durable.
type NewCommand struct {
	Kind        models.CommandKind
	Payload     json.RawMessage
	ScheduledAt time.Time
}

// Handler executes one command's side effect. A returned error is recorded on
// the command row and the command is marked processed, unless the error is
// marked Transient: then the claim is aborted and the command stays pending
// for a later poll cycle.
type Handler func(ctx context.Context, payload json.RawMessage) error

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as a transient infrastructure failure (storage or
// transport timeout, lock contention). The triggering command is left pending
// instead of being consumed, so the next poll cycle retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries a Transient marker anywhere in its
// chain.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
