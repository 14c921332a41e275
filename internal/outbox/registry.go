package outbox

import (
	"fmt"

	"github.com/mkthub/edi/internal/models"
)

// Registry maps command kinds to handlers. It is built once at startup and
// passed explicitly to the scheduler; a kind without a handler is a
// configuration error, not a runtime data error.
type Registry struct {
	handlers map[models.CommandKind]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.CommandKind]Handler)}
}

// Register adds a handler for a command kind. Registering the same kind twice
// is rejected so wiring mistakes surface at startup.
func (r *Registry) Register(kind models.CommandKind, h Handler) error {
	if kind == "" {
		return fmt.Errorf("command kind cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q cannot be nil", kind)
	}
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for command kind %q", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Resolve returns the handler for a command kind.
func (r *Registry) Resolve(kind models.CommandKind) (Handler, error) {
	h, exists := r.handlers[kind]
	if !exists {
		return nil, fmt.Errorf("no handler registered for command kind %q", kind)
	}
	return h, nil
}
