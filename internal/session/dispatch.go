package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/xonecas/tether/internal/engine"
)

// Dispatcher handles out-of-band host commands forwarded by the engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd engine.HostCommand) (any, error)
}

// UnknownCommandError reports a host command with no registered handler.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("session: unknown host command %q", e.Name)
}

// HandlerFunc handles one named host command.
type HandlerFunc func(ctx context.Context, cmd engine.HostCommand) (any, error)

// Registry is a name-keyed command dispatcher.
type Registry struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a command name, replacing any previous one.
func (r *Registry) Register(name string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Dispatch runs the handler for the command's name.
func (r *Registry) Dispatch(ctx context.Context, cmd engine.HostCommand) (any, error) {
	r.mu.Lock()
	h := r.handlers[cmd.Name]
	r.mu.Unlock()
	if h == nil {
		return nil, &UnknownCommandError{Name: cmd.Name}
	}
	return h(ctx, cmd)
}

var _ Dispatcher = (*Registry)(nil)
