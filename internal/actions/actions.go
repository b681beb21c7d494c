// Package actions provides the action provider consumed by the step executor.
//
// Actions are modeled as a registered-handler map rather than string-keyed
// dispatch: the set of supported names is known up front, so scenario action
// steps are validated against it at registration time instead of failing
// mid-conversation.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/replyflow/replyflow/internal/models"
)

// Handler executes one named action. It receives the step's authored params
// and a read-only view of the flow context, and returns key-value pairs to
// merge into the context.
type Handler func(ctx context.Context, params map[string]any, flowContext map[string]any) (map[string]any, error)

// Provider is the boundary interface the step executor consumes.
type Provider interface {
	Invoke(ctx context.Context, name string, params map[string]any, flowContext map[string]any) (map[string]any, error)
	Names() []string
}

// Registry is a Provider backed by a handler map.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates an action name with a handler. Re-registering a name
// replaces the previous handler.
func (r *Registry) Register(name string, h Handler) {
	slog.Debug("ActionRegistry Register", "action", name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names returns the registered action names, sorted for stable output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the handler for name. Unknown names return
// ErrActionNotSupported; handler failures are wrapped in ActionExecutionError
// and propagated, never swallowed.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any, flowContext map[string]any) (map[string]any, error) {
	slog.Debug("ActionRegistry Invoke", "action", name)

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		slog.Error("ActionRegistry Invoke unknown action", "action", name)
		return nil, fmt.Errorf("action %s: %w", name, models.ErrActionNotSupported)
	}

	result, err := h(ctx, params, flowContext)
	if err != nil {
		slog.Error("ActionRegistry Invoke handler failed", "error", err, "action", name)
		return nil, &models.ActionExecutionError{Action: name, Err: err}
	}
	slog.Debug("ActionRegistry Invoke succeeded", "action", name, "resultKeys", len(result))
	return result, nil
}
