package bridge

import (
	"context"
	"fmt"
	"sync"
)

// ToolFunc is a registered tool handler. Its return value is placed
// verbatim into the response result.
type ToolFunc func(ctx context.Context, args map[string]any, workspace string) (any, error)

// Registry maps tool names to handlers. It implements Executor and is
// the default registration table for both server variants; names are
// validated when registered, not when called.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolFunc
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolFunc)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(name string, fn ToolFunc) error {
	if name == "" {
		return fmt.Errorf("tool name required")
	}
	if fn == nil {
		return fmt.Errorf("tool handler required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = fn
	return nil
}

// MustRegister is Register for startup wiring; it panics on conflict.
func (r *Registry) MustRegister(name string, fn ToolFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Names returns the registered tool names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute implements Executor.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, workspace string) (any, error) {
	r.mu.RLock()
	fn, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return fn(ctx, args, workspace)
}
