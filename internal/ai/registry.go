package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Factory builds a provider for a model name. The server registers one
// factory per configured backend ("openai", "ollama"); tests register fakes.
type Factory func(ctx context.Context, model string) (Provider, error)

// Registry resolves the configured provider by name at send time, so a
// backend switch needs no rewiring of the chat service.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get builds a provider instance for the named backend. An empty model keeps
// the factory's configured default.
func (r *Registry) Get(ctx context.Context, name, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ai: no provider registered as %q", name)
	}
	return f(ctx, model)
}
