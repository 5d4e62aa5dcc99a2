// Package adapter defines the contract the harness consumes to talk to
// target and attacker models. Vendor implementations live outside the core;
// the harness treats adapters as opaque and only assumes the error shapes
// listed in the classifier's allow-list.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"aipop/internal/types"
)

// Adapter is one model endpoint.
type Adapter interface {
	// Name identifies the adapter for reports and cache keys.
	Name() string
	// Model returns the model identifier the adapter targets.
	Model() string
	// Invoke sends one prompt and returns the model's response.
	Invoke(ctx context.Context, prompt string) (*types.ModelResponse, error)
}

// BatchAdapter is optionally implemented by adapters with a native batch
// endpoint. Callers fall back to sequential Invoke when absent.
type BatchAdapter interface {
	Adapter
	BatchQuery(ctx context.Context, prompts []string) ([]*types.ModelResponse, error)
}

// Factory constructs an adapter from free-form options.
type Factory func(options map[string]interface{}) (Adapter, error)

// Registry maps adapter names to factories. The external CLI layer registers
// vendor adapters here; the core only resolves by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create resolves name and builds an adapter.
func (r *Registry) Create(name string, options map[string]interface{}) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown adapter %q (registered: %v)", name, r.Names())
	}
	return f(options)
}

// Names lists registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BatchQuery invokes a batch when the adapter supports it, otherwise loops.
func BatchQuery(ctx context.Context, a Adapter, prompts []string) ([]*types.ModelResponse, error) {
	if ba, ok := a.(BatchAdapter); ok {
		return ba.BatchQuery(ctx, prompts)
	}
	out := make([]*types.ModelResponse, 0, len(prompts))
	for _, p := range prompts {
		resp, err := a.Invoke(ctx, p)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}
