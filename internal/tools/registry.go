package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/finance-agent/internal/apperr"
)

// Handler is pure over the Store plus its arguments: it must not mutate
// state, and any failure must be a *apperr.Error (spec.md §4.6/§7).
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool pairs a schema with its handler.
type Tool struct {
	Schema  Schema
	Handler Handler
}

// Registry is the name → (schema, handler) map the LLM Adapter and Agent
// Controller call into.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, overwriting any existing tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Schema.Name] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas lists every registered tool's schema, for handing to the LLM
// Adapter's provider-specific tool-declaration translation.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Schema)
	}
	return out
}

// Call validates args against the tool's schema, then invokes its
// handler. Validation happens here, at the registry boundary, never
// deferred into individual handlers (spec.md §4.6).
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown tool %q", name))
	}
	if err := ValidateArgs(t.Schema, args); err != nil {
		return nil, err
	}
	return t.Handler(ctx, args)
}
