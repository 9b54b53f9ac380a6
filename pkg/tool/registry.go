// Package tool is the Tool Registry & Executor: tool definitions, per-role
// gating, and dispatch of built-in tool calls.
package tool

import (
	"sync"

	"github.com/agentsociety/runtime/pkg/apperr"
)

type registered struct {
	def     Definition
	handler Handler
}

// Registry holds tool definitions and their handlers.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds or replaces a tool definition and its handler.
func (r *Registry) Register(def Definition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = registered{def: def, handler: handler}
}

// Get returns a tool's definition and handler.
func (r *Registry) Get(name string) (Definition, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Definition{}, nil, false
	}
	return t.def, t.handler, true
}

// List returns a snapshot of all registered tool definitions.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def)
	}
	return out
}

// Allowed reports whether every group the named tool belongs to is present
// in toolGroups, or toolGroups is nil (all groups allowed).
func (r *Registry) Allowed(name string, toolGroups []string) (bool, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return false, apperr.New(apperr.ToolNotFound)
	}
	if toolGroups == nil {
		return true, nil
	}
	allowed := make(map[string]bool, len(toolGroups))
	for _, g := range toolGroups {
		allowed[g] = true
	}
	for _, g := range t.def.Groups {
		if !allowed[g] {
			return false, nil
		}
	}
	return true, nil
}
