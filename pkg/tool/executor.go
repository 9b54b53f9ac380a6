package tool

import (
	"context"
	"encoding/json"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// Executor dispatches validated tool calls through the Registry, enforcing
// per-role gating and that every result is JSON-serializable.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an Executor over registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs call after checking toolGroups gating. toolGroups == nil
// means the role allows every group.
func (e *Executor) Execute(ctx context.Context, call Call, toolGroups []string) (any, error) {
	allowed, err := e.registry.Allowed(call.Name, toolGroups)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.New(apperr.ToolNotAllowedForRole)
	}

	_, handler, _ := e.registry.Get(call.Name)
	result, err := handler(ctx, call)
	if err != nil {
		return nil, err
	}

	if _, err := json.Marshal(result); err != nil {
		return nil, apperr.Wrap(apperr.NonJSONSerializableReturn, err, call.Name)
	}
	return result, nil
}
