package tool

import "context"

// Definition describes a callable tool: its name, a model-facing
// description, a JSON schema for its parameters, and the tool groups it
// belongs to for per-role gating.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Groups      []string
}

// Call is one invocation of a tool, as dispatched by the Tool-Call Loop.
type Call struct {
	ToolCallID string
	AgentID    string
	TaskID     string
	Name       string
	Args       map[string]any
}

// Handler executes a Call and returns a JSON-serializable result.
type Handler func(ctx context.Context, call Call) (any, error)

// TaskBrief is the structured brief required by spawn_agent.
type TaskBrief struct {
	Objective          string   `mapstructure:"objective" json:"objective" jsonschema:"required,description=What the spawned agent must accomplish"`
	Constraints        []string `mapstructure:"constraints" json:"constraints,omitempty" jsonschema:"description=Constraints the spawned agent must respect"`
	Inputs             []string `mapstructure:"inputs" json:"inputs,omitempty" jsonschema:"description=Inputs available to the spawned agent"`
	Outputs            []string `mapstructure:"outputs" json:"outputs,omitempty" jsonschema:"description=Outputs the spawned agent is expected to produce"`
	CompletionCriteria string   `mapstructure:"completion_criteria" json:"completion_criteria" jsonschema:"required,description=Criteria for considering the task complete"`
}
