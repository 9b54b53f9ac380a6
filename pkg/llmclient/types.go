package llmclient

import (
	"context"

	"github.com/agentsociety/runtime/pkg/conversation"
)

// ToolSpec describes a tool the model may call, in the shape most chat
// completion wire formats expect.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// Request is one chat completion call.
type Request struct {
	Messages    []conversation.Turn
	Tools       []ToolSpec
	Temperature float64
	AgentID     string // propagated into retry/log context, never sent upstream
}

// Response is a single assistant turn produced by the model.
type Response struct {
	Content          string
	ToolCalls        []conversation.ToolCall
	ReasoningContent string
	Usage            Usage
}

// Usage reports token accounting, when the provider supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the contract the Tool-Call Loop calls through the Concurrency
// Controller.
type Client interface {
	Chat(ctx context.Context, req Request) (Response, error)
}
