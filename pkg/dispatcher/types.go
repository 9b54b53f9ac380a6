package dispatcher

import "github.com/agentsociety/runtime/pkg/contentrouter"

// ComputeStatus is an agent's position in the per-agent processing state
// machine.
type ComputeStatus string

const (
	StatusIdle       ComputeStatus = "idle"
	StatusProcessing ComputeStatus = "processing"
	StatusWaitingLLM ComputeStatus = "waiting_llm"
)

// AbortResult is the outcome of abortAgentLlmCall.
type AbortResult struct {
	OK      bool
	Aborted bool
	Reason  string
}

// ShutdownSummary reports what happened during a graceful shutdown.
type ShutdownSummary struct {
	OK              bool
	DurationMs      int64
	PendingMessages int
	ActiveAgents    int
}

// Behavior is the per-agent-kind message handler. For LLM-backed agents
// this wraps a toolloop.Loop invocation; the dispatcher itself is agnostic
// to what a behavior does with a message.
type Behavior func(dctx DispatchContext) error

// DispatchContext is what a Behavior receives for one inbound message.
type DispatchContext struct {
	AgentID     string
	TaskID      string
	Text        string
	Attachments []contentrouter.RawAttachment
}
