package toolloop

import (
	"github.com/agentsociety/runtime/pkg/contentrouter"
)

// DefaultMaxToolRounds is the per-inbound-message budget for model↔tool
// rounds.
const DefaultMaxToolRounds = 5

// Inbound is one message handed to the loop for an agent to process.
type Inbound struct {
	AgentID     string
	TaskID      string
	Text        string
	Attachments []contentrouter.RawAttachment
}

// AgentContext carries everything the loop needs about the agent running
// this turn: its composed prompt pieces and its LLM/capability selection.
type AgentContext struct {
	AgentID      string
	IsSystem     bool // root/user: base_prompt and tool_rules are omitted
	BasePrompt   string
	RolePrompt   string
	ToolRules    string
	ToolGroups   []string // nil = all groups allowed
	Capability   contentrouter.Capability
}

// Result is the outcome of running the loop to completion for one inbound
// message.
type Result struct {
	RoundsUsed     int
	HitRoundLimit  bool
	FinalResponse  string
}
