package orgregistry

import "time"

// System role/agent identities: singletons that are never
// terminated or deleted.
const (
	RootID = "root"
	UserID = "user"
)

// RoleStatus is a role's soft-delete state.
type RoleStatus string

const (
	RoleActive  RoleStatus = "active"
	RoleDeleted RoleStatus = "deleted"
)

// Role is a template for agent system prompt, allowed tool groups, and
// preferred LLM service.
type Role struct {
	RoleID       string
	Name         string
	RolePrompt   string
	LLMServiceID string   // "" = default service
	ToolGroups   []string // nil = all groups allowed
	CreatedBy    string   // agentId of creator, "" for system roles
	CreatedAt    time.Time
	Status       RoleStatus
}

// Clone returns a deep copy safe to hand to callers.
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	if r.ToolGroups != nil {
		c.ToolGroups = append([]string(nil), r.ToolGroups...)
	}
	return &c
}

// AgentStatus is an agent's lifecycle state.
type AgentStatus string

const (
	AgentActive     AgentStatus = "active"
	AgentTerminated AgentStatus = "terminated"
)

// Agent is a stateful actor. Invariant: an agent is in the active
// registry iff Status == AgentActive.
type Agent struct {
	AgentID        string
	RoleID         string
	ParentAgentID  string // "" for system agents
	CreatedAt      time.Time
	Status         AgentStatus
	TerminatedAt   *time.Time
	TerminatedBy   string
	DisplayName    string
}

// Clone returns a deep copy safe to hand to callers.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	if a.TerminatedAt != nil {
		t := *a.TerminatedAt
		c.TerminatedAt = &t
	}
	return &c
}

// IsSystem reports whether the agent is the root or user singleton.
func (a *Agent) IsSystem() bool {
	return a.AgentID == RootID || a.AgentID == UserID
}

// TerminationEvent records the completion of terminateAgent.
type TerminationEvent struct {
	AgentID      string
	TerminatedBy string
	Reason       string
	At           time.Time
}

// RoleInput describes a new role (createRole).
type RoleInput struct {
	Name         string
	RolePrompt   string
	LLMServiceID string
	ToolGroups   []string
	CreatedBy    string
}

// RolePatch describes the mutable fields of updateRole; nil fields are left
// unchanged.
type RolePatch struct {
	RolePrompt   *string
	LLMServiceID *string
	ToolGroups   *[]string
}

// AgentInput describes a new agent (createAgent/spawnAgent).
type AgentInput struct {
	RoleID        string
	ParentAgentID string
	DisplayName   string
}
