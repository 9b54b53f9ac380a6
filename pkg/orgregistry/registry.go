// Package orgregistry is the source of truth for roles and agents:
// metadata, parentage, and termination events.
package orgregistry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// Registry is the Organization Registry.
type Registry struct {
	mu           sync.RWMutex
	roles        map[string]*Role
	agents       map[string]*Agent
	terminations []TerminationEvent
	taskEntry    map[string]string // taskId -> entryAgentId
}

// New creates a Registry pre-populated with the two system roles and their
// singleton agents.
func New() *Registry {
	r := &Registry{
		roles:     make(map[string]*Role),
		agents:    make(map[string]*Agent),
		taskEntry: make(map[string]string),
	}
	now := time.Now()
	r.roles[RootID] = &Role{RoleID: RootID, Name: "root", CreatedAt: now, Status: RoleActive}
	r.roles[UserID] = &Role{RoleID: UserID, Name: "user", CreatedAt: now, Status: RoleActive}
	r.agents[RootID] = &Agent{AgentID: RootID, RoleID: RootID, CreatedAt: now, Status: AgentActive}
	r.agents[UserID] = &Agent{AgentID: UserID, RoleID: UserID, CreatedAt: now, Status: AgentActive}
	return r
}

// CreateRole registers a new role.
func (r *Registry) CreateRole(in RoleInput) (*Role, error) {
	if in.Name == "" {
		return nil, apperr.New(apperr.InvalidArgs)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	role := &Role{
		RoleID:       uuid.NewString(),
		Name:         in.Name,
		RolePrompt:   in.RolePrompt,
		LLMServiceID: in.LLMServiceID,
		ToolGroups:   in.ToolGroups,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    time.Now(),
		Status:       RoleActive,
	}
	r.roles[role.RoleID] = role
	slog.Info("orgregistry: role created", "roleId", role.RoleID, "name", role.Name)
	return role.Clone(), nil
}

// UpdateRole mutates the mutable fields of a non-deleted role.
func (r *Registry) UpdateRole(roleID string, patch RolePatch) (*Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[roleID]
	if !ok {
		return nil, apperr.New(apperr.RoleNotFound)
	}
	if role.Status == RoleDeleted {
		return nil, apperr.New(apperr.RoleAlreadyDeleted)
	}
	if patch.RolePrompt != nil {
		role.RolePrompt = *patch.RolePrompt
	}
	if patch.LLMServiceID != nil {
		role.LLMServiceID = *patch.LLMServiceID
	}
	if patch.ToolGroups != nil {
		role.ToolGroups = *patch.ToolGroups
	}
	slog.Info("orgregistry: role updated", "roleId", roleID)
	return role.Clone(), nil
}

// DeleteRole soft-deletes a role and transitively any role whose createdBy
// chain roots in an agent of the deleted role. Returns the affected agent
// ids (agents of the deleted roles, still active — deletion does not
// terminate them) and the ids of every role marked deleted.
func (r *Registry) DeleteRole(roleID string) (affectedAgents []string, affectedRoles []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[roleID]
	if !ok {
		return nil, nil, apperr.New(apperr.RoleNotFound)
	}
	if role.RoleID == RootID || role.RoleID == UserID {
		return nil, nil, apperr.New(apperr.CannotDeleteSystemRole)
	}
	if role.Status == RoleDeleted {
		return nil, nil, apperr.New(apperr.RoleAlreadyDeleted)
	}

	deletedRoles := map[string]bool{roleID: true}
	role.Status = RoleDeleted
	affectedRoles = append(affectedRoles, roleID)

	// Snapshot agents of roles in deletedRoles, then fixed-point expand:
	// any other active role created by one of those agents is cascaded.
	for {
		agentsOfDeleted := map[string]bool{}
		for _, a := range r.agents {
			if deletedRoles[a.RoleID] {
				agentsOfDeleted[a.AgentID] = true
			}
		}
		changed := false
		for _, other := range r.roles {
			if other.Status != RoleActive || deletedRoles[other.RoleID] {
				continue
			}
			if other.CreatedBy != "" && agentsOfDeleted[other.CreatedBy] {
				other.Status = RoleDeleted
				deletedRoles[other.RoleID] = true
				affectedRoles = append(affectedRoles, other.RoleID)
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for _, a := range r.agents {
		if deletedRoles[a.RoleID] {
			affectedAgents = append(affectedAgents, a.AgentID)
		}
	}

	slog.Info("orgregistry: role deleted", "roleId", roleID, "cascadedRoles", len(affectedRoles)-1, "affectedAgents", len(affectedAgents))
	return affectedAgents, affectedRoles, nil
}

// GetRole returns a role by id.
func (r *Registry) GetRole(roleID string) (*Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[roleID]
	if !ok {
		return nil, false
	}
	return role.Clone(), true
}

// ListRoles returns a snapshot of all roles.
func (r *Registry) ListRoles() []*Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role.Clone())
	}
	return out
}

// CreateAgent registers a new agent. Callers (the Dispatcher) are
// responsible for validating parentage/role rules before calling this; the
// registry only enforces that the referenced role exists and is not
// deleted.
func (r *Registry) CreateAgent(in AgentInput) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[in.RoleID]
	if !ok {
		return nil, apperr.New(apperr.RoleNotFound)
	}
	if role.Status == RoleDeleted {
		return nil, apperr.New(apperr.RoleAlreadyDeleted)
	}

	agent := &Agent{
		AgentID:       uuid.NewString(),
		RoleID:        in.RoleID,
		ParentAgentID: in.ParentAgentID,
		CreatedAt:     time.Now(),
		Status:        AgentActive,
		DisplayName:   in.DisplayName,
	}
	r.agents[agent.AgentID] = agent
	slog.Info("orgregistry: agent created", "agentId", agent.AgentID, "roleId", agent.RoleID, "parentAgentId", agent.ParentAgentID)
	return agent.Clone(), nil
}

// GetAgent returns an agent by id, regardless of status.
func (r *Registry) GetAgent(agentID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// ListAgents returns a snapshot of all agents.
func (r *Registry) ListAgents() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Clone())
	}
	return out
}

// RecordTermination transitions an agent to terminated exactly once and
// appends a termination event. Authorization (caller must be the direct
// parent) is the Dispatcher's responsibility; this method only
// enforces the state machine.
func (r *Registry) RecordTermination(agentID, by, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return apperr.New(apperr.AgentNotFound)
	}
	if a.AgentID == RootID || a.AgentID == UserID {
		return apperr.New(apperr.CannotDeleteSystemAgent)
	}
	if a.Status == AgentTerminated {
		return apperr.New(apperr.AgentAlreadyTerminated)
	}

	now := time.Now()
	a.Status = AgentTerminated
	a.TerminatedAt = &now
	a.TerminatedBy = by

	r.terminations = append(r.terminations, TerminationEvent{
		AgentID:      agentID,
		TerminatedBy: by,
		Reason:       reason,
		At:           now,
	})
	slog.Info("orgregistry: agent terminated", "agentId", agentID, "by", by, "reason", reason)
	return nil
}

// Terminations returns a snapshot of all recorded termination events.
func (r *Registry) Terminations() []TerminationEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TerminationEvent(nil), r.terminations...)
}

// --- bus.IsolationPolicy & dispatcher parentage helpers ---

// IsSystemAgent reports whether agentID is the root or user singleton.
func (r *Registry) IsSystemAgent(agentID string) bool {
	return agentID == RootID || agentID == UserID
}

// IsSelfOrDescendant reports whether candidate is ancestor itself or a
// transitive descendant of ancestor via ParentAgentID.
func (r *Registry) IsSelfOrDescendant(candidate, ancestor string) bool {
	if candidate == ancestor {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur := candidate
	seen := map[string]bool{}
	for {
		a, ok := r.agents[cur]
		if !ok || a.ParentAgentID == "" || seen[cur] {
			return false
		}
		seen[cur] = true
		if a.ParentAgentID == ancestor {
			return true
		}
		cur = a.ParentAgentID
	}
}

// RoleDescendsFromAgent reports whether roleID was created by agentID
// itself, or by an agent in agentID's descendant subtree — i.e. whether
// roleID sits in the role lineage rooted at agentID.
func (r *Registry) RoleDescendsFromAgent(roleID, agentID string) bool {
	r.mu.RLock()
	role, ok := r.roles[roleID]
	r.mu.RUnlock()
	if !ok || role.CreatedBy == "" {
		return false
	}
	if role.CreatedBy == agentID {
		return true
	}
	return r.IsSelfOrDescendant(role.CreatedBy, agentID)
}

// EntryAgentOf returns the entry agent recorded for taskID, if any.
func (r *Registry) EntryAgentOf(taskID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.taskEntry[taskID]
	return a, ok
}

// EnsureEntryAgent records agentID as taskID's entry agent if none is
// recorded yet, and returns whichever entry agent ends up associated with
// taskID.
func (r *Registry) EnsureEntryAgent(taskID, agentID string) string {
	if taskID == "" {
		return agentID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.taskEntry[taskID]; ok {
		return existing
	}
	r.taskEntry[taskID] = agentID
	return agentID
}
