// Package society wires the Message Bus, Organization Registry,
// Conversation Store, Concurrency Controller, Tool Registry, Tool-Call
// Loop, and Agent Dispatcher into one runnable system, and exposes the
// collaborator-facing operations an HTTP surface calls into.
package society

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentsociety/runtime/pkg/apperr"
	"github.com/agentsociety/runtime/pkg/bus"
	"github.com/agentsociety/runtime/pkg/concurrency"
	"github.com/agentsociety/runtime/pkg/contentrouter"
	"github.com/agentsociety/runtime/pkg/conversation"
	"github.com/agentsociety/runtime/pkg/dispatcher"
	"github.com/agentsociety/runtime/pkg/llmclient"
	"github.com/agentsociety/runtime/pkg/orgregistry"
	"github.com/agentsociety/runtime/pkg/tool"
	"github.com/agentsociety/runtime/pkg/toolloop"
)

// Options configures a new Society.
type Options struct {
	MaxConcurrentRequests int
	MaxToolRounds         int
	BasePrompt            string
	ToolRules             string
	DefaultServiceID      string
	// Services maps llmServiceId -> the Client to route that role's LLM
	// calls through, and the Capability that service declares.
	Services map[string]ServiceBinding
}

// ServiceBinding pairs an LLM client with the capability set it declares.
type ServiceBinding struct {
	Client     llmclient.Client
	Capability contentrouter.Capability
}

// AgentView is a snapshot of one agent for listAgents, including its live
// compute status.
type AgentView struct {
	*orgregistry.Agent
	ComputeStatus dispatcher.ComputeStatus
}

// Society is the assembled runtime.
type Society struct {
	bus           *bus.Bus
	registry      *orgregistry.Registry
	conversations *conversation.Store
	controller    *concurrency.Controller
	toolRegistry  *tool.Registry
	executor      *tool.Executor
	loop          *toolloop.Loop
	dispatcher    *dispatcher.Dispatcher

	services   map[string]ServiceBinding
	basePrompt string
	toolRules  string
}

// New assembles a Society around a fresh registry from orgregistry.New,
// which already carries root/user. Callers load role/service config via
// pkg/config before calling New.
func New(opts Options) *Society {
	registry := orgregistry.New()
	b := bus.New(registry)
	conversations := conversation.New()
	controller := concurrency.New(opts.MaxConcurrentRequests)
	toolRegistry := tool.NewRegistry()
	executor := tool.NewExecutor(toolRegistry)

	clients := make(map[string]llmclient.Client, len(opts.Services))
	for id, svc := range opts.Services {
		clients[id] = svc.Client
	}
	router := &routingClient{registry: registry, clients: clients, defaultServiceID: opts.DefaultServiceID}

	maxRounds := opts.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = toolloop.DefaultMaxToolRounds
	}
	loop := toolloop.New(conversations, controller, router, toolRegistry, executor, maxRounds)

	s := &Society{
		bus:           b,
		registry:      registry,
		conversations: conversations,
		controller:    controller,
		toolRegistry:  toolRegistry,
		executor:      executor,
		loop:          loop,
		services:      opts.Services,
		basePrompt:    opts.BasePrompt,
		toolRules:     opts.ToolRules,
	}

	var d *dispatcher.Dispatcher
	d = dispatcher.New(b, registry, conversations, controller, s.makeBehavior(func() *dispatcher.Dispatcher { return d }))
	s.dispatcher = d
	tool.RegisterBuiltins(toolRegistry, d, d, d, conversations)

	return s
}

// makeBehavior builds the per-message Behavior. getDispatcher is indirected
// through a closure because the Dispatcher must already exist to be handed
// to this Behavior, yet the Behavior must be handed to dispatcher.New to
// construct the Dispatcher in the first place — by the time a Behavior
// actually runs (asynchronously, off a bus event), the Dispatcher it closes
// over has long since been assigned.
func (s *Society) makeBehavior(getDispatcher func() *dispatcher.Dispatcher) dispatcher.Behavior {
	return func(dctx dispatcher.DispatchContext) error {
		d := getDispatcher()
		agent, ok := s.registry.GetAgent(dctx.AgentID)
		if !ok {
			return apperr.New(apperr.AgentNotFound)
		}
		role, _ := s.registry.GetRole(agent.RoleID)

		capability := contentrouter.DefaultCapability
		if role != nil {
			if binding, ok := s.services[role.LLMServiceID]; ok {
				capability = binding.Capability
			}
		}

		agentCtx := toolloop.AgentContext{
			AgentID:    dctx.AgentID,
			IsSystem:   s.registry.IsSystemAgent(dctx.AgentID),
			BasePrompt: s.basePrompt,
			ToolRules:  s.toolRules,
			Capability: capability,
		}
		var toolGroups []string
		if role != nil {
			agentCtx.RolePrompt = role.RolePrompt
			toolGroups = role.ToolGroups
			agentCtx.ToolGroups = toolGroups
		}

		s.conversations.EnsureConversation(dctx.AgentID, toolloop.ComposeSystemPrompt(agentCtx))

		d.BeginLLMWait(dctx.AgentID)
		_, err := s.loop.Run(context.Background(), agentCtx, toolloop.Inbound{
			AgentID:     dctx.AgentID,
			TaskID:      dctx.TaskID,
			Text:        dctx.Text,
			Attachments: dctx.Attachments,
		})
		d.EndLLMWait(dctx.AgentID)
		return err
	}
}

// SubmitTask enqueues text to root as a new task and returns the generated
// taskId.
func (s *Society) SubmitTask(text string) (taskID string, err error) {
	taskID = uuid.NewString()
	_, err = s.bus.Send(bus.SendInput{From: orgregistry.UserID, To: orgregistry.RootID, TaskID: taskID, Payload: bus.Payload{Text: text}})
	if err != nil {
		return "", err
	}
	return taskID, nil
}

// SendToAgent enqueues a message to agentID on behalf of the user.
func (s *Society) SendToAgent(agentID, taskID, text string, attachments []bus.Attachment) (messageID string, err error) {
	result, err := s.bus.Send(bus.SendInput{From: orgregistry.UserID, To: agentID, TaskID: taskID, Payload: bus.Payload{Text: text, Attachments: attachments}})
	if err != nil {
		return "", err
	}
	return result.MessageID, nil
}

// ListAgents returns every agent with its live compute status.
func (s *Society) ListAgents() []AgentView {
	agents := s.registry.ListAgents()
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, AgentView{Agent: a, ComputeStatus: s.dispatcher.ComputeStatusOf(a.AgentID)})
	}
	return views
}

// ListRoles returns a snapshot of every role.
func (s *Society) ListRoles() []*orgregistry.Role {
	return s.registry.ListRoles()
}

// GetAgentMessages returns agentID's conversation turns.
func (s *Society) GetAgentMessages(agentID string) ([]conversation.Turn, error) {
	turns, ok := s.conversations.GetConversation(agentID)
	if !ok {
		return nil, apperr.New(apperr.AgentNotFound)
	}
	return turns, nil
}

// AbortAgentLlmCall aborts agentID's in-flight LLM call, if any.
func (s *Society) AbortAgentLlmCall(agentID string) dispatcher.AbortResult {
	return s.dispatcher.AbortAgentLlmCall(agentID)
}

// DeleteAgent administratively terminates an agent (not a tool-invoked
// terminate_agent call, which is restricted to the agent's direct parent).
func (s *Society) DeleteAgent(agentID, reason string) error {
	if s.registry.IsSystemAgent(agentID) {
		return apperr.New(apperr.CannotDeleteSystemAgent)
	}
	if err := s.registry.RecordTermination(agentID, "system", reason); err != nil {
		return err
	}
	s.conversations.DeleteConversation(agentID)
	s.bus.ClearQueue(agentID)
	return nil
}

// DeleteRole soft-deletes a role and cascades to descendant roles, aborting
// any in-flight LLM calls the newly orphaned agents were running.
func (s *Society) DeleteRole(roleID string) (affectedAgents, affectedRoles []string, err error) {
	affectedAgents, affectedRoles, err = s.registry.DeleteRole(roleID)
	if err != nil {
		return nil, nil, err
	}
	s.dispatcher.AbortAgents(context.Background(), affectedAgents)
	return affectedAgents, affectedRoles, nil
}

// UpdateRole mutates a role's mutable fields.
func (s *Society) UpdateRole(roleID string, patch orgregistry.RolePatch) (*orgregistry.Role, error) {
	return s.registry.UpdateRole(roleID, patch)
}

// CreateRole registers a new role.
func (s *Society) CreateRole(in orgregistry.RoleInput) (*orgregistry.Role, error) {
	return s.registry.CreateRole(in)
}

// Shutdown gracefully stops the dispatcher and bus, bounded by timeout.
func (s *Society) Shutdown(ctx context.Context, timeout time.Duration) dispatcher.ShutdownSummary {
	return s.dispatcher.Shutdown(ctx, timeout)
}
