// Package dispatcher is the heart of the runtime: it drives per-agent
// message processing, the compute-status state machine, spawn/terminate
// authorization, and graceful shutdown.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentsociety/runtime/pkg/apperr"
	"github.com/agentsociety/runtime/pkg/bus"
	"github.com/agentsociety/runtime/pkg/concurrency"
	"github.com/agentsociety/runtime/pkg/contentrouter"
	"github.com/agentsociety/runtime/pkg/conversation"
	"github.com/agentsociety/runtime/pkg/orgregistry"
	"github.com/agentsociety/runtime/pkg/tool"
)

// DefaultShutdownTimeout is used when Shutdown is called with timeout <= 0.
const DefaultShutdownTimeout = 30 * time.Second

// Dispatcher drives per-agent message processing on top of the Bus,
// Organization Registry, Conversation Store, and Concurrency Controller.
type Dispatcher struct {
	bus           *bus.Bus
	registry      *orgregistry.Registry
	conversations *conversation.Store
	controller    *concurrency.Controller
	behavior      Behavior

	statusMu sync.Mutex
	status   map[string]ComputeStatus
	agentMu  map[string]*sync.Mutex

	spawnMu    sync.Mutex
	spawnIndex map[string]string // callerAgentId|taskId -> agentId

	stopMu        sync.Mutex
	stopRequested bool

	inFlight sync.WaitGroup
}

// New creates a Dispatcher. behavior is invoked for every non-system agent
// message; root/user messages are also routed through it (AgentContext's
// IsSystem flag distinguishes the two in prompt composition, not here).
func New(b *bus.Bus, registry *orgregistry.Registry, conversations *conversation.Store, controller *concurrency.Controller, behavior Behavior) *Dispatcher {
	d := &Dispatcher{
		bus:           b,
		registry:      registry,
		conversations: conversations,
		controller:    controller,
		behavior:      behavior,
		status:        make(map[string]ComputeStatus),
		agentMu:       make(map[string]*sync.Mutex),
		spawnIndex:    make(map[string]string),
	}
	b.OnAllMessages(func(msg *bus.Message) {
		d.tryDispatch(msg.To)
	})
	b.OnDelayedDelivery(func(msg *bus.Message) {
		d.tryDispatch(msg.To)
	})
	return d
}

func (d *Dispatcher) lockFor(agentID string) *sync.Mutex {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	m, ok := d.agentMu[agentID]
	if !ok {
		m = &sync.Mutex{}
		d.agentMu[agentID] = m
	}
	return m
}

func (d *Dispatcher) getStatus(agentID string) ComputeStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	s, ok := d.status[agentID]
	if !ok {
		return StatusIdle
	}
	return s
}

func (d *Dispatcher) setStatus(agentID string, s ComputeStatus) {
	d.statusMu.Lock()
	d.status[agentID] = s
	d.statusMu.Unlock()
}

// BeginLLMWait transitions agentID to waiting_llm. Behaviors call this
// around their LLM-bound section.
func (d *Dispatcher) BeginLLMWait(agentID string) {
	d.setStatus(agentID, StatusWaitingLLM)
}

// EndLLMWait transitions agentID back to processing. Behaviors call this
// once their LLM-bound section settles.
func (d *Dispatcher) EndLLMWait(agentID string) {
	d.setStatus(agentID, StatusProcessing)
}

// ComputeStatusOf returns agentID's current compute status.
func (d *Dispatcher) ComputeStatusOf(agentID string) ComputeStatus {
	return d.getStatus(agentID)
}

// tryDispatch lifts one queued message for agentID and runs the behavior,
// if the agent is idle and the dispatcher isn't shutting down.
func (d *Dispatcher) tryDispatch(agentID string) {
	d.stopMu.Lock()
	stopped := d.stopRequested
	d.stopMu.Unlock()
	if stopped {
		return
	}

	lock := d.lockFor(agentID)
	lock.Lock()
	if d.getStatus(agentID) != StatusIdle {
		lock.Unlock()
		return
	}
	msg, ok := d.bus.ReceiveNext(agentID)
	if !ok {
		lock.Unlock()
		return
	}
	d.setStatus(agentID, StatusProcessing)
	lock.Unlock()

	d.inFlight.Add(1)
	go d.runBehavior(agentID, msg, lock)
}

func (d *Dispatcher) runBehavior(agentID string, msg *bus.Message, lock *sync.Mutex) {
	defer d.inFlight.Done()
	defer func() {
		if r := recover(); r != nil {
			d.handleBehaviorError(agentID, fmt.Errorf("panic: %v", r))
		}
		d.setStatus(agentID, StatusIdle)
		d.tryDispatch(agentID) // pick up anything queued meanwhile
	}()

	d.registry.EnsureEntryAgent(msg.TaskID, agentID)

	dctx := DispatchContext{
		AgentID: agentID,
		TaskID:  msg.TaskID,
		Text:    msg.Payload.Text,
	}
	for _, a := range msg.Payload.Attachments {
		dctx.Attachments = append(dctx.Attachments, contentrouter.RawAttachment{
			Type:     string(a.Type),
			Ref:      a.Ref,
			Filename: a.Filename,
			Size:     a.Size,
			MimeType: a.MimeType,
		})
	}
	if err := d.behavior(dctx); err != nil {
		d.handleBehaviorError(agentID, err)
	}
}

// handleBehaviorError isolates a failing behavior: it logs, and notifies
// the agent's parent (if any) without affecting any other agent's
// processing.
func (d *Dispatcher) handleBehaviorError(agentID string, err error) {
	slog.Error("dispatcher: behavior error", "agentId", agentID, "err", err)

	agent, ok := d.registry.GetAgent(agentID)
	if !ok || agent.ParentAgentID == "" {
		return
	}
	_, sendErr := d.bus.Send(bus.SendInput{
		From:    agentID,
		To:      agent.ParentAgentID,
		Payload: bus.Payload{Text: fmt.Sprintf("agent %s encountered an error: %v", agentID, err)},
	})
	if sendErr != nil {
		slog.Error("dispatcher: failed to notify parent of error", "agentId", agentID, "parentAgentId", agent.ParentAgentID, "err", sendErr)
	}
}

// SendMessage implements tool.MessageSender: it sends through the Bus under
// the taskID it is given. The send_message tool passes the taskID of the
// caller's current message, which is how a reply inherits its task.
func (d *Dispatcher) SendMessage(from, to, taskID, text, reasoningContent string) (string, error) {
	result, err := d.bus.Send(bus.SendInput{
		From:             from,
		To:               to,
		TaskID:           taskID,
		Payload:          bus.Payload{Text: text},
		ReasoningContent: reasoningContent,
	})
	if err != nil {
		return "", err
	}
	return result.MessageID, nil
}

// SpawnAgent implements tool.AgentSpawner. The new agent's parent is always
// the caller: a non-root caller may only spawn children of itself, and root
// spawning directly below itself is the same rule applied trivially.
func (d *Dispatcher) SpawnAgent(callerAgentID, taskID, roleID string, brief tool.TaskBrief) (string, bool, error) {
	if callerAgentID == "" {
		return "", false, apperr.New(apperr.MissingAgentID)
	}

	if taskID != "" {
		key := callerAgentID + "|" + taskID
		d.spawnMu.Lock()
		if existing, ok := d.spawnIndex[key]; ok {
			d.spawnMu.Unlock()
			return existing, true, nil
		}
		d.spawnMu.Unlock()
	}

	isRoot := callerAgentID == orgregistry.RootID
	if !isRoot && !d.registry.RoleDescendsFromAgent(roleID, callerAgentID) {
		return "", false, apperr.New(apperr.NotChildRole)
	}

	agent, err := d.registry.CreateAgent(orgregistry.AgentInput{RoleID: roleID, ParentAgentID: callerAgentID})
	if err != nil {
		return "", false, err
	}

	if taskID != "" {
		key := callerAgentID + "|" + taskID
		d.spawnMu.Lock()
		d.spawnIndex[key] = agent.AgentID
		d.spawnMu.Unlock()
	}

	slog.Info("dispatcher: agent spawned", "agentId", agent.AgentID, "callerAgentId", callerAgentID, "roleId", roleID, "taskId", taskID, "objective", brief.Objective)
	return agent.AgentID, false, nil
}

// TerminateAgent implements tool.AgentTerminator: succeeds iff callerAgentID
// is targetAgentID's direct parent. On success, records a termination event,
// drops the agent's conversation and clears its queued messages. The agent's
// registry record is not removed: it stays in the registry with status
// terminated.
func (d *Dispatcher) TerminateAgent(callerAgentID, targetAgentID, reason string) error {
	if targetAgentID == "" {
		return apperr.New(apperr.MissingAgentID)
	}
	agent, ok := d.registry.GetAgent(targetAgentID)
	if !ok {
		return apperr.New(apperr.AgentNotFound)
	}
	if agent.ParentAgentID != callerAgentID {
		return apperr.New(apperr.NotChildAgent)
	}
	if err := d.registry.RecordTermination(targetAgentID, callerAgentID, reason); err != nil {
		return err
	}
	d.conversations.DeleteConversation(targetAgentID)
	d.bus.ClearQueue(targetAgentID)
	return nil
}

// AbortAgentLlmCall aborts agentID's in-flight LLM call, if any, and resets
// its compute status to idle.
func (d *Dispatcher) AbortAgentLlmCall(agentID string) AbortResult {
	if agentID == "" {
		return AbortResult{OK: false, Reason: "missing_agent_id"}
	}
	if _, ok := d.registry.GetAgent(agentID); !ok {
		return AbortResult{OK: false, Reason: "agent_not_found"}
	}

	status := d.getStatus(agentID)
	if status != StatusWaitingLLM && status != StatusProcessing {
		return AbortResult{OK: true, Aborted: false, Reason: "not_active"}
	}

	aborted := d.controller.CancelRequest(agentID)
	d.setStatus(agentID, StatusIdle)
	return AbortResult{OK: true, Aborted: aborted}
}

// Shutdown stops accepting new dispatch cycles, drains in-flight behaviors
// up to timeout, flushes delayed bus messages, and returns a summary.
// A second call returns OK: false (idempotent rejection).
func (d *Dispatcher) Shutdown(ctx context.Context, timeout time.Duration) ShutdownSummary {
	d.stopMu.Lock()
	if d.stopRequested {
		d.stopMu.Unlock()
		return ShutdownSummary{OK: false}
	}
	d.stopRequested = true
	d.stopMu.Unlock()

	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	start := time.Now()

	drained := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(timeout):
		slog.Warn("dispatcher: shutdown timeout exceeded, abandoning in-flight work", "timeout", timeout)
	}

	d.bus.Shutdown(ctx)

	d.statusMu.Lock()
	activeAgents := 0
	for _, s := range d.status {
		if s != StatusIdle {
			activeAgents++
		}
	}
	d.statusMu.Unlock()

	return ShutdownSummary{
		OK:              true,
		DurationMs:      time.Since(start).Milliseconds(),
		PendingMessages: d.bus.GetPendingCount(),
		ActiveAgents:    activeAgents,
	}
}

// AbortAgents aborts the in-flight LLM call of every agent in agentIDs
// concurrently, e.g. when a role deletion orphans a batch of agents at
// once and each one's in-flight call needs cancelling without waiting on
// the others. Results are returned in the same order as agentIDs.
func (d *Dispatcher) AbortAgents(ctx context.Context, agentIDs []string) []AbortResult {
	results := make([]AbortResult, len(agentIDs))
	fns := make([]func() error, len(agentIDs))
	for i, agentID := range agentIDs {
		i, agentID := i, agentID
		fns[i] = func() error {
			results[i] = d.AbortAgentLlmCall(agentID)
			return nil
		}
	}
	// AbortAgentLlmCall never returns an error through this path; the
	// errgroup is here purely to join the fan-out (no concurrency limit is set).
	_ = runConcurrently(ctx, fns...)
	return results
}

// runConcurrently fans fns out onto the errgroup and waits for all of them,
// returning the first error encountered (if any).
func runConcurrently(ctx context.Context, fns ...func() error) error {
	g, _ := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(fn)
	}
	return g.Wait()
}
