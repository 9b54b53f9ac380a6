package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsociety/runtime/pkg/apperr"
	"github.com/agentsociety/runtime/pkg/bus"
	"github.com/agentsociety/runtime/pkg/concurrency"
	"github.com/agentsociety/runtime/pkg/conversation"
	"github.com/agentsociety/runtime/pkg/orgregistry"
	"github.com/agentsociety/runtime/pkg/tool"
)

func newFixture(t *testing.T, behavior Behavior) (*Dispatcher, *bus.Bus, *orgregistry.Registry) {
	t.Helper()
	registry := orgregistry.New()
	b := bus.New(registry)
	convs := conversation.New()
	controller := concurrency.New(4)
	d := New(b, registry, convs, controller, behavior)
	return d, b, registry
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition did not become true in time")
}

func TestDispatch_DeliversMessageAndReturnsToIdle(t *testing.T) {
	var gotText atomic.Value
	var processingObserved atomic.Bool
	d, b, registry := newFixture(t, func(dctx DispatchContext) error {
		gotText.Store(dctx.Text)
		processingObserved.Store(true)
		return nil
	})

	role, err := registry.CreateRole(orgregistry.RoleInput{Name: "worker", CreatedBy: orgregistry.RootID})
	require.NoError(t, err)
	agent, err := registry.CreateAgent(orgregistry.AgentInput{RoleID: role.RoleID, ParentAgentID: orgregistry.RootID})
	require.NoError(t, err)

	_, err = b.Send(bus.SendInput{From: orgregistry.RootID, To: agent.AgentID, Payload: bus.Payload{Text: "hello"}})
	require.NoError(t, err)

	waitFor(t, func() bool { return gotText.Load() == "hello" })
	assert.True(t, processingObserved.Load())
	waitFor(t, func() bool { return d.ComputeStatusOf(agent.AgentID) == StatusIdle })
}

func TestDispatch_SingleInFlightPerAgent(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	var wg sync.WaitGroup
	wg.Add(3)
	d, b, registry := newFixture(t, func(dctx DispatchContext) error {
		defer wg.Done()
		n := atomic.AddInt32(&concurrent, 1)
		for {
			cur := atomic.LoadInt32(&maxConcurrent)
			if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return nil
	})

	role, _ := registry.CreateRole(orgregistry.RoleInput{Name: "w", CreatedBy: orgregistry.RootID})
	agent, _ := registry.CreateAgent(orgregistry.AgentInput{RoleID: role.RoleID, ParentAgentID: orgregistry.RootID})

	for i := 0; i < 3; i++ {
		_, err := b.Send(bus.SendInput{From: orgregistry.RootID, To: agent.AgentID, Payload: bus.Payload{Text: "x"}})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
}

func TestDispatch_BehaviorErrorIsolatedAndParentNotified(t *testing.T) {
	d, b, registry := newFixture(t, func(dctx DispatchContext) error {
		return errors.New("boom")
	})

	role, _ := registry.CreateRole(orgregistry.RoleInput{Name: "w", CreatedBy: orgregistry.RootID})
	agent, _ := registry.CreateAgent(orgregistry.AgentInput{RoleID: role.RoleID, ParentAgentID: orgregistry.RootID})

	_, err := b.Send(bus.SendInput{From: orgregistry.RootID, To: agent.AgentID, Payload: bus.Payload{Text: "x"}})
	require.NoError(t, err)

	waitFor(t, func() bool {
		msg, ok := b.ReceiveNext(orgregistry.RootID)
		if ok {
			assert.Contains(t, msg.Payload.Text, "encountered an error")
			return true
		}
		return false
	})
	waitFor(t, func() bool { return d.ComputeStatusOf(agent.AgentID) == StatusIdle })
}

func TestBeginEndLLMWait_TransitionsStatus(t *testing.T) {
	d, _, _ := newFixture(t, func(dctx DispatchContext) error { return nil })
	d.setStatus("a1", StatusProcessing)
	d.BeginLLMWait("a1")
	assert.Equal(t, StatusWaitingLLM, d.ComputeStatusOf("a1"))
	d.EndLLMWait("a1")
	assert.Equal(t, StatusProcessing, d.ComputeStatusOf("a1"))
}

func TestSpawnAgent_NonRootMustSpawnDescendantRole(t *testing.T) {
	d, _, registry := newFixture(t, func(dctx DispatchContext) error { return nil })

	roleA, _ := registry.CreateRole(orgregistry.RoleInput{Name: "a", CreatedBy: orgregistry.RootID})
	agentA, _ := registry.CreateAgent(orgregistry.AgentInput{RoleID: roleA.RoleID, ParentAgentID: orgregistry.RootID})

	unrelatedRole, _ := registry.CreateRole(orgregistry.RoleInput{Name: "unrelated", CreatedBy: orgregistry.RootID})

	_, _, err := d.SpawnAgent(agentA.AgentID, "t1", unrelatedRole.RoleID, tool.TaskBrief{Objective: "o", CompletionCriteria: "c"})
	assert.True(t, apperr.Is(err, apperr.NotChildRole))

	ownRole, _ := registry.CreateRole(orgregistry.RoleInput{Name: "own", CreatedBy: agentA.AgentID})
	childID, reused, err := d.SpawnAgent(agentA.AgentID, "t2", ownRole.RoleID, tool.TaskBrief{Objective: "o", CompletionCriteria: "c"})
	require.NoError(t, err)
	assert.False(t, reused)
	got, ok := registry.GetAgent(childID)
	require.True(t, ok)
	assert.Equal(t, agentA.AgentID, got.ParentAgentID)
}

func TestSpawnAgent_RootMaySpawnAnyRole(t *testing.T) {
	d, _, registry := newFixture(t, func(dctx DispatchContext) error { return nil })
	role, _ := registry.CreateRole(orgregistry.RoleInput{Name: "any", CreatedBy: "someone-else"})

	agentID, _, err := d.SpawnAgent(orgregistry.RootID, "t1", role.RoleID, tool.TaskBrief{Objective: "o", CompletionCriteria: "c"})
	require.NoError(t, err)
	assert.NotEmpty(t, agentID)
}

func TestSpawnAgent_DedupByCallerAndTask(t *testing.T) {
	d, _, registry := newFixture(t, func(dctx DispatchContext) error { return nil })
	role, _ := registry.CreateRole(orgregistry.RoleInput{Name: "w", CreatedBy: orgregistry.RootID})

	first, reused1, err := d.SpawnAgent(orgregistry.RootID, "task-x", role.RoleID, tool.TaskBrief{Objective: "o", CompletionCriteria: "c"})
	require.NoError(t, err)
	assert.False(t, reused1)

	second, reused2, err := d.SpawnAgent(orgregistry.RootID, "task-x", role.RoleID, tool.TaskBrief{Objective: "o2", CompletionCriteria: "c2"})
	require.NoError(t, err)
	assert.True(t, reused2)
	assert.Equal(t, first, second)
}

func TestTerminateAgent_OnlyDirectParentMayTerminate(t *testing.T) {
	d, _, registry := newFixture(t, func(dctx DispatchContext) error { return nil })
	role, _ := registry.CreateRole(orgregistry.RoleInput{Name: "w", CreatedBy: orgregistry.RootID})
	agent, _ := registry.CreateAgent(orgregistry.AgentInput{RoleID: role.RoleID, ParentAgentID: orgregistry.RootID})

	err := d.TerminateAgent(orgregistry.UserID, agent.AgentID, "not my child")
	assert.True(t, apperr.Is(err, apperr.NotChildAgent))

	err = d.TerminateAgent(orgregistry.RootID, agent.AgentID, "done")
	require.NoError(t, err)

	got, _ := registry.GetAgent(agent.AgentID)
	assert.Equal(t, orgregistry.AgentTerminated, got.Status)
}

func TestAbortAgentLlmCall_Branches(t *testing.T) {
	d, _, registry := newFixture(t, func(dctx DispatchContext) error { return nil })

	res := d.AbortAgentLlmCall("")
	assert.False(t, res.OK)
	assert.Equal(t, "missing_agent_id", res.Reason)

	res = d.AbortAgentLlmCall("ghost")
	assert.False(t, res.OK)
	assert.Equal(t, "agent_not_found", res.Reason)

	role, _ := registry.CreateRole(orgregistry.RoleInput{Name: "w", CreatedBy: orgregistry.RootID})
	agent, _ := registry.CreateAgent(orgregistry.AgentInput{RoleID: role.RoleID, ParentAgentID: orgregistry.RootID})

	res = d.AbortAgentLlmCall(agent.AgentID)
	assert.True(t, res.OK)
	assert.False(t, res.Aborted)
	assert.Equal(t, "not_active", res.Reason)

	d.setStatus(agent.AgentID, StatusWaitingLLM)
	res = d.AbortAgentLlmCall(agent.AgentID)
	assert.True(t, res.OK)
	assert.Equal(t, StatusIdle, d.ComputeStatusOf(agent.AgentID))
}

func TestShutdown_DrainsAndIsIdempotent(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	d, b, registry := newFixture(t, func(dctx DispatchContext) error {
		close(started)
		<-release
		return nil
	})
	role, _ := registry.CreateRole(orgregistry.RoleInput{Name: "w", CreatedBy: orgregistry.RootID})
	agent, _ := registry.CreateAgent(orgregistry.AgentInput{RoleID: role.RoleID, ParentAgentID: orgregistry.RootID})

	_, err := b.Send(bus.SendInput{From: orgregistry.RootID, To: agent.AgentID, Payload: bus.Payload{Text: "x"}})
	require.NoError(t, err)

	<-started
	close(release)

	summary := d.Shutdown(context.Background(), time.Second)
	assert.True(t, summary.OK)

	second := d.Shutdown(context.Background(), time.Second)
	assert.False(t, second.OK)
}

func TestAbortAgents_AbortsEachConcurrently(t *testing.T) {
	d, _, registry := newFixture(t, func(dctx DispatchContext) error { return nil })

	role, err := registry.CreateRole(orgregistry.RoleInput{Name: "worker", CreatedBy: orgregistry.RootID})
	require.NoError(t, err)

	var agentIDs []string
	for i := 0; i < 3; i++ {
		agent, err := registry.CreateAgent(orgregistry.AgentInput{RoleID: role.RoleID, ParentAgentID: orgregistry.RootID})
		require.NoError(t, err)
		agentIDs = append(agentIDs, agent.AgentID)
		d.setStatus(agent.AgentID, StatusProcessing)
	}
	agentIDs = append(agentIDs, "nonexistent-agent")

	results := d.AbortAgents(context.Background(), agentIDs)
	require.Len(t, results, 4)
	for i := 0; i < 3; i++ {
		assert.True(t, results[i].OK)
		assert.Equal(t, StatusIdle, d.getStatus(agentIDs[i]))
	}
	assert.False(t, results[3].OK)
}

func TestRunConcurrently_CollectsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := runConcurrently(context.Background(),
		func() error { return nil },
		func() error { return boom },
		func() error { return nil },
	)
	assert.ErrorIs(t, err, boom)
}
