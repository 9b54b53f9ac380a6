package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsociety/runtime/pkg/apperr"
	"github.com/agentsociety/runtime/pkg/conversation"
)

type fakeSender struct {
	lastFrom, lastTo, lastTaskID, lastText, lastReasoning string
}

func (f *fakeSender) SendMessage(from, to, taskID, text, reasoningContent string) (string, error) {
	f.lastFrom, f.lastTo, f.lastTaskID, f.lastText, f.lastReasoning = from, to, taskID, text, reasoningContent
	return "msg-1", nil
}

type fakeSpawner struct {
	gotBrief TaskBrief
}

func (f *fakeSpawner) SpawnAgent(callerAgentID, taskID, roleID string, brief TaskBrief) (string, bool, error) {
	f.gotBrief = brief
	return "new-agent", false, nil
}

type fakeTerminator struct {
	gotTarget, gotReason string
}

func (f *fakeTerminator) TerminateAgent(callerAgentID, targetAgentID, reason string) error {
	f.gotTarget, f.gotReason = targetAgentID, reason
	return nil
}

type fakeCompressor struct{}

func (fakeCompressor) Compress(agentID, summary string, keepRecentCount int) (conversation.CompressResult, error) {
	return conversation.CompressResult{Compressed: true, OriginalCount: 10, NewCount: 5}, nil
}

func newBuiltinRegistry() (*Registry, *fakeSender, *fakeSpawner, *fakeTerminator) {
	reg := NewRegistry()
	sender := &fakeSender{}
	spawner := &fakeSpawner{}
	terminator := &fakeTerminator{}
	RegisterBuiltins(reg, sender, spawner, terminator, fakeCompressor{})
	return reg, sender, spawner, terminator
}

func TestSendMessage_InheritsTaskIDAndRequiresFields(t *testing.T) {
	reg, sender, _, _ := newBuiltinRegistry()
	_, handler, _ := reg.Get("send_message")

	_, err := handler(context.Background(), Call{AgentID: "a1", TaskID: "t1", Args: map[string]any{"text": "hi"}})
	assert.True(t, apperr.Is(err, apperr.MissingTo))

	result, err := handler(context.Background(), Call{AgentID: "a1", TaskID: "t1", Args: map[string]any{"to": "a2", "text": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, true, result.(map[string]any)["ok"])
	assert.Equal(t, "t1", sender.lastTaskID)
	assert.Equal(t, "a2", sender.lastTo)
}

func TestSpawnAgent_ValidatesTaskBrief(t *testing.T) {
	reg, _, spawner, _ := newBuiltinRegistry()
	_, handler, _ := reg.Get("spawn_agent")

	_, err := handler(context.Background(), Call{AgentID: "a1", Args: map[string]any{
		"roleId":    "worker",
		"taskBrief": map[string]any{"constraints": []string{"x"}},
	}})
	assert.True(t, apperr.Is(err, apperr.InvalidArgs))

	result, err := handler(context.Background(), Call{AgentID: "a1", Args: map[string]any{
		"roleId": "worker",
		"taskBrief": map[string]any{
			"objective":           "do the thing",
			"completion_criteria": "thing is done",
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, "new-agent", result.(map[string]any)["agentId"])
	assert.Equal(t, "do the thing", spawner.gotBrief.Objective)
}

func TestTerminateAgent_RequiresAgentID(t *testing.T) {
	reg, _, _, terminator := newBuiltinRegistry()
	_, handler, _ := reg.Get("terminate_agent")

	_, err := handler(context.Background(), Call{AgentID: "parent", Args: map[string]any{}})
	assert.True(t, apperr.Is(err, apperr.MissingAgentID))

	_, err = handler(context.Background(), Call{AgentID: "parent", Args: map[string]any{"agentId": "child", "reason": "done"}})
	require.NoError(t, err)
	assert.Equal(t, "child", terminator.gotTarget)
	assert.Equal(t, "done", terminator.gotReason)
}

func TestCompressContext_ReturnsCounts(t *testing.T) {
	reg, _, _, _ := newBuiltinRegistry()
	_, handler, _ := reg.Get("compress_context")

	result, err := handler(context.Background(), Call{AgentID: "a1", Args: map[string]any{"summary": "s", "keepRecentCount": 5}})
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, true, m["compressed"])
	assert.Equal(t, 10, m["originalCount"])
	assert.Equal(t, 5, m["newCount"])
}
