package society

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsociety/runtime/pkg/conversation"
	"github.com/agentsociety/runtime/pkg/llmclient"
	"github.com/agentsociety/runtime/pkg/orgregistry"
)

// scriptedClient always returns the same canned final answer, with no tool
// calls, so the dispatch settles after exactly one round.
type scriptedClient struct{}

func (scriptedClient) Chat(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	return llmclient.Response{Content: "acknowledged"}, nil
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func newTestSociety() *Society {
	return New(Options{
		MaxConcurrentRequests: 4,
		DefaultServiceID:      "default",
		Services: map[string]ServiceBinding{
			"default": {Client: scriptedClient{}},
		},
	})
}

func TestSubmitTask_DeliversToRootAndProducesAssistantTurn(t *testing.T) {
	s := newTestSociety()

	taskID, err := s.SubmitTask("please help")
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	waitUntil(t, func() bool {
		turns, err := s.GetAgentMessages(orgregistry.RootID)
		return err == nil && len(turns) > 0 && turns[len(turns)-1].Role == conversation.RoleAssistant
	})
}

func TestListAgents_ReportsComputeStatus(t *testing.T) {
	s := newTestSociety()
	views := s.ListAgents()
	assert.Len(t, views, 2) // root, user

	for _, v := range views {
		assert.NotEmpty(t, v.ComputeStatus)
	}
}

func TestAbortAgentLlmCall_UnknownAgent(t *testing.T) {
	s := newTestSociety()
	res := s.AbortAgentLlmCall("ghost")
	assert.False(t, res.OK)
	assert.Equal(t, "agent_not_found", res.Reason)
}

func TestDeleteAgent_RejectsSystemAgent(t *testing.T) {
	s := newTestSociety()
	err := s.DeleteAgent(orgregistry.RootID, "cleanup")
	assert.Error(t, err)
}

func TestCreateRoleThenDeleteRole(t *testing.T) {
	s := newTestSociety()
	role, err := s.CreateRole(orgregistry.RoleInput{Name: "worker", CreatedBy: orgregistry.RootID})
	require.NoError(t, err)

	_, affectedRoles, err := s.DeleteRole(role.RoleID)
	require.NoError(t, err)
	assert.Contains(t, affectedRoles, role.RoleID)
}

func TestShutdown_ReturnsSummary(t *testing.T) {
	s := newTestSociety()
	summary := s.Shutdown(context.Background(), time.Second)
	assert.True(t, summary.OK)
}
