package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsociety/runtime/pkg/llmclient"
	"github.com/agentsociety/runtime/pkg/orgregistry"
	"github.com/agentsociety/runtime/pkg/society"
)

// scriptedClient always returns the same canned final answer, with no tool
// calls, so a dispatch settles after exactly one round.
type scriptedClient struct{}

func (scriptedClient) Chat(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	return llmclient.Response{Content: "acknowledged"}, nil
}

func newTestServer() *Server {
	s := society.New(society.Options{
		MaxConcurrentRequests: 4,
		DefaultServiceID:      "default",
		Services: map[string]society.ServiceBinding{
			"default": {Client: scriptedClient{}},
		},
	})
	return NewServer(s, ":0")
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

func TestHandleHealth(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleSubmitTask_ReturnsTaskID(t *testing.T) {
	srv := newTestServer()
	payload, _ := json.Marshal(map[string]string{"text": "please help"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["taskId"])
}

func TestHandleListAgents_IncludesRootAndUser(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]society.AgentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["agents"], 2)
}

func TestHandleGetAgentMessages_UnknownAgentReturns404(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/agents/ghost/messages", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDeleteAgent_RejectsSystemAgent(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/agents/"+orgregistry.RootID, nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleAbortAgentLlmCall_UnknownAgent(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/agents/ghost/abort", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["OK"])
}

func TestCORSMiddleware_SetsHeaders(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
