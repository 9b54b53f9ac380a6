package society

import (
	"context"

	"github.com/agentsociety/runtime/pkg/apperr"
	"github.com/agentsociety/runtime/pkg/llmclient"
	"github.com/agentsociety/runtime/pkg/orgregistry"
)

// routingClient implements llmclient.Client by resolving the underlying
// provider client from the calling agent's role's llmServiceId, falling
// back to a configured default service. This lets every agent share one
// Tool-Call Loop while still routing to the service its role names.
type routingClient struct {
	registry         *orgregistry.Registry
	clients          map[string]llmclient.Client
	defaultServiceID string
}

func (rc *routingClient) Chat(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	serviceID := rc.defaultServiceID
	if agent, ok := rc.registry.GetAgent(req.AgentID); ok {
		if role, ok := rc.registry.GetRole(agent.RoleID); ok && role.LLMServiceID != "" {
			serviceID = role.LLMServiceID
		}
	}
	client, ok := rc.clients[serviceID]
	if !ok {
		return llmclient.Response{}, apperr.Newf(apperr.InvalidArgs, "no llm service registered for id=%s", serviceID)
	}
	return client.Chat(ctx, req)
}
