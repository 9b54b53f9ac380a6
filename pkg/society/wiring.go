package society

import (
	"github.com/agentsociety/runtime/pkg/config"
	"github.com/agentsociety/runtime/pkg/llmclient"
)

// BuildServices turns a loaded config.Document's service entries into the
// ServiceBinding map New expects, wiring each one to an llmclient.HTTPClient
// over an OpenAICodec. HTTPClient owns its own retry/backoff schedule for
// chat completions, so no separate retrying transport is layered underneath.
func BuildServices(doc *config.Document) map[string]ServiceBinding {
	services := make(map[string]ServiceBinding, len(doc.Services))
	for _, svc := range doc.Services {
		codec := &llmclient.OpenAICodec{BaseURL: svc.BaseURL, Model: svc.Model, APIKey: svc.APIKey}
		client := llmclient.NewHTTPClient(codec)
		services[svc.ID] = ServiceBinding{Client: client, Capability: svc.Capabilities}
	}
	return services
}
