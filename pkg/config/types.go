// Package config loads the service registry and role documents the
// runtime needs at startup, and watches them for changes.
package config

import "github.com/agentsociety/runtime/pkg/contentrouter"

// LLMServiceConfig describes one entry of llmservices.json.
type LLMServiceConfig struct {
	ID             string                  `yaml:"id"`
	Name           string                  `yaml:"name"`
	BaseURL        string                  `yaml:"baseURL"`
	Model          string                  `yaml:"model"`
	APIKey         string                  `yaml:"apiKey"`
	Capabilities   contentrouter.Capability `yaml:"capabilities"`
	CapabilityTags []string                `yaml:"capabilityTags"`
	Description    string                  `yaml:"description"`
}

// RoleConfig is an on-disk role definition, loaded at startup alongside the
// service registry. Roles created at runtime via createRole live only in
// the Organization Registry; this is for bootstrapping a society from a
// static document.
type RoleConfig struct {
	Name         string   `yaml:"name"`
	RolePrompt   string   `yaml:"rolePrompt"`
	LLMServiceID string   `yaml:"llmServiceId"`
	ToolGroups   []string `yaml:"toolGroups"`
}

// Document is the top-level shape of the runtime's static config file.
type Document struct {
	Services []LLMServiceConfig `yaml:"services"`
	Roles    []RoleConfig       `yaml:"roles"`
}
