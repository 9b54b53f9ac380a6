package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExpandsAPIKeyAndDefaultsCapabilities(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "services.yaml")
	envPath := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(cfgPath, []byte(`
services:
  - id: svc1
    name: primary
    baseURL: https://api.example.com
    model: gpt-test
    apiKey: ${TEST_API_KEY}
  - id: svc2
    name: vision
    baseURL: https://api.example.com
    model: gpt-vision
    apiKey: inline-key
    capabilities:
      input: [text, image]
      output: [text]
roles:
  - name: worker
    rolePrompt: you are a worker
    llmServiceId: svc1
`), 0o644))
	require.NoError(t, os.WriteFile(envPath, []byte("TEST_API_KEY=secret123\n"), 0o644))

	doc, err := Load(cfgPath, envPath)
	require.NoError(t, err)
	require.Len(t, doc.Services, 2)
	assert.Equal(t, "secret123", doc.Services[0].APIKey)
	assert.Equal(t, []string{"text"}, doc.Services[0].Capabilities.Input)
	assert.Equal(t, []string{"text", "image"}, doc.Services[1].Capabilities.Input)
	require.Len(t, doc.Roles, 1)
	assert.Equal(t, "worker", doc.Roles[0].Name)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/services.yaml", "")
	assert.Error(t, err)
}
