package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agentsociety/runtime/pkg/contentrouter"
)

// Load reads a service/role document from path, expanding ${VAR}-style
// references in apiKey fields against the process environment. If envPath
// is non-empty, its contents are loaded into the environment first via
// godotenv, matching the teacher's .env-based API key expansion.
func Load(path, envPath string) (*Document, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: loading env file %s: %w", envPath, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	for i := range doc.Services {
		svc := &doc.Services[i]
		svc.APIKey = os.ExpandEnv(svc.APIKey)
		if len(svc.Capabilities.Input) == 0 {
			svc.Capabilities = contentrouter.DefaultCapability
		}
	}

	slog.Info("config: loaded document", "path", path, "services", len(doc.Services), "roles", len(doc.Roles))
	return &doc, nil
}
