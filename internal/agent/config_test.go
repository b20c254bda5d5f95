package agent_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"drover/internal/agent"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drover.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
backend:
  authority_url: http://localhost:9090
agent:
  id: test-agent
  platform: simulator
connection:
  max_retries: 3
  base_delay: 2
  max_delay: 30
logging:
  level: debug
`)

	config, err := agent.LoadConfig(path)
	if err != nil {
		t.Fatalf("Expected config to load: %v", err)
	}

	if config.Backend.AuthorityURL != "http://localhost:9090" {
		t.Errorf("Unexpected authority URL: %s", config.Backend.AuthorityURL)
	}
	if config.Agent.Provider != "LOCAL_CLIENT" {
		t.Errorf("Expected default provider, got %s", config.Agent.Provider)
	}
	if config.Connection.MaxRetries != 3 {
		t.Errorf("Expected max_retries 3, got %d", config.Connection.MaxRetries)
	}
	if config.BaseDelayDuration() != 2*time.Second {
		t.Errorf("Expected 2s base delay, got %v", config.BaseDelayDuration())
	}
	if config.Connection.ConnectTimeout != 10 {
		t.Errorf("Expected default connect_timeout 10, got %d", config.Connection.ConnectTimeout)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name: "MissingAuthorityURL",
			content: `
agent:
  id: test-agent
  platform: simulator
`,
		},
		{
			name: "BadAuthorityScheme",
			content: `
backend:
  authority_url: tcp://localhost:5555
agent:
  id: test-agent
  platform: simulator
`,
		},
		{
			name: "MissingAgentID",
			content: `
backend:
  authority_url: http://localhost:8080
agent:
  platform: simulator
`,
		},
		{
			name: "BadPlatform",
			content: `
backend:
  authority_url: http://localhost:8080
agent:
  id: test-agent
  platform: windows
`,
		},
		{
			name: "MaxDelayBelowBase",
			content: `
backend:
  authority_url: http://localhost:8080
agent:
  id: test-agent
  platform: android
connection:
  base_delay: 30
  max_delay: 5
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := agent.LoadConfig(path); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := agent.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	config := agent.NewDefaultConfig()
	config.Backend.AuthorityURL = "http://example.com:8080"
	config.Agent.ID = "round-trip"

	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := config.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := agent.LoadConfig(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if loaded.Agent.ID != "round-trip" {
		t.Errorf("Expected round-trip, got %s", loaded.Agent.ID)
	}
	if loaded.Backend.AuthorityURL != "http://example.com:8080" {
		t.Errorf("Unexpected authority URL: %s", loaded.Backend.AuthorityURL)
	}
}

func TestNewDefaultConfigValid(t *testing.T) {
	config := agent.NewDefaultConfig()
	if err := config.Validate(); err != nil {
		t.Errorf("Default config must validate: %v", err)
	}
}
