// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agent

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config represents the agent configuration structure
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Agent      AgentConfig      `yaml:"agent"`
	Connection ConnectionConfig `yaml:"connection"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BackendConfig contains backend connection settings
type BackendConfig struct {
	AuthorityURL string `yaml:"authority_url"` // HTTP API for session issuance (required)
	WebsocketURL string `yaml:"websocket_url"` // Optional override; normally issued per session
}

// AgentConfig contains agent identity and device selection
type AgentConfig struct {
	ID         string `yaml:"id"`
	Provider   string `yaml:"provider"`
	Platform   string `yaml:"platform"`
	AutoSelect bool   `yaml:"auto_select"` // select the device automatically when exactly one exists
}

// ConnectionConfig contains retry and timeout settings, all in seconds
type ConnectionConfig struct {
	MaxRetries     int `yaml:"max_retries"`
	BaseDelay      int `yaml:"base_delay"`
	MaxDelay       int `yaml:"max_delay"`
	ConnectTimeout int `yaml:"connect_timeout"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.AuthorityURL == "" {
		return fmt.Errorf("backend.authority_url is required")
	}
	if !strings.HasPrefix(c.Backend.AuthorityURL, "http://") &&
		!strings.HasPrefix(c.Backend.AuthorityURL, "https://") {
		return fmt.Errorf("backend.authority_url must be an http(s) URL")
	}

	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}
	switch c.Agent.Platform {
	case "android", "ios", "simulator":
	default:
		return fmt.Errorf("agent.platform must be android, ios or simulator, got %q", c.Agent.Platform)
	}

	if c.Connection.MaxRetries < 1 {
		return fmt.Errorf("connection.max_retries must be at least 1")
	}
	if c.Connection.BaseDelay < 1 {
		return fmt.Errorf("connection.base_delay must be at least 1 second")
	}
	if c.Connection.MaxDelay < c.Connection.BaseDelay {
		return fmt.Errorf("connection.max_delay must not be below connection.base_delay")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Agent.Provider == "" {
		c.Agent.Provider = "LOCAL_CLIENT"
	}
	if c.Connection.MaxRetries == 0 {
		c.Connection.MaxRetries = 5
	}
	if c.Connection.BaseDelay == 0 {
		c.Connection.BaseDelay = 1
	}
	if c.Connection.MaxDelay == 0 {
		c.Connection.MaxDelay = 60
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// BaseDelayDuration returns the configured base retry delay
func (c *Config) BaseDelayDuration() time.Duration {
	return time.Duration(c.Connection.BaseDelay) * time.Second
}

// MaxDelayDuration returns the configured retry delay cap
func (c *Config) MaxDelayDuration() time.Duration {
	return time.Duration(c.Connection.MaxDelay) * time.Second
}

// ConnectTimeoutDuration returns the per-attempt dial timeout
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.Connection.ConnectTimeout) * time.Second
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	return SaveConfig(c, filepath)
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filepath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a default configuration template
func NewDefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			AuthorityURL: "http://localhost:8080",
		},
		Agent: AgentConfig{
			ID:         "drover-agent-" + uuid.New().String()[:8],
			Provider:   "LOCAL_CLIENT",
			Platform:   "simulator",
			AutoSelect: true,
		},
		Connection: ConnectionConfig{
			MaxRetries:     5,
			BaseDelay:      1,
			MaxDelay:       60,
			ConnectTimeout: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
