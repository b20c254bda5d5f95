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

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"drover/internal/agent"
	"drover/internal/logger"
)

var (
	agentConfigPath string
	agentDebugFlag  bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Start the drover agent daemon",
	Long: `The drover agent is a daemon that registers a session with the automation
backend and holds an authenticated websocket connection. Commands received over
the connection are executed against the selected local device and the results
sent back. The agent reconnects with a fresh session token whenever the
connection is lost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if agentDebugFlag {
			logger.SetLevel(logger.LOG_DEBUG)
		} else {
			logger.SetLevel(logger.LOG_INFO)
		}

		log := logger.New()
		log.Info().
			Str("config_path", agentConfigPath).
			Bool("debug", agentDebugFlag).
			Msg("Starting drover agent")

		// Check if config file exists
		if _, err := os.Stat(agentConfigPath); os.IsNotExist(err) {
			// Create default config
			defaultConfig := agent.NewDefaultConfig()
			if err := agent.SaveConfig(defaultConfig, agentConfigPath); err != nil {
				log.Error().Err(err).Msg("Failed to create default config file")
				return fmt.Errorf("failed to create default config file: %w", err)
			}
			log.Info().
				Str("config_path", agentConfigPath).
				Msg("Created default configuration file. Please edit it with your settings.")
			return nil
		}

		config, err := agent.LoadConfig(agentConfigPath)
		if err != nil {
			log.Error().Err(err).Msg("Failed to load config")
			return fmt.Errorf("failed to load config: %w", err)
		}

		if config.Logging.File != "" {
			if err := logger.SetLogFile(config.Logging.File); err != nil {
				log.Warn().Err(err).Msg("Failed to open log file, continuing with console only")
			}
		}
		if !agentDebugFlag {
			logger.SetLevel(config.Logging.Level)
		}

		// Start daemon (blocks until shutdown)
		daemon := agent.NewDaemon(config)
		if err := daemon.Start(); err != nil {
			log.Error().Err(err).Msg("Agent daemon stopped with error")
			return fmt.Errorf("agent daemon error: %w", err)
		}

		return nil
	},
}

func init() {
	agentCmd.Flags().StringVarP(&agentConfigPath, "config", "c", "drover.yaml", "path to agent configuration file")
	agentCmd.Flags().BoolVarP(&agentDebugFlag, "debug", "d", false, "enable debug logging")
}
