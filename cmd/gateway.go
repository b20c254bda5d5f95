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
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"drover/internal/gateway"
	"drover/internal/logger"
)

var (
	gatewayAddress  string
	gatewayDBPath   string
	gatewayTokenTTL time.Duration
	gatewayWSURL    string
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start a local automation gateway",
	Long: `The gateway is the backend side of the agent for local development and
testing. It issues authenticated sessions over a REST API, accepts agent
websocket connections and relays automation commands to them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetLevel(logger.LOG_INFO)
		log := logger.New()

		gw, err := gateway.NewGateway(gateway.Config{
			Address:      gatewayAddress,
			DBPath:       gatewayDBPath,
			TokenTTL:     gatewayTokenTTL,
			WebsocketURL: gatewayWSURL,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create gateway")
			return fmt.Errorf("failed to create gateway: %w", err)
		}

		// Stop on SIGINT/SIGTERM
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			if err := gw.Stop(); err != nil {
				log.Error().Err(err).Msg("Gateway shutdown failed")
			}
		}()

		if err := gw.Start(); err != nil {
			log.Error().Err(err).Msg("Gateway stopped with error")
			return fmt.Errorf("gateway error: %w", err)
		}
		return nil
	},
}

func init() {
	gatewayCmd.Flags().StringVarP(&gatewayAddress, "address", "a", ":8080", "listen address")
	gatewayCmd.Flags().StringVar(&gatewayDBPath, "db", "drover-gateway.db", "path to SQLite database (\":memory:\" for ephemeral)")
	gatewayCmd.Flags().DurationVar(&gatewayTokenTTL, "token-ttl", time.Hour, "session token lifetime")
	gatewayCmd.Flags().StringVar(&gatewayWSURL, "ws-url", "", "externally reachable websocket URL (derived from address when empty)")
}
