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

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"drover/internal/logger"
)

// AgentMessage is one frame received from a connected agent
type AgentMessage struct {
	SessionID string
	DeviceID  string
	Payload   []byte
}

// agentConn is one connected agent
type agentConn struct {
	sessionID string
	deviceID  string
	conn      *websocket.Conn
	writeMu   sync.Mutex
}

// AgentHub accepts authenticated agent websocket connections and relays
// commands to them
type AgentHub struct {
	tokens   *TokenService
	database *Database
	logger   zerolog.Logger

	mutex  sync.RWMutex
	agents map[string]*agentConn // keyed by session ID

	// inbound carries agent frames to whoever is observing; frames are
	// dropped when nobody drains the channel
	inbound chan AgentMessage
}

// NewAgentHub creates the websocket side of the gateway
func NewAgentHub(tokens *TokenService, database *Database) *AgentHub {
	return &AgentHub{
		tokens:   tokens,
		database: database,
		logger:   logger.New(),
		agents:   make(map[string]*agentConn),
		inbound:  make(chan AgentMessage, 256),
	}
}

// Inbound exposes frames received from agents
func (h *AgentHub) Inbound() <-chan AgentMessage {
	return h.inbound
}

// ConnectedSessions returns the session IDs of all connected agents
func (h *AgentHub) ConnectedSessions() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessions := make([]string, 0, len(h.agents))
	for sessionID := range h.agents {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// HandleWebsocket upgrades an agent connection. The session token arrives
// as a query parameter because agents send no headers beyond the handshake.
func (h *AgentHub) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		http.Error(w, "token query parameter required", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokens.ValidateToken(tokenString)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Rejected websocket with invalid token")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	record, err := h.database.GetSession(claims.SessionID)
	if err != nil {
		h.logger.Warn().
			Str("session_id", claims.SessionID).
			Msg("Rejected websocket for unknown session")
		http.Error(w, "unknown session", http.StatusUnauthorized)
		return
	}
	if record.Status != "active" {
		h.logger.Warn().
			Str("session_id", claims.SessionID).
			Str("status", record.Status).
			Msg("Rejected websocket for revoked session")
		http.Error(w, "session revoked", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Websocket accept failed")
		return
	}

	agent := &agentConn{
		sessionID: claims.SessionID,
		deviceID:  claims.DeviceID,
		conn:      conn,
	}

	h.mutex.Lock()
	if old, exists := h.agents[claims.SessionID]; exists {
		old.conn.Close(websocket.StatusPolicyViolation, "superseded by new connection")
	}
	h.agents[claims.SessionID] = agent
	h.mutex.Unlock()

	h.logger.Info().
		Str("session_id", claims.SessionID).
		Str("device_id", claims.DeviceID).
		Msg("Agent connected")

	h.readPump(r.Context(), agent)
}

// readPump reads agent frames until the connection drops
func (h *AgentHub) readPump(ctx context.Context, agent *agentConn) {
	defer h.unregister(agent)

	for {
		_, data, err := agent.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				h.logger.Info().
					Str("session_id", agent.sessionID).
					Msg("Agent disconnected")
			} else {
				h.logger.Warn().
					Str("session_id", agent.sessionID).
					Err(err).
					Msg("Agent read failed")
			}
			return
		}

		select {
		case h.inbound <- AgentMessage{
			SessionID: agent.sessionID,
			DeviceID:  agent.deviceID,
			Payload:   data,
		}:
		default:
			h.logger.Debug().Msg("Inbound channel full, dropping agent frame")
		}
	}
}

func (h *AgentHub) unregister(agent *agentConn) {
	h.mutex.Lock()
	if current, exists := h.agents[agent.sessionID]; exists && current == agent {
		delete(h.agents, agent.sessionID)
	}
	h.mutex.Unlock()

	agent.conn.Close(websocket.StatusNormalClosure, "")
}

// SendCommand delivers an automation command to the agent holding the
// session. It returns the correlation ID assigned to the command.
func (h *AgentHub) SendCommand(ctx context.Context, sessionID, action string, params map[string]interface{}) (string, error) {
	correlationID := uuid.New().String()

	command := map[string]interface{}{
		"type":   "automation_command",
		"id":     correlationID,
		"action": action,
		"params": params,
	}

	if err := h.send(ctx, sessionID, command); err != nil {
		return "", err
	}
	return correlationID, nil
}

// Ping sends a ping frame to the agent holding the session
func (h *AgentHub) Ping(ctx context.Context, sessionID string) error {
	return h.send(ctx, sessionID, map[string]interface{}{
		"type": "ping",
		"id":   uuid.New().String(),
	})
}

// DisconnectAgent force-closes the agent connection for a session
func (h *AgentHub) DisconnectAgent(sessionID string) bool {
	h.mutex.Lock()
	agent, exists := h.agents[sessionID]
	if exists {
		delete(h.agents, sessionID)
	}
	h.mutex.Unlock()

	if !exists {
		return false
	}
	agent.conn.Close(websocket.StatusGoingAway, "disconnected by gateway")
	return true
}

func (h *AgentHub) send(ctx context.Context, sessionID string, message interface{}) error {
	h.mutex.RLock()
	agent, exists := h.agents[sessionID]
	h.mutex.RUnlock()

	if !exists {
		return fmt.Errorf("no agent connected for session %s", sessionID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to serialize command: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	agent.writeMu.Lock()
	defer agent.writeMu.Unlock()
	return agent.conn.Write(writeCtx, websocket.MessageText, data)
}

// Shutdown closes every agent connection
func (h *AgentHub) Shutdown() {
	h.mutex.Lock()
	agents := h.agents
	h.agents = make(map[string]*agentConn)
	h.mutex.Unlock()

	for _, agent := range agents {
		agent.conn.Close(websocket.StatusGoingAway, "gateway shutting down")
	}
}
