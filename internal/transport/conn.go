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

// Package transport owns the persistent websocket connection to the backend.
// A Manager holds at most one live connection; loss is never fatal and never
// raised across this boundary, it only surfaces as false/nil returns plus a
// state transition for the orchestrator to act on.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"drover/internal/backoff"
	"drover/internal/logger"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config controls connection establishment and retry behavior.
type Config struct {
	MaxRetries      int
	ConnectTimeout  time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	Policy          backoff.Policy
}

// DefaultConfig returns the settings used when the agent config leaves them
// unset.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		ConnectTimeout:  10 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageBytes: 16 << 20, // screenshots are large
		Policy:          backoff.DefaultPolicy(),
	}
}

// Manager manages one websocket connection with retrying establishment.
type Manager struct {
	endpoint string
	cfg      Config
	logger   zerolog.Logger

	// lifetime context, canceled by Close to unblock pending reads
	ctx    context.Context
	cancel context.CancelFunc

	// connectMu serializes ConnectWithRetry; a second caller waits for the
	// in-flight attempt instead of starting a duplicate connection.
	connectMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	attempt int
}

// NewManager creates a manager for the given endpoint. No connection is made
// until ConnectWithRetry.
func NewManager(endpoint string, cfg Config) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 16 << 20
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		endpoint: endpoint,
		cfg:      cfg,
		logger:   logger.New(),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateDisconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether a live connection is held.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// ConnectWithRetry attempts to establish the connection, backing off between
// failures. It returns true once connected, or false after MaxRetries
// exhausted, leaving the manager disconnected. Not reentrant: concurrent
// callers serialize and the late one observes the outcome.
func (m *Manager) ConnectWithRetry(ctx context.Context) bool {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return false
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return true
	}
	m.attempt = 0
	m.state = StateConnecting
	m.mu.Unlock()

	for {
		m.mu.Lock()
		attempt := m.attempt
		m.mu.Unlock()
		if attempt >= m.cfg.MaxRetries {
			break
		}

		m.logger.Info().
			Str("endpoint", m.endpoint).
			Int("attempt", attempt+1).
			Msg("Attempting to connect")

		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		conn, _, err := websocket.Dial(dialCtx, m.endpoint, nil)
		cancel()

		if err == nil {
			conn.SetReadLimit(m.cfg.MaxMessageBytes)
			m.mu.Lock()
			if m.state == StateClosed {
				m.mu.Unlock()
				conn.Close(websocket.StatusNormalClosure, "manager closed")
				return false
			}
			m.conn = conn
			m.state = StateConnected
			m.attempt = 0
			m.mu.Unlock()

			m.logger.Info().
				Str("endpoint", m.endpoint).
				Msg("Connected")
			return true
		}

		m.mu.Lock()
		m.attempt++
		attempt = m.attempt
		m.mu.Unlock()

		m.logger.Warn().
			Int("attempt", attempt).
			Err(err).
			Msg("Connection attempt failed")

		if attempt >= m.cfg.MaxRetries {
			break
		}

		delay := m.cfg.Policy.Delay(attempt)
		m.logger.Info().
			Dur("delay", delay).
			Msg("Retrying after backoff")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.setDisconnected()
			return false
		case <-m.ctx.Done():
			m.setDisconnected()
			return false
		}
	}

	m.logger.Error().
		Int("max_retries", m.cfg.MaxRetries).
		Msg("Failed to connect after all retries")
	m.setDisconnected()
	return false
}

// Send serializes the message and writes it. It is a no-op returning false
// when not connected; a transport failure transitions to disconnected and
// also returns false.
func (m *Manager) Send(ctx context.Context, message interface{}) bool {
	data, err := json.Marshal(message)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to serialize outbound message")
		return false
	}
	return m.SendRaw(ctx, data)
}

// SendRaw writes pre-encoded bytes as one text message.
func (m *Manager) SendRaw(ctx context.Context, data []byte) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.logger.Error().Msg("Not connected, dropping outbound message")
		return false
	}

	writeCtx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		m.logger.Error().Err(err).Msg("Failed to send message")
		m.handleConnectionLost(conn)
		return false
	}
	return true
}

// Receive blocks until a message arrives or the connection ends. It returns
// nil on orderly close, transport error, or Close; the state transitions to
// disconnected so the caller can decide whether to reconnect.
func (m *Manager) Receive(ctx context.Context) []byte {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return nil
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			m.logger.Warn().Msg("Connection closed by server")
		} else {
			m.logger.Error().Err(err).Msg("Failed to receive message")
		}
		m.handleConnectionLost(conn)
		return nil
	}
	return data
}

// Close shuts the manager down permanently. It is idempotent and unblocks
// any pending Receive.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.state = StateClosed
	m.mu.Unlock()

	m.cancel()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client shutting down")
	}
	m.logger.Info().Msg("Connection manager closed")
}

// handleConnectionLost drops the handle and marks the manager disconnected.
// Reconnection is left to the orchestrator, which may need a fresh session
// token rather than a blind retry of the same URL.
func (m *Manager) handleConnectionLost(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn != conn || m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateDisconnected
	m.attempt = 0
	m.mu.Unlock()

	conn.Close(websocket.StatusNormalClosure, "connection lost")
}

func (m *Manager) setDisconnected() {
	m.mu.Lock()
	if m.state != StateClosed {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
}
