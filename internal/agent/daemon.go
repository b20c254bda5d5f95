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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"drover/internal/backoff"
	"drover/internal/envelope"
	"drover/internal/logger"
	"drover/internal/robot"
	"drover/internal/session"
	"drover/internal/transport"
)

// reconnectWait is the pause after a failed reconnection cycle before the
// next session is requested. Reconnection itself never gives up.
const reconnectWait = 10 * time.Second

// Daemon is the agent supervisor. It owns the session, the connection and
// the dispatcher, and keeps the agent connected until stopped.
type Daemon struct {
	config     *Config
	store      *session.Store
	devices    *DeviceManager
	dispatcher *Dispatcher
	logger     zerolog.Logger

	running bool
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc

	connMu sync.Mutex
	conn   *transport.Manager
}

// NewDaemon creates an agent daemon. With no providers given a single
// simulated device is used.
func NewDaemon(config *Config, providers ...robot.Provider) *Daemon {
	if len(providers) == 0 {
		providers = []robot.Provider{
			robot.NewSimProvider(robot.DefaultSimDevice("sim-001")),
		}
	}

	store := session.NewStore(session.Config{
		AuthorityURL: config.Backend.AuthorityURL,
		DeviceID:     config.Agent.ID,
		Provider:     config.Agent.Provider,
		Platform:     config.Agent.Platform,
	})

	devices := NewDeviceManager(config.Agent.AutoSelect, providers...)
	dispatcher := NewDispatcher(devices)

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:     config,
		store:      store,
		devices:    devices,
		dispatcher: dispatcher,
		logger:     logger.New(),
		ctx:        ctx,
		cancel:     cancel,
	}
	dispatcher.SetStatusFunc(d.GetStatus)
	return d
}

// Start runs the daemon until a shutdown signal arrives or Stop is called
func (d *Daemon) Start() error {
	d.mutex.Lock()
	if d.running {
		d.mutex.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mutex.Unlock()

	d.logger.Info().
		Str("agent_id", d.store.DeviceID()).
		Str("authority_url", d.config.Backend.AuthorityURL).
		Msg("Starting drover agent daemon")

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go d.run()
	go d.startHealthCheck()

	d.logger.Info().Msg("Agent daemon started successfully")

	select {
	case sig := <-sigChan:
		d.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return d.Stop()
	case <-d.ctx.Done():
		d.logger.Info().Msg("Context cancelled")
		return d.Stop()
	}
}

// Stop stops the daemon gracefully
func (d *Daemon) Stop() error {
	d.mutex.Lock()
	if !d.running {
		d.mutex.Unlock()
		return nil
	}
	d.running = false
	d.mutex.Unlock()

	d.logger.Info().Msg("Stopping agent daemon")

	// Cancel context to signal shutdown
	d.cancel()

	d.connMu.Lock()
	conn := d.conn
	d.conn = nil
	d.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}

	// Let in-flight commands finish before tearing down devices
	d.dispatcher.Wait()
	d.devices.Shutdown()

	// Best-effort session revocation; failure is logged, not raised
	revokeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if d.store.Delete(revokeCtx) {
		d.logger.Info().Msg("Session deleted")
	} else {
		d.logger.Warn().Msg("Failed to delete session from backend")
	}

	d.logger.Info().Msg("Agent daemon stopped")
	return nil
}

// IsRunning returns whether the daemon is currently running
func (d *Daemon) IsRunning() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.running
}

// GetStatus returns a snapshot of the daemon state
func (d *Daemon) GetStatus() interface{} {
	d.mutex.RLock()
	running := d.running
	d.mutex.RUnlock()

	connected := false
	d.connMu.Lock()
	if d.conn != nil {
		connected = d.conn.IsConnected()
	}
	d.connMu.Unlock()

	devices, _ := d.devices.ListAll(context.Background())

	return map[string]interface{}{
		"running":           running,
		"connected":         connected,
		"agent_id":          d.store.DeviceID(),
		"connected_devices": devices,
		"selected_device":   d.devices.ActiveInfo(),
		"service_status":    "running",
	}
}

// run is the supervising loop: mint a session, connect, pump messages, and
// on connection loss start over with a fresh token.
func (d *Daemon) run() {
	firstConnect := true

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		conn, sess := d.establishConnection()
		if conn == nil {
			d.logger.Error().
				Dur("wait", reconnectWait).
				Msg("Reconnection failed, waiting before retry")
			select {
			case <-time.After(reconnectWait):
			case <-d.ctx.Done():
				return
			}
			continue
		}

		if firstConnect {
			firstConnect = false
			if err := d.devices.SelectDefault(d.ctx); err != nil {
				d.logger.Warn().
					Err(err).
					Msg("Device auto-selection failed, commands requiring a device will fail")
			}
		}

		d.sendReadyEvent(conn, sess)
		d.receiveLoop(conn)

		if d.ctx.Err() != nil {
			return
		}
		// A dead socket may mean the token expired; never redial with it
		d.store.Reset()
		d.logger.Warn().Msg("Connection lost, reconnecting with token refresh")
	}
}

// establishConnection mints or renews the session and dials its endpoint.
// The previous token is never reused; a lost connection may mean the token
// expired, so each cycle goes through the session store first.
func (d *Daemon) establishConnection() (*transport.Manager, *session.Session) {
	sess := d.store.Current(d.ctx, true)
	if sess == nil {
		created, err := d.store.Create(d.ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("Failed to create session")
			return nil, nil
		}
		sess = created
	}

	conn := transport.NewManager(sess.Endpoint, transport.Config{
		MaxRetries:     d.config.Connection.MaxRetries,
		ConnectTimeout: d.config.ConnectTimeoutDuration(),
		Policy: backoff.Policy{
			BaseDelay:   d.config.BaseDelayDuration(),
			MaxDelay:    d.config.MaxDelayDuration(),
			Exponential: true,
			Jitter:      true,
		},
	})

	if !conn.ConnectWithRetry(d.ctx) {
		conn.Close()
		// The session may have been revoked server-side; do not retry it
		d.store.Reset()
		return nil, nil
	}

	d.connMu.Lock()
	old := d.conn
	d.conn = conn
	d.connMu.Unlock()
	if old != nil {
		old.Close()
	}

	d.logger.Info().
		Str("session_id", sess.ID).
		Msg("Connected with session")
	return conn, sess
}

// receiveLoop pumps inbound messages until the connection drops
func (d *Daemon) receiveLoop(conn *transport.Manager) {
	send := func(data []byte) bool {
		return conn.SendRaw(d.ctx, data)
	}

	for {
		data := conn.Receive(d.ctx)
		if data == nil {
			return
		}
		d.dispatcher.HandleMessage(d.ctx, data, send)
	}
}

// sendReadyEvent announces the agent and its devices after each connect
func (d *Daemon) sendReadyEvent(conn *transport.Manager, sess *session.Session) {
	devices, _ := d.devices.ListAll(d.ctx)

	sessionID := ""
	if sess != nil {
		sessionID = sess.ID
	}

	event := envelope.NewClientEvent(envelope.EventReady, sessionID, map[string]interface{}{
		"connected_devices": devices,
		"selected_device":   d.devices.ActiveInfo(),
		"service_status":    "running",
	})

	if !conn.Send(d.ctx, event) {
		d.logger.Warn().Msg("Failed to send ready event")
		return
	}
	d.logger.Info().
		Int("device_count", len(devices)).
		Msg("Sent ready event")
}

// startHealthCheck starts a periodic health check routine
func (d *Daemon) startHealthCheck() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	d.logger.Info().Msg("Starting health check routine")

	for {
		select {
		case <-ticker.C:
			d.performHealthCheck()
		case <-d.ctx.Done():
			d.logger.Info().Msg("Health check routine stopping")
			return
		}
	}
}

// performHealthCheck logs the connection and device state
func (d *Daemon) performHealthCheck() {
	connected := false
	d.connMu.Lock()
	if d.conn != nil {
		connected = d.conn.IsConnected()
	}
	d.connMu.Unlock()

	devices, _ := d.devices.ListAll(d.ctx)

	d.logger.Info().
		Bool("backend_connected", connected).
		Int("device_count", len(devices)).
		Msg("Health check completed")
}
