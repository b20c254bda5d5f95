package agent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"drover/internal/agent"
	"drover/internal/gateway"
	"drover/internal/robot"
)

// testBackend runs the real gateway stack under an httptest listener so the
// daemon exercises the full path: session mint, websocket connect, command
// dispatch, response delivery.
type testBackend struct {
	server *httptest.Server
	db     *gateway.Database
	hub    *gateway.AgentHub
}

func startTestBackend(t *testing.T) *testBackend {
	t.Helper()

	db, err := gateway.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens := gateway.NewTokenService("test-secret", "drover-gateway", time.Hour)
	hub := gateway.NewAgentHub(tokens, db)
	t.Cleanup(hub.Shutdown)

	// The websocket URL embeds the listener address, which only exists
	// once the server is up, so the handler is bound late.
	var handler http.Handler
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/ws"
	api := gateway.NewAPIServer(db, tokens, hub, wsURL)
	handler = api.Router()

	return &testBackend{server: server, db: db, hub: hub}
}

func daemonConfig(backend *testBackend) *agent.Config {
	config := agent.NewDefaultConfig()
	config.Backend.AuthorityURL = backend.server.URL
	config.Agent.ID = "drover-agent-test"
	config.Connection.MaxRetries = 1
	config.Connection.BaseDelay = 1
	config.Connection.MaxDelay = 1
	config.Connection.ConnectTimeout = 5
	return config
}

func waitForAgent(t *testing.T, hub *gateway.AgentHub, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sessions := hub.ConnectedSessions(); len(sessions) > 0 {
			return sessions[0]
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Agent never connected to the backend")
	return ""
}

func TestDaemonEndToEnd(t *testing.T) {
	backend := startTestBackend(t)

	provider := robot.NewSimProvider(robot.DefaultSimDevice("sim-e2e"))
	daemon := agent.NewDaemon(daemonConfig(backend), provider)

	done := make(chan error, 1)
	go func() { done <- daemon.Start() }()
	t.Cleanup(func() { daemon.Stop() })

	sessionID := waitForAgent(t, backend.hub, 10*time.Second)
	if !strings.HasPrefix(sessionID, "drover-session-") {
		t.Errorf("Unexpected session id: %s", sessionID)
	}

	// The daemon announces itself once connected
	var ready map[string]interface{}
	select {
	case msg := <-backend.hub.Inbound():
		if err := json.Unmarshal(msg.Payload, &ready); err != nil {
			t.Fatalf("Bad ready event: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Ready event never arrived")
	}
	if ready["event"] != "ready" {
		t.Errorf("Unexpected ready event: %v", ready)
	}
	if ready["session_id"] != sessionID {
		t.Errorf("Ready event for wrong session: %v", ready["session_id"])
	}

	// Round trip a command through the real websocket
	corrID, err := backend.hub.SendCommand(context.Background(), sessionID, "mobile_take_screenshot", nil)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	select {
	case msg := <-backend.hub.Inbound():
		var resp map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			t.Fatalf("Bad response: %v", err)
		}
		if resp["id"] != corrID {
			t.Errorf("Expected id %s, got %v", corrID, resp["id"])
		}
		data, _ := resp["data"].(map[string]interface{})
		if _, ok := data["screenshot"]; !ok {
			t.Errorf("Expected screenshot payload, got %v", resp)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Command response never arrived")
	}

	if err := daemon.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Start never returned after Stop")
	}

	// Shutdown revokes the session with the backend
	rec, err := backend.db.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if rec.Status != "deleted" {
		t.Errorf("Expected deleted session after shutdown, got %s", rec.Status)
	}
}

func TestDaemonRenewsSessionOnReconnect(t *testing.T) {
	backend := startTestBackend(t)
	daemon := agent.NewDaemon(daemonConfig(backend))

	go daemon.Start()
	t.Cleanup(func() { daemon.Stop() })

	first := waitForAgent(t, backend.hub, 10*time.Second)
	drainInbound(backend.hub)

	// Drop the socket only; the session row stays active, so the old token
	// would still be accepted if the agent tried to reuse it
	if !backend.hub.DisconnectAgent(first) {
		t.Fatal("DisconnectAgent found no connection")
	}

	// The agent must come back under a fresh session id; redialing with the
	// still-valid old token would reappear as `first`
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		for _, id := range backend.hub.ConnectedSessions() {
			if id != first {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Agent never reconnected with a renewed session (last seen %v)",
		backend.hub.ConnectedSessions())
}

func TestDaemonReconnectsAfterRevocation(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect test waits out the backoff window")
	}

	backend := startTestBackend(t)
	daemon := agent.NewDaemon(daemonConfig(backend))

	go daemon.Start()
	t.Cleanup(func() { daemon.Stop() })

	first := waitForAgent(t, backend.hub, 10*time.Second)
	drainInbound(backend.hub)

	// Revoke through the management API, which also drops the websocket
	req, _ := http.NewRequest(http.MethodDelete, backend.server.URL+"/v1/sessions/"+first, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	// The agent must come back with a fresh session, never the revoked one
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		for _, id := range backend.hub.ConnectedSessions() {
			if id != first {
				return
			}
			t.Fatalf("Agent reconnected with revoked session %s", id)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Agent never reconnected after revocation")
}

func drainInbound(hub *gateway.AgentHub) {
	for {
		select {
		case <-hub.Inbound():
		default:
			return
		}
	}
}
