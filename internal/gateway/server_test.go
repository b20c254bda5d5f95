package gateway_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"drover/internal/gateway"
)

// dialAgent connects a raw websocket client the way a field agent would,
// session minted through the gateway's own database and token service.
func dialAgent(t *testing.T, tg *testGateway, sessionID string) *websocket.Conn {
	t.Helper()
	token, expiresAt, err := tg.tokens.GenerateToken(sessionID, "device-"+sessionID)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := tg.db.CreateSession(sessionID, "device-"+sessionID, "LOCAL_CLIENT", "simulator", token, expiresAt); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/v1/ws?token=" + token
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func waitForSession(t *testing.T, hub *gateway.AgentHub, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, id := range hub.ConnectedSessions() {
			if id == sessionID {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Session %s never registered with the hub", sessionID)
}

func TestHubCommandRoundTrip(t *testing.T) {
	tg := setupTestAPI(t)

	conn := dialAgent(t, tg, "sess-rt")
	waitForSession(t, tg.hub, "sess-rt")

	corrID, err := tg.hub.SendCommand(context.Background(), "sess-rt", "mobile_take_screenshot", nil)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Agent read failed: %v", err)
	}

	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Bad command frame: %v", err)
	}
	if frame["type"] != "automation_command" {
		t.Errorf("Expected automation_command, got %v", frame["type"])
	}
	if frame["action"] != "mobile_take_screenshot" {
		t.Errorf("Unexpected action: %v", frame["action"])
	}
	if frame["id"] != corrID {
		t.Errorf("Expected correlation id %s, got %v", corrID, frame["id"])
	}

	// Agent response travels back on the inbound channel
	reply := map[string]interface{}{"type": "response", "id": corrID, "data": map[string]string{"status": "ok"}}
	raw, _ := json.Marshal(reply)
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		t.Fatalf("Agent write failed: %v", err)
	}

	select {
	case msg := <-tg.hub.Inbound():
		if msg.SessionID != "sess-rt" {
			t.Errorf("Expected sess-rt, got %s", msg.SessionID)
		}
		if !strings.Contains(string(msg.Payload), corrID) {
			t.Errorf("Payload missing correlation id: %s", msg.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Inbound message never arrived")
	}
}

func TestSendCommandWithoutAgent(t *testing.T) {
	tg := setupTestAPI(t)

	if _, err := tg.hub.SendCommand(context.Background(), "nobody", "mobile_take_screenshot", nil); err == nil {
		t.Error("Expected error when no agent is connected")
	}
}

func TestDisconnectAgent(t *testing.T) {
	tg := setupTestAPI(t)

	conn := dialAgent(t, tg, "sess-dc")
	waitForSession(t, tg.hub, "sess-dc")

	if !tg.hub.DisconnectAgent("sess-dc") {
		t.Fatal("Expected DisconnectAgent to find the session")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("Expected agent read to fail after forced disconnect")
	}

	if tg.hub.DisconnectAgent("sess-dc") {
		t.Error("Second disconnect must report false")
	}
}

func TestSupersedingConnectionWins(t *testing.T) {
	tg := setupTestAPI(t)

	old := dialAgent(t, tg, "sess-sup")
	waitForSession(t, tg.hub, "sess-sup")

	// Reconnect on the same session id with the same token
	rec, err := tg.db.GetSession("sess-sup")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	wsURL := "ws" + strings.TrimPrefix(tg.server.URL, "http") + "/v1/ws?token=" + rec.Token

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	fresh, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Replacement dial failed: %v", err)
	}
	defer fresh.Close(websocket.StatusNormalClosure, "test done")

	// The old connection gets closed by the hub
	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	if _, _, err := old.Read(readCtx); err == nil {
		t.Error("Expected superseded connection to be closed")
	}

	// Commands route to the fresh connection
	corrID, err := tg.hub.SendCommand(context.Background(), "sess-sup", "mobile_get_screen_size", nil)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	_, data, err := fresh.Read(ctx)
	if err != nil {
		t.Fatalf("Fresh connection read failed: %v", err)
	}
	if !strings.Contains(string(data), corrID) {
		t.Errorf("Command missing correlation id: %s", data)
	}
}
