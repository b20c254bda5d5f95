package agent_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"testing"

	"drover/internal/agent"
	"drover/internal/robot"
)

var commandSeq atomic.Int64

func runCommand(t *testing.T, dispatcher *agent.Dispatcher, action string, params string) map[string]interface{} {
	t.Helper()
	send, out := collectResponses()
	raw := fmt.Sprintf(`{"type": "automation_command", "id": "t-%s-%d", "action": "%s", "params": %s}`,
		action, commandSeq.Add(1), action, params)
	dispatcher.HandleMessage(context.Background(), []byte(raw), send)
	return waitResponse(t, out)
}

func errorCode(t *testing.T, resp map[string]interface{}) string {
	t.Helper()
	errObj, ok := resp["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected error object, got %v", resp)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestHandleUseDevice(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		dispatcher, devices := newTestDispatcher()
		resp := runCommand(t, dispatcher, "mobile_use_device", `{"device_id": "sim-test"}`)

		if resp["success"] != true {
			t.Fatalf("Expected success, got %v", resp)
		}
		if devices.ActiveInfo() == nil || devices.ActiveInfo().ID != "sim-test" {
			t.Error("Expected sim-test to be the active device")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		resp := runCommand(t, dispatcher, "mobile_use_device", `{"device_id": "no-such"}`)

		if got := errorCode(t, resp); got != robot.CodeDeviceNotFound {
			t.Errorf("Expected DEVICE_NOT_FOUND, got %s", got)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher()
		resp := runCommand(t, dispatcher, "mobile_use_device", `{}`)

		if got := errorCode(t, resp); got != robot.CodeMissingArgument {
			t.Errorf("Expected MISSING_ARGUMENT, got %s", got)
		}
	})
}

func TestHandleTapArgumentValidation(t *testing.T) {
	dispatcher, _ := newTestDispatcher()

	resp := runCommand(t, dispatcher, "mobile_click_on_screen_at_coordinates", `{"x": 100}`)
	if got := errorCode(t, resp); got != robot.CodeMissingArgument {
		t.Errorf("Expected MISSING_ARGUMENT for missing y, got %s", got)
	}

	resp = runCommand(t, dispatcher, "mobile_click_on_screen_at_coordinates", `{"x": "left", "y": 5}`)
	if got := errorCode(t, resp); got != robot.CodeInvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT for string x, got %s", got)
	}

	resp = runCommand(t, dispatcher, "mobile_click_on_screen_at_coordinates", `{"x": 100, "y": 200}`)
	if resp["success"] != true {
		t.Errorf("Expected tap to succeed, got %v", resp)
	}
}

func TestHandleSwipeDirectionValidation(t *testing.T) {
	dispatcher, _ := newTestDispatcher()

	resp := runCommand(t, dispatcher, "swipe_on_screen", `{"direction": "diagonal"}`)
	if got := errorCode(t, resp); got != robot.CodeInvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT, got %s", got)
	}

	resp = runCommand(t, dispatcher, "swipe_on_screen", `{"direction": "up"}`)
	if resp["success"] != true {
		t.Errorf("Expected swipe to succeed, got %v", resp)
	}

	resp = runCommand(t, dispatcher, "swipe_on_screen", `{"direction": "left", "x": 500, "y": 800, "distance": 200}`)
	if resp["success"] != true {
		t.Errorf("Expected anchored swipe to succeed, got %v", resp)
	}
}

func TestHandleScreenshotReturnsBase64(t *testing.T) {
	dispatcher, _ := newTestDispatcher()

	resp := runCommand(t, dispatcher, "mobile_take_screenshot", `{}`)
	if resp["success"] != true {
		t.Fatalf("Expected screenshot to succeed, got %v", resp)
	}

	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected data object")
	}
	encoded, ok := data["screenshot"].(string)
	if !ok || encoded == "" {
		t.Fatal("Expected non-empty screenshot field")
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		t.Errorf("Screenshot is not valid base64: %v", err)
	}
}

func TestHandleScreenSize(t *testing.T) {
	dispatcher, _ := newTestDispatcher()

	resp := runCommand(t, dispatcher, "mobile_get_screen_size", `{}`)
	if resp["success"] != true {
		t.Fatalf("Expected success, got %v", resp)
	}

	data := resp["data"].(map[string]interface{})
	size, ok := data["screen_size"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected screen_size object")
	}
	if size["width"].(float64) <= 0 || size["height"].(float64) <= 0 {
		t.Errorf("Expected positive dimensions, got %v", size)
	}
}

func TestHandleAppLifecycle(t *testing.T) {
	dispatcher, _ := newTestDispatcher()

	resp := runCommand(t, dispatcher, "mobile_launch_app", `{"package_name": "com.example.shop"}`)
	if resp["success"] != true {
		t.Fatalf("Expected launch to succeed, got %v", resp)
	}

	resp = runCommand(t, dispatcher, "mobile_check_app_running", `{"package_name": "com.example.shop"}`)
	data := resp["data"].(map[string]interface{})
	if data["is_running"] != true {
		t.Error("Expected app to be running after launch")
	}

	resp = runCommand(t, dispatcher, "mobile_terminate_app", `{"package_name": "com.example.shop"}`)
	if resp["success"] != true {
		t.Fatalf("Expected terminate to succeed, got %v", resp)
	}

	resp = runCommand(t, dispatcher, "mobile_check_app_running", `{"package_name": "com.example.shop"}`)
	data = resp["data"].(map[string]interface{})
	if data["is_running"] != false {
		t.Error("Expected app to be stopped after terminate")
	}
}

func TestHandleOrientation(t *testing.T) {
	dispatcher, _ := newTestDispatcher()

	resp := runCommand(t, dispatcher, "mobile_set_orientation", `{"orientation": "landscape"}`)
	if resp["success"] != true {
		t.Fatalf("Expected set orientation to succeed, got %v", resp)
	}

	resp = runCommand(t, dispatcher, "mobile_get_orientation", `{}`)
	data := resp["data"].(map[string]interface{})
	if data["orientation"] != "landscape" {
		t.Errorf("Expected landscape, got %v", data["orientation"])
	}

	resp = runCommand(t, dispatcher, "mobile_set_orientation", `{"orientation": "sideways"}`)
	if got := errorCode(t, resp); got != robot.CodeInvalidArgument {
		t.Errorf("Expected INVALID_ARGUMENT, got %s", got)
	}
}

func TestHandleListDevicesWithoutSelection(t *testing.T) {
	dispatcher, devices := newTestDispatcher()

	resp := runCommand(t, dispatcher, "mobile_list_available_devices", `{}`)
	if resp["success"] != true {
		t.Fatalf("Expected success, got %v", resp)
	}

	// Listing devices must not select one
	if devices.ActiveInfo() != nil {
		t.Error("Listing devices must not change the selection")
	}

	data := resp["data"].(map[string]interface{})
	listed, ok := data["devices"].([]interface{})
	if !ok || len(listed) != 1 {
		t.Errorf("Expected one device, got %v", data["devices"])
	}
}
