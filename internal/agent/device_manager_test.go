package agent_test

import (
	"context"
	"errors"
	"testing"

	"drover/internal/agent"
	"drover/internal/robot"
)

func TestSelectDefaultSingleDevice(t *testing.T) {
	devices := agent.NewDeviceManager(true,
		robot.NewSimProvider(robot.DefaultSimDevice("only-one")))

	if err := devices.SelectDefault(context.Background()); err != nil {
		t.Fatalf("Expected auto-selection to succeed: %v", err)
	}

	info := devices.ActiveInfo()
	if info == nil || info.ID != "only-one" {
		t.Errorf("Expected only-one selected, got %v", info)
	}
}

func TestSelectDefaultNoDevices(t *testing.T) {
	devices := agent.NewDeviceManager(true, robot.NewSimProvider())

	err := devices.SelectDefault(context.Background())
	var actionable *robot.ActionableError
	if !errors.As(err, &actionable) {
		t.Fatalf("Expected ActionableError, got %v", err)
	}
	if actionable.Code != robot.CodeNoDevices {
		t.Errorf("Expected NO_DEVICES, got %s", actionable.Code)
	}
}

func TestSelectDefaultMultipleDevices(t *testing.T) {
	devices := agent.NewDeviceManager(true,
		robot.NewSimProvider(
			robot.DefaultSimDevice("sim-a"),
			robot.DefaultSimDevice("sim-b"),
		))

	err := devices.SelectDefault(context.Background())
	var actionable *robot.ActionableError
	if !errors.As(err, &actionable) {
		t.Fatalf("Expected ActionableError, got %v", err)
	}
	if actionable.Code != robot.CodeMultipleDevices {
		t.Errorf("Expected MULTIPLE_DEVICES, got %s", actionable.Code)
	}

	// Explicit selection still works
	if err := devices.Select(context.Background(), "sim-b"); err != nil {
		t.Fatalf("Expected explicit selection to succeed: %v", err)
	}
	if devices.ActiveInfo().ID != "sim-b" {
		t.Error("Expected sim-b selected")
	}
}

func TestSelectDefaultDisabled(t *testing.T) {
	devices := agent.NewDeviceManager(false,
		robot.NewSimProvider(robot.DefaultSimDevice("only-one")))

	if err := devices.SelectDefault(context.Background()); err != nil {
		t.Fatalf("Expected no-op with auto-select off: %v", err)
	}
	if devices.ActiveInfo() != nil {
		t.Error("Expected no selection with auto-select disabled")
	}
}

func TestActiveWithoutSelection(t *testing.T) {
	devices := agent.NewDeviceManager(true,
		robot.NewSimProvider(robot.DefaultSimDevice("lazy-select")))

	// Active triggers the default selection when nothing is selected yet
	bot, err := devices.Active(context.Background())
	if err != nil {
		t.Fatalf("Expected lazy selection to succeed: %v", err)
	}
	if bot == nil {
		t.Fatal("Expected a robot")
	}
	if devices.ActiveInfo().ID != "lazy-select" {
		t.Error("Expected lazy-select as active device")
	}
}

func TestShutdownClearsSelection(t *testing.T) {
	devices := agent.NewDeviceManager(true,
		robot.NewSimProvider(robot.DefaultSimDevice("shut-down")))

	if err := devices.Select(context.Background(), "shut-down"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	devices.Shutdown()

	if devices.ActiveInfo() != nil {
		t.Error("Expected selection cleared after shutdown")
	}
}
