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
	"encoding/base64"
	"fmt"

	"drover/internal/robot"
)

// registerHandlers wires every supported command to its implementation.
// Handler names are the wire-level action names the backend sends.
func (d *Dispatcher) registerHandlers() {
	// Device management
	d.Register("mobile_list_available_devices", d.handleListDevices)
	d.Register("mobile_use_default_device", d.handleUseDefaultDevice)
	d.Register("mobile_use_device", d.handleUseDevice)

	// Screen interaction
	d.Register("mobile_click_on_screen_at_coordinates", d.handleTap)
	d.Register("mobile_long_press_on_screen_at_coordinates", d.handleLongPress)
	d.Register("swipe_on_screen", d.handleSwipe)
	d.Register("mobile_type_keys", d.handleTypeKeys)
	d.Register("mobile_press_button", d.handlePressButton)
	d.Register("mobile_open_url", d.handleOpenURL)

	// Screen inspection
	d.Register("mobile_take_screenshot", d.handleScreenshot)
	d.Register("mobile_get_screen_size", d.handleScreenSize)
	d.Register("mobile_list_elements_on_screen", d.handleListElements)
	d.Register("mobile_get_orientation", d.handleGetOrientation)
	d.Register("mobile_set_orientation", d.handleSetOrientation)

	// App management
	d.Register("mobile_launch_app", d.handleLaunchApp)
	d.Register("mobile_terminate_app", d.handleTerminateApp)
	d.Register("mobile_list_apps", d.handleListApps)
	d.Register("mobile_check_app_running", d.handleCheckAppRunning)
	d.Register("mobile_get_running_apps", d.handleRunningApps)

	// Diagnostics
	d.Register("mobile_get_logs", d.handleGetLogs)
}

func (d *Dispatcher) handleListDevices(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	devices, err := d.devices.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"devices": devices}, nil
}

func (d *Dispatcher) handleUseDefaultDevice(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := d.devices.SelectDefault(ctx); err != nil {
		return nil, err
	}
	info := d.devices.ActiveInfo()
	if info == nil {
		return nil, robot.NewActionableErrorWithCode(
			"No device selected. Use mobile_use_device to select one.",
			robot.CodeNoDeviceSelected)
	}
	return map[string]interface{}{"selected_device": info}, nil
}

func (d *Dispatcher) handleUseDevice(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	deviceID, err := requireString(args, "device_id")
	if err != nil {
		return nil, err
	}
	if err := d.devices.Select(ctx, deviceID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"selected_device": d.devices.ActiveInfo()}, nil
}

func (d *Dispatcher) handleTap(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	x, err := requireInt(args, "x")
	if err != nil {
		return nil, err
	}
	y, err := requireInt(args, "y")
	if err != nil {
		return nil, err
	}
	if err := bot.Tap(ctx, x, y); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Tapped at (%d, %d)", x, y)}, nil
}

func (d *Dispatcher) handleLongPress(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	x, err := requireInt(args, "x")
	if err != nil {
		return nil, err
	}
	y, err := requireInt(args, "y")
	if err != nil {
		return nil, err
	}
	if err := bot.LongPress(ctx, x, y); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Long-pressed at (%d, %d)", x, y)}, nil
}

func (d *Dispatcher) handleSwipe(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	rawDirection, err := requireString(args, "direction")
	if err != nil {
		return nil, err
	}
	direction, err := robot.ParseSwipeDirection(rawDirection)
	if err != nil {
		return nil, err
	}

	// A starting coordinate turns this into an anchored swipe
	if _, hasX := args["x"]; hasX {
		x, err := requireInt(args, "x")
		if err != nil {
			return nil, err
		}
		y, err := requireInt(args, "y")
		if err != nil {
			return nil, err
		}
		distance := optionalInt(args, "distance", 400)
		if err := bot.SwipeFrom(ctx, x, y, direction, distance); err != nil {
			return nil, err
		}
		return map[string]interface{}{"message": fmt.Sprintf("Swiped %s from (%d, %d)", direction, x, y)}, nil
	}

	if err := bot.Swipe(ctx, direction); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Swiped %s", direction)}, nil
}

func (d *Dispatcher) handleTypeKeys(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	text := optionalString(args, "text", "")
	if err := bot.SendKeys(ctx, text); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Typed: %s", text)}, nil
}

func (d *Dispatcher) handlePressButton(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	rawButton, err := requireString(args, "button")
	if err != nil {
		return nil, err
	}
	button, err := robot.ParseButton(rawButton)
	if err != nil {
		return nil, err
	}
	if err := bot.PressButton(ctx, button); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Pressed %s", button)}, nil
}

func (d *Dispatcher) handleOpenURL(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	url, err := requireString(args, "url")
	if err != nil {
		return nil, err
	}
	if err := bot.OpenURL(ctx, url); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Opened URL: %s", url)}, nil
}

func (d *Dispatcher) handleScreenshot(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	screenshot, err := bot.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"screenshot": base64.StdEncoding.EncodeToString(screenshot),
	}, nil
}

func (d *Dispatcher) handleScreenSize(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	size, err := bot.ScreenSize(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"screen_size": size}, nil
}

func (d *Dispatcher) handleListElements(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	elements, err := bot.Elements(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"elements": elements}, nil
}

func (d *Dispatcher) handleGetOrientation(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	orientation, err := bot.Orientation(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"orientation": orientation}, nil
}

func (d *Dispatcher) handleSetOrientation(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	rawOrientation, err := requireString(args, "orientation")
	if err != nil {
		return nil, err
	}
	orientation, err := robot.ParseOrientation(rawOrientation)
	if err != nil {
		return nil, err
	}
	if err := bot.SetOrientation(ctx, orientation); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Orientation set to %s", orientation)}, nil
}

func (d *Dispatcher) handleLaunchApp(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	packageName, err := requireString(args, "package_name")
	if err != nil {
		return nil, err
	}
	if err := bot.LaunchApp(ctx, packageName); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Launched app: %s", packageName)}, nil
}

func (d *Dispatcher) handleTerminateApp(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	packageName, err := requireString(args, "package_name")
	if err != nil {
		return nil, err
	}
	if err := bot.TerminateApp(ctx, packageName); err != nil {
		return nil, err
	}
	return map[string]interface{}{"message": fmt.Sprintf("Terminated app: %s", packageName)}, nil
}

func (d *Dispatcher) handleListApps(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := bot.ListApps(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"apps": apps}, nil
}

func (d *Dispatcher) handleCheckAppRunning(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	packageName, err := requireString(args, "package_name")
	if err != nil {
		return nil, err
	}
	running, err := bot.IsAppRunning(ctx, packageName)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"is_running": running}, nil
}

func (d *Dispatcher) handleRunningApps(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := bot.RunningApps(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"apps": apps}, nil
}

func (d *Dispatcher) handleGetLogs(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	bot, err := d.devices.Active(ctx)
	if err != nil {
		return nil, err
	}
	options := robot.LogOptions{
		Level:     optionalString(args, "level", ""),
		TagFilter: optionalString(args, "tag_filter", ""),
		MaxLines:  optionalInt(args, "max_lines", 0),
	}
	logs, err := bot.Logs(ctx, options)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"logs": logs}, nil
}

// Argument extraction helpers. JSON numbers decode as float64, so integer
// arguments accept both forms.

func requireString(args map[string]interface{}, key string) (string, error) {
	value, ok := args[key]
	if !ok || value == nil {
		return "", robot.NewActionableErrorWithCode(
			fmt.Sprintf("%s parameter is required", key),
			robot.CodeMissingArgument)
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", robot.NewActionableErrorWithCode(
			fmt.Sprintf("%s parameter must be a non-empty string", key),
			robot.CodeInvalidArgument)
	}
	return s, nil
}

func requireInt(args map[string]interface{}, key string) (int, error) {
	value, ok := args[key]
	if !ok || value == nil {
		return 0, robot.NewActionableErrorWithCode(
			fmt.Sprintf("%s parameter is required", key),
			robot.CodeMissingArgument)
	}
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	}
	return 0, robot.NewActionableErrorWithCode(
		fmt.Sprintf("%s parameter must be a number", key),
		robot.CodeInvalidArgument)
}

func optionalString(args map[string]interface{}, key, fallback string) string {
	if value, ok := args[key].(string); ok {
		return value
	}
	return fallback
}

func optionalInt(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
