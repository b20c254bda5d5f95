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

// Package robot defines the capability boundary between the command
// dispatcher and the concrete device-automation backends (ADB shell, WDA
// HTTP, simulators). The dispatcher only ever talks to the Robot interface;
// it never special-cases the backend type.
package robot

import "context"

// Robot is the full capability set an automation backend exposes for one
// device. Every call may fail with an *ActionableError (user-fixable) or an
// opaque backend error.
type Robot interface {
	// App lifecycle
	ListApps(ctx context.Context) ([]InstalledApp, error)
	LaunchApp(ctx context.Context, packageName string) error
	TerminateApp(ctx context.Context, packageName string) error
	IsAppRunning(ctx context.Context, packageName string) (bool, error)
	RunningApps(ctx context.Context) ([]InstalledApp, error)

	// Screen interaction
	Tap(ctx context.Context, x, y int) error
	LongPress(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, direction SwipeDirection) error
	SwipeFrom(ctx context.Context, x, y int, direction SwipeDirection, distance int) error

	// Input
	SendKeys(ctx context.Context, text string) error
	PressButton(ctx context.Context, button Button) error
	OpenURL(ctx context.Context, url string) error

	// Screen state
	Screenshot(ctx context.Context) ([]byte, error)
	ScreenSize(ctx context.Context) (ScreenSize, error)
	Elements(ctx context.Context) ([]ScreenElement, error)
	SetOrientation(ctx context.Context, orientation Orientation) error
	Orientation(ctx context.Context) (Orientation, error)

	// Debugging
	Logs(ctx context.Context, options LogOptions) (string, error)
}

// Cleaner is implemented by robots that hold external resources (tunnels,
// sessions) that must be released when the device is deselected.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Provider discovers devices for one backend family and builds robots for
// them. Concrete ADB and WDA providers live outside this repository; the
// simulated provider in this package backs test mode.
type Provider interface {
	// ListDevices returns all currently reachable devices.
	ListDevices(ctx context.Context) ([]DeviceInfo, error)

	// DeviceInfo returns details for a device id, or nil if this provider
	// does not know the device.
	DeviceInfo(ctx context.Context, id string) (*DeviceInfo, error)

	// Robot builds a robot for a device previously returned by ListDevices.
	Robot(info DeviceInfo) (Robot, error)
}
