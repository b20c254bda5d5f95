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
	"sync"
	"time"

	"github.com/rs/zerolog"

	"drover/internal/logger"
	"drover/internal/robot"
)

// DeviceManager tracks available devices across providers and holds the
// active selection commands operate on.
type DeviceManager struct {
	providers []robot.Provider
	mutex     sync.RWMutex
	logger    zerolog.Logger

	active     *robot.DeviceInfo
	activeBot  robot.Robot
	autoSelect bool
}

// NewDeviceManager creates a device manager over the given providers
func NewDeviceManager(autoSelect bool, providers ...robot.Provider) *DeviceManager {
	return &DeviceManager{
		providers:  providers,
		logger:     logger.New(),
		autoSelect: autoSelect,
	}
}

// ListAll returns every device known to any provider
func (dm *DeviceManager) ListAll(ctx context.Context) ([]robot.DeviceInfo, error) {
	var all []robot.DeviceInfo
	for _, p := range dm.providers {
		devices, err := p.ListDevices(ctx)
		if err != nil {
			dm.logger.Error().Err(err).Msg("Provider device listing failed")
			continue
		}
		all = append(all, devices...)
	}
	if all == nil {
		all = []robot.DeviceInfo{}
	}
	return all, nil
}

// SelectDefault picks the only available device. With auto-select disabled,
// or with zero or multiple devices present, it reports an actionable error
// instead of guessing.
func (dm *DeviceManager) SelectDefault(ctx context.Context) error {
	if !dm.autoSelect {
		return nil
	}

	devices, err := dm.ListAll(ctx)
	if err != nil {
		return err
	}

	switch len(devices) {
	case 0:
		return robot.NewActionableErrorWithCode(
			"No devices available. Connect a device or start a simulator.",
			robot.CodeNoDevices)
	case 1:
		return dm.Select(ctx, devices[0].ID)
	default:
		return robot.NewActionableErrorWithCode(
			"Multiple devices available. Select one explicitly with mobile_use_device.",
			robot.CodeMultipleDevices)
	}
}

// Select makes the device with the given ID the active one
func (dm *DeviceManager) Select(ctx context.Context, id string) error {
	for _, p := range dm.providers {
		info, err := p.DeviceInfo(ctx, id)
		if err != nil {
			return err
		}
		if info == nil {
			continue
		}

		bot, err := p.Robot(*info)
		if err != nil {
			return err
		}

		dm.mutex.Lock()
		dm.active = info
		dm.activeBot = bot
		dm.mutex.Unlock()

		dm.logger.Info().
			Str("device_id", info.ID).
			Str("device_name", info.Name).
			Str("device_type", string(info.Type)).
			Msg("Device selected")
		return nil
	}

	return robot.NewActionableErrorWithCode(
		"Device not found: "+id,
		robot.CodeDeviceNotFound)
}

// Active returns the robot for the currently selected device. When nothing
// is selected yet it attempts the default selection first.
func (dm *DeviceManager) Active(ctx context.Context) (robot.Robot, error) {
	dm.mutex.RLock()
	bot := dm.activeBot
	dm.mutex.RUnlock()

	if bot != nil {
		return bot, nil
	}

	if err := dm.SelectDefault(ctx); err != nil {
		return nil, err
	}

	dm.mutex.RLock()
	bot = dm.activeBot
	dm.mutex.RUnlock()

	if bot == nil {
		return nil, robot.NewActionableErrorWithCode(
			"No device selected. Use mobile_use_device to select one.",
			robot.CodeNoDeviceSelected)
	}
	return bot, nil
}

// ActiveInfo returns the selected device info, or nil when none is selected
func (dm *DeviceManager) ActiveInfo() *robot.DeviceInfo {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	if dm.active == nil {
		return nil
	}
	info := *dm.active
	return &info
}

// Shutdown releases any resources held by selected robots
func (dm *DeviceManager) Shutdown() {
	dm.mutex.Lock()
	bot := dm.activeBot
	dm.active = nil
	dm.activeBot = nil
	dm.mutex.Unlock()

	if cleaner, ok := bot.(robot.Cleaner); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleaner.Cleanup(ctx); err != nil {
			dm.logger.Warn().Err(err).Msg("Robot cleanup failed")
		}
	}
	dm.logger.Info().Msg("Device manager shut down")
}
