package robot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SimRobot is an in-memory automation backend used by test mode and the test
// suite. It tracks enough state (orientation, running apps, an event log) for
// command round trips to be observable without real hardware.
type SimRobot struct {
	info DeviceInfo

	mu          sync.Mutex
	screen      ScreenSize
	orientation Orientation
	apps        []InstalledApp
	running     map[string]bool
	events      []string
}

// NewSimRobot creates a simulated robot for the given device.
func NewSimRobot(info DeviceInfo) *SimRobot {
	return &SimRobot{
		info:        info,
		screen:      ScreenSize{Width: 1080, Height: 2400},
		orientation: OrientationPortrait,
		apps: []InstalledApp{
			{PackageName: "com.android.settings", AppName: "Settings", SystemApp: true},
			{PackageName: "com.example.shop", AppName: "Shop", Version: "2.4.1"},
			{PackageName: "com.example.mail", AppName: "Mail", Version: "1.9.0"},
		},
		running: make(map[string]bool),
	}
}

func (r *SimRobot) record(format string, args ...interface{}) {
	r.events = append(r.events, fmt.Sprintf("%s %s",
		time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...)))
}

// Events returns a copy of the recorded interaction log.
func (r *SimRobot) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]string, len(r.events))
	copy(events, r.events)
	return events
}

func (r *SimRobot) ListApps(ctx context.Context) ([]InstalledApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apps := make([]InstalledApp, len(r.apps))
	copy(apps, r.apps)
	return apps, nil
}

func (r *SimRobot) LaunchApp(ctx context.Context, packageName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, app := range r.apps {
		if app.PackageName == packageName {
			r.running[packageName] = true
			r.record("launch %s", packageName)
			return nil
		}
	}
	return NewActionableErrorWithCode(
		fmt.Sprintf("app not installed: %s", packageName), CodeInvalidArgument)
}

func (r *SimRobot) TerminateApp(ctx context.Context, packageName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, packageName)
	r.record("terminate %s", packageName)
	return nil
}

func (r *SimRobot) IsAppRunning(ctx context.Context, packageName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[packageName], nil
}

func (r *SimRobot) RunningApps(ctx context.Context) ([]InstalledApp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var running []InstalledApp
	for _, app := range r.apps {
		if r.running[app.PackageName] {
			running = append(running, app)
		}
	}
	return running, nil
}

func (r *SimRobot) Tap(ctx context.Context, x, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("tap %d,%d", x, y)
	return nil
}

func (r *SimRobot) LongPress(ctx context.Context, x, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("long_press %d,%d", x, y)
	return nil
}

func (r *SimRobot) Swipe(ctx context.Context, direction SwipeDirection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("swipe %s", direction)
	return nil
}

func (r *SimRobot) SwipeFrom(ctx context.Context, x, y int, direction SwipeDirection, distance int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("swipe_from %d,%d %s %d", x, y, direction, distance)
	return nil
}

func (r *SimRobot) SendKeys(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("send_keys %q", text)
	return nil
}

func (r *SimRobot) PressButton(ctx context.Context, button Button) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("press %s", button)
	return nil
}

func (r *SimRobot) OpenURL(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("open_url %s", url)
	return nil
}

// Screenshot returns a fixed PNG header plus device id so callers can verify
// bytes round-tripped without an image codec.
func (r *SimRobot) Screenshot(ctx context.Context) ([]byte, error) {
	header := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return append(header, []byte(r.info.ID)...), nil
}

func (r *SimRobot) ScreenSize(ctx context.Context) (ScreenSize, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.orientation == OrientationLandscape || r.orientation == OrientationLandscapeLeft ||
		r.orientation == OrientationLandscapeRight {
		return ScreenSize{Width: r.screen.Height, Height: r.screen.Width}, nil
	}
	return r.screen, nil
}

func (r *SimRobot) Elements(ctx context.Context) ([]ScreenElement, error) {
	return []ScreenElement{
		{
			ClassName: "android.widget.FrameLayout",
			Bounds:    ElementBounds{Width: 1080, Height: 2400},
			Visible:   true,
			Enabled:   true,
			Children: []ScreenElement{
				{
					ClassName:  "android.widget.Button",
					Text:       "OK",
					ResourceID: "com.example:id/ok",
					Bounds:     ElementBounds{X: 440, Y: 1180, Width: 200, Height: 80},
					Clickable:  true,
					Focusable:  true,
					Enabled:    true,
					Visible:    true,
				},
			},
		},
	}, nil
}

func (r *SimRobot) SetOrientation(ctx context.Context, orientation Orientation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orientation = orientation
	r.record("orientation %s", orientation)
	return nil
}

func (r *SimRobot) Orientation(ctx context.Context) (Orientation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orientation, nil
}

func (r *SimRobot) Logs(ctx context.Context, options LogOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := r.events
	if options.TagFilter != "" {
		var filtered []string
		for _, line := range lines {
			if strings.Contains(line, options.TagFilter) {
				filtered = append(filtered, line)
			}
		}
		lines = filtered
	}
	if options.MaxLines > 0 && len(lines) > options.MaxLines {
		lines = lines[len(lines)-options.MaxLines:]
	}
	return strings.Join(lines, "\n"), nil
}

// SimProvider discovers a fixed set of simulated devices. One SimRobot is
// kept per device so state survives reselection.
type SimProvider struct {
	mu      sync.Mutex
	devices []DeviceInfo
	robots  map[string]*SimRobot
}

// NewSimProvider creates a provider exposing the given devices.
func NewSimProvider(devices ...DeviceInfo) *SimProvider {
	return &SimProvider{
		devices: devices,
		robots:  make(map[string]*SimRobot),
	}
}

// DefaultSimDevice returns the device definition used by test mode.
func DefaultSimDevice(id string) DeviceInfo {
	return DeviceInfo{
		ID:              id,
		Name:            "Simulated Pixel 8",
		Type:            DeviceTypeAndroid,
		PlatformVersion: "14",
		Model:           "Pixel 8",
		Emulator:        true,
		Status:          "available",
	}
}

func (p *SimProvider) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	devices := make([]DeviceInfo, len(p.devices))
	copy(devices, p.devices)
	return devices, nil
}

func (p *SimProvider) DeviceInfo(ctx context.Context, id string) (*DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, device := range p.devices {
		if device.ID == id {
			info := device
			return &info, nil
		}
	}
	return nil, nil
}

func (p *SimProvider) Robot(info DeviceInfo) (Robot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if bot, ok := p.robots[info.ID]; ok {
		return bot, nil
	}
	bot := NewSimRobot(info)
	p.robots[info.ID] = bot
	return bot, nil
}
