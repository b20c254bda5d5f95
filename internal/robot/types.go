package robot

import (
	"fmt"
	"time"
)

// DeviceType identifies the automation backend family for a device.
type DeviceType string

const (
	DeviceTypeAndroid   DeviceType = "android"
	DeviceTypeIOS       DeviceType = "ios"
	DeviceTypeSimulator DeviceType = "simulator"
)

// SwipeDirection is a screen swipe direction.
type SwipeDirection string

const (
	SwipeUp    SwipeDirection = "up"
	SwipeDown  SwipeDirection = "down"
	SwipeLeft  SwipeDirection = "left"
	SwipeRight SwipeDirection = "right"
)

// ParseSwipeDirection validates a direction string from command arguments.
func ParseSwipeDirection(s string) (SwipeDirection, error) {
	switch SwipeDirection(s) {
	case SwipeUp, SwipeDown, SwipeLeft, SwipeRight:
		return SwipeDirection(s), nil
	}
	return "", NewActionableErrorWithCode(fmt.Sprintf("invalid direction: %s", s), CodeInvalidArgument)
}

// Button is a physical or virtual device button.
type Button string

const (
	ButtonHome       Button = "home"
	ButtonBack       Button = "back"
	ButtonMenu       Button = "menu"
	ButtonVolumeUp   Button = "volume_up"
	ButtonVolumeDown Button = "volume_down"
	ButtonPower      Button = "power"
	ButtonRecentApps Button = "recent_apps"
)

// ParseButton validates a button name from command arguments.
func ParseButton(s string) (Button, error) {
	switch Button(s) {
	case ButtonHome, ButtonBack, ButtonMenu, ButtonVolumeUp, ButtonVolumeDown, ButtonPower, ButtonRecentApps:
		return Button(s), nil
	}
	return "", NewActionableErrorWithCode(fmt.Sprintf("invalid button: %s", s), CodeInvalidArgument)
}

// Orientation is a screen orientation.
type Orientation string

const (
	OrientationPortrait           Orientation = "portrait"
	OrientationLandscape          Orientation = "landscape"
	OrientationPortraitUpsideDown Orientation = "portrait_upside_down"
	OrientationLandscapeLeft      Orientation = "landscape_left"
	OrientationLandscapeRight     Orientation = "landscape_right"
)

// ParseOrientation validates an orientation string from command arguments.
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case OrientationPortrait, OrientationLandscape, OrientationPortraitUpsideDown,
		OrientationLandscapeLeft, OrientationLandscapeRight:
		return Orientation(s), nil
	}
	return "", NewActionableErrorWithCode(fmt.Sprintf("invalid orientation: %s", s), CodeInvalidArgument)
}

// DeviceInfo describes a discovered device.
type DeviceInfo struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Type            DeviceType `json:"type"`
	PlatformVersion string     `json:"platform_version,omitempty"`
	Model           string     `json:"model,omitempty"`
	Emulator        bool       `json:"is_emulator"`
	Status          string     `json:"status"`
}

// ScreenSize is the device screen resolution in pixels.
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ElementBounds is the on-screen rectangle of a UI element.
type ElementBounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScreenElement is one node of the UI element tree.
type ScreenElement struct {
	ID          string          `json:"id,omitempty"`
	ClassName   string          `json:"class_name,omitempty"`
	Text        string          `json:"text,omitempty"`
	ContentDesc string          `json:"content_desc,omitempty"`
	ResourceID  string          `json:"resource_id,omitempty"`
	Bounds      ElementBounds   `json:"bounds"`
	Clickable   bool            `json:"clickable"`
	Focusable   bool            `json:"focusable"`
	Enabled     bool            `json:"enabled"`
	Visible     bool            `json:"visible"`
	Children    []ScreenElement `json:"children,omitempty"`
}

// InstalledApp describes an application installed on the device.
type InstalledApp struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name"`
	Version     string `json:"version,omitempty"`
	SystemApp   bool   `json:"is_system_app"`
}

// LogOptions filters a device log request.
type LogOptions struct {
	Level     string     `json:"level,omitempty"`
	TagFilter string     `json:"tag_filter,omitempty"`
	MaxLines  int        `json:"max_lines,omitempty"`
	Since     *time.Time `json:"since_timestamp,omitempty"`
}
