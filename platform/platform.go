package platform

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported is returned when exclusive capture is not available on
	// this platform. Callers should fall back to local capture.
	ErrUnsupported = errors.New("exclusive key capture is not supported on this platform")

	// ErrCaptureBusy is returned when a capture is already in progress.
	ErrCaptureBusy = errors.New("key capture already in progress")
)

// CaptureEvent is one key-state update pushed by an exclusive capture hook.
type CaptureEvent struct {
	Modifiers    []string `json:"modifiers"`
	Key          *string  `json:"key"`
	IsKeyDown    bool     `json:"is_key_down"`
	HotkeyString string   `json:"hotkey_string"`
}

// KeyName returns the main key, or "" when the event carries none.
func (e CaptureEvent) KeyName() string {
	if e.Key == nil {
		return ""
	}
	return *e.Key
}

// Hook grabs the keyboard exclusively while a shortcut is being recorded and
// streams key-state events. StopCapture releases the grab and closes the
// event channel.
type Hook interface {
	StartCapture(ctx context.Context, shortcutID string) (<-chan CaptureEvent, error)
	StopCapture(ctx context.Context) error
}
