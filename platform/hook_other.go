//go:build !windows && !linux

package platform

import (
	"context"

	"markestedt/rebind/keys"
)

type unsupportedHook struct{}

// NewHook returns a hook that always fails with ErrUnsupported. macOS needs
// accessibility-trusted event taps, which this build does not ship.
func NewHook(os keys.OSType) Hook {
	return unsupportedHook{}
}

func (unsupportedHook) StartCapture(ctx context.Context, shortcutID string) (<-chan CaptureEvent, error) {
	return nil, ErrUnsupported
}

func (unsupportedHook) StopCapture(ctx context.Context) error { return nil }
