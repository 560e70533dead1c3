package platform

import (
	"context"
	"sync"
)

// FakeHook is an in-memory Hook for tests and headless runs.
type FakeHook struct {
	mu         sync.Mutex
	events     chan CaptureEvent
	shortcutID string
	starts     int
	stops      int

	// StartErr, when set, is returned by StartCapture.
	StartErr error
	// StopErr, when set, is returned by StopCapture.
	StopErr error
	// StartGate, when set, blocks StartCapture until it is closed.
	StartGate chan struct{}
}

func NewFakeHook() *FakeHook {
	return &FakeHook{}
}

func (f *FakeHook) StartCapture(ctx context.Context, shortcutID string) (<-chan CaptureEvent, error) {
	if f.StartGate != nil {
		select {
		case <-f.StartGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.events != nil {
		return nil, ErrCaptureBusy
	}
	f.starts++
	f.shortcutID = shortcutID
	f.events = make(chan CaptureEvent, 32)
	return f.events, nil
}

func (f *FakeHook) StopCapture(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.events != nil {
		close(f.events)
		f.events = nil
	}
	return f.StopErr
}

// Send pushes ev onto the active capture feed. It reports false when no
// capture is active.
func (f *FakeHook) Send(ev CaptureEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		return false
	}
	f.events <- ev
	return true
}

// Press sends a key-down carrying hotkey as the held combination.
func (f *FakeHook) Press(hotkey string, mods []string, key string) bool {
	ev := CaptureEvent{Modifiers: mods, IsKeyDown: true, HotkeyString: hotkey}
	if key != "" {
		ev.Key = &key
	}
	return f.Send(ev)
}

// Release sends a key-up.
func (f *FakeHook) Release(hotkey string) bool {
	return f.Send(CaptureEvent{IsKeyDown: false, HotkeyString: hotkey})
}

// Disconnect closes the feed without a StopCapture call, as if the backend
// died.
func (f *FakeHook) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events != nil {
		close(f.events)
		f.events = nil
	}
}

func (f *FakeHook) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *FakeHook) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *FakeHook) Capturing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events != nil
}

func (f *FakeHook) ShortcutID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shortcutID
}
