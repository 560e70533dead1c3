// Package capture turns raw key input into live combination updates and a
// single commit or cancel signal per recording.
//
// Two sources exist. Driver reads the push feed of an exclusive OS hook
// (platform.Hook). Local is fed foreground key events by the settings UI
// through HandleKey. Both emit Update values on a bounded channel that only
// the session controller consumes; after a Commit or Cancel a source emits
// nothing further.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"markestedt/rebind/keys"
	"markestedt/rebind/platform"
)

// ErrStopped is returned by Start when the source was stopped first.
var ErrStopped = errors.New("capture source stopped")

// Mode identifies the capture variant.
type Mode int

const (
	ModeLocal Mode = iota
	ModeDriver
)

func (m Mode) String() string {
	switch m {
	case ModeDriver:
		return "driver"
	case ModeLocal:
		return "local"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a keyboard implementation name to a Mode. "handy_keys" and
// "tauri" are accepted as older names for driver and local.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "driver", "handy_keys":
		return ModeDriver, nil
	case "local", "tauri", "":
		return ModeLocal, nil
	default:
		return ModeLocal, fmt.Errorf("unknown keyboard implementation %q", s)
	}
}

// UpdateKind classifies an Update.
type UpdateKind int

const (
	// UpdateDisplay carries the live combination currently held.
	UpdateDisplay UpdateKind = iota
	// UpdateCommit carries the combination to bind.
	UpdateCommit
	// UpdateCancel is raised by an Escape key-down.
	UpdateCancel
	// UpdateLost reports that the driver feed ended without Stop.
	UpdateLost
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateDisplay:
		return "display"
	case UpdateCommit:
		return "commit"
	case UpdateCancel:
		return "cancel"
	case UpdateLost:
		return "lost"
	default:
		return fmt.Sprintf("update(%d)", int(k))
	}
}

// Update is one message from a source to the controller.
type Update struct {
	Kind        UpdateKind
	Combination string
}

// KeyEvent is a raw foreground key event.
type KeyEvent struct {
	Identifier string
	Down       bool
	Repeat     bool
	Timestamp  time.Time
}

// Source is implemented by Driver and Local.
type Source interface {
	Mode() Mode
	// Start begins capturing. For Driver it acquires the OS hook.
	Start(ctx context.Context) error
	// HandleKey delivers a foreground key event.
	HandleKey(ev KeyEvent)
	// Settle processes input the source has already received and returns
	// the terminal update (commit, cancel or lost) it has signalled, if any.
	// The update may still be queued on Updates.
	Settle() (Update, bool)
	// Stop ends capturing. It is safe to call more than once and releases
	// the OS hook exactly once if it was acquired.
	Stop(ctx context.Context) error
	Updates() <-chan Update
}

// New builds the source for mode.
func New(mode Mode, shortcutID string, os keys.OSType, hook platform.Hook) (Source, error) {
	switch mode {
	case ModeDriver:
		if hook == nil {
			return nil, fmt.Errorf("driver capture requires a hook")
		}
		return NewDriver(hook, shortcutID, os), nil
	case ModeLocal:
		return NewLocal(os), nil
	default:
		return nil, fmt.Errorf("unknown capture mode %v", mode)
	}
}

const updateBuffer = 16

// emitter owns the update channel shared by both sources.
type emitter struct {
	updates  chan Update
	done     chan struct{}
	doneOnce sync.Once
}

func newEmitter() emitter {
	return emitter{
		updates: make(chan Update, updateBuffer),
		done:    make(chan struct{}),
	}
}

// emit blocks until the controller reads u or the source is stopped.
func (e *emitter) emit(u Update) {
	select {
	case e.updates <- u:
	case <-e.done:
	}
}

func (e *emitter) closeDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

func (e *emitter) Updates() <-chan Update { return e.updates }
