package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"markestedt/rebind/keys"
	"markestedt/rebind/platform"
)

// Driver records from the push feed of an exclusive OS hook. A key-down
// with a non-empty hotkey string updates the held combination; the first
// key-up after that commits it.
type Driver struct {
	emitter
	hook       platform.Hook
	shortcutID string
	os         keys.OSType

	settle   chan chan struct{}
	pumpDone chan struct{}

	mu       sync.Mutex
	acquired bool
	stopped  bool
	finished bool
	final    Update
	held     string
}

func NewDriver(hook platform.Hook, shortcutID string, os keys.OSType) *Driver {
	return &Driver{
		emitter:    newEmitter(),
		hook:       hook,
		shortcutID: shortcutID,
		os:         os,
		settle:     make(chan chan struct{}),
		pumpDone:   make(chan struct{}),
	}
}

func (d *Driver) Mode() Mode { return ModeDriver }

// Start acquires the hook. If Stop ran while the acquire was in flight the
// hook is released again before returning ErrStopped.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.mu.Unlock()

	feed, err := d.hook.StartCapture(ctx, d.shortcutID)
	if err != nil {
		return fmt.Errorf("failed to start key capture: %w", err)
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		if err := d.hook.StopCapture(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to release late hook acquisition", "shortcut", d.shortcutID, "error", err)
		}
		return ErrStopped
	}
	d.acquired = true
	d.mu.Unlock()

	go d.pump(feed)
	return nil
}

// pump is the only reader of feed, so events are handled in arrival order
// even when Settle asks for a flush.
func (d *Driver) pump(feed <-chan platform.CaptureEvent) {
	defer close(d.pumpDone)
	for {
		select {
		case <-d.done:
			return
		case reply := <-d.settle:
			for n := len(feed); n > 0; n-- {
				d.onEvent(<-feed)
			}
			close(reply)
		case ev, ok := <-feed:
			if !ok {
				d.lost()
				return
			}
			d.onEvent(ev)
		}
	}
}

// Settle has the pump handle every feed event already buffered, then
// reports the terminal update signalled so far.
func (d *Driver) Settle() (Update, bool) {
	d.mu.Lock()
	running := d.acquired && !d.stopped
	d.mu.Unlock()

	if running {
		reply := make(chan struct{})
		select {
		case d.settle <- reply:
			select {
			case <-reply:
			case <-d.pumpDone:
			}
		case <-d.pumpDone:
		case <-d.done:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.final, d.finished
}

// end records the terminal update and emits it. d.mu must be held.
func (d *Driver) end(u Update) {
	d.finished = true
	d.final = u
	d.emit(u)
}

func (d *Driver) onEvent(ev platform.CaptureEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished || d.stopped {
		return
	}

	if ev.IsKeyDown && keys.Normalize(ev.KeyName(), d.os) == keys.Escape {
		d.end(Update{Kind: UpdateCancel})
		return
	}

	if ev.IsKeyDown {
		if ev.HotkeyString != "" {
			d.held = ev.HotkeyString
			d.emit(Update{Kind: UpdateDisplay, Combination: d.held})
		}
		return
	}

	if d.held != "" {
		d.end(Update{Kind: UpdateCommit, Combination: d.held})
	}
}

func (d *Driver) lost() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished || d.stopped {
		return
	}
	d.end(Update{Kind: UpdateLost})
}

// HandleKey only watches for a foreground Escape; every other key arrives
// through the hook feed.
func (d *Driver) HandleKey(ev KeyEvent) {
	if !ev.Down || keys.Normalize(ev.Identifier, d.os) != keys.Escape {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.finished || d.stopped {
		return
	}
	d.end(Update{Kind: UpdateCancel})
}

// Stop releases the hook once. Calls after the first are no-ops.
func (d *Driver) Stop(ctx context.Context) error {
	// Unblock any emit holding d.mu before taking it.
	d.closeDone()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	acquired := d.acquired
	d.mu.Unlock()

	if !acquired {
		return nil
	}
	if err := d.hook.StopCapture(ctx); err != nil {
		return fmt.Errorf("failed to stop key capture: %w", err)
	}
	return nil
}
