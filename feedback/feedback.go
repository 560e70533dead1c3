// Package feedback plays short audible cues when a recording starts and
// when it ends.
package feedback

import (
	"context"
	"log/slog"

	"markestedt/rebind/session"
)

// Sink plays a cue. *Player satisfies it.
type Sink interface {
	Play(c Cue, volume float64) error
}

// Settings reports whether cues are enabled and at what volume. It is read
// for every event so config changes apply immediately.
type Settings func() (enabled bool, volume float64)

// CueFor maps a session event to a cue. ok is false for events that stay
// silent.
func CueFor(ev session.Event) (Cue, bool) {
	switch ev.Type {
	case session.EventState:
		if ev.State == "recording" {
			return CueStart, true
		}
	case session.EventCommitted:
		return CueCommit, true
	case session.EventCancelled:
		return CueCancel, true
	case session.EventFailed, session.EventInconsistent, session.EventHookFailed:
		return CueError, true
	}
	return 0, false
}

// Run plays cues for events until ctx is done or events is closed.
func Run(ctx context.Context, events <-chan session.Event, sink Sink, settings Settings) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			cue, ok := CueFor(ev)
			if !ok {
				continue
			}
			enabled, volume := settings()
			if !enabled {
				continue
			}
			if err := sink.Play(cue, volume); err != nil {
				slog.Debug("Failed to play cue", "cue", cue, "error", err)
			}
		}
	}
}
