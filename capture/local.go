package capture

import (
	"context"
	"sync"

	"markestedt/rebind/keys"
)

// Local records from foreground key events. Modifiers accumulate while held;
// the first non-repeat, non-modifier key-down commits.
type Local struct {
	emitter
	os keys.OSType

	mu       sync.Mutex
	started  bool
	finished bool
	final    Update
	pressed  []keys.Token
}

func NewLocal(os keys.OSType) *Local {
	return &Local{emitter: newEmitter(), os: os}
}

func (l *Local) Mode() Mode { return ModeLocal }

func (l *Local) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	l.started = true
	return nil
}

func (l *Local) HandleKey(ev KeyEvent) {
	t := keys.Normalize(ev.Identifier, l.os)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started || l.finished {
		return
	}

	if t == keys.Escape {
		if ev.Down {
			l.end(Update{Kind: UpdateCancel})
		}
		return
	}
	if t == keys.Unknown {
		return
	}

	if keys.IsModifier(t) {
		if ev.Down {
			if ev.Repeat || l.holds(t) {
				return
			}
			l.pressed = append(l.pressed, t)
		} else {
			if !l.holds(t) {
				return
			}
			l.remove(t)
		}
		l.emit(Update{Kind: UpdateDisplay, Combination: keys.NewCombination(l.pressed, "", l.os).String()})
		return
	}

	if !ev.Down || ev.Repeat {
		return
	}

	l.end(Update{Kind: UpdateCommit, Combination: keys.NewCombination(l.pressed, t, l.os).String()})
}

// end records the terminal update and emits it. l.mu must be held.
func (l *Local) end(u Update) {
	l.finished = true
	l.final = u
	l.emit(u)
}

// Settle reports the commit or cancel already signalled. HandleKey is
// synchronous, so there is nothing left to process.
func (l *Local) Settle() (Update, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.final, l.finished
}

// Stop needs no backend call in local mode.
func (l *Local) Stop(ctx context.Context) error {
	l.closeDone()
	return nil
}

// Pressed returns the held modifiers in canonical order.
func (l *Local) Pressed() []keys.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	return keys.Order(l.pressed, l.os)
}

func (l *Local) holds(t keys.Token) bool {
	for _, m := range l.pressed {
		if m == t {
			return true
		}
	}
	return false
}

func (l *Local) remove(t keys.Token) {
	for i, m := range l.pressed {
		if m == t {
			l.pressed = append(l.pressed[:i], l.pressed[i+1:]...)
			return
		}
	}
}
