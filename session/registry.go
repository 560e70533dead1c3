package session

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names a registry event.
type EventType string

const (
	EventState             EventType = "state"
	EventLive              EventType = "live"
	EventCommitted         EventType = "committed"
	EventCancelled         EventType = "cancelled"
	EventFailed            EventType = "failed"
	EventInconsistent      EventType = "inconsistent"
	EventHookFailed        EventType = "hook_failed"
	EventShortcutTriggered EventType = "shortcut_triggered"
)

// Event is pushed to every subscriber.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id,omitempty"`
	ShortcutID  string    `json:"shortcut_id,omitempty"`
	State       string    `json:"state,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	Combination string    `json:"combination,omitempty"`
	Display     string    `json:"display,omitempty"`
	Trigger     string    `json:"trigger,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Registry fans controller events out to listeners (web hub, tray,
// feedback). It is created once per process and injected where needed.
type Registry struct {
	mu      sync.Mutex
	running bool
	subs    map[int]chan Event
	next    int
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[int]chan Event)}
}

// Init starts accepting subscribers and events.
func (r *Registry) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = true
}

// Shutdown closes every subscriber channel. Later Publish calls are dropped.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
}

// Subscribe returns a channel of events and a func that removes it. After
// Shutdown the returned channel is already closed.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		close(ch)
		return ch, func() {}
	}

	id := r.next
	r.next++
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if c, ok := r.subs[id]; ok {
				close(c)
				delete(r.subs, id)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (r *Registry) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	for id, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("Dropping event for slow subscriber", "subscriber", id, "type", ev.Type)
		}
	}
}
