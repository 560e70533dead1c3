//go:build !darwin && !windows

package shortcut

import (
	"log/slog"
	"sync"

	"markestedt/rebind/keys"
)

// validatingRegistrar records bindings without activating them. Linux
// global hotkeys are served by the evdev capture backend instead.
type validatingRegistrar struct {
	os keys.OSType

	mu    sync.Mutex
	bound map[string]string
}

func New(os keys.OSType, onTrigger TriggerFunc) Registrar {
	return &validatingRegistrar{os: os, bound: make(map[string]string)}
}

func (r *validatingRegistrar) Register(id, combination string) error {
	if _, err := Validate(combination, r.os); err != nil {
		return err
	}
	r.mu.Lock()
	r.bound[id] = combination
	r.mu.Unlock()
	slog.Warn("Global shortcuts are not registered on this platform", "shortcut", id, "combination", combination)
	return nil
}

func (r *validatingRegistrar) Unregister(id string) error {
	r.mu.Lock()
	delete(r.bound, id)
	r.mu.Unlock()
	return nil
}

func (r *validatingRegistrar) Close() {
	r.mu.Lock()
	clear(r.bound)
	r.mu.Unlock()
}
