// Package shortcut activates committed combinations as global OS hotkeys.
package shortcut

import (
	"fmt"

	"markestedt/rebind/keys"
)

// Registrar owns the global hotkey registered for each shortcut id.
type Registrar interface {
	// Register activates combination for id, replacing any previous
	// registration for the same id.
	Register(id, combination string) error
	// Unregister removes the hotkey for id. Unknown ids are ignored.
	Unregister(id string) error
	// Close unregisters everything.
	Close()
}

// Trigger is one press of a registered shortcut.
type Trigger struct {
	ID          string `json:"id"`
	Combination string `json:"combination"`
}

// TriggerFunc receives shortcut presses.
type TriggerFunc func(Trigger)

// Validate parses combination for os and reports whether it can be bound as
// a global hotkey.
func Validate(combination string, os keys.OSType) (keys.Combination, error) {
	c, err := keys.ParseCombination(combination, os)
	if err != nil {
		return keys.Combination{}, err
	}
	if c.Key == "" {
		return keys.Combination{}, fmt.Errorf("combination %q has no main key", combination)
	}
	return c, nil
}
