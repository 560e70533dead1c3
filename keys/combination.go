package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCombination is returned when parsing an empty combination string.
var ErrEmptyCombination = errors.New("empty key combination")

// Combination is an ordered set of modifiers plus an optional main key.
type Combination struct {
	Modifiers []Token
	Key       Token
}

// NewCombination deduplicates mods and orders them for os.
func NewCombination(mods []Token, key Token, os OSType) Combination {
	seen := make(map[Token]bool, len(mods))
	uniq := make([]Token, 0, len(mods))
	for _, m := range mods {
		if seen[m] {
			continue
		}
		seen[m] = true
		uniq = append(uniq, m)
	}
	return Combination{Modifiers: Order(uniq, os), Key: key}
}

// IsEmpty reports whether the combination has neither modifiers nor a key.
func (c Combination) IsEmpty() bool {
	return len(c.Modifiers) == 0 && c.Key == ""
}

// String renders the canonical "mod+mod+key" form.
func (c Combination) String() string {
	parts := make([]string, 0, len(c.Modifiers)+1)
	for _, m := range c.Modifiers {
		parts = append(parts, string(m))
	}
	if c.Key != "" {
		parts = append(parts, string(c.Key))
	}
	return strings.Join(parts, "+")
}

// ParseCombination parses a combination such as "ctrl+shift+v", "cmd+k" or
// the modifier-only "ctrl+win". Parts are normalized for os, so aliases are
// accepted. Escape cannot be bound because it always cancels a recording.
func ParseCombination(s string, os OSType) (Combination, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Combination{}, ErrEmptyCombination
	}

	parts := strings.Split(raw, "+")
	var mods []Token
	var key Token
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Combination{}, fmt.Errorf("empty key in combination %q", raw)
		}
		t := Normalize(part, os)
		switch {
		case t == Unknown:
			return Combination{}, fmt.Errorf("unknown key %q in combination %q", part, raw)
		case t == Escape:
			return Combination{}, fmt.Errorf("escape cannot be part of a shortcut: %q", raw)
		case IsModifier(t):
			mods = append(mods, t)
		default:
			if i != len(parts)-1 {
				return Combination{}, fmt.Errorf("key %q must be the last part of %q", part, raw)
			}
			key = t
		}
	}

	return NewCombination(mods, key, os), nil
}

var macSymbols = map[Token]string{
	Command: "⌘",
	Option:  "⌥",
	Shift:   "⇧",
	Ctrl:    "⌃",
	Fn:      "fn",
}

// Display renders a combination string for humans: symbols on macOS
// ("⌘⇧D"), title-cased names joined with "+" elsewhere ("Ctrl+Alt+M").
// Unparseable input is returned unchanged.
func Display(combination string, os OSType) string {
	if combination == "" {
		return ""
	}
	c, err := ParseCombination(combination, os)
	if err != nil {
		return combination
	}

	var parts []string
	for _, m := range c.Modifiers {
		if os == MacOS {
			parts = append(parts, macSymbols[m])
			continue
		}
		parts = append(parts, titleCase(string(m)))
	}
	if c.Key != "" {
		parts = append(parts, titleCase(string(c.Key)))
	}

	if os == MacOS {
		return strings.Join(parts, "")
	}
	return strings.Join(parts, "+")
}

func titleCase(s string) string {
	if len(s) == 1 {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
