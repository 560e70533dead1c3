package platform

import (
	"markestedt/rebind/keys"
)

// chord tracks the keys currently held down during a capture and turns each
// raw press or release into a CaptureEvent.
type chord struct {
	os   keys.OSType
	mods []keys.Token
	key  keys.Token
}

func newChord(os keys.OSType) *chord {
	return &chord{os: os}
}

// update applies one raw key transition. It reports false for keys the
// normalizer does not know and for releases of keys that were never held.
func (c *chord) update(name string, down bool) (CaptureEvent, bool) {
	t := keys.Normalize(name, c.os)
	if t == keys.Unknown {
		return CaptureEvent{}, false
	}

	if down {
		if keys.IsModifier(t) {
			if !c.holds(t) {
				c.mods = append(c.mods, t)
			}
		} else {
			c.key = t
		}
		return c.event(true, t), true
	}

	// Release: report the chord as it was held, then drop the key.
	held := c.current()
	if keys.IsModifier(t) {
		if !c.holds(t) {
			return CaptureEvent{}, false
		}
		ev := c.event(false, t)
		ev.HotkeyString = held
		c.remove(t)
		return ev, true
	}
	if c.key != t {
		return CaptureEvent{}, false
	}
	ev := c.event(false, t)
	ev.HotkeyString = held
	c.key = ""
	return ev, true
}

func (c *chord) event(down bool, t keys.Token) CaptureEvent {
	ordered := keys.Order(c.mods, c.os)
	mods := make([]string, len(ordered))
	for i, m := range ordered {
		mods[i] = string(m)
	}
	ev := CaptureEvent{
		Modifiers:    mods,
		IsKeyDown:    down,
		HotkeyString: c.current(),
	}
	if !keys.IsModifier(t) {
		name := string(t)
		ev.Key = &name
	}
	return ev
}

func (c *chord) current() string {
	return keys.NewCombination(c.mods, c.key, c.os).String()
}

func (c *chord) holds(t keys.Token) bool {
	for _, m := range c.mods {
		if m == t {
			return true
		}
	}
	return false
}

func (c *chord) remove(t keys.Token) {
	for i, m := range c.mods {
		if m == t {
			c.mods = append(c.mods[:i], c.mods[i+1:]...)
			return
		}
	}
}
