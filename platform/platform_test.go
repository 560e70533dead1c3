package platform

import (
	"reflect"
	"testing"

	"markestedt/rebind/keys"
)

func TestChordSequence(t *testing.T) {
	c := newChord(keys.MacOS)

	steps := []struct {
		name       string
		down       bool
		wantOK     bool
		wantDown   bool
		wantMods   []string
		wantKey    string
		wantHotkey string
	}{
		{"shift", true, true, true, []string{"shift"}, "", "shift"},
		{"meta", true, true, true, []string{"command", "shift"}, "", "command+shift"},
		{"d", true, true, true, []string{"command", "shift"}, "d", "command+shift+d"},
		{"d", false, true, false, []string{"command", "shift"}, "d", "command+shift+d"},
		{"meta", false, true, false, []string{"command", "shift"}, "", "command+shift"},
		{"meta", false, false, false, nil, "", ""},
		{"bogus", true, false, false, nil, "", ""},
	}

	for i, s := range steps {
		ev, ok := c.update(s.name, s.down)
		if ok != s.wantOK {
			t.Fatalf("step %d (%s): ok = %v, want %v", i, s.name, ok, s.wantOK)
		}
		if !ok {
			continue
		}
		if ev.IsKeyDown != s.wantDown {
			t.Errorf("step %d: IsKeyDown = %v", i, ev.IsKeyDown)
		}
		if !reflect.DeepEqual(ev.Modifiers, s.wantMods) {
			t.Errorf("step %d: Modifiers = %v, want %v", i, ev.Modifiers, s.wantMods)
		}
		if ev.KeyName() != s.wantKey {
			t.Errorf("step %d: Key = %q, want %q", i, ev.KeyName(), s.wantKey)
		}
		if ev.HotkeyString != s.wantHotkey {
			t.Errorf("step %d: HotkeyString = %q, want %q", i, ev.HotkeyString, s.wantHotkey)
		}
	}
}

func TestVKName(t *testing.T) {
	tests := []struct {
		vk   uint32
		want string
	}{
		{'A', "a"},
		{'Z', "z"},
		{'7', "7"},
		{0x70, "f1"},
		{0x87, "f24"},
		{0x62, "numpad2"},
		{0xA2, "ctrl"},
		{0x5B, "win"},
		{0x1B, "escape"},
		{0xFF, ""},
	}
	for _, tt := range tests {
		if got := vkName(tt.vk); got != tt.want {
			t.Errorf("vkName(%#x) = %q, want %q", tt.vk, got, tt.want)
		}
	}
}

func TestKeyTablesNormalize(t *testing.T) {
	for vk := uint32(0); vk < 0x100; vk++ {
		name := vkName(vk)
		if name == "" {
			continue
		}
		if keys.Normalize(name, keys.Windows) == keys.Unknown {
			t.Errorf("vk %#x name %q does not normalize", vk, name)
		}
	}
	for code, name := range evdevNames {
		if keys.Normalize(name, keys.Linux) == keys.Unknown {
			t.Errorf("evdev code %d name %q does not normalize", code, name)
		}
	}
}
