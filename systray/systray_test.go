package systray

import (
	"testing"

	"markestedt/rebind/session"
)

func TestTooltip(t *testing.T) {
	tests := []struct {
		ev   session.Event
		want string
	}{
		{session.Event{}, "Rebind - shortcuts"},
		{session.Event{Type: session.EventState, State: "recording", ShortcutID: "transcribe"}, "Rebind - recording transcribe"},
		{session.Event{Type: session.EventState, State: "recording"}, "Rebind - recording"},
		{session.Event{Type: session.EventState, State: "idle"}, "Rebind - shortcuts"},
		{session.Event{Type: session.EventCommitted, State: "recording"}, "Rebind - shortcuts"},
		{session.Event{Type: session.EventLive, ShortcutID: "cancel", Display: "Ctrl+Alt"}, "Rebind - recording cancel: Ctrl+Alt"},
	}
	for _, tt := range tests {
		if got := Tooltip(tt.ev); got != tt.want {
			t.Errorf("Tooltip(%+v) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}
