//go:build windows

package shortcut

import (
	"golang.design/x/hotkey"

	"markestedt/rebind/keys"
)

var modifierMap = map[keys.Token]hotkey.Modifier{
	keys.Ctrl:    hotkey.ModCtrl,
	keys.Shift:   hotkey.ModShift,
	keys.Alt:     hotkey.ModAlt,
	keys.Option:  hotkey.ModAlt,
	keys.Super:   hotkey.ModWin,
	keys.Command: hotkey.ModWin,
}
