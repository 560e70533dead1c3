//go:build darwin

package shortcut

import (
	"golang.design/x/hotkey"

	"markestedt/rebind/keys"
)

var modifierMap = map[keys.Token]hotkey.Modifier{
	keys.Ctrl:    hotkey.ModCtrl,
	keys.Shift:   hotkey.ModShift,
	keys.Option:  hotkey.ModOption,
	keys.Alt:     hotkey.ModOption,
	keys.Command: hotkey.ModCmd,
	keys.Super:   hotkey.ModCmd,
}
