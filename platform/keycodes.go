package platform

import "fmt"

// vkNames maps Windows virtual-key codes to names the keys package
// understands. Letters, digits and F-keys are filled in by vkName.
var vkNames = map[uint32]string{
	0x08: "backspace",
	0x09: "tab",
	0x0D: "enter",
	0x10: "shift",
	0x11: "ctrl",
	0x12: "alt",
	0x13: "pause",
	0x14: "capslock",
	0x1B: "escape",
	0x20: "space",
	0x21: "pageup",
	0x22: "pagedown",
	0x23: "end",
	0x24: "home",
	0x25: "left",
	0x26: "up",
	0x27: "right",
	0x28: "down",
	0x2C: "printscreen",
	0x2D: "insert",
	0x2E: "delete",
	0x5B: "win",
	0x5C: "win",
	0x5D: "menu",
	0x90: "numlock",
	0x91: "scrolllock",
	0xA0: "shift",
	0xA1: "shift",
	0xA2: "ctrl",
	0xA3: "ctrl",
	0xA4: "alt",
	0xA5: "alt",
	0xBA: "semicolon",
	0xBB: "equal",
	0xBC: "comma",
	0xBD: "minus",
	0xBE: "period",
	0xBF: "slash",
	0xC0: "backquote",
	0xDB: "bracketleft",
	0xDC: "backslash",
	0xDD: "bracketright",
	0xDE: "quote",
}

// vkName returns the key name for a virtual-key code, or "" if unmapped.
func vkName(vk uint32) string {
	switch {
	case vk >= 'A' && vk <= 'Z':
		return string(rune(vk + 'a' - 'A'))
	case vk >= '0' && vk <= '9':
		return string(rune(vk))
	case vk >= 0x60 && vk <= 0x69:
		return fmt.Sprintf("numpad%d", vk-0x60)
	case vk >= 0x70 && vk <= 0x87:
		return fmt.Sprintf("f%d", vk-0x70+1)
	}
	return vkNames[vk]
}

// evdevNames maps Linux input event codes (linux/input-event-codes.h) to
// key names.
var evdevNames = map[uint16]string{
	1:   "escape",
	2:   "1",
	3:   "2",
	4:   "3",
	5:   "4",
	6:   "5",
	7:   "6",
	8:   "7",
	9:   "8",
	10:  "9",
	11:  "0",
	12:  "minus",
	13:  "equal",
	14:  "backspace",
	15:  "tab",
	16:  "q",
	17:  "w",
	18:  "e",
	19:  "r",
	20:  "t",
	21:  "y",
	22:  "u",
	23:  "i",
	24:  "o",
	25:  "p",
	26:  "bracketleft",
	27:  "bracketright",
	28:  "enter",
	29:  "ctrl",
	30:  "a",
	31:  "s",
	32:  "d",
	33:  "f",
	34:  "g",
	35:  "h",
	36:  "j",
	37:  "k",
	38:  "l",
	39:  "semicolon",
	40:  "quote",
	41:  "backquote",
	42:  "shift",
	43:  "backslash",
	44:  "z",
	45:  "x",
	46:  "c",
	47:  "v",
	48:  "b",
	49:  "n",
	50:  "m",
	51:  "comma",
	52:  "period",
	53:  "slash",
	54:  "shift",
	56:  "alt",
	57:  "space",
	58:  "capslock",
	59:  "f1",
	60:  "f2",
	61:  "f3",
	62:  "f4",
	63:  "f5",
	64:  "f6",
	65:  "f7",
	66:  "f8",
	67:  "f9",
	68:  "f10",
	69:  "numlock",
	70:  "scrolllock",
	87:  "f11",
	88:  "f12",
	97:  "ctrl",
	99:  "printscreen",
	100: "alt",
	102: "home",
	103: "up",
	104: "pageup",
	105: "left",
	106: "right",
	107: "end",
	108: "down",
	109: "pagedown",
	110: "insert",
	111: "delete",
	119: "pause",
	125: "meta",
	126: "meta",
	127: "menu",
	183: "f13",
	184: "f14",
	185: "f15",
	186: "f16",
	187: "f17",
	188: "f18",
	189: "f19",
	190: "f20",
	191: "f21",
	192: "f22",
	193: "f23",
	194: "f24",
	464: "fn",
}
