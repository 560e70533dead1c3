// Package keys normalizes raw key identifiers into canonical tokens and
// renders OS-ordered combination strings such as "command+shift+d".
//
// Everything in this package is pure: the same identifier and OS always
// produce the same token, and ordering a set of modifiers is idempotent.
package keys

import (
	"runtime"
	"strings"
)

// OSType selects the modifier vocabulary and ordering table.
type OSType string

const (
	MacOS     OSType = "macos"
	Windows   OSType = "windows"
	Linux     OSType = "linux"
	UnknownOS OSType = "unknown"
)

// CurrentOS reports the OS type of the running process.
func CurrentOS() OSType {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	case "linux":
		return Linux
	default:
		return UnknownOS
	}
}

// ParseOSType maps a configured OS name to an OSType. An empty string means
// the current OS.
func ParseOSType(s string) OSType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return CurrentOS()
	case "macos", "darwin", "mac":
		return MacOS
	case "windows", "win":
		return Windows
	case "linux":
		return Linux
	default:
		return UnknownOS
	}
}

// Token is a canonical key name.
type Token string

const (
	// Unknown marks an identifier the normalizer could not map. Events
	// carrying it are discarded by capture sources.
	Unknown Token = "unknown"

	Shift   Token = "shift"
	Ctrl    Token = "ctrl"
	Alt     Token = "alt"
	Option  Token = "option"
	Command Token = "command"
	Super   Token = "super"
	Fn      Token = "fn"

	Escape Token = "escape"
)

var modifierTokens = map[Token]bool{
	Shift:   true,
	Ctrl:    true,
	Alt:     true,
	Option:  true,
	Command: true,
	Super:   true,
	Fn:      true,
}

// IsModifier reports whether t is one of the fixed modifier tokens.
func IsModifier(t Token) bool {
	return modifierTokens[t]
}

// genericModifiers maps every accepted modifier spelling to a generic token
// that platformModifier then specialises per OS.
var genericModifiers = map[string]Token{
	"shift":        Shift,
	"shiftleft":    Shift,
	"shiftright":   Shift,
	"ctrl":         Ctrl,
	"control":      Ctrl,
	"controlleft":  Ctrl,
	"controlright": Ctrl,
	"alt":          Alt,
	"altleft":      Alt,
	"altright":     Alt,
	"option":       Alt,
	"opt":          Alt,
	"meta":         Command,
	"metaleft":     Command,
	"metaright":    Command,
	"cmd":          Command,
	"command":      Command,
	"super":        Command,
	"win":          Command,
	"windows":      Command,
	"os":           Command,
	"osleft":       Command,
	"osright":      Command,
	"fn":           Fn,
}

func platformModifier(t Token, os OSType) Token {
	switch t {
	case Alt:
		if os == MacOS {
			return Option
		}
		return Alt
	case Command:
		if os == MacOS {
			return Command
		}
		return Super
	}
	return t
}

var namedKeys = map[string]Token{
	"escape":    Escape,
	"esc":       Escape,
	"enter":     "enter",
	"return":    "enter",
	"space":     "space",
	" ":         "space",
	"spacebar":  "space",
	"tab":       "tab",
	"backspace": "backspace",
	"delete":    "delete",
	"del":       "delete",
	"insert":    "insert",
	"home":      "home",
	"end":       "end",
	"pageup":    "pageup",
	"pagedown":  "pagedown",

	"arrowup":    "up",
	"arrowdown":  "down",
	"arrowleft":  "left",
	"arrowright": "right",
	"up":         "up",
	"down":       "down",
	"left":       "left",
	"right":      "right",

	"capslock":    "capslock",
	"numlock":     "numlock",
	"scrolllock":  "scrolllock",
	"printscreen": "printscreen",
	"pause":       "pause",
	"contextmenu": "menu",
	"menu":        "menu",

	"minus":        "minus",
	"-":            "minus",
	"equal":        "equal",
	"=":            "equal",
	"plus":         "plus",
	"+":            "plus",
	"bracketleft":  "bracketleft",
	"[":            "bracketleft",
	"bracketright": "bracketright",
	"]":            "bracketright",
	"backslash":    "backslash",
	"\\":           "backslash",
	"semicolon":    "semicolon",
	";":            "semicolon",
	"quote":        "quote",
	"'":            "quote",
	"backquote":    "backquote",
	"`":            "backquote",
	"comma":        "comma",
	",":            "comma",
	"period":       "period",
	".":            "period",
	"slash":        "slash",
	"/":            "slash",
}

var numpadSuffixes = map[string]bool{
	"add":      true,
	"subtract": true,
	"multiply": true,
	"divide":   true,
	"decimal":  true,
	"enter":    true,
	"equal":    true,
}

// Normalize maps a raw key identifier to its canonical token for os.
// It never fails: identifiers it does not recognise map to Unknown.
func Normalize(identifier string, os OSType) Token {
	if identifier == " " {
		return "space"
	}
	id := strings.ToLower(strings.TrimSpace(identifier))
	if id == "" {
		return Unknown
	}

	if t, ok := genericModifiers[id]; ok {
		return platformModifier(t, os)
	}
	if t, ok := namedKeys[id]; ok {
		return t
	}
	if t, ok := codeToken(id); ok {
		return t
	}
	if len(id) == 1 && isAlnum(id[0]) {
		return Token(id)
	}
	return Unknown
}

// codeToken handles KeyboardEvent.code style names: KeyA, Digit1, Numpad5,
// F1..F24.
func codeToken(id string) (Token, bool) {
	switch {
	case len(id) == 4 && strings.HasPrefix(id, "key") && isLetter(id[3]):
		return Token(id[3:]), true
	case len(id) == 6 && strings.HasPrefix(id, "digit") && isDigit(id[5]):
		return Token(id[5:]), true
	case strings.HasPrefix(id, "numpad"):
		suffix := id[len("numpad"):]
		if (len(suffix) == 1 && isDigit(suffix[0])) || numpadSuffixes[suffix] {
			return Token(id), true
		}
	case len(id) >= 2 && len(id) <= 3 && id[0] == 'f':
		n := 0
		for i := 1; i < len(id); i++ {
			if !isDigit(id[i]) {
				return "", false
			}
			n = n*10 + int(id[i]-'0')
		}
		if n >= 1 && n <= 24 && id[1] != '0' {
			return Token(id), true
		}
	}
	return "", false
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isAlnum(c byte) bool  { return isLetter(c) || isDigit(c) }
