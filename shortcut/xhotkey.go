//go:build darwin || windows

package shortcut

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.design/x/hotkey"

	"markestedt/rebind/keys"
)

type registration struct {
	hk          *hotkey.Hotkey
	combination string
	stop        chan struct{}
}

// hotkeyRegistrar registers through golang.design/x/hotkey. On macOS the
// process must run the main thread loop (mainthread.Init).
type hotkeyRegistrar struct {
	os        keys.OSType
	onTrigger TriggerFunc

	mu   sync.Mutex
	regs map[string]*registration
}

func New(os keys.OSType, onTrigger TriggerFunc) Registrar {
	return &hotkeyRegistrar{
		os:        os,
		onTrigger: onTrigger,
		regs:      make(map[string]*registration),
	}
}

func (r *hotkeyRegistrar) Register(id, combination string) error {
	c, err := Validate(combination, r.os)
	if err != nil {
		return err
	}
	mods, key, err := toHotkey(c)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.regs[id]; ok {
		if old.combination == combination {
			return nil
		}
		r.release(id, old)
	}

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", combination, err)
	}

	reg := &registration{hk: hk, combination: combination, stop: make(chan struct{})}
	r.regs[id] = reg
	go r.listen(id, reg)

	slog.Info("Registered global shortcut", "shortcut", id, "combination", combination)
	return nil
}

func (r *hotkeyRegistrar) listen(id string, reg *registration) {
	for {
		select {
		case <-reg.stop:
			return
		case _, ok := <-reg.hk.Keydown():
			if !ok {
				return
			}
			if r.onTrigger != nil {
				r.onTrigger(Trigger{ID: id, Combination: reg.combination})
			}
		}
	}
}

func (r *hotkeyRegistrar) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return nil
	}
	return r.release(id, reg)
}

func (r *hotkeyRegistrar) release(id string, reg *registration) error {
	delete(r.regs, id)
	close(reg.stop)
	if err := reg.hk.Unregister(); err != nil {
		return fmt.Errorf("failed to unregister hotkey %s: %w", reg.combination, err)
	}
	return nil
}

func (r *hotkeyRegistrar) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, reg := range r.regs {
		if err := r.release(id, reg); err != nil {
			slog.Warn("Failed to unregister shortcut", "shortcut", id, "error", err)
		}
	}
}

func toHotkey(c keys.Combination) ([]hotkey.Modifier, hotkey.Key, error) {
	mods := make([]hotkey.Modifier, 0, len(c.Modifiers))
	for _, m := range c.Modifiers {
		hm, ok := modifierMap[m]
		if !ok {
			return nil, 0, fmt.Errorf("modifier %q cannot be used in a global shortcut", m)
		}
		mods = append(mods, hm)
	}
	key, ok := keyMap[c.Key]
	if !ok {
		return nil, 0, fmt.Errorf("key %q cannot be used in a global shortcut", c.Key)
	}
	return mods, key, nil
}

var keyMap = map[keys.Token]hotkey.Key{
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,

	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,

	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
	"f13": hotkey.KeyF13, "f14": hotkey.KeyF14, "f15": hotkey.KeyF15, "f16": hotkey.KeyF16,
	"f17": hotkey.KeyF17, "f18": hotkey.KeyF18, "f19": hotkey.KeyF19, "f20": hotkey.KeyF20,

	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"delete": hotkey.KeyDelete,
	"up":     hotkey.KeyUp,
	"down":   hotkey.KeyDown,
	"left":   hotkey.KeyLeft,
	"right":  hotkey.KeyRight,
}
