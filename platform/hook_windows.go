//go:build windows

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"markestedt/rebind/keys"
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	setWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	callNextHookEx      = user32.NewProc("CallNextHookEx")
	unhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	peekMessage         = user32.NewProc("PeekMessageW")
)

const (
	whKeyboardLL = 13
	wmKeydown    = 0x0100
	wmKeyup      = 0x0101
	wmSyskeydown = 0x0104
	wmSyskeyup   = 0x0105
	pmRemove     = 0x0001

	// llkhfInjected is set on events synthesized by SendInput.
	llkhfInjected = 0x10
)

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// activeHook receives callbacks from the single low-level hook procedure.
// windows.NewCallback slots are never freed, so the procedure is created once.
var (
	activeHook   atomic.Pointer[WindowsHook]
	hookProcOnce sync.Once
	hookProc     uintptr
)

// WindowsHook captures the keyboard through a WH_KEYBOARD_LL hook. While a
// capture is active every key is swallowed so the recorded chord cannot
// trigger other shortcuts.
type WindowsHook struct {
	os keys.OSType

	mu         sync.Mutex
	capturing  bool
	shortcutID string
	chord      *chord
	events     chan CaptureEvent
	hook       uintptr
	done       chan struct{}
	exited     chan struct{}
}

// NewHook creates the Windows capture hook.
func NewHook(os keys.OSType) Hook {
	return &WindowsHook{os: os}
}

// StartCapture installs the keyboard hook for shortcutID.
func (h *WindowsHook) StartCapture(ctx context.Context, shortcutID string) (<-chan CaptureEvent, error) {
	h.mu.Lock()
	if h.capturing {
		h.mu.Unlock()
		return nil, ErrCaptureBusy
	}
	h.capturing = true
	h.shortcutID = shortcutID
	h.chord = newChord(h.os)
	h.events = make(chan CaptureEvent, 32)
	h.done = make(chan struct{})
	h.exited = make(chan struct{})
	events, done, exited := h.events, h.done, h.exited
	h.mu.Unlock()

	hookProcOnce.Do(func() {
		hookProc = windows.NewCallback(lowLevelKeyboardProc)
	})

	errCh := make(chan error, 1)
	go h.runHook(errCh, done, exited)

	select {
	case err := <-errCh:
		if err != nil {
			h.reset()
			return nil, err
		}
	case <-ctx.Done():
		close(done)
		<-exited
		h.reset()
		return nil, ctx.Err()
	}

	slog.Info("Keyboard capture started", "shortcut", shortcutID)
	return events, nil
}

// StopCapture removes the hook and closes the event channel.
func (h *WindowsHook) StopCapture(ctx context.Context) error {
	h.mu.Lock()
	if !h.capturing {
		h.mu.Unlock()
		return nil
	}
	done, exited := h.done, h.exited
	h.mu.Unlock()

	close(done)
	select {
	case <-exited:
	case <-ctx.Done():
		return fmt.Errorf("failed to release keyboard hook: %w", ctx.Err())
	}

	h.reset()
	slog.Info("Keyboard capture stopped")
	return nil
}

func (h *WindowsHook) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events != nil {
		close(h.events)
	}
	h.capturing = false
	h.events = nil
	h.chord = nil
	h.shortcutID = ""
}

func (h *WindowsHook) runHook(errCh chan<- error, done <-chan struct{}, exited chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(exited)

	hook, _, err := setWindowsHookEx.Call(whKeyboardLL, hookProc, 0, 0)
	if hook == 0 {
		errCh <- fmt.Errorf("SetWindowsHookEx failed: %w", err)
		return
	}

	h.mu.Lock()
	h.hook = hook
	h.mu.Unlock()
	activeHook.Store(h)

	errCh <- nil

	// The hook procedure only runs while this thread pumps messages.
	var m msg
	for {
		select {
		case <-done:
			activeHook.CompareAndSwap(h, nil)
			unhookWindowsHookEx.Call(hook)
			h.mu.Lock()
			h.hook = 0
			h.mu.Unlock()
			return
		default:
			r, _, _ := peekMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmRemove)
			if r != 0 {
				continue
			}
			runtime.Gosched()
		}
	}
}

func lowLevelKeyboardProc(nCode int32, wParam uintptr, lParam uintptr) uintptr {
	if nCode >= 0 {
		if h := activeHook.Load(); h != nil {
			kbInfo := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			if kbInfo.flags&llkhfInjected == 0 {
				h.handleKeyEvent(wParam, kbInfo)
				return 1
			}
		}
	}
	r, _, _ := callNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

func (h *WindowsHook) handleKeyEvent(wParam uintptr, kbInfo *kbdllhookstruct) {
	var down bool
	switch wParam {
	case wmKeydown, wmSyskeydown:
		down = true
	case wmKeyup, wmSyskeyup:
		down = false
	default:
		return
	}

	name := vkName(kbInfo.vkCode)
	if name == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.capturing || h.chord == nil {
		return
	}
	ev, ok := h.chord.update(name, down)
	if !ok {
		return
	}
	select {
	case h.events <- ev:
	default:
		slog.Warn("Capture event dropped", "shortcut", h.shortcutID)
	}
}
