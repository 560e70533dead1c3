//go:build linux

package platform

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"markestedt/rebind/keys"
)

const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	keyRepeat  = 2

	// input_event is 24 bytes on 64-bit Linux:
	// timeval (16 bytes) + type (2) + code (2) + value (4)
	inputEventSize = 24

	// _IOW('E', 0x90, int)
	evIOCGRAB = 0x40044590
)

// EvdevHook captures the keyboard by grabbing every /dev/input keyboard
// device with EVIOCGRAB. Requires the user to be in the 'input' group.
type EvdevHook struct {
	os keys.OSType

	mu         sync.Mutex
	capturing  bool
	shortcutID string
	chord      *chord
	files      []*os.File
	events     chan CaptureEvent
	stop       chan struct{}
	readers    sync.WaitGroup
}

// NewHook creates the evdev capture hook.
func NewHook(os keys.OSType) Hook {
	return &EvdevHook{os: os}
}

// StartCapture opens and grabs all keyboards for shortcutID.
func (h *EvdevHook) StartCapture(ctx context.Context, shortcutID string) (<-chan CaptureEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.capturing {
		return nil, ErrCaptureBusy
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keyboards, err := findKeyboards()
	if err != nil {
		return nil, fmt.Errorf("finding keyboards: %w", err)
	}
	if len(keyboards) == 0 {
		return nil, fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}

	var files []*os.File
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		if err := setGrab(f, true); err != nil {
			slog.Warn("Failed to grab keyboard", "path", path, "error", err)
			f.Close()
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("could not grab any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}

	h.capturing = true
	h.shortcutID = shortcutID
	h.chord = newChord(h.os)
	h.files = files
	h.events = make(chan CaptureEvent, 32)
	h.stop = make(chan struct{})

	for _, f := range files {
		h.readers.Add(1)
		go h.readEvents(f)
	}

	slog.Info("Keyboard capture started", "shortcut", shortcutID, "devices", len(files))
	return h.events, nil
}

// StopCapture ungrabs and closes the devices, then closes the event channel.
func (h *EvdevHook) StopCapture(ctx context.Context) error {
	h.mu.Lock()
	if !h.capturing {
		h.mu.Unlock()
		return nil
	}
	close(h.stop)
	var firstErr error
	for _, f := range h.files {
		if err := setGrab(f, false); err != nil && firstErr == nil {
			firstErr = err
		}
		f.Close()
	}
	h.files = nil
	h.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		h.readers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return fmt.Errorf("failed to stop keyboard readers: %w", ctx.Err())
	}

	h.mu.Lock()
	close(h.events)
	h.events = nil
	h.chord = nil
	h.capturing = false
	h.shortcutID = ""
	h.mu.Unlock()

	slog.Info("Keyboard capture stopped")
	if firstErr != nil {
		return fmt.Errorf("failed to release keyboard grab: %w", firstErr)
	}
	return nil
}

func (h *EvdevHook) readEvents(f *os.File) {
	defer h.readers.Done()
	buf := make([]byte, inputEventSize*16)

	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}

		for i := 0; i+inputEventSize <= n; i += inputEventSize {
			evType := binary.LittleEndian.Uint16(buf[i+16:])
			evCode := binary.LittleEndian.Uint16(buf[i+18:])
			evValue := int32(binary.LittleEndian.Uint32(buf[i+20:]))

			if evType != evKey || evValue == keyRepeat {
				continue
			}
			name, ok := evdevNames[evCode]
			if !ok {
				continue
			}
			h.publish(name, evValue == keyPress)
		}
	}
}

func (h *EvdevHook) publish(name string, down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.stop:
		return
	default:
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

func setGrab(f *os.File, grab bool) error {
	value := 0
	if grab {
		value = 1
	}
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioctlErr error
	if err := rc.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), evIOCGRAB, value)
	}); err != nil {
		return err
	}
	return ioctlErr
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}

	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if isKeyboard(e.Name()) {
			keyboards = append(keyboards, filepath.Join("/dev/input", e.Name()))
		}
	}
	return keyboards, nil
}

func isKeyboard(eventName string) bool {
	capsPath := filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key")
	data, err := os.ReadFile(capsPath)
	if err != nil {
		return false
	}
	// Real keyboards have long key capability bitmaps
	caps := strings.TrimSpace(string(data))
	return len(caps) > 10
}
