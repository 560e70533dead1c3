package systray

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"

	"markestedt/rebind/session"
)

const appName = "Rebind"

// Manager owns the tray icon: a settings link, a quit item and a tooltip
// that follows the recording state.
type Manager struct {
	webPort  int
	iconData []byte
	quit     chan struct{}
	quitOnce sync.Once

	mu       sync.Mutex
	ready    bool
	tooltip  string
	settings *systray.MenuItem
}

// NewManager creates a new tray manager
func NewManager(webPort int, iconData []byte) *Manager {
	return &Manager{
		webPort:  webPort,
		iconData: iconData,
		quit:     make(chan struct{}),
		tooltip:  Tooltip(session.Event{}),
	}
}

// Stop removes the tray icon
func (m *Manager) Stop() {
	systray.Quit()
}

// WaitForQuit returns a channel that will be closed when user clicks Quit
func (m *Manager) WaitForQuit() <-chan struct{} {
	return m.quit
}

func (m *Manager) onReady() {
	if len(m.iconData) > 0 {
		systray.SetIcon(m.iconData)
	}
	systray.SetTitle(appName)

	mSettings := systray.AddMenuItem("Open Settings", "Edit shortcuts in the browser")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit "+appName)

	m.mu.Lock()
	m.ready = true
	m.settings = mSettings
	systray.SetTooltip(m.tooltip)
	m.mu.Unlock()

	go func() {
		for {
			select {
			case <-mSettings.ClickedCh:
				m.openSettings()
			case <-mQuit.ClickedCh:
				slog.Info("User requested quit from system tray")
				m.quitOnce.Do(func() { close(m.quit) })
				systray.Quit()
				return
			}
		}
	}()
}

func (m *Manager) onExit() {
	slog.Info("System tray exited")
	m.quitOnce.Do(func() { close(m.quit) })
}

// Watch keeps the tooltip in step with session events until ctx is done
// or events is closed.
func (m *Manager) Watch(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != session.EventState && ev.Type != session.EventLive {
				continue
			}
			m.setTooltip(Tooltip(ev))
		}
	}
}

func (m *Manager) setTooltip(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tooltip = text
	if m.ready {
		systray.SetTooltip(text)
		if m.settings != nil {
			if text == Tooltip(session.Event{}) {
				m.settings.Enable()
			} else {
				m.settings.Disable()
			}
		}
	}
}

// Tooltip is the tray text for a state or live event.
func Tooltip(ev session.Event) string {
	if ev.Type == session.EventLive && ev.Display != "" {
		return fmt.Sprintf("%s - recording %s: %s", appName, ev.ShortcutID, ev.Display)
	}
	if (ev.Type == session.EventState && ev.State == "recording") || ev.Type == session.EventLive {
		if ev.ShortcutID != "" {
			return fmt.Sprintf("%s - recording %s", appName, ev.ShortcutID)
		}
		return appName + " - recording"
	}
	return appName + " - shortcuts"
}

func (m *Manager) openSettings() {
	url := fmt.Sprintf("http://localhost:%d", m.webPort)
	slog.Info("Opening settings", "url", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		slog.Error("Unsupported platform for opening browser", "platform", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		slog.Error("Failed to open settings", "error", err)
	}
}
