//go:build darwin

package systray

import (
	"github.com/getlantern/systray"
	"golang.design/x/hotkey/mainthread"
)

// Start registers the tray on the main thread. The Cocoa loop driven by
// mainthread.Init runs it.
func (m *Manager) Start() {
	mainthread.Call(func() {
		systray.Register(m.onReady, m.onExit)
	})
}
