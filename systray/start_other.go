//go:build !darwin

package systray

import (
	"runtime"

	"github.com/getlantern/systray"
)

// Start runs the tray loop on its own locked thread.
func (m *Manager) Start() {
	go func() {
		runtime.LockOSThread()
		systray.Run(m.onReady, m.onExit)
	}()
}
