package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"markestedt/rebind/binding"
	"markestedt/rebind/capture"
	"markestedt/rebind/config"
	"markestedt/rebind/feedback"
	"markestedt/rebind/keys"
	"markestedt/rebind/platform"
	"markestedt/rebind/session"
	"markestedt/rebind/shortcut"
	"markestedt/rebind/storage"
	"markestedt/rebind/systray"
	"markestedt/rebind/web"
)

// Agent wires the binding store, the OS registrar, the capture hook and the
// recording controller, and serves the settings page.
type Agent struct {
	configPath string
	logLevel   *slog.LevelVar
	withTray   bool

	mu  sync.RWMutex
	cfg *config.Config

	os        keys.OSType
	db        *storage.DB
	registry  *session.Registry
	registrar shortcut.Registrar
	sync      *binding.Synchronizer
	ctrl      *session.Controller
	server    *web.Server
	player    *feedback.Player
	tray      *systray.Manager
}

// NewAgent opens storage and builds every component. Nothing is registered
// with the OS until Run.
func NewAgent(cfg *config.Config, configPath string, logLevel *slog.LevelVar, withTray bool) (*Agent, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := db.SeedBindings(seedFrom(cfg)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed bindings: %w", err)
	}

	a := &Agent{
		configPath: configPath,
		logLevel:   logLevel,
		withTray:   withTray,
		cfg:        cfg,
		os:         cfg.OSType(),
		db:         db,
		registry:   session.NewRegistry(),
	}
	a.registry.Init()

	a.registrar = shortcut.New(a.os, a.onTrigger)
	a.sync = binding.New(db, a.registrar, a.os)
	a.ctrl = session.NewController(session.Options{
		Store:    db,
		Sync:     a.sync,
		Hook:     platform.NewHook(a.os),
		Registry: a.registry,
		History:  db,
		OS:       a.os,
		Mode:     a.mode,
	})

	a.server = web.NewServer(web.Options{
		DB:         db,
		Controller: a.ctrl,
		Registry:   a.registry,
		Config:     cfg,
		ConfigPath: configPath,
		OnConfig:   a.applyConfig,
	})

	// The player exists even when cues are off so enabling them later in
	// the config takes effect without a restart.
	player, err := feedback.NewPlayer()
	if err != nil {
		slog.Warn("Audio feedback unavailable", "error", err)
	} else {
		a.player = player
	}

	if withTray {
		a.tray = systray.NewManager(cfg.Web.Port, nil)
	}

	return a, nil
}

func seedFrom(cfg *config.Config) []storage.Binding {
	seed := make([]storage.Binding, 0, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		seed = append(seed, storage.Binding{
			ID:             b.ID,
			Name:           b.Name,
			Description:    b.Description,
			DefaultBinding: b.Default,
		})
	}
	return seed
}

func (a *Agent) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// setConfig swaps in cfg and returns the previous config.
func (a *Agent) setConfig(cfg *config.Config) *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.cfg
	a.cfg = cfg
	return old
}

// feedbackSettings is read by the cue player for every event.
func (a *Agent) feedbackSettings() (bool, float64) {
	cfg := a.config()
	return cfg.Feedback.Enabled, cfg.Feedback.Volume
}

// mode is read at every recording start, so a config change applies to the
// next session.
func (a *Agent) mode() capture.Mode {
	return a.config().Mode()
}

func (a *Agent) onTrigger(t shortcut.Trigger) {
	slog.Info("Shortcut triggered", "shortcut", t.ID, "combination", t.Combination)
	a.registry.Publish(session.Event{
		Type:        session.EventShortcutTriggered,
		ShortcutID:  t.ID,
		Combination: t.Combination,
		Display:     keys.Display(t.Combination, a.os),
	})
}

// applyConfig takes a changed config from the settings page or the file
// watcher.
func (a *Agent) applyConfig(cfg *config.Config) {
	old := a.setConfig(cfg)

	a.logLevel.Set(cfg.LogLevel())
	a.server.UpdateConfig(cfg)

	if err := a.db.SeedBindings(seedFrom(cfg)); err != nil {
		slog.Error("Failed to seed bindings from config", "error", err)
	}

	if old.Web.Port != cfg.Web.Port || old.OSType() != cfg.OSType() {
		slog.Warn("Port and OS changes take effect after restart")
	}
	slog.Info("Configuration applied", "keyboard", cfg.Mode(), "feedback", cfg.Feedback.Enabled)
}

// Run registers the stored bindings and serves until ctx is done or the
// tray asks to quit.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.sync.Activate(ctx); err != nil {
		slog.Warn("Some shortcuts could not be registered", "error", err)
	}

	var wg sync.WaitGroup
	if a.player != nil {
		events, unsubscribe := a.registry.Subscribe(16)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsubscribe()
			feedback.Run(ctx, events, a.player, a.feedbackSettings)
		}()
	}

	if a.tray != nil {
		events, unsubscribe := a.registry.Subscribe(16)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsubscribe()
			a.tray.Watch(ctx, events)
		}()
		a.tray.Start()
		go func() {
			select {
			case <-a.tray.WaitForQuit():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if a.configPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := config.Watch(ctx, a.configPath, a.applyConfig); err != nil {
				slog.Warn("Config watcher stopped", "error", err)
			}
		}()
	}

	slog.Info("Rebind started", "os", a.os, "keyboard", a.config().Mode(), "port", a.config().Web.Port)

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Run(ctx, a.config().Web.Port) }()

	var runErr error
	select {
	case <-ctx.Done():
		runErr = <-errCh
	case runErr = <-errCh:
		cancel()
	}

	a.shutdown()
	wg.Wait()
	return runErr
}

// shutdown tears down any recording in progress, then releases OS
// registrations and storage.
func (a *Agent) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.ctrl.Shutdown(ctx); err != nil {
		slog.Error("Failed to stop recording on shutdown", "error", err)
	}
	a.registry.Shutdown()
	a.registrar.Close()

	if a.tray != nil {
		a.tray.Stop()
	}
	if a.player != nil {
		a.player.Close()
	}
	if err := a.db.Close(); err != nil {
		slog.Warn("Failed to close storage", "error", err)
	}
}
