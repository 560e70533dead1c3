package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"markestedt/rebind/capture"
	"markestedt/rebind/keys"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if len(cfg.Bindings) != 2 || cfg.Bindings[0].ID != "transcribe" {
		t.Errorf("bindings = %+v", cfg.Bindings)
	}

	again, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Web.Port != cfg.Web.Port || len(again.Bindings) != len(cfg.Bindings) {
		t.Errorf("reload differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[keyboard]
implementation = "handy_keys"
os = "macos"

[web]
port = 9000

[log]
level = "debug"

[[bindings]]
id = "transcribe"
name = "Dictate"
default = "cmd+shift+d"

[[bindings]]
id = "transcribe"
name = "Dictate again"
default = "cmd+k"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode() != capture.ModeDriver {
		t.Errorf("Mode = %v", cfg.Mode())
	}
	if cfg.OSType() != keys.MacOS {
		t.Errorf("OSType = %v", cfg.OSType())
	}
	if cfg.Web.Port != 9000 || cfg.LogLevel().String() != "DEBUG" {
		t.Errorf("web/log = %d %v", cfg.Web.Port, cfg.LogLevel())
	}
	if !cfg.Feedback.Enabled {
		t.Error("feedback default lost")
	}
	if len(cfg.Bindings) != 1 || cfg.Bindings[0].Default != "cmd+k" {
		t.Errorf("bindings = %+v", cfg.Bindings)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"implementation": "[keyboard]\nimplementation = \"rdev\"\n",
		"os":             "[keyboard]\nos = \"beos\"\n",
		"port":           "[web]\nport = 0\n",
		"volume":         "[feedback]\nvolume = 2.0\n",
		"level":          "[log]\nlevel = \"loud\"\n",
		"syntax":         "[web\n",
		"binding id":     "[[bindings]]\nname = \"x\"\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			os.WriteFile(path, []byte(data), 0644)
			if _, err := LoadFrom(path); err == nil {
				t.Error("LoadFrom succeeded")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(DirEnv, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Keyboard.Implementation = "local"
	cfg.Feedback.Enabled = false
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	got, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode() != capture.ModeLocal || got.Feedback.Enabled {
		t.Errorf("saved config not reloaded: %+v", got)
	}

	cfg.Web.Port = -1
	if err := cfg.Save(); err == nil {
		t.Error("Save accepted an invalid port")
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := LoadFrom(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	data := "[keyboard]\nimplementation = \"driver\"\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.Mode() != capture.ModeDriver {
			t.Errorf("reloaded mode = %v", c.Mode())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Watch = %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch did not return after cancel")
	}
}
