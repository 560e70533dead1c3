package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"markestedt/rebind/capture"
	"markestedt/rebind/keys"
)

// DirEnv overrides the configuration directory.
const DirEnv = "REBIND_CONFIG_DIR"

type Config struct {
	Keyboard KeyboardConfig  `toml:"keyboard"`
	Web      WebConfig       `toml:"web"`
	Feedback FeedbackConfig  `toml:"feedback"`
	Log      LogConfig       `toml:"log"`
	Bindings []BindingConfig `toml:"bindings"`
}

type KeyboardConfig struct {
	// Implementation is "driver" (exclusive OS hook) or "local" (keys from
	// the settings page). "handy_keys" and "tauri" are accepted aliases.
	Implementation string `toml:"implementation"`
	// OS overrides the detected OS for modifier naming and ordering.
	OS string `toml:"os"`
}

type WebConfig struct {
	Port int `toml:"port"`
}

type FeedbackConfig struct {
	Enabled bool    `toml:"enabled"`
	Volume  float64 `toml:"volume"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type BindingConfig struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Default     string `toml:"default"`
}

// Default configuration
func defaultConfig() *Config {
	implementation := "local"
	if runtime.GOOS == "windows" {
		implementation = "driver"
	}

	transcribe, cancel := "ctrl+space", "ctrl+shift+x"
	if runtime.GOOS == "darwin" {
		transcribe, cancel = "option+space", "command+shift+x"
	}

	return &Config{
		Keyboard: KeyboardConfig{
			Implementation: implementation,
		},
		Web: WebConfig{
			Port: 8081,
		},
		Feedback: FeedbackConfig{
			Enabled: true,
			Volume:  0.3,
		},
		Log: LogConfig{
			Level: "info",
		},
		Bindings: []BindingConfig{
			{ID: "transcribe", Name: "Transcribe", Description: "Start and stop dictation", Default: transcribe},
			{ID: "cancel", Name: "Cancel", Description: "Abort the current dictation", Default: cancel},
		},
	}
}

// Dir returns the configuration directory, creating it if needed.
func Dir() (string, error) {
	dir := os.Getenv(DirEnv)
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate user config directory: %w", err)
		}
		dir = filepath.Join(base, "rebind")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ConfigPath returns the path to the configuration file
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from the TOML file
// If the file doesn't exist, it creates it with default values
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the configuration at path, writing defaults there first if
// the file is missing.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		if err := save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg := defaultConfig()
	defaults := cfg.Bindings
	// The decoder reuses slice elements, so start bindings empty to keep
	// default fields from leaking into file entries.
	cfg.Bindings = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if md.IsDefined("bindings") {
		// Later entries for the same id win.
		cfg.Bindings = dedupeBindings(cfg.Bindings)
	} else {
		cfg.Bindings = defaults
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("Ignoring unknown config keys", "keys", undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration back to ConfigPath.
func (c *Config) Save() error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := save(path, c); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// save writes the configuration to the TOML file
func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if _, err := capture.ParseMode(c.Keyboard.Implementation); err != nil {
		return fmt.Errorf("invalid keyboard.implementation: %w", err)
	}
	if c.Keyboard.OS != "" && keys.ParseOSType(c.Keyboard.OS) == keys.UnknownOS {
		return fmt.Errorf("invalid keyboard.os %q", c.Keyboard.OS)
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web.port %d", c.Web.Port)
	}
	if c.Feedback.Volume < 0 || c.Feedback.Volume > 1 {
		return fmt.Errorf("feedback.volume must be between 0 and 1, got %v", c.Feedback.Volume)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Bindings))
	for _, b := range c.Bindings {
		if b.ID == "" {
			return fmt.Errorf("binding without id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate binding id %q", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// Mode returns the capture mode for the keyboard implementation.
func (c *Config) Mode() capture.Mode {
	mode, err := capture.ParseMode(c.Keyboard.Implementation)
	if err != nil {
		return capture.ModeLocal
	}
	return mode
}

// OSType returns the configured or detected OS.
func (c *Config) OSType() keys.OSType {
	return keys.ParseOSType(c.Keyboard.OS)
}

// LogLevel returns the slog level for log.level.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log.level %q", s)
	}
}

func dedupeBindings(in []BindingConfig) []BindingConfig {
	out := in[:0]
	idx := make(map[string]int, len(in))
	for _, b := range in {
		if i, ok := idx[b.ID]; ok {
			out[i] = b
			continue
		}
		idx[b.ID] = len(out)
		out = append(out, b)
	}
	return out
}
