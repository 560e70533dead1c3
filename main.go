package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"markestedt/rebind/config"
)

func run() {
	noTray := flag.Bool("no-tray", false, "Run without the system tray icon")
	flag.Parse()

	// Setup logging; the level follows the config and its reloads.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel())

	configPath, _ := config.ConfigPath()
	slog.Info("Configuration loaded", "path", configPath)

	agent, err := NewAgent(cfg, configPath, level, !*noTray)
	if err != nil {
		slog.Error("Failed to create agent", "error", err)
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := agent.Run(ctx); err != nil {
		slog.Error("Agent error", "error", err)
		os.Exit(1)
	}

	slog.Info("Rebind stopped")
}
