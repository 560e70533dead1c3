package main

import (
	"testing"

	"markestedt/rebind/capture"
	"markestedt/rebind/config"
)

func TestConfigSwapAppliesLive(t *testing.T) {
	off := &config.Config{
		Keyboard: config.KeyboardConfig{Implementation: "local"},
		Feedback: config.FeedbackConfig{Enabled: false, Volume: 0.3},
	}
	on := &config.Config{
		Keyboard: config.KeyboardConfig{Implementation: "handy_keys"},
		Feedback: config.FeedbackConfig{Enabled: true, Volume: 0.8},
	}
	a := &Agent{cfg: off}

	if enabled, _ := a.feedbackSettings(); enabled {
		t.Fatal("feedback enabled before the change")
	}
	if a.mode() != capture.ModeLocal {
		t.Fatalf("mode = %v, want local", a.mode())
	}

	if old := a.setConfig(on); old != off {
		t.Error("setConfig did not return the previous config")
	}
	enabled, volume := a.feedbackSettings()
	if !enabled || volume != 0.8 {
		t.Errorf("feedback = %v at %v, want enabled at 0.8", enabled, volume)
	}
	if a.mode() != capture.ModeDriver {
		t.Errorf("mode = %v, want driver", a.mode())
	}
}
