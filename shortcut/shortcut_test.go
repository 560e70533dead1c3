package shortcut

import (
	"errors"
	"runtime"
	"testing"

	"markestedt/rebind/keys"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		in      string
		os      keys.OSType
		want    string
		wantErr bool
	}{
		{"cmd+shift+d", keys.MacOS, "command+shift+d", false},
		{"shift+ctrl+k", keys.Windows, "ctrl+shift+k", false},
		{"f13", keys.Linux, "f13", false},
		{"ctrl+alt", keys.Linux, "", true},
		{"ctrl+escape", keys.Linux, "", true},
		{"", keys.Linux, "", true},
	}
	for _, tt := range tests {
		c, err := Validate(tt.in, tt.os)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && c.String() != tt.want {
			t.Errorf("Validate(%q) = %q, want %q", tt.in, c.String(), tt.want)
		}
	}
}

func TestRegistrarReplacesBinding(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("darwin hotkeys need the main thread loop")
	}
	r := New(keys.CurrentOS(), nil)
	defer r.Close()

	if err := r.Register("transcribe", "ctrl+shift+k"); err != nil {
		t.Skipf("global hotkeys unavailable here: %v", err)
	}
	if err := r.Register("transcribe", "ctrl"); err == nil {
		t.Error("Register accepted a modifier-only combination")
	}
	if err := r.Unregister("transcribe"); err != nil {
		t.Errorf("Unregister: %v", err)
	}
	if err := r.Unregister("transcribe"); err != nil {
		t.Errorf("second Unregister: %v", err)
	}
}

func TestFakeRegistrar(t *testing.T) {
	f := NewFakeRegistrar(keys.Linux)
	boom := errors.New("boom")
	f.FailOn["ctrl+b"] = boom

	if err := f.Register("x", "ctrl+a"); err != nil {
		t.Fatal(err)
	}
	if err := f.Register("x", "ctrl+b"); !errors.Is(err, boom) {
		t.Errorf("Register = %v, want boom", err)
	}
	if f.Bound("x") != "ctrl+a" {
		t.Errorf("Bound = %q", f.Bound("x"))
	}
	if got := len(f.Calls()); got != 2 {
		t.Errorf("calls = %d", got)
	}
}
