package binding

import (
	"context"
	"errors"
	"testing"

	"markestedt/rebind/keys"
	"markestedt/rebind/shortcut"
	"markestedt/rebind/storage"
)

// flakyStore fails SetBinding for listed combinations.
type flakyStore struct {
	*storage.DB
	failSet map[string]error
}

func (f *flakyStore) SetBinding(id, combination string) error {
	if err := f.failSet[combination]; err != nil {
		return err
	}
	return f.DB.SetBinding(id, combination)
}

func newTestSync(t *testing.T) (*Synchronizer, *flakyStore, *shortcut.FakeRegistrar) {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	err = db.SeedBindings([]storage.Binding{
		{ID: "transcribe", Name: "Transcribe", DefaultBinding: "ctrl+space", CurrentBinding: "ctrl+k"},
	})
	if err != nil {
		t.Fatal(err)
	}

	store := &flakyStore{DB: db, failSet: map[string]error{}}
	reg := shortcut.NewFakeRegistrar(keys.Linux)
	s := New(store, reg, keys.Linux)
	if err := s.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s, store, reg
}

func current(t *testing.T, store Store, id string) string {
	t.Helper()
	b, err := store.GetBinding(id)
	if err != nil {
		t.Fatal(err)
	}
	return b.CurrentBinding
}

func TestApply(t *testing.T) {
	s, store, reg := newTestSync(t)

	if reg.Bound("transcribe") != "ctrl+k" {
		t.Fatalf("Activate did not register, bound = %q", reg.Bound("transcribe"))
	}
	if err := s.Apply(context.Background(), "transcribe", "ctrl+alt+m"); err != nil {
		t.Fatal(err)
	}
	if got := current(t, store, "transcribe"); got != "ctrl+alt+m" {
		t.Errorf("stored = %q", got)
	}
	if reg.Bound("transcribe") != "ctrl+alt+m" {
		t.Errorf("registered = %q", reg.Bound("transcribe"))
	}
}

func TestApplyRejectsInvalid(t *testing.T) {
	s, store, _ := newTestSync(t)

	for _, combo := range []string{"", "ctrl+escape", "ctrl++k", "bogus+k"} {
		err := s.Apply(context.Background(), "transcribe", combo)
		var applyErr *ApplyError
		if !errors.As(err, &applyErr) {
			t.Errorf("Apply(%q) = %v, want *ApplyError", combo, err)
		}
	}
	if got := current(t, store, "transcribe"); got != "ctrl+k" {
		t.Errorf("stored = %q, want unchanged", got)
	}

	err := s.Apply(context.Background(), "missing", "ctrl+a")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Apply(missing) = %v, want ErrNotFound", err)
	}
}

func TestApplyFailureThenRevert(t *testing.T) {
	s, store, reg := newTestSync(t)
	store.failSet["ctrl+j"] = errors.New("disk full")

	err := s.Apply(context.Background(), "transcribe", "ctrl+j")
	var applyErr *ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("Apply = %v, want *ApplyError", err)
	}
	// Registration went through before the write failed.
	if reg.Bound("transcribe") != "ctrl+j" {
		t.Fatalf("registered = %q", reg.Bound("transcribe"))
	}

	if err := s.Revert(context.Background(), "transcribe", "ctrl+k"); err != nil {
		t.Fatal(err)
	}
	if reg.Bound("transcribe") != "ctrl+k" || current(t, store, "transcribe") != "ctrl+k" {
		t.Errorf("after revert: registered %q stored %q", reg.Bound("transcribe"), current(t, store, "transcribe"))
	}
}

func TestRevertNoop(t *testing.T) {
	s, _, reg := newTestSync(t)
	before := len(reg.Calls())

	if err := s.Revert(context.Background(), "transcribe", "ctrl+k"); err != nil {
		t.Fatal(err)
	}
	if err := s.Revert(context.Background(), "transcribe", "ctrl+k"); err != nil {
		t.Fatal(err)
	}
	if got := len(reg.Calls()); got != before {
		t.Errorf("Revert touched the registrar: %v", reg.Calls()[before:])
	}
}

func TestRevertFailure(t *testing.T) {
	s, store, reg := newTestSync(t)
	store.failSet["ctrl+j"] = errors.New("disk full")
	reg.FailOn["ctrl+k"] = errors.New("grabbed by another app")

	s.Apply(context.Background(), "transcribe", "ctrl+j")
	err := s.Revert(context.Background(), "transcribe", "ctrl+k")

	var revertErr *RevertError
	if !errors.As(err, &revertErr) {
		t.Fatalf("Revert = %v, want *RevertError", err)
	}
	if revertErr.Original != "ctrl+k" {
		t.Errorf("Original = %q", revertErr.Original)
	}
}

func TestApplyOrRevert(t *testing.T) {
	s, store, reg := newTestSync(t)
	store.failSet["ctrl+j"] = errors.New("disk full")

	err := s.ApplyOrRevert(context.Background(), "transcribe", "ctrl+j", "ctrl+k")
	var applyErr *ApplyError
	var revertErr *RevertError
	if !errors.As(err, &applyErr) || errors.As(err, &revertErr) {
		t.Fatalf("ApplyOrRevert = %v, want only *ApplyError", err)
	}
	if reg.Bound("transcribe") != "ctrl+k" {
		t.Errorf("registered = %q", reg.Bound("transcribe"))
	}

	reg.FailOn["ctrl+k"] = errors.New("busy")
	err = s.ApplyOrRevert(context.Background(), "transcribe", "ctrl+j", "ctrl+k")
	if !errors.As(err, &applyErr) || !errors.As(err, &revertErr) {
		t.Fatalf("ApplyOrRevert = %v, want both errors", err)
	}
}

func TestReset(t *testing.T) {
	s, store, reg := newTestSync(t)

	got, err := s.Reset(context.Background(), "transcribe")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ctrl+space" || current(t, store, "transcribe") != "ctrl+space" || reg.Bound("transcribe") != "ctrl+space" {
		t.Errorf("Reset = %q, stored %q, registered %q", got, current(t, store, "transcribe"), reg.Bound("transcribe"))
	}

	if _, err := s.Reset(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Reset(missing) = %v", err)
	}
}
