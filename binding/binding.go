// Package binding applies and reverts shortcut bindings against the
// persisted store and the OS hotkey registrar.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"markestedt/rebind/keys"
	"markestedt/rebind/shortcut"
	"markestedt/rebind/storage"
)

// Store is the slice of storage.DB the synchronizer needs.
type Store interface {
	GetBinding(id string) (*storage.Binding, error)
	ListBindings() ([]storage.Binding, error)
	SetBinding(id, combination string) error
}

// ApplyError reports a rejected binding write.
type ApplyError struct {
	ID          string
	Combination string
	Err         error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to apply binding %s=%q: %v", e.ID, e.Combination, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// RevertError reports that restoring the pre-session value failed. The
// persisted binding is no longer known to equal Original.
type RevertError struct {
	ID       string
	Original string
	Err      error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("binding may be in an inconsistent state: failed to restore %s to %q: %v", e.ID, e.Original, e.Err)
}

func (e *RevertError) Unwrap() error { return e.Err }

// Synchronizer writes bindings to the store and keeps the registrar in step.
type Synchronizer struct {
	store     Store
	registrar shortcut.Registrar
	os        keys.OSType

	mu sync.Mutex
	// touched holds ids whose store row or registration Apply started to
	// change without finishing.
	touched map[string]bool
}

func New(store Store, registrar shortcut.Registrar, os keys.OSType) *Synchronizer {
	return &Synchronizer{
		store:     store,
		registrar: registrar,
		os:        os,
		touched:   make(map[string]bool),
	}
}

// Activate registers every stored binding. Failures are logged and skipped.
func (s *Synchronizer) Activate(ctx context.Context) error {
	bindings, err := s.store.ListBindings()
	if err != nil {
		return fmt.Errorf("failed to list bindings: %w", err)
	}
	for _, b := range bindings {
		if b.CurrentBinding == "" {
			continue
		}
		if err := s.registrar.Register(b.ID, b.CurrentBinding); err != nil {
			slog.Warn("Failed to activate shortcut", "shortcut", b.ID, "combination", b.CurrentBinding, "error", err)
		}
	}
	return nil
}

// Apply validates combination, activates it and persists it for id.
// Any failure is returned as *ApplyError.
func (s *Synchronizer) Apply(ctx context.Context, id, combination string) error {
	if err := ctx.Err(); err != nil {
		return &ApplyError{ID: id, Combination: combination, Err: err}
	}
	if _, err := keys.ParseCombination(combination, s.os); err != nil {
		return &ApplyError{ID: id, Combination: combination, Err: err}
	}
	if _, err := s.store.GetBinding(id); err != nil {
		return &ApplyError{ID: id, Combination: combination, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touched[id] = true
	if err := s.registrar.Register(id, combination); err != nil {
		return &ApplyError{ID: id, Combination: combination, Err: err}
	}
	if err := s.store.SetBinding(id, combination); err != nil {
		return &ApplyError{ID: id, Combination: combination, Err: err}
	}
	delete(s.touched, id)

	slog.Info("Binding applied", "shortcut", id, "combination", combination)
	return nil
}

// Revert restores original for id. It is a no-op when the store already
// holds original and no Apply left the id half changed. Failures are
// returned as *RevertError.
func (s *Synchronizer) Revert(ctx context.Context, id, original string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.store.GetBinding(id)
	if err != nil {
		return &RevertError{ID: id, Original: original, Err: err}
	}
	if b.CurrentBinding == original && !s.touched[id] {
		slog.Debug("Revert skipped, binding unchanged", "shortcut", id)
		return nil
	}

	if b.CurrentBinding != original {
		if err := s.store.SetBinding(id, original); err != nil {
			return &RevertError{ID: id, Original: original, Err: err}
		}
	}
	if original == "" {
		err = s.registrar.Unregister(id)
	} else {
		err = s.registrar.Register(id, original)
	}
	if err != nil {
		return &RevertError{ID: id, Original: original, Err: err}
	}
	delete(s.touched, id)

	slog.Info("Binding reverted", "shortcut", id, "combination", original)
	return nil
}

// Reset applies the default binding for id, reverting to the current value
// if that fails.
func (s *Synchronizer) Reset(ctx context.Context, id string) (string, error) {
	b, err := s.store.GetBinding(id)
	if err != nil {
		return "", err
	}
	if err := s.ApplyOrRevert(ctx, id, b.DefaultBinding, b.CurrentBinding); err != nil {
		return b.CurrentBinding, err
	}
	return b.DefaultBinding, nil
}

// ApplyOrRevert applies combination and, on failure, restores original. The
// returned error is the *ApplyError, or a *RevertError joined with it when
// the restore failed too.
func (s *Synchronizer) ApplyOrRevert(ctx context.Context, id, combination, original string) error {
	applyErr := s.Apply(ctx, id, combination)
	if applyErr == nil {
		return nil
	}
	if err := s.Revert(context.WithoutCancel(ctx), id, original); err != nil {
		return errors.Join(err, applyErr)
	}
	return applyErr
}
