package shortcut

import (
	"sync"

	"markestedt/rebind/keys"
)

// FakeRegistrar validates like the real registrars and records calls.
type FakeRegistrar struct {
	OS keys.OSType

	mu    sync.Mutex
	bound map[string]string
	calls []string

	// FailOn makes Register fail for a combination.
	FailOn map[string]error
}

func NewFakeRegistrar(os keys.OSType) *FakeRegistrar {
	return &FakeRegistrar{OS: os, bound: make(map[string]string), FailOn: make(map[string]error)}
}

func (f *FakeRegistrar) Register(id, combination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "register "+id+" "+combination)
	if err := f.FailOn[combination]; err != nil {
		return err
	}
	if _, err := Validate(combination, f.OS); err != nil {
		return err
	}
	f.bound[id] = combination
	return nil
}

func (f *FakeRegistrar) Unregister(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "unregister "+id)
	delete(f.bound, id)
	return nil
}

func (f *FakeRegistrar) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.bound)
}

// Bound returns the combination registered for id.
func (f *FakeRegistrar) Bound(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound[id]
}

// Calls returns the recorded Register/Unregister calls.
func (f *FakeRegistrar) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
