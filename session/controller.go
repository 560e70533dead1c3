// Package session owns the recording state machine: at most one capture
// session exists at a time, and each one ends in exactly one commit or
// cancel.
//
// Every session carries the generation it was started under. Work that
// completes after its session has ended (a late hook acquire, an Escape
// racing an explicit cancel) sees a different generation and is dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"markestedt/rebind/binding"
	"markestedt/rebind/capture"
	"markestedt/rebind/keys"
	"markestedt/rebind/platform"
	"markestedt/rebind/storage"
)

var (
	// ErrBusy is returned when a session is already active.
	ErrBusy = errors.New("a recording session is already active")
	// ErrNotFound is returned for an unknown shortcut id.
	ErrNotFound = errors.New("shortcut not found")
	// ErrClosed is returned by Start after Shutdown.
	ErrClosed = errors.New("recording controller is shut down")
)

// HookError reports a failed acquire or release of the OS capture hook.
type HookError struct {
	Op  string
	Err error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("capture hook %s failed: %v", e.Op, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateCommitting
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateCommitting:
		return "committing"
	case StateCancelling:
		return "cancelling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Trigger names what ended a session early.
type Trigger string

const (
	TriggerExplicit     Trigger = "explicit"
	TriggerEscape       Trigger = "escape"
	TriggerOutsideClick Trigger = "outside_click"
	TriggerTeardown     Trigger = "teardown"
	triggerHookLost     Trigger = "hook_lost"
)

// BindingReader reads the binding a session starts from.
type BindingReader interface {
	GetBinding(id string) (*storage.Binding, error)
}

// Synchronizer applies and reverts bindings. *binding.Synchronizer
// implements it.
type Synchronizer interface {
	Apply(ctx context.Context, id, combination string) error
	Revert(ctx context.Context, id, original string) error
	Reset(ctx context.Context, id string) (string, error)
}

// HistoryRecorder stores finished sessions.
type HistoryRecorder interface {
	SaveSession(s *storage.Session) error
}

// Options configure a Controller. History may be nil.
type Options struct {
	Store    BindingReader
	Sync     Synchronizer
	Hook     platform.Hook
	Registry *Registry
	History  HistoryRecorder
	OS       keys.OSType
	// Mode picks the capture source at each Start.
	Mode func() capture.Mode
}

// Status is a snapshot of the controller.
type Status struct {
	State      string `json:"state"`
	SessionID  string `json:"session_id,omitempty"`
	ShortcutID string `json:"shortcut_id,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Original   string `json:"original,omitempty"`
	Live       string `json:"live,omitempty"`
	Display    string `json:"display,omitempty"`
	Generation uint64 `json:"generation"`
}

type session struct {
	id         string
	shortcutID string
	mode       capture.Mode
	original   string
	generation uint64
	source     capture.Source
	started    time.Time
	live       string
	done       chan struct{}
}

// Controller runs the recording state machine.
type Controller struct {
	opts Options

	mu         sync.Mutex
	state      State
	generation uint64
	current    *session
	closed     bool

	wg sync.WaitGroup
}

func NewController(opts Options) *Controller {
	if opts.Mode == nil {
		opts.Mode = func() capture.Mode { return capture.ModeLocal }
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	return &Controller{opts: opts}
}

// Start begins recording a new combination for shortcutID. It fails with
// ErrBusy unless the controller is idle. In driver mode Start returns once
// the OS hook is acquired.
func (c *Controller) Start(ctx context.Context, shortcutID string) (Status, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Status{}, ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return Status{}, ErrBusy
	}

	b, err := c.opts.Store.GetBinding(shortcutID)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, storage.ErrNotFound) {
			return Status{}, fmt.Errorf("%w: %s", ErrNotFound, shortcutID)
		}
		return Status{}, fmt.Errorf("failed to read binding: %w", err)
	}

	mode := c.opts.Mode()
	source, err := capture.New(mode, shortcutID, c.opts.OS, c.opts.Hook)
	if err != nil {
		c.mu.Unlock()
		return Status{}, fmt.Errorf("failed to create capture source: %w", err)
	}

	c.generation++
	s := &session{
		id:         uuid.NewString(),
		shortcutID: shortcutID,
		mode:       mode,
		original:   b.CurrentBinding,
		generation: c.generation,
		source:     source,
		started:    time.Now(),
		done:       make(chan struct{}),
	}
	c.current = s
	c.state = StateRecording
	status := c.statusLocked()
	c.mu.Unlock()

	slog.Info("Recording started", "session", s.id, "shortcut", shortcutID, "mode", mode, "original", s.original)
	c.publishState(s, StateRecording)

	if err := source.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrStopped) {
			// Cancelled while the hook was being acquired.
			return Status{}, fmt.Errorf("recording cancelled: %w", err)
		}
		hookErr := &HookError{Op: "start_capture", Err: err}
		c.abort(s, hookErr)
		return Status{}, hookErr
	}

	c.mu.Lock()
	if c.generation != s.generation {
		c.mu.Unlock()
		return Status{}, fmt.Errorf("recording cancelled: %w", capture.ErrStopped)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(s)
	return status, nil
}

func (c *Controller) run(s *session) {
	defer c.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case u := <-s.source.Updates():
			c.handle(s, u)
		}
	}
}

func (c *Controller) handle(s *session, u capture.Update) {
	c.mu.Lock()
	if c.generation != s.generation || c.state != StateRecording {
		c.mu.Unlock()
		return
	}

	switch u.Kind {
	case capture.UpdateDisplay:
		s.live = u.Combination
		c.mu.Unlock()
		c.opts.Registry.Publish(Event{
			Type:        EventLive,
			SessionID:   s.id,
			ShortcutID:  s.shortcutID,
			Combination: u.Combination,
			Display:     keys.Display(u.Combination, c.opts.OS),
		})

	case capture.UpdateCommit:
		// Switching state here, under the lock, gates out every later
		// event and any cancel trigger.
		c.state = StateCommitting
		s.live = u.Combination
		c.mu.Unlock()
		c.publishState(s, StateCommitting)
		c.commit(s, u.Combination)

	case capture.UpdateCancel:
		c.state = StateCancelling
		c.mu.Unlock()
		c.publishState(s, StateCancelling)
		c.cancel(s, TriggerEscape)

	case capture.UpdateLost:
		c.state = StateCancelling
		c.mu.Unlock()
		c.publishState(s, StateCancelling)
		c.cancel(s, triggerHookLost)

	default:
		c.mu.Unlock()
	}
}

func (c *Controller) commit(s *session, combination string) {
	ctx := context.Background()

	if err := s.source.Stop(ctx); err != nil {
		c.finish(s, storage.OutcomeHookFailed, combination, &HookError{Op: "stop_capture", Err: err}, "")
		return
	}

	applyErr := c.opts.Sync.Apply(ctx, s.shortcutID, combination)
	if applyErr == nil {
		c.finish(s, storage.OutcomeCommitted, combination, nil, "")
		return
	}

	slog.Warn("Binding rejected, reverting", "session", s.id, "shortcut", s.shortcutID, "combination", combination, "error", applyErr)
	if err := c.opts.Sync.Revert(ctx, s.shortcutID, s.original); err != nil {
		c.finish(s, storage.OutcomeInconsistent, combination, errors.Join(err, applyErr), "")
		return
	}
	c.finish(s, storage.OutcomeFailed, combination, applyErr, "")
}

// Cancel ends the active recording. It is a no-op when nothing is
// recording, including while a commit is in progress. A commit the source
// signalled before the trigger still wins, and so does an earlier Escape.
func (c *Controller) Cancel(trigger Trigger) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}
	s := c.current
	c.mu.Unlock()

	pending, signalled := s.source.Settle()

	c.mu.Lock()
	if c.generation != s.generation || c.state != StateRecording {
		c.mu.Unlock()
		return nil
	}
	if signalled && pending.Kind == capture.UpdateCommit {
		c.state = StateCommitting
		s.live = pending.Combination
		c.mu.Unlock()
		slog.Info("Commit precedes cancel", "session", s.id, "trigger", trigger, "combination", pending.Combination)
		c.publishState(s, StateCommitting)
		c.commit(s, pending.Combination)
		return nil
	}
	if signalled {
		switch pending.Kind {
		case capture.UpdateCancel:
			trigger = TriggerEscape
		case capture.UpdateLost:
			trigger = triggerHookLost
		}
	}
	c.state = StateCancelling
	c.mu.Unlock()

	c.publishState(s, StateCancelling)
	return c.cancel(s, trigger)
}

func (c *Controller) cancel(s *session, trigger Trigger) error {
	ctx := context.Background()

	var errs []error
	outcome := storage.OutcomeCancelled
	if trigger == triggerHookLost {
		outcome = storage.OutcomeHookFailed
		errs = append(errs, &HookError{Op: "feed", Err: errors.New("capture feed closed unexpectedly")})
	}

	if err := s.source.Stop(ctx); err != nil {
		outcome = storage.OutcomeHookFailed
		errs = append(errs, &HookError{Op: "stop_capture", Err: err})
	}
	if err := c.opts.Sync.Revert(ctx, s.shortcutID, s.original); err != nil {
		outcome = storage.OutcomeInconsistent
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	c.finish(s, outcome, "", err, trigger)
	return err
}

// abort ends a session whose hook could not be acquired.
func (c *Controller) abort(s *session, err error) {
	c.mu.Lock()
	if c.generation != s.generation {
		c.mu.Unlock()
		return
	}
	c.state = StateCancelling
	c.mu.Unlock()

	if stopErr := s.source.Stop(context.Background()); stopErr != nil {
		slog.Warn("Failed to stop capture source", "session", s.id, "error", stopErr)
	}
	c.finish(s, storage.OutcomeHookFailed, "", err, "")
}

// finish returns the controller to idle and reports the outcome. It does
// nothing if s is no longer the current session.
func (c *Controller) finish(s *session, outcome, combination string, err error, trigger Trigger) {
	c.mu.Lock()
	if c.generation != s.generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.state = StateIdle
	c.current = nil
	close(s.done)
	c.mu.Unlock()

	duration := time.Since(s.started)
	ev := Event{
		SessionID:   s.id,
		ShortcutID:  s.shortcutID,
		Mode:        s.mode.String(),
		Combination: combination,
		Trigger:     string(trigger),
	}
	if combination != "" {
		ev.Display = keys.Display(combination, c.opts.OS)
	}
	if err != nil {
		ev.Error = err.Error()
	}

	switch outcome {
	case storage.OutcomeCommitted:
		ev.Type = EventCommitted
		slog.Info("Binding committed", "session", s.id, "shortcut", s.shortcutID, "combination", combination, "duration", duration)
	case storage.OutcomeCancelled:
		ev.Type = EventCancelled
		ev.Combination = s.original
		ev.Display = keys.Display(s.original, c.opts.OS)
		slog.Info("Recording cancelled", "session", s.id, "shortcut", s.shortcutID, "trigger", trigger)
	case storage.OutcomeFailed:
		ev.Type = EventFailed
		slog.Error("Binding apply failed", "session", s.id, "shortcut", s.shortcutID, "error", err)
	case storage.OutcomeInconsistent:
		ev.Type = EventInconsistent
		slog.Error("Binding may be in an inconsistent state", "session", s.id, "shortcut", s.shortcutID, "error", err)
	case storage.OutcomeHookFailed:
		ev.Type = EventHookFailed
		slog.Error("Capture hook failed", "session", s.id, "shortcut", s.shortcutID, "error", err)
	}

	if c.opts.History != nil {
		rec := &storage.Session{
			SessionID:       s.id,
			ShortcutID:      s.shortcutID,
			Mode:            s.mode.String(),
			Outcome:         outcome,
			OriginalBinding: s.original,
			NewBinding:      combination,
			StartedAt:       s.started,
			DurationMs:      duration.Milliseconds(),
		}
		if err != nil {
			rec.ErrorMessage = err.Error()
		}
		if err := c.opts.History.SaveSession(rec); err != nil {
			slog.Warn("Failed to save session history", "session", s.id, "error", err)
		}
	}

	c.opts.Registry.Publish(ev)
	c.publishState(nil, StateIdle)
}

// HandleKey forwards a foreground key event to the active source.
func (c *Controller) HandleKey(ev capture.KeyEvent) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	s := c.current
	c.mu.Unlock()
	s.source.HandleKey(ev)
}

// Reset restores the default binding for id. It fails with ErrBusy while a
// session is recording that id.
func (c *Controller) Reset(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.shortcutID == id {
		return "", ErrBusy
	}
	combination, err := c.opts.Sync.Reset(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return combination, err
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{State: c.state.String(), Generation: c.generation}
	if s := c.current; s != nil {
		st.SessionID = s.id
		st.ShortcutID = s.shortcutID
		st.Mode = s.mode.String()
		st.Original = s.original
		st.Live = s.live
		st.Display = keys.Display(s.live, c.opts.OS)
	}
	return st
}

// Shutdown rejects further Start calls, cancels any recording with the
// teardown trigger and waits for the session loop to exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if err := c.Cancel(TriggerTeardown); err != nil {
		slog.Warn("Teardown cancel reported an error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop recording session: %w", ctx.Err())
	}
}

func (c *Controller) publishState(s *session, state State) {
	ev := Event{Type: EventState, State: state.String()}
	if s != nil {
		ev.SessionID = s.id
		ev.ShortcutID = s.shortcutID
		ev.Mode = s.mode.String()
	}
	c.opts.Registry.Publish(ev)
}

var _ Synchronizer = (*binding.Synchronizer)(nil)
