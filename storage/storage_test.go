package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *DB) {
	t.Helper()
	err := db.SeedBindings([]Binding{
		{ID: "transcribe", Name: "Transcribe", Description: "Start dictation", DefaultBinding: "ctrl+space"},
		{ID: "cancel", Name: "Cancel", DefaultBinding: "escape"},
	})
	if err != nil {
		t.Fatalf("SeedBindings: %v", err)
	}
}

func TestSeedAndGetBinding(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	b, err := db.GetBinding("transcribe")
	if err != nil {
		t.Fatal(err)
	}
	if b.CurrentBinding != "ctrl+space" || b.DefaultBinding != "ctrl+space" || b.Name != "Transcribe" {
		t.Errorf("unexpected binding %+v", b)
	}

	list, err := db.ListBindings()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "cancel" || list[1].ID != "transcribe" {
		t.Errorf("ListBindings = %+v", list)
	}
}

func TestSeedKeepsCurrentBinding(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	if err := db.SetBinding("transcribe", "ctrl+k"); err != nil {
		t.Fatal(err)
	}
	err := db.SeedBindings([]Binding{
		{ID: "transcribe", Name: "Dictate", DefaultBinding: "alt+space"},
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err := db.GetBinding("transcribe")
	if err != nil {
		t.Fatal(err)
	}
	if b.CurrentBinding != "ctrl+k" {
		t.Errorf("current = %q, want ctrl+k", b.CurrentBinding)
	}
	if b.Name != "Dictate" || b.DefaultBinding != "alt+space" {
		t.Errorf("metadata not refreshed: %+v", b)
	}
}

func TestBindingNotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetBinding("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBinding = %v, want ErrNotFound", err)
	}
	if err := db.SetBinding("missing", "ctrl+a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetBinding = %v, want ErrNotFound", err)
	}
}

func TestSessionsHistory(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	base := time.Now().Add(-time.Minute)
	sessions := []*Session{
		{SessionID: "a", ShortcutID: "transcribe", Mode: "local", Outcome: OutcomeCommitted, OriginalBinding: "ctrl+space", NewBinding: "ctrl+k", StartedAt: base, DurationMs: 1200},
		{SessionID: "b", ShortcutID: "transcribe", Mode: "driver", Outcome: OutcomeCancelled, OriginalBinding: "ctrl+k", StartedAt: base.Add(10 * time.Second), DurationMs: 300},
		{SessionID: "c", ShortcutID: "cancel", Mode: "local", Outcome: OutcomeFailed, OriginalBinding: "escape", NewBinding: "f13", ErrorMessage: "rejected", StartedAt: base.Add(20 * time.Second), DurationMs: 500},
	}
	for _, s := range sessions {
		if err := db.SaveSession(s); err != nil {
			t.Fatal(err)
		}
		if s.ID == 0 {
			t.Fatal("SaveSession did not set ID")
		}
	}

	got, err := db.GetSessions(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].SessionID != "c" || got[2].SessionID != "a" {
		t.Fatalf("GetSessions order = %+v", got)
	}
	if got[0].ErrorMessage != "rejected" || got[1].ErrorMessage != "" {
		t.Errorf("error messages = %q, %q", got[0].ErrorMessage, got[1].ErrorMessage)
	}

	page, err := db.GetSessions(1, 1)
	if err != nil || len(page) != 1 || page[0].SessionID != "b" {
		t.Errorf("GetSessions(1, 1) = %+v, %v", page, err)
	}

	if err := db.DeleteSession(got[1].ID); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSession(got[1].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteSession = %v, want ErrNotFound", err)
	}
	count, err := db.GetSessionCount()
	if err != nil || count != 2 {
		t.Errorf("GetSessionCount = %d, %v", count, err)
	}
}

func TestStats(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)

	for _, s := range []*Session{
		{SessionID: "1", ShortcutID: "transcribe", Mode: "local", Outcome: OutcomeCommitted, DurationMs: 100},
		{SessionID: "2", ShortcutID: "transcribe", Mode: "local", Outcome: OutcomeCommitted, DurationMs: 300},
		{SessionID: "3", ShortcutID: "transcribe", Mode: "local", Outcome: OutcomeCancelled},
		{SessionID: "4", ShortcutID: "cancel", Mode: "driver", Outcome: OutcomeHookFailed},
	} {
		if err := db.SaveSession(s); err != nil {
			t.Fatal(err)
		}
	}

	outcomes, err := db.GetOutcomeStats(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 3 || outcomes[0].Outcome != OutcomeCommitted || outcomes[0].Sessions != 2 || outcomes[0].AvgDurationMs != 200 {
		t.Errorf("GetOutcomeStats = %+v", outcomes)
	}

	shortcuts, err := db.GetShortcutStats(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(shortcuts) != 2 {
		t.Fatalf("GetShortcutStats = %+v", shortcuts)
	}
	tr := shortcuts[0]
	if tr.ShortcutID != "transcribe" || tr.Sessions != 3 || tr.CommittedCount != 2 || tr.CancelledCount != 1 || tr.FailureCount != 0 {
		t.Errorf("transcribe stats = %+v", tr)
	}
	if shortcuts[1].FailureCount != 1 {
		t.Errorf("cancel stats = %+v", shortcuts[1])
	}
}
