package task

import (
	"testing"
	"time"
)

func TestStore_WatchReloadsExternalWrites(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(Params{Title: "mine"}); err != nil {
		t.Fatal(err)
	}

	changed := make(chan struct{}, 8)
	if err := s.Watch(func() { changed <- struct{}{} }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer s.Unwatch() //nolint:errcheck

	// Watching twice is a no-op.
	if err := s.Watch(nil); err != nil {
		t.Fatalf("second Watch() error = %v", err)
	}

	// Another process writes through its own store.
	other, err := Open(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Create(Params{Title: "theirs"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-changed:
			if len(s.List()) == 2 {
				return
			}
		case <-deadline:
			t.Fatalf("store not reloaded; have %d tasks", len(s.List()))
		}
	}
}

func TestStore_UnwatchIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Unwatch(); err != nil {
		t.Errorf("Unwatch() before Watch = %v", err)
	}
	if err := s.Watch(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Unwatch(); err != nil {
		t.Errorf("Unwatch() = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
