package task

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond
const pollInterval = 2 * time.Second

// Watch reloads the store whenever another process rewrites the task file.
// onChange, if non-nil, is invoked after each reload. Watching an already
// watched store is a no-op.
func (s *Store) Watch(onChange func()) error {
	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.mu.Unlock()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// The directory is watched rather than the file: atomic saves replace the
	// file, which would drop a file-level watch.
	if err := watcher.Add(dir); err != nil {
		watcher.Close() //nolint:errcheck // cleanup on error path
		s.mu.Unlock()
		return err
	}

	s.watching = true
	s.done = make(chan struct{})
	s.onChange = onChange
	s.mu.Unlock()

	go s.watchLoop(watcher, s.done)
	return nil
}

// Unwatch stops watching. It is a no-op when not watching.
func (s *Store) Unwatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.watching {
		return nil
	}
	close(s.done)
	s.watching = false
	s.onChange = nil
	return nil
}

// watchLoop processes filesystem events with debouncing and a polling fallback
// for filesystems where notifications are unreliable.
func (s *Store) watchLoop(watcher *fsnotify.Watcher, done <-chan struct{}) {
	defer watcher.Close() //nolint:errcheck // cleanup

	var debounce *time.Timer
	lastMod := s.modTime()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-done:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, s.reload)

		case <-poll.C:
			if mod := s.modTime(); !mod.Equal(lastMod) {
				lastMod = mod
				s.reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("task file watcher error")
		}
	}
}

func (s *Store) modTime() time.Time {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// reload re-reads the file and notifies the watcher callback.
func (s *Store) reload() {
	s.mu.Lock()
	if !s.watching {
		s.mu.Unlock()
		return
	}
	if err := s.loadFromDisk(); err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Warn("reloading task file")
		return
	}
	callback := s.onChange
	s.mu.Unlock()

	s.log.WithField("path", s.path).Debug("task file reloaded")
	if callback != nil {
		callback()
	}
}
