package task

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// document is the on-disk shape of the task file.
type document struct {
	Tasks []*Task `json:"tasks"`
}

// Store is a JSON-file task list with an in-memory cache. All methods are safe
// for concurrent use; every mutation is written through to disk atomically.
type Store struct {
	path string
	log  logrus.FieldLogger
	now  func() time.Time

	mu    sync.RWMutex
	tasks map[string]*Task

	// File watching (optional)
	watching bool
	done     chan struct{}
	onChange func()
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for watcher diagnostics.
func WithLogger(log logrus.FieldLogger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// Open loads the task file at path. A missing file is an empty list.
func Open(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		path:  path,
		log:   logrus.StandardLogger(),
		now:   time.Now,
		tasks: make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the task file path.
func (s *Store) Path() string {
	return s.path
}

// Load re-reads the task file into memory.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadFromDisk()
}

// loadFromDisk must be called with the lock held.
func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.tasks = make(map[string]*Task)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading tasks: %w", err)
	}

	var doc document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", s.path, err)
		}
	}

	tasks := make(map[string]*Task, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t == nil || t.ID == "" {
			continue
		}
		t.Status = cmp.Or(t.Status, StatusTodo)
		t.Priority = cmp.Or(t.Priority, PriorityMedium)
		tasks[t.ID] = t
	}
	s.tasks = tasks
	return nil
}

// saveLocked writes the whole list via temp file and rename. Must be called
// with the write lock held.
func (s *Store) saveLocked() error {
	doc := document{Tasks: s.sortedLocked()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tasks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("writing tasks: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing tasks: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing tasks: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing tasks: %w", err)
	}
	return nil
}

func (s *Store) sortedLocked() []*Task {
	all := slices.Collect(maps.Values(s.tasks))
	slices.SortFunc(all, func(a, b *Task) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return all
}

// List returns copies of all tasks, oldest first.
func (s *Store) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked()
	out := make([]*Task, len(sorted))
	for i, t := range sorted {
		out[i] = t.Clone()
	}
	return out
}

// Get returns a copy of the task with id.
func (s *Store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

// FindByRemoteID returns the task linked to a Linear issue id.
func (s *Store) FindByRemoteID(remoteID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.RemoteID() == remoteID {
			return t.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: linked to %s", ErrNotFound, remoteID)
}

// Create adds a new task.
func (s *Store) Create(p Params) (*Task, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Truncate(time.Second)
	id := NewID()
	for s.tasks[id] != nil {
		id = NewID()
	}
	t := &Task{
		ID:          id,
		Title:       p.Title,
		Description: p.Description,
		Status:      cmp.Or(p.Status, StatusTodo),
		Priority:    cmp.Or(p.Priority, PriorityMedium),
		CreatedAt:   now,
		UpdatedAt:   now,
		Metadata:    maps.Clone(p.Metadata),
	}

	s.tasks[id] = t
	if err := s.saveLocked(); err != nil {
		delete(s.tasks, id)
		return nil, err
	}
	return t.Clone(), nil
}

// Update overwrites a task's fields with p and bumps UpdatedAt. Metadata in p
// replaces the task's metadata when non-nil.
func (s *Store) Update(id string, p Params) (*Task, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	t := old.Clone()
	t.Title = p.Title
	t.Description = p.Description
	t.Status = cmp.Or(p.Status, t.Status)
	t.Priority = cmp.Or(p.Priority, t.Priority)
	if p.Metadata != nil {
		t.Metadata = maps.Clone(p.Metadata)
	}
	t.UpdatedAt = s.now().UTC().Truncate(time.Second)

	s.tasks[id] = t
	if err := s.saveLocked(); err != nil {
		s.tasks[id] = old
		return nil, err
	}
	return t.Clone(), nil
}

// SetMetadata merges updates into a task's metadata without touching UpdatedAt,
// so recording sync bookkeeping does not look like a local edit. A nil value
// removes the key.
func (s *Store) SetMetadata(id string, updates map[string]any) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	t := old.Clone()
	if t.Metadata == nil {
		t.Metadata = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		if v == nil {
			delete(t.Metadata, k)
			continue
		}
		t.Metadata[k] = v
	}
	if len(t.Metadata) == 0 {
		t.Metadata = nil
	}

	s.tasks[id] = t
	if err := s.saveLocked(); err != nil {
		s.tasks[id] = old
		return nil, err
	}
	return t.Clone(), nil
}

// Delete removes a task locally. It never touches the linked remote issue.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.tasks, id)
	if err := s.saveLocked(); err != nil {
		s.tasks[id] = old
		return err
	}
	return nil
}

// Close stops watching.
func (s *Store) Close() error {
	return s.Unwatch()
}
