// Package task defines the local task entity and its JSON file store.
package task

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Status is the local workflow state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists valid statuses in workflow order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Priority is the local priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists valid priorities from highest to lowest.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Metadata keys written by sync.
const (
	MetaLinearID         = "linearId"
	MetaLinearIssueID    = "linearIssueId" // legacy, read-only
	MetaLinearStateID    = "linearStateId"
	MetaLinearURL        = "linearUrl"
	MetaLinearIdentifier = "linearIdentifier"
	MetaLastSyncedAt     = "lastSyncedAt"
)

// LinkKeys are the metadata keys that tie a task to a remote issue.
var LinkKeys = []string{
	MetaLinearID,
	MetaLinearIssueID,
	MetaLinearStateID,
	MetaLinearURL,
	MetaLinearIdentifier,
	MetaLastSyncedAt,
}

var (
	ErrNotFound     = errors.New("task not found")
	ErrTitleMissing = errors.New("task title is required")
)

// Task is a locally owned unit of work.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      Status         `json:"status"`
	Priority    Priority       `json:"priority"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Params holds the fields callers may set when creating or updating a task.
type Params struct {
	Title       string
	Description string
	Status      Status
	Priority    Priority
	Metadata    map[string]any
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID generates a task ID in the fixed xxx-xxx format.
func NewID() string {
	raw, err := gonanoid.Generate(idAlphabet, 6)
	if err != nil {
		panic(err) // should never happen with valid alphabet
	}
	return raw[:3] + "-" + raw[3:]
}

// ParseStatus normalizes s into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusTodo, StatusInProgress, StatusDone:
		return st, nil
	case "in_progress", "inprogress", "doing":
		return StatusInProgress, nil
	}
	return "", fmt.Errorf("invalid status %q (want todo, in-progress or done)", s)
}

// ParsePriority normalizes s into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority %q (want low, medium or high)", s)
}

// MetaString returns metadata[key] as a string, or "".
func (t *Task) MetaString(key string) string {
	if t.Metadata == nil {
		return ""
	}
	s, _ := t.Metadata[key].(string)
	return s
}

// RemoteID returns the linked Linear issue id, checking the primary key
// before the legacy one.
func (t *Task) RemoteID() string {
	if id := t.MetaString(MetaLinearID); id != "" {
		return id
	}
	return t.MetaString(MetaLinearIssueID)
}

// LastSyncedAt returns when the task was last synced, or the zero time.
func (t *Task) LastSyncedAt() time.Time {
	ts, err := time.Parse(time.RFC3339, t.MetaString(MetaLastSyncedAt))
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Clone returns a deep-enough copy: metadata values are shared, the map is not.
func (t *Task) Clone() *Task {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

func (p Params) validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrTitleMissing
	}
	if p.Status != "" && !slices.Contains(Statuses, p.Status) {
		return fmt.Errorf("invalid status %q", p.Status)
	}
	if p.Priority != "" && !slices.Contains(Priorities, p.Priority) {
		return fmt.Errorf("invalid priority %q", p.Priority)
	}
	return nil
}
