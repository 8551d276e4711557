package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/toba/linsync/internal/mapping"
	"github.com/toba/linsync/internal/task"
)

// Link/unlink actions.
const (
	ActionLinked        = "linked"
	ActionAlreadyLinked = "already_linked"
	ActionUnlinked      = "unlinked"
	ActionNotLinked     = "not_linked"
)

// ErrAlreadyLinked is returned when an issue is linked to a different task.
var ErrAlreadyLinked = errors.New("issue is already linked to another task")

// LinkResult describes the outcome of Link or Unlink.
type LinkResult struct {
	TaskID     string `json:"taskId"`
	RemoteID   string `json:"remoteId,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	URL        string `json:"url,omitempty"`
	Action     string `json:"action"`
}

// Link ties a task to an existing issue, given by id or identifier (ENG-123).
// It is the repair path for a LINK_FAILED create. The issue must exist and
// must not be linked to another task.
func (e *Engine) Link(ctx context.Context, taskID, remoteID string) (*LinkResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	t, err := e.store.Get(taskID)
	if err != nil {
		return nil, err
	}
	s, err := e.prerequisites()
	if err != nil {
		return nil, err
	}

	issue, err := s.client.Issue(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %s: %w", remoteID, err)
	}

	res := &LinkResult{TaskID: t.ID, RemoteID: issue.ID, Identifier: issue.Identifier, URL: issue.URL}
	if t.RemoteID() == issue.ID {
		res.Action = ActionAlreadyLinked
		return res, nil
	}
	if other, ok := e.remoteIndex()[issue.ID]; ok && other.ID != t.ID {
		return nil, fmt.Errorf("%w: %s is linked to task %s", ErrAlreadyLinked, issue.Identifier, other.ID)
	}

	if _, err := e.store.SetMetadata(t.ID, mapping.LinkMetadata(issue, e.now())); err != nil {
		return nil, fmt.Errorf("linking task %s: %w", t.ID, err)
	}
	res.Action = ActionLinked
	e.log.WithFields(logrus.Fields{"task": t.ID, "issue": issue.Identifier}).Info("task linked")
	return res, nil
}

// Unlink removes all link metadata from a task. The remote issue is untouched.
func (e *Engine) Unlink(taskID string) (*LinkResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	t, err := e.store.Get(taskID)
	if err != nil {
		return nil, err
	}
	res := &LinkResult{TaskID: t.ID, RemoteID: t.RemoteID(), Identifier: t.MetaString(task.MetaLinearIdentifier)}
	if res.RemoteID == "" {
		res.Action = ActionNotLinked
		return res, nil
	}

	removals := make(map[string]any, len(task.LinkKeys))
	for _, k := range task.LinkKeys {
		removals[k] = nil
	}
	if _, err := e.store.SetMetadata(t.ID, removals); err != nil {
		return nil, fmt.Errorf("unlinking task %s: %w", t.ID, err)
	}
	res.Action = ActionUnlinked
	e.log.WithField("task", t.ID).Info("task unlinked")
	return res, nil
}
