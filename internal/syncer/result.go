package syncer

import (
	"fmt"
	"time"
)

// Error codes recorded in Result.Errors.
const (
	CodeConfiguration        = "CONFIGURATION"
	CodeWorkflowStatesFailed = "WORKFLOW_STATES_FAILED"
	CodePullFailed           = "PULL_FAILED"
	CodePullItemFailed       = "PULL_ITEM_FAILED"
	CodePushCreateFailed     = "PUSH_CREATE_FAILED"
	CodeLinkFailed           = "LINK_FAILED"
	CodePushUpdateFailed     = "PUSH_UPDATE_FAILED"
	CodeStampFailed          = "SYNC_STAMP_FAILED"
)

// ItemError describes one failure during a run. ItemID is the local task id
// when one exists; RemoteID is the Linear issue id when one is known.
type ItemError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ItemID   string `json:"itemId,omitempty"`
	RemoteID string `json:"remoteId,omitempty"`
}

func (e ItemError) Error() string {
	switch {
	case e.ItemID != "" && e.RemoteID != "":
		return fmt.Sprintf("%s: task %s / issue %s: %s", e.Code, e.ItemID, e.RemoteID, e.Message)
	case e.ItemID != "":
		return fmt.Sprintf("%s: task %s: %s", e.Code, e.ItemID, e.Message)
	case e.RemoteID != "":
		return fmt.Sprintf("%s: issue %s: %s", e.Code, e.RemoteID, e.Message)
	}
	return e.Code + ": " + e.Message
}

// Pair links a local task to a remote issue.
type Pair struct {
	LocalID  string `json:"localId"`
	RemoteID string `json:"remoteId"`
}

// Failure names an item that could not be synced.
type Failure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Details lists the items behind the counts in a Result.
type Details struct {
	Added   []Pair    `json:"added"`
	Updated []Pair    `json:"updated"`
	Failed  []Failure `json:"failed"`
}

// Result summarizes one run. It is built fresh per run and never persisted.
type Result struct {
	Direction  Direction   `json:"direction"`
	State      State       `json:"state"`
	Added      int         `json:"added"`
	Updated    int         `json:"updated"`
	Deleted    int         `json:"deleted"`
	Conflicts  int         `json:"conflicts"`
	Skipped    int         `json:"skipped"`
	Errors     []ItemError `json:"errors"`
	Details    Details     `json:"details"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

func newResult(dir Direction, now time.Time) *Result {
	return &Result{
		Direction: dir,
		State:     StateIdle,
		Errors:    []ItemError{},
		Details: Details{
			Added:   []Pair{},
			Updated: []Pair{},
			Failed:  []Failure{},
		},
		StartedAt: now,
	}
}

// OK reports whether the run finished without any recorded error.
func (r *Result) OK() bool {
	return r.State == StateDone && len(r.Errors) == 0
}

func (r *Result) added(localID, remoteID string) {
	r.Added++
	r.Details.Added = append(r.Details.Added, Pair{LocalID: localID, RemoteID: remoteID})
}

func (r *Result) updated(localID, remoteID string) {
	r.Updated++
	r.Details.Updated = append(r.Details.Updated, Pair{LocalID: localID, RemoteID: remoteID})
}

// fail records an error; failedID, when set, is also listed in Details.Failed.
func (r *Result) fail(e ItemError, failedID string) {
	r.Errors = append(r.Errors, e)
	if failedID != "" {
		r.Details.Failed = append(r.Details.Failed, Failure{ID: failedID, Error: e.Message})
	}
}
