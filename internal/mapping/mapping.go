// Package mapping converts between local tasks and Linear issues.
//
// The conversions are deliberately lossy in two places: Linear priorities 0
// (none) and 4 (low) both become local "low", and canceled issues become
// "done". A task pushed and pulled back can therefore come home with a
// different priority than it left with.
package mapping

import (
	"maps"
	"strings"
	"time"

	"github.com/toba/linsync/internal/linear"
	"github.com/toba/linsync/internal/task"
)

// StateTypeStatus maps Linear workflow state types to local statuses.
var StateTypeStatus = map[string]task.Status{
	linear.StateTriage:    task.StatusTodo,
	linear.StateBacklog:   task.StatusTodo,
	linear.StateUnstarted: task.StatusTodo,
	linear.StateStarted:   task.StatusInProgress,
	linear.StateCompleted: task.StatusDone,
	linear.StateCanceled:  task.StatusDone,
}

// StatusStateType maps local statuses to the Linear state type used for them.
var StatusStateType = map[task.Status]string{
	task.StatusTodo:       linear.StateBacklog,
	task.StatusInProgress: linear.StateStarted,
	task.StatusDone:       linear.StateCompleted,
}

// LocalPriority maps local priorities to Linear priority values.
var LocalPriority = map[task.Priority]int{
	task.PriorityHigh:   linear.PriorityHigh,
	task.PriorityMedium: linear.PriorityMedium,
	task.PriorityLow:    linear.PriorityLow,
}

// StateTypeToStatus returns the local status for a Linear state type.
// Unknown types map to todo.
func StateTypeToStatus(stateType string) task.Status {
	if s, ok := StateTypeStatus[strings.ToLower(stateType)]; ok {
		return s
	}
	return task.StatusTodo
}

// StatusToStateType returns the Linear state type for a local status.
// Unknown statuses map to backlog.
func StatusToStateType(status task.Status) string {
	if t, ok := StatusStateType[status]; ok {
		return t
	}
	return linear.StateBacklog
}

// RemotePriorityToLocal maps Linear's 0-4 scale onto low/medium/high.
func RemotePriorityToLocal(p int) task.Priority {
	switch p {
	case linear.PriorityUrgent, linear.PriorityHigh:
		return task.PriorityHigh
	case linear.PriorityMedium:
		return task.PriorityMedium
	default: // none, low and anything out of range
		return task.PriorityLow
	}
}

// LocalPriorityToRemote maps a local priority onto Linear's scale.
// Unknown priorities map to medium.
func LocalPriorityToRemote(p task.Priority) int {
	if v, ok := LocalPriority[p]; ok {
		return v
	}
	return linear.PriorityMedium
}

// FindStateForStatus returns the first state whose type matches the type
// for status, compared case-insensitively, or nil.
func FindStateForStatus(states []linear.WorkflowState, status task.Status) *linear.WorkflowState {
	want := StatusToStateType(status)
	for i := range states {
		if strings.EqualFold(states[i].Type, want) {
			return &states[i]
		}
	}
	return nil
}

// IssueToTaskParams builds task fields from an issue. Metadata from existing
// (which may be nil) is kept and the link keys are overwritten.
func IssueToTaskParams(issue *linear.Issue, existing *task.Task, now time.Time) task.Params {
	meta := map[string]any{}
	if existing != nil {
		meta = maps.Clone(existing.Metadata)
		if meta == nil {
			meta = map[string]any{}
		}
	}
	maps.Copy(meta, LinkMetadata(issue, now))

	return task.Params{
		Title:       issue.Title,
		Description: issue.Description,
		Status:      StateTypeToStatus(issue.State.Type),
		Priority:    RemotePriorityToLocal(issue.Priority),
		Metadata:    meta,
	}
}

// LinkMetadata returns the metadata that ties a task to issue.
func LinkMetadata(issue *linear.Issue, now time.Time) map[string]any {
	meta := map[string]any{
		task.MetaLinearID:     issue.ID,
		task.MetaLastSyncedAt: now.UTC().Format(time.RFC3339),
	}
	if id := issue.StateID(); id != "" {
		meta[task.MetaLinearStateID] = id
	}
	if issue.URL != "" {
		meta[task.MetaLinearURL] = issue.URL
	}
	if issue.Identifier != "" {
		meta[task.MetaLinearIdentifier] = issue.Identifier
	}
	return meta
}

// TaskToIssueCreateInput builds the issueCreate input for t in team teamID.
// When no state in states matches the task's status, the state is omitted
// and Linear applies the team default.
func TaskToIssueCreateInput(t *task.Task, teamID string, states []linear.WorkflowState) linear.IssueCreateInput {
	priority := LocalPriorityToRemote(t.Priority)
	input := linear.IssueCreateInput{
		TeamID:      teamID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    &priority,
	}
	if st := FindStateForStatus(states, t.Status); st != nil {
		input.StateID = st.ID
	}
	return input
}

// TaskToIssueUpdateInput builds the issueUpdate input for a linked task. The
// issue id comes from the task's metadata.
func TaskToIssueUpdateInput(t *task.Task, states []linear.WorkflowState) linear.IssueUpdateInput {
	title := t.Title
	description := t.Description
	priority := LocalPriorityToRemote(t.Priority)
	input := linear.IssueUpdateInput{
		ID:          t.RemoteID(),
		Title:       &title,
		Description: &description,
		Priority:    &priority,
	}
	if st := FindStateForStatus(states, t.Status); st != nil {
		input.StateID = &st.ID
	}
	return input
}
