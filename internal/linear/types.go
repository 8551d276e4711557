// Package linear provides Linear API access via GraphQL.
package linear

import "time"

// Workflow state types used by Linear to categorize states.
const (
	StateTriage    = "triage"
	StateBacklog   = "backlog"
	StateUnstarted = "unstarted"
	StateStarted   = "started"
	StateCompleted = "completed"
	StateCanceled  = "canceled"
)

// Linear priority levels. Lower numbers are more urgent, except 0 which means unset.
const (
	PriorityNone   = 0
	PriorityUrgent = 1
	PriorityHigh   = 2
	PriorityMedium = 3
	PriorityLow    = 4
)

// User is the profile behind an API token.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Team is a Linear team (the scope issues and workflow states belong to).
type Team struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Ref is a lightweight reference to a related entity.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// WorkflowState is a named stage in a team's status pipeline.
type WorkflowState struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Color    string  `json:"color"`
	Type     string  `json:"type"`
	Position float64 `json:"position"`
	Team     *Ref    `json:"team,omitempty"`
}

// TeamID returns the owning team id, or "" when the state was fetched without it.
func (s WorkflowState) TeamID() string {
	if s.Team == nil {
		return ""
	}
	return s.Team.ID
}

// Project is a Linear project.
type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// IssueState is the state embedded in an issue payload.
type IssueState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Issue holds issue data returned from Linear.
type Issue struct {
	ID          string     `json:"id"`
	Identifier  string     `json:"identifier"` // human id, e.g. ENG-123
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Estimate    *float64   `json:"estimate"`
	State       IssueState `json:"state"`
	Team        *Ref       `json:"team"`
	Assignee    *Ref       `json:"assignee"`
	Creator     *Ref       `json:"creator"`
	Project     *Ref       `json:"project"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	URL         string     `json:"url"`
}

// StateID returns the id of the issue's workflow state.
func (i *Issue) StateID() string {
	return i.State.ID
}

// IssueCreateInput is the input for the issueCreate mutation.
type IssueCreateInput struct {
	TeamID      string   `json:"teamId"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    *int     `json:"priority,omitempty"`
	StateID     string   `json:"stateId,omitempty"` // omitted: Linear applies the team default
	ProjectID   string   `json:"projectId,omitempty"`
	AssigneeID  string   `json:"assigneeId,omitempty"`
	Estimate    *float64 `json:"estimate,omitempty"`
}

// IssueUpdateInput is the input for the issueUpdate mutation.
// ID is sent as a separate variable, not as part of the input object.
type IssueUpdateInput struct {
	ID          string  `json:"-"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	StateID     *string `json:"stateId,omitempty"`
}

// IssueFilter narrows an issues query.
type IssueFilter struct {
	TeamID       string
	UpdatedAfter *time.Time
}

// toGraphQL converts the filter into Linear's IssueFilter input shape.
func (f IssueFilter) toGraphQL() map[string]any {
	filter := map[string]any{}
	if f.TeamID != "" {
		filter["team"] = map[string]any{"id": map[string]any{"eq": f.TeamID}}
	}
	if f.UpdatedAfter != nil {
		filter["updatedAt"] = map[string]any{"gt": f.UpdatedAfter.UTC().Format(time.RFC3339)}
	}
	return filter
}

// Webhook is a registered Linear webhook.
type Webhook struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// WebhookCreateInput is the input for the webhookCreate mutation.
type WebhookCreateInput struct {
	URL           string   `json:"url"`
	TeamID        string   `json:"teamId,omitempty"`
	Secret        string   `json:"secret,omitempty"`
	Label         string   `json:"label,omitempty"`
	ResourceTypes []string `json:"resourceTypes"`
}
