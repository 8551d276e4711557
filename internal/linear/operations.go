package linear

import (
	"context"
	"fmt"
)

// Default page size for issue listing.
const DefaultPageSize = 100

// Viewer returns the profile for the client's token. It doubles as the
// credential check: an invalid token fails with KindAuthentication.
func (c *Client) Viewer(ctx context.Context) (*User, error) {
	var resp struct {
		Viewer *User `json:"viewer"`
	}
	if err := c.Execute(ctx, viewerQuery, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Viewer == nil {
		return nil, missing("Viewer", "viewer")
	}
	return resp.Viewer, nil
}

// Teams lists the teams visible to the token.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var resp struct {
		Teams struct {
			Nodes []Team `json:"nodes"`
		} `json:"teams"`
	}
	if err := c.Execute(ctx, teamsQuery, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Teams.Nodes, nil
}

// Team fetches a team by id or key.
func (c *Client) Team(ctx context.Context, id string) (*Team, error) {
	var resp struct {
		Team *Team `json:"team"`
	}
	if err := c.Execute(ctx, teamQuery, map[string]any{"id": id}, &resp); err != nil {
		return nil, err
	}
	if resp.Team == nil {
		return nil, missing("Team", "team "+id)
	}
	return resp.Team, nil
}

// WorkflowStates lists the workflow states of a team.
func (c *Client) WorkflowStates(ctx context.Context, teamID string) ([]WorkflowState, error) {
	var resp struct {
		WorkflowStates struct {
			Nodes []WorkflowState `json:"nodes"`
		} `json:"workflowStates"`
	}
	if err := c.Execute(ctx, workflowStatesQuery, map[string]any{"teamId": teamID}, &resp); err != nil {
		return nil, err
	}
	return resp.WorkflowStates.Nodes, nil
}

// Projects lists the projects of a team.
func (c *Client) Projects(ctx context.Context, teamID string) ([]Project, error) {
	var resp struct {
		Team *struct {
			Projects struct {
				Nodes []Project `json:"nodes"`
			} `json:"projects"`
		} `json:"team"`
	}
	if err := c.Execute(ctx, projectsQuery, map[string]any{"teamId": teamID}, &resp); err != nil {
		return nil, err
	}
	if resp.Team == nil {
		return nil, missing("Projects", "team "+teamID)
	}
	return resp.Team.Projects.Nodes, nil
}

// Issues lists issues matching filter, at most first of them.
func (c *Client) Issues(ctx context.Context, filter IssueFilter, first int) ([]Issue, error) {
	if first <= 0 {
		first = DefaultPageSize
	}
	var resp struct {
		Issues struct {
			Nodes []Issue `json:"nodes"`
		} `json:"issues"`
	}
	vars := map[string]any{
		"filter": filter.toGraphQL(),
		"first":  first,
	}
	if err := c.Execute(ctx, issuesQuery, vars, &resp); err != nil {
		return nil, err
	}
	return resp.Issues.Nodes, nil
}

// Issue fetches a single issue by id or identifier.
func (c *Client) Issue(ctx context.Context, id string) (*Issue, error) {
	var resp struct {
		Issue *Issue `json:"issue"`
	}
	if err := c.Execute(ctx, issueQuery, map[string]any{"id": id}, &resp); err != nil {
		return nil, err
	}
	if resp.Issue == nil {
		return nil, missing("Issue", "issue "+id)
	}
	return resp.Issue, nil
}

// issuePayload is the shape of issueCreate/issueUpdate results.
type issuePayload struct {
	Success bool   `json:"success"`
	Issue   *Issue `json:"issue"`
}

// CreateIssue creates an issue. A response with success: false is an error
// even though the HTTP call succeeded.
func (c *Client) CreateIssue(ctx context.Context, input IssueCreateInput) (*Issue, error) {
	var resp struct {
		IssueCreate issuePayload `json:"issueCreate"`
	}
	if err := c.Execute(ctx, issueCreateMutation, map[string]any{"input": input}, &resp); err != nil {
		return nil, err
	}
	if !resp.IssueCreate.Success || resp.IssueCreate.Issue == nil {
		return nil, providerFailure("IssueCreate", "issue creation was not successful")
	}
	return resp.IssueCreate.Issue, nil
}

// UpdateIssue updates an issue. A failure after retries leaves the remote state
// unknown: the update may or may not have been applied.
func (c *Client) UpdateIssue(ctx context.Context, id string, input IssueUpdateInput) (*Issue, error) {
	var resp struct {
		IssueUpdate issuePayload `json:"issueUpdate"`
	}
	vars := map[string]any{"id": id, "input": input}
	if err := c.Execute(ctx, issueUpdateMutation, vars, &resp); err != nil {
		return nil, err
	}
	if !resp.IssueUpdate.Success || resp.IssueUpdate.Issue == nil {
		return nil, providerFailure("IssueUpdate", fmt.Sprintf("update of issue %s was not successful", id))
	}
	return resp.IssueUpdate.Issue, nil
}

// DeleteIssue deletes (archives) an issue and reports Linear's success flag.
func (c *Client) DeleteIssue(ctx context.Context, id string) (bool, error) {
	var resp struct {
		IssueDelete struct {
			Success bool `json:"success"`
		} `json:"issueDelete"`
	}
	if err := c.Execute(ctx, issueDeleteMutation, map[string]any{"id": id}, &resp); err != nil {
		return false, err
	}
	return resp.IssueDelete.Success, nil
}

// CreateWebhook registers a webhook.
func (c *Client) CreateWebhook(ctx context.Context, input WebhookCreateInput) (*Webhook, error) {
	var resp struct {
		WebhookCreate struct {
			Success bool     `json:"success"`
			Webhook *Webhook `json:"webhook"`
		} `json:"webhookCreate"`
	}
	if err := c.Execute(ctx, webhookCreateMutation, map[string]any{"input": input}, &resp); err != nil {
		return nil, err
	}
	if !resp.WebhookCreate.Success || resp.WebhookCreate.Webhook == nil {
		return nil, providerFailure("WebhookCreate", "webhook creation was not successful")
	}
	return resp.WebhookCreate.Webhook, nil
}

// DeleteWebhook removes a webhook.
func (c *Client) DeleteWebhook(ctx context.Context, id string) (bool, error) {
	var resp struct {
		WebhookDelete struct {
			Success bool `json:"success"`
		} `json:"webhookDelete"`
	}
	if err := c.Execute(ctx, webhookDeleteMutation, map[string]any{"id": id}, &resp); err != nil {
		return false, err
	}
	return resp.WebhookDelete.Success, nil
}

func missing(op, what string) *Error {
	return &Error{Message: what + " not found", Kind: KindNotFound, Operation: op, Err: errMissingEntity}
}

func providerFailure(op, msg string) *Error {
	return &Error{Message: msg, Kind: KindProviderFailure, Operation: op}
}
