// Package client provides a Go API for driving linsync from other programs.
//
// The client wraps the linsync CLI, running each command with --json and
// decoding its output. Raw Linear queries go through "linsync graphql" with
// variables passed as JSON, so values are never interpolated into the query.
//
// Usage:
//
//	c := client.New(client.WithConfig("/path/to/config.yaml"))
//	res, err := c.Sync(ctx, client.DirectionPull, 0)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Sync directions.
const (
	DirectionPull = "pull"
	DirectionPush = "push"
	DirectionBoth = "both"
)

// Task is a task as printed by "linsync tasks list --json".
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Priority    string         `json:"priority"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SyncError is one entry of SyncResult.Errors.
type SyncError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ItemID   string `json:"itemId,omitempty"`
	RemoteID string `json:"remoteId,omitempty"`
}

// SyncResult is the summary of one sync run.
type SyncResult struct {
	Direction string      `json:"direction"`
	State     string      `json:"state"`
	Added     int         `json:"added"`
	Updated   int         `json:"updated"`
	Skipped   int         `json:"skipped"`
	Errors    []SyncError `json:"errors"`
}

// LinkResult is the outcome of Link or Unlink.
type LinkResult struct {
	TaskID     string `json:"taskId"`
	RemoteID   string `json:"remoteId,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	URL        string `json:"url,omitempty"`
	Action     string `json:"action"`
}

// CLIError is an error reported by linsync in its JSON envelope.
type CLIError struct {
	Code    string
	Message string
}

func (e *CLIError) Error() string {
	if e.Code == "" {
		return "linsync: " + e.Message
	}
	return fmt.Sprintf("linsync: %s: %s", e.Code, e.Message)
}

// response mirrors the CLI's JSON envelope.
type response struct {
	Success bool        `json:"success"`
	Task    *Task       `json:"task,omitempty"`
	Result  *SyncResult `json:"result,omitempty"`
	Link    *LinkResult `json:"link,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// Client runs linsync commands.
type Client struct {
	configPath string
	binPath    string

	// newCmd is overridable for testing. When nil, exec.CommandContext is used.
	newCmd func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the --config flag for all CLI invocations.
func WithConfig(path string) Option {
	return func(c *Client) { c.configPath = path }
}

// WithBinPath overrides the linsync binary path (default: "linsync").
func WithBinPath(path string) Option {
	return func(c *Client) { c.binPath = path }
}

// New creates a new Client.
func New(opts ...Option) *Client {
	c := &Client{binPath: "linsync"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run executes linsync with args and returns stdout. A failed command with
// JSON on stdout is returned together with that output.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	full := []string{"--json"}
	if c.configPath != "" {
		full = append(full, "--config", c.configPath)
	}
	full = append(full, args...)

	mkCmd := exec.CommandContext
	if c.newCmd != nil {
		mkCmd = c.newCmd
	}
	cmd := mkCmd(ctx, c.binPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if _, ok := errors.AsType[*exec.ExitError](err); ok {
			if len(bytes.TrimSpace(out)) > 0 {
				return out, err
			}
			return nil, &CLIError{Message: strings.TrimSpace(stderr.String())}
		}
		return nil, fmt.Errorf("linsync %s: %w", args[0], err)
	}
	return out, nil
}

// envelope runs a command whose output is a response envelope.
func (c *Client) envelope(ctx context.Context, args ...string) (*response, error) {
	out, runErr := c.run(ctx, args...)
	if out == nil {
		return nil, runErr
	}
	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("decoding linsync output: %w", err))
	}
	if resp.Error != "" {
		return &resp, &CLIError{Code: resp.Code, Message: resp.Error}
	}
	return &resp, runErr
}

// Tasks lists all local tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	out, err := c.run(ctx, "tasks", "list")
	if err != nil {
		return nil, err
	}
	var tasks []Task
	if err := json.Unmarshal(out, &tasks); err != nil {
		return nil, fmt.Errorf("decoding tasks: %w", err)
	}
	return tasks, nil
}

// AddTask creates a task. Empty status and priority use linsync's defaults.
func (c *Client) AddTask(ctx context.Context, title, status, priority string) (*Task, error) {
	args := []string{"tasks", "add", title}
	if status != "" {
		args = append(args, "--status", status)
	}
	if priority != "" {
		args = append(args, "--priority", priority)
	}
	resp, err := c.envelope(ctx, args...)
	if err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// Sync runs a sync in direction. limit <= 0 uses the configured limit. When
// the run records item errors, the result is returned along with an error.
func (c *Client) Sync(ctx context.Context, direction string, limit int) (*SyncResult, error) {
	args := []string{"sync", "--direction", direction}
	if limit > 0 {
		args = append(args, "--limit", strconv.Itoa(limit))
	}
	resp, err := c.envelope(ctx, args...)
	if resp == nil || resp.Result == nil {
		if err == nil {
			err = errors.New("linsync sync: no result in output")
		}
		return nil, err
	}
	return resp.Result, err
}

// Link ties a task to an existing issue id or identifier.
func (c *Client) Link(ctx context.Context, taskID, issue string) (*LinkResult, error) {
	resp, err := c.envelope(ctx, "link", taskID, issue)
	if err != nil {
		return nil, err
	}
	return resp.Link, nil
}

// Unlink removes a task's link metadata.
func (c *Client) Unlink(ctx context.Context, taskID string) (*LinkResult, error) {
	resp, err := c.envelope(ctx, "unlink", taskID)
	if err != nil {
		return nil, err
	}
	return resp.Link, nil
}

// Query runs a GraphQL document against Linear and returns the data portion
// of the response.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any) ([]byte, error) {
	args := []string{"graphql", "--raw"}
	if len(variables) > 0 {
		v, err := json.Marshal(variables)
		if err != nil {
			return nil, fmt.Errorf("marshaling variables: %w", err)
		}
		args = append(args, "-v", string(v))
	}
	args = append(args, query)
	return c.run(ctx, args...)
}
