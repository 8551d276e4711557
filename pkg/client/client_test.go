package client

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"testing"
)

// mockCmd returns a newCmd function that captures args and prints output.
func mockCmd(output string) (func(context.Context, string, ...string) *exec.Cmd, *[][]string) {
	var calls [][]string
	fn := func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		return exec.CommandContext(ctx, "echo", output)
	}
	return fn, &calls
}

// failingCmd prints output and exits 1.
func failingCmd(output string) func(context.Context, string, ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", `printf '%s' "$1"; exit 1`, "sh", output)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New()
	if c.binPath != "linsync" {
		t.Errorf("default binPath = %q, want %q", c.binPath, "linsync")
	}
	if c.configPath != "" {
		t.Errorf("default configPath = %q, want empty", c.configPath)
	}
}

func TestRun_GlobalFlags(t *testing.T) {
	fn, calls := mockCmd(`[]`)
	c := New(WithBinPath("/usr/local/bin/linsync"), WithConfig("/tmp/linsync.yaml"))
	c.newCmd = fn

	if _, err := c.Tasks(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"/usr/local/bin/linsync", "--json", "--config", "/tmp/linsync.yaml", "tasks", "list"}
	if got := (*calls)[0]; !slices.Equal(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestTasks_Decodes(t *testing.T) {
	fn, _ := mockCmd(`[{"id":"a1","title":"Write docs","status":"todo","priority":"high","metadata":{"linearId":"iss-1"}}]`)
	c := New()
	c.newCmd = fn

	tasks, err := c.Tasks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Write docs" || tasks[0].Metadata["linearId"] != "iss-1" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestSync_Args(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"configured limit", 0, []string{"sync", "--direction", "pull"}},
		{"explicit limit", 5, []string{"sync", "--direction", "pull", "--limit", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, calls := mockCmd(`{"success":true,"result":{"direction":"pull","state":"success","added":2}}`)
			c := New()
			c.newCmd = fn

			res, err := c.Sync(context.Background(), DirectionPull, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if res.Added != 2 || res.State != "success" {
				t.Errorf("result = %+v", res)
			}
			if got := (*calls)[0][2:]; !slices.Equal(got, tt.want) {
				t.Errorf("args = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSync_ItemErrorsReturnResult(t *testing.T) {
	c := New()
	c.newCmd = failingCmd(`{"success":false,"result":{"direction":"push","state":"failed","added":1,"errors":[{"code":"PUSH_ITEM_FAILED","message":"boom","itemId":"t2"}]}}`)

	res, err := c.Sync(context.Background(), DirectionPush, 0)
	if err == nil {
		t.Fatal("expected error for a failed run")
	}
	if res == nil || res.Added != 1 || len(res.Errors) != 1 || res.Errors[0].ItemID != "t2" {
		t.Errorf("result = %+v", res)
	}
}

func TestEnvelope_CLIError(t *testing.T) {
	c := New()
	c.newCmd = failingCmd(`{"success":false,"error":"task not found: x","code":"NOT_FOUND"}`)

	_, err := c.Link(context.Background(), "x", "ENG-1")
	cliErr, ok := errors.AsType[*CLIError](err)
	if !ok {
		t.Fatalf("error = %v, want *CLIError", err)
	}
	if cliErr.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", cliErr.Code)
	}
}

func TestRun_FailureWithoutOutput(t *testing.T) {
	c := New()
	c.newCmd = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", "echo 'no config' >&2; exit 1")
	}
	_, err := c.Tasks(context.Background())
	cliErr, ok := errors.AsType[*CLIError](err)
	if !ok || cliErr.Message != "no config" {
		t.Errorf("error = %v, want CLIError with stderr", err)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	c := New(WithBinPath("/nonexistent/linsync"))
	if _, err := c.Tasks(context.Background()); err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestLinkAndUnlink(t *testing.T) {
	fn, calls := mockCmd(`{"success":true,"link":{"taskId":"a1","remoteId":"iss-1","identifier":"ENG-1","action":"linked"}}`)
	c := New()
	c.newCmd = fn

	link, err := c.Link(context.Background(), "a1", "ENG-1")
	if err != nil {
		t.Fatal(err)
	}
	if link.Identifier != "ENG-1" || link.Action != "linked" {
		t.Errorf("link = %+v", link)
	}
	if _, err := c.Unlink(context.Background(), "a1"); err != nil {
		t.Fatal(err)
	}
	if got := (*calls)[1][2:]; !slices.Equal(got, []string{"unlink", "a1"}) {
		t.Errorf("unlink args = %v", got)
	}
}

func TestAddTask_OptionalFlags(t *testing.T) {
	fn, calls := mockCmd(`{"success":true,"task":{"id":"a1","title":"x","status":"todo","priority":"medium"}}`)
	c := New()
	c.newCmd = fn

	task, err := c.AddTask(context.Background(), "x", "", "high")
	if err != nil {
		t.Fatal(err)
	}
	if task.ID != "a1" {
		t.Errorf("task = %+v", task)
	}
	want := []string{"tasks", "add", "x", "--priority", "high"}
	if got := (*calls)[0][2:]; !slices.Equal(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}

func TestQuery_Variables(t *testing.T) {
	fn, calls := mockCmd(`{"viewer":{"id":"u1"}}`)
	c := New()
	c.newCmd = fn

	if _, err := c.Query(context.Background(), `{ viewer { id } }`, nil); err != nil {
		t.Fatal(err)
	}
	if slices.Contains((*calls)[0], "-v") {
		t.Error("-v flag should not be present when variables are nil")
	}

	query := `query Issue($id: String!) { issue(id: $id) { title } }`
	if _, err := c.Query(context.Background(), query, map[string]any{"id": "ENG-1"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"graphql", "--raw", "-v", `{"id":"ENG-1"}`, query}
	if got := (*calls)[1][2:]; !slices.Equal(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}
}
