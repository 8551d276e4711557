package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/toba/linsync/internal/syncer"
	"github.com/toba/linsync/internal/task"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, buf.String())
	}
	return m
}

func TestSuccess(t *testing.T) {
	var buf bytes.Buffer
	tk := &task.Task{ID: "abc-123", Title: "Test", Status: task.StatusTodo}
	if err := New(&buf).Success(tk, "Task created"); err != nil {
		t.Fatal(err)
	}
	m := decode(t, &buf)
	if m["success"] != true || m["message"] != "Task created" {
		t.Errorf("response = %v", m)
	}
	if got := m["task"].(map[string]any)["id"]; got != "abc-123" {
		t.Errorf("task.id = %v", got)
	}
}

func TestTasks_EmptyIsArray(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf).Tasks(nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("output = %q, want []", got)
	}
}

func TestSyncResult(t *testing.T) {
	var buf bytes.Buffer
	r := &syncer.Result{
		Direction: syncer.DirectionPush,
		State:     syncer.StateDone,
		Added:     1,
		Errors:    []syncer.ItemError{{Code: syncer.CodePushCreateFailed, Message: "boom", ItemID: "t2"}},
		Details:   syncer.Details{Failed: []syncer.Failure{{ID: "t2", Error: "boom"}}},
	}
	if err := New(&buf).SyncResult(r); err != nil {
		t.Fatal(err)
	}
	m := decode(t, &buf)
	if m["success"] != false {
		t.Error("a result with errors should not report success")
	}
	res := m["result"].(map[string]any)
	if res["added"] != float64(1) || res["direction"] != "push" {
		t.Errorf("result = %v", res)
	}
	errs := res["errors"].([]any)
	if errs[0].(map[string]any)["itemId"] != "t2" {
		t.Errorf("errors = %v", errs)
	}
}

func TestSyncFailure(t *testing.T) {
	var buf bytes.Buffer
	r := &syncer.Result{Direction: syncer.DirectionPull, State: syncer.StateFailed}
	if err := New(&buf).SyncFailure(r, ErrNotConfigured, syncer.ErrNotConfigured); err != nil {
		t.Fatal(err)
	}
	m := decode(t, &buf)
	if m["success"] != false || m["code"] != ErrNotConfigured || m["error"] == "" {
		t.Errorf("envelope = %v", m)
	}
	if res, ok := m["result"].(map[string]any); !ok || res["state"] != string(syncer.StateFailed) {
		t.Errorf("result = %v", m["result"])
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	err := New(&buf).ErrorFrom(ErrNotConfigured, errors.New("run linsync auth login"))
	if err == nil || err.Error() != "run linsync auth login" {
		t.Errorf("returned error = %v", err)
	}
	m := decode(t, &buf)
	if m["success"] != false || m["code"] != ErrNotConfigured {
		t.Errorf("response = %v", m)
	}
}
