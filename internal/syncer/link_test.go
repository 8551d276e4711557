package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/toba/linsync/internal/linear"
	"github.com/toba/linsync/internal/task"
)

func TestLink(t *testing.T) {
	f := newFixture(t, configured())
	f.api.issues = []linear.Issue{
		{ID: "iss-1", Identifier: "ENG-1", URL: "https://linear.app/acme/issue/ENG-1", State: linear.IssueState{ID: "st-backlog"}},
	}
	tk, _ := f.store.Create(task.Params{Title: "repair me"})

	res, err := f.engine.Link(context.Background(), tk.ID, "ENG-1")
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if res.Action != ActionLinked || res.RemoteID != "iss-1" || res.Identifier != "ENG-1" {
		t.Errorf("result = %+v", res)
	}
	got, _ := f.store.Get(tk.ID)
	if got.RemoteID() != "iss-1" || got.MetaString(task.MetaLinearURL) != "https://linear.app/acme/issue/ENG-1" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.Title != "repair me" {
		t.Error("link must not change task fields")
	}

	res, err = f.engine.Link(context.Background(), tk.ID, "iss-1")
	if err != nil || res.Action != ActionAlreadyLinked {
		t.Errorf("relink = %+v, %v", res, err)
	}
}

func TestLink_RejectsIssueLinkedElsewhere(t *testing.T) {
	f := newFixture(t, configured())
	f.api.issues = []linear.Issue{{ID: "iss-1", Identifier: "ENG-1"}}
	_, _ = f.store.Create(task.Params{Title: "owner", Metadata: map[string]any{task.MetaLinearID: "iss-1"}})
	other, _ := f.store.Create(task.Params{Title: "other"})

	_, err := f.engine.Link(context.Background(), other.ID, "iss-1")
	if !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("Link() error = %v, want ErrAlreadyLinked", err)
	}
	if got, _ := f.store.Get(other.ID); got.RemoteID() != "" {
		t.Error("task should remain unlinked")
	}
}

func TestLink_Errors(t *testing.T) {
	f := newFixture(t, configured())
	tk, _ := f.store.Create(task.Params{Title: "x"})

	if _, err := f.engine.Link(context.Background(), "nope", "iss-1"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("missing task error = %v", err)
	}
	if _, err := f.engine.Link(context.Background(), tk.ID, "iss-404"); !linear.IsNotFound(err) {
		t.Errorf("missing issue error = %v", err)
	}

	unconfigured := newFixture(t, fakeCreds{})
	tk2, _ := unconfigured.store.Create(task.Params{Title: "x"})
	if _, err := unconfigured.engine.Link(context.Background(), tk2.ID, "iss-1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("unconfigured error = %v", err)
	}
}

func TestUnlink(t *testing.T) {
	f := newFixture(t, configured())
	tk, _ := f.store.Create(task.Params{Title: "x", Metadata: map[string]any{
		task.MetaLinearID:         "iss-1",
		task.MetaLinearIssueID:    "iss-1",
		task.MetaLinearIdentifier: "ENG-1",
		task.MetaLinearStateID:    "st",
		task.MetaLinearURL:        "u",
		task.MetaLastSyncedAt:     "2026-01-01T00:00:00Z",
		"custom":                  "kept",
	}})

	res, err := f.engine.Unlink(tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != ActionUnlinked || res.RemoteID != "iss-1" || res.Identifier != "ENG-1" {
		t.Errorf("result = %+v", res)
	}
	got, _ := f.store.Get(tk.ID)
	if got.RemoteID() != "" {
		t.Errorf("still linked: %v", got.Metadata)
	}
	if len(got.Metadata) != 1 || got.MetaString("custom") != "kept" {
		t.Errorf("metadata = %v, want only custom", got.Metadata)
	}
	if len(f.api.calls) != 0 {
		t.Errorf("unlink touched the network: %v", f.api.calls)
	}

	res, err = f.engine.Unlink(tk.ID)
	if err != nil || res.Action != ActionNotLinked {
		t.Errorf("second unlink = %+v, %v", res, err)
	}
}
