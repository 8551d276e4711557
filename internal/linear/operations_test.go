package linear

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestCreateIssue_SuccessFalseIsError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{"data":{"issueCreate":{"success":false,"issue":null}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	_, err := client.CreateIssue(context.Background(), IssueCreateInput{TeamID: "t1", Title: "x"})
	if got := KindOf(err); got != KindProviderFailure {
		t.Errorf("KindOf(%v) = %q, want %q", err, got, KindProviderFailure)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1 (provider failures are not retried)", calls.Load())
	}
}

func TestCreateIssue_SendsInput(t *testing.T) {
	var got struct {
		Variables struct {
			Input map[string]any `json:"input"`
		} `json:"variables"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"data":{"issueCreate":{"success":true,"issue":{
			"id":"iss-1","identifier":"ENG-1","title":"Hello","priority":2,
			"state":{"id":"s1","name":"In Progress","type":"started"},
			"url":"https://linear.app/x/issue/ENG-1"}}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	p := PriorityHigh
	issue, err := client.CreateIssue(context.Background(), IssueCreateInput{
		TeamID:   "t1",
		Title:    "Hello",
		Priority: &p,
		StateID:  "s1",
	})
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	if issue.Identifier != "ENG-1" || issue.StateID() != "s1" {
		t.Errorf("issue = %+v", issue)
	}

	in := got.Variables.Input
	if in["teamId"] != "t1" || in["title"] != "Hello" || in["stateId"] != "s1" {
		t.Errorf("input = %v", in)
	}
	if in["priority"] != float64(2) {
		t.Errorf("priority = %v, want 2", in["priority"])
	}
	if _, ok := in["description"]; ok {
		t.Error("empty description should be omitted")
	}
}

func TestUpdateIssue_SuccessFalseIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"issueUpdate":{"success":false}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	title := "x"
	_, err := client.UpdateIssue(context.Background(), "iss-1", IssueUpdateInput{Title: &title})
	if got := KindOf(err); got != KindProviderFailure {
		t.Errorf("KindOf(%v) = %q, want %q", err, got, KindProviderFailure)
	}
}

func TestUpdateIssue_IDSentSeparately(t *testing.T) {
	var got struct {
		Variables map[string]any `json:"variables"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"data":{"issueUpdate":{"success":true,"issue":{"id":"iss-1"}}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	title := "x"
	if _, err := client.UpdateIssue(context.Background(), "iss-1", IssueUpdateInput{ID: "iss-1", Title: &title}); err != nil {
		t.Fatalf("UpdateIssue() error = %v", err)
	}
	if got.Variables["id"] != "iss-1" {
		t.Errorf("id variable = %v", got.Variables["id"])
	}
	input, _ := got.Variables["input"].(map[string]any)
	if _, ok := input["id"]; ok {
		t.Error("input should not carry id")
	}
}

func TestIssue_NullIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"issue":null}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	_, err := client.Issue(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
}

func TestDeleteIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"issueDelete":{"success":true}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	ok, err := client.DeleteIssue(context.Background(), "iss-1")
	if err != nil || !ok {
		t.Errorf("DeleteIssue() = %v, %v; want true, nil", ok, err)
	}
}

func TestWorkflowStatesAndProjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		doc, _ := ParseDocument(req.Query)
		switch doc.Name {
		case "WorkflowStates":
			writeJSON(w, http.StatusOK, `{"data":{"workflowStates":{"nodes":[
				{"id":"s1","name":"Backlog","type":"backlog","position":0,"team":{"id":"t1"}},
				{"id":"s2","name":"Done","type":"completed","position":3,"team":{"id":"t1"}}]}}}`)
		case "Projects":
			writeJSON(w, http.StatusOK, `{"data":{"team":{"projects":{"nodes":[{"id":"p1","name":"Q3"}]}}}}`)
		default:
			t.Errorf("unexpected operation %q", doc.Name)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")

	states, err := client.WorkflowStates(context.Background(), "t1")
	if err != nil {
		t.Fatalf("WorkflowStates() error = %v", err)
	}
	if len(states) != 2 || states[1].Type != StateCompleted || states[0].TeamID() != "t1" {
		t.Errorf("states = %+v", states)
	}

	projects, err := client.Projects(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Projects() error = %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Q3" {
		t.Errorf("projects = %+v", projects)
	}
}

func TestIssueFilter_ToGraphQL(t *testing.T) {
	f := IssueFilter{TeamID: "t1"}.toGraphQL()
	team, _ := f["team"].(map[string]any)
	id, _ := team["id"].(map[string]any)
	if id["eq"] != "t1" {
		t.Errorf("filter = %v", f)
	}
	if _, ok := f["updatedAt"]; ok {
		t.Error("updatedAt should be absent when unset")
	}
}

func TestWebhookCreateAndDelete(t *testing.T) {
	var inputs []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		inputs = append(inputs, req.Variables)
		if req.Variables["id"] != nil {
			writeJSON(w, http.StatusOK, `{"data":{"webhookDelete":{"success":true}}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"webhookCreate":{"success":true,
			"webhook":{"id":"wh-1","url":"https://example.com/hook","enabled":true}}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	hook, err := client.CreateWebhook(context.Background(), WebhookCreateInput{
		URL:           "https://example.com/hook",
		TeamID:        "t1",
		Secret:        "s3cret",
		ResourceTypes: []string{"Issue"},
	})
	if err != nil {
		t.Fatalf("CreateWebhook() error = %v", err)
	}
	if hook.ID != "wh-1" || !hook.Enabled {
		t.Errorf("webhook = %+v", hook)
	}
	in, _ := inputs[0]["input"].(map[string]any)
	if in["secret"] != "s3cret" || in["teamId"] != "t1" {
		t.Errorf("input = %v", in)
	}

	ok, err := client.DeleteWebhook(context.Background(), "wh-1")
	if err != nil || !ok {
		t.Errorf("DeleteWebhook() = %v, %v", ok, err)
	}
}

func TestWebhookCreate_SuccessFalseIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"webhookCreate":{"success":false,"webhook":null}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "lin_api_test")
	_, err := client.CreateWebhook(context.Background(), WebhookCreateInput{URL: "https://example.com/hook"})
	if got := KindOf(err); got != KindProviderFailure {
		t.Errorf("KindOf(%v) = %q, want %q", err, got, KindProviderFailure)
	}
}
