package linear

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const issueFields = `
fragment IssueFields on Issue {
  id
  identifier
  title
  description
  priority
  estimate
  url
  createdAt
  updatedAt
  state { id name type }
  team { id name }
  assignee { id name }
  creator { id name }
  project { id name }
}`

const viewerQuery = `query Viewer {
  viewer { id name displayName email }
}`

const teamsQuery = `query Teams {
  teams { nodes { id key name } }
}`

const teamQuery = `query Team($id: String!) {
  team(id: $id) { id key name }
}`

const workflowStatesQuery = `query WorkflowStates($teamId: ID!) {
  workflowStates(filter: { team: { id: { eq: $teamId } } }) {
    nodes { id name color type position team { id } }
  }
}`

const projectsQuery = `query Projects($teamId: String!) {
  team(id: $teamId) {
    projects { nodes { id name state } }
  }
}`

const issuesQuery = `query Issues($filter: IssueFilter, $first: Int) {
  issues(filter: $filter, first: $first) {
    nodes { ...IssueFields }
  }
}` + issueFields

const issueQuery = `query Issue($id: String!) {
  issue(id: $id) { ...IssueFields }
}` + issueFields

const issueCreateMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue { ...IssueFields }
  }
}` + issueFields

const issueUpdateMutation = `mutation IssueUpdate($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) {
    success
    issue { ...IssueFields }
  }
}` + issueFields

const issueDeleteMutation = `mutation IssueDelete($id: String!) {
  issueDelete(id: $id) { success }
}`

const webhookCreateMutation = `mutation WebhookCreate($input: WebhookCreateInput!) {
  webhookCreate(input: $input) {
    success
    webhook { id url enabled }
  }
}`

const webhookDeleteMutation = `mutation WebhookDelete($id: String!) {
  webhookDelete(id: $id) { success }
}`

// Document is a parsed GraphQL request document.
type Document struct {
	Query    string
	Name     string // name of the first operation, "" if anonymous
	Mutation bool
}

var errNoOperation = errors.New("document contains no operation")

// ParseDocument parses query and describes its first operation.
func ParseDocument(query string) (*Document, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, fmt.Errorf("parsing GraphQL document: %w", err)
	}
	if len(doc.Operations) == 0 {
		return nil, errNoOperation
	}
	op := doc.Operations[0]
	return &Document{
		Query:    query,
		Name:     op.Name,
		Mutation: op.Operation == ast.Mutation,
	}, nil
}

// documentCache memoizes parsed documents; the client sends the same few
// queries over and over.
var documentCache sync.Map // query string -> *Document

func parseCached(query string) (*Document, error) {
	if d, ok := documentCache.Load(query); ok {
		return d.(*Document), nil
	}
	d, err := ParseDocument(query)
	if err != nil {
		return nil, err
	}
	documentCache.Store(query, d)
	return d, nil
}
