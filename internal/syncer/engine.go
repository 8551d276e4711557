// Package syncer synchronizes the local task list with Linear issues.
//
// A run moves through idle, fetching-prereqs, pulling and pushing to done or
// failed. Pull is remote-wins: a matched task is overwritten with the issue's
// fields. Push is local-wins: a linked issue is overwritten with the task's
// fields. Neither side compares timestamps.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toba/linsync/internal/credential"
	"github.com/toba/linsync/internal/linear"
	"github.com/toba/linsync/internal/mapping"
	"github.com/toba/linsync/internal/task"
)

// DefaultLimit caps items per direction when Options.Limit is unset.
const DefaultLimit = 100

// ErrNotConfigured is returned before any network call when the token or
// default team is missing or malformed.
var ErrNotConfigured = errors.New("linsync is not configured")

// Direction selects which way a run syncs.
type Direction string

const (
	DirectionPull Direction = "pull"
	DirectionPush Direction = "push"
	DirectionBoth Direction = "both"
)

// ParseDirection validates s.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case DirectionPull, DirectionPush, DirectionBoth:
		return d, nil
	}
	return "", fmt.Errorf("invalid direction %q (want pull, push or both)", s)
}

func (d Direction) pulls() bool { return d == DirectionPull || d == DirectionBoth }
func (d Direction) pushes() bool { return d == DirectionPush || d == DirectionBoth }

// State is a step of the run state machine.
type State string

const (
	StateIdle            State = "idle"
	StateFetchingPrereqs State = "fetching-prereqs"
	StatePulling         State = "pulling"
	StatePushing         State = "pushing"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Credentials supplies the token and default team.
type Credentials interface {
	Token() (string, error)
	TeamID() (string, error)
}

// API is the subset of the Linear client the engine uses.
type API interface {
	WorkflowStates(ctx context.Context, teamID string) ([]linear.WorkflowState, error)
	Issues(ctx context.Context, filter linear.IssueFilter, first int) ([]linear.Issue, error)
	Issue(ctx context.Context, id string) (*linear.Issue, error)
	CreateIssue(ctx context.Context, input linear.IssueCreateInput) (*linear.Issue, error)
	UpdateIssue(ctx context.Context, id string, input linear.IssueUpdateInput) (*linear.Issue, error)
}

// ClientFactory builds an API client for a token. The engine calls it once
// per run so each run paces independently.
type ClientFactory func(token string) API

// TaskStore is the local task list.
type TaskStore interface {
	List() []*task.Task
	Get(id string) (*task.Task, error)
	Create(p task.Params) (*task.Task, error)
	Update(id string, p task.Params) (*task.Task, error)
	SetMetadata(id string, updates map[string]any) (*task.Task, error)
}

// Options configures a run.
type Options struct {
	Direction Direction
	Limit     int // per direction; DefaultLimit when <= 0
}

// Engine runs syncs. Runs on one Engine are serialized.
type Engine struct {
	creds     Credentials
	store     TaskStore
	newClient ClientFactory
	log       logrus.FieldLogger
	now       func() time.Time

	runMu sync.Mutex

	stateMu sync.Mutex
	state   State
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(creds Credentials, store TaskStore, newClient ClientFactory, opts ...Option) *Engine {
	e := &Engine{
		creds:     creds,
		store:     store,
		newClient: newClient,
		log:       logrus.StandardLogger(),
		now:       time.Now,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the state of the current or most recent run.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(r *Result, s State) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
	if r != nil {
		r.State = s
	}
	e.log.WithField("state", s).Debug("sync state")
}

// session is what a run needs once prerequisites are met.
type session struct {
	client API
	teamID string
}

// prerequisites checks credentials without touching the network.
func (e *Engine) prerequisites() (*session, error) {
	token, err := e.creds.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	if err := credential.ValidateToken(token); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	teamID, err := e.creds.TeamID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	if teamID == "" {
		return nil, fmt.Errorf("%w: default team is empty", ErrNotConfigured)
	}
	return &session{client: e.newClient(token), teamID: teamID}, nil
}

// begin starts a run: it resets state and checks prerequisites. On failure the
// returned result carries the single configuration error.
func (e *Engine) begin(dir Direction) (*session, *Result, error) {
	r := newResult(dir, e.now())
	e.setState(r, StateIdle)
	e.setState(r, StateFetchingPrereqs)

	s, err := e.prerequisites()
	if err != nil {
		r.fail(ItemError{Code: CodeConfiguration, Message: err.Error()}, "")
		e.finish(r, StateFailed)
		return nil, r, err
	}
	return s, r, nil
}

func (e *Engine) finish(r *Result, s State) {
	e.setState(r, s)
	r.FinishedAt = e.now()
}

// Run syncs in opts.Direction. It returns an error, together with a result
// holding that single error, only when prerequisites are missing or workflow
// states cannot be fetched. Item failures are recorded in the result.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	dir := opts.Direction
	if dir == "" {
		dir = DirectionBoth
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	s, r, err := e.begin(dir)
	if err != nil {
		return r, err
	}
	log := e.log.WithFields(logrus.Fields{"team": s.teamID, "direction": dir})

	states, err := s.client.WorkflowStates(ctx, s.teamID)
	if err != nil {
		r.fail(ItemError{Code: CodeWorkflowStatesFailed, Message: err.Error()}, "")
		e.finish(r, StateFailed)
		log.WithError(err).Error("fetching workflow states")
		return r, fmt.Errorf("fetching workflow states: %w", err)
	}
	log.WithField("states", len(states)).Debug("workflow states fetched")

	pulled := make(map[string]bool)
	if dir.pulls() {
		e.setState(r, StatePulling)
		e.pull(ctx, s, limit, r, pulled)
	}
	if dir.pushes() {
		e.setState(r, StatePushing)
		e.push(ctx, s, states, limit, r, pulled)
	}

	e.finish(r, StateDone)
	log.WithFields(logrus.Fields{
		"added":   r.Added,
		"updated": r.Updated,
		"skipped": r.Skipped,
		"errors":  len(r.Errors),
	}).Info("sync finished")
	return r, nil
}

// PullIssue pulls a single issue by id or identifier. Issues belonging to
// another team are skipped. Workflow states are not needed and not fetched.
func (e *Engine) PullIssue(ctx context.Context, remoteID string) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	s, r, err := e.begin(DirectionPull)
	if err != nil {
		return r, err
	}
	e.setState(r, StatePulling)

	issue, err := s.client.Issue(ctx, remoteID)
	if err != nil {
		r.fail(ItemError{Code: CodePullItemFailed, Message: err.Error(), RemoteID: remoteID}, remoteID)
		e.finish(r, StateDone)
		return r, nil
	}
	if issue.Team != nil && issue.Team.ID != s.teamID {
		r.Skipped++
		e.log.WithFields(logrus.Fields{"issue": issue.Identifier, "team": issue.Team.ID}).Debug("issue belongs to another team")
		e.finish(r, StateDone)
		return r, nil
	}

	e.applyIssue(issue, e.remoteIndex(), r, nil)
	e.finish(r, StateDone)
	return r, nil
}

// remoteIndex maps remote issue ids to their linked tasks.
func (e *Engine) remoteIndex() map[string]*task.Task {
	idx := make(map[string]*task.Task)
	for _, t := range e.store.List() {
		if id := t.RemoteID(); id != "" {
			idx[id] = t
		}
	}
	return idx
}

func (e *Engine) pull(ctx context.Context, s *session, limit int, r *Result, pulled map[string]bool) {
	issues, err := s.client.Issues(ctx, linear.IssueFilter{TeamID: s.teamID}, limit)
	if err != nil {
		r.fail(ItemError{Code: CodePullFailed, Message: err.Error()}, "")
		e.log.WithError(err).Warn("listing issues")
		return
	}
	e.log.WithField("issues", len(issues)).Info("pulling issues")

	idx := e.remoteIndex()
	for i := range issues {
		e.applyIssue(&issues[i], idx, r, pulled)
	}
}

// applyIssue creates or overwrites the task linked to issue.
func (e *Engine) applyIssue(issue *linear.Issue, idx map[string]*task.Task, r *Result, pulled map[string]bool) {
	log := e.log.WithField("issue", issue.Identifier)
	existing := idx[issue.ID]
	params := mapping.IssueToTaskParams(issue, existing, e.now())

	if existing != nil {
		if _, err := e.store.Update(existing.ID, params); err != nil {
			r.fail(ItemError{Code: CodePullItemFailed, Message: err.Error(), ItemID: existing.ID, RemoteID: issue.ID}, existing.ID)
			log.WithError(err).Warn("updating task from issue")
			return
		}
		r.updated(existing.ID, issue.ID)
		if pulled != nil {
			pulled[existing.ID] = true
		}
		log.WithField("task", existing.ID).Debug("task updated")
		return
	}

	created, err := e.store.Create(params)
	if err != nil {
		r.fail(ItemError{Code: CodePullItemFailed, Message: err.Error(), RemoteID: issue.ID}, issue.ID)
		log.WithError(err).Warn("creating task from issue")
		return
	}
	idx[issue.ID] = created
	r.added(created.ID, issue.ID)
	if pulled != nil {
		pulled[created.ID] = true
	}
	log.WithField("task", created.ID).Debug("task created")
}

func (e *Engine) push(ctx context.Context, s *session, states []linear.WorkflowState, limit int, r *Result, pulled map[string]bool) {
	var creates, updates []*task.Task
	for _, t := range e.store.List() {
		if pulled[t.ID] {
			r.Skipped++
			continue
		}
		if t.RemoteID() == "" {
			creates = append(creates, t)
		} else {
			updates = append(updates, t)
		}
	}
	creates = creates[:min(limit, len(creates))]
	updates = updates[:min(limit, len(updates))]
	e.log.WithFields(logrus.Fields{"creates": len(creates), "updates": len(updates)}).Info("pushing tasks")

	for _, t := range creates {
		e.pushCreate(ctx, s, states, t, r)
	}
	for _, t := range updates {
		e.pushUpdate(ctx, s, states, t, r)
	}
}

func (e *Engine) pushCreate(ctx context.Context, s *session, states []linear.WorkflowState, t *task.Task, r *Result) {
	log := e.log.WithField("task", t.ID)

	issue, err := s.client.CreateIssue(ctx, mapping.TaskToIssueCreateInput(t, s.teamID, states))
	if err != nil {
		r.fail(ItemError{Code: CodePushCreateFailed, Message: err.Error(), ItemID: t.ID}, t.ID)
		log.WithError(err).Warn("creating issue")
		return
	}

	// The issue exists remotely from here on. Losing the link would make the
	// next run create a duplicate, so a failure is surfaced for manual repair.
	if _, err := e.store.SetMetadata(t.ID, mapping.LinkMetadata(issue, e.now())); err != nil {
		msg := fmt.Sprintf("issue %s was created but could not be linked; run 'linsync link %s %s': %v",
			issue.Identifier, t.ID, issue.ID, err)
		r.fail(ItemError{Code: CodeLinkFailed, Message: msg, ItemID: t.ID, RemoteID: issue.ID}, t.ID)
		log.WithError(err).WithField("issue", issue.ID).Error("linking created issue")
		return
	}
	r.added(t.ID, issue.ID)
	log.WithField("issue", issue.Identifier).Debug("issue created")
}

func (e *Engine) pushUpdate(ctx context.Context, s *session, states []linear.WorkflowState, t *task.Task, r *Result) {
	input := mapping.TaskToIssueUpdateInput(t, states)
	log := e.log.WithFields(logrus.Fields{"task": t.ID, "issue": input.ID})

	if _, err := s.client.UpdateIssue(ctx, input.ID, input); err != nil {
		// The link is kept: the update may or may not have been applied.
		r.fail(ItemError{Code: CodePushUpdateFailed, Message: err.Error(), ItemID: t.ID, RemoteID: input.ID}, t.ID)
		log.WithError(err).Warn("updating issue; remote state unknown")
		return
	}

	stamp := map[string]any{task.MetaLastSyncedAt: e.now().UTC().Format(time.RFC3339)}
	if _, err := e.store.SetMetadata(t.ID, stamp); err != nil {
		r.fail(ItemError{Code: CodeStampFailed, Message: err.Error(), ItemID: t.ID, RemoteID: input.ID}, t.ID)
		log.WithError(err).Warn("recording sync time")
		return
	}
	r.updated(t.ID, input.ID)
	log.Debug("issue updated")
}
