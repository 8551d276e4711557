// Package webhook receives Linear webhook deliveries and pulls the issues they
// name into the local task list.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/toba/linsync/internal/constants"
	"github.com/toba/linsync/internal/syncer"
)

// Headers Linear sets on each delivery.
const (
	SignatureHeader = "Linear-Signature"
	DeliveryHeader  = "Linear-Delivery"
	EventHeader     = "Linear-Event"
)

// MaxBodyBytes caps a delivery body.
const MaxBodyBytes = 1 << 20

const (
	defaultAddr        = ":8787"
	defaultPullTimeout = 2 * time.Minute
	shutdownTimeout    = 10 * time.Second
)

// Puller pulls one issue into the local store.
type Puller interface {
	PullIssue(ctx context.Context, remoteID string) (*syncer.Result, error)
}

// Receiver is an HTTP listener for Linear webhooks. It is also an
// http.Handler, so it can be mounted without Start.
type Receiver struct {
	puller      Puller
	addr        string
	path        string
	secret      string
	pullTimeout time.Duration
	log         logrus.FieldLogger

	flight singleflight.Group

	mu       sync.Mutex
	running  bool
	listener net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
}

// Option configures a Receiver.
type Option func(*Receiver)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(r *Receiver) { r.addr = addr }
}

// WithPath sets the URL path deliveries are accepted on.
func WithPath(path string) Option {
	return func(r *Receiver) { r.path = path }
}

// WithSecret enables signature verification.
func WithSecret(secret string) Option {
	return func(r *Receiver) { r.secret = secret }
}

// WithPullTimeout bounds each issue pull.
func WithPullTimeout(d time.Duration) Option {
	return func(r *Receiver) { r.pullTimeout = d }
}

// WithLogger sets the receiver logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Receiver) { r.log = log }
}

// New creates a Receiver that hands Issue events to puller.
func New(puller Puller, opts ...Option) *Receiver {
	r := &Receiver{
		puller:      puller,
		addr:        defaultAddr,
		path:        constants.DefaultWebhookPath,
		pullTimeout: defaultPullTimeout,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins listening. It returns once the listener is bound; the server
// runs until ctx is done or Stop is called. Starting a running receiver logs a
// warning and does nothing.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.log.Warn("webhook receiver already running")
		return nil
	}

	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", r.addr, err)
	}
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving webhooks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer r.release(g)
		defer cancel()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	r.running = true
	r.listener = ln
	r.group = g
	r.cancel = cancel
	r.log.WithFields(logrus.Fields{
		"addr":      ln.Addr().String(),
		"path":      r.path,
		"signature": r.secret != "",
	}).Info("webhook receiver listening")
	return nil
}

// Stop shuts the server down and waits for in-flight deliveries. Stopping a
// receiver that is not running does nothing.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	g, cancel := r.group, r.cancel
	r.running = false
	r.listener = nil
	r.group = nil
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	err := g.Wait()
	r.log.Info("webhook receiver stopped")
	return err
}

// release clears the running state once the server started with g has exited.
// It leaves the state alone when Stop or a later Start has already replaced g.
func (r *Receiver) release(g *errgroup.Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.group != g {
		return
	}
	r.running = false
	r.listener = nil
	r.group = nil
	r.cancel = nil
}

// Wait blocks until the running server exits, returning its error.
func (r *Receiver) Wait() error {
	r.mu.Lock()
	g := r.group
	r.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Running reports whether the receiver is listening.
func (r *Receiver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Addr returns the bound address, or "" when not running.
func (r *Receiver) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// ServeHTTP handles one delivery.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost || req.URL.Path != r.path {
		http.NotFound(w, req)
		return
	}

	delivery := req.Header.Get(DeliveryHeader)
	if delivery == "" {
		delivery = uuid.NewString()
	}
	log := r.log.WithField("delivery", delivery)

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, MaxBodyBytes))
	if err != nil {
		if _, ok := errors.AsType[*http.MaxBytesError](err); ok {
			log.Warn("webhook body too large")
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		log.WithError(err).Error("reading webhook body")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if r.secret != "" {
		if err := VerifySignature(r.secret, body, req.Header.Get(SignatureHeader)); err != nil {
			log.Warn("rejected webhook with bad signature")
			writeError(w, http.StatusUnauthorized, err)
			return
		}
	}

	ev, err := ParseEvent(body)
	if err != nil {
		log.WithError(err).Error("parsing webhook")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log = log.WithFields(logrus.Fields{"type": ev.Type, "action": ev.Action})

	if err := r.dispatch(req.Context(), log, ev); err != nil {
		log.WithError(err).Error("handling webhook")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (r *Receiver) dispatch(ctx context.Context, log logrus.FieldLogger, ev *Event) error {
	switch ev.Type {
	case TypeIssue:
		if ev.Action == ActionRemove {
			// Sync never deletes local tasks.
			log.Debug("issue removed remotely; ignoring")
			return nil
		}
		id, err := ev.DataID()
		if err != nil {
			return err
		}
		return r.pull(ctx, log.WithField("issue", id), id)
	case TypeComment, TypeIssueLabel:
		log.Debug("event accepted, not processed")
		return nil
	default:
		log.Info("unhandled webhook event type")
		return nil
	}
}

// pull runs one PullIssue per issue id at a time; concurrent deliveries for the
// same issue share its result.
func (r *Receiver) pull(ctx context.Context, log logrus.FieldLogger, id string) error {
	v, err, shared := r.flight.Do(id, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.pullTimeout)
		defer cancel()
		return r.puller.PullIssue(pctx, id)
	})
	if err != nil {
		return fmt.Errorf("pulling issue %s: %w", id, err)
	}
	res := v.(*syncer.Result)
	if len(res.Errors) > 0 {
		return fmt.Errorf("pulling issue %s: %w", id, res.Errors[0])
	}
	log.WithFields(logrus.Fields{
		"added":   res.Added,
		"updated": res.Updated,
		"skipped": res.Skipped,
		"shared":  shared,
	}).Info("issue pulled")
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	http.Error(w, err.Error(), status)
}
