package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/toba/linsync/internal/constants"
)

// Default retry and pacing configuration.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second

	defaultInterval    = 100 * time.Millisecond
	defaultMaxInterval = 5 * time.Second

	defaultTimeout = 30 * time.Second

	// personalKeyPrefix marks Linear personal API keys, which are sent without "Bearer".
	personalKeyPrefix = "lin_api_"
)

// RetryConfig holds retry settings.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

// PacingConfig holds the minimum spacing between consecutive calls.
// Interval is the starting value; rate limiting raises it up to MaxInterval.
type PacingConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

// DefaultPacingConfig returns standard pacing settings.
func DefaultPacingConfig() PacingConfig {
	return PacingConfig{
		Interval:    defaultInterval,
		MaxInterval: defaultMaxInterval,
	}
}

// Client provides Linear API access via GraphQL.
//
// Calls on one Client are sequential: pacing state (time of the last call and
// the current interval) lives on the instance. Use separate clients for
// independent concurrent work.
type Client struct {
	token      string
	endpoint   string
	httpClient *http.Client
	retry      RetryConfig
	log        logrus.FieldLogger

	// jitter returns a value in [0, 1); overridable for tests.
	jitter func() float64

	callMu sync.Mutex // serializes Execute

	mu          sync.Mutex // guards pacing state
	interval    time.Duration
	maxInterval time.Duration
	lastCall    time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetryConfig overrides the retry settings.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithPacing overrides the pacing settings.
func WithPacing(cfg PacingConfig) Option {
	return func(c *Client) {
		c.interval = cfg.Interval
		c.maxInterval = cfg.MaxInterval
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a new Linear client for the given API key or access token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:       token,
		endpoint:    constants.DefaultEndpoint,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		retry:       DefaultRetryConfig(),
		log:         logrus.StandardLogger(),
		jitter:      rand.Float64,
		interval:    defaultInterval,
		maxInterval: defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c
}

// AuthorizationHeader returns the Authorization header value for token.
// Personal API keys are sent as-is; OAuth access tokens use the Bearer scheme.
func AuthorizationHeader(token string) string {
	if strings.HasPrefix(token, personalKeyPrefix) || strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

// Interval returns the current minimum spacing between calls.
func (c *Client) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// BackoffDelay returns the delay before retry n (n >= 1, the first retry is 1):
// base × 2^(n−1), scaled by a jitter factor in [0.8, 1.2] derived from r in
// [0, 1), doubled for rate limits, and capped at cfg.MaxDelay when set.
func BackoffDelay(cfg RetryConfig, n int, rateLimited bool, r float64) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := float64(cfg.BaseDelay) * float64(int64(1)<<(n-1))
	delay *= 0.8 + 0.4*r
	if rateLimited {
		delay *= 2
	}
	d := time.Duration(delay)
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

// graphQLRequest is the POST body sent to the endpoint.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLResponse is the response envelope.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors gqlerror.List   `json:"errors"`
}

// Execute runs a GraphQL operation and decodes its data into out (which may be nil).
// Failed calls are retried with exponential backoff; the returned error is always
// an *Error once the request has been attempted.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any, out any) error {
	doc, err := parseCached(query)
	if err != nil {
		return &Error{Message: err.Error(), Kind: KindValidation, Err: err}
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	var lastErr *Error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := BackoffDelay(c.retry, attempt-1, lastErr.Kind == KindRateLimit, c.jitter())
			c.log.WithFields(logrus.Fields{
				"operation": doc.Name,
				"attempt":   attempt,
				"kind":      lastErr.Kind,
				"delay":     delay,
			}).Debug("retrying Linear request")
			if err := sleep(ctx, delay); err != nil {
				lastErr.Err = errors.Join(lastErr.Err, err)
				return lastErr
			}
		}

		if err := c.pace(ctx); err != nil {
			return &Error{Message: "waiting for pacing interval", Kind: KindNetwork, Operation: doc.Name, Attempts: attempt, Err: err}
		}

		data, apiErr := c.do(ctx, query, variables)
		if apiErr == nil {
			if out != nil && len(data) > 0 && string(data) != "null" {
				if err := json.Unmarshal(data, out); err != nil {
					return &Error{Message: "decoding response data", Kind: KindUnknown, Operation: doc.Name, Attempts: attempt, Err: err}
				}
			}
			return nil
		}

		apiErr.Operation = doc.Name
		apiErr.Attempts = attempt
		lastErr = apiErr

		if ctx.Err() != nil {
			return lastErr
		}
		if apiErr.Kind == KindRateLimit {
			c.slowDown()
		}
	}

	c.log.WithError(lastErr).WithField("operation", doc.Name).Warn("Linear request failed")
	return lastErr
}

// do performs a single HTTP round trip.
func (c *Client) do(ctx context.Context, query string, variables map[string]any) (json.RawMessage, *Error) {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, &Error{Message: "marshaling request", Kind: KindValidation, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Message: "creating request", Kind: KindUnknown, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", AuthorizationHeader(c.token))

	defer c.markCall()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("executing request: %v", err), Kind: classify(nil, 0, err), Err: err}
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, &Error{Message: "reading response", Kind: classify(nil, resp.StatusCode, err), StatusCode: resp.StatusCode, Err: err}
	}

	var env graphQLResponse
	decodeErr := json.Unmarshal(body, &env)

	if len(env.Errors) > 0 {
		return nil, &Error{
			Message:    graphQLMessage(env.Errors),
			Kind:       classify(env.Errors, resp.StatusCode, nil),
			StatusCode: resp.StatusCode,
			Details:    env.Errors,
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		cause := fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
		return nil, &Error{
			Message:    http.StatusText(resp.StatusCode),
			Kind:       classify(nil, resp.StatusCode, cause),
			StatusCode: resp.StatusCode,
			Err:        cause,
		}
	}

	if decodeErr != nil {
		return nil, &Error{Message: "decoding response", Kind: KindUnknown, StatusCode: resp.StatusCode, Err: decodeErr}
	}
	return env.Data, nil
}

// pace sleeps until the current interval has elapsed since the previous call ended.
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	last, interval := c.lastCall, c.interval
	c.mu.Unlock()

	if last.IsZero() {
		return nil
	}
	if wait := interval - time.Since(last); wait > 0 {
		return sleep(ctx, wait)
	}
	return nil
}

func (c *Client) markCall() {
	c.mu.Lock()
	c.lastCall = time.Now()
	c.mu.Unlock()
}

// slowDown doubles the pacing interval for the rest of the client's life.
func (c *Client) slowDown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.interval * 2
	if next <= 0 {
		next = defaultInterval
	}
	if c.maxInterval > 0 {
		next = min(next, c.maxInterval)
	}
	if next != c.interval {
		c.log.WithFields(logrus.Fields{"from": c.interval, "to": next}).Info("rate limited by Linear, slowing down")
	}
	c.interval = next
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// errMissingEntity is the cause attached when Linear returns a null entity.
var errMissingEntity = errors.New("entity not returned")
