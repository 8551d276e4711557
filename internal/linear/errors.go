package linear

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Kind classifies a failed API call.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuthentication  Kind = "authentication"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not-found"
	KindRateLimit       Kind = "rate-limit"
	KindNetwork         Kind = "network"
	KindServer          Kind = "server"
	KindProviderFailure Kind = "provider-failure" // HTTP 200 with success: false
	KindUnknown         Kind = "unknown"
)

// Error is the single error shape returned by the client for every failed call.
type Error struct {
	Message    string
	Kind       Kind
	StatusCode int           // 0 when no HTTP response was received
	Details    gqlerror.List // GraphQL errors reported by Linear, if any
	Operation  string        // GraphQL operation name
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	fmt.Fprintf(&b, " (%s", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ", HTTP %d", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, ", %d attempts", e.Attempts)
	}
	b.WriteString(")")
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := errors.AsType[*Error](err); ok {
		return e.Kind
	}
	return KindUnknown
}

// IsRateLimit reports whether err is a rate-limit error.
func IsRateLimit(err error) bool {
	return KindOf(err) == KindRateLimit
}

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Linear error extension codes.
var graphQLCodeKinds = map[string]Kind{
	"RATELIMITED":               KindRateLimit,
	"AUTHENTICATION_ERROR":      KindAuthentication,
	"FORBIDDEN":                 KindForbidden,
	"INPUT_ERROR":               KindValidation,
	"INVALID_INPUT":             KindValidation,
	"GRAPHQL_VALIDATION_FAILED": KindValidation,
	"BAD_USER_INPUT":            KindValidation,
	"ENTITY_NOT_FOUND":          KindNotFound,
	"INTERNAL_SERVER_ERROR":     KindServer,
}

// Linear error extension types (lowercased).
var graphQLTypeKinds = map[string]Kind{
	"ratelimited":          KindRateLimit,
	"authentication error": KindAuthentication,
	"forbidden":            KindForbidden,
	"invalid input":        KindValidation,
	"graphql error":        KindValidation,
	"entity not found":     KindNotFound,
	"internal error":       KindServer,
}

// Message substrings that identify rate limiting when no structured signal is present.
var rateLimitPatterns = []string{
	"rate limit",
	"ratelimit",
	"ratelimited",
	"too many requests",
}

// Transport error substrings used for network classification.
var networkPatterns = []string{
	"connection reset",
	"connection refused",
	"no such host",
	"EOF",
	"timeout",
	"deadline exceeded",
	"broken pipe",
	"stream error",
}

// classify derives a Kind from, in order, GraphQL errors, HTTP status, and the
// transport error message. The first source that yields a Kind wins.
func classify(errs gqlerror.List, status int, cause error) Kind {
	for _, e := range errs {
		if k := kindFromGraphQL(e); k != KindUnknown {
			return k
		}
	}
	if k := kindFromStatus(status); k != KindUnknown {
		return k
	}
	if cause != nil {
		return kindFromMessage(cause.Error())
	}
	return KindUnknown
}

func kindFromGraphQL(e *gqlerror.Error) Kind {
	if e == nil {
		return KindUnknown
	}
	if code, ok := e.Extensions["code"].(string); ok {
		if k, ok := graphQLCodeKinds[strings.ToUpper(code)]; ok {
			return k
		}
	}
	if typ, ok := e.Extensions["type"].(string); ok {
		if k, ok := graphQLTypeKinds[strings.ToLower(typ)]; ok {
			return k
		}
	}
	if matchesAny(strings.ToLower(e.Message), rateLimitPatterns) {
		return KindRateLimit
	}
	return KindUnknown
}

func kindFromStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500 && status < 600:
		return KindServer
	}
	return KindUnknown
}

func kindFromMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	if matchesAny(lower, rateLimitPatterns) {
		return KindRateLimit
	}
	if matchesAny(msg, networkPatterns) || matchesAny(lower, networkPatterns) {
		return KindNetwork
	}
	return KindUnknown
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// graphQLMessage summarizes a GraphQL error list into one message, preferring
// Linear's user-presentable text when present.
func graphQLMessage(errs gqlerror.List) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if upm, ok := e.Extensions["userPresentableMessage"].(string); ok && upm != "" {
			msg = upm
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
