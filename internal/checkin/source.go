// Package checkin turns activity from the outside world into check-ins.
//
// A manual check-in records the current time. Automatic sources are polled on
// every daemon tick for activity newer than the last check-in; the newest
// timestamp any of them reports wins, clamped so it never lies in the future.
package checkin

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// SourceManual labels check-ins made with the checkin command.
const SourceManual = "manual"

// Source reports activity that counts as a check-in.
type Source interface {
	Name() string
	// PollNewActivity returns the most recent activity strictly after since, or
	// nil if there is none.
	PollNewActivity(ctx context.Context, since time.Time) (*time.Time, error)
}

// TokenRefresher is implemented by sources with expiring credentials.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) error
}

// ProviderKind classifies source failures.
type ProviderKind string

const (
	ProviderAuthExpired ProviderKind = "auth_expired"
	ProviderRateLimited ProviderKind = "rate_limited"
	ProviderUnavailable ProviderKind = "unavailable"
)

const (
	ctxProviderKind = "provider_kind"
	ctxSource       = "source"
	ctxRetryAfter   = "retry_wait"
)

// NewProviderError builds a provider error of the given kind.
func NewProviderError(kind ProviderKind, source, detail string, cause error) error {
	b := errors.ProviderError(detail).
		WithCause(cause).
		WithContext(ctxProviderKind, string(kind)).
		WithContext(ctxSource, source)
	switch kind {
	case ProviderAuthExpired:
		b = b.UserAction()
	case ProviderRateLimited:
		b = b.RateLimit()
	}
	return b.Build()
}

// RateLimitedError is a ProviderRateLimited error that carries the server's
// requested wait.
func RateLimitedError(source string, retryAfter time.Duration, cause error) error {
	err := NewProviderError(ProviderRateLimited, source, "activity provider rate limit reached", cause)
	if retryAfter > 0 {
		ce, _ := errors.AsClassified(err)
		return ce.WithContext(ctxRetryAfter, retryAfter.String())
	}
	return err
}

// ProviderKindOf returns the provider kind of err. Unclassified errors are
// reported as unavailable.
func ProviderKindOf(err error) ProviderKind {
	if err == nil {
		return ""
	}
	if kind, ok := errors.ContextString(err, ctxProviderKind); ok {
		return ProviderKind(kind)
	}
	return ProviderUnavailable
}

// RetryAfter returns the wait a rate limited provider asked for, or 0.
func RetryAfter(err error) time.Duration {
	v, ok := errors.ContextString(err, ctxRetryAfter)
	if !ok {
		return 0
	}
	d, perr := time.ParseDuration(v)
	if perr != nil {
		return 0
	}
	return d
}

// parseRetryAfter reads a Retry-After header value given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
