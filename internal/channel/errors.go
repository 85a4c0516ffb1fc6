package channel

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// Kind classifies why a channel operation failed.
type Kind string

const (
	KindUnreachable          Kind = "unreachable"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindRateLimited          Kind = "rate_limited"
	KindInvalidRecipient     Kind = "invalid_recipient"
	KindUnknown              Kind = "unknown"
)

const (
	ctxKind    = "kind"
	ctxChannel = "channel"
)

// NewError builds a channel error of the given kind.
func NewError(kind Kind, channel, detail string, cause error) error {
	b := errors.ChannelError(detail).
		WithCause(cause).
		WithContext(ctxKind, string(kind)).
		WithContext(ctxChannel, channel)
	switch kind {
	case KindAuthenticationFailed:
		b = b.UserAction()
	case KindInvalidRecipient:
		b = b.WithRetry(errors.RetryNever)
	case KindRateLimited:
		b = b.RateLimit()
	}
	return b.Build()
}

// KindOf reports the Kind of err. Timeouts are Unreachable; anything
// unclassified is Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if kind, ok := errors.ContextString(err, ctxKind); ok {
		return Kind(kind)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return KindUnreachable
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindUnreachable
	}
	return KindUnknown
}

// Classify wraps an arbitrary error from a channel as a channel error, keeping
// an existing classification.
func Classify(channel string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.ContextString(err, ctxKind); ok {
		return err
	}
	kind := KindOf(err)
	detail := "channel operation failed"
	if kind == KindUnreachable {
		detail = "channel unreachable"
	}
	return NewError(kind, channel, detail, err)
}
