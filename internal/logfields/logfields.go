package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyChannel     = "channel"
	KeyChannelKind = "channel_kind"
	KeyStage       = "stage"
	KeyPhase       = "phase"
	KeyAction      = "action"
	KeyOutcome     = "outcome"
	KeyDispatch    = "dispatch"
	KeyAttemptID   = "attempt_id"
	KeySource      = "source"
	KeyPath        = "path"
	KeyElapsed     = "elapsed"
	KeyCount       = "count"
	KeyTimestamp   = "timestamp"
	KeyDurationMS  = "duration_ms"
	KeySubject     = "subject"
	KeyURL         = "url"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Channel(name string) slog.Attr     { return slog.String(KeyChannel, name) }
func ChannelKind(k string) slog.Attr    { return slog.String(KeyChannelKind, k) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func Phase(p string) slog.Attr          { return slog.String(KeyPhase, p) }
func Action(a string) slog.Attr         { return slog.String(KeyAction, a) }
func Outcome(o string) slog.Attr        { return slog.String(KeyOutcome, o) }
func Dispatch(kind string) slog.Attr    { return slog.String(KeyDispatch, kind) }
func AttemptID(id string) slog.Attr     { return slog.String(KeyAttemptID, id) }
func Source(s string) slog.Attr         { return slog.String(KeySource, s) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Count(n uint64) slog.Attr          { return slog.Uint64(KeyCount, n) }
func Subject(s string) slog.Attr        { return slog.String(KeySubject, s) }
func URL(u string) slog.Attr            { return slog.String(KeyURL, u) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Elapsed(d time.Duration) slog.Attr { return slog.String(KeyElapsed, d.Round(time.Second).String()) }

// Timestamp formats t as RFC 3339 in UTC; a nil pointer renders as "never".
func Timestamp(key string, t *time.Time) slog.Attr {
	if t == nil {
		return slog.String(key, "never")
	}
	return slog.String(key, t.UTC().Format(time.RFC3339))
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
