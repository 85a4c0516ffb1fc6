// Package duration parses the human-readable interval strings used throughout
// the configuration ("7d", "36 hours", "90min").
package duration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFormat is returned (wrapped) for every string Parse rejects.
var ErrInvalidFormat = errors.New("invalid duration format")

var units = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// Duration is a whole number of seconds parsed from a "<digits><unit>" string.
type Duration struct {
	d time.Duration
}

// Of wraps a standard duration, truncated to whole seconds.
func Of(d time.Duration) Duration {
	return Duration{d: d.Truncate(time.Second)}
}

// Parse converts s into a Duration. Zero, unit-less, negative and overflowing
// values are rejected.
func Parse(s string) (Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Duration{}, fmt.Errorf("%w: empty string", ErrInvalidFormat)
	}

	end := 0
	for end < len(trimmed) && trimmed[end] >= '0' && trimmed[end] <= '9' {
		end++
	}
	if end == 0 {
		return Duration{}, fmt.Errorf("%w: %q does not start with a number", ErrInvalidFormat, s)
	}

	unitToken := strings.ToLower(strings.TrimSpace(trimmed[end:]))
	if unitToken == "" {
		return Duration{}, fmt.Errorf("%w: %q has no unit (use s, m, h or d)", ErrInvalidFormat, s)
	}
	unit, ok := units[unitToken]
	if !ok {
		return Duration{}, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidFormat, unitToken, s)
	}

	n, err := strconv.ParseUint(trimmed[:end], 10, 63)
	if err != nil {
		return Duration{}, fmt.Errorf("%w: number out of range in %q", ErrInvalidFormat, s)
	}
	if n == 0 {
		return Duration{}, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidFormat, s)
	}
	if n > uint64(math.MaxInt64/int64(unit)) {
		return Duration{}, fmt.Errorf("%w: %q overflows", ErrInvalidFormat, s)
	}
	return Duration{d: time.Duration(n) * unit}, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return d.d }

// Seconds returns the whole number of seconds.
func (d Duration) Seconds() int64 { return int64(d.d / time.Second) }

// IsZero reports whether the value was never set.
func (d Duration) IsZero() bool { return d.d == 0 }

// String renders the value in the largest unit that divides it exactly.
func (d Duration) String() string {
	secs := d.Seconds()
	switch {
	case secs == 0:
		return "0s"
	case secs%86400 == 0:
		return strconv.FormatInt(secs/86400, 10) + "d"
	case secs%3600 == 0:
		return strconv.FormatInt(secs/3600, 10) + "h"
	case secs%60 == 0:
		return strconv.FormatInt(secs/60, 10) + "m"
	default:
		return strconv.FormatInt(secs, 10) + "s"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. TOML strings decode through it.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalYAML rejects plain numbers, which yaml.v3 would otherwise hand to
// UnmarshalText as their literal text.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.Tag != "!!str" {
		return fmt.Errorf("%w: line %d: expected a string such as \"7d\", got %q", ErrInvalidFormat, node.Line, node.Value)
	}
	return d.UnmarshalText([]byte(node.Value))
}
