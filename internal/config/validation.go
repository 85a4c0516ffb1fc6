package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

var validLogLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks a defaulted configuration. All problems are reported together
// in a single ConfigError.
func Validate(cfg *Config) error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if cfg.Checkin.DurationBetweenCheckins.IsZero() {
		add("checkin.duration_between_checkins is required")
	}
	if cfg.Recipient.MaxTimeSinceLastCheckin.IsZero() {
		add("recipient.max_time_since_last_checkin is required")
	}
	if !cfg.Checkin.DurationBetweenCheckins.IsZero() && !cfg.Recipient.MaxTimeSinceLastCheckin.IsZero() &&
		cfg.Checkin.DurationBetweenCheckins.Std() >= cfg.Recipient.MaxTimeSinceLastCheckin.Std() {
		add("checkin.duration_between_checkins (%s) must be shorter than recipient.max_time_since_last_checkin (%s)",
			cfg.Checkin.DurationBetweenCheckins, cfg.Recipient.MaxTimeSinceLastCheckin)
	}

	if len(cfg.Checkin.Outputs) == 0 {
		add("checkin.outputs must contain at least one output")
	}
	if len(cfg.Recipient.LastSignalOutputs) == 0 {
		add("recipient.last_signal_outputs must contain at least one output")
	}
	for i, d := range cfg.Checkin.Outputs {
		problems = append(problems, validateOutput(fmt.Sprintf("checkin.outputs[%d]", i), d)...)
	}
	for i, d := range cfg.Recipient.LastSignalOutputs {
		problems = append(problems, validateOutput(fmt.Sprintf("recipient.last_signal_outputs[%d]", i), d)...)
	}

	if !validLogLevels[cfg.App.LogLevel] {
		add("app.log_level %q must be one of trace, debug, info, warn, error", cfg.App.LogLevel)
	}

	if a := cfg.Activity; a != nil {
		if a.Type != "whoop" {
			add("activity.type %q is not supported (supported: whoop)", a.Type)
		}
		if a.ClientID == "" || a.ClientSecret == "" {
			add("activity.client_id and activity.client_secret are required")
		}
	}
	if e := cfg.Events; e != nil && e.NATSURL == "" {
		add("events.nats_url is required when events are configured")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.ConfigError("invalid configuration").
		WithCause(stderrors.Join(problems...)).
		WithContext("problems", len(problems)).
		Build()
}

func validateOutput(where string, d OutputDescriptor) []error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(where+": "+format, args...))
	}

	switch d.Type {
	case OutputEmail:
		if d.Messenger != nil {
			add("type email must not carry a messenger block")
		}
		e := d.Email
		if e == nil {
			add("type email requires an email block")
			return problems
		}
		if !strings.Contains(e.To, "@") {
			add("email.to %q is not an email address", e.To)
		}
		if e.SMTPHost == "" {
			add("email.smtp_host is required")
		}
		if e.SMTPPort < 1 || e.SMTPPort > 65535 {
			add("email.smtp_port %d is out of range", e.SMTPPort)
		}
		if e.Username == "" || e.Password == "" {
			add("email.username and email.password are required")
		}
		switch e.TLS {
		case "starttls", "tls", "none":
		default:
			add("email.tls %q must be one of starttls, tls, none", e.TLS)
		}
	case OutputMessenger:
		if d.Email != nil {
			add("type messenger must not carry an email block")
		}
		m := d.Messenger
		if m == nil {
			add("type messenger requires a messenger block")
			return problems
		}
		if m.RecipientID == "" {
			add("messenger.recipient_id is required")
		}
		if m.AccessToken == "" {
			add("messenger.access_token is required")
		}
	case "":
		add("type is required")
	default:
		add("unknown output type %q (supported: email, messenger)", d.Type)
	}
	return problems
}
