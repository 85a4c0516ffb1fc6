package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/PulfordJ/lastsignal/internal/duration"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

const (
	DefaultDataDirectory    = "~/.lastsignal"
	DefaultMessageFile      = "last_signal_message.md"
	DefaultSubject          = "LastSignal Notification"
	DefaultLogLevel         = "info"
	DefaultSMTPPort         = 587
	DefaultMessengerAPIURL  = "https://graph.facebook.com/v18.0"
	DefaultActivityAPIURL   = "https://api.prod.whoop.com/developer/v1"
	DefaultActivityAuthURL  = "https://api.prod.whoop.com/oauth/oauth2/auth"
	DefaultActivityTokenURL = "https://api.prod.whoop.com/oauth/oauth2/token"
	DefaultRedirectURL      = "http://localhost:8080/callback"
	DefaultSubjectPrefix    = "lastsignal"
)

var (
	defaultRetryDelay     = duration.MustParse("24h")
	defaultCheckInterval  = duration.MustParse("1h")
	defaultChannelTimeout = duration.MustParse("30s")
)

func applyDefaults(cfg *Config) error {
	if cfg.Checkin.OutputRetryDelay.IsZero() {
		cfg.Checkin.OutputRetryDelay = defaultRetryDelay
	}
	if cfg.Recipient.OutputRetryDelay.IsZero() {
		cfg.Recipient.OutputRetryDelay = defaultRetryDelay
	}

	if cfg.LastSignal.MessageFile == "" {
		cfg.LastSignal.MessageFile = DefaultMessageFile
	}
	if cfg.LastSignal.Subject == "" {
		cfg.LastSignal.Subject = DefaultSubject
	}

	if cfg.App.DataDirectory == "" {
		cfg.App.DataDirectory = DefaultDataDirectory
	}
	dataDir, err := ExpandHome(cfg.App.DataDirectory)
	if err != nil {
		return errors.ConfigError("failed to resolve data directory").WithCause(err).Build()
	}
	cfg.App.DataDirectory = dataDir
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = DefaultLogLevel
	}
	cfg.App.LogLevel = strings.ToLower(cfg.App.LogLevel)
	if cfg.App.CheckInterval.IsZero() {
		cfg.App.CheckInterval = defaultCheckInterval
	}
	if cfg.App.ChannelTimeout.IsZero() {
		cfg.App.ChannelTimeout = defaultChannelTimeout
	}

	for _, list := range [][]OutputDescriptor{cfg.Checkin.Outputs, cfg.Recipient.LastSignalOutputs} {
		for i := range list {
			applyOutputDefaults(&list[i])
		}
	}

	if a := cfg.Activity; a != nil {
		if a.Type == "" {
			a.Type = "whoop"
		}
		a.APIURL = withDefault(a.APIURL, DefaultActivityAPIURL)
		a.AuthURL = withDefault(a.AuthURL, DefaultActivityAuthURL)
		a.TokenURL = withDefault(a.TokenURL, DefaultActivityTokenURL)
		a.RedirectURL = withDefault(a.RedirectURL, DefaultRedirectURL)
	}
	if e := cfg.Events; e != nil {
		e.SubjectPrefix = withDefault(e.SubjectPrefix, DefaultSubjectPrefix)
	}
	return nil
}

func applyOutputDefaults(d *OutputDescriptor) {
	d.Type = OutputType(strings.ToLower(string(d.Type)))
	if e := d.Email; e != nil {
		if e.SMTPPort == 0 {
			e.SMTPPort = DefaultSMTPPort
		}
		if e.From == "" {
			e.From = e.Username
		}
		e.TLS = strings.ToLower(withDefault(e.TLS, "starttls"))
	}
	if m := d.Messenger; m != nil {
		m.APIURL = strings.TrimRight(withDefault(m.APIURL, DefaultMessengerAPIURL), "/")
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
