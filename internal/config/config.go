// Package config loads and validates the lastsignal configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/PulfordJ/lastsignal/internal/duration"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// Config is the root configuration document.
type Config struct {
	Checkin    CheckinConfig    `yaml:"checkin" toml:"checkin"`
	Recipient  RecipientConfig  `yaml:"recipient" toml:"recipient"`
	LastSignal LastSignalConfig `yaml:"last_signal" toml:"last_signal"`
	App        AppConfig        `yaml:"app" toml:"app"`
	Activity   *ActivityConfig  `yaml:"activity,omitempty" toml:"activity,omitempty"`
	Events     *EventsConfig    `yaml:"events,omitempty" toml:"events,omitempty"`

	path string
}

// CheckinConfig controls reminders sent to the monitored person.
type CheckinConfig struct {
	DurationBetweenCheckins duration.Duration  `yaml:"duration_between_checkins" toml:"duration_between_checkins"`
	OutputRetryDelay        duration.Duration  `yaml:"output_retry_delay" toml:"output_retry_delay"`
	Outputs                 []OutputDescriptor `yaml:"outputs" toml:"outputs"`
}

// RecipientConfig controls the emergency message sent to the recipients.
type RecipientConfig struct {
	MaxTimeSinceLastCheckin duration.Duration  `yaml:"max_time_since_last_checkin" toml:"max_time_since_last_checkin"`
	OutputRetryDelay        duration.Duration  `yaml:"output_retry_delay" toml:"output_retry_delay"`
	LastSignalOutputs       []OutputDescriptor `yaml:"last_signal_outputs" toml:"last_signal_outputs"`
}

// LastSignalConfig describes the emergency message.
type LastSignalConfig struct {
	// MessageFile is resolved against the data directory when relative.
	MessageFile string `yaml:"message_file" toml:"message_file"`
	Subject     string `yaml:"subject" toml:"subject"`
	PersonName  string `yaml:"person_name" toml:"person_name"`
	ContactInfo string `yaml:"contact_info" toml:"contact_info"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	DataDirectory  string            `yaml:"data_directory" toml:"data_directory"`
	LogLevel       string            `yaml:"log_level" toml:"log_level"`
	CheckInterval  duration.Duration `yaml:"check_interval" toml:"check_interval"`
	ChannelTimeout duration.Duration `yaml:"channel_timeout" toml:"channel_timeout"`
	MetricsListen  string            `yaml:"metrics_listen" toml:"metrics_listen"`
}

// ActivityConfig enables automatic check-ins from an activity tracker.
type ActivityConfig struct {
	Type         string `yaml:"type" toml:"type"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url" toml:"redirect_url"`
	APIURL       string `yaml:"api_url" toml:"api_url"`
	AuthURL      string `yaml:"auth_url" toml:"auth_url"`
	TokenURL     string `yaml:"token_url" toml:"token_url"`
	// AuthFailureCountsAsCheckin records a check-in when the provider rejects
	// our credentials even after a token refresh. Off unless set explicitly.
	AuthFailureCountsAsCheckin bool `yaml:"auth_failure_counts_as_checkin" toml:"auth_failure_counts_as_checkin"`
}

// EventsConfig connects the daemon to NATS.
type EventsConfig struct {
	NATSURL              string `yaml:"nats_url" toml:"nats_url"`
	SubjectPrefix        string `yaml:"subject_prefix" toml:"subject_prefix"`
	AcceptRemoteCheckins bool   `yaml:"accept_remote_checkins" toml:"accept_remote_checkins"`
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// MessageFilePath returns the absolute path of the emergency message template.
func (c *Config) MessageFilePath() string {
	if filepath.IsAbs(c.LastSignal.MessageFile) {
		return c.LastSignal.MessageFile
	}
	return filepath.Join(c.App.DataDirectory, c.LastSignal.MessageFile)
}

// Load reads, expands, decodes, defaults and validates the configuration at configPath.
// Every failure is a fatal ConfigError.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, errors.ConfigError("invalid configuration path").WithCause(err).Build()
	}

	loadEnvFiles(filepath.Dir(absPath))

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError(fmt.Sprintf("configuration file not found: %s (run 'lastsignal init')", absPath)).Build()
		}
		return nil, errors.ConfigError("failed to read config file").WithCause(err).WithContext("path", absPath).Build()
	}

	expanded := os.ExpandEnv(string(data))

	cfg, err := decode(absPath, []byte(expanded))
	if err != nil {
		return nil, errors.ConfigError("failed to parse config file").WithCause(err).WithContext("path", absPath).Build()
	}
	cfg.path = absPath

	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
