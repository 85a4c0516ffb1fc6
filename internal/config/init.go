package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// SampleYAML is the commented configuration written by Init.
const SampleYAML = `# lastsignal configuration
#
# Durations are strings made of a number and a unit: 30s, 15min, 12h, 7d.
# ${VAR} references are expanded from the environment (and .env files next to
# this file). Credential fields also accept keyring:<service>/<account>.

checkin:
  # How long without a check-in before reminders start.
  duration_between_checkins: 7d
  # Minimum time between two delivered reminders.
  output_retry_delay: 24h
  outputs:
    - type: email
      email:
        to: you@example.com
        smtp_host: smtp.example.com
        smtp_port: 587
        username: lastsignal@example.com
        password: ${LASTSIGNAL_SMTP_PASSWORD}

recipient:
  # How long without a check-in before the last signal is sent.
  max_time_since_last_checkin: 14d
  output_retry_delay: 24h
  last_signal_outputs:
    - type: email
      name: trusted-contact
      email:
        to: trusted@example.com
        smtp_host: smtp.example.com
        username: lastsignal@example.com
        password: ${LASTSIGNAL_SMTP_PASSWORD}
    - type: messenger
      messenger:
        recipient_id: "1234567890"
        access_token: keyring:lastsignal/messenger

last_signal:
  message_file: last_signal_message.md
  subject: A message from {person_name}
  person_name: Your Name
  contact_info: trusted@example.com

app:
  data_directory: ~/.lastsignal
  log_level: info
  check_interval: 1h
  channel_timeout: 30s
  # metrics_listen: 127.0.0.1:9464

# activity:
#   type: whoop
#   client_id: ${WHOOP_CLIENT_ID}
#   client_secret: ${WHOOP_CLIENT_SECRET}
#   auth_failure_counts_as_checkin: false

# events:
#   nats_url: nats://127.0.0.1:4222
#   accept_remote_checkins: true
`

// Init writes SampleYAML to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return errors.FileSystemError("failed to create configuration directory").WithCause(err).Build()
	}
	if err := os.WriteFile(configPath, []byte(SampleYAML), 0o600); err != nil {
		return errors.FileSystemError("failed to write configuration file").WithCause(err).Build()
	}
	return nil
}
