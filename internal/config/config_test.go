package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

const minimalYAML = `
checkin:
  duration_between_checkins: 7d
  outputs:
    - type: email
      email:
        to: me@example.com
        smtp_host: smtp.example.com
        username: bot@example.com
        password: secret
recipient:
  max_time_since_last_checkin: 14days
  output_retry_delay: 1h
  last_signal_outputs:
    - type: messenger
      messenger:
        recipient_id: "42"
        access_token: token
app:
  data_directory: %s
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func minimalConfig(t *testing.T) string {
	t.Helper()
	return writeConfig(t, "config.yaml", sprintf(minimalYAML, t.TempDir()))
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	cfg, err := Load(minimalConfig(t))
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Checkin.DurationBetweenCheckins.Std())
	assert.Equal(t, 24*time.Hour, cfg.Checkin.OutputRetryDelay.Std())
	assert.Equal(t, 14*24*time.Hour, cfg.Recipient.MaxTimeSinceLastCheckin.Std())
	assert.Equal(t, time.Hour, cfg.Recipient.OutputRetryDelay.Std())
	assert.Equal(t, time.Hour, cfg.App.CheckInterval.Std())
	assert.Equal(t, 30*time.Second, cfg.App.ChannelTimeout.Std())
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, DefaultSubject, cfg.LastSignal.Subject)

	email := cfg.Checkin.Outputs[0].Email
	require.NotNil(t, email)
	assert.Equal(t, 587, email.SMTPPort)
	assert.Equal(t, "bot@example.com", email.From)
	assert.Equal(t, "starttls", email.TLS)

	messenger := cfg.Recipient.LastSignalOutputs[0].Messenger
	require.NotNil(t, messenger)
	assert.Equal(t, DefaultMessengerAPIURL, messenger.APIURL)

	assert.Equal(t, filepath.Join(cfg.App.DataDirectory, DefaultMessageFile), cfg.MessageFilePath())
}

func TestLoadTOML(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "config.toml", sprintf(`
[checkin]
duration_between_checkins = "36h"
output_retry_delay = "12h"

[[checkin.outputs]]
type = "email"
[checkin.outputs.email]
to = "me@example.com"
smtp_host = "smtp.example.com"
smtp_port = 465
tls = "tls"
username = "bot@example.com"
password = "secret"

[recipient]
max_time_since_last_checkin = "3d"

[[recipient.last_signal_outputs]]
type = "messenger"
name = "sister"
[recipient.last_signal_outputs.messenger]
recipient_id = "42"
access_token = "token"

[app]
data_directory = %q
log_level = "DEBUG"
`, dataDir))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, cfg.Checkin.DurationBetweenCheckins.Std())
	assert.Equal(t, 465, cfg.Checkin.Outputs[0].Email.SMTPPort)
	assert.Equal(t, "tls", cfg.Checkin.Outputs[0].Email.TLS)
	assert.Equal(t, "sister", cfg.Recipient.LastSignalOutputs[0].Label(0))
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadRejectsPlainNumberDuration(t *testing.T) {
	body := sprintf(minimalYAML, t.TempDir())
	body = replace(body, "duration_between_checkins: 7d", "duration_between_checkins: 604800")
	_, err := Load(writeConfig(t, "config.yaml", body))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	body := sprintf(minimalYAML, t.TempDir()) + "surprise: true\n"
	_, err := Load(writeConfig(t, "config.yaml", body))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lastsignal init")
}

func TestLoadExpandsEnvFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	body := replace(sprintf(minimalYAML, t.TempDir()), "password: secret", "password: ${LASTSIGNAL_TEST_SMTP_PASSWORD}")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LASTSIGNAL_TEST_SMTP_PASSWORD=from-dotenv\n"), 0o600))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("LASTSIGNAL_TEST_SMTP_PASSWORD") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Checkin.Outputs[0].Email.Password)
}

func TestLoadResolvesKeyringSecrets(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("lastsignal", "messenger", "kr-token"))

	body := replace(sprintf(minimalYAML, t.TempDir()), "access_token: token", "access_token: keyring:lastsignal/messenger")
	cfg, err := Load(writeConfig(t, "config.yaml", body))
	require.NoError(t, err)
	assert.Equal(t, "kr-token", cfg.Recipient.LastSignalOutputs[0].Messenger.AccessToken)
}

func TestLoadMissingKeyringSecret(t *testing.T) {
	keyring.MockInit()
	body := replace(sprintf(minimalYAML, t.TempDir()), "access_token: token", "access_token: keyring:lastsignal/absent")
	_, err := Load(writeConfig(t, "config.yaml", body))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestInitWritesLoadableSample(t *testing.T) {
	t.Setenv("LASTSIGNAL_SMTP_PASSWORD", "pw")
	keyring.MockInit()
	require.NoError(t, keyring.Set("lastsignal", "messenger", "tok"))

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Recipient.LastSignalOutputs, 2)
	assert.Equal(t, "trusted-contact", cfg.Recipient.LastSignalOutputs[0].Label(0))
	assert.Equal(t, "messenger-1", cfg.Recipient.LastSignalOutputs[1].Label(1))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.lastsignal")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".lastsignal"), got)

	got, err = ExpandHome("/var/lib/lastsignal/")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/lastsignal", got)
}
