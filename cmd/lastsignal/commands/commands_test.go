package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PulfordJ/lastsignal/internal/channel"
	"github.com/PulfordJ/lastsignal/internal/config"
	"github.com/PulfordJ/lastsignal/internal/escalation"
	"github.com/PulfordJ/lastsignal/internal/eventstore"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
	"github.com/PulfordJ/lastsignal/internal/state"
)

const testConfigYAML = `
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
  max_time_since_last_checkin: 14d
  last_signal_outputs:
    - type: messenger
      messenger:
        recipient_id: "42"
        access_token: token
app:
  data_directory: %s
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfigYAML, t.TempDir())), 0o600))
	return path
}

func TestParseCommands(t *testing.T) {
	tests := []struct {
		args    []string
		command string
		check   func(t *testing.T, cli *CLI)
	}{
		{args: []string{"run"}, command: "run"},
		{args: []string{"checkin"}, command: "checkin"},
		{args: []string{"status"}, command: "status"},
		{args: []string{"test"}, command: "test"},
		{
			args:    []string{"-c", "/tmp/custom.yaml", "history", "-n", "5"},
			command: "history",
			check: func(t *testing.T, cli *CLI) {
				assert.Equal(t, "/tmp/custom.yaml", cli.Config)
				assert.Equal(t, 5, cli.History.Limit)
			},
		},
		{
			args:    []string{"init", "--force"},
			command: "init",
			check:   func(t *testing.T, cli *CLI) { assert.True(t, cli.Init.Force) },
		},
		{
			args:    []string{"activity-auth", "--code", "abc"},
			command: "activity-auth",
			check:   func(t *testing.T, cli *CLI) { assert.Equal(t, "abc", cli.ActivityAuth.Code) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			var cli CLI
			parser, err := kong.New(&cli, KongOptions()...)
			require.NoError(t, err)
			ctx, err := parser.Parse(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.command, ctx.Command())
			if tt.check != nil {
				tt.check(t, &cli)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("trace"))
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
}

func TestPhaseTitle(t *testing.T) {
	assert.Equal(t, "Normal", phaseTitle(escalation.PhaseNormal))
	assert.Equal(t, "Awaiting Checkin", phaseTitle(escalation.PhaseAwaitingCheckin))
	assert.Equal(t, "Escalated", phaseTitle(escalation.PhaseEscalated))
}

func TestRenderStatus(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-8 * 24 * time.Hour)
	reminder := now.Add(-time.Hour)

	var buf bytes.Buffer
	renderStatus(printer{w: &buf}, statusReport{
		Now: now,
		State: state.State{
			LastCheckin:         &last,
			LastCheckinSource:   "manual",
			LastCheckinRequest:  &reminder,
			CheckinRequestCount: 2,
		},
		Plan: escalation.Plan{
			Phase:        escalation.PhaseAwaitingCheckin,
			Action:       escalation.ActionReminderDeferred,
			NextEligible: reminder.Add(24 * time.Hour),
		},
		Elapsed:          "8d",
		Between:          "7d",
		Max:              "14d",
		ReminderChannels: 1,
		SignalChannels:   2,
		Activity:         "whoop",
	})

	out := buf.String()
	assert.Contains(t, out, "Awaiting Checkin")
	assert.Contains(t, out, "8d ago, via manual")
	assert.Contains(t, out, "2 (last 2026-05-10T11:00:00Z)")
	assert.Contains(t, out, "eligible 2026-05-11T11:00:00Z")
	assert.Contains(t, out, "reminders after 7d, last signal after 14d")
	assert.Contains(t, out, "1 reminder, 2 last signal")
	assert.Contains(t, out, "not authorized")
	assert.NotContains(t, out, "Unconfirmed signal")
}

func TestRenderStatusReportsUnreadableState(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(printer{w: &buf}, statusReport{StateErr: errors.StateError("failed to decode state file").Build()})
	assert.Contains(t, buf.String(), "unreadable")
}

type stubChannel struct {
	name  string
	err   error
	block bool
}

func (p stubChannel) Name() string { return p.name }

func (p stubChannel) HealthCheck(ctx context.Context) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.err
}

func (p stubChannel) Send(context.Context, channel.Message) error { return nil }

func TestCheckChannelsChecksEveryChannel(t *testing.T) {
	reminder := []channel.Channel{
		stubChannel{name: "a", err: channel.NewError(channel.KindAuthenticationFailed, "a", "bad password", nil)},
		stubChannel{name: "b"},
	}
	signal := []channel.Channel{
		stubChannel{name: "c", block: true},
		stubChannel{name: "d"},
	}

	results := checkChannels(t.Context(), reminder, signal, 50*time.Millisecond)
	require.Len(t, results, 4)

	names := []string{results[0].Channel, results[1].Channel, results[2].Channel, results[3].Channel}
	assert.Equal(t, []string{"a", "b", "c", "d"}, names)
	assert.Equal(t, "reminder", results[0].Role)
	assert.Equal(t, "last signal", results[2].Role)

	assert.Equal(t, channel.KindAuthenticationFailed, channel.KindOf(results[0].Err))
	assert.NoError(t, results[1].Err)
	assert.Equal(t, channel.KindUnreachable, channel.KindOf(results[2].Err))
	assert.NoError(t, results[3].Err)

	var buf bytes.Buffer
	err := reportHealth(printer{w: &buf}, results)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryChannel))
	assert.Contains(t, buf.String(), "FAIL")
	assert.Contains(t, buf.String(), "2 of 4 channels healthy")
}

func TestReportHealthAllHealthy(t *testing.T) {
	var buf bytes.Buffer
	err := reportHealth(printer{w: &buf}, []healthResult{{Channel: "a", Role: "reminder"}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "PASS")
}

func TestRenderHistory(t *testing.T) {
	t0 := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	evs := []eventstore.Event{
		{Kind: eventstore.KindSignalFired, AttemptID: "x", Timestamp: t0.Add(time.Second), Channel: "email-0"},
		{Kind: eventstore.KindChannelFailed, AttemptID: "x", Timestamp: t0, Channel: "messenger-0", Detail: "unreachable"},
		{Kind: eventstore.KindSignalAttempt, AttemptID: "x", Timestamp: t0},
		{Kind: eventstore.KindCheckin, Timestamp: t0.Add(-time.Hour), Detail: "manual"},
	}

	var buf bytes.Buffer
	renderHistory(printer{w: &buf}, evs)
	out := buf.String()
	assert.Contains(t, out, "signal_fired")
	assert.Contains(t, out, "messenger-0: unreachable")
	assert.Contains(t, out, "Dispatches")
	assert.Contains(t, out, "signal   delivered via email-0")

	buf.Reset()
	renderHistory(printer{w: &buf}, nil)
	assert.Contains(t, buf.String(), "No events recorded yet.")
}

func TestInitCmd(t *testing.T) {
	dir := t.TempDir()
	root := &CLI{Config: filepath.Join(dir, "config.yaml")}
	cmd := &InitCmd{DataDir: filepath.Join(dir, "data")}

	var buf bytes.Buffer
	require.NoError(t, cmd.Run(&Global{Out: &buf}, root))
	assert.FileExists(t, root.Config)
	assert.FileExists(t, filepath.Join(dir, "data", config.DefaultMessageFile))
	assert.Contains(t, buf.String(), "Message template at")

	err := cmd.Run(&Global{Out: &buf}, root)
	require.Error(t, err)

	cmd.Force = true
	require.NoError(t, cmd.Run(&Global{Out: &buf}, root))
}

func TestCheckinStatusHistory(t *testing.T) {
	root := &CLI{Config: writeTestConfig(t)}

	var buf bytes.Buffer
	require.NoError(t, (&CheckinCmd{}).Run(&Global{Out: &buf}, root))
	assert.Contains(t, buf.String(), "Checked in at")

	buf.Reset()
	require.NoError(t, (&StatusCmd{}).Run(&Global{Out: &buf}, root))
	assert.Contains(t, buf.String(), "Normal")
	assert.Contains(t, buf.String(), "via manual")

	buf.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 10}).Run(&Global{Out: &buf}, root))
	assert.Contains(t, buf.String(), "checkin")
}

func TestCheckinNotesSignalAlreadySent(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfigYAML, dataDir)), 0o600))
	root := &CLI{Config: path}

	store, err := state.NewStore(dataDir)
	require.NoError(t, err)
	fired := time.Now().UTC().Add(-time.Hour)
	_, err = store.RecordCheckin(t.Context(), fired.Add(-15*24*time.Hour), "manual")
	require.NoError(t, err)
	_, err = store.RecordSignalFired(t.Context(), fired, "messenger")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, (&CheckinCmd{}).Run(&Global{Out: &buf}, root))
	assert.Contains(t, buf.String(), "already sent")
}

func TestCheckinUnreadableStateSkipsNote(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfigYAML, dataDir)), 0o600))
	root := &CLI{Config: path}

	store, err := state.NewStore(dataDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))

	var buf bytes.Buffer
	err = (&CheckinCmd{}).Run(&Global{Out: &buf}, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))
	assert.NotContains(t, buf.String(), "already sent")
}

func TestActivityAuthRequiresConfiguredTracker(t *testing.T) {
	root := &CLI{Config: writeTestConfig(t)}
	err := (&ActivityAuthCmd{}).Run(&Global{Out: &bytes.Buffer{}}, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestStatusFailsOnInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkin: {}\n"), 0o600))

	err := (&StatusCmd{}).Run(&Global{Out: &bytes.Buffer{}}, &CLI{Config: path})
	require.Error(t, err)
	assert.Equal(t, 7, errors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}
