// Package commands implements the lastsignal command line.
package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/PulfordJ/lastsignal/internal/config"
	"github.com/PulfordJ/lastsignal/internal/daemon"
	"github.com/PulfordJ/lastsignal/internal/version"
)

// DefaultConfigPath is used when neither --config nor LASTSIGNAL_CONFIG is set.
const DefaultConfigPath = "~/.lastsignal/config.yaml"

// logLevel is shared by the handler installed in AfterApply so the level from
// the config file can be applied once it is loaded.
var logLevel = new(slog.LevelVar)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${config_path}" env:"LASTSIGNAL_CONFIG" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run          RunCmd          `cmd:"" help:"Run the dead man's switch daemon"`
	Checkin      CheckinCmd      `cmd:"" help:"Record a manual check-in"`
	Status       StatusCmd       `cmd:"" help:"Show the current phase and key timestamps"`
	Test         TestCmd         `cmd:"" help:"Health check every configured output channel"`
	Init         InitCmd         `cmd:"" help:"Write a sample configuration and message template"`
	History      HistoryCmd      `cmd:"" help:"List recent escalation events"`
	ActivityAuth ActivityAuthCmd `cmd:"" name:"activity-auth" help:"Authorize the activity tracker used for automatic check-ins"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	logLevel.Set(slog.LevelInfo)
	if c.Verbose {
		logLevel.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return nil
}

// KongOptions names the application and defines the variables its flags use.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("lastsignal"),
		kong.Description("A dead man's switch: reminds you to check in and, if you don't, sends your last signal."),
		kong.Vars{
			"version":     version.String(),
			"config_path": DefaultConfigPath,
			"data_dir":    config.DefaultDataDirectory,
		},
	}
}

// loadConfig loads the configuration and applies its log level unless
// --verbose already raised it.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if !c.Verbose {
		logLevel.Set(parseLevel(cfg.App.LogLevel))
	}
	return cfg, nil
}

// build loads the configuration and constructs the components.
func (c *CLI) build(opts daemon.BuildOptions) (*daemon.Components, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return daemon.Build(cfg, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
