package commands

import (
	"fmt"
	"path/filepath"

	"github.com/PulfordJ/lastsignal/internal/compose"
	"github.com/PulfordJ/lastsignal/internal/config"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force   bool   `help:"Overwrite existing configuration file"`
	DataDir string `name:"data-dir" help:"Data directory for the message template (default ${data_dir})"`
}

func (i *InitCmd) dataDir() string {
	if i.DataDir != "" {
		return i.DataDir
	}
	return config.DefaultDataDirectory
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	out := g.out()
	fmt.Fprintf(out, "Writing configuration to %s\n", root.Config)
	if err := config.Init(root.Config, i.Force); err != nil {
		fmt.Fprintln(out, "Initialization failed")
		return err
	}

	// The sample references secrets that are not set yet, so the template
	// goes where the sample's data directory points.
	dataDir, err := config.ExpandHome(i.dataDir())
	if err != nil {
		return errors.ConfigError("failed to resolve data directory").WithCause(err).Build()
	}
	loader := compose.NewLoader(filepath.Join(dataDir, config.DefaultMessageFile), config.DefaultSubject)
	if _, err := loader.Load(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Message template at %s\n", loader.Path())
	fmt.Fprintln(out, "Edit both files, then run 'lastsignal test' to check your channels.")
	return nil
}
