package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/PulfordJ/lastsignal/cmd/lastsignal/commands"
	"github.com/PulfordJ/lastsignal/internal/foundation/errors"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli, append(commands.KongOptions(), kong.UsageOnError())...)

	err := ctx.Run(&commands.Global{Logger: slog.Default()}, &cli)
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
