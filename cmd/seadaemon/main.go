package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

var version = "dev"

// Exit codes
const (
	exitError         = 1
	exitConfigMissing = 2
)

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("seadaemon"),
		kong.Description("App process supervisor and registry daemon."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	globals := &Globals{Out: os.Stdout, Version: version}
	if err := ctx.Run(globals); err != nil {
		fmt.Fprintf(os.Stderr, "seadaemon: %v\n", err)
		if errors.Is(err, types.ErrConfigMissingKey) {
			os.Exit(exitConfigMissing)
		}
		os.Exit(exitError)
	}
}
