package main

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/seadaemon/internal/client"
)

// StatusCmd prints the daemon status snapshot
type StatusCmd struct {
	DaemonFlags
}

func (c *StatusCmd) Run(g *Globals) error {
	snap, err := c.client().Status(context.Background())
	if err != nil {
		return err
	}
	return printJSON(g.Out, snap)
}

// InstallCmd installs an app from an uploaded file or a URL
type InstallCmd struct {
	DaemonFlags
	Name string `arg:"" help:"App name."`
	File string `name:"file" short:"f" help:"Package archive to upload." type:"existingfile" xor:"source" required:""`
	From string `name:"from" help:"Package URL (or path on the daemon host)." xor:"source" required:""`
}

func (c *InstallCmd) Run(g *Globals) error {
	ctx := context.Background()
	var err error
	if c.File != "" {
		err = c.client().InstallFile(ctx, c.Name, c.File)
	} else {
		err = c.client().Install(ctx, c.Name, c.From)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "installed %s\n", c.Name)
	return nil
}

// RemoveCmd uninstalls an app
type RemoveCmd struct {
	DaemonFlags
	Name string `arg:"" help:"App name."`
}

func (c *RemoveCmd) Run(g *Globals) error {
	if err := c.client().Remove(context.Background(), c.Name); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "removed %s\n", c.Name)
	return nil
}

// RunCmd launches an app instance and prints its pid
type RunCmd struct {
	DaemonFlags
	Name      string   `arg:"" help:"App name."`
	Args      []string `arg:"" optional:"" passthrough:"" help:"Extra arguments for the app."`
	NCURL     string   `name:"nc-url" help:"Backing server URL for this launch."`
	UserToken string   `name:"user-token" help:"Credential for this launch, user:password or an access token."`
}

func (c *RunCmd) Run(g *Globals) error {
	args := c.Args
	// kong keeps the separator in passthrough args
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	pid, err := c.client().Run(context.Background(), c.Name, client.RunOptions{
		Args:      args,
		NCURL:     c.NCURL,
		UserToken: c.UserToken,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(g.Out, pid)
	return nil
}

// StopCmd stops an app instance
type StopCmd struct {
	DaemonFlags
	PID int `arg:"" help:"Instance pid."`
}

func (c *StopCmd) Run(g *Globals) error {
	if err := c.client().Stop(context.Background(), c.PID); err != nil {
		return err
	}
	fmt.Fprintf(g.Out, "stopped %d\n", c.PID)
	return nil
}

// OptionCmd groups option subcommands
type OptionCmd struct {
	Get OptionGetCmd `cmd:"" help:"Print an option value."`
	Set OptionSetCmd `cmd:"" help:"Set an option value."`
}

// OptionGetCmd prints an option
type OptionGetCmd struct {
	DaemonFlags
	Key string `arg:"" help:"Option key."`
	App string `name:"app" short:"a" help:"Read the app's override instead of the global option."`
}

func (c *OptionGetCmd) Run(g *Globals) error {
	value, err := c.client().GetOption(context.Background(), c.Key, c.App)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.Out, value)
	return nil
}

// OptionSetCmd writes an option
type OptionSetCmd struct {
	DaemonFlags
	Key   string `arg:"" help:"Option key."`
	Value string `arg:"" help:"Option value."`
	App   string `name:"app" short:"a" help:"Set the app's override instead of the global option."`
}

func (c *OptionSetCmd) Run(g *Globals) error {
	return c.client().SetOption(context.Background(), c.Key, c.Value, c.App)
}
