package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/seadaemon/internal/client"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/config"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/server"
)

// Globals is shared by every command
type Globals struct {
	Out     io.Writer
	Version string
}

// DaemonFlags locate a running daemon
type DaemonFlags struct {
	URL      string        `name:"url" help:"Daemon base URL." env:"SEADAEMON_URL" default:"http://127.0.0.1:8063"`
	User     string        `name:"user" short:"u" help:"API username." env:"SEADAEMON_USER" default:"nextcloud"`
	Password string        `name:"password" short:"p" help:"API password." env:"SEADAEMON_PASSWORD"`
	Timeout  time.Duration `name:"timeout" help:"Request timeout, 0 for none." default:"0"`
}

func (d DaemonFlags) client() *client.Client {
	return client.New(client.Config{
		BaseURL:  d.URL,
		User:     d.User,
		Password: d.Password,
		Timeout:  d.Timeout,
	})
}

// CLI is the command line definition
type CLI struct {
	Version kong.VersionFlag `name:"version" help:"Show version and exit."`

	Serve   ServeCmd   `cmd:"" help:"Run the daemon."`
	Status  StatusCmd  `cmd:"" help:"Show registered apps, instances and options."`
	Install InstallCmd `cmd:"" help:"Install or upgrade an app."`
	Remove  RemoveCmd  `cmd:"" help:"Stop and uninstall an app."`
	Run     RunCmd     `cmd:"" help:"Launch an app instance."`
	Stop    StopCmd    `cmd:"" help:"Stop an app instance by pid."`
	Option  OptionCmd  `cmd:"" help:"Read or write daemon and app options."`
}

// ServeCmd runs the daemon until SIGINT or SIGTERM. Launched apps keep
// running after the daemon exits.
type ServeCmd struct {
	Host string `name:"host" help:"Listen host for this run, overriding the host option."`
	Port int    `name:"port" help:"Listen port for this run, overriding the port option."`
}

func (s *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if s.Host != "" {
		cfg.HTTP.ListenHost = s.Host
	}
	if s.Port != 0 {
		cfg.HTTP.ListenPort = s.Port
	}

	srv, err := server.NewServer(cfg, g.Version)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
