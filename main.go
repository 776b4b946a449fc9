package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/andig/ngenic/config"
	"github.com/andig/ngenic/ngenic"
	"github.com/evcc-io/evcc/util"
	_ "github.com/joho/godotenv/autoload"
)

type Globals struct {
	Config   string `name:"config" short:"c" type:"path" help:"Config file (yaml)"`
	LogLevel string `name:"log-level" short:"l" help:"Log level, overrides config"`
	API      string `name:"api" hidden:"" help:"Tune API base url"`

	ctx      context.Context
	settings config.Settings
}

type CLI struct {
	Globals

	Run     RunCmd     `cmd:"" default:"1" help:"Run the Home Assistant bridge"`
	Setup   SetupCmd   `cmd:"" help:"Add an account using a Tune API token"`
	Remove  RemoveCmd  `cmd:"" help:"Remove an account"`
	Options OptionsCmd `cmd:"" help:"Change the options of an account"`
	Tunes   TunesCmd   `cmd:"" help:"Print tunes, rooms and nodes of all accounts"`
}

func (g *Globals) store() *config.Store {
	return config.NewStore(g.settings.Entries)
}

// connect opens a connection whose log never shows the token
func (g *Globals) connect(token string) *ngenic.Connection {
	log := util.NewLogger("ngenic").Redact(token)
	return ngenic.NewConnection(log, ngenic.TokenSource(token), g.API)
}

func main() {
	var cli CLI
	cmd := kong.Parse(&cli,
		kong.Name("ngenic"),
		kong.Description("Ngenic Tune bridge for Home Assistant"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	settings, err := config.Load(cli.Config)
	cmd.FatalIfErrorf(err)

	if cli.LogLevel != "" {
		settings.LogLevel = cli.LogLevel
	}
	util.LogLevel(settings.LogLevel, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli.Globals.ctx = ctx
	cli.Globals.settings = settings

	err = cmd.Run(&cli.Globals)
	cancel()

	cmd.FatalIfErrorf(err)
}
