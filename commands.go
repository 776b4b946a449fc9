package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andig/ngenic/integration"
	"github.com/andig/ngenic/ngenic"
)

type SetupCmd struct {
	Token string `arg:"" env:"NGENIC_TOKEN" help:"Tune API token, issued in the Ngenic app"`
}

func (cmd *SetupCmd) Run(g *Globals) error {
	store := g.store()

	flow := integration.NewFlow(func(token string) integration.TuneLister {
		return g.connect(token)
	}, store.Tokens)

	entry, err := flow.Submit(g.ctx, cmd.Token)
	if err != nil {
		return err
	}

	entry, err = store.Add(entry)
	if err != nil {
		return err
	}

	fmt.Printf("added %s (%s)\n", entry.Title, entry.ID)
	return nil
}

type RemoveCmd struct {
	Entry string `arg:"" help:"Account id or title"`
}

func (cmd *RemoveCmd) Run(g *Globals) error {
	return g.store().Remove(cmd.Entry)
}

type OptionsCmd struct {
	Entry  string   `arg:"" help:"Account id or title"`
	Values []string `arg:"" optional:"" help:"Options to set as key=value"`
}

func (cmd *OptionsCmd) Run(g *Globals) error {
	other := make(map[string]any, len(cmd.Values))
	for _, kv := range cmd.Values {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid option %q, expected key=value", kv)
		}
		other[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	opts, err := g.store().UpdateOptions(cmd.Entry, other)
	if err != nil {
		return err
	}

	fmt.Printf("create_utility_meters: %t\n", opts.CreateUtilityMeters)
	fmt.Printf("create_current_month_sensor: %t\n", opts.CreateCurrentMonthSensor)
	fmt.Printf("create_previous_month_sensor: %t\n", opts.CreatePreviousMonthSensor)

	return nil
}

type TunesCmd struct{}

func (cmd *TunesCmd) Run(g *Globals) error {
	entries, err := g.store().Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("no accounts configured, run setup first")
	}

	for _, e := range entries {
		fmt.Printf("Account %s (%s)\n", e.Title, e.ID)

		conn := g.connect(e.Token)
		err := printTunes(g, conn)
		conn.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", e.Title, err)
		}
	}

	return nil
}

func printTunes(g *Globals, conn *ngenic.Connection) error {
	tunes, err := conn.Tunes(g.ctx)
	if err != nil {
		return err
	}

	for _, tune := range tunes {
		fmt.Printf("Tune %s (%s)\n", tune.TuneName, tune.Uuid)

		rooms, err := conn.Rooms(g.ctx, tune.Uuid)
		if err != nil {
			return err
		}

		for _, r := range rooms {
			fmt.Printf("  Room %s: target %.1f°C, active control %t\n", r.Name, r.TargetTemperature, r.ActiveControl)
		}

		nodes, err := conn.Nodes(g.ctx, tune.Uuid)
		if err != nil {
			return err
		}

		for _, n := range nodes {
			m, err := conn.LatestMeasurement(g.ctx, tune.Uuid, n.Uuid, ngenic.TEMPERATURE)
			if err != nil {
				fmt.Printf("  Node %s (%s)\n", n.Type, n.Uuid)
				continue
			}
			fmt.Printf("  Node %s (%s): %.1f°C\n", n.Type, n.Uuid, m.Value)
		}
	}

	return nil
}
