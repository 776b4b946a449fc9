package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/andig/ngenic/hass"
	"github.com/andig/ngenic/integration"
	"github.com/andig/ngenic/scheduler"
	"github.com/andig/ngenic/server"
	"github.com/evcc-io/evcc/util"
	"golang.org/x/sync/errgroup"
)

type RunCmd struct{}

// importToken adds the configured token as an entry unless it is set up already
func importToken(ctx context.Context, g *Globals, token string) error {
	store := g.store()

	flow := integration.NewFlow(func(token string) integration.TuneLister {
		return g.connect(token)
	}, store.Tokens)

	entry, err := flow.Submit(ctx, token)
	if errors.Is(err, integration.ErrAlreadyConfigured) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = store.Add(entry)
	return err
}

func (cmd *RunCmd) Run(g *Globals) error {
	log := util.NewLogger("main")
	s := g.settings

	loc, err := s.Location()
	if err != nil {
		return err
	}

	if s.Token != "" {
		if err := importToken(g.ctx, g, s.Token); err != nil {
			return fmt.Errorf("import token: %w", err)
		}
	}

	entries, err := g.store().Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("no accounts configured, run setup first")
	}

	registry := new(integration.Registry)
	metrics := server.NewMetrics()

	// the publisher is started on every broker connect
	var pub *hass.Publisher
	ready := make(chan struct{})

	client, err := hass.NewClient(util.NewLogger("mqtt"), s.MQTT.Broker, s.MQTT.ClientID, hass.StatusTopic(s.MQTT.TopicPrefix), func() {
		<-ready
		if err := pub.Start(); err != nil {
			log.ERROR.Printf("mqtt: %v", err)
		}
	})
	if err != nil {
		return err
	}
	defer client.Close()

	pub = hass.NewPublisher(client, s.MQTT.DiscoveryPrefix, s.MQTT.TopicPrefix, registry)
	close(ready)
	defer pub.Stop()

	sched := scheduler.New(g.ctx)
	hosts := integration.Hosts{pub, metrics}

	var setup int
	for _, e := range entries {
		i := integration.New(e.ID, e.Title, g.connect(e.Token), e.Options, sched, hosts, loc)
		if err := i.Setup(g.ctx); err != nil {
			log.ERROR.Printf("setup %s: %v", e.Title, err)
			i.Unload()
			continue
		}
		registry.Add(i)
		setup++
	}
	defer registry.Unload()

	if setup == 0 {
		return errors.New("no account could be set up")
	}

	sched.Start()
	defer sched.Stop()

	eg, ctx := errgroup.WithContext(g.ctx)

	if s.HTTP.Listen != "" {
		eg.Go(func() error {
			return server.New(registry, metrics).Run(ctx, s.HTTP.Listen)
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		log.INFO.Println("shutting down")
		return nil
	})

	return eg.Wait()
}
