package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andig/ngenic/entity"
	"github.com/evcc-io/evcc/util"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	component   = "ngenic"
	callTimeout = time.Minute
)

// Services are the actions exposed as MQTT service topics
type Services interface {
	SetActiveControl(ctx context.Context, roomUuid string, active bool) error
}

// SetActiveControl is the payload of the set_active_control service
type SetActiveControl struct {
	RoomUuid string `json:"room_uuid" validate:"required,uuid"`
	Active   *bool  `json:"active" validate:"required"`
}

// Publisher exposes entities to Home Assistant using MQTT discovery
type Publisher struct {
	mu              sync.Mutex
	log             *util.Logger
	client          ClientAPI
	services        Services
	validate        *validator.Validate
	discoveryPrefix string
	topicPrefix     string
	entities        map[string]entity.Entity
}

func NewPublisher(client ClientAPI, discoveryPrefix, topicPrefix string, services Services) *Publisher {
	return &Publisher{
		log:             util.NewLogger("hass"),
		client:          client,
		services:        services,
		validate:        validator.New(),
		discoveryPrefix: strings.TrimSuffix(discoveryPrefix, "/"),
		topicPrefix:     strings.TrimSuffix(topicPrefix, "/"),
		entities:        make(map[string]entity.Entity),
	}
}

// StatusTopic is the bridge availability topic, used as last will
func StatusTopic(topicPrefix string) string {
	return strings.TrimSuffix(topicPrefix, "/") + "/status"
}

func (p *Publisher) statusTopic() string {
	return StatusTopic(p.topicPrefix)
}

func (p *Publisher) topic(parts ...string) string {
	return strings.Join(append([]string{p.topicPrefix}, parts...), "/")
}

func (p *Publisher) configTopic(e entity.Entity) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", p.discoveryPrefix, e.Platform(), component, e.UniqueID())
}

func (p *Publisher) publish(topic string, retain bool, payload any) {
	var b []byte
	switch v := payload.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			p.log.ERROR.Printf("marshal %s: %v", topic, err)
			return
		}
	}

	if err := p.client.Publish(topic, b, retain); err != nil {
		p.log.ERROR.Printf("publish %s: %v", topic, err)
	}
}

// Start announces the bridge and subscribes the service topics. It is run on
// every broker (re)connect.
func (p *Publisher) Start() error {
	if err := p.client.Subscribe(p.topic("service", "set_active_control"), p.handleSetActiveControl); err != nil {
		return err
	}

	// republish everything when Home Assistant restarts
	if err := p.client.Subscribe(p.discoveryPrefix+"/status", func(_ string, payload []byte) {
		if string(payload) == online {
			p.Republish()
		}
	}); err != nil {
		return err
	}

	p.mu.Lock()
	entities := lo.Values(p.entities)
	p.mu.Unlock()

	for _, e := range entities {
		if err := p.subscribe(e); err != nil {
			return err
		}
	}

	p.publish(p.statusTopic(), true, online)
	p.Republish()

	return nil
}

// Stop marks the bridge offline
func (p *Publisher) Stop() {
	p.publish(p.statusTopic(), true, offline)
}

// Republish sends discovery and state of all entities
func (p *Publisher) Republish() {
	p.mu.Lock()
	entities := lo.Values(p.entities)
	p.mu.Unlock()

	for _, e := range entities {
		p.announce(e)
	}
}

func (p *Publisher) announce(e entity.Entity) {
	p.publish(p.configTopic(e), true, p.Discovery(e))
	p.Notify(e)
}

func (p *Publisher) subscribe(e entity.Entity) error {
	if _, ok := e.(*entity.Climate); !ok {
		return nil
	}

	uid := e.UniqueID()
	return p.client.Subscribe(p.topic(uid, "target", "set"), func(_ string, payload []byte) {
		p.handleTarget(uid, payload)
	})
}

// Add implements the integration host
func (p *Publisher) Add(entities ...entity.Entity) error {
	for _, e := range entities {
		if err := p.subscribe(e); err != nil {
			return fmt.Errorf("subscribe %s: %w", e.UniqueID(), err)
		}

		p.mu.Lock()
		p.entities[e.UniqueID()] = e
		p.mu.Unlock()

		p.announce(e)
	}

	return nil
}

// Remove implements the integration host. Discovery documents are kept,
// removed entities are marked unavailable.
func (p *Publisher) Remove(entities ...entity.Entity) {
	for _, e := range entities {
		p.mu.Lock()
		delete(p.entities, e.UniqueID())
		p.mu.Unlock()

		if _, ok := e.(*entity.Climate); ok {
			if err := p.client.Unsubscribe(p.topic(e.UniqueID(), "target", "set")); err != nil {
				p.log.ERROR.Printf("unsubscribe %s: %v", e.UniqueID(), err)
			}
		}

		p.publish(p.topic(e.UniqueID(), "availability"), true, offline)
	}
}

// Notify publishes the state of e. Unavailable entities only publish their
// availability so the host keeps the last value.
func (p *Publisher) Notify(e entity.Entity) {
	uid := e.UniqueID()

	if !e.Available() {
		p.publish(p.topic(uid, "availability"), true, offline)
		return
	}

	p.publish(p.topic(uid, "state"), true, e.State())
	p.publish(p.topic(uid, "attributes"), true, e.Attributes())
	p.publish(p.topic(uid, "availability"), true, online)
}

func (p *Publisher) handleTarget(uid string, payload []byte) {
	temp, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		p.log.ERROR.Printf("invalid target for %s: %s", uid, payload)
		return
	}

	p.mu.Lock()
	c, ok := p.entities[uid].(*entity.Climate)
	p.mu.Unlock()

	if !ok {
		p.log.ERROR.Printf("unknown climate: %s", uid)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if err := c.SetTemperature(ctx, temp); err != nil {
		p.log.ERROR.Printf("set target of %s: %v", uid, err)
	}
}

func (p *Publisher) handleSetActiveControl(_ string, payload []byte) {
	var req SetActiveControl
	if err := json.Unmarshal(payload, &req); err != nil {
		p.log.ERROR.Printf("set_active_control: %v", err)
		return
	}
	if err := p.validate.Struct(req); err != nil {
		p.log.ERROR.Printf("set_active_control: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	if err := p.services.SetActiveControl(ctx, req.RoomUuid, *req.Active); err != nil {
		p.log.ERROR.Printf("set_active_control: %v", err)
	}
}
