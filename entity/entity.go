package entity

import (
	"context"
	"sync"
	"time"

	"github.com/andig/ngenic/ngenic"
	"github.com/evcc-io/evcc/util"
)

// Platform is the host platform an entity belongs to
type Platform string

const (
	PlatformSensor  Platform = "sensor"
	PlatformClimate Platform = "climate"
)

// API is the part of the Tune API entities poll
type API interface {
	Room(ctx context.Context, tuneUuid, roomUuid string) (ngenic.Room, error)
	UpdateRoom(ctx context.Context, tuneUuid string, room ngenic.Room) error
	LatestMeasurement(ctx context.Context, tuneUuid, nodeUuid string, typ ngenic.MeasurementType) (ngenic.Measurement, error)
	Measurements(ctx context.Context, tuneUuid, nodeUuid string, typ ngenic.MeasurementType, from, to, period string) ([]ngenic.Measurement, error)
}

// Device groups entities of the same node
type Device struct {
	ID    string
	Name  string
	Model string
}

// Entity is a host entity backed by the Tune API
type Entity interface {
	UniqueID() string
	Name() string
	Platform() Platform
	Device() Device
	Available() bool
	// State is the formatted primary state, empty while unknown
	State() string
	Attributes() map[string]any
	Interval() time.Duration
	// Update fetches new state and notifies the host on change. It never fails,
	// errors mark the entity unavailable.
	Update(ctx context.Context)
	// Attach connects the entity to the host. Updates before Attach are silent.
	Attach(n Notifier)
}

// Notifier is told about entity state changes
type Notifier interface {
	Notify(e Entity)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Entity)

func (f NotifierFunc) Notify(e Entity) {
	f(e)
}

// Notifiers fans out notifications
type Notifiers []Notifier

func (n Notifiers) Notify(e Entity) {
	for _, nn := range n {
		nn.Notify(e)
	}
}

// base carries what all entities share
type base struct {
	mu        sync.RWMutex
	log       *util.Logger
	uid       string
	name      string
	device    Device
	interval  time.Duration
	available bool
	notifier  Notifier
}

func (b *base) UniqueID() string {
	return b.uid
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Device() Device {
	return b.device
}

func (b *base) Interval() time.Duration {
	return b.interval
}

func (b *base) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.available
}

func (b *base) Attach(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifier = n
}

// notify must be called without holding the lock
func (b *base) notify(e Entity) {
	b.mu.RLock()
	n := b.notifier
	b.mu.RUnlock()

	if n != nil {
		n.Notify(e)
	}
}

// unavailable marks the entity unavailable keeping its state and returns true if that changed
func (b *base) unavailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := b.available
	b.available = false
	return changed
}
