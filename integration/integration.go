package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andig/ngenic/config"
	"github.com/andig/ngenic/entity"
	"github.com/andig/ngenic/ngenic"
	"github.com/andig/ngenic/period"
	"github.com/evcc-io/evcc/util"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ErrRoomNotFound is returned by services addressing an unknown room
var ErrRoomNotFound = errors.New("room not found")

// API is the Tune API surface the integration uses
type API interface {
	entity.API
	TuneLister
	Tune(ctx context.Context, tuneUuid string) (ngenic.Tune, error)
	Rooms(ctx context.Context, tuneUuid string) ([]ngenic.Room, error)
	Nodes(ctx context.Context, tuneUuid string) ([]ngenic.Node, error)
	Node(ctx context.Context, tuneUuid, nodeUuid string) (ngenic.Node, error)
	MeasurementTypes(ctx context.Context, tuneUuid, nodeUuid string) ([]ngenic.MeasurementType, error)
	Close()
}

// Tracker runs a function periodically until the returned remove function is called
type Tracker interface {
	Track(name string, interval time.Duration, fn func(context.Context)) (func(), error)
}

// Host receives the entities of an entry and is notified of their changes
type Host interface {
	entity.Notifier
	Add(entities ...entity.Entity) error
	Remove(entities ...entity.Entity)
}

// Integration is a set up entry
type Integration struct {
	mu       sync.RWMutex
	log      *util.Logger
	id       string
	title    string
	conn     API
	opts     config.Options
	tracker  Tracker
	host     Host
	loc      *time.Location
	now      func() time.Time
	entities []entity.Entity
	removers []func()
}

// New creates an integration for the entry served by conn. Its jobs are
// named after the entry id.
func New(id, title string, conn API, opts config.Options, tracker Tracker, host Host, loc *time.Location) *Integration {
	return &Integration{
		log:     util.NewLogger("ngenic"),
		id:      id,
		title:   title,
		conn:    conn,
		opts:    opts,
		tracker: tracker,
		host:    host,
		loc:     loc,
		now:     time.Now,
	}
}

func (i *Integration) Title() string {
	return i.title
}

// Setup discovers entities, runs their initial update, starts their updaters
// and adds them to the host
func (i *Integration) Setup(ctx context.Context) error {
	tunes, err := i.conn.Tunes(ctx)
	if err != nil {
		return err
	}

	climates, err := i.climates(ctx, tunes)
	if err != nil {
		return err
	}

	sensors, err := i.sensors(ctx, tunes)
	if err != nil {
		return err
	}

	entities := append(climates, sensors...)

	// initial update, entities are not attached yet so this does not notify
	for _, e := range entities {
		e.Update(ctx)
	}

	removers := make([]func(), 0, len(entities))
	for _, e := range entities {
		remove, err := i.tracker.Track(i.id+"/"+e.UniqueID(), e.Interval(), e.Update)
		if err != nil {
			for _, r := range removers {
				r()
			}
			return fmt.Errorf("tracking %s: %w", e.UniqueID(), err)
		}
		removers = append(removers, remove)
	}

	if err := i.host.Add(entities...); err != nil {
		for _, r := range removers {
			r()
		}
		return err
	}

	i.mu.Lock()
	i.entities = entities
	i.removers = removers
	i.mu.Unlock()

	i.log.INFO.Printf("%s: %d climate and %d sensor entities", i.title, len(climates), len(sensors))

	for _, e := range entities {
		e.Attach(i.host)
	}

	return nil
}

// Unload stops updaters, removes entities from the host and closes the connection
func (i *Integration) Unload() {
	i.mu.Lock()
	removers, entities := i.removers, i.entities
	i.removers, i.entities = nil, nil
	i.mu.Unlock()

	for _, r := range removers {
		r()
	}
	for _, e := range entities {
		e.Attach(nil)
	}
	i.host.Remove(entities...)
	i.conn.Close()
}

// Entities returns the entities of the entry
func (i *Integration) Entities() []entity.Entity {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]entity.Entity(nil), i.entities...)
}

// Entity returns the entity with unique id uid
func (i *Integration) Entity(uid string) (entity.Entity, bool) {
	return lo.Find(i.Entities(), func(e entity.Entity) bool {
		return e.UniqueID() == uid
	})
}

// climates creates one climate per control room. If the tune names a room to
// control it takes precedence, else every room with active control is used.
func (i *Integration) climates(ctx context.Context, tunes []ngenic.Tune) ([]entity.Entity, error) {
	var res []entity.Entity

	for _, t := range tunes {
		// listed tunes carry less information than a single tune
		tune, err := i.conn.Tune(ctx, t.Uuid)
		if err != nil {
			return nil, err
		}

		roomUuids := lo.FilterMap(tune.Rooms, func(r ngenic.Room, _ int) (string, bool) {
			return r.Uuid, r.ActiveControl
		})
		if tune.RoomToControlUuid != "" {
			roomUuids = []string{tune.RoomToControlUuid}
		}

		for _, roomUuid := range roomUuids {
			room, err := i.conn.Room(ctx, tune.Uuid, roomUuid)
			if err != nil {
				return nil, err
			}

			node, err := i.conn.Node(ctx, tune.Uuid, room.NodeUuid)
			if err != nil {
				return nil, err
			}

			res = append(res, entity.NewClimate(i.conn, tune, room, node))
		}
	}

	return res, nil
}

// sensors creates sensors for each measurement type a node reports
func (i *Integration) sensors(ctx context.Context, tunes []ngenic.Tune) ([]entity.Entity, error) {
	var res []entity.Entity

	for _, tune := range tunes {
		rooms, err := i.conn.Rooms(ctx, tune.Uuid)
		if err != nil {
			return nil, err
		}

		nodes, err := i.conn.Nodes(ctx, tune.Uuid)
		if err != nil {
			return nil, err
		}

		for _, node := range nodes {
			name := "Ngenic " + node.Type.String()
			opts := []entity.SensorOption{entity.WithClock(i.now, i.loc)}

			// sensors placed in a room are named after it
			if node.Type == ngenic.NodeTypeSensor {
				if room, ok := lo.Find(rooms, func(r ngenic.Room) bool { return r.NodeUuid == node.Uuid }); ok {
					name += " " + room.Name
					opts = append(opts, entity.WithRoom(room.Uuid))
				}
			}

			types, err := i.conn.MeasurementTypes(ctx, tune.Uuid, node.Uuid)
			if err != nil {
				return nil, err
			}

			newSensor := func(kind entity.Kind) *entity.Sensor {
				return entity.NewSensor(i.conn, tune.Uuid, node, name, kind, opts...)
			}

			if lo.Contains(types, ngenic.TEMPERATURE) {
				res = append(res, newSensor(entity.Temperature))
			}
			if lo.Contains(types, ngenic.CONTROL_VALUE) {
				res = append(res, newSensor(entity.ControlValue))
			}
			if lo.Contains(types, ngenic.HUMIDITY) {
				res = append(res, newSensor(entity.Humidity))
			}
			if lo.Contains(types, ngenic.POWER_KW) {
				res = append(res, newSensor(entity.Power))
			}
			if lo.Contains(types, ngenic.ENERGY_KWH) {
				energy := newSensor(entity.Energy)
				res = append(res, energy)

				if i.opts.CreateCurrentMonthSensor {
					res = append(res, newSensor(entity.EnergyMonth))
				}
				if i.opts.CreatePreviousMonthSensor {
					res = append(res, newSensor(entity.EnergyLastMonth))
				}
				if i.opts.CreateUtilityMeters {
					for _, cycle := range period.Cycles {
						res = append(res, entity.NewUtilityMeter(energy, cycle))
					}
				}
			}
		}
	}

	return res, nil
}

// SetActiveControl enables or disables active control of a room
func (i *Integration) SetActiveControl(ctx context.Context, roomUuid string, active bool) error {
	if _, err := uuid.Parse(roomUuid); err != nil {
		return fmt.Errorf("invalid room uuid %q: %w", roomUuid, err)
	}

	tunes, err := i.conn.Tunes(ctx)
	if err != nil {
		return err
	}

	for _, tune := range tunes {
		rooms, err := i.conn.Rooms(ctx, tune.Uuid)
		if err != nil {
			return err
		}

		for _, room := range rooms {
			if room.Uuid != roomUuid {
				continue
			}

			room.ActiveControl = active
			i.log.DEBUG.Printf("room: %+v", room)

			if err := i.conn.UpdateRoom(ctx, tune.Uuid, room); err != nil {
				return err
			}

			i.invalidate(roomUuid)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrRoomNotFound, roomUuid)
}

// invalidate drops cached copies of a room written by a service
func (i *Integration) invalidate(roomUuid string) {
	for _, e := range i.Entities() {
		if c, ok := e.(*entity.Climate); ok && c.RoomUuid() == roomUuid {
			c.Invalidate()
		}
	}
}
