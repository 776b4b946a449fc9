package entity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/andig/ngenic/ngenic"
	"github.com/evcc-io/evcc/provider"
	"github.com/evcc-io/evcc/util"
)

const (
	HVACModeHeat = "heat"

	// target temperature range accepted by the thermostat
	MinTemperature  = 5.0
	MaxTemperature  = 30.0
	TemperatureStep = 0.5

	// room snapshots are shared between polling and target changes
	roomCacheDuration = 30 * time.Second
)

// ErrInvalidTemperature is returned for targets outside the thermostat range
var ErrInvalidTemperature = errors.New("invalid temperature")

// Climate is the thermostat of a Tune. Its current temperature comes from the
// node of the control room, its target from the control room itself.
type Climate struct {
	base
	conn      API
	tuneUuid  string
	roomUuid  string
	nodeUuid  string
	roomMu    sync.Mutex
	roomCtx   context.Context // context of the Get in progress
	roomCache provider.Cacheable[ngenic.Room]
	current   *float64
	target    *float64
}

// NewClimate creates the climate entity of a tune controlled by room
func NewClimate(conn API, tune ngenic.Tune, room ngenic.Room, node ngenic.Node) *Climate {
	c := &Climate{
		base: base{
			log:      util.NewLogger("climate"),
			uid:      fmt.Sprintf("%s-climate", node.Uuid),
			name:     fmt.Sprintf("Ngenic Tune %s", tune.Name),
			interval: 5 * time.Minute,
			device: Device{
				ID:    node.Uuid,
				Name:  fmt.Sprintf("Ngenic %s %s", node.Type, room.Name),
				Model: node.Type.String(),
			},
		},
		conn:     conn,
		tuneUuid: tune.Uuid,
		roomUuid: room.Uuid,
		nodeUuid: node.Uuid,
	}

	c.roomCache = provider.ResettableCached(func() (ngenic.Room, error) {
		return conn.Room(c.roomCtx, c.tuneUuid, c.roomUuid)
	}, roomCacheDuration)

	return c
}

// room returns the control room, fetching it within ctx when the cache is stale
func (c *Climate) room(ctx context.Context) (ngenic.Room, error) {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()

	c.roomCtx = ctx
	defer func() { c.roomCtx = nil }()

	return c.roomCache.Get()
}

func (c *Climate) Platform() Platform {
	return PlatformClimate
}

func (c *Climate) RoomUuid() string {
	return c.roomUuid
}

func (c *Climate) Unit() string {
	return "°C"
}

func (c *Climate) HVACMode() string {
	return HVACModeHeat
}

func (c *Climate) HVACModes() []string {
	return []string{HVACModeHeat}
}

// CurrentTemperature returns the last known room temperature
func (c *Climate) CurrentTemperature() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return 0, false
	}
	return *c.current, true
}

// TargetTemperature returns the last known target temperature
func (c *Climate) TargetTemperature() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.target == nil {
		return 0, false
	}
	return *c.target, true
}

// State is the hvac mode, the only mode a Tune supports
func (c *Climate) State() string {
	return HVACModeHeat
}

func (c *Climate) Attributes() map[string]any {
	res := map[string]any{
		"room_uuid": c.roomUuid,
	}
	if v, ok := c.CurrentTemperature(); ok {
		res["current_temperature"] = v
	}
	if v, ok := c.TargetTemperature(); ok {
		res["temperature"] = v
	}
	return res
}

func (c *Climate) Update(ctx context.Context) {
	current, err := c.conn.LatestMeasurement(ctx, c.tuneUuid, c.nodeUuid, ngenic.TEMPERATURE)
	if err == nil {
		var room ngenic.Room
		if room, err = c.room(ctx); err == nil {
			c.set(round(current.Value), round(room.TargetTemperature))
			return
		}
	}

	c.log.ERROR.Printf("failed to update climate '%s': %v", c.uid, err)
	if c.unavailable() {
		c.notify(c)
	}
}

func (c *Climate) set(current, target float64) {
	c.mu.Lock()
	changed := !c.available ||
		c.current == nil || *c.current != current ||
		c.target == nil || *c.target != target
	c.available = true
	c.current = &current
	c.target = &target
	c.mu.Unlock()

	if changed {
		c.log.DEBUG.Printf("new state: current=%.1f target=%.1f (name=%s)", current, target, c.name)
		c.notify(c)
	}
}

// SetTemperature writes a new target temperature to the control room
func (c *Climate) SetTemperature(ctx context.Context, temperature float64) error {
	if math.IsNaN(temperature) || temperature < MinTemperature || temperature > MaxTemperature {
		return fmt.Errorf("%w: %v, expected %v..%v", ErrInvalidTemperature, temperature, MinTemperature, MaxTemperature)
	}

	room, err := c.room(ctx)
	if err != nil {
		return err
	}

	room.TargetTemperature = temperature
	if err := c.conn.UpdateRoom(ctx, c.tuneUuid, room); err != nil {
		return err
	}
	c.roomCache.Reset()

	c.log.INFO.Printf("target temperature of %s set to %s", c.name, strconv.FormatFloat(temperature, 'f', -1, 64))

	c.mu.Lock()
	t := round(temperature)
	c.target = &t
	c.mu.Unlock()

	c.notify(c)
	return nil
}

// Invalidate drops the cached room, e.g. after it was modified elsewhere
func (c *Climate) Invalidate() {
	c.roomCache.Reset()
}
