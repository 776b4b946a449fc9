package entity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/andig/ngenic/period"
	"github.com/evcc-io/evcc/util"
)

// UtilityMeter accumulates the consumption of a total_increasing sensor per
// cycle. A decreasing source value is taken as a meter reset.
type UtilityMeter struct {
	base
	source *Sensor
	cycle  period.Cycle
	loc    *time.Location
	now    func() time.Time
	window period.Window
	last   *float64
	total  float64
	seeded bool
}

// NewUtilityMeter creates a meter fed by source
func NewUtilityMeter(source *Sensor, cycle period.Cycle) *UtilityMeter {
	m := &UtilityMeter{
		base: base{
			log:      util.NewLogger("meter"),
			uid:      fmt.Sprintf("%s-%s-utility-meter", source.UniqueID(), cycle),
			name:     fmt.Sprintf("%s %s %s", source.Device().Name, cycle, source.Kind().Label),
			device:   source.Device(),
			interval: time.Minute,
		},
		source: source,
		cycle:  cycle,
		loc:    source.loc,
		now:    source.now,
	}

	m.window = cycle.Window(m.now().In(m.loc))
	source.OnChange(m.Observe)

	return m
}

func (m *UtilityMeter) Platform() Platform {
	return PlatformSensor
}

func (m *UtilityMeter) Unit() string {
	return m.source.Unit()
}

func (m *UtilityMeter) DeviceClass() string {
	return m.source.DeviceClass()
}

func (m *UtilityMeter) StateClass() string {
	return StateClassTotalIncreasing
}

// Value returns the consumption of the current cycle
func (m *UtilityMeter) Value() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return round(m.total), m.available
}

func (m *UtilityMeter) State() string {
	if v, ok := m.Value(); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (m *UtilityMeter) Attributes() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, _ := m.window.Format()
	return map[string]any{
		"source":     m.source.UniqueID(),
		"meter_type": string(m.cycle),
		"last_reset": from,
	}
}

// rollover starts a new cycle once now left the current window. The new
// cycle is seeded from the API on the next Update. Must be called with the
// lock held.
func (m *UtilityMeter) rollover(now time.Time) bool {
	if m.window.Contains(now) {
		return false
	}
	m.window = m.cycle.Window(now)
	m.total = 0
	m.seeded = false
	return true
}

// Observe feeds a new source reading
func (m *UtilityMeter) Observe(value float64) {
	now := m.now().In(m.loc)

	m.mu.Lock()
	rolled := m.rollover(now)
	var delta float64
	if m.last != nil {
		if delta = value - *m.last; delta < 0 {
			delta = value
		}
	}
	m.last = &value
	m.total += delta
	changed := rolled || !m.available || delta != 0
	m.available = true
	m.mu.Unlock()

	if changed {
		m.notify(m)
	}
}

// Update rolls the meter over when the cycle ended and seeds the cycle with
// the consumption the API reports for it
func (m *UtilityMeter) Update(ctx context.Context) {
	now := m.now().In(m.loc)

	m.mu.Lock()
	rolled := m.rollover(now)
	window, seeded := m.window, m.seeded
	m.mu.Unlock()

	if rolled {
		m.log.DEBUG.Printf("%s reset at %s", m.name, window)
	}

	changed := rolled
	if !seeded && m.seed(ctx, window) {
		changed = true
	}

	if changed {
		m.notify(m)
	}
}

// seed raises the total to the consumption the API reports for window. It
// returns true if the visible state changed.
func (m *UtilityMeter) seed(ctx context.Context, window period.Window) bool {
	src := m.source

	v, err := measurementValue(ctx, src.conn, m.log, src.tuneUuid, src.nodeUuid, src.kind.Type, &window)
	if err == nil {
		v, err = convert(v, src.kind.Type.Unit(), src.kind.Unit)
	}
	if err != nil {
		m.log.ERROR.Printf("failed to seed '%s': %v", m.uid, err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// rolled over meanwhile
	if !m.window.From.Equal(window.From) {
		return false
	}

	m.seeded = true
	if v <= m.total {
		return false
	}

	m.total = v
	return m.available
}
