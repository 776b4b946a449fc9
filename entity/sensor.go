package entity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/andig/ngenic/ngenic"
	"github.com/andig/ngenic/period"
	"github.com/evcc-io/evcc/util"
)

const (
	DeviceClassTemperature = "temperature"
	DeviceClassHumidity    = "humidity"
	DeviceClassPower       = "power"
	DeviceClassEnergy      = "energy"

	StateClassMeasurement     = "measurement"
	StateClassTotalIncreasing = "total_increasing"
)

// Kind describes a sensor flavour
type Kind struct {
	Type        ngenic.MeasurementType
	Label       string
	Unit        string
	DeviceClass string
	StateClass  string
	Interval    time.Duration
	IDSuffix    string
	// Window selects the query range, nil queries the latest measurement
	Window func(time.Time) period.Window
}

var (
	Temperature = Kind{
		Type:        ngenic.TEMPERATURE,
		Label:       "temperature",
		Unit:        "°C",
		DeviceClass: DeviceClassTemperature,
		StateClass:  StateClassMeasurement,
		Interval:    5 * time.Minute,
	}
	ControlValue = Kind{
		Type:        ngenic.CONTROL_VALUE,
		Label:       "control temperature",
		Unit:        "°C",
		DeviceClass: DeviceClassTemperature,
		StateClass:  StateClassMeasurement,
		Interval:    5 * time.Minute,
	}
	Humidity = Kind{
		Type:        ngenic.HUMIDITY,
		Label:       "humidity",
		Unit:        "%",
		DeviceClass: DeviceClassHumidity,
		StateClass:  StateClassMeasurement,
		Interval:    5 * time.Minute,
	}
	Power = Kind{
		Type:        ngenic.POWER_KW,
		Label:       "power",
		Unit:        "W",
		DeviceClass: DeviceClassPower,
		StateClass:  StateClassMeasurement,
		Interval:    time.Minute,
	}
	Energy = Kind{
		Type:        ngenic.ENERGY_KWH,
		Label:       "energy",
		Unit:        "kWh",
		DeviceClass: DeviceClassEnergy,
		StateClass:  StateClassTotalIncreasing,
		Interval:    10 * time.Minute,
		Window:      period.Today,
	}
	EnergyMonth = Kind{
		Type:        ngenic.ENERGY_KWH,
		Label:       "monthly energy",
		Unit:        "kWh",
		DeviceClass: DeviceClassEnergy,
		Interval:    20 * time.Minute,
		IDSuffix:    "-month",
		Window:      period.ThisMonth,
	}
	EnergyLastMonth = Kind{
		Type:        ngenic.ENERGY_KWH,
		Label:       "last month energy",
		Unit:        "kWh",
		DeviceClass: DeviceClassEnergy,
		Interval:    time.Hour,
		IDSuffix:    "-last-month",
		Window:      period.LastMonth,
	}
)

// Sensor polls one measurement type of one node
type Sensor struct {
	base
	conn       API
	tuneUuid   string
	nodeUuid   string
	kind       Kind
	loc        *time.Location
	now        func() time.Time
	attributes map[string]any
	value      *float64
	listeners  []func(float64)
}

// SensorOption configures a sensor
type SensorOption func(*Sensor)

// WithClock sets the clock and zone windows are computed in
func WithClock(now func() time.Time, loc *time.Location) SensorOption {
	return func(s *Sensor) {
		s.now = now
		s.loc = loc
	}
}

// WithRoom records the room the node is placed in
func WithRoom(roomUuid string) SensorOption {
	return func(s *Sensor) {
		s.attributes["room_uuid"] = roomUuid
	}
}

// NewSensor creates a sensor named after the node
func NewSensor(conn API, tuneUuid string, node ngenic.Node, nodeName string, kind Kind, opts ...SensorOption) *Sensor {
	s := &Sensor{
		base: base{
			log:      util.NewLogger("sensor"),
			uid:      fmt.Sprintf("%s-%s-sensor%s", node.Uuid, kind.Type.Name(), kind.IDSuffix),
			name:     nodeName + " " + kind.Label,
			interval: kind.Interval,
			device: Device{
				ID:    node.Uuid,
				Name:  nodeName,
				Model: node.Type.String(),
			},
		},
		conn:       conn,
		tuneUuid:   tuneUuid,
		nodeUuid:   node.Uuid,
		kind:       kind,
		loc:        time.Local,
		now:        time.Now,
		attributes: make(map[string]any),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

func (s *Sensor) Platform() Platform {
	return PlatformSensor
}

func (s *Sensor) Kind() Kind {
	return s.kind
}

func (s *Sensor) Unit() string {
	return s.kind.Unit
}

func (s *Sensor) DeviceClass() string {
	return s.kind.DeviceClass
}

func (s *Sensor) StateClass() string {
	return s.kind.StateClass
}

// Value returns the last known value
func (s *Sensor) Value() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.value == nil {
		return 0, false
	}
	return *s.value, true
}

func (s *Sensor) State() string {
	if v, ok := s.Value(); ok {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func (s *Sensor) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make(map[string]any, len(s.attributes))
	for k, v := range s.attributes {
		res[k] = v
	}
	return res
}

// OnChange registers a callback invoked with each changed value
func (s *Sensor) OnChange(fn func(float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// fetch returns the value formatted as the host displays it
func (s *Sensor) fetch(ctx context.Context) (float64, error) {
	var window *period.Window
	if s.kind.Window != nil {
		w := s.kind.Window(s.now().In(s.loc))
		window = &w
	}

	v, err := measurementValue(ctx, s.conn, s.log, s.tuneUuid, s.nodeUuid, s.kind.Type, window)
	if err != nil {
		return 0, err
	}

	if v, err = convert(v, s.kind.Type.Unit(), s.kind.Unit); err != nil {
		return 0, err
	}

	return round(v), nil
}

func (s *Sensor) Update(ctx context.Context) {
	s.log.DEBUG.Printf("fetch measurement (name=%s, type=%s)", s.name, s.kind.Type)

	v, err := s.fetch(ctx)
	if err != nil {
		s.log.ERROR.Printf("failed to update sensor '%s': %v", s.uid, err)
		if s.unavailable() {
			s.notify(s)
		}
		return
	}

	s.mu.Lock()
	changed := s.value == nil || *s.value != v
	wasAvailable := s.available
	s.available = true
	if changed {
		s.value = &v
	}
	listeners := s.listeners
	s.mu.Unlock()

	if !changed {
		s.log.DEBUG.Printf("no new measurement (old=%.1f, name=%s, type=%s)", v, s.name, s.kind.Type)
		if !wasAvailable {
			s.notify(s)
		}
		return
	}

	s.log.DEBUG.Printf("new measurement: %.1f (name=%s, type=%s)", v, s.name, s.kind.Type)
	for _, fn := range listeners {
		fn(v)
	}
	s.notify(s)
}
