package hass

import (
	"github.com/andig/ngenic/entity"
)

const manufacturer = "Ngenic"

// Device groups entities in the host's device registry
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer"`
}

type Availability struct {
	Topic string `json:"topic"`
}

// Config is the discovery document of an entity
type Config struct {
	Name                string         `json:"name"`
	UniqueID            string         `json:"unique_id"`
	ObjectID            string         `json:"object_id"`
	Device              Device         `json:"device"`
	Availability        []Availability `json:"availability"`
	AvailabilityMode    string         `json:"availability_mode"`
	JSONAttributesTopic string         `json:"json_attributes_topic"`

	// sensor
	StateTopic        string `json:"state_topic,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`

	// climate
	Modes                   []string `json:"modes,omitempty"`
	ModeStateTopic          string   `json:"mode_state_topic,omitempty"`
	CurrentTemperatureTopic string   `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTmpl  string   `json:"current_temperature_template,omitempty"`
	TemperatureStateTopic   string   `json:"temperature_state_topic,omitempty"`
	TemperatureStateTmpl    string   `json:"temperature_state_template,omitempty"`
	TemperatureCommandTopic string   `json:"temperature_command_topic,omitempty"`
	TemperatureUnit         string   `json:"temperature_unit,omitempty"`
	Precision               float64  `json:"precision,omitempty"`
	TempStep                float64  `json:"temp_step,omitempty"`
	MinTemp                 float64  `json:"min_temp,omitempty"`
	MaxTemp                 float64  `json:"max_temp,omitempty"`
}

// measured is implemented by sensor like entities
type measured interface {
	Unit() string
	DeviceClass() string
	StateClass() string
}

// Discovery builds the discovery document of e
func (p *Publisher) Discovery(e entity.Entity) Config {
	uid := e.UniqueID()
	dev := e.Device()

	res := Config{
		Name:     e.Name(),
		UniqueID: uid,
		ObjectID: uid,
		Device: Device{
			Identifiers:  []string{dev.ID},
			Name:         dev.Name,
			Model:        dev.Model,
			Manufacturer: manufacturer,
		},
		Availability: []Availability{
			{Topic: p.statusTopic()},
			{Topic: p.topic(uid, "availability")},
		},
		AvailabilityMode:    "all",
		JSONAttributesTopic: p.topic(uid, "attributes"),
	}

	switch e := e.(type) {
	case *entity.Climate:
		res.Modes = e.HVACModes()
		res.ModeStateTopic = p.topic(uid, "state")
		res.CurrentTemperatureTopic = res.JSONAttributesTopic
		res.CurrentTemperatureTmpl = "{{ value_json.current_temperature }}"
		res.TemperatureStateTopic = res.JSONAttributesTopic
		res.TemperatureStateTmpl = "{{ value_json.temperature }}"
		res.TemperatureCommandTopic = p.topic(uid, "target", "set")
		res.TemperatureUnit = "C"
		res.Precision = 0.1
		res.TempStep = entity.TemperatureStep
		res.MinTemp = entity.MinTemperature
		res.MaxTemp = entity.MaxTemperature

	case measured:
		res.StateTopic = p.topic(uid, "state")
		res.UnitOfMeasurement = e.Unit()
		res.DeviceClass = e.DeviceClass()
		res.StateClass = e.StateClass()
	}

	return res
}
