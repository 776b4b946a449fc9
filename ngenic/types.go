package ngenic

import "strings"

const (
	API_URL_BASE = "https://app.ngenic.se/api/v3"

	TUNES_URL             = "/tunes"
	TUNE_URL              = "/tunes/%s"
	ROOMS_URL             = "/tunes/%s/rooms"
	ROOM_URL              = "/tunes/%s/rooms/%s"
	NODES_URL             = "/tunes/%s/gateway/nodes"
	NODE_URL              = "/tunes/%s/gateway/nodes/%s"
	MEASUREMENTS_URL      = "/tunes/%s/measurements/%s"
	MEASUREMENT_TYPES_URL = "/tunes/%s/measurements/%s/types"
	LATEST_URL            = "/tunes/%s/measurements/%s/latest"
)

// NodeType is the kind of a Tune node
type NodeType int

const (
	NodeTypeUnknown    NodeType = -1
	NodeTypeSensor     NodeType = 0
	NodeTypeController NodeType = 1
	NodeTypeGateway    NodeType = 2
	NodeTypeInternal   NodeType = 3
	NodeTypeRouter     NodeType = 4
)

// String returns the lower case node type name
func (t NodeType) String() string {
	switch t {
	case NodeTypeSensor:
		return "sensor"
	case NodeTypeController:
		return "controller"
	case NodeTypeGateway:
		return "gateway"
	case NodeTypeInternal:
		return "internal"
	case NodeTypeRouter:
		return "router"
	default:
		return "unknown"
	}
}

// MeasurementType is the vendor identifier of a measurement kind
type MeasurementType string

const (
	TEMPERATURE        MeasurementType = "temperature_C"
	TARGET_TEMPERATURE MeasurementType = "target_temperature_C"
	HUMIDITY           MeasurementType = "humidity_relative_percent"
	CONTROL_VALUE      MeasurementType = "control_value_C"
	POWER_KW           MeasurementType = "power_kW"
	ENERGY_KWH         MeasurementType = "energy_kWH"
	PROCESS_VALUE      MeasurementType = "process_value_C"
	SETPOINT_VALUE     MeasurementType = "setpoint_value_C"
)

var measurementTypes = map[MeasurementType]struct {
	name string
	unit string
}{
	TEMPERATURE:        {"TEMPERATURE", "°C"},
	TARGET_TEMPERATURE: {"TARGET_TEMPERATURE", "°C"},
	HUMIDITY:           {"HUMIDITY", "%"},
	CONTROL_VALUE:      {"CONTROL_VALUE", "°C"},
	POWER_KW:           {"POWER_KW", "kW"},
	ENERGY_KWH:         {"ENERGY_KWH", "kWh"},
	PROCESS_VALUE:      {"PROCESS_VALUE", "°C"},
	SETPOINT_VALUE:     {"SETPOINT_VALUE", "°C"},
}

// Name returns the upper case identifier used in unique ids, e.g. ENERGY_KWH
func (t MeasurementType) Name() string {
	if mt, ok := measurementTypes[t]; ok {
		return mt.name
	}
	return strings.ToUpper(string(t))
}

// Unit returns the unit the API reports values in
func (t MeasurementType) Unit() string {
	return measurementTypes[t].unit
}

type Tune struct {
	Uuid              string `json:"uuid"`
	Name              string `json:"name"`
	TuneName          string `json:"tuneName"`
	RoomToControlUuid string `json:"roomToControlUuid,omitempty"`
	Rooms             []Room `json:"rooms,omitempty"`
}

type Room struct {
	Uuid              string  `json:"uuid"`
	Name              string  `json:"name"`
	NodeUuid          string  `json:"nodeUuid"`
	TargetTemperature float64 `json:"targetTemperature"`
	ActiveControl     bool    `json:"activeControl"`
}

type Node struct {
	Uuid string   `json:"uuid"`
	Type NodeType `json:"type"`
}

type Measurement struct {
	Time  string          `json:"time"`
	Value float64         `json:"value"`
	Type  MeasurementType `json:"type"`
}
