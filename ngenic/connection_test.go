package ngenic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evcc-io/evcc/api"
	"github.com/evcc-io/evcc/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tuneUuid = "0b1f7d6a-3d3b-4b6e-9d7a-0a6a1c1e2f01"
	roomUuid = "5c0a5f62-2a8e-4a4e-8f59-2b2a4c6c7d02"
	nodeUuid = "8e2b9c1d-7f3a-4c5b-a6d7-1e2f3a4b5c03"
)

func newTestConnection(t *testing.T, handler http.HandlerFunc) *Connection {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewConnection(util.NewLogger("test"), TokenSource("secret"), srv.URL)
}

func TestTunesSendsBearerToken(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/tunes", r.URL.Path)
		_, _ = io.WriteString(w, `[{"uuid":"`+tuneUuid+`","name":"Home","tuneName":"My Tune"}]`)
	})

	tunes, err := conn.Tunes(context.Background())
	require.NoError(t, err)
	require.Len(t, tunes, 1)
	assert.Equal(t, "My Tune", tunes[0].TuneName)
}

func TestUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		_, err := conn.Tunes(context.Background())
		assert.ErrorIs(t, err, ErrUnauthorized, status)

		err = conn.UpdateRoom(context.Background(), tuneUuid, Room{Uuid: roomUuid})
		assert.ErrorIs(t, err, ErrUnauthorized, status)

		_, err = conn.LatestMeasurement(context.Background(), tuneUuid, nodeUuid, TEMPERATURE)
		assert.ErrorIs(t, err, ErrUnauthorized, status)
	}
}

func TestServerErrorIsNotUnauthorized(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := conn.Tunes(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestTuneWithRooms(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tunes/"+tuneUuid, r.URL.Path)
		_, _ = io.WriteString(w, `{"uuid":"`+tuneUuid+`","name":"Home","roomToControlUuid":"`+roomUuid+`",
			"rooms":[{"uuid":"`+roomUuid+`","name":"Kitchen","nodeUuid":"`+nodeUuid+`","targetTemperature":21.5,"activeControl":true}]}`)
	})

	tune, err := conn.Tune(context.Background(), tuneUuid)
	require.NoError(t, err)
	assert.Equal(t, roomUuid, tune.RoomToControlUuid)
	require.Len(t, tune.Rooms, 1)
	assert.Equal(t, 21.5, tune.Rooms[0].TargetTemperature)
	assert.True(t, tune.Rooms[0].ActiveControl)
}

func TestUpdateRoom(t *testing.T) {
	var got Room
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tunes/"+tuneUuid+"/rooms/"+roomUuid, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	room := Room{Uuid: roomUuid, Name: "Kitchen", TargetTemperature: 22}
	require.NoError(t, conn.UpdateRoom(context.Background(), tuneUuid, room))
	assert.Equal(t, room, got)
}

func TestNodesAndTypes(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tunes/" + tuneUuid + "/gateway/nodes":
			_, _ = io.WriteString(w, `[{"uuid":"`+nodeUuid+`","type":0},{"uuid":"x","type":1}]`)
		case "/tunes/" + tuneUuid + "/measurements/" + nodeUuid + "/types":
			_, _ = io.WriteString(w, `["temperature_C","humidity_relative_percent"]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	nodes, err := conn.Nodes(context.Background(), tuneUuid)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, NodeTypeSensor, nodes[0].Type)
	assert.Equal(t, "controller", nodes[1].Type.String())

	types, err := conn.MeasurementTypes(context.Background(), tuneUuid, nodeUuid)
	require.NoError(t, err)
	assert.Equal(t, []MeasurementType{TEMPERATURE, HUMIDITY}, types)
}

func TestLatestMeasurement(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tunes/"+tuneUuid+"/measurements/"+nodeUuid+"/latest", r.URL.Path)
		assert.Equal(t, "temperature_C", r.URL.Query().Get("type"))
		_, _ = io.WriteString(w, `{"time":"2024-03-01T10:00:00Z","value":21.37,"type":"temperature_C"}`)
	})

	m, err := conn.LatestMeasurement(context.Background(), tuneUuid, nodeUuid, TEMPERATURE)
	require.NoError(t, err)
	assert.Equal(t, 21.37, m.Value)
}

func TestLatestMeasurementNoContent(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := conn.LatestMeasurement(context.Background(), tuneUuid, nodeUuid, HUMIDITY)
	assert.ErrorIs(t, err, api.ErrNotAvailable)
}

func TestMeasurementsRange(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "energy_kWH", q.Get("type"))
		assert.Equal(t, "2024-03-01T00:00:00 Europe/Stockholm", q.Get("from"))
		assert.Equal(t, "2024-04-01T00:00:00 Europe/Stockholm", q.Get("to"))
		assert.False(t, q.Has("period"))
		_, _ = io.WriteString(w, `[{"value":1.5},{"value":12.25}]`)
	})

	res, err := conn.Measurements(context.Background(), tuneUuid, nodeUuid, ENERGY_KWH,
		"2024-03-01T00:00:00 Europe/Stockholm", "2024-04-01T00:00:00 Europe/Stockholm", "")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 12.25, res[1].Value)
}

func TestMeasurementsSingleObject(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "P1D", r.URL.Query().Get("period"))
		_, _ = io.WriteString(w, `{"value":3.2}`)
	})

	res, err := conn.Measurements(context.Background(), tuneUuid, nodeUuid, ENERGY_KWH, "a", "b", "P1D")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 3.2, res[0].Value)
}

func TestMeasurementsEmpty(t *testing.T) {
	conn := newTestConnection(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := conn.Measurements(context.Background(), tuneUuid, nodeUuid, ENERGY_KWH, "a", "b", "")
	assert.ErrorIs(t, err, api.ErrNotAvailable)
}

func TestMeasurementTypeNames(t *testing.T) {
	assert.Equal(t, "ENERGY_KWH", ENERGY_KWH.Name())
	assert.Equal(t, "kW", POWER_KW.Unit())
	assert.Equal(t, "FOO_BAR", MeasurementType("foo_bar").Name())
}
