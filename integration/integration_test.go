package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andig/ngenic/config"
	"github.com/andig/ngenic/entity"
	"github.com/andig/ngenic/ngenic"
	"github.com/evcc-io/evcc/api"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tuneUuid    = "0b1f7d6a-3d3b-4b6e-9d7a-0a6a1c1e2f01"
	kitchenUuid = "5c0a5f62-2a8e-4a4e-8f59-2b2a4c6c7d02"
	bedroomUuid = "6d1b6f73-3b9f-4b5f-9f6a-3c3b5d7d8e03"
	sensorUuid  = "sensor-node"
	bedNodeUuid = "bedroom-node"
	ctrlUuid    = "controller-node"
)

type fakeAPI struct {
	mu      sync.Mutex
	tune    ngenic.Tune
	rooms   []ngenic.Room
	nodes   []ngenic.Node
	types   map[string][]ngenic.MeasurementType
	err     error
	updated []ngenic.Room
	closed  bool
}

func newFakeAPI() *fakeAPI {
	rooms := []ngenic.Room{
		{Uuid: kitchenUuid, Name: "Kitchen", NodeUuid: sensorUuid, TargetTemperature: 21, ActiveControl: true},
		{Uuid: bedroomUuid, Name: "Bedroom", NodeUuid: bedNodeUuid, TargetTemperature: 18},
	}

	return &fakeAPI{
		tune:  ngenic.Tune{Uuid: tuneUuid, Name: "Home", TuneName: "My Tune", Rooms: rooms},
		rooms: rooms,
		nodes: []ngenic.Node{
			{Uuid: sensorUuid, Type: ngenic.NodeTypeSensor},
			{Uuid: bedNodeUuid, Type: ngenic.NodeTypeSensor},
			{Uuid: ctrlUuid, Type: ngenic.NodeTypeController},
			{Uuid: "gateway", Type: ngenic.NodeTypeGateway},
		},
		types: map[string][]ngenic.MeasurementType{
			sensorUuid:  {ngenic.TEMPERATURE, ngenic.HUMIDITY},
			bedNodeUuid: {ngenic.TEMPERATURE},
			ctrlUuid:    {ngenic.TEMPERATURE, ngenic.CONTROL_VALUE, ngenic.POWER_KW, ngenic.ENERGY_KWH},
		},
	}
}

func (f *fakeAPI) Tunes(context.Context) ([]ngenic.Tune, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := f.tune
	t.Rooms = nil
	return []ngenic.Tune{t}, nil
}

func (f *fakeAPI) Tune(context.Context, string) (ngenic.Tune, error) {
	return f.tune, f.err
}

func (f *fakeAPI) Rooms(context.Context, string) ([]ngenic.Room, error) {
	return f.rooms, f.err
}

func (f *fakeAPI) Room(_ context.Context, _, roomUuid string) (ngenic.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.Uuid == roomUuid {
			return r, nil
		}
	}
	return ngenic.Room{}, errors.New("not found")
}

func (f *fakeAPI) UpdateRoom(_ context.Context, _ string, room ngenic.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, room)
	return nil
}

func (f *fakeAPI) Nodes(context.Context, string) ([]ngenic.Node, error) {
	return f.nodes, f.err
}

func (f *fakeAPI) Node(_ context.Context, _, nodeUuid string) (ngenic.Node, error) {
	n, ok := lo.Find(f.nodes, func(n ngenic.Node) bool { return n.Uuid == nodeUuid })
	if !ok {
		return n, errors.New("not found")
	}
	return n, nil
}

func (f *fakeAPI) MeasurementTypes(_ context.Context, _, nodeUuid string) ([]ngenic.MeasurementType, error) {
	return f.types[nodeUuid], nil
}

func (f *fakeAPI) LatestMeasurement(_ context.Context, _, _ string, typ ngenic.MeasurementType) (ngenic.Measurement, error) {
	return ngenic.Measurement{Value: 1.5, Type: typ}, nil
}

func (f *fakeAPI) Measurements(context.Context, string, string, ngenic.MeasurementType, string, string, string) ([]ngenic.Measurement, error) {
	return nil, api.ErrNotAvailable
}

func (f *fakeAPI) Close() {
	f.closed = true
}

type fakeTracker struct {
	mu   sync.Mutex
	jobs map[string]time.Duration
}

func (t *fakeTracker) Track(name string, interval time.Duration, _ func(context.Context)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.jobs == nil {
		t.jobs = make(map[string]time.Duration)
	}
	t.jobs[name] = interval
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.jobs, name)
	}, nil
}

type fakeHost struct {
	mu       sync.Mutex
	added    []entity.Entity
	removed  []entity.Entity
	notified []string
}

func (h *fakeHost) Notify(e entity.Entity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notified = append(h.notified, e.UniqueID())
}

func (h *fakeHost) Add(entities ...entity.Entity) error {
	h.added = append(h.added, entities...)
	return nil
}

func (h *fakeHost) Remove(entities ...entity.Entity) {
	h.removed = append(h.removed, entities...)
}

func uids(entities []entity.Entity) []string {
	return lo.Map(entities, func(e entity.Entity, _ int) string { return e.UniqueID() })
}

func TestSetup(t *testing.T) {
	conn := newFakeAPI()
	tracker := new(fakeTracker)
	host := new(fakeHost)

	i := New("entry-1", "My Tune", conn, config.DefaultOptions(), tracker, host, time.UTC)
	require.NoError(t, i.Setup(context.Background()))

	assert.ElementsMatch(t, []string{
		sensorUuid + "-climate",
		sensorUuid + "-TEMPERATURE-sensor",
		sensorUuid + "-HUMIDITY-sensor",
		bedNodeUuid + "-TEMPERATURE-sensor",
		ctrlUuid + "-TEMPERATURE-sensor",
		ctrlUuid + "-CONTROL_VALUE-sensor",
		ctrlUuid + "-POWER_KW-sensor",
		ctrlUuid + "-ENERGY_KWH-sensor",
		ctrlUuid + "-ENERGY_KWH-sensor-month",
		ctrlUuid + "-ENERGY_KWH-sensor-last-month",
	}, uids(host.added))

	assert.Len(t, tracker.jobs, len(host.added))
	assert.Equal(t, time.Minute, tracker.jobs[ctrlUuid+"-POWER_KW-sensor"])
	assert.Equal(t, time.Hour, tracker.jobs[ctrlUuid+"-ENERGY_KWH-sensor-last-month"])

	// initial update ran silently
	for _, e := range host.added {
		assert.True(t, e.Available(), e.UniqueID())
	}
	assert.Empty(t, host.notified)

	// entities are attached to the host
	climate, ok := i.Entity(sensorUuid + "-climate")
	require.True(t, ok)
	require.NoError(t, climate.(*entity.Climate).SetTemperature(context.Background(), 22))
	assert.Equal(t, []string{sensorUuid + "-climate"}, host.notified)

	kitchen, ok := i.Entity(sensorUuid + "-TEMPERATURE-sensor")
	require.True(t, ok)
	assert.Equal(t, "Ngenic sensor Kitchen temperature", kitchen.Name())
	assert.Equal(t, kitchenUuid, kitchen.Attributes()["room_uuid"])

	ctrl, ok := i.Entity(ctrlUuid + "-CONTROL_VALUE-sensor")
	require.True(t, ok)
	assert.Equal(t, "Ngenic controller control temperature", ctrl.Name())
	assert.NotContains(t, ctrl.Attributes(), "room_uuid")

	i.Unload()
	assert.Empty(t, tracker.jobs)
	assert.Len(t, host.removed, len(host.added))
	assert.True(t, conn.closed)
	assert.Empty(t, i.Entities())
}

func TestSetupRoomToControlTakesPrecedence(t *testing.T) {
	conn := newFakeAPI()
	conn.tune.RoomToControlUuid = bedroomUuid

	host := new(fakeHost)
	i := New("entry-1", "My Tune", conn, config.DefaultOptions(), new(fakeTracker), host, time.UTC)
	require.NoError(t, i.Setup(context.Background()))

	climates := lo.Filter(host.added, func(e entity.Entity, _ int) bool { return e.Platform() == entity.PlatformClimate })
	require.Len(t, climates, 1)
	assert.Equal(t, bedNodeUuid+"-climate", climates[0].UniqueID())
}

func TestSetupOptions(t *testing.T) {
	opts := config.Options{CreateUtilityMeters: true}

	host := new(fakeHost)
	i := New("entry-1", "My Tune", newFakeAPI(), opts, new(fakeTracker), host, time.UTC)
	require.NoError(t, i.Setup(context.Background()))

	ids := uids(host.added)
	assert.NotContains(t, ids, ctrlUuid+"-ENERGY_KWH-sensor-month")
	assert.NotContains(t, ids, ctrlUuid+"-ENERGY_KWH-sensor-last-month")

	for _, cycle := range []string{"hourly", "daily", "monthly", "yearly"} {
		assert.Contains(t, ids, ctrlUuid+"-ENERGY_KWH-sensor-"+cycle+"-utility-meter")
	}
}

func TestSetupFails(t *testing.T) {
	conn := newFakeAPI()
	conn.err = errors.New("offline")

	host := new(fakeHost)
	i := New("entry-1", "My Tune", conn, config.DefaultOptions(), new(fakeTracker), host, time.UTC)
	assert.Error(t, i.Setup(context.Background()))
	assert.Empty(t, host.added)
}

func TestSetActiveControl(t *testing.T) {
	conn := newFakeAPI()
	i := New("entry-1", "My Tune", conn, config.DefaultOptions(), new(fakeTracker), new(fakeHost), time.UTC)

	require.NoError(t, i.SetActiveControl(context.Background(), bedroomUuid, true))
	require.Len(t, conn.updated, 1)
	assert.Equal(t, bedroomUuid, conn.updated[0].Uuid)
	assert.True(t, conn.updated[0].ActiveControl)
	assert.Equal(t, "Bedroom", conn.updated[0].Name)

	err := i.SetActiveControl(context.Background(), "8e2b9c1d-7f3a-4c5b-a6d7-1e2f3a4b5c03", false)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	assert.Error(t, i.SetActiveControl(context.Background(), "kitchen", false))
	assert.Len(t, conn.updated, 1)
}

func TestRegistry(t *testing.T) {
	first, second := newFakeAPI(), newFakeAPI()
	second.rooms = append(second.rooms, ngenic.Room{Uuid: "9f3c1a2b-4d5e-4f60-8a7b-6c5d4e3f2a10", Name: "Cabin"})

	var r Registry
	hosts := Hosts{new(fakeHost), new(fakeHost)}
	tracker := new(fakeTracker)

	// same title and same node uuids, jobs must not collide
	for id, conn := range map[string]*fakeAPI{"first": first, "second": second} {
		i := New(id, "My Tune", conn, config.DefaultOptions(), tracker, hosts, time.UTC)
		require.NoError(t, i.Setup(context.Background()))
		r.Add(i)
	}

	assert.Len(t, r.Entities(), 20)
	assert.Len(t, tracker.jobs, 20)
	assert.Len(t, hosts[1].(*fakeHost).added, 20)

	_, ok := r.Entity(ctrlUuid + "-POWER_KW-sensor")
	assert.True(t, ok)

	require.NoError(t, r.SetActiveControl(context.Background(), "9f3c1a2b-4d5e-4f60-8a7b-6c5d4e3f2a10", true))
	assert.Empty(t, first.updated)
	assert.Len(t, second.updated, 1)

	err := r.SetActiveControl(context.Background(), "8e2b9c1d-7f3a-4c5b-a6d7-1e2f3a4b5c03", true)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	r.Unload()
	assert.Empty(t, r.Entities())
	assert.Empty(t, tracker.jobs)
	assert.Len(t, hosts[0].(*fakeHost).removed, 20)
}
