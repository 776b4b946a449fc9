package integration

import (
	"context"
	"errors"
	"sync"

	"github.com/andig/ngenic/entity"
	"github.com/samber/lo"
)

// Hosts fans entities out to several hosts
type Hosts []Host

func (h Hosts) Add(entities ...entity.Entity) error {
	for i, host := range h {
		if err := host.Add(entities...); err != nil {
			for _, added := range h[:i] {
				added.Remove(entities...)
			}
			return err
		}
	}
	return nil
}

func (h Hosts) Remove(entities ...entity.Entity) {
	for _, host := range h {
		host.Remove(entities...)
	}
}

func (h Hosts) Notify(e entity.Entity) {
	for _, host := range h {
		host.Notify(e)
	}
}

// Registry holds the set up entries
type Registry struct {
	mu           sync.RWMutex
	integrations []*Integration
}

func (r *Registry) Add(i *Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations = append(r.integrations, i)
}

// Unload unloads all entries
func (r *Registry) Unload() {
	r.mu.Lock()
	integrations := r.integrations
	r.integrations = nil
	r.mu.Unlock()

	for _, i := range integrations {
		i.Unload()
	}
}

func (r *Registry) list() []*Integration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Integration(nil), r.integrations...)
}

// Entities returns the entities of all entries
func (r *Registry) Entities() []entity.Entity {
	return lo.FlatMap(r.list(), func(i *Integration, _ int) []entity.Entity {
		return i.Entities()
	})
}

// Entity returns the entity with unique id uid
func (r *Registry) Entity(uid string) (entity.Entity, bool) {
	for _, i := range r.list() {
		if e, ok := i.Entity(uid); ok {
			return e, true
		}
	}
	return nil, false
}

// SetActiveControl calls the service on the entry owning the room
func (r *Registry) SetActiveControl(ctx context.Context, roomUuid string, active bool) error {
	err := ErrRoomNotFound
	for _, i := range r.list() {
		if err = i.SetActiveControl(ctx, roomUuid, active); !errors.Is(err, ErrRoomNotFound) {
			return err
		}
	}
	return err
}
