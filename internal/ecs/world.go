// Package ecs implements the component-oriented world: typed component
// storage backed by github.com/mlange-42/ark, a name+dependency tick system
// DAG, pre/post-tick hooks and a deferred removal dispatcher. Entities carry
// a stable cross-machine ids.EntityID alongside ark's own archetype handle;
// internal/entityclass and internal/game attach concrete components through
// the slots registered here.
package ecs

import (
	"sort"
	"sync"

	"github.com/andersfylling/hooksmp/internal/component"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	arkecs "github.com/mlange-42/ark/ecs"
)

// System runs once per tick (or once pre/post tick) against the world.
type System func(w *World)

// World is the live, finalized simulation state for one side (server or a
// single client) of a match. Produced by Registry.Finalize; the system DAG,
// component slots and event registry are immutable from that point on.
type World struct {
	Ark arkecs.World

	Tick ids.TickNum
	Sink *event.Sink
	Events *event.Registry

	isServer bool

	mu       sync.RWMutex
	handles  map[ids.EntityID]arkecs.Entity
	reverse  map[arkecs.Entity]ids.EntityID
	owners   map[ids.EntityID]ids.PlayerID
	classes  map[ids.EntityID]ids.ClassID
	nextID   ids.EntityID

	removalQueue []ids.EntityID

	slots     []component.Type
	slotIndex map[string]int

	resources map[string]any

	systems        []System
	preTick        []System
	postTick       []func(*World, []event.Event)
	removalSystems []System
}

// IsServer reports whether this world allocates entity IDs (true) or waits
// for them to arrive in snapshots (false).
func (w *World) IsServer() bool { return w.isServer }

// HasEntity implements component.WorldLike.
func (w *World) HasEntity(id ids.EntityID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.handles[id]
	return ok
}

// Handle returns the ark entity bound to id.
func (w *World) Handle(id ids.EntityID) (arkecs.Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handles[id]
	return h, ok
}

// IDFor is Handle's inverse: the stable id bound to an ark entity, for
// systems that walk ark filters and need to report or remove by id.
func (w *World) IDFor(h arkecs.Entity) (ids.EntityID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.reverse[h]
	return id, ok
}

// Owner returns the owning player of id, or ids.InvalidPlayerID if world-owned
// or unknown.
func (w *World) Owner(id ids.EntityID) ids.PlayerID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.owners[id]
}

// Class returns the entity class of id.
func (w *World) Class(id ids.EntityID) (ids.ClassID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.classes[id]
	return c, ok
}

// NewEntity creates a bare ark entity with no components yet attached.
// Callers add concrete components through their own Map1/Map2 instances and
// then Bind the stable id to the returned handle.
func (w *World) NewEntity() arkecs.Entity {
	return w.Ark.NewEntity()
}

// AllocateEntityID hands out the next server-side identity. Panics on a
// client world: entity IDs are allocated only by the server.
func (w *World) AllocateEntityID() ids.EntityID {
	if !w.isServer {
		panic("ecs: AllocateEntityID called on a client world")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	return w.nextID
}

// Bind records the mapping from a stable id to its ark handle, owner and
// class. Called once by entity-class construction right after the ark
// entity itself is created.
func (w *World) Bind(id ids.EntityID, h arkecs.Entity, owner ids.PlayerID, class ids.ClassID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handles == nil {
		w.handles = make(map[ids.EntityID]arkecs.Entity)
	}
	if w.reverse == nil {
		w.reverse = make(map[arkecs.Entity]ids.EntityID)
	}
	w.handles[id] = h
	w.reverse[h] = id
	w.owners[id] = owner
	w.classes[id] = class
	if id > w.nextID {
		w.nextID = id
	}
}

// MarkRemoved queues id for removal at the next sweep.
func (w *World) MarkRemoved(id ids.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removalQueue = append(w.removalQueue, id)
}

// SweepRemovals runs the registered removal systems, then destroys every
// queued entity from both the ark world and the id bookkeeping maps. Called
// after every phase per the server and client tick sequences.
func (w *World) SweepRemovals() {
	w.mu.Lock()
	queue := w.removalQueue
	w.removalQueue = nil
	w.mu.Unlock()

	if len(queue) == 0 {
		return
	}
	for _, fn := range w.removalSystems {
		fn(w)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range queue {
		h, ok := w.handles[id]
		if !ok {
			continue
		}
		if w.Ark.Alive(h) {
			w.Ark.RemoveEntity(h)
		}
		delete(w.handles, id)
		delete(w.reverse, h)
		delete(w.owners, id)
		delete(w.classes, id)
	}
}

// EntityIDs returns every currently bound entity id in ascending order, the
// iteration order required for snapshot delta coding.
func (w *World) EntityIDs() []ids.EntityID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ids.EntityID, 0, len(w.handles))
	for id := range w.handles {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ComponentSlot looks up a registered component descriptor by name.
func (w *World) ComponentSlot(name string) (component.Type, bool) {
	idx, ok := w.slotIndex[name]
	if !ok {
		return component.Type{}, false
	}
	return w.slots[idx], true
}

// ComponentSlots returns every registered component descriptor, in
// registration order.
func (w *World) ComponentSlots() []component.Type {
	return w.slots
}

// Resource returns a previously-registered singleton value by key.
func (w *World) Resource(key string) (any, bool) {
	v, ok := w.resources[key]
	return v, ok
}

// RunPreTick executes registered pre-tick functions (e.g. entity spawning),
// sweeping removals afterwards.
func (w *World) RunPreTick() {
	for _, fn := range w.preTick {
		fn(w)
	}
	w.SweepRemovals()
}

// RunSystems executes the tick system DAG in dependency order, sweeping
// removals afterwards.
func (w *World) RunSystems() {
	for _, fn := range w.systems {
		fn(w)
	}
	w.SweepRemovals()
}

// RunPostTick delivers events to the registered post-tick event handlers,
// sweeping removals afterwards.
func (w *World) RunPostTick(events []event.Event) {
	for _, fn := range w.postTick {
		fn(w, events)
	}
	w.SweepRemovals()
}

// RegisterMap1 creates and returns an ark single-component map for T,
// anchored to this world's ark.World. internal/game builds its maps with
// arkecs.NewMap1 before Finalize instead, so this helper serves maps created
// after the World exists.
func RegisterMap1[T any](w *World) *arkecs.Map1[T] {
	return arkecs.NewMap1[T](&w.Ark)
}

// RegisterMap2 creates an ark two-component map anchored to this world.
func RegisterMap2[T1, T2 any](w *World) *arkecs.Map2[T1, T2] {
	return arkecs.NewMap2[T1, T2](&w.Ark)
}
