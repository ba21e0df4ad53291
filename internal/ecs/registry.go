package ecs

import (
	"fmt"

	"github.com/andersfylling/hooksmp/internal/component"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	arkecs "github.com/mlange-42/ark/ecs"
)

type sysEntry struct {
	name string
	deps []string
	fn   System
}

// Registry collects, before the match starts, everything a World needs:
// component types, resources, tick systems named with dependencies, pre-tick
// functions, post-tick event handlers and removal systems. Finalize produces
// an immutable World.
type Registry struct {
	events *event.Registry

	slots     []component.Type
	slotIndex map[string]int

	systems  []sysEntry
	preTick  []System
	postTick []func(*World, []event.Event)
	removal  []System

	resources map[string]any
}

// NewRegistry starts a registry that will classify events via evReg.
func NewRegistry(evReg *event.Registry) *Registry {
	return &Registry{
		events:    evReg,
		slotIndex: make(map[string]int),
		resources: make(map[string]any),
	}
}

// Component registers a replicated component descriptor. Panics if the name
// was already registered.
func (r *Registry) Component(t component.Type) {
	if _, ok := r.slotIndex[t.Name]; ok {
		panic(fmt.Sprintf("ecs: component %q already registered", t.Name))
	}
	r.slotIndex[t.Name] = len(r.slots)
	r.slots = append(r.slots, t)
}

// System registers a named tick system with the names of systems it must run
// after.
func (r *Registry) System(name string, deps []string, fn System) {
	r.systems = append(r.systems, sysEntry{name: name, deps: deps, fn: fn})
}

// PreTick registers a function run once per tick before input handling.
func (r *Registry) PreTick(fn System) {
	r.preTick = append(r.preTick, fn)
}

// PostTick registers a handler invoked with the tick's drained events after
// the system DAG has run.
func (r *Registry) PostTick(fn func(*World, []event.Event)) {
	r.postTick = append(r.postTick, fn)
}

// Removal registers a cleanup system run whenever entities are about to be
// swept, before they are actually destroyed.
func (r *Registry) Removal(fn System) {
	r.removal = append(r.removal, fn)
}

// Resource stores a singleton value under key, retrievable from the
// finalized World.
func (r *Registry) Resource(key string, v any) {
	r.resources[key] = v
}

// Finalize topologically sorts the registered tick systems by their declared
// dependencies and produces the immutable World, anchored to ark (callers
// that need to build component maps/filters before systems can reference the
// finalized World construct ark themselves via arkecs.NewWorld() first).
// isServer controls whether AllocateEntityID is permitted.
func (r *Registry) Finalize(ark arkecs.World, isServer bool) (*World, error) {
	order, err := topoSort(r.systems)
	if err != nil {
		return nil, err
	}

	w := &World{
		Ark:      ark,
		Tick:     ids.FirstTick - 1,
		Events:   r.events,
		isServer: isServer,
		handles:  make(map[ids.EntityID]arkecs.Entity),
		reverse:  make(map[arkecs.Entity]ids.EntityID),
		owners:   make(map[ids.EntityID]ids.PlayerID),
		classes:  make(map[ids.EntityID]ids.ClassID),

		slots:          r.slots,
		slotIndex:      r.slotIndex,
		resources:      r.resources,
		systems:        order,
		preTick:        append([]System(nil), r.preTick...),
		postTick:       append([]func(*World, []event.Event)(nil), r.postTick...),
		removalSystems: append([]System(nil), r.removal...),
	}
	w.Sink = event.NewSink(r.events)
	return w, nil
}

// topoSort orders systems so that every system runs after all of its named
// dependencies. Unknown dependency names or cycles are reported as errors.
func topoSort(entries []sysEntry) ([]System, error) {
	byName := make(map[string]sysEntry, len(entries))
	for _, e := range entries {
		if _, dup := byName[e.name]; dup {
			return nil, fmt.Errorf("ecs: duplicate system name %q", e.name)
		}
		byName[e.name] = e
	}
	for _, e := range entries {
		for _, d := range e.deps {
			if _, ok := byName[d]; !ok {
				return nil, fmt.Errorf("ecs: system %q depends on unknown system %q", e.name, d)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := make(map[string]int, len(entries))
	var order []System
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("ecs: system dependency cycle at %q", name)
		}
		state[name] = gray
		e := byName[name]
		for _, d := range e.deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		state[name] = black
		order = append(order, e.fn)
		return nil
	}
	for _, e := range entries {
		if err := visit(e.name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
