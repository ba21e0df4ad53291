// Package entityclass implements named entity classes: a string name maps to
// a deterministically-assigned ids.ClassID, an ordered list of replicated
// component types, a base constructor and additive constructor hooks. Class
// metadata lets snapshot deserialization materialize unfamiliar entities by
// class name/id alone.
package entityclass

import (
	"fmt"

	"github.com/andersfylling/hooksmp/internal/component"
	"github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/ids"
)

// ConstructorHook attaches components to an already-bound entity. Hooks run
// in registration order: base constructor first, then additive hooks, then
// any caller overrides supplied to Create.
type ConstructorHook func(w *ecs.World, id ids.EntityID)

// Class is the static description of one entity kind.
type Class struct {
	Name       string
	ID         ids.ClassID
	Replicated []component.Type
	// OwnerOnly restricts replication of this class to its owning player.
	// Default false (unrestricted), matching the snapshot scoping rule.
	OwnerOnly bool
	base       ConstructorHook
	hooks      []ConstructorHook
}

// Registry is the server/client-shared table of registered classes. The
// server and every client must register the same class names in the same
// order so that ClassID assignment is identical everywhere.
type Registry struct {
	byName map[string]*Class
	byID   []*Class
}

// NewRegistry returns an empty class registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Class)}
}

// Register adds a new entity class. base attaches mandatory components and
// invariants; hooks are additive constructor steps (e.g. a client attaching
// renderable sizing that the server never needs). Panics on a duplicate
// name, matching the server-authoritative registration-order invariant.
func (r *Registry) Register(name string, replicated []component.Type, base ConstructorHook, hooks ...ConstructorHook) *Class {
	if _, ok := r.byName[name]; ok {
		panic(fmt.Sprintf("entityclass: class %q already registered", name))
	}
	c := &Class{
		Name:       name,
		ID:         ids.ClassID(len(r.byID)),
		Replicated: replicated,
		base:       base,
		hooks:      hooks,
	}
	r.byName[name] = c
	r.byID = append(r.byID, c)
	return c
}

// ByName looks up a class by its registered name.
func (r *Registry) ByName(name string) (*Class, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ByID looks up a class by its assigned id.
func (r *Registry) ByID(id ids.ClassID) (*Class, bool) {
	if int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// Create allocates an entity id (server only), binds it to the given ark
// handle, then runs the class's base constructor, its additive hooks, and
// finally any caller-supplied overrides, in that order.
func Create(w *ecs.World, class *Class, owner ids.PlayerID, bind func(id ids.EntityID), overrides ...ConstructorHook) ids.EntityID {
	id := w.AllocateEntityID()
	bind(id)
	_ = owner // owner is recorded by bind via ecs.World.Bind; kept for call-site clarity
	runHooks(w, class, id, overrides)
	return id
}

// CreateWithID is Create's client-side counterpart: the entity id arrives
// from a snapshot rather than being allocated locally.
func CreateWithID(w *ecs.World, class *Class, id ids.EntityID, bind func(id ids.EntityID), overrides ...ConstructorHook) {
	bind(id)
	runHooks(w, class, id, overrides)
}

func runHooks(w *ecs.World, class *Class, id ids.EntityID, overrides []ConstructorHook) {
	if class.base != nil {
		class.base(w, id)
	}
	for _, h := range class.hooks {
		h(w, id)
	}
	for _, h := range overrides {
		h(w, id)
	}
}
