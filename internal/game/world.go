package game

import (
	"github.com/andersfylling/hooksmp/internal/component"
	ecsint "github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/protocol"
	arkecs "github.com/mlange-42/ark/ecs"
)

// World holds all hook-combat gameplay state: the generic replication core,
// the concrete ark component maps, and the class/filter wiring that ties
// them together.
type World struct {
	core    *ecsint.World
	classes *entityclass.Registry

	positions  *arkecs.Map1[Position]
	velocities *arkecs.Map1[Velocity]
	colliders  *arkecs.Map1[Collider]
	sprites    *arkecs.Map1[Sprite]
	players    *arkecs.Map1[Player]
	healths    *arkecs.Map1[Health]
	gravities  *arkecs.Map1[Gravity]
	groundeds  *arkecs.Map1[Grounded]
	attacks    *arkecs.Map1[AttackState]
	fists      *arkecs.Map1[Fist]

	physicsFilter *arkecs.Filter4[Position, Velocity, Collider, Grounded]
	playerFilter  *arkecs.Filter2[Position, Player]
	attackFilter  *arkecs.Filter6[Position, Velocity, Collider, AttackState, Grounded, Player]
	fistFilter    *arkecs.Filter3[Position, Velocity, Fist]

	playerClass *entityclass.Class
	enemyClass  *entityclass.Class
	fistClass   *entityclass.Class

	playerEntities map[int]ids.EntityID
	intents        map[int]protocol.Intent

	// predictedThisTick marks entities ApplyLocalInput already resolved for
	// the tick in progress, so the system DAG that follows does not apply
	// the same input and physics step to them a second time. Only ever
	// populated client-side; fistTravelSystem clears it once the DAG
	// finishes, ready for the next tick's prediction.
	predictedThisTick map[ids.EntityID]bool
}

// Core exposes the generic replication world underneath, for wiring into
// internal/authority (server) or internal/view (client).
func (w *World) Core() *ecsint.World { return w.core }

// Classes exposes the entity class registry, for wiring into snapshot
// capture/apply.
func (w *World) Classes() *entityclass.Registry { return w.classes }

// coreRef is a late-bound pointer to the finalized World: component slots
// are built before Finalize runs (they need live ark Maps/Filters, which in
// turn need a live ark.World before the generic World wrapping it exists),
// so their closures resolve the World through this indirection instead of
// capturing it directly.
type coreRef struct {
	w *ecsint.World
}

// componentSlot builds a component.Type descriptor bridging an ark Map1[T]
// to the generic id-addressed world, for any T that is its own
// component.Value (our components implement Encode/Equal/Distance with a
// value receiver, so T satisfies the interface directly).
func componentSlot[T component.Value](name string, m *arkecs.Map1[T], decode component.Decoder, ref *coreRef) component.Type {
	return component.Type{
		Name:   name,
		Decode: decode,
		Get: func(w component.WorldLike, id ids.EntityID) (component.Value, bool) {
			h, ok := ref.w.Handle(id)
			if !ok || !m.Has(h) {
				return nil, false
			}
			return *m.Get(h), true
		},
		Set: func(w component.WorldLike, id ids.EntityID, v component.Value) {
			h, ok := ref.w.Handle(id)
			if !ok {
				return
			}
			tv, ok := v.(T)
			if !ok {
				return
			}
			if m.Has(h) {
				*m.Get(h) = tv
			} else {
				m.Add(h, &tv)
			}
		},
	}
}

// NewWorld sets up a fresh server-shaped world: components, classes and
// systems registered, ready to spawn entities into.
func NewWorld() *World {
	w, err := setup(true)
	if err != nil {
		panic(err)
	}
	return w
}

// NewClientWorld sets up a client-shaped world: identical component/class/
// system wiring, but entity ids arrive from snapshots instead of being
// allocated locally.
func NewClientWorld() *World {
	w, err := setup(false)
	if err != nil {
		panic(err)
	}
	return w
}

func setup(isServer bool) (*World, error) {
	evReg := event.NewRegistry()
	reg := ecsint.NewRegistry(evReg)

	w := &World{
		classes:        entityclass.NewRegistry(),
		playerEntities: make(map[int]ids.EntityID),
		intents:        make(map[int]protocol.Intent),

		predictedThisTick: make(map[ids.EntityID]bool),
	}

	// The ark world is constructed directly (rather than letting Finalize
	// create it) so the component maps and filters below can be built
	// before the generic World exists; component.Type closures resolve the
	// generic World lazily through ref once Finalize has produced it.
	ark := arkecs.NewWorld()
	ref := &coreRef{}

	w.positions = arkecs.NewMap1[Position](&ark)
	w.velocities = arkecs.NewMap1[Velocity](&ark)
	w.colliders = arkecs.NewMap1[Collider](&ark)
	w.sprites = arkecs.NewMap1[Sprite](&ark)
	w.players = arkecs.NewMap1[Player](&ark)
	w.healths = arkecs.NewMap1[Health](&ark)
	w.gravities = arkecs.NewMap1[Gravity](&ark)
	w.groundeds = arkecs.NewMap1[Grounded](&ark)
	w.attacks = arkecs.NewMap1[AttackState](&ark)
	w.fists = arkecs.NewMap1[Fist](&ark)

	w.physicsFilter = arkecs.NewFilter4[Position, Velocity, Collider, Grounded](&ark)
	w.playerFilter = arkecs.NewFilter2[Position, Player](&ark)
	w.attackFilter = arkecs.NewFilter6[Position, Velocity, Collider, AttackState, Grounded, Player](&ark)
	w.fistFilter = arkecs.NewFilter3[Position, Velocity, Fist](&ark)

	w.playerClass = w.classes.Register("player", []component.Type{
		componentSlot("position", w.positions, decodePosition, ref),
		componentSlot("velocity", w.velocities, decodeVelocity, ref),
		componentSlot("player", w.players, decodePlayer, ref),
		componentSlot("health", w.healths, decodeHealth, ref),
		componentSlot("grounded", w.groundeds, decodeGrounded, ref),
		componentSlot("attack", w.attacks, decodeAttackState, ref),
	}, nil)

	w.enemyClass = w.classes.Register("enemy", []component.Type{
		componentSlot("position", w.positions, decodePosition, ref),
		componentSlot("velocity", w.velocities, decodeVelocity, ref),
		componentSlot("health", w.healths, decodeHealth, ref),
		componentSlot("grounded", w.groundeds, decodeGrounded, ref),
	}, nil)

	w.fistClass = w.classes.Register("fist", []component.Type{
		componentSlot("position", w.positions, decodePosition, ref),
		componentSlot("velocity", w.velocities, decodeVelocity, ref),
		componentSlot("fist", w.fists, decodeFist, ref),
	}, nil)

	reg.System("player-tick", nil, func(cw *ecsint.World) { w.playerTickSystem(cw) })
	reg.System("physics", []string{"player-tick"}, func(cw *ecsint.World) { w.physicsSystem(cw) })
	reg.System("fist-travel", []string{"physics"}, func(cw *ecsint.World) { w.fistTravelSystem(cw) })

	core, err := reg.Finalize(ark, isServer)
	if err != nil {
		return nil, err
	}
	w.core = core
	ref.w = core

	return w, nil
}
