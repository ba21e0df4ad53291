package game

import (
	ecsint "github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/protocol"
)

// SetPlayerIntent records playerNum's current input state, read by the
// player-tick system on the next Update/tick. A client sends its full
// current key state every input message (not deltas), so overwriting the
// stored intent each call is the correct "currently held" semantics --
// this is also the hook internal/authority's per-player input handler calls
// during a server tick's step 4.
func (w *World) SetPlayerIntent(playerNum int, intent protocol.Intent) {
	w.intents[playerNum] = intent
}

// SpawnPlayer creates a player entity with the default loadout.
func (w *World) SpawnPlayer(playerNum int, name string, x, y float64) ids.EntityID {
	id := entityclass.Create(w.core, w.playerClass, ids.PlayerID(playerNum), func(id ids.EntityID) {
		h := w.core.NewEntity()
		w.core.Bind(id, h, ids.PlayerID(playerNum), w.playerClass.ID)
	}, func(cw *ecsint.World, id ids.EntityID) {
		h, _ := cw.Handle(id)
		w.positions.Add(h, &Position{X: x, Y: y})
		w.velocities.Add(h, &Velocity{})
		w.colliders.Add(h, &Collider{Width: 1, Height: 2})
		w.sprites.Add(h, &Sprite{ID: "player"})
		w.players.Add(h, &Player{ID: playerNum, Name: name})
		w.healths.Add(h, &Health{Current: 100, Max: 100})
		w.gravities.Add(h, &Gravity{Scale: 1})
		w.groundeds.Add(h, &Grounded{})
		w.attacks.Add(h, &AttackState{})
	})
	w.playerEntities[playerNum] = id
	return id
}

// SpawnEnemy creates an enemy entity of the given type at (x, y).
func (w *World) SpawnEnemy(enemyType string, x, y float64) ids.EntityID {
	return entityclass.Create(w.core, w.enemyClass, ids.InvalidPlayerID, func(id ids.EntityID) {
		h := w.core.NewEntity()
		w.core.Bind(id, h, ids.InvalidPlayerID, w.enemyClass.ID)
	}, func(cw *ecsint.World, id ids.EntityID) {
		h, _ := cw.Handle(id)
		w.positions.Add(h, &Position{X: x, Y: y})
		w.velocities.Add(h, &Velocity{})
		w.colliders.Add(h, &Collider{Width: 1, Height: 1})
		w.sprites.Add(h, &Sprite{ID: enemyType})
		w.healths.Add(h, &Health{Current: 30, Max: 30})
		w.gravities.Add(h, &Gravity{Scale: 1})
		w.groundeds.Add(h, &Grounded{})
	})
}

// EnsureEntity materializes an entity first seen in a snapshot: it binds the
// given id to a fresh ark handle under the named class and runs that
// class's constructors. The classes registered in setup have no
// constructors, so the entity carries no components until snapshot.ApplyTo
// sets the replicated ones (each slot's Set attaches a missing component). Used as the Ensure
// callback by internal/view and internal/prediction on the client; the
// server never calls this (it allocates ids itself through Spawn*).
func (w *World) EnsureEntity(id ids.EntityID, classID ids.ClassID) {
	class, ok := w.classes.ByID(classID)
	if !ok {
		return
	}
	entityclass.CreateWithID(w.core, class, id, func(id ids.EntityID) {
		h := w.core.NewEntity()
		w.core.Bind(id, h, ids.InvalidPlayerID, classID)
	})
}

// SyncPlayerEntities rebuilds the playerNum -> entity id lookup from the
// live Player components. A client does not learn which entity is which
// player's by spawning them itself (snapshot.ApplyTo/EnsureEntity create
// entities by class alone) so it re-derives the mapping every tick after
// applying the latest snapshot; the server keeps its own mapping current
// directly in Spawn/DespawnPlayer and never needs to call this.
func (w *World) SyncPlayerEntities() {
	query := w.playerFilter.Query()
	for query.Next() {
		ent := query.Entity()
		_, player := query.Get()
		if id, ok := w.core.IDFor(ent); ok {
			w.playerEntities[player.ID] = id
		}
	}
	query.Close()
}

// IsLocalPlayerEntity reports whether id is the entity bound to player, for
// use as the view runner's Exclude callback: a predicting client must not
// let an incoming snapshot overwrite the entity it is simulating locally.
func (w *World) IsLocalPlayerEntity(player ids.PlayerID, id ids.EntityID) bool {
	bound, ok := w.playerEntities[int(player)]
	return ok && bound == id
}

// DespawnPlayer queues the given player's entity for removal, e.g. on
// disconnect. A no-op if the player was never spawned.
func (w *World) DespawnPlayer(playerNum int) {
	id, ok := w.playerEntities[playerNum]
	if !ok {
		return
	}
	delete(w.playerEntities, playerNum)
	delete(w.intents, playerNum)
	w.core.MarkRemoved(id)
}

// Update advances the world by one tick: input/attack resolution, physics,
// fist travel, then despawn of anything marked during those systems. Used
// directly by standalone tests; internal/authority and internal/view drive
// the same system DAG through Core() alongside the event sink and snapshot
// replication steps.
func (w *World) Update() {
	w.core.Tick++
	w.core.RunSystems()
}

// fireRequest describes a fist that resolveInput decided should spawn.
// Spawning is deferred to the caller: ark queries do not support structural
// changes mid-iteration.
type fireRequest struct {
	owner       int
	x, y        float64
	facingRight bool
	distance    float64
}

// resolveInput applies one tick's intent to a single player's movement and
// attack-charge state, the shared core of playerTickSystem (run over every
// player via the attack filter) and ApplyLocalInput (run for just the
// locally-predicted player, once per replayed or live input).
func resolveInput(pos *Position, vel *Velocity, attack *AttackState, grounded *Grounded, playerNum int, intent protocol.Intent) (fire *fireRequest) {
	vel.X = 0
	if intent&protocol.IntentLeft != 0 {
		vel.X -= PlayerMoveSpeed
		attack.FacingRight = false
	}
	if intent&protocol.IntentRight != 0 {
		vel.X += PlayerMoveSpeed
		attack.FacingRight = true
	}
	if intent&protocol.IntentJump != 0 && grounded.OnGround {
		vel.Y = JumpVelocity
	}

	wantAttack := intent&protocol.IntentAttack != 0
	switch {
	case attack.Attacking:
		attack.TicksLeft--
		if attack.TicksLeft <= 0 {
			attack.Attacking = false
		}
	case attack.Charging:
		if wantAttack {
			attack.ChargeTicks++
		} else {
			dist := fistDistanceForCharge(attack.ChargeTicks)
			fire = &fireRequest{
				owner: playerNum, x: pos.X, y: pos.Y,
				facingRight: attack.FacingRight, distance: dist,
			}
			attack.Charging = false
			attack.ChargeTicks = 0
			attack.Attacking = true
			attack.TicksLeft = AttackCooldown
		}
	default:
		if wantAttack {
			attack.Charging = true
			attack.ChargeTicks = 1
		}
	}
	return fire
}

// integrateBody applies one tick of gravity and velocity to a physics body
// and resolves the flat ground plane, the shared core of physicsSystem (run
// over every body via the physics filter) and ApplyLocalInput (run for just
// the locally-predicted player during prediction replay).
func integrateBody(pos *Position, vel *Velocity, grounded *Grounded, gravityScale float64) {
	vel.Y += GravityAccel * gravityScale
	pos.X += vel.X
	pos.Y += vel.Y

	if pos.Y >= GroundY {
		pos.Y = GroundY
		vel.Y = 0
		grounded.OnGround = true
	} else {
		grounded.OnGround = false
	}
}

// playerTickSystem resolves per-player movement and the charge-and-release
// fist attack. Firing a fist is deferred until after the query closes,
// since ark queries do not support structural changes mid-iteration.
func (w *World) playerTickSystem(core *ecsint.World) {
	var fires []fireRequest

	query := w.attackFilter.Query()
	for query.Next() {
		ent := query.Entity()
		pos, vel, _, attack, grounded, player := query.Get()
		if eid, ok := core.IDFor(ent); ok && w.predictedThisTick[eid] {
			continue // already resolved directly by ApplyLocalInput this tick
		}
		intent := w.intents[player.ID]
		if fire := resolveInput(pos, vel, attack, grounded, player.ID, intent); fire != nil {
			fires = append(fires, *fire)
		}
	}
	query.Close()

	for _, f := range fires {
		w.spawnFist(core, f.owner, f.x, f.y, f.facingRight, f.distance)
	}
}

// ApplyLocalInput resolves one tick of input for the locally-predicted
// player entity directly, without going through the system DAG: used by
// internal/prediction both to record the live tick and to replay every
// input since the last correction point, one resolveInput+integrateBody
// step per call. A no-op if the player's entity has not been ensured yet
// (e.g. before the first snapshot arrives).
func (w *World) ApplyLocalInput(player ids.PlayerID, input protocol.PlayerInput) {
	w.SetPlayerIntent(int(player), input.Intents)

	id, ok := w.playerEntities[int(player)]
	if !ok {
		return
	}
	h, ok := w.core.Handle(id)
	if !ok || !w.attacks.Has(h) {
		return
	}

	pos := w.positions.Get(h)
	vel := w.velocities.Get(h)
	attack := w.attacks.Get(h)
	grounded := w.groundeds.Get(h)

	fire := resolveInput(pos, vel, attack, grounded, int(player), input.Intents)

	scale := 1.0
	if w.gravities.Has(h) {
		scale = w.gravities.Get(h).Scale
	}
	integrateBody(pos, vel, grounded, scale)
	w.predictedThisTick[id] = true

	if fire != nil {
		w.spawnFist(w.core, fire.owner, fire.x, fire.y, fire.facingRight, fire.distance)
	}
}

func (w *World) spawnFist(core *ecsint.World, owner int, x, y float64, facingRight bool, maxDistance float64) {
	dir := -1.0
	if facingRight {
		dir = 1.0
	}
	entityclass.Create(core, w.fistClass, ids.PlayerID(owner), func(id ids.EntityID) {
		h := core.NewEntity()
		core.Bind(id, h, ids.PlayerID(owner), w.fistClass.ID)
	}, func(cw *ecsint.World, id ids.EntityID) {
		h, _ := cw.Handle(id)
		w.positions.Add(h, &Position{X: x, Y: y})
		w.velocities.Add(h, &Velocity{X: dir * FistSpeed, Y: 0})
		w.fists.Add(h, &Fist{OwnerPlayer: owner, MaxDistance: maxDistance})
	})
}

// physicsSystem integrates gravity and velocity into position for every
// entity carrying a physics body, and resolves the flat ground plane.
func (w *World) physicsSystem(core *ecsint.World) {
	query := w.physicsFilter.Query()
	for query.Next() {
		ent := query.Entity()
		if eid, ok := core.IDFor(ent); ok && w.predictedThisTick[eid] {
			continue // already integrated directly by ApplyLocalInput this tick
		}
		pos, vel, _, grounded := query.Get()

		scale := 1.0
		if w.gravities.Has(ent) {
			scale = w.gravities.Get(ent).Scale
		}
		integrateBody(pos, vel, grounded, scale)
	}
	query.Close()
}

// fistTravelSystem advances in-flight fists and despawns any that have
// reached their charge-determined travel distance.
func (w *World) fistTravelSystem(core *ecsint.World) {
	var toRemove []ids.EntityID
	query := w.fistFilter.Query()
	for query.Next() {
		ent := query.Entity()
		pos, vel, fist := query.Get()
		pos.X += vel.X
		pos.Y += vel.Y
		fist.TraveledDistance += FistSpeed
		if fist.TraveledDistance >= fist.MaxDistance {
			if id, ok := core.IDFor(ent); ok {
				toRemove = append(toRemove, id)
			}
		}
	}
	query.Close()

	for _, id := range toRemove {
		core.MarkRemoved(id)
	}

	// Last system in the DAG: clear the predicted-entity markers ApplyLocalInput
	// set for this tick so the next tick's markers start fresh.
	for id := range w.predictedThisTick {
		delete(w.predictedThisTick, id)
	}
}
