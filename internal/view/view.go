// Package view implements the client's per-tick world update: applying a
// tick's events and (optional) snapshot, running local prediction if
// enabled, then driving the same system DAG and post-tick hooks the
// authoritative server runs.
package view

import (
	"github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/prediction"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/snapshot"
)

// Handlers supplies the pieces the view runner delegates to the game package:
// how to run per-input handlers, how to materialize an entity id first seen
// in a snapshot, and which entities to leave untouched when applying a
// snapshot because prediction already owns their local state.
type Handlers struct {
	RunInput func(w *ecs.World, input protocol.PlayerInput)
	Ensure   func(id ids.EntityID, classID ids.ClassID)
	Exclude  func(id ids.EntityID) bool
}

// Runner drives one client's world through a tick at a time. PredictionLog
// is nil when prediction is disabled (a pure spectator/replay client):
// locally-owned entities are then overwritten from the snapshot like any
// other entity and no input is simulated locally.
type Runner struct {
	World         *ecs.World
	Classes       *entityclass.Registry
	MyPlayer      ids.PlayerID
	PredictionLog *prediction.Log
	Handlers      Handlers
}

// NewRunner wires a view runner for one client world.
func NewRunner(world *ecs.World, classes *entityclass.Registry, myPlayer ids.PlayerID, handlers Handlers) *Runner {
	return &Runner{World: world, Classes: classes, MyPlayer: myPlayer, Handlers: handlers}
}

// EnablePrediction attaches a prediction log, turning on local input
// simulation for the current tick.
func (r *Runner) EnablePrediction() {
	r.PredictionLog = prediction.NewLog(r.MyPlayer)
}

// Tick runs the six client tick steps: push events, pre-tick handlers, the
// snapshot-driven overwrite, prediction (if enabled), the system DAG, and
// post-tick handlers. events/snap/lastInputTick come from the server packet
// for this tick; snap is both applied in step 3 and handed to prediction as
// the authoritative snapshot. snap and lastInputTick may be nil when the
// packet carried no snapshot, i.e. an events-only update.
func (r *Runner) Tick(tick ids.TickNum, events []event.Event, snap *snapshot.WorldSnapshot, lastInputTick *ids.TickNum, input protocol.PlayerInput) (prediction.Result, error) {
	// 1. Push this tick's events into the sink.
	for _, e := range events {
		r.World.Sink.Push(e)
	}

	// 2. Pre-tick handlers; sweep removals.
	r.World.RunPreTick()

	exclude := r.Handlers.Exclude
	if r.PredictionLog == nil {
		exclude = nil
	}

	// 3. Snapshot-driven entity creation/overwrite, excluding locally
	// predicted entities when prediction is enabled.
	if snap != nil {
		if err := snap.ApplyTo(r.World, r.Classes, r.Handlers.Ensure, exclude); err != nil {
			return prediction.Result{}, err
		}
	}

	// 4. Prediction step.
	var result prediction.Result
	if r.PredictionLog != nil {
		var err error
		result, err = prediction.RunTick(r.World, r.Classes, r.PredictionLog, tick, lastInputTick, snap, input, prediction.Callbacks{
			RunInputHandlers: r.Handlers.RunInput,
			Ensure:           r.Handlers.Ensure,
		})
		if err != nil {
			return result, err
		}
	}

	// 5. Tick system DAG; sweep removals (inside RunSystems).
	r.World.Tick = tick
	r.World.RunSystems()

	// 6. Post-tick event handlers; sweep removals (inside RunPostTick).
	orderEvents := r.World.Sink.DrainOrder()
	r.World.RunPostTick(orderEvents)

	return result, nil
}
