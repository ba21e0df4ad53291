// Package authority implements the server's authoritative tick runner: the
// per-tick sequence of event handling, input application, system execution,
// snapshot capture and per-peer delta distribution.
package authority

import (
	"sync"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/session"
	"github.com/andersfylling/hooksmp/internal/snapshot"
	"github.com/andersfylling/hooksmp/internal/tickhistory"
	"github.com/andersfylling/hooksmp/internal/transport"
	"golang.org/x/time/rate"
)

// EventHandler processes events drained from the sink at a given phase.
type EventHandler func(w *ecs.World, events []event.Event)

// InputHandler applies one player's input for the tick currently being run.
type InputHandler func(w *ecs.World, player ids.PlayerID, input protocol.PlayerInput)

// Runner drives the server-side world through one tick at a time.
type Runner struct {
	World    *ecs.World
	Classes  *entityclass.Registry
	History  *tickhistory.History
	Sessions *session.Manager
	Host     transport.Host

	eventHandlers []EventHandler
	inputHandlers []InputHandler

	mu              sync.Mutex
	externalEvents  []event.Event
	pendingInput    map[ids.PlayerID]protocol.PlayerInput
	inputLimiters   map[ids.PlayerID]*rate.Limiter
	lastAppliedTick map[ids.PlayerID]ids.TickNum
}

// NewRunner wires together the pieces an authoritative server tick needs.
func NewRunner(world *ecs.World, classes *entityclass.Registry, history *tickhistory.History, sessions *session.Manager, host transport.Host) *Runner {
	return &Runner{
		World:           world,
		Classes:         classes,
		History:         history,
		Sessions:        sessions,
		Host:            host,
		pendingInput:    make(map[ids.PlayerID]protocol.PlayerInput),
		inputLimiters:   make(map[ids.PlayerID]*rate.Limiter),
		lastAppliedTick: make(map[ids.PlayerID]ids.TickNum),
	}
}

// OnEvents registers a handler invoked with events drained from the sink.
func (r *Runner) OnEvents(fn EventHandler) { r.eventHandlers = append(r.eventHandlers, fn) }

// OnInput registers a per-player input handler invoked during step 4.
func (r *Runner) OnInput(fn InputHandler) { r.inputHandlers = append(r.inputHandlers, fn) }

// QueueExternalEvent enqueues a connection-lifecycle or transport-detected
// event (player joined/left, malformed input) for the next tick's step 1.
func (r *Runner) QueueExternalEvent(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.externalEvents = append(r.externalEvents, e)
}

// QueueInput records player's input destined for the upcoming tick. Per
// tick, only the most recently accepted input survives: the simplest
// correct policy against unbounded-input explosion under lag. A per-player
// rate limiter additionally bounds how often new input is even accepted,
// guarding against a flooding peer.
func (r *Runner) QueueInput(player ids.PlayerID, input protocol.PlayerInput, maxPerSecond float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.inputLimiters[player]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(maxPerSecond), 1)
		r.inputLimiters[player] = lim
	}
	if !lim.Allow() {
		return
	}
	r.pendingInput[player] = input
}

// LastAppliedTick reports the newest tick at which player's input was
// applied, or 0 if never.
func (r *Runner) LastAppliedTick(player ids.PlayerID) ids.TickNum {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAppliedTick[player]
}

// Tick runs the full server tick sequence described for the authoritative
// runner and sends each ingame peer its delta-encoded packet.
func (r *Runner) Tick() error {
	r.World.Sink.BeginTick()

	// 1. Drain external events into the sink.
	r.mu.Lock()
	ext := r.externalEvents
	r.externalEvents = nil
	r.mu.Unlock()
	for _, e := range ext {
		r.World.Sink.Push(e)
	}

	// 2. Registered event handlers; sweep removals.
	events := r.World.Sink.DrainPending()
	for _, fn := range r.eventHandlers {
		fn(r.World, events)
	}
	r.World.SweepRemovals()

	// 3. Pre-tick functions; sweep removals.
	r.World.RunPreTick()

	// 4. Per-player input handlers; sweep removals.
	nextTick := r.World.Tick + 1
	r.mu.Lock()
	inputs := r.pendingInput
	r.pendingInput = make(map[ids.PlayerID]protocol.PlayerInput)
	r.mu.Unlock()
	for player, in := range inputs {
		for _, fn := range r.inputHandlers {
			fn(r.World, player, in)
		}
		r.mu.Lock()
		r.lastAppliedTick[player] = nextTick
		r.mu.Unlock()
	}
	r.World.SweepRemovals()

	// 5. Tick system DAG; sweep removals (inside RunSystems).
	r.World.Tick = nextTick
	r.World.RunSystems()

	// 6. Post-tick event handlers; sweep removals (inside RunPostTick).
	orderEvents := r.World.Sink.DrainOrder()
	r.World.RunPostTick(orderEvents)

	// 7. Capture and record.
	snap := snapshot.Capture(r.World, r.Classes, nil)
	r.History.Push(r.World.Tick, tickhistory.Data{Events: orderEvents, Snapshot: snap})

	// 8. Per-peer delta send.
	for _, peer := range r.Sessions.IngamePlayers() {
		if err := r.sendTo(peer); err != nil {
			_ = r.Host.Disconnect(peer.Transport, protocol.Disconnected)
		}
	}
	return nil
}

func (r *Runner) sendTo(peer *session.Peer) error {
	w := codec.NewWriter()
	r.mu.Lock()
	last := r.lastAppliedTick[peer.Player]
	r.mu.Unlock()
	w.WriteUint32(uint32(last))
	extra := r.Sessions.DrainPlayerEvents(peer.Player)
	if err := r.History.DeltaWriteWithExtra(w, peer.LastAck, r.World.Tick, extra); err != nil {
		return err
	}
	payload := append([]byte{protocol.TickDeltaTag}, w.CompressedBytes()...)
	return r.Host.Send(peer.Transport, protocol.ChannelGame, protocol.Unsequenced, payload)
}
