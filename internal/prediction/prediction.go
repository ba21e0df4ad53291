// Package prediction implements the client's per-input prediction log and
// the reset+replay correction algorithm: a local snapshot is captured after
// every input is applied, and on receipt of authoritative data the log is
// trimmed, the true state is loaded, and every input since the correction
// point is replayed with order-event emission suppressed.
package prediction

import (
	"fmt"
	"sort"

	"github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/snapshot"
)

// Entry is one tick's recorded input and the local snapshot it produced.
type Entry struct {
	Input    protocol.PlayerInput
	Snapshot *snapshot.WorldSnapshot
}

// Log is the ordered TickNum -> Entry map for one locally-controlled player.
type Log struct {
	MyPlayer ids.PlayerID
	entries  map[ids.TickNum]Entry
	order    []ids.TickNum
}

// NewLog returns an empty prediction log for player.
func NewLog(player ids.PlayerID) *Log {
	return &Log{MyPlayer: player, entries: make(map[ids.TickNum]Entry)}
}

// Get looks up the entry recorded at tick.
func (l *Log) Get(tick ids.TickNum) (Entry, bool) {
	e, ok := l.entries[tick]
	return e, ok
}

// Record appends {input, snapshot} at tick, overwriting any existing entry.
func (l *Log) Record(tick ids.TickNum, input protocol.PlayerInput, snap *snapshot.WorldSnapshot) {
	if _, exists := l.entries[tick]; !exists {
		i := sort.Search(len(l.order), func(i int) bool { return l.order[i] >= tick })
		l.order = append(l.order, 0)
		copy(l.order[i+1:], l.order[i:])
		l.order[i] = tick
	}
	l.entries[tick] = Entry{Input: input, Snapshot: snap}
}

// DropBefore removes every entry with tick < k.
func (l *Log) DropBefore(k ids.TickNum) {
	i := 0
	for i < len(l.order) && l.order[i] < k {
		delete(l.entries, l.order[i])
		i++
	}
	l.order = l.order[i:]
}

// After returns every entry with tick > k, in ascending order.
func (l *Log) After(k ids.TickNum) []struct {
	Tick  ids.TickNum
	Entry Entry
} {
	var out []struct {
		Tick  ids.TickNum
		Entry Entry
	}
	for _, t := range l.order {
		if t > k {
			out = append(out, struct {
				Tick  ids.TickNum
				Entry Entry
			}{Tick: t, Entry: l.entries[t]})
		}
	}
	return out
}

// Clear empties the log.
func (l *Log) Clear() {
	l.entries = make(map[ids.TickNum]Entry)
	l.order = nil
}

// Callbacks lets the view runner supply the pieces RunTick cannot know about
// on its own: how to run input handlers for a given input, and how to
// materialize an entity id the client has not seen before.
type Callbacks struct {
	RunInputHandlers func(w *ecs.World, input protocol.PlayerInput)
	Ensure           func(id ids.EntityID, classID ids.ClassID)
}

// Result reports what RunTick did, for diagnostics and the replication-error
// surfacing the error-handling design calls for.
type Result struct {
	Corrected       bool
	PredictionError float64
	MissingLogEntry bool
}

// ErrMissingLogEntry names the case of a correction tick with no stored
// prediction to compare against. RunTick does not return it; it reports that
// case through Result.MissingLogEntry.
var ErrMissingLogEntry = fmt.Errorf("prediction: missing log entry for correction tick")

// RunTick executes the three prediction-log steps for one view tick:
// correct (reset+replay against last_input_tick), initial sync (load the
// first authoritative snapshot when no input has been acknowledged yet),
// and record (apply this tick's input and capture a fresh local snapshot).
func RunTick(w *ecs.World, classes *entityclass.Registry, log *Log, tick ids.TickNum, lastInputTick *ids.TickNum, authSnapshot *snapshot.WorldSnapshot, input protocol.PlayerInput, cb Callbacks) (Result, error) {
	var result Result

	switch {
	case lastInputTick != nil:
		log.DropBefore(*lastInputTick)
		if authSnapshot != nil {
			stored, ok := log.Get(*lastInputTick)
			if ok && stored.Snapshot != nil {
				result.PredictionError = stored.Snapshot.Distance(authSnapshot)
			} else {
				result.MissingLogEntry = true
			}

			// Reset: load the whole authoritative snapshot, overwriting any
			// predicted state. No per-player filtering is applied here; every
			// entity in the snapshot is written.
			if err := authSnapshot.ApplyTo(w, classes, cb.Ensure, nil); err != nil {
				return result, err
			}
			result.Corrected = true

			// Replay: re-run input handlers for every later logged input
			// with order-event emission suppressed.
			w.Sink.Ignore = true
			for _, e := range log.After(*lastInputTick) {
				cb.RunInputHandlers(w, e.Entry.Input)
			}
			w.Sink.Ignore = false
		}
	case authSnapshot != nil:
		// No input has ever been acknowledged: initial sync.
		if err := authSnapshot.ApplyTo(w, classes, cb.Ensure, nil); err != nil {
			return result, err
		}
	}

	// Record: apply this tick's input and capture our own fresh snapshot.
	cb.RunInputHandlers(w, input)
	mine := log.MyPlayer
	snap := snapshot.Capture(w, classes, &mine)
	log.Record(tick, input, snap)

	return result, nil
}
