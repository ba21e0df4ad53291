// Package component defines the generic, wire-level view of a component
// value, decoupled from whatever concrete storage (ark archetypes, in this
// module's case) actually holds it. Entity classes and snapshots only ever
// see components through this interface.
package component

import (
	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/ids"
)

// Value is one component's replicated representation: it can be written to
// the wire, compared for equality (used by the snapshot delta bitset) and
// measured for distance (used by prediction-error reporting).
type Value interface {
	// Encode writes the component's wire representation.
	Encode(w *codec.Writer)
	// Equal reports whether two values of the same component type are
	// identical for delta-bitset purposes.
	Equal(other Value) bool
	// Distance returns a non-negative divergence measure between two values
	// of the same component type; +Inf for a discrete mismatch that cannot
	// be meaningfully measured.
	Distance(other Value) float64
}

// Decoder reads one Value of a specific component type off the wire.
type Decoder func(r *codec.Reader) (Value, error)

// Type describes one replicated component slot known to the registry: its
// name (used only for diagnostics), how to decode it off the wire, and how
// to fetch/store a live value for a given entity in whatever world holds it.
type Type struct {
	Name   string
	Decode Decoder
	// Get reads the current value for id out of the world, or ok=false if
	// the entity does not carry this component.
	Get func(w WorldLike, id ids.EntityID) (v Value, ok bool)
	// Set writes v into the world for id. Implementations may attach the
	// component when the entity does not carry it yet; internal/game's slots
	// do, which is how entities materialized from a snapshot receive their
	// replicated components.
	Set func(w WorldLike, id ids.EntityID, v Value)
}

// WorldLike is the minimal surface a world must expose for generic
// component access. internal/ecs.World implements it structurally.
type WorldLike interface {
	// HasEntity reports whether id currently exists in the world.
	HasEntity(id ids.EntityID) bool
}
