// Package ids defines the small stable identifier types shared across the
// replication stack: entities, players, classes and ticks. They are kept in
// their own leaf package so that transport, codec, event, ecs, snapshot and
// tickhistory can all depend on them without forming import cycles.
package ids

// EntityID uniquely identifies an entity for the lifetime of a match.
// Allocated only by the server. Zero is reserved as "invalid".
type EntityID uint32

// InvalidEntityID is never assigned to a live entity.
const InvalidEntityID EntityID = 0

// Valid reports whether id was ever allocated.
func (id EntityID) Valid() bool { return id != InvalidEntityID }

// PlayerID identifies a connected player. Allocated by the server on accept.
// Zero means "world-owned", i.e. not owned by any player.
type PlayerID uint32

// InvalidPlayerID marks world-owned entities and not-yet-assigned peers.
const InvalidPlayerID PlayerID = 0

// Valid reports whether id refers to an accepted player.
func (id PlayerID) Valid() bool { return id != InvalidPlayerID }

// TickNum is a monotonically increasing simulation step counter starting at
// FirstTick. A match is expected to end long before this wraps.
type TickNum uint32

// FirstTick is the number of the first tick of a match.
const FirstTick TickNum = 1

// ClassID is a small integer assigned at entity-class registration time, in
// registration order, deterministically the same across server and clients.
type ClassID uint16

// InvalidClassID marks an unregistered or not-yet-resolved class.
const InvalidClassID ClassID = 0xFFFF
