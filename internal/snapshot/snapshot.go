// Package snapshot implements the per-class component selection, full world
// snapshot capture and the delta codec described for replication: per-entity
// delta bitsets and a world-level ordered full-join against a reference
// snapshot.
package snapshot

import (
	"fmt"
	"math"
	"sort"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/component"
	"github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/ids"
)

// EntitySnapshot holds one entity's replicated component values, indexed
// the same way as its class's Replicated list: a nil slot means "absent".
type EntitySnapshot struct {
	ClassID    ids.ClassID
	Components []component.Value
}

func (e EntitySnapshot) clone() EntitySnapshot {
	comps := make([]component.Value, len(e.Components))
	copy(comps, e.Components)
	return EntitySnapshot{ClassID: e.ClassID, Components: comps}
}

// WorldSnapshot is the ordered mapping EntityId -> EntitySnapshot for one
// tick. Entities iterate in ascending EntityId order, a requirement of the
// delta codec.
type WorldSnapshot struct {
	Tick     ids.TickNum
	order    []ids.EntityID
	entities map[ids.EntityID]EntitySnapshot
}

// NewWorldSnapshot returns an empty snapshot stamped with tick.
func NewWorldSnapshot(tick ids.TickNum) *WorldSnapshot {
	return &WorldSnapshot{Tick: tick, entities: make(map[ids.EntityID]EntitySnapshot)}
}

// Ascending returns entity ids in increasing order.
func (s *WorldSnapshot) Ascending() []ids.EntityID { return s.order }

// Len reports the number of entities held.
func (s *WorldSnapshot) Len() int { return len(s.order) }

// Get looks up an entity's snapshot.
func (s *WorldSnapshot) Get(id ids.EntityID) (EntitySnapshot, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Set inserts or overwrites an entity's snapshot, maintaining ascending
// order.
func (s *WorldSnapshot) Set(id ids.EntityID, e EntitySnapshot) {
	if _, exists := s.entities[id]; !exists {
		i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
		s.order = append(s.order, 0)
		copy(s.order[i+1:], s.order[i:])
		s.order[i] = id
	}
	s.entities[id] = e
}

// Delete removes an entity from the snapshot.
func (s *WorldSnapshot) Delete(id ids.EntityID) {
	if _, exists := s.entities[id]; !exists {
		return
	}
	delete(s.entities, id)
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	if i < len(s.order) && s.order[i] == id {
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
}

// Clone returns a deep-enough copy (component values are treated as
// immutable and shared; only the containers are copied) suitable for use as
// the decoder's working "cur" snapshot that delta ops are applied onto.
func (s *WorldSnapshot) Clone() *WorldSnapshot {
	out := NewWorldSnapshot(s.Tick)
	out.order = append(out.order, s.order...)
	for id, e := range s.entities {
		out.entities[id] = e.clone()
	}
	return out
}

// Capture walks the world in ascending entity-id order and records every
// replicated component of every entity, honouring per-class ownership
// scoping. scope == nil means unrestricted (the server's own bookkeeping
// copy); a non-nil scope skips entities whose class restricts replication to
// their owner only, when that owner is not the scoped player.
func Capture(w *ecs.World, classes *entityclass.Registry, scope *ids.PlayerID) *WorldSnapshot {
	snap := NewWorldSnapshot(w.Tick)
	for _, id := range w.EntityIDs() {
		classID, ok := w.Class(id)
		if !ok {
			continue
		}
		class, ok := classes.ByID(classID)
		if !ok {
			continue
		}
		if class.OwnerOnly && scope != nil {
			if w.Owner(id) != *scope {
				continue
			}
		}
		comps := make([]component.Value, len(class.Replicated))
		for i, slot := range class.Replicated {
			if v, ok := slot.Get(w, id); ok {
				comps[i] = v
			}
		}
		snap.order = append(snap.order, id)
		snap.entities[id] = EntitySnapshot{ClassID: classID, Components: comps}
	}
	sort.Slice(snap.order, func(i, j int) bool { return snap.order[i] < snap.order[j] })
	return snap
}

// ApplyTo writes every non-excluded entity's component values from s back
// into w. ensure is invoked for any entity id not yet present in w so the
// caller can run the class's constructor chain before components are set.
// exclude lets the client keep locally-predicted entities untouched.
func (s *WorldSnapshot) ApplyTo(w *ecs.World, classes *entityclass.Registry, ensure func(id ids.EntityID, classID ids.ClassID), exclude func(id ids.EntityID) bool) error {
	for _, id := range s.order {
		if exclude != nil && exclude(id) {
			continue
		}
		ent := s.entities[id]
		if !w.HasEntity(id) {
			ensure(id, ent.ClassID)
		}
		class, ok := classes.ByID(ent.ClassID)
		if !ok {
			return fmt.Errorf("snapshot: unknown class id %d", ent.ClassID)
		}
		for i, slot := range class.Replicated {
			if i >= len(ent.Components) {
				continue
			}
			if v := ent.Components[i]; v != nil {
				slot.Set(w, id, v)
			}
		}
	}
	return nil
}

func valuesEqual(a, b component.Value) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.Equal(b)
}

func valueDistance(a, b component.Value) float64 {
	if a == nil && b == nil {
		return 0
	}
	if a == nil || b == nil {
		return math.Inf(1)
	}
	return a.Distance(b)
}

// Distance sums per-component distances across every entity present in
// either snapshot. Used only by prediction-error reporting.
func (s *WorldSnapshot) Distance(other *WorldSnapshot) float64 {
	seen := make(map[ids.EntityID]bool, len(s.order)+len(other.order))
	total := 0.0
	walk := func(id ids.EntityID) {
		if seen[id] {
			return
		}
		seen[id] = true
		a, aok := s.Get(id)
		b, bok := other.Get(id)
		switch {
		case aok && bok:
			n := len(a.Components)
			if len(b.Components) > n {
				n = len(b.Components)
			}
			for i := 0; i < n; i++ {
				var va, vb component.Value
				if i < len(a.Components) {
					va = a.Components[i]
				}
				if i < len(b.Components) {
					vb = b.Components[i]
				}
				total += valueDistance(va, vb)
			}
		default:
			total += math.Inf(1)
		}
	}
	for _, id := range s.order {
		walk(id)
	}
	for _, id := range other.order {
		walk(id)
	}
	return total
}

// bitsetFor computes, for each replicated slot, whether cur differs from
// prev.
func bitsetFor(prev, cur EntitySnapshot) []bool {
	n := len(cur.Components)
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		var pv component.Value
		if i < len(prev.Components) {
			pv = prev.Components[i]
		}
		bits[i] = !valuesEqual(pv, cur.Components[i])
	}
	return bits
}

func anySet(bits []bool) bool {
	for _, b := range bits {
		if b {
			return true
		}
	}
	return false
}

func writeEntityDeltaBits(w *codec.Writer, prev, cur EntitySnapshot) []bool {
	bits := bitsetFor(prev, cur)
	for _, b := range bits {
		w.WriteBit(b)
	}
	for i, b := range bits {
		if b {
			cur.Components[i].Encode(w)
		}
	}
	return bits
}

func readEntityDeltaBits(r *codec.Reader, class *entityclass.Class, prev EntitySnapshot) (EntitySnapshot, error) {
	n := len(class.Replicated)
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		b, err := r.ReadBit()
		if err != nil {
			return EntitySnapshot{}, err
		}
		bits[i] = b
	}
	cur := EntitySnapshot{ClassID: class.ID, Components: make([]component.Value, n)}
	for i := 0; i < n; i++ {
		if bits[i] {
			v, err := class.Replicated[i].Decode(r)
			if err != nil {
				return EntitySnapshot{}, err
			}
			cur.Components[i] = v
		} else if i < len(prev.Components) {
			cur.Components[i] = prev.Components[i]
		}
	}
	return cur, nil
}

type op uint64

const (
	opRemoved op = iota
	opCreated
	opChanged
	opEnd
)

func writeOp(w *codec.Writer, o op) { w.WriteBits(uint64(o), 2) }

func readOp(r *codec.Reader) (op, error) {
	v, err := r.ReadBits(2)
	return op(v), err
}

// WriteWorldDelta encodes cur against prev as an ordered full-join over
// ascending EntityId, emitting Removed/Created/Changed operations and a
// terminator. An entity present in both with no changed component is
// omitted entirely.
func WriteWorldDelta(w *codec.Writer, classes *entityclass.Registry, prev, cur *WorldSnapshot) error {
	pIDs, cIDs := prev.order, cur.order
	pi, ci := 0, 0
	for pi < len(pIDs) || ci < len(cIDs) {
		switch {
		case ci >= len(cIDs) || (pi < len(pIDs) && pIDs[pi] < cIDs[ci]):
			writeOp(w, opRemoved)
			w.WriteUint32(uint32(pIDs[pi]))
			pi++
		case pi >= len(pIDs) || cIDs[ci] < pIDs[pi]:
			id := cIDs[ci]
			curEnt := cur.entities[id]
			class, ok := classes.ByID(curEnt.ClassID)
			if !ok {
				return fmt.Errorf("snapshot: unknown class id %d", curEnt.ClassID)
			}
			writeOp(w, opCreated)
			w.WriteUint32(uint32(id))
			w.WriteUint16(uint16(curEnt.ClassID))
			empty := EntitySnapshot{ClassID: curEnt.ClassID, Components: make([]component.Value, len(class.Replicated))}
			writeEntityDeltaBits(w, empty, curEnt)
			ci++
		default:
			id := cIDs[ci]
			prevEnt := prev.entities[id]
			curEnt := cur.entities[id]
			if prevEnt.ClassID != curEnt.ClassID {
				// Class is immutable; in-place class change signals a
				// protocol error upstream. The decoder accepts it as an
				// implicit remove+create.
				class, ok := classes.ByID(curEnt.ClassID)
				if !ok {
					return fmt.Errorf("snapshot: unknown class id %d", curEnt.ClassID)
				}
				writeOp(w, opRemoved)
				w.WriteUint32(uint32(id))
				writeOp(w, opCreated)
				w.WriteUint32(uint32(id))
				w.WriteUint16(uint16(curEnt.ClassID))
				empty := EntitySnapshot{ClassID: curEnt.ClassID, Components: make([]component.Value, len(class.Replicated))}
				writeEntityDeltaBits(w, empty, curEnt)
			} else {
				bits := bitsetFor(prevEnt, curEnt)
				if anySet(bits) {
					writeOp(w, opChanged)
					w.WriteUint32(uint32(id))
					for _, b := range bits {
						w.WriteBit(b)
					}
					for i, b := range bits {
						if b {
							curEnt.Components[i].Encode(w)
						}
					}
				}
			}
			pi++
			ci++
		}
	}
	writeOp(w, opEnd)
	return nil
}

// ReadWorldDelta decodes a world delta written by WriteWorldDelta. prev may
// be nil, treated as empty. The result is prev (or empty) with every
// recorded operation applied, so unmodified entities carry forward
// unchanged -- this is what makes delta_read(delta_write(prev, cur)) == cur.
func ReadWorldDelta(r *codec.Reader, classes *entityclass.Registry, prev *WorldSnapshot, tick ids.TickNum) (*WorldSnapshot, error) {
	var cur *WorldSnapshot
	if prev != nil {
		cur = prev.Clone()
	} else {
		cur = NewWorldSnapshot(tick)
	}
	cur.Tick = tick

	for {
		o, err := readOp(r)
		if err != nil {
			return nil, err
		}
		switch o {
		case opEnd:
			return cur, nil
		case opRemoved:
			id, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			cur.Delete(ids.EntityID(id))
		case opCreated:
			id, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			classID, err := r.ReadUint16()
			if err != nil {
				return nil, err
			}
			class, ok := classes.ByID(ids.ClassID(classID))
			if !ok {
				return nil, fmt.Errorf("snapshot: unknown class id %d", classID)
			}
			empty := EntitySnapshot{ClassID: class.ID, Components: make([]component.Value, len(class.Replicated))}
			ent, err := readEntityDeltaBits(r, class, empty)
			if err != nil {
				return nil, err
			}
			cur.Set(ids.EntityID(id), ent)
		case opChanged:
			id, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			base, ok := cur.Get(ids.EntityID(id))
			if !ok {
				return nil, fmt.Errorf("snapshot: changed unknown entity %d", id)
			}
			class, ok := classes.ByID(base.ClassID)
			if !ok {
				return nil, fmt.Errorf("snapshot: unknown class id %d", base.ClassID)
			}
			ent, err := readEntityDeltaBits(r, class, base)
			if err != nil {
				return nil, err
			}
			cur.Set(ids.EntityID(id), ent)
		}
	}
}
