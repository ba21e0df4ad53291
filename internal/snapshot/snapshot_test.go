package snapshot

import (
	"testing"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/component"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/ids"
)

type intValue int

func (v intValue) Encode(w *codec.Writer) { w.WriteUint32(uint32(v)) }
func (v intValue) Equal(other component.Value) bool { return v == other.(intValue) }
func (v intValue) Distance(other component.Value) float64 {
	d := int(v) - int(other.(intValue))
	if d < 0 {
		d = -d
	}
	return float64(d)
}

func decodeIntValue(r *codec.Reader) (component.Value, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return intValue(n), nil
}

func newTestClasses() (*entityclass.Registry, *entityclass.Class) {
	reg := entityclass.NewRegistry()
	cls := reg.Register("counter", []component.Type{{Name: "health", Decode: decodeIntValue}}, nil)
	return reg, cls
}

func snap(tick ids.TickNum, classID ids.ClassID, entries map[ids.EntityID]int) *WorldSnapshot {
	s := NewWorldSnapshot(tick)
	for id, v := range entries {
		s.Set(id, EntitySnapshot{ClassID: classID, Components: []component.Value{intValue(v)}})
	}
	return s
}

func TestWorldSnapshotSetGetDeleteOrdering(t *testing.T) {
	_, cls := newTestClasses()
	s := NewWorldSnapshot(1)
	s.Set(5, EntitySnapshot{ClassID: cls.ID, Components: []component.Value{intValue(1)}})
	s.Set(2, EntitySnapshot{ClassID: cls.ID, Components: []component.Value{intValue(2)}})
	s.Set(8, EntitySnapshot{ClassID: cls.ID, Components: []component.Value{intValue(3)}})

	order := s.Ascending()
	want := []ids.EntityID{2, 5, 8}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}

	s.Delete(5)
	if _, ok := s.Get(5); ok {
		t.Fatal("expected entity 5 gone after Delete")
	}
	if s.Len() != 2 {
		t.Fatalf("expected len 2, got %d", s.Len())
	}
}

func TestWorldSnapshotCloneIsIndependent(t *testing.T) {
	s := snap(1, 0, map[ids.EntityID]int{1: 10})
	clone := s.Clone()
	clone.Set(1, EntitySnapshot{ClassID: 0, Components: []component.Value{intValue(99)}})

	orig, _ := s.Get(1)
	if orig.Components[0].(intValue) != 10 {
		t.Fatalf("expected original snapshot untouched, got %v", orig.Components[0])
	}
}

func TestWorldSnapshotDistance(t *testing.T) {
	a := snap(1, 0, map[ids.EntityID]int{1: 10, 2: 5})
	b := snap(2, 0, map[ids.EntityID]int{1: 14, 3: 7})

	// entity 1: |14-10|=4, entity 2: present only in a -> +Inf
	if got := a.Distance(b); got != b.Distance(a) {
		t.Fatalf("expected symmetric distance, got %v vs %v", got, b.Distance(a))
	}
}

func TestWriteReadWorldDeltaFirstTick(t *testing.T) {
	reg, classRef := newTestClasses()
	cur := snap(1, classRef.ID, map[ids.EntityID]int{1: 10, 2: 20})

	w := codec.NewWriter()
	if err := WriteWorldDelta(w, reg, NewWorldSnapshot(0), cur); err != nil {
		t.Fatalf("WriteWorldDelta: %v", err)
	}

	r := codec.NewReader(w.Bytes())
	got, err := ReadWorldDelta(r, reg, nil, 1)
	if err != nil {
		t.Fatalf("ReadWorldDelta: %v", err)
	}
	assertSnapshotsEqual(t, cur, got)
}

func TestWriteReadWorldDeltaChangeAndRemove(t *testing.T) {
	reg, classRef := newTestClasses()
	prev := snap(1, classRef.ID, map[ids.EntityID]int{1: 10, 2: 20})
	cur := snap(2, classRef.ID, map[ids.EntityID]int{1: 15, 3: 30})

	w := codec.NewWriter()
	if err := WriteWorldDelta(w, reg, prev, cur); err != nil {
		t.Fatalf("WriteWorldDelta: %v", err)
	}

	r := codec.NewReader(w.Bytes())
	got, err := ReadWorldDelta(r, reg, prev, 2)
	if err != nil {
		t.Fatalf("ReadWorldDelta: %v", err)
	}
	assertSnapshotsEqual(t, cur, got)

	if _, ok := got.Get(2); ok {
		t.Fatal("expected entity 2 removed")
	}
}

func TestWriteWorldDeltaOmitsUnchangedEntities(t *testing.T) {
	reg, classRef := newTestClasses()
	prev := snap(1, classRef.ID, map[ids.EntityID]int{1: 10})
	cur := snap(2, classRef.ID, map[ids.EntityID]int{1: 10})

	w := codec.NewWriter()
	if err := WriteWorldDelta(w, reg, prev, cur); err != nil {
		t.Fatalf("WriteWorldDelta: %v", err)
	}
	// opEnd (2 bits) only, since nothing changed.
	if len(w.Bytes()) > 1 {
		t.Fatalf("expected a near-empty delta for an unchanged world, got %d bytes", len(w.Bytes()))
	}
}

func assertSnapshotsEqual(t *testing.T, want, got *WorldSnapshot) {
	t.Helper()
	if want.Len() != got.Len() {
		t.Fatalf("expected %d entities, got %d", want.Len(), got.Len())
	}
	for _, id := range want.Ascending() {
		we, _ := want.Get(id)
		ge, ok := got.Get(id)
		if !ok {
			t.Fatalf("expected entity %d present", id)
		}
		if we.ClassID != ge.ClassID {
			t.Fatalf("entity %d: expected class %d, got %d", id, we.ClassID, ge.ClassID)
		}
		for i, v := range we.Components {
			if !v.Equal(ge.Components[i]) {
				t.Fatalf("entity %d component %d: expected %v, got %v", id, i, v, ge.Components[i])
			}
		}
	}
}
