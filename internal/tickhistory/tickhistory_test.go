package tickhistory

import (
	"testing"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/snapshot"
)

type pokeEvent struct{ N uint32 }

func (pokeEvent) Class() event.Class { return event.Order }

func registryWithPoke() *event.Registry {
	reg := event.NewRegistry()
	event.Register[pokeEvent](reg, event.Order,
		func(e *pokeEvent, w *codec.Writer) { w.WriteUint32(e.N) },
		func(r *codec.Reader) (*pokeEvent, error) {
			n, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			return &pokeEvent{N: n}, nil
		})
	return reg
}

func newEmptyHistory() *History {
	return New(event.NewRegistry(), entityclass.NewRegistry())
}

func TestPushRequiresSequentialGrowth(t *testing.T) {
	h := newEmptyHistory()
	h.Push(ids.FirstTick, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick)})
	if h.MaxNum() != ids.FirstTick {
		t.Fatalf("expected MaxNum %d, got %d", ids.FirstTick, h.MaxNum())
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when pushing a non-sequential tick")
		}
	}()
	h.Push(ids.FirstTick+5, Data{})
}

func TestPruneOlderDropsBelowBoundary(t *testing.T) {
	h := newEmptyHistory()
	for i := 0; i < 5; i++ {
		n := ids.FirstTick + ids.TickNum(i)
		h.Push(n, Data{Snapshot: snapshot.NewWorldSnapshot(n)})
	}
	h.PruneOlder(ids.FirstTick + 3)
	if h.MinNum() != ids.FirstTick+3 {
		t.Fatalf("expected MinNum %d, got %d", ids.FirstTick+3, h.MinNum())
	}
	if h.Len() != 2 {
		t.Fatalf("expected 2 remaining ticks, got %d", h.Len())
	}
}

func TestDeltaWriteReadFirstTickRoundTrip(t *testing.T) {
	writer := newEmptyHistory()
	writer.Push(ids.FirstTick, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick)})

	w := codec.NewWriter()
	if err := writer.DeltaWrite(w, nil, ids.FirstTick); err != nil {
		t.Fatalf("DeltaWrite: %v", err)
	}

	reader := newEmptyHistory()
	r := codec.NewReader(w.Bytes())
	prevNum, curNum, err, stale := reader.DeltaRead(r)
	if err != nil {
		t.Fatalf("DeltaRead: %v", err)
	}
	if stale {
		t.Fatal("expected a fresh tick, not stale")
	}
	if prevNum != nil {
		t.Fatalf("expected no reference tick for the first delta, got %v", *prevNum)
	}
	if curNum != ids.FirstTick {
		t.Fatalf("expected curNum %d, got %d", ids.FirstTick, curNum)
	}
	if reader.MaxNum() != ids.FirstTick {
		t.Fatalf("expected reader to have absorbed tick %d, got %d", ids.FirstTick, reader.MaxNum())
	}
}

func TestDeltaReadRejectsStaleTick(t *testing.T) {
	writer := newEmptyHistory()
	writer.Push(ids.FirstTick, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick)})

	w := codec.NewWriter()
	if err := writer.DeltaWrite(w, nil, ids.FirstTick); err != nil {
		t.Fatalf("DeltaWrite: %v", err)
	}

	reader := newEmptyHistory()
	reader.Push(ids.FirstTick, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick)})
	reader.Push(ids.FirstTick+1, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick + 1)})

	r := codec.NewReader(w.Bytes())
	_, curNum, err, stale := reader.DeltaRead(r)
	if err != nil {
		t.Fatalf("DeltaRead: %v", err)
	}
	if !stale {
		t.Fatal("expected a tick at or below MaxNum to be reported stale")
	}
	if curNum != ids.FirstTick {
		t.Fatalf("expected curNum %d, got %d", ids.FirstTick, curNum)
	}
}

func TestDeltaWriteReadAgainstReferenceTick(t *testing.T) {
	writer := newEmptyHistory()
	writer.Push(ids.FirstTick, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick)})
	writer.Push(ids.FirstTick+1, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick + 1)})

	w := codec.NewWriter()
	ref := ids.FirstTick
	if err := writer.DeltaWrite(w, &ref, ids.FirstTick+1); err != nil {
		t.Fatalf("DeltaWrite: %v", err)
	}

	reader := newEmptyHistory()
	reader.Push(ids.FirstTick, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick)})

	r := codec.NewReader(w.Bytes())
	prevNum, curNum, err, stale := reader.DeltaRead(r)
	if err != nil {
		t.Fatalf("DeltaRead: %v", err)
	}
	if stale {
		t.Fatal("expected a fresh tick")
	}
	if prevNum == nil || *prevNum != ids.FirstTick {
		t.Fatalf("expected reference tick %d, got %v", ids.FirstTick, prevNum)
	}
	if curNum != ids.FirstTick+1 {
		t.Fatalf("expected curNum %d, got %d", ids.FirstTick+1, curNum)
	}
}

func TestDeltaWriteWithExtraAppendsWithoutMutatingHistory(t *testing.T) {
	reg := registryWithPoke()
	writer := New(reg, entityclass.NewRegistry())
	writer.Push(ids.FirstTick, Data{Snapshot: snapshot.NewWorldSnapshot(ids.FirstTick)})

	w := codec.NewWriter()
	extra := []event.Event{&pokeEvent{N: 42}}
	if err := writer.DeltaWriteWithExtra(w, nil, ids.FirstTick, extra); err != nil {
		t.Fatalf("DeltaWriteWithExtra: %v", err)
	}

	stored, _ := writer.Get(ids.FirstTick)
	if len(stored.Events) != 0 {
		t.Fatalf("expected the stored history entry untouched, got %d events", len(stored.Events))
	}

	reader := New(reg, entityclass.NewRegistry())
	r := codec.NewReader(w.Bytes())
	_, curNum, err, stale := reader.DeltaRead(r)
	if err != nil {
		t.Fatalf("DeltaRead: %v", err)
	}
	if stale {
		t.Fatal("expected a fresh tick")
	}
	data, ok := reader.Get(curNum)
	if !ok || len(data.Events) != 1 {
		t.Fatalf("expected exactly 1 decoded event, got %#v", data)
	}
	poke, ok := data.Events[0].(*pokeEvent)
	if !ok || poke.N != 42 {
		t.Fatalf("expected pokeEvent{N:42}, got %#v", data.Events[0])
	}

	w2 := codec.NewWriter()
	if err := writer.DeltaWrite(w2, nil, ids.FirstTick); err != nil {
		t.Fatalf("DeltaWrite: %v", err)
	}
	reader2 := New(reg, entityclass.NewRegistry())
	r2 := codec.NewReader(w2.Bytes())
	_, curNum2, err, _ := reader2.DeltaRead(r2)
	if err != nil {
		t.Fatalf("DeltaRead: %v", err)
	}
	data2, _ := reader2.Get(curNum2)
	if len(data2.Events) != 0 {
		t.Fatalf("expected a later plain DeltaWrite to carry no events, got %d", len(data2.Events))
	}
}
