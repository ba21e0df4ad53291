package event

import (
	"testing"

	"github.com/andersfylling/hooksmp/internal/codec"
)

type joinedEvent struct {
	Player uint32
}

func (joinedEvent) Class() Class { return Order }

type pingedEvent struct {
	Seq uint32
}

func registryWithTypes() *Registry {
	reg := NewRegistry()
	Register[joinedEvent](reg, Order, func(e *joinedEvent, w *codec.Writer) {
		w.WriteUint32(e.Player)
	}, func(r *codec.Reader) (*joinedEvent, error) {
		v, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		return &joinedEvent{Player: v}, nil
	})
	Register[pingedEvent](reg, Local, func(e *pingedEvent, w *codec.Writer) {
		w.WriteUint32(e.Seq)
	}, func(r *codec.Reader) (*pingedEvent, error) {
		v, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		return &pingedEvent{Seq: v}, nil
	})
	return reg
}

func TestRegistryWriteReadRoundTrip(t *testing.T) {
	reg := registryWithTypes()

	w := codec.NewWriter()
	reg.Write(&joinedEvent{Player: 7}, w)

	r := codec.NewReader(w.Bytes())
	got, err := reg.Read(r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	je, ok := got.(*joinedEvent)
	if !ok || je.Player != 7 {
		t.Fatalf("got %#v", got)
	}
}

func TestRegistryClassOf(t *testing.T) {
	reg := registryWithTypes()
	if reg.ClassOf(&joinedEvent{}) != Order {
		t.Fatal("expected Order")
	}
	if reg.ClassOf(&pingedEvent{}) != Local {
		t.Fatal("expected Local")
	}
	if reg.ClassOf(&struct{}{}) != Local {
		t.Fatal("expected Local default for unregistered type")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reg := registryWithTypes()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register[joinedEvent](reg, Order, func(*joinedEvent, *codec.Writer) {}, func(*codec.Reader) (*joinedEvent, error) { return nil, nil })
}

func TestReadInvalidTypeIndex(t *testing.T) {
	reg := registryWithTypes()
	w := codec.NewWriter()
	w.WriteUint16(99)
	r := codec.NewReader(w.Bytes())
	if _, err := reg.Read(r); err != ErrInvalidTypeIndex {
		t.Fatalf("expected ErrInvalidTypeIndex, got %v", err)
	}
}

func TestSinkPushDrain(t *testing.T) {
	reg := registryWithTypes()
	sink := NewSink(reg)

	sink.BeginTick()
	sink.Push(&joinedEvent{Player: 1})
	sink.Push(&pingedEvent{Seq: 1})

	pending := sink.DrainPending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending events, got %d", len(pending))
	}
	if more := sink.DrainPending(); len(more) != 0 {
		t.Fatalf("expected pending drained, got %d", len(more))
	}

	order := sink.DrainOrder()
	if len(order) != 1 {
		t.Fatalf("expected 1 order event (the Classed one), got %d", len(order))
	}
	if _, ok := order[0].(*joinedEvent); !ok {
		t.Fatalf("expected joinedEvent in order log, got %#v", order[0])
	}
}

func TestSinkIgnoreSuppressesPush(t *testing.T) {
	reg := registryWithTypes()
	sink := NewSink(reg)
	sink.Ignore = true
	sink.Push(&joinedEvent{Player: 5})
	if got := sink.DrainPending(); len(got) != 0 {
		t.Fatalf("expected no pending events while Ignore is set, got %d", len(got))
	}
}
