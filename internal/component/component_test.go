package component

import (
	"testing"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/ids"
)

type intValue int

func (v intValue) Encode(w *codec.Writer) { w.WriteUint32(uint32(v)) }
func (v intValue) Equal(other Value) bool { return v == other.(intValue) }
func (v intValue) Distance(other Value) float64 {
	d := int(v) - int(other.(intValue))
	if d < 0 {
		d = -d
	}
	return float64(d)
}

func decodeIntValue(r *codec.Reader) (Value, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return intValue(n), nil
}

type fakeWorld struct {
	values map[ids.EntityID]intValue
}

func (w *fakeWorld) HasEntity(id ids.EntityID) bool {
	_, ok := w.values[id]
	return ok
}

func newHealthType() Type {
	return Type{
		Name:   "health",
		Decode: decodeIntValue,
		Get: func(w WorldLike, id ids.EntityID) (Value, bool) {
			fw := w.(*fakeWorld)
			v, ok := fw.values[id]
			return v, ok
		},
		Set: func(w WorldLike, id ids.EntityID, v Value) {
			w.(*fakeWorld).values[id] = v.(intValue)
		},
	}
}

func TestValueEqualAndDistance(t *testing.T) {
	a, b := intValue(5), intValue(8)
	if a.Equal(b) {
		t.Fatal("expected 5 != 8")
	}
	if a.Distance(b) != 3 {
		t.Fatalf("expected distance 3, got %v", a.Distance(b))
	}
}

func TestTypeEncodeDecodeRoundTrip(t *testing.T) {
	ty := newHealthType()
	w := codec.NewWriter()
	intValue(42).Encode(w)

	r := codec.NewReader(w.Bytes())
	got, err := ty.Decode(r)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.(intValue) != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestTypeGetSetRoundTrip(t *testing.T) {
	ty := newHealthType()
	w := &fakeWorld{values: map[ids.EntityID]intValue{}}

	if _, ok := ty.Get(w, 1); ok {
		t.Fatal("expected no value before Set")
	}

	ty.Set(w, 1, intValue(10))
	got, ok := ty.Get(w, 1)
	if !ok || got.(intValue) != 10 {
		t.Fatalf("expected 10, got %v ok=%v", got, ok)
	}
	if !w.HasEntity(1) {
		t.Fatal("expected HasEntity true after Set")
	}
}
