package ids

import "testing"

func TestEntityIDValid(t *testing.T) {
	if InvalidEntityID.Valid() {
		t.Fatal("expected the zero entity id to be invalid")
	}
	if !EntityID(1).Valid() {
		t.Fatal("expected a nonzero entity id to be valid")
	}
}

func TestPlayerIDValid(t *testing.T) {
	if InvalidPlayerID.Valid() {
		t.Fatal("expected the zero player id (world-owned) to be invalid")
	}
	if !PlayerID(1).Valid() {
		t.Fatal("expected a nonzero player id to be valid")
	}
}

func TestFirstTickIsOne(t *testing.T) {
	if FirstTick != 1 {
		t.Fatalf("expected FirstTick == 1, got %d", FirstTick)
	}
}
