package entityclass

import (
	"testing"

	"github.com/andersfylling/hooksmp/internal/component"
)

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	reg := NewRegistry()
	player := reg.Register("player", nil, nil)
	enemy := reg.Register("enemy", nil, nil)

	if player.ID != 0 {
		t.Fatalf("expected first class id 0, got %d", player.ID)
	}
	if enemy.ID != 1 {
		t.Fatalf("expected second class id 1, got %d", enemy.ID)
	}
}

func TestByNameAndByID(t *testing.T) {
	reg := NewRegistry()
	want := reg.Register("fist", []component.Type{{Name: "position"}}, nil)

	got, ok := reg.ByName("fist")
	if !ok || got != want {
		t.Fatalf("ByName: expected %#v, got %#v ok=%v", want, got, ok)
	}

	got, ok = reg.ByID(want.ID)
	if !ok || got != want {
		t.Fatalf("ByID: expected %#v, got %#v ok=%v", want, got, ok)
	}

	if _, ok := reg.ByID(99); ok {
		t.Fatal("expected ByID to fail for an unregistered id")
	}
	if _, ok := reg.ByName("missing"); ok {
		t.Fatal("expected ByName to fail for an unregistered name")
	}
}

func TestRegisterDuplicateNamePanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register("player", nil, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate class name")
		}
	}()
	reg.Register("player", nil, nil)
}
