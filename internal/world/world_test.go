package world

import (
	"testing"

	"gmlvm/internal/symbol"
	"gmlvm/internal/value"
)

func TestCreateInstanceStartsAtFirstID(t *testing.T) {
	w := New()
	a := w.CreateInstance(0)
	b := w.CreateInstance(0)
	if a.ID != FirstInstanceID {
		t.Fatalf("expected first id %d, got %d", FirstInstanceID, a.ID)
	}
	if b.ID != a.ID+1 {
		t.Fatalf("expected unique sequential ids, got %d then %d", a.ID, b.ID)
	}
}

func TestDestroyIsVisibleUntilSweep(t *testing.T) {
	w := New()
	inst := w.CreateInstance(0)
	w.Destroy(inst.ID)
	if _, ok := w.Instance(inst.ID); ok {
		t.Fatalf("a destroyed instance should not resolve via Instance")
	}
	if !inst.Destroyed() {
		t.Fatalf("expected Destroyed() to report true")
	}
	w.FreeDestroyed()
	if _, ok := w.instances[inst.ID]; ok {
		t.Fatalf("expected FreeDestroyed to remove the tombstoned instance")
	}
}

func TestMemberScalarToArrayPromotion(t *testing.T) {
	w := New()
	inst := w.CreateInstance(0)
	sym := symbol.Intern("a")
	inst.Set(sym, value.Real(3))
	if got := inst.Get(sym).AsReal(); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}

	if err := inst.SetIndexed(sym, 1, 0, value.Real(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zero, _ := inst.GetIndexed(sym, 0, 0)
	if zero.AsReal() != 3 {
		t.Fatalf("expected promotion to preserve the scalar at index 0, got %v", zero)
	}
	one, _ := inst.GetIndexed(sym, 1, 0)
	if one.AsReal() != 5 {
		t.Fatalf("expected 5 at index 1, got %v", one)
	}
	if got := inst.Get(sym).AsReal(); got != 3 {
		t.Fatalf("a bare read of a promoted member should still read index 0, got %v", got)
	}
}

func TestResolveClassAndSingleAndAll(t *testing.T) {
	w := New()
	a := w.CreateInstance(1)
	b := w.CreateInstance(1)
	c := w.CreateInstance(2)

	class := w.Resolve(SetClass, 1)
	if len(class) != 2 || class[0] != a.ID || class[1] != b.ID {
		t.Fatalf("expected [%d %d], got %v", a.ID, b.ID, class)
	}

	single := w.Resolve(SetSingle, c.ID)
	if len(single) != 1 || single[0] != c.ID {
		t.Fatalf("expected [%d], got %v", c.ID, single)
	}

	all := w.Resolve(SetAll, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 live instances, got %d", len(all))
	}

	if got := w.Resolve(SetNone, 0); got != nil {
		t.Fatalf("expected SetNone to resolve to nothing, got %v", got)
	}
}

func TestResolveSkipsDestroyedAtMaterialization(t *testing.T) {
	w := New()
	a := w.CreateInstance(1)
	b := w.CreateInstance(1)
	w.Destroy(a.ID)

	class := w.Resolve(SetClass, 1)
	if len(class) != 1 || class[0] != b.ID {
		t.Fatalf("expected only the live instance, got %v", class)
	}
}

func TestClassifyMagnitude(t *testing.T) {
	if ClassifyMagnitude(5) != SetClass {
		t.Fatalf("expected a small magnitude to classify as SetClass")
	}
	if ClassifyMagnitude(FirstInstanceID) != SetSingle {
		t.Fatalf("expected FirstInstanceID to classify as SetSingle")
	}
}

func TestGlobalMembers(t *testing.T) {
	w := New()
	sym := symbol.Intern("score")
	w.SetGlobal(sym, value.Real(7))
	if got := w.GetGlobal(sym).AsReal(); got != 7 {
		t.Fatalf("expected 7, got %v", got)
	}
}
