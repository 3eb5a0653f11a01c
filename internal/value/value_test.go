package value

import (
	"testing"

	"gmlvm/internal/symbol"
)

func TestTruthy(t *testing.T) {
	truthy, err := Real(1).Truthy()
	if err != nil || !truthy {
		t.Fatalf("Real(1) should be truthy, got %v, %v", truthy, err)
	}
	falsy, err := Real(0).Truthy()
	if err != nil || falsy {
		t.Fatalf("Real(0) should be falsy, got %v, %v", falsy, err)
	}
	if _, err := Str(symbol.Intern("x")).Truthy(); err != ErrNotBoolean {
		t.Fatalf("expected ErrNotBoolean for a string, got %v", err)
	}
	if _, err := FromArray(NewArray()).Truthy(); err != ErrNotBoolean {
		t.Fatalf("expected ErrNotBoolean for an array, got %v", err)
	}
}

func TestEqualByKind(t *testing.T) {
	if !Real(3).Equal(Real(3)) {
		t.Fatalf("equal reals should compare equal")
	}
	a, b := symbol.Intern("same"), symbol.Intern("same")
	if !Str(a).Equal(Str(b)) {
		t.Fatalf("equal interned strings should compare equal")
	}
	if Real(3).Equal(Str(symbol.Intern("3"))) {
		t.Fatalf("values of different kinds should never be equal")
	}
	arr1, arr2 := NewArray(), NewArray()
	if FromArray(arr1).Equal(FromArray(arr2)) {
		t.Fatalf("distinct array handles should not compare equal")
	}
	if !FromArray(arr1).Equal(FromArray(arr1)) {
		t.Fatalf("the same array handle should compare equal to itself")
	}
}

func TestToRealCoercesDigitStrings(t *testing.T) {
	f, err := Str(symbol.Intern("42")).ToReal()
	if err != nil || f != 42 {
		t.Fatalf("expected 42, got %v, %v", f, err)
	}
	if _, err := Str(symbol.Intern("abc")).ToReal(); err == nil {
		t.Fatalf("expected a coercion error for a non-numeric string")
	}
}

func TestArrayDefaultsToZeroAndGrowsOnWrite(t *testing.T) {
	a := NewArray()
	v, err := a.Get(5, 0)
	if err != nil || v.AsReal() != 0 {
		t.Fatalf("expected default Real(0), got %v, %v", v, err)
	}
	if err := a.Set(5, 0, Real(9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, _ = a.Get(5, 0)
	if v.AsReal() != 9 {
		t.Fatalf("expected 9 after write, got %v", v.AsReal())
	}
}

func TestArrayNegativeIndexErrors(t *testing.T) {
	a := NewArray()
	if _, err := a.Get(-1, 0); err != ErrNegativeIndex {
		t.Fatalf("expected ErrNegativeIndex, got %v", err)
	}
	if err := a.Set(0, -1, Real(1)); err != ErrNegativeIndex {
		t.Fatalf("expected ErrNegativeIndex, got %v", err)
	}
}

func TestArrayCloneIsIndependent(t *testing.T) {
	a := NewArray()
	a.Set(0, 0, Real(1))
	b := a.Clone()
	b.Set(0, 0, Real(2))

	av, _ := a.Get(0, 0)
	bv, _ := b.Get(0, 0)
	if av.AsReal() != 1 || bv.AsReal() != 2 {
		t.Fatalf("clone should be independent, got a=%v b=%v", av, bv)
	}
}
