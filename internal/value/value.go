// Package value implements the dynamically-typed Value the virtual machine
// operates on: a small tagged union of reals, interned strings, and array
// handles.
package value

import (
	"errors"
	"fmt"
	"strconv"

	"gmlvm/internal/symbol"
)

// Kind discriminates a Value's payload.
type Kind int

const (
	RealKind Kind = iota
	StringKind
	ArrayKind
)

func (k Kind) String() string {
	switch k {
	case RealKind:
		return "real"
	case StringKind:
		return "string"
	case ArrayKind:
		return "array"
	default:
		return "?"
	}
}

// Value is a tagged union: exactly one of the three payload fields is
// meaningful, selected by kind. The zero Value is Real(0).
type Value struct {
	kind Kind
	real float64
	str  symbol.Symbol
	arr  *Array
}

// Real returns a real-valued Value.
func Real(v float64) Value { return Value{kind: RealKind, real: v} }

// Str returns a string-valued Value wrapping an already-interned symbol.
func Str(s symbol.Symbol) Value { return Value{kind: StringKind, str: s} }

// FromArray returns an array-valued Value wrapping handle.
func FromArray(handle *Array) Value { return Value{kind: ArrayKind, arr: handle} }

// Kind reports which payload field is meaningful.
func (v Value) Kind() Kind { return v.kind }

// IsReal, IsString and IsArray test the Value's kind.
func (v Value) IsReal() bool   { return v.kind == RealKind }
func (v Value) IsString() bool { return v.kind == StringKind }
func (v Value) IsArray() bool  { return v.kind == ArrayKind }

// AsReal returns the real payload; meaningful only when IsReal is true.
func (v Value) AsReal() float64 { return v.real }

// AsString returns the string payload; meaningful only when IsString.
func (v Value) AsString() symbol.Symbol { return v.str }

// AsArray returns the array payload; meaningful only when IsArray.
func (v Value) AsArray() *Array { return v.arr }

// Scalar coerces an array-valued v to the scalar its [0,0] cell holds —
// the same unwrapping a bare member read applies after scalar-to-array
// promotion (§4.F) — and passes any other Value through unchanged. Every
// arithmetic, comparison, and boolean operator applies this before
// looking at kind, so a local that was promoted to an array by an
// indexed write still behaves as its cell 0 value everywhere else it is
// used bare.
func (v Value) Scalar() Value {
	if v.kind != ArrayKind {
		return v
	}
	cell, _ := v.arr.Get(0, 0)
	return cell
}

// ErrNotBoolean is raised when a string or array is used where the VM needs
// a truth value (an `if`/`while`/`repeat` condition, a boolean operator).
var ErrNotBoolean = errors.New("value is not a valid boolean")

// Truthy reports whether v is true in a boolean context: non-zero real.
// Strings and arrays are never valid booleans.
func (v Value) Truthy() (bool, error) {
	if v.kind != RealKind {
		return false, ErrNotBoolean
	}
	return v.real != 0, nil
}

// Equal implements `==`/`!=`: real and string compare by value, array by
// handle identity. Values of different kinds are never equal.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case RealKind:
		return v.real == other.real
	case StringKind:
		return v.str == other.str
	case ArrayKind:
		return v.arr == other.arr
	default:
		return false
	}
}

// ErrNotNumeric is raised when a value can't be coerced to a real for an
// arithmetic operator.
var ErrNotNumeric = errors.New("value is not numeric")

// ToReal coerces v to a float64: reals pass through; strings of digits
// parse lazily; arrays never coerce.
func (v Value) ToReal() (float64, error) {
	switch v.kind {
	case RealKind:
		return v.real, nil
	case StringKind:
		f, err := strconv.ParseFloat(v.str.String(), 64)
		if err != nil {
			return 0, ErrNotNumeric
		}
		return f, nil
	default:
		return 0, ErrNotNumeric
	}
}

func (v Value) String() string {
	switch v.kind {
	case RealKind:
		return strconv.FormatFloat(v.real, 'g', -1, 64)
	case StringKind:
		return v.str.String()
	case ArrayKind:
		return fmt.Sprintf("array(%p)", v.arr)
	default:
		return "?"
	}
}
