// Package world models live instances and the global member table: the
// runtime counterpart of §4.I of the front-end's scope-resolution rules.
package world

import (
	"gmlvm/internal/symbol"
	"gmlvm/internal/value"
)

// FirstInstanceID is the first id handed out by CreateInstance. Ids below
// this value are reserved for object class indices, so a with-target's
// magnitude alone tells a specific instance from a whole class.
const FirstInstanceID = 100001

// member holds one instance or global slot: either a plain scalar, or (once
// an indexed write or read has promoted it) a backing array whose [0,0]
// cell mirrors the scalar that used to live there.
type member struct {
	scalar value.Value
	array  *value.Array
}

func (m *member) get() value.Value {
	if m.array != nil {
		v, _ := m.array.Get(0, 0)
		return v
	}
	return m.scalar
}

func (m *member) set(v value.Value) {
	m.scalar = v
	m.array = nil
}

func (m *member) promote() *value.Array {
	if m.array == nil {
		m.array = value.NewArray()
		m.array.Set(0, 0, m.scalar)
	}
	return m.array
}

// Instance is a live object in the world.
type Instance struct {
	ID          int
	ObjectClass int

	members   map[symbol.Symbol]*member
	destroyed bool
}

func newInstance(id, objectClass int) *Instance {
	return &Instance{ID: id, ObjectClass: objectClass, members: make(map[symbol.Symbol]*member)}
}

// Destroyed reports whether Destroy has been called on this instance.
// Get and Set still work on a destroyed *Instance the caller already
// holds, but World.Instance no longer returns it by id.
func (i *Instance) Destroyed() bool { return i.destroyed }

func (i *Instance) slot(sym symbol.Symbol) *member {
	m, ok := i.members[sym]
	if !ok {
		m = &member{scalar: value.Real(0)}
		i.members[sym] = m
	}
	return m
}

// Get reads a dynamic member, defaulting to Real(0) if never written. A
// bare read of a member that has been promoted to an array returns its
// [0,0] cell, mirroring the scalar it replaced.
func (i *Instance) Get(sym symbol.Symbol) value.Value {
	m, ok := i.members[sym]
	if !ok {
		return value.Real(0)
	}
	return m.get()
}

// Set writes a dynamic member as a plain scalar, demoting it out of array
// form if it had been promoted — a whole-value assignment replaces
// whatever shape the member previously had.
func (i *Instance) Set(sym symbol.Symbol, v value.Value) {
	i.slot(sym).set(v)
}

// GetIndexed reads one cell of a dynamic member, promoting it to array form
// on first indexed access (§4.F scalar-to-array promotion). A
// one-dimensional read passes j = 0.
func (i *Instance) GetIndexed(sym symbol.Symbol, idx, idx2 int) (value.Value, error) {
	return i.slot(sym).promote().Get(idx, idx2)
}

// SetIndexed writes one cell of a dynamic member, promoting it to array
// form on first indexed write.
func (i *Instance) SetIndexed(sym symbol.Symbol, idx, idx2 int, v value.Value) error {
	return i.slot(sym).promote().Set(idx, idx2, v)
}
