package world

import (
	"gmlvm/internal/symbol"
	"gmlvm/internal/value"
)

// World is the set of live instances, indexed by id and iterable by object
// class, plus the global member table.
type World struct {
	instances map[int]*Instance
	order     []int // insertion order, the iteration order for with-sets
	nextID    int

	globals map[symbol.Symbol]*member
}

// New returns an empty World, ready to create instances starting at
// FirstInstanceID.
func New() *World {
	return &World{
		instances: make(map[int]*Instance),
		nextID:    FirstInstanceID,
		globals:   make(map[symbol.Symbol]*member),
	}
}

// CreateInstance allocates the next id, inserts the instance into the
// world, and returns it with every member defaulted to Real(0); the caller
// (the host engine binding) is responsible for initializing builtin
// members from the object template.
func (w *World) CreateInstance(objectClass int) *Instance {
	id := w.nextID
	w.nextID++
	inst := newInstance(id, objectClass)
	w.instances[id] = inst
	w.order = append(w.order, id)
	return inst
}

// Instance looks up a live (non-destroyed) instance by id.
func (w *World) Instance(id int) (*Instance, bool) {
	inst, ok := w.instances[id]
	if !ok || inst.destroyed {
		return nil, false
	}
	return inst, true
}

// Destroy tombstones an instance. It stays in the world's table until the
// next FreeDestroyed sweep, and a caller already holding its *Instance can
// still read and write its members; Instance no longer returns it, so
// lookups by id (the VM's id.field access included) fail from the moment
// it is destroyed.
func (w *World) Destroy(id int) {
	if inst, ok := w.instances[id]; ok {
		inst.destroyed = true
	}
}

// FreeDestroyed removes every tombstoned instance from the world.
func (w *World) FreeDestroyed() {
	live := w.order[:0]
	for _, id := range w.order {
		if w.instances[id].destroyed {
			delete(w.instances, id)
			continue
		}
		live = append(live, id)
	}
	w.order = live
}

func (w *World) globalSlot(sym symbol.Symbol) *member {
	m, ok := w.globals[sym]
	if !ok {
		m = &member{scalar: value.Real(0)}
		w.globals[sym] = m
	}
	return m
}

// GetGlobal and SetGlobal access the world's shared global member table,
// the backing store for `globalvar` aliases and explicit `global.x`.
func (w *World) GetGlobal(sym symbol.Symbol) value.Value {
	m, ok := w.globals[sym]
	if !ok {
		return value.Real(0)
	}
	return m.get()
}

func (w *World) SetGlobal(sym symbol.Symbol, v value.Value) {
	w.globalSlot(sym).set(v)
}

func (w *World) GetGlobalIndexed(sym symbol.Symbol, idx, idx2 int) (value.Value, error) {
	return w.globalSlot(sym).promote().Get(idx, idx2)
}

func (w *World) SetGlobalIndexed(sym symbol.Symbol, idx, idx2 int, v value.Value) error {
	return w.globalSlot(sym).promote().Set(idx, idx2, v)
}

// SetKind discriminates the shape of a with-target.
type SetKind int

const (
	SetSingle SetKind = iota
	SetClass
	SetAll
	SetNone
)

// ClassifyMagnitude tells a specific instance id from an object class index
// by magnitude alone, per §4.F: ids are always ≥ FirstInstanceID.
func ClassifyMagnitude(v float64) SetKind {
	if int(v) >= FirstInstanceID {
		return SetSingle
	}
	return SetClass
}

// Resolve returns the ids a with-target names, in the world's insertion
// order, skipping any instance already destroyed at materialization time.
func (w *World) Resolve(kind SetKind, arg int) []int {
	switch kind {
	case SetSingle:
		if _, ok := w.Instance(arg); ok {
			return []int{arg}
		}
		return nil
	case SetClass:
		var ids []int
		for _, id := range w.order {
			inst := w.instances[id]
			if !inst.destroyed && inst.ObjectClass == arg {
				ids = append(ids, id)
			}
		}
		return ids
	case SetAll:
		var ids []int
		for _, id := range w.order {
			if !w.instances[id].destroyed {
				ids = append(ids, id)
			}
		}
		return ids
	default: // SetNone
		return nil
	}
}
