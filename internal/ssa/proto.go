package ssa

import "gmlvm/internal/symbol"

// ProtoKind discriminates a name's compile-time role.
type ProtoKind int

const (
	ProtoScript ProtoKind = iota
	ProtoNative
	ProtoMember
)

// Proto is one entry of the prototype table: what a Symbol resolves to
// when it appears in call position, or (for ProtoMember) what kind of
// member binding backs it.
type Proto struct {
	Kind     ProtoKind
	ScriptID int  // ProtoScript
	Arity    int  // ProtoNative
	Variadic bool // ProtoNative
}

// Prototypes maps every Symbol known to the host — scripts, natives, and
// member bindings — to its Proto. Built once per compilation and shared
// read-only across every function's codegen.
type Prototypes struct {
	entries map[symbol.Symbol]Proto
}

// NewPrototypes returns an empty table.
func NewPrototypes() *Prototypes {
	return &Prototypes{entries: make(map[symbol.Symbol]Proto)}
}

// AddScript registers sym as a script callable with the given identity.
func (p *Prototypes) AddScript(sym symbol.Symbol, id int) {
	p.entries[sym] = Proto{Kind: ProtoScript, ScriptID: id}
}

// AddNative registers sym as a host-provided native function.
func (p *Prototypes) AddNative(sym symbol.Symbol, arity int, variadic bool) {
	p.entries[sym] = Proto{Kind: ProtoNative, Arity: arity, Variadic: variadic}
}

// AddMember registers sym as a host-backed member binding (a getter/setter
// pair that intercepts instance member access instead of the dynamic
// member table).
func (p *Prototypes) AddMember(sym symbol.Symbol) {
	p.entries[sym] = Proto{Kind: ProtoMember}
}

// Lookup returns sym's Proto, if registered.
func (p *Prototypes) Lookup(sym symbol.Symbol) (Proto, bool) {
	proto, ok := p.entries[sym]
	return proto, ok
}
