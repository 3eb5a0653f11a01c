// Package bytecode is the back-end codegen of §4.G: it lowers one SSA
// ssa.Function into a flat instruction stream with a fixed register file,
// a constant pool, and an offsets map from instruction index back to the
// source byte offset of the SSA value (or terminator) that produced it.
package bytecode

// Op enumerates every bytecode instruction. Most mirror an ssa.Op 1:1
// (see binOpMap/unOpMap and translateValue in emit.go); the rest — Move, Jump, Branch, Return, and the With*
// family — exist only at this level, where control flow and phi
// resolution are expressed as instructions rather than CFG edges.
type Op int

const (
	Nop Op = iota
	LoadConstReal
	LoadConstString
	Undef
	Move     // phi resolution: Dst = regs[A]
	CopyAssign // Dst = regs[A], cloning an array handle; plain values pass through

	Add
	Sub
	Mul
	Div
	DivInt
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	Lt
	Le
	Eq
	Ne
	Ge
	Gt
	And
	Or
	Xor

	Neg
	Pos
	Not
	BitNot

	LoadGlobal
	StoreGlobal
	LoadGlobalIndexed
	StoreGlobalIndexed

	LoadSelfMember
	StoreSelfMember
	LoadSelfIndexed
	StoreSelfIndexed

	LoadOtherMember
	StoreOtherMember
	LoadOtherIndexed
	StoreOtherIndexed

	LoadMemberOf
	StoreMemberOf
	LoadIndexedOf
	StoreIndexedOf

	ArrayGet
	ArrayPut

	SelfID
	OtherID

	CallScript
	CallNative

	Jump
	Branch
	Return

	WithBegin
	WithNext
	WithEnd
)

var opNames = map[Op]string{
	Nop: "nop", LoadConstReal: "const.real", LoadConstString: "const.str",
	Undef: "undef", Move: "move", CopyAssign: "copy.assign",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", DivInt: "divint", Mod: "mod",
	BitAnd: "bitand", BitOr: "bitor", BitXor: "bitxor", Shl: "shl", Shr: "shr",
	Lt: "lt", Le: "le", Eq: "eq", Ne: "ne", Ge: "ge", Gt: "gt",
	And: "and", Or: "or", Xor: "xor",
	Neg: "neg", Pos: "pos", Not: "not", BitNot: "bitnot",
	LoadGlobal: "load.global", StoreGlobal: "store.global",
	LoadGlobalIndexed: "load.global[]", StoreGlobalIndexed: "store.global[]",
	LoadSelfMember: "load.self", StoreSelfMember: "store.self",
	LoadSelfIndexed: "load.self[]", StoreSelfIndexed: "store.self[]",
	LoadOtherMember: "load.other", StoreOtherMember: "store.other",
	LoadOtherIndexed: "load.other[]", StoreOtherIndexed: "store.other[]",
	LoadMemberOf: "load.of", StoreMemberOf: "store.of",
	LoadIndexedOf: "load.of[]", StoreIndexedOf: "store.of[]",
	ArrayGet: "array.get", ArrayPut: "array.put",
	SelfID: "self.id", OtherID: "other.id",
	CallScript: "call.script", CallNative: "call.native",
	Jump: "jump", Branch: "branch", Return: "return",
	WithBegin: "with.begin", WithNext: "with.next", WithEnd: "with.end",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "?"
}
