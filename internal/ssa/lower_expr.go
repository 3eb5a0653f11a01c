package ssa

import (
	"gmlvm/internal/ast"
	"gmlvm/internal/diag"
	"gmlvm/internal/symbol"
)

// placeKind discriminates what an assignable expression ultimately
// addresses, resolved once per place so that a compound assignment's
// read and write share the same base/index computation.
type placeKind int

const (
	placeLocal placeKind = iota
	placeGlobal
	placeSelfMember
	placeOtherMember
	placeMemberOf
	placeError
)

// place is the result of resolving an assignment target (or a read of
// the same shape): which storage it addresses, and — if it is an
// indexed access — the already-lowered index operands so they are
// evaluated exactly once.
type place struct {
	kind    placeKind
	sym     symbol.Symbol
	idVal   *Value // placeMemberOf only
	indices []*Value
}

// resolvePlace classifies e per §4.F's scope-resolution priority
// (declared-local > declared-global > self member, with the
// with-iteration target reached the same way since self is rebound
// during iteration) and, for ast.Index, lowers its index expressions
// exactly once.
func (c *Codegen) resolvePlace(e ast.Expr) place {
	switch n := e.(type) {
	case *ast.Ident:
		return c.resolveIdentPlace(n)
	case *ast.Field:
		return c.resolveFieldPlace(n)
	case *ast.Index:
		base := c.resolvePlace(n.Base)
		base.indices = make([]*Value, len(n.Indices))
		for i, ie := range n.Indices {
			base.indices[i] = c.lowerExpr(ie)
		}
		return base
	default:
		c.errorf(e.Span(), "invalid assignment target")
		return place{kind: placeError}
	}
}

func (c *Codegen) resolveIdentPlace(n *ast.Ident) place {
	sym := n.Sym
	switch sym {
	case symbol.Self, symbol.Other, symbol.All, symbol.NoOne, symbol.Global,
		symbol.True, symbol.False:
		c.errorf(n.Span(), "invalid assignment target")
		return place{kind: placeError}
	}
	if c.fn.Locals[sym] {
		return place{kind: placeLocal, sym: sym}
	}
	if _, ok := parseArgumentIndex(sym); ok {
		return place{kind: placeLocal, sym: sym}
	}
	if c.fn.GlobalAliases[sym] {
		return place{kind: placeGlobal, sym: sym}
	}
	if c.WarnImplicitGlobal {
		c.Errors.Warn(n.Span(), "implicit self-member reference to undeclared %s", sym)
	}
	return place{kind: placeSelfMember, sym: sym}
}

func (c *Codegen) resolveFieldPlace(n *ast.Field) place {
	if id, ok := n.Base.(*ast.Ident); ok {
		switch id.Sym {
		case symbol.Self:
			return place{kind: placeSelfMember, sym: n.Name}
		case symbol.Other:
			return place{kind: placeOtherMember, sym: n.Name}
		case symbol.Global:
			return place{kind: placeGlobal, sym: n.Name}
		}
	}
	idVal := c.lowerExpr(n.Base)
	return place{kind: placeMemberOf, sym: n.Name, idVal: idVal}
}

// loadPlace emits the read side of pl.
func (c *Codegen) loadPlace(pl place, span diag.Span) *Value {
	switch pl.kind {
	case placeLocal:
		base := c.fn.readVariable(pl.sym, c.cur)
		if pl.indices == nil {
			return base
		}
		return c.arrayGet(base, pl.indices, span)
	case placeGlobal:
		if pl.indices == nil {
			v := c.fn.newValue(OpLoadGlobal, span)
			v.Str = pl.sym
			return c.cur.emit(v)
		}
		return c.indexedLoad(OpLoadGlobalIndexed, pl.sym, nil, pl.indices, span)
	case placeSelfMember:
		if pl.indices == nil {
			v := c.fn.newValue(OpLoadSelfMember, span)
			v.Str = pl.sym
			return c.cur.emit(v)
		}
		return c.indexedLoad(OpLoadSelfIndexed, pl.sym, nil, pl.indices, span)
	case placeOtherMember:
		if pl.indices == nil {
			v := c.fn.newValue(OpLoadOtherMember, span)
			v.Str = pl.sym
			return c.cur.emit(v)
		}
		return c.indexedLoad(OpLoadOtherIndexed, pl.sym, nil, pl.indices, span)
	case placeMemberOf:
		if pl.indices == nil {
			v := c.fn.newValue(OpLoadMemberOf, span)
			v.Str = pl.sym
			v.Args = []*Value{pl.idVal}
			addUser(pl.idVal, v)
			return c.cur.emit(v)
		}
		return c.indexedLoad(OpLoadIndexedOf, pl.sym, pl.idVal, pl.indices, span)
	default:
		return c.emit(OpUndef, span)
	}
}

func (c *Codegen) indexedLoad(op Op, sym symbol.Symbol, idVal *Value, indices []*Value, span diag.Span) *Value {
	v := c.fn.newValue(op, span)
	v.Str = sym
	if idVal != nil {
		v.Args = append(v.Args, idVal)
		addUser(idVal, v)
	}
	v.Args = append(v.Args, indices...)
	for _, idx := range indices {
		addUser(idx, v)
	}
	return c.cur.emit(v)
}

// storePlace emits the write side of pl with newVal as the value being
// assigned. A whole-value store (no indices) passes newVal through
// copyForStore first, so an array-valued RHS never lets two places share
// one mutable handle.
func (c *Codegen) storePlace(pl place, newVal *Value, span diag.Span) {
	switch pl.kind {
	case placeLocal:
		if pl.indices == nil {
			c.fn.writeVariable(pl.sym, c.cur, c.copyForStore(newVal, span))
			return
		}
		base := c.fn.readVariable(pl.sym, c.cur)
		result := c.arrayPut(base, newVal, pl.indices, span)
		c.fn.writeVariable(pl.sym, c.cur, result)
	case placeGlobal:
		if pl.indices == nil {
			c.indexedStore(OpStoreGlobal, pl.sym, nil, c.copyForStore(newVal, span), nil, span)
			return
		}
		c.indexedStore(OpStoreGlobalIndexed, pl.sym, nil, newVal, pl.indices, span)
	case placeSelfMember:
		if pl.indices == nil {
			c.indexedStore(OpStoreSelfMember, pl.sym, nil, c.copyForStore(newVal, span), nil, span)
			return
		}
		c.indexedStore(OpStoreSelfIndexed, pl.sym, nil, newVal, pl.indices, span)
	case placeOtherMember:
		if pl.indices == nil {
			c.indexedStore(OpStoreOtherMember, pl.sym, nil, c.copyForStore(newVal, span), nil, span)
			return
		}
		c.indexedStore(OpStoreOtherIndexed, pl.sym, nil, newVal, pl.indices, span)
	case placeMemberOf:
		if pl.indices == nil {
			c.indexedStore(OpStoreMemberOf, pl.sym, pl.idVal, c.copyForStore(newVal, span), nil, span)
			return
		}
		c.indexedStore(OpStoreIndexedOf, pl.sym, pl.idVal, newVal, pl.indices, span)
	}
}

// copyForStore wraps v in an OpCopyForStore value, the assignment-time
// clone boundary for array-valued Values (§9).
func (c *Codegen) copyForStore(v *Value, span diag.Span) *Value {
	cp := c.fn.newValue(OpCopyForStore, span)
	cp.Args = []*Value{v}
	addUser(v, cp)
	return c.cur.emit(cp)
}

func (c *Codegen) indexedStore(op Op, sym symbol.Symbol, idVal, newVal *Value, indices []*Value, span diag.Span) {
	v := c.fn.newValue(op, span)
	v.Str = sym
	if idVal != nil {
		v.Args = append(v.Args, idVal)
		addUser(idVal, v)
	}
	v.Args = append(v.Args, newVal)
	addUser(newVal, v)
	v.Args = append(v.Args, indices...)
	for _, idx := range indices {
		addUser(idx, v)
	}
	c.cur.emit(v)
}

func (c *Codegen) arrayGet(base *Value, indices []*Value, span diag.Span) *Value {
	v := c.fn.newValue(OpArrayGet, span)
	v.Args = append([]*Value{base}, indices...)
	addUser(base, v)
	for _, idx := range indices {
		addUser(idx, v)
	}
	return c.cur.emit(v)
}

func (c *Codegen) arrayPut(base, newVal *Value, indices []*Value, span diag.Span) *Value {
	v := c.fn.newValue(OpArrayPut, span)
	v.Args = append([]*Value{base, newVal}, indices...)
	addUser(base, v)
	addUser(newVal, v)
	for _, idx := range indices {
		addUser(idx, v)
	}
	return c.cur.emit(v)
}

// lowerAssign lowers one Assign statement, sharing the resolved place
// between the optional read (for a compound operator) and the write.
func (c *Codegen) lowerAssign(n *ast.Assign) {
	pl := c.resolvePlace(n.Place)
	if pl.kind == placeError {
		c.lowerExpr(n.Value)
		return
	}
	var newVal *Value
	if n.Op == nil {
		newVal = c.lowerExpr(n.Value)
	} else {
		old := c.loadPlace(pl, n.Span())
		rhs := c.lowerExpr(n.Value)
		newVal = c.binOp(ssaBinOp(*n.Op), old, rhs, n.Span())
	}
	c.storePlace(pl, newVal, n.Span())
}

// lowerExpr lowers one expression to its SSA value.
func (c *Codegen) lowerExpr(e ast.Expr) *Value {
	switch n := e.(type) {
	case *ast.RealLit:
		return c.constReal(n.Value, n.Span())
	case *ast.StringLit:
		v := c.fn.newValue(OpConstString, n.Span())
		v.Str = n.Sym
		return c.cur.emit(v)
	case *ast.Ident:
		return c.lowerIdent(n)
	case *ast.Field:
		return c.loadPlace(c.resolvePlace(n), n.Span())
	case *ast.Index:
		return c.loadPlace(c.resolvePlace(n), n.Span())
	case *ast.Call:
		return c.lowerCall(n)
	case *ast.Unary:
		return c.lowerUnary(n)
	case *ast.Binary:
		return c.lowerBinary(n)
	case *ast.ErrorExpr:
		return c.emit(OpUndef, n.Span())
	default:
		c.errorf(e.Span(), "internal: unhandled expression kind %T", e)
		return c.emit(OpUndef, e.Span())
	}
}

func (c *Codegen) lowerIdent(n *ast.Ident) *Value {
	switch n.Sym {
	case symbol.True:
		return c.constReal(1, n.Span())
	case symbol.False:
		return c.constReal(0, n.Span())
	case symbol.Self:
		return c.emit(OpSelfID, n.Span())
	case symbol.Other:
		return c.emit(OpOtherID, n.Span())
	case symbol.All:
		return c.constReal(-3, n.Span())
	case symbol.NoOne:
		return c.constReal(-4, n.Span())
	case symbol.Global:
		return c.constReal(-5, n.Span())
	default:
		return c.loadPlace(c.resolveIdentPlace(n), n.Span())
	}
}

func (c *Codegen) lowerCall(call *ast.Call) *Value {
	args := make([]*Value, len(call.Args))
	for i, a := range call.Args {
		args[i] = c.lowerExpr(a)
	}

	proto, ok := c.Proto.Lookup(call.Name)
	var v *Value
	switch {
	case !ok:
		c.Errors.Warn(call.NameSpan, "unresolved call target %s", call.Name)
		v = c.fn.newValue(OpCallNative, call.Span())
		v.Str = call.Name
	case proto.Kind == ProtoScript:
		v = c.fn.newValue(OpCallScript, call.Span())
		v.Imm = proto.ScriptID
		v.Str = call.Name
	case proto.Kind == ProtoNative:
		v = c.fn.newValue(OpCallNative, call.Span())
		v.Str = call.Name
	default: // ProtoMember: a member binding is not callable
		c.errorf(call.NameSpan, "%s is a member, not a script or native function", call.Name)
		v = c.fn.newValue(OpCallNative, call.Span())
		v.Str = call.Name
	}
	v.Args = args
	for _, a := range args {
		addUser(a, v)
	}
	return c.cur.emit(v)
}

func (c *Codegen) lowerUnary(n *ast.Unary) *Value {
	operand := c.lowerExpr(n.Operand)
	var op Op
	switch n.Op {
	case ast.Positive:
		op = OpPos
	case ast.Negate:
		op = OpNeg
	case ast.Invert:
		op = OpLogicalNot
	case ast.BitInvert:
		op = OpBitNot
	}
	v := c.fn.newValue(op, n.Span())
	v.Args = []*Value{operand}
	addUser(operand, v)
	return c.cur.emit(v)
}

func (c *Codegen) lowerBinary(n *ast.Binary) *Value {
	l := c.lowerExpr(n.Left)
	r := c.lowerExpr(n.Right)
	return c.binOp(ssaBinOp(n.Op), l, r, n.Span())
}

func ssaBinOp(op ast.BinOp) Op {
	switch op {
	case ast.Add:
		return OpAdd
	case ast.Subtract:
		return OpSub
	case ast.Multiply:
		return OpMul
	case ast.Divide:
		return OpDiv
	case ast.BitAnd:
		return OpBitAnd
	case ast.BitOr:
		return OpBitOr
	case ast.BitXor:
		return OpBitXor
	case ast.Div:
		return OpDivInt
	case ast.Mod:
		return OpMod
	case ast.Lt:
		return OpLt
	case ast.Le:
		return OpLe
	case ast.Eq:
		return OpEq
	case ast.Ne:
		return OpNe
	case ast.Ge:
		return OpGe
	case ast.Gt:
		return OpGt
	case ast.And:
		return OpAnd
	case ast.Or:
		return OpOr
	case ast.Xor:
		return OpXor
	case ast.ShiftLeft:
		return OpShl
	case ast.ShiftRight:
		return OpShr
	default:
		return OpAdd
	}
}
