package ssa

import (
	"fmt"

	"gmlvm/internal/ast"
	"gmlvm/internal/diag"
	"gmlvm/internal/symbol"
)

// Codegen lowers one function's statement tree into SSA form.
type Codegen struct {
	Proto              *Prototypes
	Errors             *diag.Printer
	WarnImplicitGlobal bool

	fn  *Function
	cur *Block

	ctx     []breakableCtx
	tempNum int
}

type breakableCtx struct {
	breakTarget    *Block
	continueTarget *Block
	isLoop         bool
}

// NewCodegen returns a Codegen that reports diagnostics through errors and
// resolves calls through proto. warnImplicitGlobal controls whether a bare
// identifier falling through to implicit self-member access is reported,
// resolving the spec's open question on implicit-global fallback policy.
func NewCodegen(proto *Prototypes, errors *diag.Printer, warnImplicitGlobal bool) *Codegen {
	return &Codegen{Proto: proto, Errors: errors, WarnImplicitGlobal: warnImplicitGlobal}
}

// Build lowers body into a complete SSA Function named name.
func (c *Codegen) Build(name string, body ast.Stmt) *Function {
	c.fn = NewFunction(name)
	hoist(c.fn, body)
	c.cur = c.fn.Entry
	c.lowerStmt(body)
	c.finish()
	return c.fn
}

// finish terminates a fallthrough-reachable final block with an implicit
// valueless return, and seals the entry block (it has zero predecessors
// by construction, so it was always safe to seal — sealing here rather
// than at creation keeps every block's seal call next to the point where
// its predecessor set is known, for uniformity).
func (c *Codegen) finish() {
	if !c.fn.Entry.sealed {
		c.sealBlockPublic(c.fn.Entry)
	}
	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermReturn})
	}
}

func (c *Codegen) sealBlockPublic(b *Block) { c.fn.sealBlock(b) }

// newTemp returns a fresh synthetic local name for a compiler-introduced
// loop counter. The '$' prefix can never collide with a source identifier.
func (c *Codegen) newTemp() symbol.Symbol {
	c.tempNum++
	sym := symbol.Intern(fmt.Sprintf("$t%d", c.tempNum))
	c.fn.Locals[sym] = true
	return sym
}

// terminate assigns b's Term, wires the CFG edges it implies, and marks b
// terminated so later statements in the same source sequence fall into a
// fresh, unreachable block instead of appending after a jump/return.
func (c *Codegen) terminate(b *Block, term Term) {
	b.Term = term
	b.Terminated = true
	switch term.Kind {
	case TermJump:
		connect(b, term.To)
	case TermBranch:
		connect(b, term.Then)
		connect(b, term.Else)
	case TermWithNext:
		connect(b, term.Then)
		connect(b, term.Else)
	case TermReturn, TermUnreachable:
	}
}

// errorf reports a diagnostic at span through the shared printer.
func (c *Codegen) errorf(span diag.Span, format string, args ...interface{}) {
	c.Errors.Error(span, format, args...)
}

func (c *Codegen) lowerStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.Block:
		for _, stmt := range n.Stmts {
			c.lowerStmt(stmt)
		}
	case *ast.Declare:
		// Bookkeeping already happened in the hoist pre-pass; a bare
		// declaration has no runtime effect of its own.
	case *ast.Assign:
		c.lowerAssign(n)
	case *ast.Invoke:
		c.lowerExpr(n.Call)
	case *ast.If:
		c.lowerIf(n)
	case *ast.Repeat:
		c.lowerRepeat(n)
	case *ast.While:
		c.lowerWhile(n)
	case *ast.Do:
		c.lowerDo(n)
	case *ast.For:
		c.lowerFor(n)
	case *ast.With:
		c.lowerWith(n)
	case *ast.Switch:
		c.lowerSwitch(n)
	case *ast.Jump:
		c.lowerJump(n)
	case *ast.Return:
		var v *Value
		if n.Value != nil {
			v = c.lowerExpr(n.Value)
		}
		c.terminate(c.cur, Term{Kind: TermReturn, Value: v, HasValue: n.Value != nil})
		c.deadBlock()
	case *ast.ErrorStmt:
		if n.Partial != nil {
			c.lowerExpr(n.Partial)
		}
	default:
		c.errorf(s.Span(), "internal: unhandled statement kind %T", s)
	}
}

// deadBlock opens a fresh, immediately-sealed block with no predecessors
// to hold any statements textually following a jump/return/break/continue
// — dead code that must still lower cleanly (every read in it resolves to
// undef) without corrupting the live CFG.
func (c *Codegen) deadBlock() {
	b := c.fn.NewBlock()
	c.fn.sealBlock(b)
	c.cur = b
}

func (c *Codegen) lowerJump(j *ast.Jump) {
	switch j.Kind {
	case ast.Break:
		if target, ok := c.breakTarget(); ok {
			c.terminate(c.cur, Term{Kind: TermJump, To: target})
		} else {
			c.errorf(j.Span(), "break outside of a loop or switch")
			c.terminate(c.cur, Term{Kind: TermUnreachable})
		}
	case ast.Continue:
		if target, ok := c.continueTarget(); ok {
			c.terminate(c.cur, Term{Kind: TermJump, To: target})
		} else {
			c.errorf(j.Span(), "continue outside of a loop")
			c.terminate(c.cur, Term{Kind: TermUnreachable})
		}
	case ast.Exit:
		c.terminate(c.cur, Term{Kind: TermReturn})
	}
	c.deadBlock()
}

func (c *Codegen) breakTarget() (*Block, bool) {
	if len(c.ctx) == 0 {
		return nil, false
	}
	return c.ctx[len(c.ctx)-1].breakTarget, true
}

func (c *Codegen) continueTarget() (*Block, bool) {
	for i := len(c.ctx) - 1; i >= 0; i-- {
		if c.ctx[i].isLoop {
			return c.ctx[i].continueTarget, true
		}
	}
	return nil, false
}

func (c *Codegen) lowerIf(n *ast.If) {
	cond := c.lowerExpr(n.Cond)
	thenBlock := c.fn.NewBlock()
	var elseBlock *Block
	if n.Else != nil {
		elseBlock = c.fn.NewBlock()
	}
	join := c.fn.NewBlock()

	elseTarget := elseBlock
	if elseTarget == nil {
		elseTarget = join
	}
	c.terminate(c.cur, Term{Kind: TermBranch, Cond: cond, Then: thenBlock, Else: elseTarget})
	c.fn.sealBlock(thenBlock)
	if elseBlock != nil {
		c.fn.sealBlock(elseBlock)
	}

	c.cur = thenBlock
	c.lowerStmt(n.Then)
	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermJump, To: join})
	}

	if n.Else != nil {
		c.cur = elseBlock
		c.lowerStmt(n.Else)
		if !c.cur.Terminated {
			c.terminate(c.cur, Term{Kind: TermJump, To: join})
		}
	}

	c.fn.sealBlock(join)
	c.cur = join
}

// lowerWhile lowers a head-tested loop. The header is sealed only once
// the loop body has been fully lowered, since its predecessor set (the
// preheader and the body's latch) is not complete until then.
func (c *Codegen) lowerWhile(n *ast.While) {
	header := c.fn.NewBlock()
	c.terminate(c.cur, Term{Kind: TermJump, To: header})
	c.cur = header

	cond := c.lowerExpr(n.Cond)
	body := c.fn.NewBlock()
	exit := c.fn.NewBlock()
	c.terminate(header, Term{Kind: TermBranch, Cond: cond, Then: body, Else: exit})
	c.fn.sealBlock(body)

	c.ctx = append(c.ctx, breakableCtx{breakTarget: exit, continueTarget: header, isLoop: true})
	c.cur = body
	c.lowerStmt(n.Body)
	c.ctx = c.ctx[:len(c.ctx)-1]

	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermJump, To: header})
	}
	c.fn.sealBlock(header)
	c.fn.sealBlock(exit)
	c.cur = exit
}

// lowerDo lowers a tail-tested loop (`do body until cond`): the body
// always runs once before the condition is first tested.
func (c *Codegen) lowerDo(n *ast.Do) {
	body := c.fn.NewBlock()
	c.terminate(c.cur, Term{Kind: TermJump, To: body})
	latch := c.fn.NewBlock()
	exit := c.fn.NewBlock()

	c.ctx = append(c.ctx, breakableCtx{breakTarget: exit, continueTarget: latch, isLoop: true})
	c.cur = body
	c.lowerStmt(n.Body)
	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermJump, To: latch})
	}
	c.ctx = c.ctx[:len(c.ctx)-1]

	// latch has every edge that could reach it (fallthrough from the
	// body plus every `continue`) accounted for now that the body is
	// fully lowered.
	c.fn.sealBlock(latch)
	c.cur = latch
	until := c.lowerExpr(n.Until)
	c.terminate(latch, Term{Kind: TermBranch, Cond: until, Then: exit, Else: body})
	c.fn.sealBlock(body)
	c.fn.sealBlock(exit)
	c.cur = exit
}

// lowerRepeat desugars `repeat (n) body` into a synthetic counted while
// loop: `count = trunc(n); while (count > 0) { count -= 1; body }`. §9
// requires the count be rounded toward zero once, up front: `count div 1`
// reuses the VM's existing truncating-division op (math.Trunc) to get
// that for free, so a fractional count like 3.5 runs the body 3 times
// and a negative count fails the first `> 0` test for zero iterations.
func (c *Codegen) lowerRepeat(n *ast.Repeat) {
	raw := c.lowerExpr(n.Count)
	one := c.constReal(1, n.Span())
	count := c.binOp(OpDivInt, raw, one, n.Span())
	counter := c.newTemp()
	c.fn.writeVariable(counter, c.cur, count)

	header := c.fn.NewBlock()
	c.terminate(c.cur, Term{Kind: TermJump, To: header})
	c.cur = header

	zero := c.constReal(0, n.Span())
	cur := c.fn.readVariable(counter, header)
	cond := c.binOp(OpGt, cur, zero, n.Span())

	body := c.fn.NewBlock()
	exit := c.fn.NewBlock()
	c.terminate(header, Term{Kind: TermBranch, Cond: cond, Then: body, Else: exit})
	c.fn.sealBlock(body)

	c.ctx = append(c.ctx, breakableCtx{breakTarget: exit, continueTarget: header, isLoop: true})
	c.cur = body
	before := c.fn.readVariable(counter, c.cur)
	decrBy := c.constReal(1, n.Span())
	c.fn.writeVariable(counter, c.cur, c.binOp(OpSub, before, decrBy, n.Span()))
	c.lowerStmt(n.Body)
	c.ctx = c.ctx[:len(c.ctx)-1]

	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermJump, To: header})
	}
	c.fn.sealBlock(header)
	c.fn.sealBlock(exit)
	c.cur = exit
}

func (c *Codegen) lowerFor(n *ast.For) {
	if n.Init != nil {
		c.lowerStmt(n.Init)
	}
	header := c.fn.NewBlock()
	c.terminate(c.cur, Term{Kind: TermJump, To: header})
	c.cur = header

	var cond *Value
	if n.Cond != nil {
		cond = c.lowerExpr(n.Cond)
	} else {
		cond = c.constReal(1, n.Span())
	}
	body := c.fn.NewBlock()
	exit := c.fn.NewBlock()
	c.terminate(header, Term{Kind: TermBranch, Cond: cond, Then: body, Else: exit})
	c.fn.sealBlock(body)

	latch := c.fn.NewBlock()
	c.ctx = append(c.ctx, breakableCtx{breakTarget: exit, continueTarget: latch, isLoop: true})
	c.cur = body
	c.lowerStmt(n.Body)
	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermJump, To: latch})
	}
	c.ctx = c.ctx[:len(c.ctx)-1]

	c.fn.sealBlock(latch)
	c.cur = latch
	if n.Next != nil {
		c.lowerStmt(n.Next)
	}
	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermJump, To: header})
	}
	c.fn.sealBlock(header)
	c.fn.sealBlock(exit)
	c.cur = exit
}

// lowerWith lowers `with (set) body`: lowerWithSet materializes the
// iterator in the current block, then a header block's TermWithNext
// terminator advances it once per pass through the loop until the set is
// exhausted. The VM is responsible for the
// exception-safe push/restore of self/other around the body.
func (c *Codegen) lowerWith(n *ast.With) {
	iter := c.lowerWithSet(n.Set)

	header := c.fn.NewBlock()
	c.terminate(c.cur, Term{Kind: TermJump, To: header})

	body := c.fn.NewBlock()
	exit := c.fn.NewBlock()
	c.terminate(header, Term{Kind: TermWithNext, Iter: iter, Then: body, Else: exit})
	c.fn.sealBlock(body)

	// The exit block restores self/other whether control reaches it by
	// exhausting the iterator or via a `break` inside the body — both
	// paths land here, so the restore belongs on the block itself, not
	// on the WithNext terminator's Else edge alone.
	endVal := c.fn.newValue(OpWithEnd, n.Span())
	endVal.Args = []*Value{iter}
	addUser(iter, endVal)
	exit.emit(endVal)

	c.ctx = append(c.ctx, breakableCtx{breakTarget: exit, continueTarget: header, isLoop: true})
	c.cur = body
	c.lowerStmt(n.Body)
	c.ctx = c.ctx[:len(c.ctx)-1]

	if !c.cur.Terminated {
		c.terminate(c.cur, Term{Kind: TermJump, To: header})
	}
	c.fn.sealBlock(header)
	c.fn.sealBlock(exit)
	c.cur = exit
}

// lowerWithSet classifies a with-target expression per §4.F: the bare
// keywords all/noone/self/other materialize directly; anything else is a
// generic value whose magnitude the world classifies at runtime as a
// specific instance id or an object class (world.ClassifyMagnitude).
func (c *Codegen) lowerWithSet(e ast.Expr) *Value {
	if id, ok := e.(*ast.Ident); ok {
		switch id.Sym {
		case symbol.All:
			return c.emit(OpWithSetAll, e.Span())
		case symbol.NoOne:
			return c.emit(OpWithSetNone, e.Span())
		case symbol.Self:
			return c.emit(OpWithSetSelf, e.Span())
		case symbol.Other:
			return c.emit(OpWithSetOther, e.Span())
		}
	}
	v := c.lowerExpr(e)
	set := c.fn.newValue(OpWithSetValue, e.Span())
	set.Args = []*Value{v}
	addUser(v, set)
	return c.cur.emit(set)
}

// lowerSwitch lowers a GML switch, which falls through between cases like
// C's unless a `break` is reached. The flat Body is split at each Case
// marker into blocks; a dispatch chain ahead of the body tests the
// subject against each case value in source order.
func (c *Codegen) lowerSwitch(n *ast.Switch) {
	subject := c.lowerExpr(n.Subject)
	exit := c.fn.NewBlock()

	starts := make([]*Block, len(n.Body))
	var defaultStart *Block
	for i, stmt := range n.Body {
		if cs, ok := stmt.(*ast.Case); ok {
			b := c.fn.NewBlock()
			starts[i] = b
			if cs.Expr == nil {
				defaultStart = b
			}
		}
	}

	for i, stmt := range n.Body {
		cs, ok := stmt.(*ast.Case)
		if !ok || cs.Expr == nil {
			continue
		}
		caseVal := c.lowerExpr(cs.Expr)
		eq := c.binOp(OpEq, subject, caseVal, cs.Span())
		nextTest := c.fn.NewBlock()
		c.terminate(c.cur, Term{Kind: TermBranch, Cond: eq, Then: starts[i], Else: nextTest})
		c.fn.sealBlock(nextTest)
		c.cur = nextTest
	}
	if defaultStart != nil {
		c.terminate(c.cur, Term{Kind: TermJump, To: defaultStart})
	} else {
		c.terminate(c.cur, Term{Kind: TermJump, To: exit})
	}

	c.ctx = append(c.ctx, breakableCtx{breakTarget: exit, isLoop: false})
	var prevFallsThrough *Block
	for i, stmt := range n.Body {
		if b := starts[i]; b != nil {
			if prevFallsThrough != nil {
				c.terminate(prevFallsThrough, Term{Kind: TermJump, To: b})
			}
			c.fn.sealBlock(b)
			c.cur = b
			prevFallsThrough = b
			continue
		}
		c.lowerStmt(stmt)
		if !c.cur.Terminated {
			prevFallsThrough = c.cur
		} else {
			prevFallsThrough = nil
		}
	}
	if prevFallsThrough != nil {
		c.terminate(prevFallsThrough, Term{Kind: TermJump, To: exit})
	}
	c.ctx = c.ctx[:len(c.ctx)-1]

	c.fn.sealBlock(exit)
	c.cur = exit
}

func (c *Codegen) emit(op Op, span diag.Span) *Value {
	return c.cur.emit(c.fn.newValue(op, span))
}

func (c *Codegen) constReal(v float64, span diag.Span) *Value {
	val := c.fn.newValue(OpConstReal, span)
	val.Real = v
	return c.cur.emit(val)
}

func (c *Codegen) binOp(op Op, l, r *Value, span diag.Span) *Value {
	v := c.fn.newValue(op, span)
	v.Args = []*Value{l, r}
	addUser(l, v)
	addUser(r, v)
	return c.cur.emit(v)
}
