package bytecode

import (
	"gmlvm/internal/ssa"
	"gmlvm/internal/symbol"
)

var binOpMap = map[ssa.Op]Op{
	ssa.OpAdd: Add, ssa.OpSub: Sub, ssa.OpMul: Mul, ssa.OpDiv: Div,
	ssa.OpDivInt: DivInt, ssa.OpMod: Mod,
	ssa.OpBitAnd: BitAnd, ssa.OpBitOr: BitOr, ssa.OpBitXor: BitXor,
	ssa.OpShl: Shl, ssa.OpShr: Shr,
	ssa.OpLt: Lt, ssa.OpLe: Le, ssa.OpEq: Eq, ssa.OpNe: Ne, ssa.OpGe: Ge, ssa.OpGt: Gt,
	ssa.OpAnd: And, ssa.OpOr: Or, ssa.OpXor: Xor,
}

var unOpMap = map[ssa.Op]Op{
	ssa.OpNeg: Neg, ssa.OpPos: Pos, ssa.OpLogicalNot: Not, ssa.OpBitNot: BitNot,
}

var withSetImm = map[ssa.Op]int{
	ssa.OpWithSetAll:   0,
	ssa.OpWithSetNone:  1,
	ssa.OpWithSetSelf:  2,
	ssa.OpWithSetOther: 3,
	ssa.OpWithSetValue: 4,
}

// Build lowers one SSA function into a linear bytecode Function: RPO block
// linearization, linear-scan register allocation, parallel-copy
// sequentialization for phi resolution at predecessor edges (splitting
// critical edges when a two-successor terminator's target has phis), and
// two-pass jump-target patching.
func Build(fn *ssa.Function) (*Function, error) {
	l := buildLayout(fn)
	all := buildIntervals(fn, l)

	regIntervals := make([]interval, 0, len(all))
	for _, iv := range all {
		if producesValue(iv.value.Op) {
			regIntervals = append(regIntervals, iv)
		}
	}
	alloc := allocateRegisters(regIntervals)
	scratch := Reg(alloc.numRegs)

	e := &emitter{
		fn:         fn,
		layout:     l,
		alloc:      alloc,
		scratch:    scratch,
		out:        &Function{Name: fn.Name, NumRegs: alloc.numRegs + 1},
		blockStart: make(map[*ssa.Block]int),
		iterSlot:   make(map[*ssa.Value]int),
		realConst:  make(map[float64]int),
		strConst:   make(map[symbol.Symbol]int),
		edgeStart:  make(map[edgeKey]int),
	}
	e.out.Entry = 0
	e.run()
	e.resolvePatches()
	e.out.Params = buildParams(fn, alloc)
	e.out.NumIters = e.nextSlot
	return e.out, nil
}

// buildParams collects the register assigned to each OpParam value seeded
// at fn's entry block (see ssa.Function.readArgument) into an index-by-
// argument-number slice.
func buildParams(fn *ssa.Function, alloc *allocation) []Reg {
	maxIdx := -1
	regs := make(map[int]Reg)
	for _, v := range fn.Entry.Instr {
		if v.Op != ssa.OpParam {
			continue
		}
		if r, ok := alloc.reg[v]; ok {
			regs[v.Imm] = r
			if v.Imm > maxIdx {
				maxIdx = v.Imm
			}
		}
	}
	if maxIdx < 0 {
		return nil
	}
	params := make([]Reg, maxIdx+1)
	for i := range params {
		params[i] = NoReg
	}
	for idx, r := range regs {
		params[idx] = r
	}
	return params
}

type edgeKey struct {
	from, to *ssa.Block
}

type patch struct {
	instrIndex int
	field      byte // 'T' = To, 't' = Then, 'e' = Else
	to         *ssa.Block
	viaEdgeOf  *ssa.Block // non-nil: resolve through edgeStart[{viaEdgeOf, to}] instead of blockStart[to]
}

type emitter struct {
	fn      *ssa.Function
	layout  *layout
	alloc   *allocation
	scratch Reg

	out *Function

	blockStart map[*ssa.Block]int
	iterSlot   map[*ssa.Value]int
	nextSlot   int

	realConst map[float64]int
	strConst  map[symbol.Symbol]int

	patches      []patch
	edgeStart    map[edgeKey]int
	pendingEdges []pendingEdge
	lastSpanOffset int
}

func (e *emitter) reg(v *ssa.Value) Reg {
	if v == nil {
		return NoReg
	}
	if r, ok := e.alloc.reg[v]; ok {
		return r
	}
	return NoReg
}

func (e *emitter) regs(vs []*ssa.Value) []Reg {
	if len(vs) == 0 {
		return nil
	}
	out := make([]Reg, len(vs))
	for i, v := range vs {
		out[i] = e.reg(v)
	}
	return out
}

func (e *emitter) constReal(v float64) int {
	if idx, ok := e.realConst[v]; ok {
		return idx
	}
	idx := len(e.out.Consts)
	e.out.Consts = append(e.out.Consts, Const{Kind: ConstReal, Real: v})
	e.realConst[v] = idx
	return idx
}

func (e *emitter) constString(s symbol.Symbol) int {
	if idx, ok := e.strConst[s]; ok {
		return idx
	}
	idx := len(e.out.Consts)
	e.out.Consts = append(e.out.Consts, Const{Kind: ConstString, Str: s})
	e.strConst[s] = idx
	return idx
}

func (e *emitter) newIterSlot(v *ssa.Value) int {
	slot := e.nextSlot
	e.nextSlot++
	e.iterSlot[v] = slot
	return slot
}

func (e *emitter) iterSlotOf(v *ssa.Value) int {
	return e.iterSlot[v]
}

// append records instr at the next instruction index, stamping its source
// offset from span — or, for control-only instructions with no natural
// span of their own, from whatever value's offset was last recorded.
func (e *emitter) append(instr Instr, offset int) int {
	idx := len(e.out.Instrs)
	e.out.Instrs = append(e.out.Instrs, instr)
	e.out.Offsets = append(e.out.Offsets, offset)
	e.lastSpanOffset = offset
	return idx
}

func blankInstr(op Op) Instr {
	return Instr{Op: op, Dst: NoReg, A: NoReg, B: NoReg, To: -1, Then: -1, Else: -1}
}

func (e *emitter) run() {
	for _, b := range e.layout.order {
		e.blockStart[b] = len(e.out.Instrs)
		for _, v := range b.Instr {
			e.translateValue(v)
		}
		e.translateTerm(b)
	}
	// Second pass: append the Move+Jump sequence for every edge whose
	// target needed its predecessor-specific copies split out, now that
	// every ordinary block's start index is known.
	for i := 0; i < len(e.pendingEdges); i++ {
		pe := e.pendingEdges[i]
		key := edgeKey{from: pe.from, to: pe.to}
		if _, ok := e.edgeStart[key]; ok {
			continue
		}
		start := len(e.out.Instrs)
		e.emitCopies(pe.from, pe.to)
		j := blankInstr(Jump)
		j.To = e.blockStart[pe.to]
		e.append(j, e.lastSpanOffset)
		e.edgeStart[key] = start
	}
}

type pendingEdge struct{ from, to *ssa.Block }

func (e *emitter) resolvePatches() {
	for _, p := range e.patches {
		var target int
		if p.viaEdgeOf != nil {
			target = e.edgeStart[edgeKey{from: p.viaEdgeOf, to: p.to}]
		} else {
			target = e.blockStart[p.to]
		}
		switch p.field {
		case 'T':
			e.out.Instrs[p.instrIndex].To = target
		case 't':
			e.out.Instrs[p.instrIndex].Then = target
		case 'e':
			e.out.Instrs[p.instrIndex].Else = target
		}
	}
}

func (e *emitter) translateValue(v *ssa.Value) {
	instr := blankInstr(Nop)
	if producesValue(v.Op) {
		instr.Dst = e.reg(v)
	}

	switch v.Op {
	case ssa.OpConstReal:
		instr.Op = LoadConstReal
		instr.ConstIdx = e.constReal(v.Real)
	case ssa.OpConstString:
		instr.Op = LoadConstString
		instr.ConstIdx = e.constString(v.Str)
	case ssa.OpUndef:
		instr.Op = Undef
	case ssa.OpPhi, ssa.OpParam:
		return // no runtime instruction: resolved via predecessor Move
	case ssa.OpCopyForStore:
		instr.Op = CopyAssign
		instr.A = e.reg(v.Args[0])

	case ssa.OpLoadGlobal:
		instr.Op = LoadGlobal
		instr.Sym = v.Str
	case ssa.OpStoreGlobal:
		instr.Op = StoreGlobal
		instr.Sym = v.Str
		instr.B = e.reg(v.Args[0])
	case ssa.OpLoadGlobalIndexed:
		instr.Op = LoadGlobalIndexed
		instr.Sym = v.Str
		instr.Args = e.regs(v.Args)
	case ssa.OpStoreGlobalIndexed:
		instr.Op = StoreGlobalIndexed
		instr.Sym = v.Str
		instr.B = e.reg(v.Args[0])
		instr.Args = e.regs(v.Args[1:])

	case ssa.OpLoadSelfMember:
		instr.Op = LoadSelfMember
		instr.Sym = v.Str
	case ssa.OpStoreSelfMember:
		instr.Op = StoreSelfMember
		instr.Sym = v.Str
		instr.B = e.reg(v.Args[0])
	case ssa.OpLoadSelfIndexed:
		instr.Op = LoadSelfIndexed
		instr.Sym = v.Str
		instr.Args = e.regs(v.Args)
	case ssa.OpStoreSelfIndexed:
		instr.Op = StoreSelfIndexed
		instr.Sym = v.Str
		instr.B = e.reg(v.Args[0])
		instr.Args = e.regs(v.Args[1:])

	case ssa.OpLoadOtherMember:
		instr.Op = LoadOtherMember
		instr.Sym = v.Str
	case ssa.OpStoreOtherMember:
		instr.Op = StoreOtherMember
		instr.Sym = v.Str
		instr.B = e.reg(v.Args[0])
	case ssa.OpLoadOtherIndexed:
		instr.Op = LoadOtherIndexed
		instr.Sym = v.Str
		instr.Args = e.regs(v.Args)
	case ssa.OpStoreOtherIndexed:
		instr.Op = StoreOtherIndexed
		instr.Sym = v.Str
		instr.B = e.reg(v.Args[0])
		instr.Args = e.regs(v.Args[1:])

	case ssa.OpLoadMemberOf:
		instr.Op = LoadMemberOf
		instr.Sym = v.Str
		instr.A = e.reg(v.Args[0])
	case ssa.OpStoreMemberOf:
		instr.Op = StoreMemberOf
		instr.Sym = v.Str
		instr.A = e.reg(v.Args[0])
		instr.B = e.reg(v.Args[1])
	case ssa.OpLoadIndexedOf:
		instr.Op = LoadIndexedOf
		instr.Sym = v.Str
		instr.A = e.reg(v.Args[0])
		instr.Args = e.regs(v.Args[1:])
	case ssa.OpStoreIndexedOf:
		instr.Op = StoreIndexedOf
		instr.Sym = v.Str
		instr.A = e.reg(v.Args[0])
		instr.B = e.reg(v.Args[1])
		instr.Args = e.regs(v.Args[2:])

	case ssa.OpArrayGet:
		instr.Op = ArrayGet
		instr.A = e.reg(v.Args[0])
		instr.Args = e.regs(v.Args[1:])
	case ssa.OpArrayPut:
		instr.Op = ArrayPut
		instr.A = e.reg(v.Args[0])
		instr.B = e.reg(v.Args[1])
		instr.Args = e.regs(v.Args[2:])

	case ssa.OpSelfID:
		instr.Op = SelfID
	case ssa.OpOtherID:
		instr.Op = OtherID

	case ssa.OpCallScript:
		instr.Op = CallScript
		instr.Imm = v.Imm
		instr.Sym = v.Str
		instr.Args = e.regs(v.Args)
	case ssa.OpCallNative:
		instr.Op = CallNative
		instr.Sym = v.Str
		instr.Args = e.regs(v.Args)

	case ssa.OpWithSetAll, ssa.OpWithSetNone, ssa.OpWithSetSelf, ssa.OpWithSetOther, ssa.OpWithSetValue:
		instr.Op = WithBegin
		instr.IterSlot = e.newIterSlot(v)
		instr.Imm = withSetImm[v.Op]
		instr.Dst = NoReg
		if v.Op == ssa.OpWithSetValue {
			instr.A = e.reg(v.Args[0])
		}
	case ssa.OpWithEnd:
		instr.Op = WithEnd
		instr.IterSlot = e.iterSlotOf(v.Args[0])
		instr.Dst = NoReg

	default:
		if op, ok := binOpMap[v.Op]; ok {
			instr.Op = op
			instr.A = e.reg(v.Args[0])
			instr.B = e.reg(v.Args[1])
		} else if op, ok := unOpMap[v.Op]; ok {
			instr.Op = op
			instr.A = e.reg(v.Args[0])
		} else {
			instr.Op = Nop
		}
	}
	e.append(instr, v.Span.Low)
}

func (e *emitter) translateTerm(b *ssa.Block) {
	t := b.Term
	switch t.Kind {
	case ssa.TermReturn:
		instr := blankInstr(Return)
		instr.HasValue = t.HasValue
		offset := e.lastSpanOffset
		if t.HasValue {
			instr.A = e.reg(t.Value)
			offset = t.Value.Span.Low
		}
		e.append(instr, offset)

	case ssa.TermJump:
		if len(t.To.Phis) > 0 {
			e.emitCopies(b, t.To)
		}
		instr := blankInstr(Jump)
		idx := e.append(instr, e.lastSpanOffset)
		e.patches = append(e.patches, patch{instrIndex: idx, field: 'T', to: t.To})

	case ssa.TermBranch:
		instr := blankInstr(Branch)
		instr.A = e.reg(t.Cond)
		offset := e.lastSpanOffset
		if t.Cond != nil {
			offset = t.Cond.Span.Low
		}
		idx := e.append(instr, offset)
		e.patches = append(e.patches, e.branchPatch(idx, 't', b, t.Then))
		e.patches = append(e.patches, e.branchPatch(idx, 'e', b, t.Else))

	case ssa.TermWithNext:
		instr := blankInstr(WithNext)
		instr.IterSlot = e.iterSlotOf(t.Iter)
		offset := e.lastSpanOffset
		if t.Iter != nil {
			offset = t.Iter.Span.Low
		}
		idx := e.append(instr, offset)
		e.patches = append(e.patches, e.branchPatch(idx, 't', b, t.Then))
		e.patches = append(e.patches, e.branchPatch(idx, 'e', b, t.Else))

	case ssa.TermUnreachable:
		e.append(blankInstr(Nop), e.lastSpanOffset)
	}
}

// branchPatch records a patch for a two-successor terminator's edge to
// succ: direct to succ's own start if succ has no phis to resolve, or
// through a dedicated edge sequence (queued in pendingEdges) otherwise.
func (e *emitter) branchPatch(instrIndex int, field byte, from, succ *ssa.Block) patch {
	if len(succ.Phis) == 0 {
		return patch{instrIndex: instrIndex, field: field, to: succ}
	}
	e.pendingEdges = append(e.pendingEdges, pendingEdge{from: from, to: succ})
	return patch{instrIndex: instrIndex, field: field, to: succ, viaEdgeOf: from}
}

// emitCopies appends the Move instructions resolving pred's phi operands
// into succ's phi registers, directly into the current instruction stream.
// It is used for the single-successor TermJump case, where no other
// successor could be disturbed by doing the copies in the predecessor
// block itself, and by run's second pass for the split-out edge sequences
// of two-successor terminators.
func (e *emitter) emitCopies(pred, succ *ssa.Block) {
	copies := phiCopies(pred, succ, e.alloc)
	for _, c := range sequentializeCopies(copies, e.scratch) {
		instr := blankInstr(Move)
		instr.Dst = c.dst
		instr.A = c.src
		e.append(instr, e.lastSpanOffset)
	}
}

type copyOp struct{ dst, src Reg }

func phiCopies(pred, succ *ssa.Block, alloc *allocation) []copyOp {
	predIndex := indexOf(succ.Preds, pred)
	if predIndex < 0 {
		return nil
	}
	var copies []copyOp
	for _, phi := range succ.Phis {
		if predIndex >= len(phi.Args) {
			continue
		}
		operand := phi.Args[predIndex]
		if operand == nil {
			continue
		}
		dst, ok := alloc.reg[phi]
		if !ok {
			continue
		}
		src, ok := alloc.reg[operand]
		if !ok {
			continue
		}
		copies = append(copies, copyOp{dst: dst, src: src})
	}
	return copies
}

// sequentializeCopies orders a parallel-copy set into a Move-safe
// sequence: a copy is safe to emit once nothing else still needs to read
// its destination's old value. A genuine cycle (every remaining copy
// blocks another) is broken by saving one destination's old value into
// tempReg and redirecting whoever needed it to read tempReg instead.
func sequentializeCopies(copies []copyOp, tempReg Reg) []copyOp {
	pending := make([]copyOp, 0, len(copies))
	for _, c := range copies {
		if c.dst != c.src {
			pending = append(pending, c)
		}
	}

	var out []copyOp
	for len(pending) > 0 {
		progressed := false
		for i, c := range pending {
			blocked := false
			for j, o := range pending {
				if j != i && o.src == c.dst {
					blocked = true
					break
				}
			}
			if !blocked {
				out = append(out, c)
				pending = append(pending[:i], pending[i+1:]...)
				progressed = true
				break
			}
		}
		if !progressed {
			c := pending[0]
			out = append(out, copyOp{dst: tempReg, src: c.dst})
			for i := range pending {
				if pending[i].src == c.dst {
					pending[i].src = tempReg
				}
			}
		}
	}
	return out
}
