// Package ssa lowers a function's parsed statement tree (from either the
// statement parser or the action parser) into SSA form: the front-end
// codegen of §4.F. Construction uses the Braun et al. sealed-block
// algorithm so that no separate dominance pass is needed — phis are
// inserted and trivially folded as each block is sealed.
package ssa

import (
	"gmlvm/internal/diag"
	"gmlvm/internal/symbol"
)

// Op enumerates every SSA value operation.
type Op int

const (
	OpConstReal Op = iota
	OpConstString
	OpUndef
	OpPhi
	OpParam

	// Arithmetic / bitwise / comparison, mirroring ast.BinOp 1:1.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpDivInt // `div`
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpLt
	OpLe
	OpEq
	OpNe
	OpGe
	OpGt
	OpAnd
	OpOr
	OpXor

	// Unary.
	OpNeg
	OpPos
	OpLogicalNot
	OpBitNot

	// Declared-global access (`globalvar` aliases, scalar and indexed).
	OpLoadGlobal
	OpStoreGlobal
	OpLoadGlobalIndexed
	OpStoreGlobalIndexed

	// Implicit self-member access (bare identifier that is neither a
	// local nor a declared global; also how a with-target's member is
	// reached, since self is rebound during with-iteration).
	OpLoadSelfMember
	OpStoreSelfMember
	OpLoadSelfIndexed
	OpStoreSelfIndexed

	// `other.x` access from inside a with-body.
	OpLoadOtherMember
	OpStoreOtherMember
	OpLoadOtherIndexed
	OpStoreOtherIndexed

	// Explicit `id.field` / `id.field[i]` where id is an arbitrary
	// instance-id-valued expression.
	OpLoadMemberOf
	OpStoreMemberOf
	OpLoadIndexedOf
	OpStoreIndexedOf

	// Calls.
	OpCallScript // Imm = script id
	OpCallNative // Sym = native name

	// with-target materialization; the op itself classifies
	// All/None/Self/Other, and the generic OpWithSetValue defers
	// classification to the VM via its argument value's magnitude.
	OpWithSetAll
	OpWithSetNone
	OpWithSetSelf
	OpWithSetOther
	OpWithSetValue

	// OpWithEnd marks the start of a with-statement's exit block: it
	// restores self/other to what they were before the with, whether
	// control reached the exit by exhausting the iterator or via break.
	OpWithEnd

	// Array cell access through a local variable's own SSA value (as
	// opposed to a member table, which OpLoad/StoreSelfIndexed etc.
	// already cover). OpArrayGet is a pure read: Args = [base, idx[,
	// idx2]]; a base that isn't array-valued yet reads as itself at
	// cell (0,0) and as Real(0) at any other cell.
	// OpArrayPut produces a *new* SSA value for the variable: Args =
	// [base, value, idx[, idx2]]; the result is the array handle to
	// write back (base's own handle, mutated in place, if base was
	// already an array; a freshly promoted one otherwise).
	OpArrayGet
	OpArrayPut

	// The instance id of the current self/other binding, as a plain
	// real value (bare `self`/`other` used outside field-access
	// position).
	OpSelfID
	OpOtherID

	// OpCopyForStore sits between a whole-value assignment's RHS and its
	// place (local, global, self/other member, or explicit id.field): it
	// clones its operand if array-valued, and passes any other Value
	// through unchanged (§9's "array copy on assign" — the eager-copy
	// alternative, not the generation-counter one). Indexed stores don't
	// need it: they write one cell, never reassign a whole handle.
	OpCopyForStore
)

// Value is one SSA value: an operation whose operands, fixed ones and
// variadic lists like call arguments and phi inputs alike, are all in Args.
type Value struct {
	ID   int
	Op   Op
	Span diag.Span

	Real float64        // OpConstReal
	Str  symbol.Symbol   // OpConstString, member/global name, native callee
	Imm  int             // script id (OpCallScript), argument index (OpParam)

	Args []*Value // operands, in operational order

	block *Block
	users []*Value // use-list: values whose Args reference this one
}

// TermKind enumerates how a Block ends.
type TermKind int

const (
	TermJump TermKind = iota
	TermBranch
	TermReturn
	TermWithNext
	TermUnreachable
)

// Term is a Block's control-flow exit, modeled as data rather than a
// pseudo-op so that every Block has exactly one, checkable independently
// of its Values.
type Term struct {
	Kind TermKind

	Cond *Value // TermBranch
	Then *Block // TermBranch, TermWithNext (loop header -> body)
	Else *Block // TermBranch, TermWithNext (loop header -> exit)
	To   *Block // TermJump

	Value    *Value // TermReturn
	HasValue bool

	Iter *Value // TermWithNext: the materialized with-set cursor
}

// Block is a basic block under construction. Sealed blocks have every
// predecessor known, which is what lets readVariable avoid inserting a
// phi it would immediately have to fold.
type Block struct {
	ID    int
	Preds []*Block
	Succs []*Block
	Phis  []*Value
	Instr []*Value
	Term  Term

	Terminated bool
	sealed     bool

	currentDef     map[symbol.Symbol]*Value
	incompletePhis map[symbol.Symbol]*Value
}

func newBlock(id int) *Block {
	return &Block{
		ID:             id,
		currentDef:     make(map[symbol.Symbol]*Value),
		incompletePhis: make(map[symbol.Symbol]*Value),
	}
}

// Function is one compiled SSA function: a script body, or one object
// event (with its own action-derived or code-derived statement tree).
type Function struct {
	Name string

	Blocks []*Block
	Entry  *Block

	// Locals and GlobalAliases are the function's flat, hoisted symbol
	// sets, built by a pre-pass over every Declare statement in the
	// function body regardless of nesting depth — GML locals are
	// function-scoped, not block-scoped.
	Locals        map[symbol.Symbol]bool
	GlobalAliases map[symbol.Symbol]bool

	nextValueID int
	nextBlockID int
}

// NewFunction returns an empty Function with a sealed-on-demand entry
// block already created.
func NewFunction(name string) *Function {
	f := &Function{
		Name:          name,
		Locals:        make(map[symbol.Symbol]bool),
		GlobalAliases: make(map[symbol.Symbol]bool),
	}
	f.Entry = f.NewBlock()
	return f
}

// NewBlock allocates a fresh, unsealed block with no predecessors yet.
func (f *Function) NewBlock() *Block {
	b := newBlock(f.nextBlockID)
	f.nextBlockID++
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) newValue(op Op, span diag.Span) *Value {
	v := &Value{ID: f.nextValueID, Op: op, Span: span}
	f.nextValueID++
	return v
}

// emit appends v to the end of b's instruction list and records b as its
// home block.
func (b *Block) emit(v *Value) *Value {
	v.block = b
	b.Instr = append(b.Instr, v)
	return v
}

func addUser(def, user *Value) {
	if def == nil {
		return
	}
	def.users = append(def.users, user)
}

// replaceAllUses rewrites every operand (and phi operand) referencing old
// to point at newV instead, draining old's use-list in the process. Used
// by trivial-phi folding.
func replaceAllUses(old, newV *Value) {
	for _, user := range old.users {
		for i, arg := range user.Args {
			if arg == old {
				user.Args[i] = newV
				addUser(newV, user)
			}
		}
	}
	old.users = nil
}

func connect(pred, succ *Block) {
	pred.Succs = append(pred.Succs, succ)
	succ.Preds = append(succ.Preds, pred)
}
