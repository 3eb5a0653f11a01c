// Package ast is the span-tagged abstract syntax tree produced by the
// parser and the action parser alike.
package ast

import (
	"gmlvm/internal/diag"
	"gmlvm/internal/symbol"
)

// Node is implemented by every statement and expression node.
type Node interface {
	Span() diag.Span
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// BinOp enumerates every binary operator. Assign's compound form uses the
// seven arithmetic/bitwise members only (Add..BitXor); Binary expressions
// use the full set.
type BinOp int

const (
	Add BinOp = iota
	Subtract
	Multiply
	Divide
	BitAnd
	BitOr
	BitXor

	Div
	Mod
	Lt
	Le
	Eq
	Ne
	Ge
	Gt
	And
	Or
	Xor
	ShiftLeft
	ShiftRight
)

// UnaryOp enumerates the prefix operators.
type UnaryOp int

const (
	Positive UnaryOp = iota
	Negate
	Invert
	BitInvert
)

// DeclareKind distinguishes `var` from `globalvar`.
type DeclareKind int

const (
	Local DeclareKind = iota
	GlobalAlias
)

// JumpKind enumerates the unconditional jump statements.
type JumpKind int

const (
	Break JumpKind = iota
	Continue
	Exit
)

type base struct {
	span diag.Span
}

func (b base) Span() diag.Span { return b.span }

// ---- Expressions ----

// Ident is a bare identifier, or one of the pseudo-identifier keywords
// (self, other, all, noone, global, local, true, false) which parse into
// the same node shape and are given their scope-resolution meaning by the
// front-end codegen, not the parser.
type Ident struct {
	base
	Sym symbol.Symbol
}

func (*Ident) exprNode() {}

// RealLit is a numeric literal. Value is already parsed from the token's raw
// text (hex or decimal) by the parser, which reports malformed literals and
// stores 0 for them; the raw text itself is not kept.
type RealLit struct {
	base
	Value float64
}

func (*RealLit) exprNode() {}

// StringLit is a string literal with its quotes stripped and interned.
type StringLit struct {
	base
	Sym symbol.Symbol
}

func (*StringLit) exprNode() {}

// Unary is a prefix operator applied to a term.
type Unary struct {
	base
	Op      UnaryOp
	OpSpan  diag.Span
	Operand Expr
}

func (*Unary) exprNode() {}

// Binary is an infix operator applied to two operands.
type Binary struct {
	base
	Op     BinOp
	OpSpan diag.Span
	Left   Expr
	Right  Expr
}

func (*Binary) exprNode() {}

// Field is an explicit member access `base.name`.
type Field struct {
	base
	Base     Expr
	Name     symbol.Symbol
	NameSpan diag.Span
}

func (*Field) exprNode() {}

// Index is a one- or two-dimensional array read `base[i]` / `base[i,j]`.
type Index struct {
	base
	Base    Expr
	Indices []Expr
}

func (*Index) exprNode() {}

// Call is a script or native invocation `name(args...)`.
type Call struct {
	base
	Name     symbol.Symbol
	NameSpan diag.Span
	Args     []Expr
}

func (*Call) exprNode() {}

// ErrorExpr stands in for an expression that failed to parse.
type ErrorExpr struct{ base }

func (*ErrorExpr) exprNode() {}

// ---- Statements ----

// Assign is a plain or compound assignment to a place expression. Op is
// nil for `=`/`:=`; otherwise it is one of Add..BitXor.
type Assign struct {
	base
	Op      *BinOp
	OpSpan  diag.Span
	Place   Expr
	Value   Expr
}

func (*Assign) stmtNode() {}

// Invoke is an expression-statement that calls a script or native purely
// for effect.
type Invoke struct {
	base
	Call *Call
}

func (*Invoke) stmtNode() {}

// Declare is `var` or `globalvar`.
type Declare struct {
	base
	Kind   DeclareKind
	Idents []DeclIdent
}

func (*Declare) stmtNode() {}

// DeclIdent is one identifier named by a Declare, with its own span.
type DeclIdent struct {
	Sym  symbol.Symbol
	Span diag.Span
}

// Block is a sequence of statements.
type Block struct {
	base
	Stmts []Stmt
}

func (*Block) stmtNode() {}

// If is a conditional with an optional else branch.
type If struct {
	base
	Cond Expr
	Then Stmt
	Else Stmt // nil if absent
}

func (*If) stmtNode() {}

// Repeat evaluates Count once and runs Body that many times.
type Repeat struct {
	base
	Count Expr
	Body  Stmt
}

func (*Repeat) stmtNode() {}

// While is a head-tested loop.
type While struct {
	base
	Cond Expr
	Body Stmt
}

func (*While) stmtNode() {}

// With iterates Body with self rebound to each instance of Set.
type With struct {
	base
	Set  Expr
	Body Stmt
}

func (*With) stmtNode() {}

// Do is a tail-tested loop (`do body until cond`).
type Do struct {
	base
	Body  Stmt
	Until Expr
}

func (*Do) stmtNode() {}

// For is a C-style counted loop.
type For struct {
	base
	Init Stmt
	Cond Expr
	Next Stmt
	Body Stmt
}

func (*For) stmtNode() {}

// Switch evaluates Subject once and dispatches to the matching Case.
type Switch struct {
	base
	Subject Expr
	Body    []Stmt // Case and ordinary statements, in source order
}

func (*Switch) stmtNode() {}

// Case marks a case/default label inside a Switch's body. Expr is nil for
// `default:`.
type Case struct {
	base
	Expr Expr
}

func (*Case) stmtNode() {}

// Jump is break/continue/exit.
type Jump struct {
	base
	Kind JumpKind
}

func (*Jump) stmtNode() {}

// Return exits the function with a value.
type Return struct {
	base
	Value Expr
}

func (*Return) stmtNode() {}

// ErrorStmt stands in for a statement that failed to parse.
type ErrorStmt struct {
	base
	Partial Expr // the place expression already parsed, if any
}

func (*ErrorStmt) stmtNode() {}

// NewSpan is a small helper so callers outside the package (the parser,
// the action parser) can build base spans without exporting the struct
// embedding scheme.
func NewSpan(low, high int) diag.Span { return diag.Span{Low: low, High: high} }

// New* constructors stamp a span onto a freshly built node. They exist so
// every node literal in the parser reads `ast.NewX(..., span)` instead of
// repeating `base{span}` at every call site.

func NewIdent(sym symbol.Symbol, span diag.Span) *Ident { return &Ident{base{span}, sym} }
func NewRealLit(v float64, span diag.Span) *RealLit      { return &RealLit{base{span}, v} }
func NewStringLit(sym symbol.Symbol, span diag.Span) *StringLit {
	return &StringLit{base{span}, sym}
}
func NewUnary(op UnaryOp, opSpan diag.Span, operand Expr, span diag.Span) *Unary {
	return &Unary{base{span}, op, opSpan, operand}
}
func NewBinary(op BinOp, opSpan diag.Span, l, r Expr, span diag.Span) *Binary {
	return &Binary{base{span}, op, opSpan, l, r}
}
func NewField(b Expr, name symbol.Symbol, nameSpan, span diag.Span) *Field {
	return &Field{base{span}, b, name, nameSpan}
}
func NewIndex(b Expr, indices []Expr, span diag.Span) *Index {
	return &Index{base{span}, b, indices}
}
func NewCall(name symbol.Symbol, nameSpan diag.Span, args []Expr, span diag.Span) *Call {
	return &Call{base{span}, name, nameSpan, args}
}
func NewErrorExpr(span diag.Span) *ErrorExpr { return &ErrorExpr{base{span}} }

func NewAssign(op *BinOp, opSpan diag.Span, place, value Expr, span diag.Span) *Assign {
	return &Assign{base{span}, op, opSpan, place, value}
}
func NewInvoke(call *Call, span diag.Span) *Invoke { return &Invoke{base{span}, call} }
func NewDeclare(kind DeclareKind, idents []DeclIdent, span diag.Span) *Declare {
	return &Declare{base{span}, kind, idents}
}
func NewBlock(stmts []Stmt, span diag.Span) *Block { return &Block{base{span}, stmts} }
func NewIf(cond Expr, then, els Stmt, span diag.Span) *If {
	return &If{base{span}, cond, then, els}
}
func NewRepeat(count Expr, body Stmt, span diag.Span) *Repeat {
	return &Repeat{base{span}, count, body}
}
func NewWhile(cond Expr, body Stmt, span diag.Span) *While {
	return &While{base{span}, cond, body}
}
func NewWith(set Expr, body Stmt, span diag.Span) *With {
	return &With{base{span}, set, body}
}
func NewDo(body Stmt, until Expr, span diag.Span) *Do {
	return &Do{base{span}, body, until}
}
func NewFor(init Stmt, cond Expr, next Stmt, body Stmt, span diag.Span) *For {
	return &For{base{span}, init, cond, next, body}
}
func NewSwitch(subject Expr, body []Stmt, span diag.Span) *Switch {
	return &Switch{base{span}, subject, body}
}
func NewCase(expr Expr, span diag.Span) *Case { return &Case{base{span}, expr} }
func NewJump(kind JumpKind, span diag.Span) *Jump { return &Jump{base{span}, kind} }
func NewReturn(value Expr, span diag.Span) *Return { return &Return{base{span}, value} }
func NewErrorStmt(partial Expr, span diag.Span) *ErrorStmt {
	return &ErrorStmt{base{span}, partial}
}
