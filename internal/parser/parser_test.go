package parser

import (
	"bytes"
	"testing"

	"gmlvm/internal/ast"
	"gmlvm/internal/diag"
	"gmlvm/internal/lexer"
)

func parse(t *testing.T, src string) (ast.Stmt, *diag.Printer) {
	t.Helper()
	lines := diag.FromCode([]byte(src))
	var sink bytes.Buffer
	printer := diag.NewPrinter("test", lines, &sink)
	p := New(lexer.New([]byte(src), 0), printer)
	stmt, _ := p.ParseProgram()
	return stmt, printer
}

func block(t *testing.T, stmt ast.Stmt) *ast.Block {
	t.Helper()
	b, ok := stmt.(*ast.Block)
	if !ok {
		t.Fatalf("expected *ast.Block, got %T", stmt)
	}
	return b
}

func TestAssignment(t *testing.T) {
	stmt, errs := parse(t, "x = 1;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	if len(b.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(b.Stmts))
	}
	assign, ok := b.Stmts[0].(*ast.Assign)
	if !ok {
		t.Fatalf("expected *ast.Assign, got %T", b.Stmts[0])
	}
	if assign.Op != nil {
		t.Fatalf("expected plain assignment, got op %v", *assign.Op)
	}
}

func TestCompoundAssignment(t *testing.T) {
	stmt, errs := parse(t, "x += 1;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	assign := b.Stmts[0].(*ast.Assign)
	if assign.Op == nil || *assign.Op != ast.Add {
		t.Fatalf("expected Add compound op, got %v", assign.Op)
	}
}

func TestColonEqAndAngleBracketNe(t *testing.T) {
	stmt, errs := parse(t, "x := 1; if x <> 2 { y = 1; }")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	if len(b.Stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(b.Stmts))
	}
	ifStmt, ok := b.Stmts[1].(*ast.If)
	if !ok {
		t.Fatalf("expected *ast.If, got %T", b.Stmts[1])
	}
	bin, ok := ifStmt.Cond.(*ast.Binary)
	if !ok || bin.Op != ast.Ne {
		t.Fatalf("expected Ne binary condition, got %#v", ifStmt.Cond)
	}
}

func TestVarWithInitializerIsAnError(t *testing.T) {
	_, errs := parse(t, "var x = 3;")
	if errs.Count == 0 {
		t.Fatalf("expected an error for `var x = 3;`")
	}
}

func TestDeclareMultipleIdents(t *testing.T) {
	stmt, errs := parse(t, "var a, b, c;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	decl := b.Stmts[0].(*ast.Declare)
	if len(decl.Idents) != 3 || decl.Kind != ast.Local {
		t.Fatalf("expected 3 local idents, got %+v", decl)
	}
}

func TestGlobalVarDeclare(t *testing.T) {
	stmt, errs := parse(t, "globalvar hp;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	decl := b.Stmts[0].(*ast.Declare)
	if decl.Kind != ast.GlobalAlias {
		t.Fatalf("expected GlobalAlias kind, got %v", decl.Kind)
	}
}

func TestCallStatement(t *testing.T) {
	stmt, errs := parse(t, "show_message(\"hi\");")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	invoke, ok := b.Stmts[0].(*ast.Invoke)
	if !ok {
		t.Fatalf("expected *ast.Invoke, got %T", b.Stmts[0])
	}
	if len(invoke.Call.Args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(invoke.Call.Args))
	}
}

func TestFieldAndIndexChaining(t *testing.T) {
	stmt, errs := parse(t, "x = other.list[0];")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	assign := b.Stmts[0].(*ast.Assign)
	idx, ok := assign.Value.(*ast.Index)
	if !ok {
		t.Fatalf("expected *ast.Index, got %T", assign.Value)
	}
	field, ok := idx.Base.(*ast.Field)
	if !ok {
		t.Fatalf("expected *ast.Field base, got %T", idx.Base)
	}
	if _, ok := field.Base.(*ast.Ident); !ok {
		t.Fatalf("expected *ast.Ident base of field, got %T", field.Base)
	}
}

func TestPrecedence(t *testing.T) {
	stmt, errs := parse(t, "x = 1 + 2 * 3;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	assign := b.Stmts[0].(*ast.Assign)
	add, ok := assign.Value.(*ast.Binary)
	if !ok || add.Op != ast.Add {
		t.Fatalf("expected top-level Add, got %#v", assign.Value)
	}
	if _, ok := add.Right.(*ast.Binary); !ok {
		t.Fatalf("expected Multiply nested on the right, got %#v", add.Right)
	}
}

func TestIfThenElse(t *testing.T) {
	stmt, errs := parse(t, "if x > 0 then y = 1; else y = 2;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	ifStmt := b.Stmts[0].(*ast.If)
	if ifStmt.Else == nil {
		t.Fatalf("expected an else branch")
	}
}

func TestWithStatement(t *testing.T) {
	stmt, errs := parse(t, "with other do x = 1;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	if _, ok := b.Stmts[0].(*ast.With); !ok {
		t.Fatalf("expected *ast.With, got %T", b.Stmts[0])
	}
}

func TestDoUntil(t *testing.T) {
	stmt, errs := parse(t, "do { x += 1; } until x >= 10;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	if _, ok := b.Stmts[0].(*ast.Do); !ok {
		t.Fatalf("expected *ast.Do, got %T", b.Stmts[0])
	}
}

func TestForLoop(t *testing.T) {
	stmt, errs := parse(t, "for (i = 0; i < 10; i += 1) x += i;")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	if _, ok := b.Stmts[0].(*ast.For); !ok {
		t.Fatalf("expected *ast.For, got %T", b.Stmts[0])
	}
}

func TestSwitchWithCases(t *testing.T) {
	stmt, errs := parse(t, "switch x { case 1: y = 1; break; default: y = 2; break; }")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	sw, ok := b.Stmts[0].(*ast.Switch)
	if !ok {
		t.Fatalf("expected *ast.Switch, got %T", b.Stmts[0])
	}
	if len(sw.Body) == 0 {
		t.Fatalf("expected a non-empty switch body")
	}
}

func TestUnaryAndBegin(t *testing.T) {
	stmt, errs := parse(t, "begin x = -1; y = not true; end")
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	b := block(t, stmt)
	if len(b.Stmts) != 2 {
		t.Fatalf("expected 2 statements inside begin/end, got %d", len(b.Stmts))
	}
}

func TestUnexpectedTokenRecovers(t *testing.T) {
	stmt, errs := parse(t, "x = ; y = 1;")
	if errs.Count == 0 {
		t.Fatalf("expected a diagnostic for the empty expression")
	}
	b := block(t, stmt)
	if len(b.Stmts) != 2 {
		t.Fatalf("expected recovery to still find the second statement, got %d stmts", len(b.Stmts))
	}
}
