package action

import (
	"bytes"
	"testing"

	"gmlvm/internal/ast"
	"gmlvm/internal/diag"
	"gmlvm/internal/project"
)

func run(t *testing.T, actions []project.Action) (*ast.Block, *diag.Printer) {
	t.Helper()
	lines := diag.NewLines()
	var sink bytes.Buffer
	errors := diag.NewPrinter("test", lines, &sink)
	stmt, _ := Parse(actions, lines, errors)
	b, ok := stmt.(*ast.Block)
	if !ok {
		t.Fatalf("expected *ast.Block, got %T", stmt)
	}
	return b, errors
}

func TestNormalActionBecomesInvoke(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionNormal, Args: []string{"show_message", `"hi"`}},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	if len(b.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(b.Stmts))
	}
	invoke, ok := b.Stmts[0].(*ast.Invoke)
	if !ok {
		t.Fatalf("expected *ast.Invoke, got %T", b.Stmts[0])
	}
	if len(invoke.Call.Args) != 1 {
		t.Fatalf("expected 1 call arg, got %d", len(invoke.Call.Args))
	}
}

func TestSetAction(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionSet, Args: []string{"hp", "100"}},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	assign, ok := b.Stmts[0].(*ast.Assign)
	if !ok {
		t.Fatalf("expected *ast.Assign, got %T", b.Stmts[0])
	}
	if assign.Op != nil {
		t.Fatalf("expected a plain set, got op %v", *assign.Op)
	}
}

func TestConditionalWithElse(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionConditional, Args: []string{"hp <= 0"}},
		{Kind: project.ActionNormal, Args: []string{"die"}},
		{Kind: project.ActionElse},
		{Kind: project.ActionNormal, Args: []string{"heal"}},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	if len(b.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(b.Stmts))
	}
	ifStmt, ok := b.Stmts[0].(*ast.If)
	if !ok {
		t.Fatalf("expected *ast.If, got %T", b.Stmts[0])
	}
	if ifStmt.Else == nil {
		t.Fatalf("expected an else branch")
	}
}

func TestConditionalNotFlagInverts(t *testing.T) {
	b, _ := run(t, []project.Action{
		{Kind: project.ActionConditional, Not: true, Args: []string{"hp <= 0"}},
		{Kind: project.ActionNormal, Args: []string{"die"}},
	})
	ifStmt := b.Stmts[0].(*ast.If)
	if _, ok := ifStmt.Cond.(*ast.Unary); !ok {
		t.Fatalf("expected Not to wrap the condition in a Unary, got %T", ifStmt.Cond)
	}
}

func TestBeginEndGroupingUnderConditional(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionConditional, Args: []string{"true"}},
		{Kind: project.ActionBegin},
		{Kind: project.ActionNormal, Args: []string{"a"}},
		{Kind: project.ActionNormal, Args: []string{"b"}},
		{Kind: project.ActionEnd},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	ifStmt := b.Stmts[0].(*ast.If)
	then := ifStmt.Then.(*ast.Block)
	if len(then.Stmts) != 2 {
		t.Fatalf("expected 2 statements in the then-block, got %d", len(then.Stmts))
	}
}

func TestNonSelfTargetWrapsWith(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionSet, Target: project.ActionTarget{Kind: project.TargetOther}, Args: []string{"hp", "1"}},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	with, ok := b.Stmts[0].(*ast.With)
	if !ok {
		t.Fatalf("expected *ast.With, got %T", b.Stmts[0])
	}
	if _, ok := with.Set.(*ast.Ident); !ok {
		t.Fatalf("expected other as the with-set, got %T", with.Set)
	}
}

func TestRepeatAction(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionRepeat, Args: []string{"3"}},
		{Kind: project.ActionNormal, Args: []string{"tick"}},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	if _, ok := b.Stmts[0].(*ast.Repeat); !ok {
		t.Fatalf("expected *ast.Repeat, got %T", b.Stmts[0])
	}
}

func TestExitAction(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionExit},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	jump, ok := b.Stmts[0].(*ast.Jump)
	if !ok || jump.Kind != ast.Exit {
		t.Fatalf("expected an Exit jump, got %#v", b.Stmts[0])
	}
}

func TestCodeAction(t *testing.T) {
	b, errs := run(t, []project.Action{
		{Kind: project.ActionCode, Args: []string{"x = 1;\ny = 2;"}},
	})
	if errs.Count != 0 {
		t.Fatalf("unexpected errors: %d", errs.Count)
	}
	inner, ok := b.Stmts[0].(*ast.Block)
	if !ok {
		t.Fatalf("expected *ast.Block from the code embed, got %T", b.Stmts[0])
	}
	if len(inner.Stmts) != 2 {
		t.Fatalf("expected 2 statements in the code embed, got %d", len(inner.Stmts))
	}
}
