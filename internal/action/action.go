// Package action translates an ordered Drag-and-Drop action sequence into
// the same span-tagged AST the statement parser produces, so the front-end
// codegen never has to know whether a function came from a code event or
// an action list.
package action

import (
	"gmlvm/internal/ast"
	"gmlvm/internal/diag"
	"gmlvm/internal/lexer"
	"gmlvm/internal/parser"
	"gmlvm/internal/project"
	"gmlvm/internal/symbol"
)

// Parse translates actions into a single Block statement, registering every
// argument and code-embed string's text with lines so that diagnostics and
// runtime faults can attribute a byte offset back to an (action, argument)
// pair. errors receives any diagnostics raised while parsing argument text.
func Parse(actions []project.Action, lines *diag.Lines, errors *diag.Printer) (ast.Stmt, diag.Span) {
	p := &parserState{actions: actions, lines: lines, errors: errors}
	low := lines.NextOffset()
	stmts := p.parseSequence()
	high := low
	if len(stmts) > 0 {
		high = stmts[len(stmts)-1].Span().High
	}
	span := diag.Span{Low: low, High: high}
	return ast.NewBlock(stmts, span), span
}

type parserState struct {
	actions []project.Action
	pos     int
	lines   *diag.Lines
	errors  *diag.Printer
}

func (p *parserState) more() bool { return p.pos < len(p.actions) }

func (p *parserState) peek() project.Action { return p.actions[p.pos] }

func (p *parserState) advance() project.Action {
	a := p.actions[p.pos]
	p.pos++
	return a
}

// parseSequence consumes actions up to (not including) an unmatched Else or
// End, or the end of the list — used both at the top level and, via
// parseGroup, inside a begin/end bracket.
func (p *parserState) parseSequence() []ast.Stmt {
	var stmts []ast.Stmt
	for p.more() {
		kind := p.peek().Kind
		if kind == project.ActionElse || kind == project.ActionEnd {
			break
		}
		stmts = append(stmts, p.parseOne()...)
	}
	return stmts
}

// parseGroup consumes a begin/end bracket, already positioned at the
// ActionBegin record.
func (p *parserState) parseGroup() []ast.Stmt {
	p.advance() // begin
	stmts := p.parseSequence()
	if p.more() && p.peek().Kind == project.ActionEnd {
		p.advance()
	} else {
		p.errors.Error(p.emptySpan(), "unterminated action block")
	}
	return stmts
}

// parseBody returns the statements controlled by a conditional branch,
// repeat body, or similar single-slot owner: a whole begin/end bracket if
// present, otherwise exactly the next action.
func (p *parserState) parseBody() []ast.Stmt {
	if !p.more() {
		return nil
	}
	if p.peek().Kind == project.ActionBegin {
		return p.parseGroup()
	}
	return p.parseOne()
}

func (p *parserState) parseOne() []ast.Stmt {
	a := p.peek()
	switch a.Kind {
	case project.ActionBegin:
		return p.parseGroup()
	case project.ActionConditional:
		return []ast.Stmt{p.parseConditional()}
	case project.ActionSet:
		return []ast.Stmt{p.parseSet()}
	case project.ActionCode:
		return []ast.Stmt{p.parseCode()}
	case project.ActionRepeat:
		return []ast.Stmt{p.parseRepeat()}
	case project.ActionExit:
		p.advance()
		span := p.emptySpan()
		return []ast.Stmt{ast.NewJump(ast.Exit, span)}
	case project.ActionNormal:
		return []ast.Stmt{p.parseNormal()}
	default:
		p.advance()
		p.errors.Error(p.emptySpan(), "unexpected action kind %v", a.Kind)
		return nil
	}
}

func (p *parserState) parseConditional() ast.Stmt {
	a := p.advance()
	var cond ast.Expr
	var condSpan diag.Span
	if len(a.Args) > 0 {
		cond, condSpan = p.parseArgExpr(a.Args[0], 0)
	} else {
		condSpan = p.emptySpan()
		cond = ast.NewErrorExpr(condSpan)
	}
	if a.Not {
		cond = ast.NewUnary(ast.Invert, condSpan, cond, condSpan)
	}

	thenStmts := p.parseBody()
	then := blockOf(thenStmts, condSpan)

	var els ast.Stmt
	high := then.Span().High
	if p.more() && p.peek().Kind == project.ActionElse {
		p.advance()
		elsStmts := p.parseBody()
		elsBlock := blockOf(elsStmts, condSpan)
		els = elsBlock
		high = elsBlock.Span().High
	}

	span := diag.Span{Low: condSpan.Low, High: high}
	stmt := ast.NewIf(cond, then, els, span)
	return withWrap(a.Target, stmt, span)
}

func (p *parserState) parseSet() ast.Stmt {
	a := p.advance()
	var place, value ast.Expr
	var placeSpan, valueSpan diag.Span
	if len(a.Args) > 0 {
		place, placeSpan = p.parseArgExpr(a.Args[0], 0)
	} else {
		placeSpan = p.emptySpan()
		place = ast.NewErrorExpr(placeSpan)
	}
	if len(a.Args) > 1 {
		value, valueSpan = p.parseArgExpr(a.Args[1], 1)
	} else {
		valueSpan = p.emptySpan()
		value = ast.NewErrorExpr(valueSpan)
	}

	span := diag.Span{Low: placeSpan.Low, High: valueSpan.High}
	stmt := ast.NewAssign(nil, placeSpan, place, value, span)
	return withWrap(a.Target, stmt, span)
}

func (p *parserState) parseCode() ast.Stmt {
	a := p.advance()
	var text string
	if len(a.Args) > 0 {
		text = a.Args[0]
	}

	base := p.lines.NextOffset()
	p.lines.AddCode(base, []byte(text), p.pos-1)
	pr := parser.New(lexer.New([]byte(text), base), p.errors)
	stmt, span := pr.ParseProgram()

	return withWrap(a.Target, stmt, span)
}

func (p *parserState) parseRepeat() ast.Stmt {
	a := p.advance()
	var count ast.Expr
	var countSpan diag.Span
	if len(a.Args) > 0 {
		count, countSpan = p.parseArgExpr(a.Args[0], 0)
	} else {
		countSpan = p.emptySpan()
		count = ast.NewErrorExpr(countSpan)
	}

	bodyStmts := p.parseBody()
	body := blockOf(bodyStmts, countSpan)

	span := diag.Span{Low: countSpan.Low, High: body.Span().High}
	stmt := ast.NewRepeat(count, body, span)
	return withWrap(a.Target, stmt, span)
}

func (p *parserState) parseNormal() ast.Stmt {
	a := p.advance()
	if len(a.Args) == 0 {
		span := p.emptySpan()
		p.errors.Error(span, "action has no call target")
		return ast.NewErrorStmt(nil, span)
	}

	nameSpan := p.registerArgument(a.Args[0], 0)
	name := symbol.Intern(a.Args[0])

	var args []ast.Expr
	high := nameSpan.High
	for i, raw := range a.Args[1:] {
		arg, argSpan := p.parseArgExpr(raw, i+1)
		args = append(args, arg)
		high = argSpan.High
	}

	span := diag.Span{Low: nameSpan.Low, High: high}
	call := ast.NewCall(name, nameSpan, args, span)
	stmt := ast.NewInvoke(call, span)
	return withWrap(a.Target, stmt, span)
}

// parseArgExpr lexes and parses one action's argument text as a full
// expression, registering its span with p.lines under the current action
// index (the action just consumed by the caller) and argument index.
func (p *parserState) parseArgExpr(text string, argument int) (ast.Expr, diag.Span) {
	base := p.registerArgument(text, argument)
	pr := parser.New(lexer.New([]byte(text), base.Low), p.errors)
	return pr.ParseExpression()
}

func (p *parserState) registerArgument(text string, argument int) diag.Span {
	base := p.lines.NextOffset()
	high := p.lines.AddArgument(base, len(text), p.pos-1, argument)
	return diag.Span{Low: base, High: high}
}

func (p *parserState) emptySpan() diag.Span {
	at := p.lines.NextOffset()
	return diag.Span{Low: at, High: at}
}

func blockOf(stmts []ast.Stmt, fallback diag.Span) *ast.Block {
	if len(stmts) == 0 {
		return ast.NewBlock(nil, fallback)
	}
	span := diag.Span{Low: stmts[0].Span().Low, High: stmts[len(stmts)-1].Span().High}
	return ast.NewBlock(stmts, span)
}

func withWrap(target project.ActionTarget, stmt ast.Stmt, span diag.Span) ast.Stmt {
	if target.Kind == project.TargetSelf {
		return stmt
	}
	var set ast.Expr
	switch target.Kind {
	case project.TargetOther:
		set = ast.NewIdent(symbol.Other, span)
	case project.TargetObject, project.TargetInstance:
		set = ast.NewRealLit(float64(target.ID), span)
	default:
		return stmt
	}
	return ast.NewWith(set, stmt, span)
}
