// Package parser is a Pratt expression parser plus a recursive-descent
// statement parser, producing a span-tagged ast.Stmt tree.
package parser

import (
	"strconv"
	"strings"

	"gmlvm/internal/ast"
	"gmlvm/internal/diag"
	"gmlvm/internal/lexer"
	"gmlvm/internal/symbol"
)

// Parser turns a token stream into an AST, reporting diagnostics to errors
// and recovering at statement boundaries so one malformed statement never
// aborts the whole compilation.
type Parser struct {
	reader  *lexer.Lexer
	errors  *diag.Printer
	current lexer.Token
	span    diag.Span
}

// New returns a Parser primed with the first token of reader.
func New(reader *lexer.Lexer, errors *diag.Printer) *Parser {
	p := &Parser{reader: reader, errors: errors}
	p.advanceToken()
	return p
}

// ParseExpression parses a single full expression, for callers that feed
// it raw argument text rather than a whole statement (the action parser).
func (p *Parser) ParseExpression() (ast.Expr, diag.Span) {
	return p.parseExpression(0)
}

// ParseProgram parses a whole compilation unit: a single `{ ... }` (or
// `begin ... end`) block if the input starts with one, otherwise a sequence
// of statements wrapped in an implicit block. Trailing extra tokens are
// reported but not fatal.
func (p *Parser) ParseProgram() (ast.Stmt, diag.Span) {
	low := p.span.Low

	var stmt ast.Stmt
	var span diag.Span
	if p.current.Kind == lexer.LBrace || p.isKeyword(symbol.Begin) {
		stmt, span = p.parseStatement()
	} else {
		var stmts []ast.Stmt
		high := low
		for p.current.Kind != lexer.EOF {
			s, sSpan := p.parseStatement()
			if isErrorStmt(s) {
				p.skipToStatement()
			}
			stmts = append(stmts, s)
			high = sSpan.High
		}
		span = diag.Span{Low: low, High: high}
		stmt = ast.NewBlock(stmts, span)
	}
	high := span.High

	if p.current.Kind != lexer.EOF {
		p.errors.Error(p.span, "unexpected %s; expected %s", p.current, lexer.EOF)
	}

	return stmt, diag.Span{Low: low, High: high}
}

func (p *Parser) parseStatement() (ast.Stmt, diag.Span) {
	low := p.span.Low

	var stmt ast.Stmt
	var span diag.Span
	switch {
	case p.isKeyword(symbol.Var) || p.isKeyword(symbol.GlobalVar):
		stmt, span = p.parseDeclare()
	case p.current.Kind == lexer.LBrace || p.isKeyword(symbol.Begin):
		stmt, span = p.parseBlock()
	case p.isKeyword(symbol.If):
		stmt, span = p.parseIf()
	case p.isKeyword(symbol.Repeat):
		stmt, span = p.parseRepeat()
	case p.isKeyword(symbol.While) || p.isKeyword(symbol.With):
		stmt, span = p.parseWhileOrWith()
	case p.isKeyword(symbol.Do):
		stmt, span = p.parseDo()
	case p.isKeyword(symbol.For):
		stmt, span = p.parseFor()
	case p.isKeyword(symbol.Switch):
		stmt, span = p.parseSwitch()
	case p.isKeyword(symbol.Break) || p.isKeyword(symbol.Continue) || p.isKeyword(symbol.Exit):
		stmt, span = p.parseJump()
	case p.isKeyword(symbol.Return):
		stmt, span = p.parseReturn()
	case p.isKeyword(symbol.Case) || p.isKeyword(symbol.Default):
		stmt, span = p.parseCase()
	default:
		stmt, span = p.parseAssignOrInvoke()
	}

	high := span.High
	for p.current.Kind == lexer.Semicolon {
		high = p.span.High
		p.advanceToken()
	}

	return stmt, diag.Span{Low: low, High: high}
}

func (p *Parser) parseAssignOrInvoke() (ast.Stmt, diag.Span) {
	low := p.span.Low
	place, leftSpan := p.parseTerm()

	switch v := place.(type) {
	case *ast.Call:
		return ast.NewInvoke(v, leftSpan), leftSpan
	case *ast.ErrorExpr:
		return ast.NewErrorStmt(place, leftSpan), leftSpan
	}

	opSpan := p.span
	var op *ast.BinOp
	set := func(o ast.BinOp) *ast.BinOp { return &o }
	switch p.current.Kind {
	case lexer.Eq, lexer.ColonEq:
		op = nil
	case lexer.PlusEq:
		op = set(ast.Add)
	case lexer.MinusEq:
		op = set(ast.Subtract)
	case lexer.StarEq:
		op = set(ast.Multiply)
	case lexer.SlashEq:
		op = set(ast.Divide)
	case lexer.AmpEq:
		op = set(ast.BitAnd)
	case lexer.PipeEq:
		op = set(ast.BitOr)
	case lexer.CaretEq:
		op = set(ast.BitXor)
	default:
		p.errors.Error(p.span, "unexpected %s; expected assignment operator", p.current)
		return ast.NewErrorStmt(place, leftSpan), leftSpan
	}
	p.advanceToken()

	value, valueSpan := p.parseExpression(0)
	span := diag.Span{Low: low, High: valueSpan.High}
	return ast.NewAssign(op, opSpan, place, value, span), span
}

func (p *Parser) parseDeclare() (ast.Stmt, diag.Span) {
	low := p.span.Low
	tok, kwSpan := p.advanceToken()
	kind := ast.Local
	if tok.Sym == symbol.GlobalVar {
		kind = ast.GlobalAlias
	}

	var idents []ast.DeclIdent
	high := kwSpan.High
	for p.current.Kind == lexer.Ident {
		idents = append(idents, ast.DeclIdent{Sym: p.current.Sym, Span: p.span})
		high = p.span.High
		p.advanceToken()
		if p.current.Kind != lexer.Comma {
			break
		}
		p.advanceToken()
	}

	if p.current.Kind == lexer.Eq || p.current.Kind == lexer.ColonEq {
		p.errors.Error(p.span, "unexpected %s; expected %s", p.current, lexer.Semicolon)
		p.advanceToken()
		p.parseExpression(0)
	}

	span := diag.Span{Low: low, High: high}
	return ast.NewDeclare(kind, idents, span), span
}

func (p *Parser) parseBlock() (ast.Stmt, diag.Span) {
	low := p.span.Low
	p.advanceToken()

	var stmts []ast.Stmt
	for p.current.Kind != lexer.RBrace && !p.isKeyword(symbol.End) && p.current.Kind != lexer.EOF {
		s, _ := p.parseStatement()
		if isErrorStmt(s) {
			p.skipToStatement()
		}
		stmts = append(stmts, s)
	}

	var high int
	if p.current.Kind == lexer.EOF {
		p.errors.Error(p.span, "unexpected %s; expected %s", p.current, lexer.RBrace)
		high = p.span.Low
	} else {
		_, s := p.advanceToken()
		high = s.High
	}

	span := diag.Span{Low: low, High: high}
	return ast.NewBlock(stmts, span), span
}

func (p *Parser) parseIf() (ast.Stmt, diag.Span) {
	low := p.span.Low
	p.advanceToken()

	cond, _ := p.parseExpression(0)

	if p.isKeyword(symbol.Then) {
		p.advanceToken()
	}

	then, thenSpan := p.parseStatement()

	var els ast.Stmt
	high := thenSpan.High
	if p.isKeyword(symbol.Else) {
		p.advanceToken()
		var elsSpan diag.Span
		els, elsSpan = p.parseStatement()
		high = elsSpan.High
	}

	span := diag.Span{Low: low, High: high}
	return ast.NewIf(cond, then, els, span), span
}

func (p *Parser) parseRepeat() (ast.Stmt, diag.Span) {
	low := p.span.Low
	p.advanceToken()

	count, _ := p.parseExpression(0)
	body, bodySpan := p.parseStatement()

	span := diag.Span{Low: low, High: bodySpan.High}
	return ast.NewRepeat(count, body, span), span
}

func (p *Parser) parseWhileOrWith() (ast.Stmt, diag.Span) {
	low := p.span.Low
	tok, _ := p.advanceToken()
	isWith := tok.Sym == symbol.With

	set, _ := p.parseExpression(0)
	if p.isKeyword(symbol.Do) {
		p.advanceToken()
	}
	body, bodySpan := p.parseStatement()

	span := diag.Span{Low: low, High: bodySpan.High}
	if isWith {
		return ast.NewWith(set, body, span), span
	}
	return ast.NewWhile(set, body, span), span
}

func (p *Parser) parseDo() (ast.Stmt, diag.Span) {
	low := p.span.Low
	p.advanceToken()

	body, _ := p.parseStatement()
	p.expectKeyword(symbol.Until, "until")
	until, untilSpan := p.parseExpression(0)

	span := diag.Span{Low: low, High: untilSpan.High}
	return ast.NewDo(body, until, span), span
}

func (p *Parser) parseFor() (ast.Stmt, diag.Span) {
	low := p.span.Low
	p.advanceToken()
	p.expect(lexer.LParen)

	init, _ := p.parseStatement()
	cond, _ := p.parseExpression(0)
	if p.current.Kind == lexer.Semicolon {
		p.advanceToken()
	}
	next, _ := p.parseStatement()

	high := p.span.High
	p.expect(lexer.RParen)

	body, _ := p.parseStatement()

	span := diag.Span{Low: low, High: high}
	return ast.NewFor(init, cond, next, body, span), span
}

func (p *Parser) parseSwitch() (ast.Stmt, diag.Span) {
	low := p.span.Low
	p.advanceToken()

	subject, _ := p.parseExpression(0)

	if p.current.Kind != lexer.LBrace && !p.isKeyword(symbol.Begin) {
		p.errors.Error(p.span, "unexpected %s; expected %s", p.current, lexer.LBrace)
	}

	blockStmt, blockSpan := p.parseBlock()
	block, _ := blockStmt.(*ast.Block)
	var body []ast.Stmt
	if block != nil {
		body = block.Stmts
	}

	span := diag.Span{Low: low, High: blockSpan.High}
	return ast.NewSwitch(subject, body, span), span
}

func (p *Parser) parseJump() (ast.Stmt, diag.Span) {
	low := p.span.Low
	tok, tokSpan := p.advanceToken()
	var kind ast.JumpKind
	switch tok.Sym {
	case symbol.Break:
		kind = ast.Break
	case symbol.Continue:
		kind = ast.Continue
	case symbol.Exit:
		kind = ast.Exit
	}
	span := diag.Span{Low: low, High: tokSpan.High}
	return ast.NewJump(kind, span), span
}

func (p *Parser) parseReturn() (ast.Stmt, diag.Span) {
	low := p.span.Low
	p.advanceToken()

	value, valueSpan := p.parseExpression(0)
	span := diag.Span{Low: low, High: valueSpan.High}
	return ast.NewReturn(value, span), span
}

func (p *Parser) parseCase() (ast.Stmt, diag.Span) {
	low := p.span.Low
	tok, _ := p.advanceToken()

	var expr ast.Expr
	if tok.Sym == symbol.Case {
		expr, _ = p.parseExpression(0)
	}

	high := p.span.High
	p.expect(lexer.Colon)

	span := diag.Span{Low: low, High: high}
	return ast.NewCase(expr, span), span
}

// ---- Expressions ----

type infixKind int

const (
	infixBinary infixKind = iota
	infixField
	infixIndex
	infixCall
)

type infix struct {
	kind infixKind
	op   ast.BinOp
	prec int
}

func infixFromToken(tok lexer.Token) (infix, bool) {
	switch tok.Kind {
	case lexer.Dot:
		return infix{kind: infixField, prec: 7}, true
	case lexer.LBracket:
		return infix{kind: infixIndex, prec: 7}, true
	case lexer.LParen:
		return infix{kind: infixCall, prec: 7}, true
	}

	var op ast.BinOp
	switch tok.Kind {
	case lexer.Lt:
		op = ast.Lt
	case lexer.Le:
		op = ast.Le
	case lexer.Eq, lexer.ColonEq, lexer.EqEq:
		op = ast.Eq
	case lexer.Ne:
		op = ast.Ne
	case lexer.Ge:
		op = ast.Ge
	case lexer.Gt:
		op = ast.Gt
	case lexer.Plus:
		op = ast.Add
	case lexer.Minus:
		op = ast.Subtract
	case lexer.Star:
		op = ast.Multiply
	case lexer.Slash:
		op = ast.Divide
	case lexer.Amp:
		op = ast.BitAnd
	case lexer.Pipe:
		op = ast.BitOr
	case lexer.Caret:
		op = ast.BitXor
	case lexer.Shl:
		op = ast.ShiftLeft
	case lexer.Shr:
		op = ast.ShiftRight
	case lexer.AndAnd:
		op = ast.And
	case lexer.OrOr:
		op = ast.Or
	case lexer.XorXor:
		op = ast.Xor
	case lexer.Keyword:
		switch tok.Sym {
		case symbol.Div:
			op = ast.Div
		case symbol.Mod:
			op = ast.Mod
		case symbol.And:
			op = ast.And
		case symbol.Or:
			op = ast.Or
		case symbol.Xor:
			op = ast.Xor
		default:
			return infix{}, false
		}
	default:
		return infix{}, false
	}

	var prec int
	switch op {
	case ast.Multiply, ast.Divide, ast.Div, ast.Mod:
		prec = 6
	case ast.Add, ast.Subtract:
		prec = 5
	case ast.ShiftLeft, ast.ShiftRight:
		prec = 4
	case ast.BitAnd, ast.BitXor, ast.BitOr:
		prec = 3
	case ast.Lt, ast.Le, ast.Eq, ast.Ne, ast.Ge, ast.Gt:
		prec = 2
	case ast.And, ast.Or, ast.Xor:
		prec = 1
	}
	return infix{kind: infixBinary, op: op, prec: prec}, true
}

// parseExpression implements precedence climbing with level 0 as "parse
// everything"; parseTerm (level 7) is the postfix-only slice used for
// assignment places and unary operands.
func (p *Parser) parseExpression(minPrec int) (ast.Expr, diag.Span) {
	left, leftSpan, parens := p.parsePrefixExpression()

	for {
		in, ok := infixFromToken(p.current)
		if !ok || in.prec < minPrec {
			break
		}

		low := leftSpan.Low
		advanced := true
		switch {
		case in.kind == infixCall:
			ident, isIdent := left.(*ast.Ident)
			if !isIdent {
				advanced = false
				break
			}
			args, high := p.parseArgs(lexer.RParen)
			left = ast.NewCall(ident.Sym, leftSpan, args, diag.Span{Low: low, High: high})
			leftSpan = diag.Span{Low: low, High: high}
			parens = true

		case in.kind == infixIndex && !parens:
			_, isIdent := left.(*ast.Ident)
			_, isField := left.(*ast.Field)
			if !isIdent && !isField {
				advanced = false
				break
			}
			args, high := p.parseArgs(lexer.RBracket)
			left = ast.NewIndex(left, args, diag.Span{Low: low, High: high})
			leftSpan = diag.Span{Low: low, High: high}
			parens = false

		case in.kind == infixField:
			p.advanceToken()
			if p.current.Kind != lexer.Ident {
				p.errors.Error(p.span, "unexpected %s; expected identifier", p.current)
				advanced = false
				break
			}
			fieldSym := p.current.Sym
			_, fieldSpan := p.advanceToken()
			left = ast.NewField(left, fieldSym, fieldSpan, diag.Span{Low: low, High: fieldSpan.High})
			leftSpan = diag.Span{Low: low, High: fieldSpan.High}
			parens = false

		case in.kind == infixBinary:
			opSpan := p.span
			p.advanceToken()
			right, rightSpan := p.parseExpression(in.prec + 1)
			left = ast.NewBinary(in.op, opSpan, left, right, diag.Span{Low: low, High: rightSpan.High})
			leftSpan = diag.Span{Low: low, High: rightSpan.High}

		default:
			advanced = false
		}

		if !advanced {
			break
		}
	}

	return left, leftSpan
}

var valueKeywords = map[symbol.Symbol]bool{
	symbol.True: true, symbol.False: true, symbol.Self: true, symbol.Other: true,
	symbol.All: true, symbol.NoOne: true, symbol.Global: true, symbol.Local: true,
}

func (p *Parser) parsePrefixExpression() (ast.Expr, diag.Span, bool) {
	low := p.span.Low

	switch p.current.Kind {
	case lexer.Ident:
		sym := p.current.Sym
		_, span := p.advanceToken()
		return ast.NewIdent(sym, span), span, false

	case lexer.Keyword:
		if valueKeywords[p.current.Sym] {
			sym := p.current.Sym
			_, span := p.advanceToken()
			return ast.NewIdent(sym, span), span, false
		}
		if p.current.Sym == symbol.Not {
			return p.parseUnary(low, ast.Invert)
		}

	case lexer.Real:
		text := p.current.Text
		_, span := p.advanceToken()
		return ast.NewRealLit(parseReal(p, span, text), span), span, false

	case lexer.String:
		text := p.current.Text
		_, span := p.advanceToken()
		var inner string
		if len(text) >= 2 {
			inner = string(text[1 : len(text)-1])
		}
		return ast.NewStringLit(symbol.Intern(inner), span), span, false

	case lexer.Plus:
		return p.parseUnary(low, ast.Positive)
	case lexer.Minus:
		return p.parseUnary(low, ast.Negate)
	case lexer.Bang:
		return p.parseUnary(low, ast.Invert)
	case lexer.Tilde:
		return p.parseUnary(low, ast.BitInvert)

	case lexer.LParen:
		p.advanceToken()
		expr, exprSpan := p.parseExpression(0)
		p.expect(lexer.RParen)
		return expr, exprSpan, true
	}

	p.errors.Error(p.span, "unexpected %s; expected expression", p.current)
	span := diag.Span{Low: low, High: low}
	return ast.NewErrorExpr(span), span, false
}

func (p *Parser) parseUnary(low int, op ast.UnaryOp) (ast.Expr, diag.Span, bool) {
	_, opSpan := p.advanceToken()
	operand, operandSpan := p.parseTerm()
	span := diag.Span{Low: low, High: operandSpan.High}
	return ast.NewUnary(op, opSpan, operand, span), span, true
}

func parseReal(p *Parser, span diag.Span, text []byte) float64 {
	s := string(text)
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseUint(s[1:], 16, 64)
		if err != nil {
			p.errors.Error(span, "invalid integer literal")
			return 0
		}
		return float64(v)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.errors.Error(span, "invalid numeric literal")
		return 0
	}
	return v
}

func (p *Parser) parseArgs(closeKind lexer.Kind) ([]ast.Expr, int) {
	p.advanceToken()

	var args []ast.Expr
	for p.current.Kind != closeKind && p.current.Kind != lexer.EOF {
		e, _ := p.parseExpression(0)
		args = append(args, e)

		if p.current.Kind == lexer.Comma {
			p.advanceToken()
		} else {
			break
		}
	}

	high := p.span.High
	if p.current.Kind != closeKind {
		p.errors.Error(p.span, "unexpected %s; expected %s or %s", p.current, closeKind, lexer.Comma)
	} else {
		_, span := p.advanceToken()
		high = span.High
	}

	return args, high
}

// parseTerm parses at postfix precedence only: field/index/call, nothing
// looser. Used for assignment places and unary operands.
func (p *Parser) parseTerm() (ast.Expr, diag.Span) {
	return p.parseExpression(7)
}

func (p *Parser) expect(kind lexer.Kind) bool {
	if p.current.Kind == kind {
		p.advanceToken()
		return true
	}
	p.errors.Error(p.span, "unexpected %s; expected %s", p.current, kind)
	return false
}

func (p *Parser) expectKeyword(sym symbol.Symbol, display string) bool {
	if p.current.Kind == lexer.Keyword && p.current.Sym == sym {
		p.advanceToken()
		return true
	}
	p.errors.Error(p.span, "unexpected %s; expected %s", p.current, display)
	return false
}

func (p *Parser) isKeyword(sym symbol.Symbol) bool {
	return p.current.Kind == lexer.Keyword && p.current.Sym == sym
}

func (p *Parser) advanceToken() (lexer.Token, diag.Span) {
	tok, span := p.reader.ReadToken()
	prevTok, prevSpan := p.current, p.span
	p.current, p.span = tok, span
	return prevTok, prevSpan
}

var syncKeywords = map[symbol.Symbol]bool{
	symbol.End: true, symbol.Self: true, symbol.Other: true, symbol.All: true,
	symbol.NoOne: true, symbol.Global: true, symbol.Local: true, symbol.Var: true,
	symbol.GlobalVar: true, symbol.Begin: true, symbol.If: true, symbol.Repeat: true,
	symbol.While: true, symbol.With: true, symbol.Do: true, symbol.For: true,
	symbol.Break: true, symbol.Continue: true, symbol.Exit: true, symbol.Switch: true,
	symbol.Case: true, symbol.Default: true, symbol.Return: true,
}

func (p *Parser) skipToStatement() {
	for {
		switch p.current.Kind {
		case lexer.Semicolon:
			p.advanceToken()
			return
		case lexer.EOF, lexer.RBrace, lexer.Ident, lexer.LParen, lexer.LBrace:
			return
		case lexer.Keyword:
			if syncKeywords[p.current.Sym] {
				return
			}
			p.advanceToken()
		default:
			p.advanceToken()
		}
	}
}

func isErrorStmt(s ast.Stmt) bool {
	_, ok := s.(*ast.ErrorStmt)
	return ok
}
