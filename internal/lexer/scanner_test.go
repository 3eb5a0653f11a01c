package lexer

import (
	"testing"
)

func scanAll(src string) []Token {
	l := New([]byte(src), 0)
	var toks []Token
	for {
		tok, _ := l.ReadToken()
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks
		}
	}
}

func TestKeywordsAreCaseInsensitive(t *testing.T) {
	for _, src := range []string{"if", "If", "IF", "iF"} {
		toks := scanAll(src)
		if len(toks) != 2 || toks[0].Kind != Keyword {
			t.Fatalf("%q: expected a single keyword token, got %v", src, toks)
		}
	}
}

func TestIdentifiersAreCaseSensitive(t *testing.T) {
	toks := scanAll("Foo foo")
	if len(toks) != 3 || toks[0].Kind != Ident || toks[1].Kind != Ident {
		t.Fatalf("expected two identifiers, got %v", toks)
	}
	if toks[0].Sym == toks[1].Sym {
		t.Fatalf("Foo and foo should intern to distinct symbols")
	}
}

func TestOperatorMaximalMunch(t *testing.T) {
	cases := map[string]Kind{
		"=": Eq, ":=": ColonEq, "==": EqEq, "!=": Ne, "<>": Ne,
		"<": Lt, "<=": Le, ">": Gt, ">=": Ge, "<<": Shl, ">>": Shr,
		"&&": AndAnd, "||": OrOr, "^^": XorXor, "+=": PlusEq, "-=": MinusEq,
		"*=": StarEq, "/=": SlashEq, "&=": AmpEq, "|=": PipeEq, "^=": CaretEq,
	}
	for src, want := range cases {
		toks := scanAll(src)
		if len(toks) != 2 || toks[0].Kind != want {
			t.Fatalf("%q: want single %v token, got %v", src, want, toks)
		}
	}
}

func TestNumericLiteralsDeferParsing(t *testing.T) {
	toks := scanAll("3 3.5 $ff")
	if len(toks) != 4 {
		t.Fatalf("expected 3 reals + eof, got %v", toks)
	}
	for _, tok := range toks[:3] {
		if tok.Kind != Real {
			t.Fatalf("expected Real token, got %v", tok)
		}
	}
	if string(toks[2].Text) != "$ff" {
		t.Fatalf("expected hex literal text preserved, got %q", toks[2].Text)
	}
}

func TestStringLiteralQuoteStyles(t *testing.T) {
	toks := scanAll(`"a" 'b'`)
	if len(toks) != 3 || toks[0].Kind != String || toks[1].Kind != String {
		t.Fatalf("expected two strings, got %v", toks)
	}
}

func TestUnterminatedStringStopsAtLine(t *testing.T) {
	toks := scanAll("\"a\nb")
	if toks[0].Kind != String {
		t.Fatalf("expected a recovered string token, got %v", toks[0])
	}
	if string(toks[0].Text) != `"a` {
		t.Fatalf("expected unterminated string to stop before newline, got %q", toks[0].Text)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	toks := scanAll("x // trailing\n/* block */ y")
	if len(toks) != 3 || toks[0].Kind != Ident || toks[1].Kind != Ident {
		t.Fatalf("expected two identifiers around comments, got %v", toks)
	}
}

func TestOffsetsShareNamespace(t *testing.T) {
	l := New([]byte("y"), 100)
	_, span := l.ReadToken()
	if span.Low != 100 || span.High != 101 {
		t.Fatalf("expected span based at 100, got %+v", span)
	}
}
