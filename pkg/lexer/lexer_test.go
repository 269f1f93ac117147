package lexer

import "testing"

func TestNextTokenPunctuationAndOperators(t *testing.T) {
	input := "(){};,.-+/*!= = == >= > <= < !"
	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenSemicolon, TokenComma, TokenDot, TokenMinus, TokenPlus,
		TokenSlash, TokenStar, TokenBangEqual, TokenEqual, TokenEqualEqual,
		TokenGreaterEqual, TokenGreater, TokenLessEqual, TokenLess, TokenBang,
		TokenEOF,
	}

	l := New(input)
	for i, wt := range want {
		tok := l.NextToken()
		if tok.Type != wt {
			t.Fatalf("token %d: got %s, want %s", i, tok.Type, wt)
		}
	}
}

func TestNextTokenKeywordsVsIdentifiers(t *testing.T) {
	l := New("class orchid fun function")
	if tok := l.NextToken(); tok.Type != TokenClass {
		t.Fatalf("got %s, want CLASS", tok.Type)
	}
	if tok := l.NextToken(); tok.Type != TokenIdentifier || tok.Lexeme != "orchid" {
		t.Fatalf("got %s %q, want IDENTIFIER orchid", tok.Type, tok.Lexeme)
	}
	if tok := l.NextToken(); tok.Type != TokenFun {
		t.Fatalf("got %s, want FUN", tok.Type)
	}
	if tok := l.NextToken(); tok.Type != TokenIdentifier || tok.Lexeme != "function" {
		t.Fatalf("got %s %q, want IDENTIFIER function", tok.Type, tok.Lexeme)
	}
}

func TestNextTokenNumbers(t *testing.T) {
	l := New("42 3.14")
	tok := l.NextToken()
	if tok.Type != TokenNumber || tok.Lexeme != "42" {
		t.Fatalf("got %s %q, want NUMBER 42", tok.Type, tok.Lexeme)
	}
	tok = l.NextToken()
	if tok.Type != TokenNumber || tok.Lexeme != "3.14" {
		t.Fatalf("got %s %q, want NUMBER 3.14", tok.Type, tok.Lexeme)
	}
}

func TestNextTokenStrings(t *testing.T) {
	l := New(`"hello, world"`)
	tok := l.NextToken()
	if tok.Type != TokenString || tok.Lexeme != `"hello, world"` {
		t.Fatalf("got %s %q", tok.Type, tok.Lexeme)
	}
}

func TestNextTokenUnterminatedString(t *testing.T) {
	l := New(`"oops`)
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("got %s, want ERROR", tok.Type)
	}
}

func TestNextTokenSkipsCommentsAndTracksLines(t *testing.T) {
	l := New("// a comment\nvar x = 1;")
	tok := l.NextToken()
	if tok.Type != TokenVar || tok.Line != 2 {
		t.Fatalf("got %s on line %d, want VAR on line 2", tok.Type, tok.Line)
	}
}

func TestNextTokenUnexpectedCharacter(t *testing.T) {
	l := New("@")
	tok := l.NextToken()
	if tok.Type != TokenError {
		t.Fatalf("got %s, want ERROR", tok.Type)
	}
}

func TestNextTokenEOFRepeats(t *testing.T) {
	l := New("")
	first := l.NextToken()
	second := l.NextToken()
	if first.Type != TokenEOF || second.Type != TokenEOF {
		t.Fatalf("expected EOF repeated, got %s then %s", first.Type, second.Type)
	}
}
