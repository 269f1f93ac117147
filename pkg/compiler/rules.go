package compiler

import "github.com/kristofer/loxvm/pkg/lexer"

// Precedence orders binding strength from loosest to tightest, per
// spec.md §4.3: parsing an expression at precedence P repeatedly consumes
// a prefix then infix productions whose precedence is >= P.
type Precedence int

const (
	PrecNone       Precedence = iota
	PrecAssignment            // =
	PrecOr                    // or
	PrecAnd                   // and
	PrecEquality              // == !=
	PrecComparison            // < > <= >=
	PrecTerm                  // + -
	PrecFactor                // * /
	PrecUnary                 // ! -
	PrecCall                  // . ()
	PrecPrimary
)

// parseFn is a Pratt-parser production: a prefix production consumes its
// own token(s); an infix production is invoked with the left-hand side
// already parsed and sitting behind it on the emitted bytecode.
type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// rules is the precedence table keyed by token kind, per spec.md §4.3.
var rules map[lexer.TokenType]parseRule

func init() {
	rules = map[lexer.TokenType]parseRule{
		lexer.TokenLeftParen:    {grouping, call, PrecCall},
		lexer.TokenRightParen:   {nil, nil, PrecNone},
		lexer.TokenLeftBrace:    {nil, nil, PrecNone},
		lexer.TokenRightBrace:   {nil, nil, PrecNone},
		lexer.TokenComma:        {nil, nil, PrecNone},
		lexer.TokenDot:          {nil, dot, PrecCall},
		lexer.TokenMinus:        {unary, binary, PrecTerm},
		lexer.TokenPlus:         {nil, binary, PrecTerm},
		lexer.TokenSemicolon:    {nil, nil, PrecNone},
		lexer.TokenSlash:        {nil, binary, PrecFactor},
		lexer.TokenStar:         {nil, binary, PrecFactor},
		lexer.TokenBang:         {unary, nil, PrecNone},
		lexer.TokenBangEqual:    {nil, binary, PrecEquality},
		lexer.TokenEqual:        {nil, nil, PrecNone},
		lexer.TokenEqualEqual:   {nil, binary, PrecEquality},
		lexer.TokenGreater:      {nil, binary, PrecComparison},
		lexer.TokenGreaterEqual: {nil, binary, PrecComparison},
		lexer.TokenLess:         {nil, binary, PrecComparison},
		lexer.TokenLessEqual:    {nil, binary, PrecComparison},
		lexer.TokenIdentifier:   {variable, nil, PrecNone},
		lexer.TokenString:       {stringLiteral, nil, PrecNone},
		lexer.TokenNumber:       {number, nil, PrecNone},
		lexer.TokenAnd:          {nil, and_, PrecAnd},
		lexer.TokenClass:        {nil, nil, PrecNone},
		lexer.TokenElse:         {nil, nil, PrecNone},
		lexer.TokenFalse:        {literal, nil, PrecNone},
		lexer.TokenFor:          {nil, nil, PrecNone},
		lexer.TokenFun:          {nil, nil, PrecNone},
		lexer.TokenIf:           {nil, nil, PrecNone},
		lexer.TokenNil:          {literal, nil, PrecNone},
		lexer.TokenOr:           {nil, or_, PrecOr},
		lexer.TokenPrint:        {nil, nil, PrecNone},
		lexer.TokenReturn:       {nil, nil, PrecNone},
		lexer.TokenSuper:        {nil, nil, PrecNone},
		lexer.TokenThis:         {nil, nil, PrecNone},
		lexer.TokenTrue:         {literal, nil, PrecNone},
		lexer.TokenVar:          {nil, nil, PrecNone},
		lexer.TokenWhile:        {nil, nil, PrecNone},
		lexer.TokenError:        {nil, nil, PrecNone},
		lexer.TokenEOF:          {nil, nil, PrecNone},
	}
}

func getRule(t lexer.TokenType) parseRule {
	if r, ok := rules[t]; ok {
		return r
	}
	return parseRule{nil, nil, PrecNone}
}
