// Package compiler implements the single-pass compiler spec.md §4.3
// requires: no AST ever exists, scanning and code generation interleave
// token by token, and a Pratt parser (see rules.go) drives expression
// precedence directly into emitted bytecode.
//
// This keeps a compiler-state struct threading scope and emit helpers, but
// replaces its tree-walking body: an earlier version of this pipeline walked
// a pre-built AST, this one reads tokens from pkg/lexer and writes straight
// to a pkg/chunk.Chunk.
package compiler

import (
	"fmt"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/gc"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

const (
	localsMax   = 256 // spec.md §4.8: LOCALS_MAX
	upvaluesMax = 256 // spec.md §4.8: UPVALUES_MAX
)

type functionType int

const (
	typeFunction functionType = iota
	typeScript
)

// local is a resolved stack slot: Depth -1 means "declared but not yet
// initialized" (its own initializer is still being compiled), which lets
// resolveLocal reject a variable's initializer from referring to itself.
type local struct {
	name       lexer.Token
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   uint8
	isLocal bool
}

// state is one function's compile-time activation: its own locals,
// upvalues and scope depth, linked to the function currently enclosing it.
// The chain of states mirrors the chain of call frames CALL/RETURN build at
// runtime, except it exists only while compiling.
type state struct {
	enclosing *state
	function  *object.Function
	fnType    functionType

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

func newState(enclosing *state, fn *object.Function, fnType functionType) *state {
	s := &state{enclosing: enclosing, function: fn, fnType: fnType}
	// Slot zero is reserved for the running closure itself, the way CALL
	// sets up a frame's base slot before any user local exists.
	s.locals = append(s.locals, local{name: lexer.Token{Lexeme: ""}, depth: 0})
	return s
}

// Compiler drives the parser and owns the chain of function states. One
// Compiler compiles one source unit (a script, or a REPL line).
type Compiler struct {
	gc *gc.Collector

	lex       *lexer.Lexer
	current   lexer.Token
	previous  lexer.Token
	hadError  bool
	panicMode bool
	errs      []string

	cs *state // innermost (currently compiling) function state
}

// New creates a compiler bound to the collector that will own every object
// the compile allocates (string constants, the Function objects).
func New(collector *gc.Collector) *Compiler {
	return &Compiler{gc: collector}
}

// Compile compiles source into a top-level Function (the implicit script),
// returning (fn, true) on success or (nil, false) if any compile error was
// reported. While a Compile is in flight, the Collector's MarkRoots is
// temporarily wrapped so in-progress Function objects stay reachable even
// though nothing in the VM points at them yet (spec.md §4.3, "compiler
// roots").
func (c *Compiler) Compile(source string) (*object.Function, bool) {
	c.lex = lexer.New(source)
	c.hadError = false
	c.panicMode = false
	c.errs = nil

	script := c.gc.NewFunction()
	c.cs = newState(nil, script, typeScript)

	prevRoots := c.gc.MarkRoots
	c.gc.MarkRoots = func(g *gc.Collector) {
		c.MarkRoots(g)
		if prevRoots != nil {
			prevRoots(g)
		}
	}
	defer func() { c.gc.MarkRoots = prevRoots }()

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}

	fn := c.endCompiler()
	return fn, !c.hadError
}

// Errors returns the compile diagnostics accumulated by a failed Compile.
func (c *Compiler) Errors() []string { return c.errs }

// MarkRoots marks every Function object still under construction along the
// compiler's state chain, so a GC triggered mid-compile (by, say, interning
// a long run of string constants) cannot reclaim a function whose chunk
// isn't reachable from anywhere else yet.
func (c *Compiler) MarkRoots(g *gc.Collector) {
	for s := c.cs; s != nil; s = s.enclosing {
		g.MarkObject(s.function)
	}
}

// ---- token plumbing ----

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Type != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t lexer.TokenType) bool { return c.current.Type == t }

func (c *Compiler) match(t lexer.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t lexer.TokenType, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string)  { c.errorAt(c.current, msg) }
func (c *Compiler) errorAtPrevious(msg string) { c.errorAt(c.previous, msg) }

func (c *Compiler) errorAt(tok lexer.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	var where string
	switch tok.Type {
	case lexer.TokenEOF:
		where = " at end"
	case lexer.TokenError:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.errs = append(c.errs, fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, msg))
}

// synchronize discards tokens after a parse error until a likely statement
// boundary, so one mistake doesn't cascade into a wall of spurious errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != lexer.TokenEOF {
		if c.previous.Type == lexer.TokenSemicolon {
			return
		}
		switch c.current.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

// ---- emit helpers ----

func (c *Compiler) chunk() *chunk.Chunk { return c.cs.function.Chunk }

func (c *Compiler) emitByte(b byte)        { c.chunk().Write(b, c.previous.Line) }
func (c *Compiler) emitOp(op chunk.OpCode) { c.chunk().WriteOp(op, c.previous.Line) }
func (c *Compiler) emitOpByte(op chunk.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xFFFF {
		c.errorAtPrevious("Loop body too large.")
	}
	c.chunk().WriteUint16(uint16(offset), c.previous.Line)
}

// emitJump writes instruction followed by a two-byte placeholder, returning
// the placeholder's offset for patchJump to backfill once the jump target
// is known.
func (c *Compiler) emitJump(instruction chunk.OpCode) int {
	c.emitOp(instruction)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xFFFF {
		c.errorAtPrevious("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitReturn() {
	c.emitOp(chunk.OpNil)
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) uint8 {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return uint8(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

func (c *Compiler) endCompiler() *object.Function {
	c.emitReturn()
	return c.cs.function
}

// ---- scopes ----

func (c *Compiler) beginScope() { c.cs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.cs.scopeDepth--
	s := c.cs
	for len(s.locals) > 0 && s.locals[len(s.locals)-1].depth > s.scopeDepth {
		last := s.locals[len(s.locals)-1]
		if last.isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		s.locals = s.locals[:len(s.locals)-1]
	}
}

// ---- variables ----

func identifiersEqual(a, b lexer.Token) bool { return a.Lexeme == b.Lexeme }

func (c *Compiler) identifierConstant(name lexer.Token) uint8 {
	s := c.gc.AllocateString(name.Lexeme)
	return c.makeConstant(value.ObjValue(s))
}

func (c *Compiler) addLocal(name lexer.Token) {
	if len(c.cs.locals) >= localsMax {
		c.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.cs.locals = append(c.cs.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable() {
	if c.cs.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := len(c.cs.locals) - 1; i >= 0; i-- {
		l := c.cs.locals[i]
		if l.depth != -1 && l.depth < c.cs.scopeDepth {
			break
		}
		if identifiersEqual(name, l.name) {
			c.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(errMsg string) uint8 {
	c.consume(lexer.TokenIdentifier, errMsg)
	c.declareVariable()
	if c.cs.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	if c.cs.scopeDepth == 0 {
		return
	}
	c.cs.locals[len(c.cs.locals)-1].depth = c.cs.scopeDepth
}

func (c *Compiler) defineVariable(global uint8) {
	if c.cs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}

func resolveLocal(s *state, name lexer.Token) int {
	for i := len(s.locals) - 1; i >= 0; i-- {
		l := s.locals[i]
		if identifiersEqual(name, l.name) {
			if l.depth == -1 {
				return -2 // sentinel: "own initializer" error, checked by caller
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(s *state, index uint8, isLocal bool) int {
	for i, uv := range s.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(s.upvalues) >= upvaluesMax {
		c.errorAtPrevious("Too many closure variables in function.")
		return 0
	}
	s.upvalues = append(s.upvalues, upvalueRef{index: index, isLocal: isLocal})
	s.function.UpvalueCount = len(s.upvalues)
	return len(s.upvalues) - 1
}

// resolveUpvalue walks the enclosing chain looking for name as a local of
// some ancestor function, threading an upvalue entry through every
// intermediate function so a deeply nested closure can still reach a
// variable declared several levels up, per spec.md §4.3's upvalue capture.
func (c *Compiler) resolveUpvalue(s *state, name lexer.Token) int {
	if s.enclosing == nil {
		return -1
	}
	if local := resolveLocal(s.enclosing, name); local == -2 {
		c.errorAtPrevious("Can't read local variable in its own initializer.")
		return -1
	} else if local != -1 {
		s.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(s, uint8(local), true)
	}
	if upvalue := c.resolveUpvalue(s.enclosing, name); upvalue != -1 {
		return c.addUpvalue(s, uint8(upvalue), false)
	}
	return -1
}

func (c *Compiler) namedVariable(name lexer.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	arg := resolveLocal(c.cs, name)
	if arg == -2 {
		c.errorAtPrevious("Can't read local variable in its own initializer.")
		arg = 0
	}
	if arg != -1 {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else if arg = c.resolveUpvalue(c.cs, name); arg != -1 {
		getOp, setOp = chunk.OpGetUpvalue, chunk.OpSetUpvalue
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

// ---- expressions (Pratt parser) ----

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	rule := getRule(c.previous.Type)
	if rule.prefix == nil {
		c.errorAtPrevious("Expect expression.")
		return
	}
	canAssign := prec <= PrecAssignment
	rule.prefix(c, canAssign)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func number(c *Compiler, _ bool) {
	var n float64
	fmt.Sscanf(c.previous.Lexeme, "%g", &n)
	c.emitConstant(value.NumberValue(n))
}

func stringLiteral(c *Compiler, _ bool) {
	lexeme := c.previous.Lexeme
	chars := lexeme[1 : len(lexeme)-1] // strip surrounding quotes
	s := c.gc.AllocateString(chars)
	c.emitConstant(value.ObjValue(s))
}

func literal(c *Compiler, _ bool) {
	switch c.previous.Type {
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	case lexer.TokenNil:
		c.emitOp(chunk.OpNil)
	}
}

func grouping(c *Compiler, _ bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func unary(c *Compiler, _ bool) {
	opType := c.previous.Type
	c.parsePrecedence(PrecUnary)
	switch opType {
	case lexer.TokenBang:
		c.emitOp(chunk.OpNot)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpNegate)
	}
}

func binary(c *Compiler, _ bool) {
	opType := c.previous.Type
	rule := getRule(opType)
	c.parsePrecedence(rule.precedence + 1)

	switch opType {
	case lexer.TokenBangEqual:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(chunk.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case lexer.TokenLess:
		c.emitOp(chunk.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(chunk.OpDivide)
	}
}

func and_(c *Compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func or_(c *Compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func variable(c *Compiler, canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func dot(c *Compiler, canAssign bool) {
	c.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	name := c.identifierConstant(c.previous)
	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitOpByte(chunk.OpSetProperty, name)
	} else {
		c.emitOpByte(chunk.OpGetProperty, name)
	}
}

func call(c *Compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(chunk.OpCall, argCount)
}

func (c *Compiler) argumentList() byte {
	var count int
	if !c.check(lexer.TokenRightParen) {
		for {
			c.expression()
			if count == 255 {
				c.errorAtPrevious("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after arguments.")
	return byte(count)
}

// ---- statements ----

func (c *Compiler) declaration() {
	switch {
	case c.match(lexer.TokenClass):
		c.classDeclaration()
	case c.match(lexer.TokenFun):
		c.funDeclaration()
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) classDeclaration() {
	c.consume(lexer.TokenIdentifier, "Expect class name.")
	nameTok := c.previous
	nameConst := c.identifierConstant(nameTok)
	c.declareVariable()

	c.emitOpByte(chunk.OpClass, nameConst)
	c.defineVariable(nameConst)

	c.consume(lexer.TokenLeftBrace, "Expect '{' before class body.")
	c.consume(lexer.TokenRightBrace, "Expect '}' after class body.")
}

func (c *Compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(typeFunction)
	c.defineVariable(global)
}

// function compiles one function's parameter list and body into a fresh
// chunk, emitting OP_CLOSURE (plus its upvalue table) into the enclosing
// chunk once the nested compile finishes.
func (c *Compiler) function(fnType functionType) {
	fn := c.gc.NewFunction()
	if fnType != typeScript {
		c.gc.PushRoot(value.ObjValue(fn))
		fn.Name = c.gc.AllocateString(c.previous.Lexeme)
		c.gc.PopRoot()
	}
	enclosing := c.cs
	c.cs = newState(enclosing, fn, fnType)
	c.beginScope()

	c.consume(lexer.TokenLeftParen, "Expect '(' after function name.")
	if !c.check(lexer.TokenRightParen) {
		for {
			c.cs.function.Arity++
			if c.cs.function.Arity > 255 {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			constant := c.parseVariable("Expect parameter name.")
			c.defineVariable(constant)
			if !c.match(lexer.TokenComma) {
				break
			}
		}
	}
	c.consume(lexer.TokenRightParen, "Expect ')' after parameters.")
	c.consume(lexer.TokenLeftBrace, "Expect '{' before function body.")
	c.block()

	compiled := c.endCompiler()
	upvalues := c.cs.upvalues
	c.cs = enclosing

	idx := c.makeConstant(value.ObjValue(compiled))
	c.emitOpByte(chunk.OpClosure, idx)
	for _, uv := range upvalues {
		if uv.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(uv.index)
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenReturn):
		c.returnStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emitOp(chunk.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endScope()
}

func (c *Compiler) returnStatement() {
	if c.cs.fnType == typeScript {
		c.errorAtPrevious("Can't return from top-level code.")
	}
	if c.match(lexer.TokenSemicolon) {
		c.emitReturn()
		return
	}
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	c.emitOp(chunk.OpReturn)
}
