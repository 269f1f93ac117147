package compiler

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/gc"
)

func TestCompileArithmeticPrecedence(t *testing.T) {
	c := New(gc.New(false, nil))
	script, ok := c.Compile("print 1 + 2 * 3;")
	if !ok {
		t.Fatalf("compile failed: %v", c.Errors())
	}

	ops := opcodesOf(script.Chunk)
	want := []chunk.OpCode{
		chunk.OpConstant, chunk.OpConstant, chunk.OpConstant,
		chunk.OpMultiply, chunk.OpAdd, chunk.OpPrint, chunk.OpNil, chunk.OpReturn,
	}
	if !equalOps(ops, want) {
		t.Fatalf("got ops %v, want %v", ops, want)
	}
}

func TestCompileUndefinedOwnInitializerIsError(t *testing.T) {
	c := New(gc.New(false, nil))
	_, ok := c.Compile("{ var a = a; }")
	if ok {
		t.Fatalf("expected a compile error for self-referential initializer")
	}
	if len(c.Errors()) == 0 {
		t.Fatalf("expected at least one diagnostic")
	}
}

func TestCompileTopLevelReturnIsError(t *testing.T) {
	c := New(gc.New(false, nil))
	_, ok := c.Compile("return 1;")
	if ok {
		t.Fatalf("expected a compile error for top-level return")
	}
}

func TestCompileFunctionEmitsClosureWithUpvalues(t *testing.T) {
	c := New(gc.New(false, nil))
	script, ok := c.Compile("fun make() { var x = 0; fun inc() { x = x + 1; return x; } return inc; }")
	if !ok {
		t.Fatalf("compile failed: %v", c.Errors())
	}
	ops := opcodesOf(script.Chunk)
	found := false
	for _, op := range ops {
		if op == chunk.OpClosure {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an OP_CLOSURE in the top-level chunk, got %v", ops)
	}
}

func opcodesOf(c *chunk.Chunk) []chunk.OpCode {
	var out []chunk.OpCode
	for i := 0; i < len(c.Code); {
		op := chunk.OpCode(c.Code[i])
		out = append(out, op)
		switch op {
		case chunk.OpConstant, chunk.OpGetLocal, chunk.OpSetLocal,
			chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal,
			chunk.OpGetUpvalue, chunk.OpSetUpvalue, chunk.OpGetProperty,
			chunk.OpSetProperty, chunk.OpCall, chunk.OpClass:
			i += 2
		case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop:
			i += 3
		case chunk.OpClosure:
			// operand is a constant index; walking its upvalue pairs would
			// need the function's UpvalueCount, which isn't needed for
			// these tests' "does OP_CLOSURE appear" assertions.
			i += 2
		default:
			i++
		}
	}
	return out
}

func equalOps(got, want []chunk.OpCode) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
