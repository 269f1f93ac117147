package vm

import (
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/object"
)

var constantOperandOps = []chunk.OpCode{
	chunk.OpConstant, chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal,
	chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpClass,
}

var byteOperandOps = []chunk.OpCode{
	chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue, chunk.OpSetUpvalue, chunk.OpCall,
}

// DisassembleChunk writes a human-readable listing of every instruction in
// c to w, listing instructions by switching
// on the opcode and formatting its operand. Used by the CLI's disassemble
// command.
func DisassembleChunk(w io.Writer, c *chunk.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = disassembleInstruction(w, c, offset)
	}
}

func disassembleInstruction(w io.Writer, c *chunk.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", c.Lines[offset])
	}

	op := chunk.OpCode(c.Code[offset])
	switch {
	case slices.Contains(constantOperandOps, op):
		return constantInstruction(w, op, c, offset)
	case slices.Contains(byteOperandOps, op):
		return byteInstruction(w, op, c, offset)
	case op == chunk.OpJump || op == chunk.OpJumpIfFalse:
		return jumpInstruction(w, op, c, offset, 1)
	case op == chunk.OpLoop:
		return jumpInstruction(w, op, c, offset, -1)
	case op == chunk.OpClosure:
		return closureInstruction(w, c, offset)
	default:
		fmt.Fprintf(w, "%s\n", op)
		return offset + 1
	}
}

func constantInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op, idx, c.Constants[idx].String())
	return offset + 2
}

func byteInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", op, slot)
	return offset + 2
}

func jumpInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int, sign int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

func closureInstruction(w io.Writer, c *chunk.Chunk, offset int) int {
	offset++
	idx := c.Code[offset]
	offset++
	fmt.Fprintf(w, "%-16s %4d '%s'\n", chunk.OpClosure, idx, c.Constants[idx].String())

	if fn, ok := c.Constants[idx].AsObj().(*object.Function); ok {
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.Code[offset]
			index := c.Code[offset+1]
			kind := "upvalue"
			if isLocal == 1 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d      |                     %s %d\n", offset, kind, index)
			offset += 2
		}
	}
	return offset
}

// traceExecution prints the current stack contents and the instruction
// about to run, a one-shot per-step trace (no interactive prompt) — this
// VM's --trace-exec flag is a firehose, not a breakpoint debugger.
func (vm *VM) traceExecution() {
	frame := vm.currentFrame()
	fmt.Fprint(color.Output, "          ")
	for i := 0; i < vm.stackTop; i++ {
		fmt.Fprintf(color.Output, "[ %s ]", vm.stack[i].String())
	}
	fmt.Fprintln(color.Output)
	disassembleInstruction(color.Output, frame.closure.Function.Chunk, frame.ip)
}
