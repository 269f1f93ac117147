package vm

import (
	"fmt"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// run is the dispatch loop: spec.md §4.8's "decode one opcode, perform its
// stack effect, repeat until the outermost frame returns". Every opcode in
// chunk.OpCode is handled here; an unrecognized byte reaches the default
// case only from malformed bytecode (a compiler bug or a bad .loxc file).
func (vm *VM) run() error {
	frame := vm.currentFrame()

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readUint16 := func() uint16 {
		hi := frame.closure.Function.Chunk.Code[frame.ip]
		lo := frame.closure.Function.Chunk.Code[frame.ip+1]
		frame.ip += 2
		return uint16(hi)<<8 | uint16(lo)
	}
	readConstant := func() value.Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *value.ObjString {
		return readConstant().AsObj().(*value.ObjString)
	}

	for {
		if vm.TraceExec {
			vm.traceExecution()
		}

		op := chunk.OpCode(readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(readConstant())

		case chunk.OpNil:
			vm.push(value.NilValue())
		case chunk.OpTrue:
			vm.push(value.BoolValue(true))
		case chunk.OpFalse:
			vm.push(value.BoolValue(false))

		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[frame.slots+int(slot)])

		case chunk.OpSetLocal:
			slot := readByte()
			vm.stack[frame.slots+int(slot)] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := readString()
			v, ok := vm.Globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)

		case chunk.OpDefineGlobal:
			name := readString()
			vm.Globals.Set(name, vm.peek(0))
			vm.pop()

		case chunk.OpSetGlobal:
			name := readString()
			if vm.Globals.Set(name, vm.peek(0)) {
				vm.Globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case chunk.OpGetUpvalue:
			slot := readByte()
			vm.push(*frame.closure.Upvalues[slot].Location)

		case chunk.OpSetUpvalue:
			slot := readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case chunk.OpGetProperty:
			if !vm.peek(0).IsObjType(value.ObjInstanceType) {
				return vm.runtimeError("Only instances have properties.")
			}
			inst := vm.peek(0).AsObj().(*object.Instance)
			name := readString()
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			return vm.runtimeError("Undefined property '%s'.", name.Chars)

		case chunk.OpSetProperty:
			if !vm.peek(1).IsObjType(value.ObjInstanceType) {
				return vm.runtimeError("Only instances have fields.")
			}
			inst := vm.peek(1).AsObj().(*object.Instance)
			name := readString()
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolValue(value.Equal(a, b)))

		case chunk.OpGreater:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value {
				return value.BoolValue(a > b)
			}); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value {
				return value.BoolValue(a < b)
			}); err != nil {
				return err
			}

		case chunk.OpAdd:
			switch {
			case vm.peek(0).IsObjType(value.ObjStringType) && vm.peek(1).IsObjType(value.ObjStringType):
				b := vm.pop().AsObj().(*value.ObjString)
				a := vm.pop().AsObj().(*value.ObjString)
				vm.push(value.ObjValue(vm.GC.TakeString(object.Concat(a.Chars, b.Chars))))
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(value.NumberValue(a + b))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case chunk.OpSubtract:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value {
				return value.NumberValue(a - b)
			}); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value {
				return value.NumberValue(a * b)
			}); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value {
				return value.NumberValue(a / b)
			}); err != nil {
				return err
			}

		case chunk.OpNot:
			vm.push(value.BoolValue(value.IsFalsey(vm.pop())))

		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.NumberValue(-vm.pop().AsNumber()))

		case chunk.OpPrint:
			fmt.Fprintln(vm.Out, vm.pop().String())

		case chunk.OpJump:
			offset := readUint16()
			frame.ip += int(offset)

		case chunk.OpJumpIfFalse:
			offset := readUint16()
			if value.IsFalsey(vm.peek(0)) {
				frame.ip += int(offset)
			}

		case chunk.OpLoop:
			offset := readUint16()
			frame.ip -= int(offset)

		case chunk.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return vm.runtimeError("%s", vm.lastErr)
			}
			frame = vm.currentFrame()

		case chunk.OpClosure:
			fn := readConstant().AsObj().(*object.Function)
			closure := vm.GC.NewClosure(fn)
			vm.push(value.ObjValue(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.slots
			vm.push(result)
			frame = vm.currentFrame()

		case chunk.OpClass:
			name := readString()
			vm.push(value.ObjValue(vm.GC.NewClass(name)))

		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

// binaryNumberOp implements the shared "pop two numbers, type-check,
// push the combined result" shape that SUBTRACT/MULTIPLY/DIVIDE and the
// ordering comparisons share. ADD is handled inline because it also
// concatenates strings.
func (vm *VM) binaryNumberOp(op func(a, b float64) value.Value) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(op(a, b))
	return nil
}
