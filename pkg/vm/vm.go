// Package vm implements the bytecode virtual machine for loxvm.
//
// The VM is a stack-based interpreter that executes the bytecode the
// compiler package emits. It's the final stage in the pipeline:
//
//	Source Code -> Lexer -> Compiler (single pass, no AST) -> Chunk -> VM
//
// Virtual Machine Architecture:
//
// The VM is, at its core, an array of CallFrames (spec.md §4.7) sharing one
// Value stack:
//
//  1. Value stack: STACK_MAX slots, holding locals, temporaries and
//     in-flight call arguments for every active frame at once.
//  2. Call frames: FRAMES_MAX deep. Each frame is a running closure, an
//     instruction pointer into that closure's chunk, and a base index
//     ("slots") into the shared stack below which the frame may not reach.
//  3. Globals: a string-keyed hash table, populated by DEFINE_GLOBAL and
//     read/written by GET_GLOBAL/SET_GLOBAL.
//  4. Open upvalues: a singly linked list of not-yet-closed Upvalue
//     objects, kept sorted by descending stack slot so CLOSE_UPVALUE and
//     a frame's own return can find and close every upvalue pointing above
//     a given slot in one pass.
//
// Execution Model:
//
// Each iteration of the dispatch loop in run decodes one opcode from the
// current frame's chunk, advances that frame's ip past its operands, and
// performs the opcode's stack effect. CALL pushes a new frame and the loop
// continues from the top of that frame's code; RETURN pops a frame, copies
// its result down over the arguments that were passed to it, and resumes
// the caller at the ip it had suspended at.
//
//	Source: fun add(a, b) { return a + b; } print add(1, 2);
//
//	Execution trace (frame 0 = script, frame 1 = add):
//	  frame 0  CLOSURE add        stack=[<fn add>]
//	  frame 0  DEFINE_GLOBAL add  stack=[]
//	  frame 0  GET_GLOBAL add     stack=[<fn add>]
//	  frame 0  CONSTANT 1         stack=[<fn add>, 1]
//	  frame 0  CONSTANT 2         stack=[<fn add>, 1, 2]
//	  frame 0  CALL 2             -> push frame 1, slots base = stack[1]
//	  frame 1  GET_LOCAL 1        stack=[<fn add>, 1, 2, 1]
//	  frame 1  GET_LOCAL 2        stack=[<fn add>, 1, 2, 1, 2]
//	  frame 1  ADD                stack=[<fn add>, 1, 2, 3]
//	  frame 1  RETURN             -> pop frame 1, stack=[3]
//	  frame 0  PRINT               prints 3
//
// Error Handling:
//
// Any opcode that cannot complete (type mismatch, undefined global, stack
// overflow, arity mismatch) raises a RuntimeError carrying the call stack
// active at the point of failure, per spec.md §4.8.
package vm

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/gc"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

const (
	framesMax = 64               // spec.md §4.8: FRAMES_MAX
	stackMax  = framesMax * 256  // spec.md §4.8: STACK_MAX
)

// InterpretResult reports how a top-level Interpret call finished.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// CallFrame is one activation record: the closure it is running, where its
// instruction pointer has reached, and the base slot its locals start at.
// This is one activation record narrowed to exactly what the
// dispatch loop needs, per spec.md §4.7's Call_frame.
type CallFrame struct {
	closure *object.Closure
	ip      int
	slots   int
}

// VM is one interpreter instance: its own stack, call frames, globals and
// collector. Nothing here is safe for concurrent use from multiple
// goroutines; this VM is single-goroutine throughout.
type VM struct {
	GC      *gc.Collector
	Globals *value.Table

	frames     [framesMax]CallFrame
	frameCount int

	stack    [stackMax]value.Value
	stackTop int

	openUpvalues *object.Upvalue

	// initString mirrors vm.init_string from the C original: a cached
	// Obj_string for "init", marked as a root, kept for data-model
	// completeness even though no opcode drives constructor dispatch.
	initString *value.ObjString

	TraceExec bool
	Log       *slog.Logger
	Out       io.Writer // destination for PRINT; defaults to os.Stdout

	compileErrs []string
	lastErr     error // set by callValue on failure, consumed by run's CALL handler
}

// New builds a VM with its own collector and an empty globals table. It
// registers no native functions; callers install them with DefineNative
// (natives.Register does this for clock) before running a script.
func New(stress bool, log *slog.Logger) *VM {
	if log == nil {
		log = slog.Default()
	}
	vm := &VM{
		GC:      gc.New(stress, log),
		Globals: value.NewTable(),
		Log:     log,
		Out:     os.Stdout,
	}
	vm.GC.MarkRoots = vm.markRoots
	vm.initString = vm.GC.AllocateString("init")
	return vm
}

// DefineNative installs a host function as a global, callable through the
// same CALL opcode path as user closures.
func (vm *VM) DefineNative(name string, fn object.NativeFn) {
	// Root the name across the Native's allocation, since that second
	// allocation could trigger a GC before the name is reachable from
	// Globals (spec.md §4.4's allocation-during-allocation rule).
	s := vm.GC.AllocateString(name)
	vm.GC.PushRoot(value.ObjValue(s))
	n := vm.GC.NewNative(name, fn)
	vm.GC.PopRoot()
	vm.Globals.Set(s, value.ObjValue(n))
}

// Interpret compiles and runs source in one step, the entry point the CLI
// and REPL use.
func (vm *VM) Interpret(source string) InterpretResult {
	fn, ok := vm.CompileOnly(source)
	if !ok {
		return InterpretCompileError
	}
	return vm.Run(fn)
}

// CompileOnly compiles source to a top-level Function without running it,
// the path the "compile" CLI command uses to produce a .loxc file.
func (vm *VM) CompileOnly(source string) (*object.Function, bool) {
	c := compiler.New(vm.GC)
	fn, ok := c.Compile(source)
	if !ok {
		vm.compileErrs = c.Errors()
	}
	return fn, ok
}

// Run executes a previously compiled top-level Function, the path both
// Interpret and the "run"/bytecode-file CLI commands converge on.
func (vm *VM) Run(fn *object.Function) InterpretResult {
	vm.push(value.ObjValue(fn))
	closure := vm.GC.NewClosure(fn)
	vm.pop()
	vm.push(value.ObjValue(closure))
	if !vm.call(closure, 0) {
		fmt.Fprintln(os.Stderr, vm.lastErr)
		return InterpretRuntimeError
	}

	if err := vm.run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return InterpretRuntimeError
	}
	return InterpretOK
}

// CompileErrors returns the diagnostics from the most recent failed
// Interpret call.
func (vm *VM) CompileErrors() []string { return vm.compileErrs }

func (vm *VM) markRoots(g *gc.Collector) {
	for i := 0; i < vm.stackTop; i++ {
		g.MarkValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		g.MarkObject(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		g.MarkObject(uv)
	}
	vm.Globals.Mark(g.MarkValue, g.MarkObject)
	if vm.initString != nil {
		g.MarkObject(vm.initString)
	}
}

// ---- stack ----

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) currentFrame() *CallFrame { return &vm.frames[vm.frameCount-1] }

// ---- errors ----

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var trace []StackFrame
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := vm.frames[i]
		line := f.closure.Function.Chunk.Lines[f.ip-1]
		name := ""
		if f.closure.Function.Name != nil {
			name = f.closure.Function.Name.Chars
		}
		trace = append(trace, StackFrame{FunctionName: name, Line: line})
	}
	vm.resetStack()
	return newRuntimeError(msg, trace)
}

// ---- calls ----

func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if callee.IsObj() {
		switch obj := callee.AsObj().(type) {
		case *object.Closure:
			return vm.call(obj, argCount)
		case *object.Native:
			args := vm.stack[vm.stackTop-argCount : vm.stackTop]
			result, err := obj.Fn(argCount, args)
			if err != nil {
				vm.lastErr = wrapf(err, obj.Name)
				return false
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return true
		case *object.Class:
			inst := vm.GC.NewInstance(obj)
			vm.stack[vm.stackTop-argCount-1] = value.ObjValue(inst)
			if argCount != 0 {
				vm.lastErr = fmt.Errorf("Expected 0 arguments but got %d.", argCount)
				return false
			}
			return true
		case *object.BoundMethod:
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			return vm.call(obj.Method, argCount)
		}
	}
	vm.lastErr = fmt.Errorf("Can only call functions and classes.")
	return false
}

func (vm *VM) call(closure *object.Closure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.lastErr = fmt.Errorf("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == framesMax {
		vm.lastErr = fmt.Errorf("Stack overflow.")
		return false
	}
	frame := &vm.frames[vm.frameCount]
	frame.closure = closure
	frame.ip = 0
	frame.slots = vm.stackTop - argCount - 1
	vm.frameCount++
	return true
}

// ---- upvalues ----

// captureUpvalue finds or creates the Upvalue watching stack slot
// localSlot, keeping the open-upvalues list sorted by descending slot so a
// single scope exit (closeUpvalues) can close a contiguous run in order.
func (vm *VM) captureUpvalue(localSlot int) *object.Upvalue {
	var prev *object.Upvalue
	uv := vm.openUpvalues
	for uv != nil && uv.OpenSlot > localSlot {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.OpenSlot == localSlot {
		return uv
	}

	created := vm.GC.NewUpvalue(&vm.stack[localSlot])
	created.OpenSlot = localSlot
	created.Next = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue watching a slot at or above
// lastSlot, the way a block or function return severs its locals' upvalue
// links from the stack before those slots are reused.
func (vm *VM) closeUpvalues(lastSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.OpenSlot >= lastSlot {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.Next
	}
}
