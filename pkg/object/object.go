// Package object defines the heap object variants that sit above both
// value.Value (for fields/constants) and chunk.Chunk (a function's code),
// which is why they cannot live in package value without creating an
// import cycle.
//
// Every type here embeds value.Header to satisfy value.Object, and the GC
// in package gc switches on the concrete type to blacken each variant's
// outgoing edges, matching the C original's tagged-union-of-structs object model.
package object

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// Function is a compiled function body: its arity, how many upvalues its
// closures must capture, its code, and an optional name (absent for the
// implicit top-level script).
type Function struct {
	value.Header
	Arity        int
	UpvalueCount int
	Chunk        *chunk.Chunk
	Name         *value.ObjString // nil for the top-level script
}

func (f *Function) ObjType() value.ObjType { return value.ObjFunctionType }
func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is a host-provided function. It must not itself allocate GC
// objects that outlive the call without rooting them (see gc.PushRoot),
// and it receives argCount/args the way the VM's CALL opcode hands off to
// a native Obj.
type NativeFn func(argCount int, args []value.Value) (value.Value, error)

// Native wraps a host function so it can live in a Value and be called
// through the same CALL opcode path as user closures.
type Native struct {
	value.Header
	Name string
	Fn   NativeFn
}

func (n *Native) ObjType() value.ObjType { return value.ObjNativeType }
func (n *Native) String() string         { return fmt.Sprintf("<native fn %s>", n.Name) }

// Upvalue is the indirection a closure uses to reach a variable declared
// in an enclosing scope. While Open, Location points at a live VM stack
// slot; once Closed, Location points at the Closed field inline in this
// object and the stack slot is no longer consulted.
type Upvalue struct {
	value.Header
	Location *value.Value
	Closed   value.Value
	Next     *Upvalue // open-upvalues list, sorted by descending stack slot
	// OpenSlot is the stack index Location points at while this upvalue is
	// open. The VM needs this to keep the open-upvalues list ordered by
	// stack depth; Go forbids ordering comparisons between pointers, so a
	// plain index stands in for the C original's pointer arithmetic.
	OpenSlot int
}

func (u *Upvalue) ObjType() value.ObjType { return value.ObjUpvalueType }
func (u *Upvalue) String() string         { return "upvalue" }

// Close copies the current value out of the stack slot this upvalue was
// watching and retargets Location at the inline copy, severing the
// dependency on the stack.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// Closure pairs a Function with the upvalue references its closures
// capture. A Closure never owns its Function (many closures may share
// one compiled Function).
type Closure struct {
	value.Header
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) ObjType() value.ObjType { return value.ObjClosureType }
func (c *Closure) String() string         { return c.Function.String() }

// Class holds a name and its method table (string -> Closure). Method
// inheritance and dispatch beyond field access are out of scope (see
// spec.md §9's Open Question); Methods exists so the data model has
// somewhere to grow into if that scope changes.
type Class struct {
	value.Header
	Name    *value.ObjString
	Methods *value.Table
}

func NewClass(name *value.ObjString) *Class {
	return &Class{Name: name, Methods: value.NewTable()}
}

func (c *Class) ObjType() value.ObjType { return value.ObjClassType }
func (c *Class) String() string         { return c.Name.Chars }

// Instance is a class instance with its own field table.
type Instance struct {
	value.Header
	Class  *Class
	Fields *value.Table
}

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: value.NewTable()}
}

func (i *Instance) ObjType() value.ObjType { return value.ObjInstanceType }
func (i *Instance) String() string         { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }

// BoundMethod pairs a receiver with a closure, produced when a method is
// looked up off an instance (kept for completeness of the data model; not
// driven by any opcode per spec.md §9).
type BoundMethod struct {
	value.Header
	Receiver value.Value
	Method   *Closure
}

func (b *BoundMethod) ObjType() value.ObjType { return value.ObjBoundMethodType }
func (b *BoundMethod) String() string         { return b.Method.String() }

// Concat allocates the byte buffer for string concatenation the way
// spec.md §4.6 describes: a fresh buffer sized a.len+b.len, the two
// operands copied in, ready for interning via the GC's TakeString.
func Concat(a, b string) string {
	var sb strings.Builder
	sb.Grow(len(a) + len(b))
	sb.WriteString(a)
	sb.WriteString(b)
	return sb.String()
}
