// Package gc implements the precise tracing collector described in
// spec.md §4.4: allocation bookkeeping, a tri-color mark-sweep cycle keyed
// off a heap-growth threshold, and the weak-reference discipline the
// string-interning table needs.
//
// The collector never imports pkg/vm or pkg/compiler (that would cycle);
// instead its owner (the VM) registers a MarkRoots callback after
// construction, and while a compile is in flight the compiler wraps that
// callback so its own root-marking hook runs before the VM's, per
// spec.md §4.3's "compiler roots".
package gc

import (
	"log/slog"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// initialNextGC mirrors the C original's 1MiB starting threshold
// (vm.c: vm.next_GC = 1024 * 1024).
const initialNextGC = 1024 * 1024

// heapGrowFactor is applied to bytesAllocated at the end of every cycle to
// compute the next collection threshold.
const heapGrowFactor = 2

// Collector owns every heap object's lifecycle: allocation, interning,
// and collection. One Collector belongs to exactly one VM.
type Collector struct {
	Strings   *value.Table // weak: entries are pruned in RemoveWhite before sweep
	objects   value.Object // head of the intrusive all-objects list
	gray      []value.Object

	bytesAllocated int64
	nextGC         int64
	Stress         bool // collect on every growth allocation when true

	// MarkRoots is invoked once per cycle to mark everything the owner
	// (VM + compiler) consider GC roots. Set by vm.New after it builds
	// its Collector.
	MarkRoots func(c *Collector)

	Log *slog.Logger

	tempRoots []value.Value // scratch root stack for multi-allocation sequences
}

func New(stress bool, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		Strings: value.NewTable(),
		nextGC:  initialNextGC,
		Stress:  stress,
		Log:     log,
	}
}

// BytesAllocated reports the collector's running allocation total.
func (c *Collector) BytesAllocated() int64 { return c.bytesAllocated }

// register threads a freshly allocated object onto the all-objects list,
// triggering a collection first if the heap has grown past nextGC (or
// always, in Stress mode).
func (c *Collector) register(o value.Object, size int64) {
	c.bytesAllocated += size
	if c.Stress || c.bytesAllocated > c.nextGC {
		c.Collect()
	}
	o.SetNextObj(c.objects)
	c.objects = o
}

// PushRoot/PopRoot implement the "allocation during allocation" discipline
// of spec.md §4.4: any routine assembling a composite from more than one
// allocation pushes each intermediate here immediately after allocating it,
// so a GC triggered by a later allocation in the same composite cannot
// reclaim it, then pops once the composite itself is reachable.
func (c *Collector) PushRoot(v value.Value) { c.tempRoots = append(c.tempRoots, v) }
func (c *Collector) PopRoot()               { c.tempRoots = c.tempRoots[:len(c.tempRoots)-1] }

// AllocateString interns chars, allocating a new ObjString only if an
// equal one isn't already interned. This is the path string literals and
// GET_PROPERTY names take.
func (c *Collector) AllocateString(chars string) *value.ObjString {
	hash := value.HashString(chars)
	if interned := c.Strings.FindString(chars, hash); interned != nil {
		return interned
	}
	return c.internNewString(chars, hash)
}

// TakeString interns an already-built byte buffer (the result of
// concatenation), returning the interned instance and discarding the
// freshly built one if an equal string was already interned — matching
// spec.md §4.6's take_string, which frees the buffer on a hit. Go's GC
// reclaims the unused buffer for us; there is nothing to free explicitly.
func (c *Collector) TakeString(chars string) *value.ObjString {
	hash := value.HashString(chars)
	if interned := c.Strings.FindString(chars, hash); interned != nil {
		return interned
	}
	return c.internNewString(chars, hash)
}

func (c *Collector) internNewString(chars string, hash uint32) *value.ObjString {
	s := &value.ObjString{Chars: chars, Hash: hash}
	// Root the string on our temp-root stack before the table insert can
	// itself allocate (table growth), per spec.md §4.4's critical invariant.
	c.register(s, int64(len(chars))+32)
	c.PushRoot(value.ObjValue(s))
	c.Strings.Set(s, value.BoolValue(true))
	c.PopRoot()
	return s
}

func (c *Collector) NewFunction() *object.Function {
	f := &object.Function{Chunk: chunk.New()}
	c.register(f, 64)
	return f
}

func (c *Collector) NewNative(name string, fn object.NativeFn) *object.Native {
	n := &object.Native{Name: name, Fn: fn}
	c.register(n, 32)
	return n
}

func (c *Collector) NewClosure(fn *object.Function) *object.Closure {
	cl := &object.Closure{Function: fn, Upvalues: make([]*object.Upvalue, fn.UpvalueCount)}
	c.register(cl, int64(24+8*fn.UpvalueCount))
	return cl
}

func (c *Collector) NewUpvalue(slot *value.Value) *object.Upvalue {
	u := &object.Upvalue{Location: slot}
	c.register(u, 40)
	return u
}

func (c *Collector) NewClass(name *value.ObjString) *object.Class {
	cls := object.NewClass(name)
	c.register(cls, 48)
	return cls
}

func (c *Collector) NewInstance(class *object.Class) *object.Instance {
	inst := object.NewInstance(class)
	c.register(inst, 48)
	return inst
}

func (c *Collector) NewBoundMethod(receiver value.Value, method *object.Closure) *object.BoundMethod {
	bm := &object.BoundMethod{Receiver: receiver, Method: method}
	c.register(bm, 40)
	return bm
}
