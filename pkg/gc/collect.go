package gc

import (
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// Collect runs one full tri-color mark-sweep cycle: mark roots (via the
// MarkRoots callback the VM registered), drain the gray worklist by
// blackening each object's outgoing edges, prune white keys from the
// interning table, sweep the all-objects list, then grow the threshold.
func (c *Collector) Collect() {
	before := c.bytesAllocated

	if c.MarkRoots != nil {
		c.MarkRoots(c)
	}
	for _, v := range c.tempRoots {
		c.MarkValue(v)
	}
	c.traceReferences()
	c.Strings.RemoveWhite()
	c.sweep()

	c.nextGC = c.bytesAllocated * heapGrowFactor
	if c.nextGC < initialNextGC {
		c.nextGC = initialNextGC
	}

	c.Log.Debug("gc cycle",
		"before_bytes", before,
		"after_bytes", c.bytesAllocated,
		"next_gc", c.nextGC)
}

// MarkValue marks v's underlying object, if it has one. Scalars (nil,
// bool, number) need no marking.
func (c *Collector) MarkValue(v value.Value) {
	if v.Type == value.Obj {
		c.MarkObject(v.AsObj())
	}
}

// MarkObject sets o's mark bit and pushes it onto the gray worklist, the
// first time it is reached this cycle. Marking an already-marked object
// is a no-op, which is what keeps cyclic graphs (closures capturing their
// own enclosing function, instances referencing their class) terminating.
func (c *Collector) MarkObject(o value.Object) {
	if o == nil || o.IsMarked() {
		return
	}
	o.SetMarked(true)
	c.gray = append(c.gray, o)
}

// traceReferences drains the gray worklist, blackening each object by
// visiting its outgoing edges per spec.md §4.4's per-variant edge list.
func (c *Collector) traceReferences() {
	for len(c.gray) > 0 {
		n := len(c.gray) - 1
		o := c.gray[n]
		c.gray = c.gray[:n]
		c.blacken(o)
	}
}

func (c *Collector) blacken(o value.Object) {
	switch v := o.(type) {
	case *value.ObjString, *object.Native:
		// no outgoing edges
	case *object.Function:
		if v.Name != nil {
			c.MarkObject(v.Name)
		}
		for _, k := range v.Chunk.Constants {
			c.MarkValue(k)
		}
	case *object.Closure:
		c.MarkObject(v.Function)
		for _, uv := range v.Upvalues {
			if uv != nil {
				c.MarkObject(uv)
			}
		}
	case *object.Upvalue:
		c.MarkValue(v.Closed)
	case *object.Class:
		c.MarkObject(v.Name)
		v.Methods.Mark(c.MarkValue, c.MarkObject)
	case *object.Instance:
		c.MarkObject(v.Class)
		v.Fields.Mark(c.MarkValue, c.MarkObject)
	case *object.BoundMethod:
		c.MarkValue(v.Receiver)
		c.MarkObject(v.Method)
	}
}

// sweep walks the intrusive all-objects list, unlinking (not
// free-ing — Go's own GC reclaims the backing memory once unreachable)
// every object that survived this cycle unmarked, and clears the mark bit
// on survivors so the next cycle starts white again.
func (c *Collector) sweep() {
	var prev value.Object
	obj := c.objects
	c.bytesAllocated = 0
	for obj != nil {
		if obj.IsMarked() {
			obj.SetMarked(false)
			c.bytesAllocated += objectSize(obj)
			prev = obj
			obj = obj.NextObj()
			continue
		}
		unreached := obj
		obj = obj.NextObj()
		if prev != nil {
			prev.SetNextObj(obj)
		} else {
			c.objects = obj
		}
		_ = unreached
	}
}

// objectSize estimates a variant's footprint for bytesAllocated
// bookkeeping after sweep recomputes the live total. The exact numbers
// don't matter for correctness, only for triggering collection at
// roughly the right heap growth cadence.
func objectSize(o value.Object) int64 {
	switch v := o.(type) {
	case *value.ObjString:
		return int64(len(v.Chars)) + 32
	case *object.Function:
		return 64
	case *object.Native:
		return 32
	case *object.Closure:
		return int64(24 + 8*len(v.Upvalues))
	case *object.Upvalue:
		return 40
	case *object.Class:
		return 48
	case *object.Instance:
		return 48
	case *object.BoundMethod:
		return 40
	default:
		return 16
	}
}
