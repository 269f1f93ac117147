package gc

import (
	"bytes"
	"testing"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

func TestAllocateStringInterns(t *testing.T) {
	c := New(false, nil)
	a := c.AllocateString("shared")
	b := c.AllocateString("shared")
	if a != b {
		t.Fatalf("AllocateString should return the same instance for equal strings")
	}
}

func TestTakeStringInternsAgainstExisting(t *testing.T) {
	c := New(false, nil)
	a := c.AllocateString("hello world")
	b := c.TakeString("hello " + "world")
	if a != b {
		t.Fatalf("TakeString should find the already-interned equal string")
	}
}

// TestCollectReclaimsUnreachableStrings exercises the collector end to end
// without a VM: allocate a string, root nothing, force a cycle, and check
// the all-objects list no longer holds it (observed indirectly: a fresh
// AllocateString of the same text must reintern, not find a freed ghost).
func TestCollectReclaimsUnreachableStrings(t *testing.T) {
	c := New(false, nil)

	first := c.AllocateString("ephemeral")
	_ = first
	c.Collect() // nothing rooted: the string is collected and its intern
	// entry pruned by RemoveWhite before sweep runs.

	second := c.AllocateString("ephemeral")
	if second == first {
		t.Fatalf("expected a fresh instance after the unreachable string was collected")
	}
}

// TestStressModeProducesSameGraphShape exercises spec.md §8 invariant #4
// in miniature: building the same small object graph under Stress (collect
// on every allocation) must not corrupt or lose anything reachable from an
// explicit MarkRoots.
func TestStressModeProducesSameGraphShape(t *testing.T) {
	build := func(stress bool) string {
		c := New(stress, nil)
		fn := c.NewFunction()
		fn.Name = c.AllocateString("f")
		fn.Chunk.WriteOp(chunk.OpReturn, 1)

		var root *object.Closure
		c.MarkRoots = func(col *Collector) {
			if root != nil {
				col.MarkObject(root)
			}
		}

		c.PushRoot(value.ObjValue(fn))
		closure := c.NewClosure(fn)
		c.PopRoot()
		root = closure

		c.Collect()
		return root.Function.Name.Chars
	}

	var buf bytes.Buffer
	buf.WriteString(build(false))
	stressed := build(true)
	if buf.String() != stressed {
		t.Fatalf("stress-mode graph diverged: got %q, want %q", stressed, buf.String())
	}
}
